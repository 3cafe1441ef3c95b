package cache

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	// ErrInvalidArgument reports a missing or empty key, region, item or
	// value. It is raised before any layer is touched.
	ErrInvalidArgument = errors.New("cache: invalid argument")

	// ErrInvalidCast is returned by GetAs when the stored payload cannot be
	// converted to the requested type. The item is still in the cache.
	ErrInvalidCast = errors.New("cache: invalid cast")

	// ErrBackendFailure matches every *LayerError.
	ErrBackendFailure = errors.New("cache: backend failure")

	// ErrPartialFailure matches every *PartialError.
	ErrPartialFailure = errors.New("cache: partial layer failure")

	// ErrClosed is returned by operations on a closed Cache.
	ErrClosed = errors.New("cache: closed")
)

func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Op names a coordinator step in errors, logs and metrics.
type Op string

const (
	OpAdd         Op = "add"
	OpGet         Op = "get"
	OpPut         Op = "put"
	OpRemove      Op = "remove"
	OpBackFill    Op = "backfill"
	OpClear       Op = "clear"
	OpClearRegion Op = "clear_region"
)

// LayerError is an unexpected failure reported by one layer.
type LayerError struct {
	Index int    // position in the chain, 0 = fastest
	Layer string // Backend.Name()
	Op    Op
	Err   error
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("cache: layer %d (%s) %s: %v", e.Index, e.Layer, e.Op, e.Err)
}

func (e *LayerError) Unwrap() error { return e.Err }

// Is makes every LayerError match ErrBackendFailure.
func (e *LayerError) Is(target error) bool { return target == ErrBackendFailure }

// PartialError is returned next to a valid result when the operation was
// committed at the first layer (or a read was satisfied) but a later step
// failed or was cancelled. The result the caller got is still good; the
// listed layers may hold stale data until the next write or read-through.
type PartialError struct {
	err error
}

func (e *PartialError) Error() string {
	return "cache: partial layer failure: " + e.err.Error()
}

// Errors returns the individual failures.
func (e *PartialError) Errors() []error { return multierr.Errors(e.err) }

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *PartialError) Unwrap() []error { return multierr.Errors(e.err) }

// Is makes every PartialError match ErrPartialFailure.
func (e *PartialError) Is(target error) bool { return target == ErrPartialFailure }

// IsPartial reports whether err only signals secondary layer failures, i.e.
// the accompanying result is valid.
func IsPartial(err error) bool {
	var pe *PartialError
	return errors.As(err, &pe)
}

// partial merges err into an existing partial error (which may be nil).
func partial(prev error, err error) error {
	if err == nil {
		return prev
	}
	var pe *PartialError
	if errors.As(prev, &pe) {
		return &PartialError{err: multierr.Append(pe.err, unpartial(err))}
	}
	return &PartialError{err: multierr.Append(prev, unpartial(err))}
}

// unpartial strips a PartialError wrapper so nested merges stay flat.
func unpartial(err error) error {
	var pe *PartialError
	if errors.As(err, &pe) {
		return pe.err
	}
	return err
}
