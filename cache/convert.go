package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"go.uber.org/multierr"
)

// GetAs returns the value for key converted to T.
//
// Conversion happens after retrieval, so a payload of the wrong type is a
// hit with ErrInvalidCast, never a miss. Conversions tried in order:
//  1. the stored value is a T;
//  2. Options.Converter;
//  3. encoded JSON ([]byte or json.RawMessage, as produced by remote layers)
//     decoded into T;
//  4. lossless numeric conversion between integer and float kinds.
//
// Strings are never parsed into numbers. A failed conversion is reported
// together with any partial layer failure of the read.
func GetAs[T any](ctx context.Context, c *Cache, key string, opts ...Option) (T, bool, error) {
	var out T
	v, ok, err := c.Get(ctx, key, opts...)
	if !ok {
		return out, false, err
	}
	if cerr := c.convert(v, &out); cerr != nil {
		var zero T
		return zero, true, multierr.Append(cerr, err)
	}
	return out, true, err
}

// convert stores v into dst (a *T).
func (c *Cache) convert(v any, dst any) error {
	dv := reflect.ValueOf(dst).Elem()
	vv := reflect.ValueOf(v)
	if !vv.IsValid() {
		return fmt.Errorf("%w: nil payload", ErrInvalidCast)
	}
	if vv.Type().AssignableTo(dv.Type()) {
		dv.Set(vv)
		return nil
	}
	if c.opt.Converter != nil {
		ok, err := c.opt.Converter(v, dst)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCast, err)
		}
		if ok {
			return nil
		}
	}
	if raw, ok := encodedJSON(v); ok {
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrInvalidCast, dv.Type(), err)
		}
		return nil
	}
	if convertNumber(vv, dv) {
		return nil
	}
	return fmt.Errorf("%w: %T to %s", ErrInvalidCast, v, dv.Type())
}

func encodedJSON(v any) ([]byte, bool) {
	switch b := v.(type) {
	case json.RawMessage:
		return b, true
	case []byte:
		return b, json.Valid(b)
	}
	return nil, false
}

// convertNumber sets dst from src when both are numeric and the value
// survives the conversion unchanged.
func convertNumber(src, dst reflect.Value) bool {
	switch {
	case isInt(src.Kind()):
		n := src.Int()
		switch {
		case isInt(dst.Kind()):
			if dst.OverflowInt(n) {
				return false
			}
			dst.SetInt(n)
		case isUint(dst.Kind()):
			if n < 0 || dst.OverflowUint(uint64(n)) {
				return false
			}
			dst.SetUint(uint64(n))
		case isFloat(dst.Kind()):
			dst.SetFloat(float64(n))
		default:
			return false
		}
		return true
	case isUint(src.Kind()):
		n := src.Uint()
		switch {
		case isInt(dst.Kind()):
			if n > math.MaxInt64 || dst.OverflowInt(int64(n)) {
				return false
			}
			dst.SetInt(int64(n))
		case isUint(dst.Kind()):
			if dst.OverflowUint(n) {
				return false
			}
			dst.SetUint(n)
		case isFloat(dst.Kind()):
			dst.SetFloat(float64(n))
		default:
			return false
		}
		return true
	case isFloat(src.Kind()):
		f := src.Float()
		switch {
		case isFloat(dst.Kind()):
			if dst.OverflowFloat(f) {
				return false
			}
			dst.SetFloat(f)
		case isInt(dst.Kind()):
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 || dst.OverflowInt(int64(f)) {
				return false
			}
			dst.SetInt(int64(f))
		case isUint(dst.Kind()):
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 || dst.OverflowUint(uint64(f)) {
				return false
			}
			dst.SetUint(uint64(f))
		default:
			return false
		}
		return true
	}
	return false
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
