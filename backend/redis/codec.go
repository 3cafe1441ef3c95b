package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IvanBrykalov/layercache/cache"
)

// Codec turns items into the bytes stored under a Redis key and back.
type Codec interface {
	Marshal(it *cache.Item) ([]byte, error)
	Unmarshal(data []byte) (*cache.Item, error)
}

// JSONCodec stores items as a JSON envelope.
//
// Scalars (strings, bools, integer and float kinds, []byte) are tagged with
// their Go type and come back with the same type. Any other value comes back
// as json.RawMessage; cache.GetAs decodes it into the requested type.
type JSONCodec struct{}

type envelope struct {
	Key     string          `json:"k"`
	Region  string          `json:"r,omitempty"`
	Type    string          `json:"t"`
	Value   json.RawMessage `json:"v"`
	Mode    uint8           `json:"m"`
	Timeout int64           `json:"to,omitempty"` // nanoseconds
	Created int64           `json:"c"`            // UnixNano
}

const typeJSON = "json"

// Marshal implements Codec.
func (JSONCodec) Marshal(it *cache.Item) ([]byte, error) {
	tag := typeTag(it.Value)
	raw, err := json.Marshal(it.Value)
	if err != nil {
		return nil, fmt.Errorf("redis: marshal value of %q: %w", it.Key, err)
	}
	var created int64
	if !it.CreatedAt.IsZero() {
		created = it.CreatedAt.UnixNano()
	}
	return json.Marshal(envelope{
		Key:     it.Key,
		Region:  it.Region,
		Type:    tag,
		Value:   raw,
		Mode:    uint8(it.ExpirationMode),
		Timeout: int64(it.ExpirationTimeout),
		Created: created,
	})
}

// Unmarshal implements Codec.
func (JSONCodec) Unmarshal(data []byte) (*cache.Item, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("redis: decode envelope: %w", err)
	}
	v, err := decodeValue(env.Type, env.Value)
	if err != nil {
		return nil, fmt.Errorf("redis: decode value of %q: %w", env.Key, err)
	}
	it := &cache.Item{
		Key:               env.Key,
		Region:            env.Region,
		Value:             v,
		ExpirationMode:    cache.ExpirationMode(env.Mode),
		ExpirationTimeout: time.Duration(env.Timeout),
	}
	if env.Created != 0 {
		it.CreatedAt = time.Unix(0, env.Created)
	}
	return it, nil
}

func typeTag(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case int:
		return "int"
	case int8:
		return "int8"
	case int16:
		return "int16"
	case int32:
		return "int32"
	case int64:
		return "int64"
	case uint:
		return "uint"
	case uint8:
		return "uint8"
	case uint16:
		return "uint16"
	case uint32:
		return "uint32"
	case uint64:
		return "uint64"
	case float32:
		return "float32"
	case float64:
		return "float64"
	case []byte:
		return "bytes"
	default:
		return typeJSON
	}
}

func decodeValue(tag string, raw json.RawMessage) (any, error) {
	switch tag {
	case "string":
		return decodeAs[string](raw)
	case "bool":
		return decodeAs[bool](raw)
	case "int":
		return decodeAs[int](raw)
	case "int8":
		return decodeAs[int8](raw)
	case "int16":
		return decodeAs[int16](raw)
	case "int32":
		return decodeAs[int32](raw)
	case "int64":
		return decodeAs[int64](raw)
	case "uint":
		return decodeAs[uint](raw)
	case "uint8":
		return decodeAs[uint8](raw)
	case "uint16":
		return decodeAs[uint16](raw)
	case "uint32":
		return decodeAs[uint32](raw)
	case "uint64":
		return decodeAs[uint64](raw)
	case "float32":
		return decodeAs[float32](raw)
	case "float64":
		return decodeAs[float64](raw)
	case "bytes":
		return decodeAs[[]byte](raw)
	case typeJSON:
		return raw, nil
	default:
		return nil, fmt.Errorf("unknown type tag %q", tag)
	}
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
