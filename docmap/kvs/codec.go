package kvs

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/nonibytes/docmap/docmap/document"
)

// Key is the set of types usable as map keys. Keys are stored as their
// canonical string form in a keyword field.
type Key interface {
	~string |
		~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

func formatKey[K Key](k K) string {
	v := reflect.ValueOf(k)
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32)
	default:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	}
}

func parseKey[K Key](s string) (K, error) {
	var k K
	v := reflect.ValueOf(&k).Elem()
	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return k, err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return k, err
		}
		v.SetUint(n)
	default:
		f, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return k, err
		}
		v.SetFloat(f)
	}
	return k, nil
}

// Codec converts values to and from the stored value field.
type Codec[V any] interface {
	Encode(name string, v V) (document.Field, error)
	Decode(f document.Field) (V, error)
}

type StringCodec struct{}

func (StringCodec) Encode(name string, v string) (document.Field, error) {
	return document.Field{Name: name, Kind: document.Stored, Value: v}, nil
}

func (StringCodec) Decode(f document.Field) (string, error) {
	switch v := f.Value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("expected string value, got %T", f.Value)
	}
}

type ShortCodec struct{}

func (ShortCodec) Encode(name string, v int16) (document.Field, error) {
	return document.Field{Name: name, Kind: document.Int, Value: int32(v)}, nil
}

func (ShortCodec) Decode(f document.Field) (int16, error) {
	v, ok := f.Value.(int32)
	if !ok || int32(int16(v)) != v {
		return 0, fmt.Errorf("expected short value, got %T %v", f.Value, f.Value)
	}
	return int16(v), nil
}

type IntCodec struct{}

func (IntCodec) Encode(name string, v int32) (document.Field, error) {
	return document.Field{Name: name, Kind: document.Int, Value: v}, nil
}

func (IntCodec) Decode(f document.Field) (int32, error) {
	v, ok := f.Value.(int32)
	if !ok {
		return 0, fmt.Errorf("expected int value, got %T", f.Value)
	}
	return v, nil
}

type LongCodec struct{}

func (LongCodec) Encode(name string, v int64) (document.Field, error) {
	return document.Field{Name: name, Kind: document.Long, Value: v}, nil
}

func (LongCodec) Decode(f document.Field) (int64, error) {
	v, ok := f.Value.(int64)
	if !ok {
		return 0, fmt.Errorf("expected long value, got %T", f.Value)
	}
	return v, nil
}

type FloatCodec struct{}

func (FloatCodec) Encode(name string, v float32) (document.Field, error) {
	return document.Field{Name: name, Kind: document.Float, Value: v}, nil
}

func (FloatCodec) Decode(f document.Field) (float32, error) {
	v, ok := f.Value.(float32)
	if !ok {
		return 0, fmt.Errorf("expected float value, got %T", f.Value)
	}
	return v, nil
}

type DoubleCodec struct{}

func (DoubleCodec) Encode(name string, v float64) (document.Field, error) {
	return document.Field{Name: name, Kind: document.Double, Value: v}, nil
}

func (DoubleCodec) Decode(f document.Field) (float64, error) {
	v, ok := f.Value.(float64)
	if !ok {
		return 0, fmt.Errorf("expected double value, got %T", f.Value)
	}
	return v, nil
}

// MsgpackCodec stores any value as a msgpack blob.
type MsgpackCodec[V any] struct{}

func (MsgpackCodec[V]) Encode(name string, v V) (document.Field, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return document.Field{}, fmt.Errorf("marshal value: %w", err)
	}
	return document.Field{Name: name, Kind: document.Stored, Value: b}, nil
}

func (MsgpackCodec[V]) Decode(f document.Field) (V, error) {
	var v V
	b, ok := f.Value.([]byte)
	if !ok {
		return v, fmt.Errorf("expected binary value, got %T", f.Value)
	}
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}
