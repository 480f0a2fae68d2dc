package cache

import (
	"encoding"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Decoder turns raw stored bytes into a typed value.
type Decoder[T any] func([]byte) (T, error)

// EncodeValue renders data in the backend's native encoding: text as UTF-8,
// bytes verbatim, integers and floats as decimal text.
func EncodeValue(data any) ([]byte, error) {
	switch v := data.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return cloneBytes(v), nil
	case int:
		return strconv.AppendInt(nil, int64(v), 10), nil
	case int8:
		return strconv.AppendInt(nil, int64(v), 10), nil
	case int16:
		return strconv.AppendInt(nil, int64(v), 10), nil
	case int32:
		return strconv.AppendInt(nil, int64(v), 10), nil
	case int64:
		return strconv.AppendInt(nil, v, 10), nil
	case uint:
		return strconv.AppendUint(nil, uint64(v), 10), nil
	case uint8:
		return strconv.AppendUint(nil, uint64(v), 10), nil
	case uint16:
		return strconv.AppendUint(nil, uint64(v), 10), nil
	case uint32:
		return strconv.AppendUint(nil, uint64(v), 10), nil
	case uint64:
		return strconv.AppendUint(nil, v, 10), nil
	case float32:
		return strconv.AppendFloat(nil, float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.AppendFloat(nil, v, 'f', -1, 64), nil
	case encoding.BinaryMarshaler:
		return v.MarshalBinary()
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, data)
	}
}

// DecodeBytes returns the stored bytes unchanged.
func DecodeBytes(body []byte) ([]byte, error) {
	return body, nil
}

// DecodeString decodes UTF-8 text.
func DecodeString(body []byte) (string, error) {
	if !utf8.Valid(body) {
		return "", fmt.Errorf("decode string: invalid utf-8")
	}
	return string(body), nil
}

// DecodeInt parses a base-10 int64.
func DecodeInt(body []byte) (int64, error) {
	n, err := strconv.ParseInt(string(body), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode int: %w", err)
	}
	return n, nil
}

// DecodeFloat parses a float64.
func DecodeFloat(body []byte) (float64, error) {
	f, err := strconv.ParseFloat(string(body), 64)
	if err != nil {
		return 0, fmt.Errorf("decode float: %w", err)
	}
	return f, nil
}
