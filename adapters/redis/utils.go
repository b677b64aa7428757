package redis

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrPointerType = errors.New("pointer type is not allowed")
)

// DefaultParseToMessage 以 msgpack + base64 編碼成 stream 的單一 data 欄位
func DefaultParseToMessage[T any](data T) (map[string]any, error) {
	if reflect.TypeOf(data).Kind() == reflect.Ptr {
		return nil, ErrPointerType
	}
	bytes, err := msgpack.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal error: %w", err)
	}
	return map[string]any{
		"data": base64.StdEncoding.EncodeToString(bytes),
	}, nil
}

// DefaultParseFromMessage 是 DefaultParseToMessage 的反向操作，空訊息回傳零值
func DefaultParseFromMessage[T any](message map[string]any) (T, error) {
	var result T
	if reflect.TypeOf(result).Kind() == reflect.Ptr {
		return result, ErrPointerType
	}
	if len(message) == 0 {
		return result, nil
	}

	var encoded string
	switch v := message["data"].(type) {
	case string:
		encoded = v
	case []byte:
		encoded = string(v)
	default:
		return result, fmt.Errorf("data field not found or invalid type")
	}

	bytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return result, fmt.Errorf("base64 decode error: %w", err)
	}
	if err := msgpack.Unmarshal(bytes, &result); err != nil {
		return result, fmt.Errorf("msgpack unmarshal error: %w", err)
	}
	return result, nil
}
