package codec

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

const jsonLogPrefix = "codec:json"

// JSONMessageCodec encodes values as JSON text.
//
// Representable values are nil, bool, float64, string, []any and map[string]any,
// plus anything encoding/json can marshal. Decoding always yields the former set.
type JSONMessageCodec struct{}

var jsonMessageCodec = &JSONMessageCodec{}

// JSONMessage returns the shared JSON message codec.
func JSONMessage() *JSONMessageCodec {
	return jsonMessageCodec
}

// EncodeMessage encodes message as JSON.
func (c *JSONMessageCodec) EncodeMessage(message any) ([]byte, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return data, nil
}

// DecodeMessage parses data as exactly one JSON value.
func (c *JSONMessageCodec) DecodeMessage(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		slog.Debug(fmt.Sprintf("%s - unable to parse JSON message: %v", jsonLogPrefix, err))
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return v, nil
}
