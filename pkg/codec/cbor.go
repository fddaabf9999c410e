package codec

import (
	"fmt"
	"log/slog"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

const cborLogPrefix = "codec:cbor"

// CBORMessageCodec encodes values as CBOR (RFC 8949).
//
// Decoding yields nil, bool, int64, float64, string, []byte, []any and
// map[string]any. Maps with non-string keys fail to decode. Unsigned integers
// decode as int64, so encoding one above math.MaxInt64 fails.
type CBORMessageCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var cborMessageCodec = newCBORMessageCodec()

func newCBORMessageCodec() *CBORMessageCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("%s - invalid encode options: %v", cborLogPrefix, err))
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("%s - invalid decode options: %v", cborLogPrefix, err))
	}
	return &CBORMessageCodec{enc: enc, dec: dec}
}

// CBORMessage returns the shared CBOR message codec.
func CBORMessage() *CBORMessageCodec {
	return cborMessageCodec
}

// EncodeMessage encodes message as a single CBOR data item.
func (c *CBORMessageCodec) EncodeMessage(message any) ([]byte, error) {
	if err := checkIntRange(reflect.ValueOf(message)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	data, err := c.enc.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return data, nil
}

// DecodeMessage parses data as exactly one CBOR data item.
func (c *CBORMessageCodec) DecodeMessage(data []byte) (any, error) {
	var v any
	if err := c.dec.Unmarshal(data, &v); err != nil {
		slog.Debug(fmt.Sprintf("%s - unable to parse CBOR message: %v", cborLogPrefix, err))
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return v, nil
}

// checkIntRange rejects unsigned integers the decoder cannot read back.
func checkIntRange(v reflect.Value) error {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		if v.Uint() > math.MaxInt64 {
			return fmt.Errorf("unsigned integer %d overflows int64", v.Uint())
		}
	case reflect.Interface, reflect.Pointer:
		if !v.IsNil() {
			return checkIntRange(v.Elem())
		}
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := checkIntRange(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkIntRange(iter.Key()); err != nil {
				return err
			}
			if err := checkIntRange(iter.Value()); err != nil {
				return err
			}
		}
	}
	return nil
}
