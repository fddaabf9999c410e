package codec

import "fmt"

// Keys used in the method call encoding.
const (
	methodKey    = "method"
	argumentsKey = "args"
)

// envelopeMethodCodec implements MethodCodec over any structured message codec
// whose values are maps, lists and scalars.
type envelopeMethodCodec struct {
	messages MessageCodec[any]
}

// NewMethodCodec builds a MethodCodec on top of a structured message codec.
func NewMethodCodec(messages MessageCodec[any]) MethodCodec[any] {
	return &envelopeMethodCodec{messages: messages}
}

var (
	jsonMethodCodec = NewMethodCodec(JSONMessage())
	cborMethodCodec = NewMethodCodec(CBORMessage())
)

// JSONMethod returns the shared JSON method codec.
func JSONMethod() MethodCodec[any] {
	return jsonMethodCodec
}

// CBORMethod returns the shared CBOR method codec.
func CBORMethod() MethodCodec[any] {
	return cborMethodCodec
}

// Codec names accepted by MethodCodecByName.
const (
	NameJSON = "json"
	NameCBOR = "cbor"
)

// MethodCodecByName returns the shared method codec called name.
func MethodCodecByName(name string) (MethodCodec[any], error) {
	switch name {
	case NameJSON:
		return jsonMethodCodec, nil
	case NameCBOR:
		return cborMethodCodec, nil
	default:
		return nil, fmt.Errorf("codec: unknown method codec %q", name)
	}
}

func (c *envelopeMethodCodec) DecodeMethodCall(data []byte) (MethodCall[any], error) {
	message, err := c.messages.DecodeMessage(data)
	if err != nil {
		return MethodCall[any]{}, err
	}
	fields, ok := message.(map[string]any)
	if !ok {
		return MethodCall[any]{}, fmt.Errorf("%w: expected a map, got %T", ErrInvalidMethodCall, message)
	}
	method, ok := fields[methodKey].(string)
	if !ok || method == "" {
		return MethodCall[any]{}, fmt.Errorf("%w: missing or invalid %q field", ErrInvalidMethodCall, methodKey)
	}
	return NewMethodCall(method, fields[argumentsKey]), nil
}

func (c *envelopeMethodCodec) EncodeMethodCall(call MethodCall[any]) ([]byte, error) {
	if call.Method() == "" {
		return nil, fmt.Errorf("%w: empty method name", ErrEncode)
	}
	return c.messages.EncodeMessage(map[string]any{
		methodKey:    call.Method(),
		argumentsKey: call.Arguments(),
	})
}

func (c *envelopeMethodCodec) EncodeSuccessEnvelope(result any) ([]byte, error) {
	return c.messages.EncodeMessage([]any{result})
}

func (c *envelopeMethodCodec) EncodeErrorEnvelope(code string, message *string, details any) ([]byte, error) {
	var msg any
	if message != nil {
		msg = *message
	}
	return c.messages.EncodeMessage([]any{code, msg, details})
}

func (c *envelopeMethodCodec) EncodeNotImplemented() []byte {
	return nil
}

// DecodeEnvelope parses a reply payload produced by a MethodCodec built with
// NewMethodCodec. An empty payload reports notImplemented. An error envelope
// is returned as a *MethodError; a success envelope as result.
func DecodeEnvelope(messages MessageCodec[any], data []byte) (result any, methodErr *MethodError, notImplemented bool, err error) {
	if len(data) == 0 {
		return nil, nil, true, nil
	}
	decoded, err := messages.DecodeMessage(data)
	if err != nil {
		return nil, nil, false, err
	}
	envelope, ok := decoded.([]any)
	if !ok {
		return nil, nil, false, fmt.Errorf("%w: envelope is %T, not a list", ErrDecode, decoded)
	}
	switch len(envelope) {
	case 1:
		return envelope[0], nil, false, nil
	case 3:
		code, ok := envelope[0].(string)
		if !ok {
			return nil, nil, false, fmt.Errorf("%w: error code is %T, not a string", ErrDecode, envelope[0])
		}
		me := &MethodError{Code: code, Details: envelope[2]}
		switch m := envelope[1].(type) {
		case nil:
		case string:
			me.Message = &m
		default:
			return nil, nil, false, fmt.Errorf("%w: error message is %T", ErrDecode, m)
		}
		return nil, me, false, nil
	default:
		return nil, nil, false, fmt.Errorf("%w: envelope has %d elements", ErrDecode, len(envelope))
	}
}
