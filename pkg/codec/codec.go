// Package codec translates between channel payload bytes and structured values.
//
// A MessageCodec handles a single value per message. A MethodCodec layers method
// call and reply envelope semantics on top of a message codec.
package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode is wrapped by every decoding failure.
	ErrDecode = errors.New("codec: unable to decode message")
	// ErrEncode is wrapped by every encoding failure.
	ErrEncode = errors.New("codec: unable to encode message")
	// ErrInvalidMethodCall is returned when a decoded message is not a method call.
	ErrInvalidMethodCall = fmt.Errorf("%w: not a method call", ErrDecode)
)

// MessageCodec encodes and decodes one value per message.
//
// Implementations must be stateless and safe for concurrent use. Decoding either
// consumes the whole buffer or fails; encoding either produces a complete buffer
// or fails.
type MessageCodec[T any] interface {
	EncodeMessage(message T) ([]byte, error)
	DecodeMessage(data []byte) (T, error)
}

// MethodCodec encodes method calls and the three reply envelopes.
type MethodCodec[T any] interface {
	DecodeMethodCall(data []byte) (MethodCall[T], error)
	EncodeMethodCall(call MethodCall[T]) ([]byte, error)
	EncodeSuccessEnvelope(result T) ([]byte, error)
	// EncodeErrorEnvelope encodes a nil message as the codec's null value,
	// distinct from an empty message.
	EncodeErrorEnvelope(code string, message *string, details T) ([]byte, error)
	// EncodeNotImplemented returns nil: the absence of a payload is the signal.
	EncodeNotImplemented() []byte
}

// MethodCall is a decoded {method, arguments} request. It is immutable.
type MethodCall[T any] struct {
	method    string
	arguments T
}

// NewMethodCall creates a method call.
func NewMethodCall[T any](method string, arguments T) MethodCall[T] {
	return MethodCall[T]{method: method, arguments: arguments}
}

// Method returns the method name.
func (c MethodCall[T]) Method() string { return c.method }

// Arguments returns the call arguments; the zero value when none were sent.
func (c MethodCall[T]) Arguments() T { return c.arguments }

// MethodError is a structured failure reply.
type MethodError struct {
	Code    string
	Message *string
	Details any
}

func (e *MethodError) Error() string {
	if e.Message == nil {
		return e.Code
	}
	return e.Code + ": " + *e.Message
}

// NewMethodError creates a MethodError with a message and no details.
func NewMethodError(code, message string) *MethodError {
	return &MethodError{Code: code, Message: &message}
}

// StringPtr returns a pointer to s, for optional error messages.
func StringPtr(s string) *string {
	return &s
}
