// Package channel provides typed channels on top of a BinaryMessenger.
package channel

import (
	"fmt"
	"log/slog"

	"github.com/morezero/desktop-embedding/pkg/codec"
	"github.com/morezero/desktop-embedding/pkg/messenger"
)

const logPrefix = "channel:method_channel"

// MethodCallHandler handles one inbound method call. It must resolve result
// exactly once, either before returning or later.
type MethodCallHandler[T any] func(call codec.MethodCall[T], result MethodResult[T])

// MethodChannel exchanges method calls with the engine on a named channel.
//
// The messenger and codec are borrowed and must outlive the channel.
type MethodChannel[T any] struct {
	messenger messenger.BinaryMessenger
	name      string
	codec     codec.MethodCodec[T]
}

// NewMethodChannel creates a channel named name using methodCodec over m.
func NewMethodChannel[T any](m messenger.BinaryMessenger, name string, methodCodec codec.MethodCodec[T]) *MethodChannel[T] {
	return &MethodChannel[T]{messenger: m, name: name, codec: methodCodec}
}

// Name returns the channel name.
func (c *MethodChannel[T]) Name() string {
	return c.name
}

// InvokeMethod sends a method call to the engine. No reply is delivered.
func (c *MethodChannel[T]) InvokeMethod(method string, arguments T) error {
	data, err := c.codec.EncodeMethodCall(codec.NewMethodCall(method, arguments))
	if err != nil {
		return fmt.Errorf("%s - failed to encode %s on channel %s: %w", logPrefix, method, c.name, err)
	}
	if err := c.messenger.Send(c.name, data); err != nil {
		return fmt.Errorf("%s - failed to send %s on channel %s: %w", logPrefix, method, c.name, err)
	}
	return nil
}

// SetMethodCallHandler registers handler for calls arriving on this channel,
// replacing any previous one. A nil handler unregisters the channel.
func (c *MethodChannel[T]) SetMethodCallHandler(handler MethodCallHandler[T]) {
	if handler == nil {
		c.messenger.SetMessageHandler(c.name, nil)
		return
	}
	c.messenger.SetMessageHandler(c.name, c.MessageHandler(handler))
}

// MessageHandler wraps handler as the raw messenger.Handler that
// SetMethodCallHandler installs, for callers that install it themselves.
func (c *MethodChannel[T]) MessageHandler(handler MethodCallHandler[T]) messenger.Handler {
	methodCodec := c.codec
	name := c.name
	return func(payload []byte, reply messenger.Reply) {
		result := NewEngineMethodResult(reply, methodCodec)
		call, err := methodCodec.DecodeMethodCall(payload)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - unable to construct method call from message on channel %s: %v", logPrefix, name, err))
			result.NotImplemented()
			return
		}
		handler(call, result)
	}
}
