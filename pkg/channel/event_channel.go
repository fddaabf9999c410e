package channel

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/desktop-embedding/pkg/codec"
	"github.com/morezero/desktop-embedding/pkg/messenger"
)

const eventLogPrefix = "channel:event_channel"

// Methods the engine invokes on an event channel.
const (
	MethodListen = "listen"
	MethodCancel = "cancel"
)

// EventSink emits events to the engine-side stream listener.
type EventSink[T any] interface {
	Success(event T)
	Error(code string, message *string, details T)
	// EndOfStream closes the stream; later events are dropped.
	EndOfStream()
}

// StreamHandler sets up and tears down an event stream.
type StreamHandler[T any] interface {
	// OnListen starts emitting events to events. A non-nil error rejects the listen.
	OnListen(arguments T, events EventSink[T]) *codec.MethodError
	OnCancel(arguments T) *codec.MethodError
}

// EventChannel exposes an event stream to the engine over method calls
// "listen" and "cancel". Events travel as success or error envelopes.
type EventChannel[T any] struct {
	messenger messenger.BinaryMessenger
	name      string
	codec     codec.MethodCodec[T]

	mu     sync.Mutex
	active *eventSink[T]
}

// NewEventChannel creates an event channel named name.
func NewEventChannel[T any](m messenger.BinaryMessenger, name string, methodCodec codec.MethodCodec[T]) *EventChannel[T] {
	return &EventChannel[T]{messenger: m, name: name, codec: methodCodec}
}

// SetStreamHandler installs handler. Nil unregisters the channel.
func (c *EventChannel[T]) SetStreamHandler(handler StreamHandler[T]) {
	method := NewMethodChannel[T](c.messenger, c.name, c.codec)
	if handler == nil {
		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
		method.SetMethodCallHandler(nil)
		return
	}
	method.SetMethodCallHandler(func(call codec.MethodCall[T], result MethodResult[T]) {
		switch call.Method() {
		case MethodListen:
			c.onListen(handler, call.Arguments(), result)
		case MethodCancel:
			c.onCancel(handler, call.Arguments(), result)
		default:
			result.NotImplemented()
		}
	})
}

func (c *EventChannel[T]) onListen(handler StreamHandler[T], arguments T, result MethodResult[T]) {
	var zero T
	c.mu.Lock()
	previous := c.active
	c.active = nil
	c.mu.Unlock()
	if previous != nil {
		// A second listen without cancel happens on engine hot restart.
		if err := handler.OnCancel(zero); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to close existing event stream on %s: %v", eventLogPrefix, c.name, err))
		}
	}

	sink := &eventSink[T]{channel: c}
	c.mu.Lock()
	c.active = sink
	c.mu.Unlock()

	if err := handler.OnListen(arguments, sink); err != nil {
		c.mu.Lock()
		if c.active == sink {
			c.active = nil
		}
		c.mu.Unlock()
		result.Error(err.Code, err.Message, detailsOf[T](err))
		return
	}
	result.Success(zero)
}

func (c *EventChannel[T]) onCancel(handler StreamHandler[T], arguments T, result MethodResult[T]) {
	var zero T
	c.mu.Lock()
	previous := c.active
	c.active = nil
	c.mu.Unlock()
	if previous == nil {
		result.Error("error", codec.StringPtr("No active stream to cancel"), zero)
		return
	}
	if err := handler.OnCancel(arguments); err != nil {
		result.Error(err.Code, err.Message, detailsOf[T](err))
		return
	}
	result.Success(zero)
}

func (c *EventChannel[T]) isActive(sink *eventSink[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active == sink
}

func (c *EventChannel[T]) send(data []byte) {
	if err := c.messenger.Send(c.name, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to send event on %s: %v", eventLogPrefix, c.name, err))
	}
}

func detailsOf[T any](err *codec.MethodError) T {
	details, _ := err.Details.(T)
	return details
}

type eventSink[T any] struct {
	channel *EventChannel[T]
}

func (s *eventSink[T]) Success(event T) {
	if !s.channel.isActive(s) {
		return
	}
	data, err := s.channel.codec.EncodeSuccessEnvelope(event)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - unable to encode event on %s: %v", eventLogPrefix, s.channel.name, err))
		return
	}
	s.channel.send(data)
}

func (s *eventSink[T]) Error(code string, message *string, details T) {
	if !s.channel.isActive(s) {
		return
	}
	data, err := s.channel.codec.EncodeErrorEnvelope(code, message, details)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - unable to encode error event on %s: %v", eventLogPrefix, s.channel.name, err))
		return
	}
	s.channel.send(data)
}

func (s *eventSink[T]) EndOfStream() {
	c := s.channel
	c.mu.Lock()
	if c.active != s {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.mu.Unlock()
	c.send(nil)
}
