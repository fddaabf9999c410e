package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const logPrefix = "engine:loopback"

// Response is a reply the host sent for a delivered message.
type Response struct {
	Handle  ResponseHandle
	Payload []byte
	// NotImplemented is set when the host answered with an absent payload.
	NotImplemented bool
}

// Loopback is an in-process Engine. It records everything the host sends and
// delivers messages to an attached MessageSink on the caller's goroutine.
type Loopback struct {
	mu        sync.Mutex
	sink      MessageSink
	sent      []PlatformMessage
	responses []Response
	pending   map[ResponseHandle]bool

	// InputBlock and InputUnblock are passed to the sink on every delivery.
	InputBlock   func()
	InputUnblock func()
}

// NewLoopback creates an empty Loopback engine.
func NewLoopback() *Loopback {
	return &Loopback{pending: make(map[ResponseHandle]bool)}
}

// Attach sets the sink that receives delivered messages.
func (l *Loopback) Attach(sink MessageSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

// Deliver sends a message to the sink with a fresh response handle and
// returns that handle.
func (l *Loopback) Deliver(channel string, payload []byte) ResponseHandle {
	handle := ResponseHandle(uuid.NewString())
	l.mu.Lock()
	l.pending[handle] = true
	sink := l.sink
	l.mu.Unlock()

	l.dispatch(sink, PlatformMessage{Channel: channel, Payload: payload, ResponseHandle: handle})
	return handle
}

// DeliverNoReply sends a message that does not expect a response.
func (l *Loopback) DeliverNoReply(channel string, payload []byte) {
	l.mu.Lock()
	sink := l.sink
	l.mu.Unlock()
	l.dispatch(sink, PlatformMessage{Channel: channel, Payload: payload})
}

func (l *Loopback) dispatch(sink MessageSink, msg PlatformMessage) {
	if sink == nil {
		slog.Warn(fmt.Sprintf("%s - no sink attached, dropping message on %s", logPrefix, msg.Channel))
		return
	}
	sink.HandleMessage(msg, l.InputBlock, l.InputUnblock)
}

// SendPlatformMessage records an outbound message.
func (l *Loopback) SendPlatformMessage(channel string, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, PlatformMessage{Channel: channel, Payload: append([]byte(nil), payload...)})
	return nil
}

// SendPlatformMessageResponse records a response. Answering an unknown or
// already answered handle is an error, as a real engine would have freed it.
func (l *Loopback) SendPlatformMessageResponse(handle ResponseHandle, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.pending[handle] {
		return fmt.Errorf("%s - unknown or released response handle %s", logPrefix, handle)
	}
	delete(l.pending, handle)
	l.responses = append(l.responses, Response{
		Handle:         handle,
		Payload:        append([]byte(nil), payload...),
		NotImplemented: payload == nil,
	})
	return nil
}

// Sent returns the outbound messages recorded so far.
func (l *Loopback) Sent() []PlatformMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]PlatformMessage(nil), l.sent...)
}

// Responses returns every response recorded for handle.
func (l *Loopback) Responses(handle ResponseHandle) []Response {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Response
	for _, r := range l.responses {
		if r.Handle == handle {
			out = append(out, r)
		}
	}
	return out
}

// Pending reports whether handle is still waiting for a response.
func (l *Loopback) Pending(handle ResponseHandle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending[handle]
}
