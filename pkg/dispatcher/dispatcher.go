// Package dispatcher routes platform messages from the engine to per-channel handlers.
package dispatcher

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/morezero/desktop-embedding/pkg/channel"
	"github.com/morezero/desktop-embedding/pkg/codec"
	"github.com/morezero/desktop-embedding/pkg/engine"
	"github.com/morezero/desktop-embedding/pkg/messenger"
)

const logPrefix = "dispatcher:dispatch"

// Dispatcher owns the channel-to-handler map and the set of input-blocking
// channels. It is the host's BinaryMessenger.
//
// Registration replaces silently; uniqueness is enforced one level up by the
// plugin registrar.
type Dispatcher struct {
	engine engine.Engine

	mu            sync.RWMutex
	handlers      map[string]messenger.Handler
	inputBlocking map[string]bool
}

// New creates a Dispatcher that answers through eng.
func New(eng engine.Engine) *Dispatcher {
	return &Dispatcher{
		engine:        eng,
		handlers:      make(map[string]messenger.Handler),
		inputBlocking: make(map[string]bool),
	}
}

// Send forwards payload to the engine on channel.
func (d *Dispatcher) Send(ch string, payload []byte) error {
	if err := d.engine.SendPlatformMessage(ch, payload); err != nil {
		return fmt.Errorf("%s - failed to send on %s: %w", logPrefix, ch, err)
	}
	return nil
}

// SetMessageHandler installs handler for ch, replacing any existing one. A nil
// handler unregisters the channel. Either way the channel's input-blocking
// flag is reset, so EnableInputBlockingForChannel must follow installation.
func (d *Dispatcher) SetMessageHandler(ch string, handler messenger.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.inputBlocking, ch)
	if handler == nil {
		delete(d.handlers, ch)
		slog.Debug(fmt.Sprintf("%s - handler removed for %s", logPrefix, ch))
		return
	}
	if _, exists := d.handlers[ch]; exists {
		slog.Debug(fmt.Sprintf("%s - replacing handler for %s", logPrefix, ch))
	}
	d.handlers[ch] = handler
}

// SetMessageHandlerIfAbsent installs handler for ch only if ch has no handler,
// checking and installing under one lock. It reports whether handler was
// installed. A nil handler is never installed.
func (d *Dispatcher) SetMessageHandlerIfAbsent(ch string, handler messenger.Handler) bool {
	if handler == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[ch]; exists {
		return false
	}
	delete(d.inputBlocking, ch)
	d.handlers[ch] = handler
	return true
}

// EnableInputBlockingForChannel marks ch so that the host's input is blocked
// while its handler runs.
func (d *Dispatcher) EnableInputBlockingForChannel(ch string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputBlocking[ch] = true
}

// IsInputBlocking reports whether ch is marked input-blocking.
func (d *Dispatcher) IsInputBlocking(ch string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.inputBlocking[ch]
}

// HasHandler reports whether a handler is registered for ch.
func (d *Dispatcher) HasHandler(ch string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[ch]
	return ok
}

// Channels returns the registered channel names, sorted.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandleMessage routes message to the handler for its channel.
//
// If the channel is input-blocking, inputBlock runs before the handler and
// inputUnblock after it, even if the handler panics. Only the synchronous part
// of the handler is bracketed. A message on a channel with no handler is
// answered as not implemented.
func (d *Dispatcher) HandleMessage(message engine.PlatformMessage, inputBlock, inputUnblock func()) {
	d.mu.RLock()
	handler, ok := d.handlers[message.Channel]
	blockInput := d.inputBlocking[message.Channel]
	d.mu.RUnlock()

	reply := d.replyFor(message)
	if !ok {
		channel.NewEngineMethodResult[any](reply, codec.JSONMethod()).NotImplemented()
		return
	}

	if blockInput {
		if inputBlock != nil {
			inputBlock()
		}
		if inputUnblock != nil {
			defer inputUnblock()
		}
	}
	handler(message.Payload, reply)
}

// replyFor builds the one-shot reply for message. Messages without a response
// handle get a reply that discards the payload.
func (d *Dispatcher) replyFor(message engine.PlatformMessage) messenger.Reply {
	if !message.ExpectsReply() {
		return func([]byte) {}
	}
	return newEngineReply(d.engine, message.Channel, message.ResponseHandle)
}
