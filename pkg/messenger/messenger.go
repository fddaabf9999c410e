// Package messenger defines the byte-level transport between the host and the engine.
package messenger

// Reply answers one inbound message. A nil payload tells the engine the
// message was not handled.
type Reply func(payload []byte)

// Handler receives an inbound payload on a channel. It must call reply exactly
// once, either before returning or later.
type Handler func(payload []byte, reply Reply)

// BinaryMessenger sends raw payloads to the engine and routes raw payloads
// from the engine to per-channel handlers.
type BinaryMessenger interface {
	// Send transmits payload on channel. No reply is delivered; the error only
	// reports a local transport failure.
	Send(channel string, payload []byte) error
	// SetMessageHandler installs handler for channel, replacing any existing
	// one. A nil handler unregisters the channel. The messenger keeps the
	// handler reachable for as long as it is registered.
	SetMessageHandler(channel string, handler Handler)
}
