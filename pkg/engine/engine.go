// Package engine describes the boundary to the embedded rendering engine.
//
// The engine is opaque: it delivers platform messages to the host and accepts
// platform messages and responses from it.
package engine

// ResponseHandle identifies a pending engine-side reply. The empty handle
// means the sender expects no reply.
type ResponseHandle string

// PlatformMessage is one inbound message from the engine.
type PlatformMessage struct {
	Channel        string
	Payload        []byte
	ResponseHandle ResponseHandle
}

// ExpectsReply reports whether the engine is waiting for a response.
func (m PlatformMessage) ExpectsReply() bool {
	return m.ResponseHandle != ""
}

// Engine is the set of primitives the host uses to talk to the engine.
type Engine interface {
	// SendPlatformMessage delivers payload on channel without expecting a reply.
	SendPlatformMessage(channel string, payload []byte) error
	// SendPlatformMessageResponse answers the message identified by handle.
	// A nil payload is an absent response. The engine frees handle after the call.
	SendPlatformMessageResponse(handle ResponseHandle, payload []byte) error
}

// MessageSink receives inbound platform messages, bracketing each handler call
// with the host's input block and unblock callbacks where required.
type MessageSink interface {
	HandleMessage(message PlatformMessage, inputBlock, inputUnblock func())
}
