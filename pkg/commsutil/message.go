package commsutil

import (
	comms "github.com/nats-io/nats.go"
)

// Header names carried on channel messages.
const (
	HeaderChannel        = "Fde-Channel"
	HeaderNotImplemented = "Fde-Not-Implemented"
)

// NewChannelMsg builds a message for channel on subject. The payload is
// opaque.
func NewChannelMsg(subject, channel string, payload []byte) *comms.Msg {
	msg := comms.NewMsg(subject)
	msg.Header.Set(HeaderChannel, channel)
	msg.Data = payload
	return msg
}

// NewResponseMsg builds a reply on subject. A nil payload is sent as an empty
// body marked with HeaderNotImplemented, which keeps it distinct from an
// empty but present response.
func NewResponseMsg(subject string, payload []byte) *comms.Msg {
	msg := comms.NewMsg(subject)
	if payload == nil {
		msg.Header.Set(HeaderNotImplemented, "1")
		return msg
	}
	msg.Data = payload
	return msg
}

// ChannelOf returns the channel name a message was sent on, or "" if the
// header is missing.
func ChannelOf(msg *comms.Msg) string {
	if msg.Header == nil {
		return ""
	}
	return msg.Header.Get(HeaderChannel)
}

// ResponsePayload returns a reply's payload, or nil if the reply was marked
// not implemented.
func ResponsePayload(msg *comms.Msg) []byte {
	if msg.Header != nil && msg.Header.Get(HeaderNotImplemented) != "" {
		return nil
	}
	if msg.Data == nil {
		return []byte{}
	}
	return msg.Data
}
