package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	messages []PlatformMessage
	answer   func(PlatformMessage)
}

func (s *recordingSink) HandleMessage(message PlatformMessage, inputBlock, inputUnblock func()) {
	if inputBlock != nil {
		inputBlock()
	}
	s.messages = append(s.messages, message)
	if s.answer != nil {
		s.answer(message)
	}
	if inputUnblock != nil {
		inputUnblock()
	}
}

func TestLoopback_DeliverAndRespond(t *testing.T) {
	l := NewLoopback()
	sink := &recordingSink{}
	sink.answer = func(m PlatformMessage) {
		require.NoError(t, l.SendPlatformMessageResponse(m.ResponseHandle, []byte("pong")))
	}
	l.Attach(sink)

	handle := l.Deliver("ping", []byte("ping"))

	require.Len(t, sink.messages, 1)
	assert.True(t, sink.messages[0].ExpectsReply())
	assert.Equal(t, handle, sink.messages[0].ResponseHandle)
	assert.False(t, l.Pending(handle))

	responses := l.Responses(handle)
	require.Len(t, responses, 1)
	assert.Equal(t, "pong", string(responses[0].Payload))
	assert.False(t, responses[0].NotImplemented)
}

func TestLoopback_HandlesAreUnique(t *testing.T) {
	l := NewLoopback()
	l.Attach(&recordingSink{})

	a := l.Deliver("c", nil)
	b := l.Deliver("c", nil)
	assert.NotEqual(t, a, b)
	assert.True(t, l.Pending(a))
	assert.True(t, l.Pending(b))
}

func TestLoopback_ResponseHandleReleased(t *testing.T) {
	l := NewLoopback()
	l.Attach(&recordingSink{})
	handle := l.Deliver("c", nil)

	require.NoError(t, l.SendPlatformMessageResponse(handle, nil))
	assert.Error(t, l.SendPlatformMessageResponse(handle, []byte("again")))
	assert.Error(t, l.SendPlatformMessageResponse("never-issued", nil))

	responses := l.Responses(handle)
	require.Len(t, responses, 1)
	assert.True(t, responses[0].NotImplemented)
}

func TestLoopback_DeliverNoReply(t *testing.T) {
	l := NewLoopback()
	sink := &recordingSink{}
	l.Attach(sink)

	l.DeliverNoReply("lifecycle", []byte("resumed"))

	require.Len(t, sink.messages, 1)
	assert.False(t, sink.messages[0].ExpectsReply())
}

func TestLoopback_PassesInputCallbacks(t *testing.T) {
	l := NewLoopback()
	var calls []string
	l.InputBlock = func() { calls = append(calls, "block") }
	l.InputUnblock = func() { calls = append(calls, "unblock") }
	l.Attach(&recordingSink{})

	l.DeliverNoReply("c", nil)
	assert.Equal(t, []string{"block", "unblock"}, calls)
}

func TestLoopback_NoSink(t *testing.T) {
	l := NewLoopback()
	handle := l.Deliver("c", nil)
	assert.True(t, l.Pending(handle))
}

func TestLoopback_SendPlatformMessage(t *testing.T) {
	l := NewLoopback()
	payload := []byte("event")
	require.NoError(t, l.SendPlatformMessage("flutter/lifecycle", payload))
	payload[0] = 'X'

	sent := l.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "flutter/lifecycle", sent[0].Channel)
	assert.Equal(t, "event", string(sent[0].Payload))
}
