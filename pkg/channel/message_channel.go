package channel

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/desktop-embedding/pkg/codec"
	"github.com/morezero/desktop-embedding/pkg/messenger"
)

const messageLogPrefix = "channel:message_channel"

// MessageReply answers a basic message. Only the first call is sent.
type MessageReply[T any] func(reply T)

// MessageHandler handles one inbound message and must call reply once.
type MessageHandler[T any] func(message T, reply MessageReply[T])

// BasicMessageChannel exchanges single encoded values with the engine.
type BasicMessageChannel[T any] struct {
	messenger messenger.BinaryMessenger
	name      string
	codec     codec.MessageCodec[T]
}

// NewBasicMessageChannel creates a message channel named name.
func NewBasicMessageChannel[T any](m messenger.BinaryMessenger, name string, messageCodec codec.MessageCodec[T]) *BasicMessageChannel[T] {
	return &BasicMessageChannel[T]{messenger: m, name: name, codec: messageCodec}
}

// Send encodes message and sends it to the engine.
func (c *BasicMessageChannel[T]) Send(message T) error {
	data, err := c.codec.EncodeMessage(message)
	if err != nil {
		return fmt.Errorf("%s - failed to encode message on channel %s: %w", messageLogPrefix, c.name, err)
	}
	if err := c.messenger.Send(c.name, data); err != nil {
		return fmt.Errorf("%s - failed to send message on channel %s: %w", messageLogPrefix, c.name, err)
	}
	return nil
}

// SetMessageHandler registers handler for this channel. Nil unregisters it.
func (c *BasicMessageChannel[T]) SetMessageHandler(handler MessageHandler[T]) {
	if handler == nil {
		c.messenger.SetMessageHandler(c.name, nil)
		return
	}
	messageCodec := c.codec
	name := c.name
	c.messenger.SetMessageHandler(name, func(payload []byte, reply messenger.Reply) {
		message, err := messageCodec.DecodeMessage(payload)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - unable to decode message on channel %s: %v", messageLogPrefix, name, err))
			reply(nil)
			return
		}
		var once sync.Once
		handler(message, func(response T) {
			sent := false
			once.Do(func() {
				sent = true
				data, err := messageCodec.EncodeMessage(response)
				if err != nil {
					slog.Error(fmt.Sprintf("%s - unable to encode reply on channel %s: %v", messageLogPrefix, name, err))
					data = nil
				}
				reply(data)
			})
			if !sent {
				slog.Error(fmt.Sprintf("%s - reply on channel %s can be sent only once, ignoring duplicate", messageLogPrefix, name))
			}
		})
	})
}
