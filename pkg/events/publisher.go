package events

import "context"

// EventPublisher publishes channel change events.
type EventPublisher interface {
	PublishChannelChanged(ctx context.Context, event *ChannelChangedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for loopback runs).
type NoOpPublisher struct{}

// PublishChannelChanged is a no-op.
func (p *NoOpPublisher) PublishChannelChanged(_ context.Context, _ *ChannelChangedEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *ChannelChangedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *ChannelChangedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishChannelChanged calls the callback.
func (p *CallbackPublisher) PublishChannelChanged(ctx context.Context, event *ChannelChangedEvent) error {
	return p.callback(ctx, event)
}
