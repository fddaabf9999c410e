package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/desktop-embedding/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisher publishes channel change events to <prefix>.events.channels,
// so remote engines can discover what the host answers.
type CommsPublisher struct {
	nc      *comms.Conn
	subject string
}

// NewCommsPublisher creates a CommsPublisher. An empty prefix uses
// commsutil.DefaultSubjectPrefix.
func NewCommsPublisher(nc *comms.Conn, prefix string) *CommsPublisher {
	if prefix == "" {
		prefix = commsutil.DefaultSubjectPrefix
	}
	return &CommsPublisher{nc: nc, subject: commsutil.BuildEventSubject(prefix)}
}

// Subject returns the subject events are published on.
func (p *CommsPublisher) Subject() string {
	return p.subject
}

// PublishChannelChanged publishes event as JSON.
func (p *CommsPublisher) PublishChannelChanged(_ context.Context, event *ChannelChangedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	if err := p.nc.Publish(p.subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.subject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published %s event for %s", commsPublisherLogPrefix, event.Change, event.Channel))
	return nil
}
