// Package bridge carries platform messages between the host and a remote
// engine over COMMS (NATS).
//
// Engine-to-host messages arrive on <prefix>.host.<channel token>; the exact
// channel name travels in the Fde-Channel header and the message's reply
// subject is its response handle. Host-to-engine messages are published on
// <prefix>.engine.<channel token>.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/desktop-embedding/pkg/commsutil"
	"github.com/morezero/desktop-embedding/pkg/engine"
)

const logPrefix = "bridge:bridge"

// ErrClosed is returned by operations on a closed Bridge.
var ErrClosed = errors.New("bridge: closed")

// Options configures a Bridge. Zero values use defaults.
type Options struct {
	// SubjectPrefix is the subject root, commsutil.DefaultSubjectPrefix if empty.
	SubjectPrefix string
	// InputBlock and InputUnblock are handed to the sink for every inbound
	// message. They run on the COMMS delivery goroutine.
	InputBlock   func()
	InputUnblock func()
}

// Bridge is an engine.Engine backed by a COMMS connection.
type Bridge struct {
	nc     *comms.Conn
	prefix string
	id     string
	opts   Options

	mu     sync.Mutex
	sink   engine.MessageSink
	sub    *comms.Subscription
	closed bool
	done   chan struct{}
}

// New creates a Bridge on nc. Nothing is received until Start or Serve.
func New(nc *comms.Conn, opts Options) *Bridge {
	prefix := opts.SubjectPrefix
	if prefix == "" {
		prefix = commsutil.DefaultSubjectPrefix
	}
	return &Bridge{
		nc:     nc,
		prefix: prefix,
		id:     uuid.NewString(),
		opts:   opts,
		done:   make(chan struct{}),
	}
}

// ID identifies this bridge instance in logs.
func (b *Bridge) ID() string {
	return b.id
}

// Attach sets the sink inbound messages are delivered to.
func (b *Bridge) Attach(sink engine.MessageSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
}

// Start subscribes to inbound messages. Calling Start on a running bridge is
// a no-op. A single subscription keeps delivery serialized.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.sub != nil {
		return nil
	}

	subject := commsutil.BuildWildcardSubject(b.prefix, commsutil.DirectionHost)
	sub, err := b.nc.Subscribe(subject, b.receive)
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
	}
	b.sub = sub
	slog.Info(fmt.Sprintf("%s - bridge %s listening on %s", logPrefix, b.id, subject))
	return nil
}

// Serve starts the bridge and blocks until ctx is cancelled or the bridge is
// closed.
func (b *Bridge) Serve(ctx context.Context) error {
	if err := b.Start(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return b.Close()
	case <-b.done:
		return nil
	}
}

// Close unsubscribes and rejects further sends. It does not close the
// underlying connection.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)

	if b.sub == nil {
		return nil
	}
	if err := b.sub.Unsubscribe(); err != nil && !errors.Is(err, comms.ErrConnectionClosed) {
		return fmt.Errorf("%s - failed to unsubscribe: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - bridge %s closed", logPrefix, b.id))
	return nil
}

// SendPlatformMessage publishes payload to the engine on channel.
func (b *Bridge) SendPlatformMessage(channel string, payload []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	subject := commsutil.BuildChannelSubject(b.prefix, commsutil.DirectionEngine, channel)
	if err := b.nc.PublishMsg(commsutil.NewChannelMsg(subject, channel, payload)); err != nil {
		return fmt.Errorf("%s - failed to publish to %s: %w", logPrefix, subject, err)
	}
	return nil
}

// SendPlatformMessageResponse publishes payload to the reply subject named by
// handle. A nil payload is sent as not implemented.
func (b *Bridge) SendPlatformMessageResponse(handle engine.ResponseHandle, payload []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	if handle == "" {
		return fmt.Errorf("%s - empty response handle", logPrefix)
	}
	if err := b.nc.PublishMsg(commsutil.NewResponseMsg(string(handle), payload)); err != nil {
		return fmt.Errorf("%s - failed to publish response: %w", logPrefix, err)
	}
	return nil
}

func (b *Bridge) receive(msg *comms.Msg) {
	b.mu.Lock()
	sink := b.sink
	b.mu.Unlock()

	ch := commsutil.ChannelOf(msg)
	if ch == "" {
		slog.Warn(fmt.Sprintf("%s - message on %s has no %s header", logPrefix, msg.Subject, commsutil.HeaderChannel))
	}
	if sink == nil {
		slog.Warn(fmt.Sprintf("%s - no sink attached, dropping message on %s", logPrefix, ch))
		return
	}

	sink.HandleMessage(engine.PlatformMessage{
		Channel:        ch,
		Payload:        msg.Data,
		ResponseHandle: engine.ResponseHandle(msg.Reply),
	}, b.opts.InputBlock, b.opts.InputUnblock)
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
