package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/morezero/desktop-embedding/pkg/channel"
	"github.com/morezero/desktop-embedding/pkg/codec"
	"github.com/morezero/desktop-embedding/pkg/dispatcher"
	"github.com/morezero/desktop-embedding/pkg/events"
	"github.com/morezero/desktop-embedding/pkg/messenger"
	"github.com/morezero/desktop-embedding/pkg/semver"
)

const logPrefix = "plugin:registrar"

var (
	// ErrChannelInUse is returned when a plugin's channel already has a plugin or handler.
	ErrChannelInUse = errors.New("plugin: channel already in use")
	// ErrInvalidPlugin is returned for nil plugins or plugins with no channel name.
	ErrInvalidPlugin = errors.New("plugin: invalid plugin")
	// ErrIncompatibleVersion is returned when a plugin's API version is outside the host's range.
	ErrIncompatibleVersion = errors.New("plugin: incompatible API version")
)

// Options configures a Registrar.
type Options struct {
	// APIConstraint is the range of plugin API versions the host accepts, for
	// example "^1.0.0". Empty accepts every plugin. Plugins that do not
	// implement Versioned are always accepted.
	APIConstraint string
	// Events receives a ChannelChangedEvent per plugin added or removed. Nil
	// publishes nothing.
	Events events.EventPublisher
	// HostID is stamped on published events.
	HostID string
	// DefaultCodec is used for plugins that do not implement CodecProvider.
	// Nil means JSON.
	DefaultCodec codec.MethodCodec[any]
}

// Registrar adds plugins to a Dispatcher. Unlike raw handler registration,
// adding a plugin on an occupied channel is rejected.
type Registrar struct {
	dispatcher *dispatcher.Dispatcher
	constraint *semver.Constraint
	events     events.EventPublisher
	hostID     string
	codec      codec.MethodCodec[any]

	mu      sync.Mutex
	plugins map[string]Plugin
	// extra holds the channels each plugin installed through its PluginMessenger.
	extra map[string]map[string]bool
}

// NewRegistrar creates a Registrar over d.
func NewRegistrar(d *dispatcher.Dispatcher, opts Options) (*Registrar, error) {
	r := &Registrar{
		dispatcher: d,
		plugins:    make(map[string]Plugin),
		extra:      make(map[string]map[string]bool),
		events:     opts.Events,
		hostID:     opts.HostID,
		codec:      opts.DefaultCodec,
	}
	if r.events == nil {
		r.events = &events.NoOpPublisher{}
	}
	if opts.APIConstraint != "" {
		c, err := semver.ParseConstraint(opts.APIConstraint)
		if err != nil {
			return nil, fmt.Errorf("%s - %w", logPrefix, err)
		}
		r.constraint = c
	}
	return r, nil
}

// Messenger returns the messenger plugins use for their own channels.
func (r *Registrar) Messenger() messenger.BinaryMessenger {
	return r.dispatcher
}

// EnableInputBlockingForChannel marks ch as input-blocking. Call it after the
// channel's handler is installed.
func (r *Registrar) EnableInputBlockingForChannel(ch string) {
	r.dispatcher.EnableInputBlockingForChannel(ch)
}

// AddPlugin installs p's method channel and takes ownership of p.
func (r *Registrar) AddPlugin(p Plugin) error {
	if p == nil || p.Channel() == "" {
		return ErrInvalidPlugin
	}
	name := p.Channel()
	if err := r.checkVersion(p); err != nil {
		return err
	}

	handler := channel.NewMethodChannel(r.dispatcher, name, codecFor(p, r.codec)).MessageHandler(p.HandleMethodCall)
	info := describe(p)

	// Check and install are one dispatcher step.
	r.mu.Lock()
	if _, exists := r.plugins[name]; exists || !r.dispatcher.SetMessageHandlerIfAbsent(name, handler) {
		r.mu.Unlock()
		slog.Warn(fmt.Sprintf("%s - rejected plugin, channel %s is already in use", logPrefix, name))
		return fmt.Errorf("%w: %s", ErrChannelInUse, name)
	}
	r.plugins[name] = p
	if info.InputBlocking {
		r.dispatcher.EnableInputBlockingForChannel(name)
	}
	r.mu.Unlock()

	if reg, ok := p.(Registerer); ok {
		if err := reg.Register(&PluginMessenger{r: r, owner: name}); err != nil {
			r.remove(name)
			return fmt.Errorf("%s - plugin on %s failed to register: %w", logPrefix, name, err)
		}
	}

	slog.Info(fmt.Sprintf("%s - registered plugin on %s (inputBlocking=%v)", logPrefix, name, info.InputBlocking))
	r.publish(info, events.ChangeRegistered)
	return nil
}

// RemovePlugin unregisters the plugin on ch along with the extra channels it
// installed. It reports whether a plugin was registered there.
func (r *Registrar) RemovePlugin(ch string) bool {
	r.mu.Lock()
	p, ok := r.plugins[ch]
	r.mu.Unlock()
	if !ok {
		return false
	}
	info := describe(p)
	r.remove(ch)
	slog.Info(fmt.Sprintf("%s - removed plugin on %s", logPrefix, ch))
	r.publish(info, events.ChangeUnregistered)
	return true
}

// Plugins describes every registered plugin, sorted by channel.
func (r *Registrar) Plugins() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Info, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, describe(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

func (r *Registrar) checkVersion(p Plugin) error {
	v, ok := p.(Versioned)
	if !ok || r.constraint == nil {
		return nil
	}
	compatible, err := r.constraint.Check(v.APIVersion())
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIncompatibleVersion, p.Channel(), err)
	}
	if !compatible {
		return fmt.Errorf("%w: %s targets %s, host accepts %s", ErrIncompatibleVersion, p.Channel(), v.APIVersion(), r.constraint)
	}
	return nil
}

func (r *Registrar) publish(info Info, change string) {
	event := &events.ChannelChangedEvent{
		Channel:       info.Channel,
		Change:        change,
		InputBlocking: info.InputBlocking,
		APIVersion:    info.APIVersion,
		HostID:        r.hostID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.events.PublishChannelChanged(context.Background(), event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s event for %s: %v", logPrefix, change, info.Channel, err))
	}
}

// remove clears the plugin's main channel and every extra channel it installed.
func (r *Registrar) remove(name string) {
	r.mu.Lock()
	channels := []string{name}
	for ch := range r.extra[name] {
		channels = append(channels, ch)
	}
	delete(r.plugins, name)
	delete(r.extra, name)
	r.mu.Unlock()

	for _, ch := range channels {
		r.dispatcher.SetMessageHandler(ch, nil)
	}
}
