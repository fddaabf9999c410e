// Package plugin registers feature plugins with the host and owns them for
// the host's lifetime.
package plugin

import (
	"github.com/morezero/desktop-embedding/pkg/channel"
	"github.com/morezero/desktop-embedding/pkg/codec"
)

// Plugin answers method calls on one channel.
type Plugin interface {
	// Channel is the name of the plugin's method channel.
	Channel() string
	// HandleMethodCall must resolve result exactly once.
	HandleMethodCall(call codec.MethodCall[any], result channel.MethodResult[any])
}

// InputBlocker is implemented by plugins whose calls must block host input
// while they run (modal dialogs, for example).
type InputBlocker interface {
	InputBlocking() bool
}

// CodecProvider is implemented by plugins that do not use the registrar's
// default method codec.
type CodecProvider interface {
	Codec() codec.MethodCodec[any]
}

// Versioned is implemented by plugins that declare the host API version they target.
type Versioned interface {
	APIVersion() string
}

// Registerer is implemented by plugins that need channels beyond their main
// method channel. Register is called once the main channel is installed and
// must install extra channels through m so they are cleared with the plugin.
type Registerer interface {
	Register(m *PluginMessenger) error
}

// Info describes a registered plugin.
type Info struct {
	Channel       string `json:"channel"`
	InputBlocking bool   `json:"inputBlocking"`
	APIVersion    string `json:"apiVersion,omitempty"`
}

func describe(p Plugin) Info {
	info := Info{Channel: p.Channel()}
	if b, ok := p.(InputBlocker); ok {
		info.InputBlocking = b.InputBlocking()
	}
	if v, ok := p.(Versioned); ok {
		info.APIVersion = v.APIVersion()
	}
	return info
}

func codecFor(p Plugin, fallback codec.MethodCodec[any]) codec.MethodCodec[any] {
	if cp, ok := p.(CodecProvider); ok {
		if c := cp.Codec(); c != nil {
			return c
		}
	}
	if fallback != nil {
		return fallback
	}
	return codec.JSONMethod()
}
