package plugin

import (
	"github.com/morezero/desktop-embedding/pkg/messenger"
)

var _ messenger.BinaryMessenger = (*PluginMessenger)(nil)

// PluginMessenger is the BinaryMessenger a Registerer installs its extra
// channels through. The registrar remembers every channel installed this way
// and clears them when the plugin is removed or fails to register.
//
// Extra channels follow messenger semantics: installing on an occupied channel
// replaces its handler.
type PluginMessenger struct {
	r     *Registrar
	owner string
}

// Send forwards payload to the engine on ch.
func (m *PluginMessenger) Send(ch string, payload []byte) error {
	return m.r.dispatcher.Send(ch, payload)
}

// SetMessageHandler installs handler for ch on behalf of the owning plugin.
// A nil handler clears ch and stops tracking it.
func (m *PluginMessenger) SetMessageHandler(ch string, handler messenger.Handler) {
	m.r.dispatcher.SetMessageHandler(ch, handler)

	m.r.mu.Lock()
	defer m.r.mu.Unlock()
	if handler == nil {
		delete(m.r.extra[m.owner], ch)
		return
	}
	if m.r.extra[m.owner] == nil {
		m.r.extra[m.owner] = make(map[string]bool)
	}
	m.r.extra[m.owner][ch] = true
}

// EnableInputBlockingForChannel marks ch as input-blocking. Call it after the
// channel's handler is installed.
func (m *PluginMessenger) EnableInputBlockingForChannel(ch string) {
	m.r.dispatcher.EnableInputBlockingForChannel(ch)
}
