// Package events defines channel change events and publishers for them.
package events

// Change kinds.
const (
	ChangeRegistered   = "registered"
	ChangeUnregistered = "unregistered"
)

// ChannelChangedEvent is emitted when a plugin channel is added to or removed
// from the host.
type ChannelChangedEvent struct {
	Channel       string `json:"channel"`
	Change        string `json:"change"`
	InputBlocking bool   `json:"inputBlocking"`
	APIVersion    string `json:"apiVersion,omitempty"`
	HostID        string `json:"hostId,omitempty"`
	Timestamp     string `json:"timestamp"`
}
