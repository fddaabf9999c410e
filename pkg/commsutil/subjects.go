package commsutil

import (
	"fmt"
	"strings"
)

// DefaultSubjectPrefix is the subject root when none is configured.
const DefaultSubjectPrefix = "fde"

// Directions under the subject prefix.
const (
	DirectionHost   = "host"
	DirectionEngine = "engine"
)

var tokenReplacer = strings.NewReplacer(".", "_", "/", "_", " ", "_", "*", "_", ">", "_")

// ChannelToken maps a channel name to a single subject token. The mapping is
// lossy; the exact name travels in the HeaderChannel header.
func ChannelToken(channel string) string {
	if channel == "" {
		return "_"
	}
	return tokenReplacer.Replace(channel)
}

// BuildChannelSubject builds the subject a message for channel is published
// on, e.g. fde.engine.plugins_flutter_io_shared_preferences.
func BuildChannelSubject(prefix, direction, channel string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, direction, ChannelToken(channel))
}

// BuildWildcardSubject builds the subscription subject for every channel in
// one direction.
func BuildWildcardSubject(prefix, direction string) string {
	return fmt.Sprintf("%s.%s.>", prefix, direction)
}

// BuildEventSubject builds the subject channel change events are published on.
func BuildEventSubject(prefix string) string {
	return prefix + ".events.channels"
}
