package dispatcher

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/desktop-embedding/pkg/engine"
	"github.com/morezero/desktop-embedding/pkg/messenger"
)

const replyLogPrefix = "dispatcher:reply"

// newEngineReply returns a Reply that sends at most one response for handle.
// The engine frees the handle once a response is sent, so later calls are
// logged and dropped.
func newEngineReply(eng engine.Engine, ch string, handle engine.ResponseHandle) messenger.Reply {
	var mu sync.Mutex
	pending := handle
	return func(payload []byte) {
		mu.Lock()
		h := pending
		pending = ""
		mu.Unlock()

		if h == "" {
			slog.Error(fmt.Sprintf("%s - response can be set only once, ignoring duplicate response on %s", replyLogPrefix, ch))
			return
		}
		if err := eng.SendPlatformMessageResponse(h, payload); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to send response on %s: %v", replyLogPrefix, ch, err))
		}
	}
}
