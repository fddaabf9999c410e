package channel

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/morezero/desktop-embedding/pkg/codec"
	"github.com/morezero/desktop-embedding/pkg/messenger"
)

const resultLogPrefix = "channel:result"

// ErrorCodeEncodeFailed is sent when a reply envelope cannot be encoded.
const ErrorCodeEncodeFailed = "ENCODE_FAILED"

// MethodResult answers one inbound method call. Exactly one of its methods
// must be called, exactly once.
type MethodResult[T any] interface {
	Success(result T)
	// Error replies with a failure. A nil message is sent as the codec's null.
	Error(code string, message *string, details T)
	NotImplemented()
}

// EngineMethodResult is a MethodResult that encodes with a MethodCodec and
// answers through a messenger.Reply.
//
// It moves from pending to resolved on the first call. Later calls are logged
// and ignored. A result collected while still pending is reported as a leak.
type EngineMethodResult[T any] struct {
	state *replyState
	codec codec.MethodCodec[T]
}

// replyState is split from EngineMethodResult so the finalizer can inspect it
// without keeping the result reachable.
type replyState struct {
	mu    sync.Mutex
	reply messenger.Reply
}

// NewEngineMethodResult creates a pending result bound to reply.
func NewEngineMethodResult[T any](reply messenger.Reply, methodCodec codec.MethodCodec[T]) *EngineMethodResult[T] {
	if reply == nil {
		slog.Error(fmt.Sprintf("%s - reply handler must be provided for a response", resultLogPrefix))
	}
	r := &EngineMethodResult[T]{
		state: &replyState{reply: reply},
		codec: methodCodec,
	}
	state := r.state
	runtime.SetFinalizer(r, func(*EngineMethodResult[T]) {
		if state.pending() {
			reportLeak(state)
		}
	})
	return r
}

// reportLeak is a variable so tests can observe leak reports.
var reportLeak = func(*replyState) {
	// The engine may be gone by now, so warn instead of answering.
	slog.Warn(fmt.Sprintf("%s - failed to respond to a message; the engine reply handle leaked", resultLogPrefix))
}

// Success encodes result in a success envelope and sends it.
func (r *EngineMethodResult[T]) Success(result T) {
	data, err := r.codec.EncodeSuccessEnvelope(result)
	if err != nil {
		r.sendEncodeFailure(err)
		return
	}
	r.sendResponseData(data)
}

// Error encodes an error envelope and sends it.
func (r *EngineMethodResult[T]) Error(code string, message *string, details T) {
	data, err := r.codec.EncodeErrorEnvelope(code, message, details)
	if err != nil {
		r.sendEncodeFailure(err)
		return
	}
	r.sendResponseData(data)
}

// NotImplemented sends an absent payload.
func (r *EngineMethodResult[T]) NotImplemented() {
	r.sendResponseData(nil)
}

// Pending reports whether the result has not been resolved yet.
func (r *EngineMethodResult[T]) Pending() bool {
	return r.state.pending()
}

func (r *EngineMethodResult[T]) sendEncodeFailure(cause error) {
	slog.Error(fmt.Sprintf("%s - unable to encode reply envelope: %v", resultLogPrefix, cause))
	var zero T
	data, err := r.codec.EncodeErrorEnvelope(ErrorCodeEncodeFailed, codec.StringPtr(cause.Error()), zero)
	if err != nil {
		data = nil
	}
	r.sendResponseData(data)
}

func (r *EngineMethodResult[T]) sendResponseData(data []byte) {
	reply := r.state.take()
	if reply == nil {
		slog.Error(fmt.Sprintf("%s - response can be set only once, ignoring duplicate", resultLogPrefix))
		return
	}
	reply(data)
}

func (s *replyState) pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reply != nil
}

// take returns the reply and clears it; nil once resolved.
func (s *replyState) take() messenger.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	reply := s.reply
	s.reply = nil
	return reply
}
