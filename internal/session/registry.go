package session

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/DuckArrow/discord-scribe/internal/store"
	"github.com/DuckArrow/discord-scribe/internal/stt"
)

// Registry maps session IDs to their output sink and recorder. The worker
// pool is shared across sessions, so its result queue can interleave results
// from several sessions; whichever coordinator drains the queue routes each
// result here by its session ID.
type Registry struct {
	mu      sync.RWMutex
	outputs map[string]registered
}

type registered struct {
	sink     Sink
	recorder Recorder
}

func NewRegistry() *Registry {
	return &Registry{outputs: make(map[string]registered)}
}

func (r *Registry) register(sessionID string, sink Sink, recorder Recorder) {
	r.mu.Lock()
	r.outputs[sessionID] = registered{sink: sink, recorder: recorder}
	r.mu.Unlock()
}

func (r *Registry) unregister(sessionID string) {
	r.mu.Lock()
	delete(r.outputs, sessionID)
	r.mu.Unlock()
}

// dispatch sends one result to its session's sink and records it
// best-effort. Results for sessions that already released their outputs are
// stragglers from an abandoned drain; they are logged and dropped.
func (r *Registry) dispatch(res stt.Result) {
	r.mu.RLock()
	out, ok := r.outputs[res.SessionID]
	r.mu.RUnlock()
	if !ok {
		log.Warn().
			Str("session_id", res.SessionID).
			Str("speaker_id", res.Speaker.ID).
			Msg("Dropping result for released session")
		return
	}

	if err := out.sink.Send(res.Speaker.DisplayName, res.Text); err != nil {
		log.Error().Err(err).
			Str("session_id", res.SessionID).
			Str("speaker_id", res.Speaker.ID).
			Msg("Failed to deliver transcription")
	}

	if out.recorder != nil {
		rec := store.Record{
			Timestamp:   res.ProducedAt,
			SpeakerID:   res.Speaker.ID,
			SpeakerName: res.Speaker.DisplayName,
			Text:        res.Text,
		}
		if err := out.recorder.Append(res.SessionID, rec); err != nil {
			log.Warn().Err(err).Str("session_id", res.SessionID).Msg("Failed to persist transcript record")
		}
	}
}
