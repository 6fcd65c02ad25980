// Package stt owns the speech-engine boundary: the Engine interface
// implemented by the whisper, vosk and deepgram backends, and the worker pool
// that keeps engine calls off the audio ingestion path.
package stt

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/DuckArrow/discord-scribe/internal/audio"
)

// Engine transcribes one chunk of mono 16-bit little-endian PCM at 16kHz.
// Calls may block for hundreds of milliseconds to seconds; the pool never
// invokes an engine on the ingestion path. Implementations must be safe for
// concurrent use by multiple workers.
type Engine interface {
	Transcribe(ctx context.Context, pcm []byte, language string) (string, error)
	Close() error
}

// Task is one chunk of engine-format audio queued for transcription. Tasks
// are immutable once submitted and consumed by exactly one worker.
type Task struct {
	ID          uuid.UUID
	SessionID   string
	Speaker     audio.Speaker
	PCM         []byte
	SubmittedAt time.Time
}

// Result is one successful, non-empty, non-denylisted transcription. Emitted
// at most once per task.
type Result struct {
	ID         uuid.UUID
	SessionID  string
	Speaker    audio.Speaker
	Text       string
	ProducedAt time.Time
}

// NewTask builds a task for the given speaker and audio chunk.
func NewTask(sessionID string, speaker audio.Speaker, pcm []byte) Task {
	return Task{
		ID:          uuid.New(),
		SessionID:   sessionID,
		Speaker:     speaker,
		PCM:         pcm,
		SubmittedAt: time.Now(),
	}
}
