package audio

import (
	"time"

	"github.com/rs/zerolog/log"
)

// SpeechDetector abstracts the Gate so buffers can be driven by deterministic
// classifiers in tests.
type SpeechDetector interface {
	IsSpeech(pcm []byte, sampleRate int) bool
}

// SpeakerBuffer accumulates one speaker's audio in the engine format
// (16kHz mono 16-bit PCM) and tracks their speaking state.
//
// Every frame is appended to the accumulator unconditionally, speech or not,
// so brief VAD gaps inside an utterance never lose audio. The accumulator only
// shrinks through TryTakeChunk and FlushRemaining, each of which accounts
// exactly for what it removed.
//
// Not safe for concurrent use; the session coordinator serializes access.
type SpeakerBuffer struct {
	gate         SpeechDetector
	silenceAfter time.Duration

	acc        []byte
	cursor     int
	speaking   bool
	lastSpeech time.Time
}

// NewSpeakerBuffer creates a buffer that signals utterance end after
// silenceAfter of continuous non-speech following detected speech.
func NewSpeakerBuffer(gate SpeechDetector, silenceAfter time.Duration) *SpeakerBuffer {
	return &SpeakerBuffer{gate: gate, silenceAfter: silenceAfter}
}

// AddFrame resamples a transport frame into the accumulator and updates the
// speaking state. It returns true when this frame ends an utterance: the
// speaker was speaking, silence has now exceeded the configured threshold,
// and the accumulator holds unconsumed audio.
func (b *SpeakerBuffer) AddFrame(pcm []byte, channels, sampleRate int, now time.Time) bool {
	resampled := Resample(pcm, channels, sampleRate, EngineSampleRate)
	if len(resampled) == 0 {
		return false
	}
	b.acc = append(b.acc, resampled...)

	if b.gate.IsSpeech(resampled, EngineSampleRate) {
		b.lastSpeech = now
		if !b.speaking {
			b.speaking = true
			log.Debug().Int("buffered_bytes", len(b.acc)).Msg("speaker started talking")
		}
		return false
	}

	if b.speaking && now.Sub(b.lastSpeech) > b.silenceAfter {
		b.speaking = false
		return len(b.acc) > b.cursor
	}
	return false
}

// Speaking reports whether the buffer is currently inside an utterance.
func (b *SpeakerBuffer) Speaking() bool { return b.speaking }

// Pending returns the number of unconsumed bytes past the cursor.
func (b *SpeakerBuffer) Pending() int { return len(b.acc) - b.cursor }

// TryTakeChunk cuts a chunk of exactly chunkBytes when the unconsumed portion
// of the accumulator has reached that size; otherwise it returns nil. The cut
// starts overlapBytes before the cursor (clamped to the start of the
// accumulator) so consecutive chunks share context across the boundary, and
// the cursor advances to the end of the cut region.
//
// Chunk extraction is independent of speaking state: the coordinator calls it
// on a fixed cadence so long continuous speech gets periodic partial
// transcription instead of waiting for silence.
func (b *SpeakerBuffer) TryTakeChunk(chunkBytes, overlapBytes int) []byte {
	if chunkBytes <= 0 || len(b.acc)-b.cursor < chunkBytes {
		return nil
	}

	start := b.cursor - overlapBytes
	if start < 0 {
		start = 0
	}
	end := start + chunkBytes
	chunk := make([]byte, chunkBytes)
	copy(chunk, b.acc[start:end])
	b.cursor = end

	// Discard audio that can no longer appear in any future cut. Only the
	// overlap window behind the cursor must survive.
	keepFrom := b.cursor - overlapBytes
	if keepFrom > 0 {
		b.acc = append(b.acc[:0], b.acc[keepFrom:]...)
		b.cursor -= keepFrom
	}
	return chunk
}

// FlushRemaining returns everything from the cursor to the end of the
// accumulator and resets the buffer. It returns nil when nothing remains.
// Called on utterance end, speaker departure and session teardown; the buffer
// never discards audio on its own, so even sub-threshold residue is returned
// and left for the worker pool to filter.
func (b *SpeakerBuffer) FlushRemaining() []byte {
	if len(b.acc) <= b.cursor {
		b.acc = b.acc[:0]
		b.cursor = 0
		return nil
	}
	rest := make([]byte, len(b.acc)-b.cursor)
	copy(rest, b.acc[b.cursor:])
	b.acc = b.acc[:0]
	b.cursor = 0
	return rest
}
