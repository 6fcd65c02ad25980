package audio

import (
	"fmt"
	"math"

	"github.com/maxhawkins/go-webrtcvad"
	"github.com/rs/zerolog/log"
)

// analysisUnitMs is the duration of one VAD analysis unit. WebRTC VAD accepts
// 10/20/30ms frames; 20ms matches the voice transport's frame length, so a
// resampled transport frame is classified whole.
const analysisUnitMs = 20

// rmsFallbackThreshold is the RMS energy (16-bit PCM units) above which audio
// counts as speech when the WebRTC classifier cannot be used.
const rmsFallbackThreshold = 500.0

// Gate classifies short mono 16-bit PCM frames as speech or non-speech.
//
// A frame is split into successive 30ms analysis units and classified speech
// if any unit is speech. The OR bias over-detects on purpose so that speech
// onsets are never truncated. All temporal state ("was previously speaking")
// belongs to the caller; the gate itself is a pure classifier.
//
// Not safe for concurrent use; create one Gate per audio stream.
type Gate struct {
	vad *webrtcvad.VAD
}

// NewGate creates a gate with the given WebRTC aggressiveness (0 = least
// aggressive filtering of non-speech, 3 = most aggressive).
func NewGate(aggressiveness int) (*Gate, error) {
	if aggressiveness < 0 || aggressiveness > 3 {
		return nil, fmt.Errorf("vad aggressiveness must be 0..3, got %d", aggressiveness)
	}
	vad, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("create webrtc vad: %w", err)
	}
	if err := vad.SetMode(aggressiveness); err != nil {
		return nil, fmt.Errorf("set vad mode %d: %w", aggressiveness, err)
	}
	return &Gate{vad: vad}, nil
}

// IsSpeech reports whether the frame contains speech. The frame must be mono
// 16-bit little-endian PCM at a rate webrtcvad supports (8/16/32/48kHz).
// Frames shorter than one analysis unit are classified by RMS energy, so
// short transport frames are still gated. Classifier failures are logged and
// fail open as speech so audio is never silently discarded as silence.
func (g *Gate) IsSpeech(pcm []byte, sampleRate int) bool {
	unitBytes := sampleRate * 2 * analysisUnitMs / 1000
	if unitBytes == 0 || len(pcm) < unitBytes {
		return rmsOf(pcm) > rmsFallbackThreshold
	}

	for off := 0; off+unitBytes <= len(pcm); off += unitBytes {
		if g.classify(pcm[off:off+unitBytes], sampleRate) {
			return true
		}
	}
	return false
}

func (g *Gate) classify(unit []byte, sampleRate int) bool {
	if g.vad == nil {
		return rmsOf(unit) > rmsFallbackThreshold
	}
	speech, err := g.vad.Process(sampleRate, unit)
	if err != nil {
		// Fail open: mis-classifying speech as silence loses audio,
		// the reverse only costs an engine call.
		log.Warn().Err(err).Int("sample_rate", sampleRate).Int("unit_bytes", len(unit)).
			Msg("VAD classifier failed, treating unit as speech")
		return true
	}
	return speech
}

func rmsOf(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
