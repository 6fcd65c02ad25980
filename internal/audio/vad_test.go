package audio

import "testing"

// The zero-value Gate uses the RMS fallback classifier, which keeps these
// tests independent of the webrtcvad cgo library.

func TestGate_RMSFallbackClassifiesSilence(t *testing.T) {
	gate := &Gate{}
	// 20ms of silence at 16kHz mono.
	silence := constantPCM(320, 0)
	if gate.IsSpeech(silence, EngineSampleRate) {
		t.Error("Silence classified as speech")
	}
}

func TestGate_RMSFallbackClassifiesLoudSignal(t *testing.T) {
	gate := &Gate{}
	loud := constantPCM(320, 10000)
	if !gate.IsSpeech(loud, EngineSampleRate) {
		t.Error("Loud signal classified as silence")
	}
}

func TestGate_SubUnitFramesFallBackToRMS(t *testing.T) {
	gate := &Gate{}
	// 10ms: shorter than one 20ms analysis unit, still gated by energy.
	if !gate.IsSpeech(constantPCM(160, 10000), EngineSampleRate) {
		t.Error("Loud sub-unit frame classified as silence")
	}
	if gate.IsSpeech(constantPCM(160, 0), EngineSampleRate) {
		t.Error("Silent sub-unit frame classified as speech")
	}
	if gate.IsSpeech(nil, EngineSampleRate) {
		t.Error("Empty frame classified as speech")
	}
}

func TestGate_TransportFrameIsGated(t *testing.T) {
	gate := &Gate{}

	// One 20ms transport frame, resampled exactly as the ingestion path does.
	loud := Resample(constantPCM(FrameSize*SourceChannels, 10000), SourceChannels, SourceSampleRate, EngineSampleRate)
	if len(loud) != 20*EngineBytesPerMs {
		t.Fatalf("Unexpected resampled length %d", len(loud))
	}
	if !gate.IsSpeech(loud, EngineSampleRate) {
		t.Error("Loud transport frame classified as silence")
	}

	quiet := Resample(constantPCM(FrameSize*SourceChannels, 0), SourceChannels, SourceSampleRate, EngineSampleRate)
	if gate.IsSpeech(quiet, EngineSampleRate) {
		t.Error("Silent transport frame classified as speech")
	}
}

func TestGate_AnySpeechUnitMarksFrame(t *testing.T) {
	gate := &Gate{}
	// 40ms: first unit silent, second unit loud.
	pcm := append(constantPCM(320, 0), constantPCM(320, 10000)...)
	if !gate.IsSpeech(pcm, EngineSampleRate) {
		t.Error("Frame with one speech unit classified as silence")
	}
}

func TestNewGate_RejectsInvalidAggressiveness(t *testing.T) {
	for _, mode := range []int{-1, 4, 10} {
		if _, err := NewGate(mode); err == nil {
			t.Errorf("NewGate(%d) should fail", mode)
		}
	}
}
