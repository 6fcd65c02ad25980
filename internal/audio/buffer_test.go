package audio

import (
	"bytes"
	"testing"
	"time"
)

type fakeGate struct {
	speech bool
}

func (g *fakeGate) IsSpeech(pcm []byte, sampleRate int) bool { return g.speech }

// sourceFrame builds ms of 48kHz stereo PCM holding a constant sample value.
// It resamples to ms*32 bytes of engine-format audio.
func sourceFrame(ms int, value int16) []byte {
	return constantPCM(ms*SourceSampleRate/1000*SourceChannels, value)
}

func TestAddFrame_AccumulatesResampledAudio(t *testing.T) {
	buf := NewSpeakerBuffer(&fakeGate{}, 700*time.Millisecond)

	buf.AddFrame(sourceFrame(100, 0), SourceChannels, SourceSampleRate, time.Now())

	if got := buf.Pending(); got != 100*EngineBytesPerMs {
		t.Errorf("Expected %d pending bytes, got %d", 100*EngineBytesPerMs, got)
	}
}

func TestAddFrame_SignalsUtteranceEndAfterSilence(t *testing.T) {
	gate := &fakeGate{speech: true}
	buf := NewSpeakerBuffer(gate, 700*time.Millisecond)
	t0 := time.Now()

	if buf.AddFrame(sourceFrame(100, 1000), SourceChannels, SourceSampleRate, t0) {
		t.Error("Utterance must not end while speaking")
	}
	if !buf.Speaking() {
		t.Fatal("Expected speaking state after speech frame")
	}

	gate.speech = false
	if buf.AddFrame(sourceFrame(20, 0), SourceChannels, SourceSampleRate, t0.Add(300*time.Millisecond)) {
		t.Error("Utterance must not end before the silence threshold")
	}
	if !buf.AddFrame(sourceFrame(20, 0), SourceChannels, SourceSampleRate, t0.Add(800*time.Millisecond)) {
		t.Error("Expected utterance end after silence threshold elapsed")
	}
	if buf.Speaking() {
		t.Error("Speaking state must clear on utterance end")
	}
}

func TestAddFrame_SilenceOnlyNeverEndsUtterance(t *testing.T) {
	buf := NewSpeakerBuffer(&fakeGate{speech: false}, 700*time.Millisecond)
	t0 := time.Now()

	for i := 0; i < 10; i++ {
		if buf.AddFrame(sourceFrame(100, 0), SourceChannels, SourceSampleRate, t0.Add(time.Duration(i)*time.Second)) {
			t.Fatal("Utterance end without any prior speech")
		}
	}

	// The audio still accumulated and is recoverable by an explicit flush.
	if got := buf.FlushRemaining(); len(got) != 1000*EngineBytesPerMs {
		t.Errorf("Expected %d flushed bytes, got %d", 1000*EngineBytesPerMs, len(got))
	}
}

func TestTryTakeChunk_RequiresFullChunk(t *testing.T) {
	buf := NewSpeakerBuffer(&fakeGate{}, 700*time.Millisecond)
	buf.AddFrame(sourceFrame(50, 0), SourceChannels, SourceSampleRate, time.Now())

	if chunk := buf.TryTakeChunk(100*EngineBytesPerMs, 10*EngineBytesPerMs); chunk != nil {
		t.Errorf("Expected nil below chunk size, got %d bytes", len(chunk))
	}
}

func TestTryTakeChunk_CutsExactSizeAndAdvances(t *testing.T) {
	buf := NewSpeakerBuffer(&fakeGate{}, 700*time.Millisecond)
	buf.AddFrame(sourceFrame(100, 7), SourceChannels, SourceSampleRate, time.Now())

	chunkBytes := 100 * EngineBytesPerMs
	overlap := 10 * EngineBytesPerMs

	chunk := buf.TryTakeChunk(chunkBytes, overlap)
	if len(chunk) != chunkBytes {
		t.Fatalf("Expected %d-byte chunk, got %d", chunkBytes, len(chunk))
	}
	if buf.Pending() != 0 {
		t.Errorf("Expected 0 pending after cut, got %d", buf.Pending())
	}
	if buf.TryTakeChunk(chunkBytes, overlap) != nil {
		t.Error("Second cut must fail until more audio arrives")
	}
}

func TestTryTakeChunk_OverlapSharesBoundaryAudio(t *testing.T) {
	buf := NewSpeakerBuffer(&fakeGate{}, 700*time.Millisecond)
	chunkBytes := 100 * EngineBytesPerMs
	overlap := 10 * EngineBytesPerMs

	buf.AddFrame(sourceFrame(100, 11), SourceChannels, SourceSampleRate, time.Now())
	first := buf.TryTakeChunk(chunkBytes, overlap)
	if first == nil {
		t.Fatal("Expected first chunk")
	}

	buf.AddFrame(sourceFrame(100, 22), SourceChannels, SourceSampleRate, time.Now())
	second := buf.TryTakeChunk(chunkBytes, overlap)
	if second == nil {
		t.Fatal("Expected second chunk")
	}

	// The second chunk re-reads the tail of the first.
	if !bytes.Equal(second[:overlap], first[len(first)-overlap:]) {
		t.Error("Second chunk does not start with the first chunk's tail")
	}
	if !bytes.Equal(second[overlap:], constantPCM((chunkBytes-overlap)/2, 22)) {
		t.Error("Second chunk body does not hold the newly accumulated audio")
	}
}

func TestTryTakeChunk_NoOverlapConservesBytes(t *testing.T) {
	buf := NewSpeakerBuffer(&fakeGate{}, 700*time.Millisecond)
	chunkBytes := 100 * EngineBytesPerMs

	buf.AddFrame(sourceFrame(250, 3), SourceChannels, SourceSampleRate, time.Now())

	var total int
	for {
		chunk := buf.TryTakeChunk(chunkBytes, 0)
		if chunk == nil {
			break
		}
		total += len(chunk)
	}
	total += len(buf.FlushRemaining())

	if total != 250*EngineBytesPerMs {
		t.Errorf("Expected %d total bytes out, got %d", 250*EngineBytesPerMs, total)
	}
}

func TestFlushRemaining_ResetsBuffer(t *testing.T) {
	buf := NewSpeakerBuffer(&fakeGate{}, 700*time.Millisecond)
	buf.AddFrame(sourceFrame(100, 5), SourceChannels, SourceSampleRate, time.Now())

	first := buf.FlushRemaining()
	if len(first) != 100*EngineBytesPerMs {
		t.Fatalf("Expected %d flushed bytes, got %d", 100*EngineBytesPerMs, len(first))
	}
	if buf.Pending() != 0 {
		t.Errorf("Expected empty buffer after flush, got %d pending", buf.Pending())
	}
	if buf.FlushRemaining() != nil {
		t.Error("Second flush must return nil")
	}
}

func TestAddFrame_TransportFramesDriveUtteranceDetection(t *testing.T) {
	// End to end through a real gate: 20ms transport frames, exactly as the
	// voice receive loop delivers them, must enter Speaking and signal
	// utterance end once silence frames pass the threshold.
	buf := NewSpeakerBuffer(&Gate{}, 50*time.Millisecond)
	t0 := time.Now()

	// 1s of loud frames.
	for i := 0; i < 50; i++ {
		at := t0.Add(time.Duration(i) * 20 * time.Millisecond)
		if buf.AddFrame(sourceFrame(20, 10000), SourceChannels, SourceSampleRate, at) {
			t.Fatal("Utterance must not end during continuous speech")
		}
	}
	if !buf.Speaking() {
		t.Fatal("Loud transport frames never entered Speaking")
	}

	// Silence frames until the threshold elapses.
	ended := false
	for i := 50; i < 60; i++ {
		at := t0.Add(time.Duration(i) * 20 * time.Millisecond)
		if buf.AddFrame(sourceFrame(20, 0), SourceChannels, SourceSampleRate, at) {
			ended = true
			break
		}
	}
	if !ended {
		t.Fatal("Silence after speech never signaled utterance end")
	}
	if buf.Speaking() {
		t.Error("Speaking state must clear on utterance end")
	}
}

func TestLongUtterance_ChunkThenFlush(t *testing.T) {
	gate := &fakeGate{speech: true}
	buf := NewSpeakerBuffer(gate, 700*time.Millisecond)
	t0 := time.Now()

	chunkBytes := 1200 * EngineBytesPerMs
	overlap := 200 * EngineBytesPerMs

	// 1.5s of continuous speech.
	for i := 0; i < 15; i++ {
		buf.AddFrame(sourceFrame(100, 9), SourceChannels, SourceSampleRate, t0)
	}

	chunk := buf.TryTakeChunk(chunkBytes, overlap)
	if len(chunk) != chunkBytes {
		t.Fatalf("Expected a %d-byte chunk, got %d", chunkBytes, len(chunk))
	}
	if buf.TryTakeChunk(chunkBytes, overlap) != nil {
		t.Fatal("Only one chunk should fit in 1.5s of audio")
	}

	// Speaker falls silent past the threshold; one 20ms silence frame lands.
	gate.speech = false
	ended := buf.AddFrame(sourceFrame(20, 0), SourceChannels, SourceSampleRate, t0.Add(800*time.Millisecond))
	if !ended {
		t.Fatal("Expected utterance end")
	}

	// Residual 300ms of speech plus the silence frame.
	rest := buf.FlushRemaining()
	if want := 320 * EngineBytesPerMs; len(rest) != want {
		t.Errorf("Expected %d residual bytes, got %d", want, len(rest))
	}
}
