package deepgram

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
)

func TestPCMToWAV_Header(t *testing.T) {
	pcm := make([]byte, 3200)
	wav := pcmToWAV(pcm, 16000)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("Expected %d bytes, got %d", 44+len(pcm), len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("Missing RIFF/WAVE markers")
	}
	if string(wav[36:40]) != "data" {
		t.Error("Missing data chunk marker")
	}

	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rate)
	}
	if channels := binary.LittleEndian.Uint16(wav[22:24]); channels != 1 {
		t.Errorf("Expected mono, got %d channels", channels)
	}
	if dataSize := binary.LittleEndian.Uint32(wav[40:44]); dataSize != uint32(len(pcm)) {
		t.Errorf("Expected data size %d, got %d", len(pcm), dataSize)
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Error("PCM payload altered")
	}
}

func TestTranscribe_EmptyChunk(t *testing.T) {
	engine := New("key", "nova-2")
	text, err := engine.Transcribe(context.Background(), nil, "en")
	if err != nil {
		t.Fatalf("Transcribe(empty) failed: %v", err)
	}
	if text != "" {
		t.Errorf("Expected empty transcript, got %q", text)
	}
}
