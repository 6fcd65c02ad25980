// Package vosk implements the speech engine with a local Vosk model.
package vosk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	vosklib "github.com/alphacep/vosk-api/go"
	"github.com/rs/zerolog/log"

	"github.com/DuckArrow/discord-scribe/internal/audio"
)

// Engine wraps a Vosk model and recognizer. Recognizers are stateful and not
// safe for concurrent feeding, so Transcribe serializes engine calls; the
// pool's queue ordering is preserved either way. Vosk ignores the language
// argument (the loaded model fixes the language).
type Engine struct {
	model      *vosklib.VoskModel
	recognizer *vosklib.VoskRecognizer
	mu         sync.Mutex
}

type voskResult struct {
	Text string `json:"text"`
}

// New loads a Vosk model from modelPath and builds a recognizer for the
// engine sample rate.
func New(modelPath string) (*Engine, error) {
	log.Info().Str("model_path", modelPath).Msg("Loading Vosk model")

	model, err := vosklib.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("vosk: load model %q: %w", modelPath, err)
	}

	recognizer, err := vosklib.NewRecognizer(model, float64(audio.EngineSampleRate))
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("vosk: create recognizer: %w", err)
	}

	log.Info().Msg("Vosk model loaded")
	return &Engine{model: model, recognizer: recognizer}, nil
}

func (e *Engine) Transcribe(ctx context.Context, pcm []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(pcm) == 0 {
		return "", nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.recognizer.AcceptWaveform(pcm)
	if state == -1 {
		return "", fmt.Errorf("vosk: failed to process %d bytes", len(pcm))
	}

	// FinalResult flushes recognizer state so the next chunk starts clean.
	raw := e.recognizer.FinalResult()
	if raw == "" {
		return "", nil
	}

	var res voskResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return "", fmt.Errorf("vosk: parse result: %w", err)
	}
	return res.Text, nil
}

func (e *Engine) Close() error {
	if e.recognizer != nil {
		e.recognizer.Free()
	}
	if e.model != nil {
		e.model.Free()
	}
	return nil
}
