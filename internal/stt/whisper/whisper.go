// Package whisper implements the speech engine on top of the whisper.cpp CGO
// bindings. The static library (libwhisper.a) and headers must be available
// at link time via LIBRARY_PATH and C_INCLUDE_PATH.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog/log"
)

// Engine transcribes audio with a local whisper.cpp model. The model is
// loaded once and shared; each Transcribe call creates its own context, so
// the engine is safe for concurrent use by multiple pool workers.
type Engine struct {
	model whisperlib.Model
}

// New loads the whisper model from modelPath.
func New(modelPath string) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	log.Info().Str("model_path", modelPath).Msg("Loading whisper model")
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	log.Info().Msg("Whisper model loaded")
	return &Engine{model: model}, nil
}

// Transcribe runs inference over one chunk of 16kHz mono 16-bit PCM and
// returns the concatenated segment text.
func (e *Engine) Transcribe(ctx context.Context, pcm []byte, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	samples := pcmToFloat32(pcm)
	if len(samples) == 0 {
		return "", nil
	}

	// Contexts are not thread-safe; the shared model is.
	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			log.Warn().Err(err).Str("language", language).Msg("whisper rejected language, using default")
		}
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the model.
func (e *Engine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// pcmToFloat32 converts 16-bit signed little-endian PCM to float32 samples in
// [-1, 1]. A trailing odd byte is ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}
