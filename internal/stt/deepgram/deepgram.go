// Package deepgram implements the speech engine against Deepgram's
// pre-recorded REST API. Chunks are wrapped in a minimal WAV container and
// posted to /v1/listen.
package deepgram

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/DuckArrow/discord-scribe/internal/audio"
)

const listenURL = "https://api.deepgram.com/v1/listen"

// Engine transcribes chunks via Deepgram's hosted API. Safe for concurrent
// use; each call is an independent HTTP request.
type Engine struct {
	apiKey string
	model  string
	client *http.Client
}

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// New creates an engine. model selects the Deepgram model tier (e.g. "nova-2").
func New(apiKey, model string) *Engine {
	return &Engine{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *Engine) Transcribe(ctx context.Context, pcm []byte, language string) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	params := url.Values{}
	if e.model != "" {
		params.Set("model", e.model)
	}
	if language != "" {
		params.Set("language", language)
	}
	params.Set("punctuate", "true")
	params.Set("smart_format", "true")

	wav := pcmToWAV(pcm, audio.EngineSampleRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, listenURL+"?"+params.Encode(), bytes.NewReader(wav))
	if err != nil {
		return "", fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+e.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("deepgram: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deepgram: API error %d: %s", resp.StatusCode, body)
	}

	var result listenResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("deepgram: decode response: %w", err)
	}
	if len(result.Results.Channels) == 0 {
		return "", nil
	}

	for _, alt := range result.Results.Channels[0].Alternatives {
		if alt.Transcript != "" {
			log.Debug().Float64("confidence", alt.Confidence).Msg("Deepgram transcription received")
			return alt.Transcript, nil
		}
	}
	return "", nil
}

func (e *Engine) Close() error { return nil }

// pcmToWAV prepends a RIFF/WAVE header for mono 16-bit PCM at sampleRate.
func pcmToWAV(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)
	dataSize := uint32(len(pcm))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
	buf.Write(pcm)

	return buf.Bytes()
}
