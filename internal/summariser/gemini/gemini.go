// Package gemini generates post-session meeting notes from a transcript.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/DuckArrow/discord-scribe/internal/store"
)

type Summariser struct {
	client *genai.Client
	model  string
}

func New(apiKey, model string) (*Summariser, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &Summariser{client: client, model: model}, nil
}

// Summarise turns a session transcript into Markdown meeting notes.
func (s *Summariser) Summarise(ctx context.Context, records []store.Record) (string, error) {
	if len(records) == 0 {
		return "# Session Notes\n\nNo transcript available.", nil
	}

	prompt := buildPrompt(buildTranscript(records))

	genModel := s.client.GenerativeModel(s.model)
	resp, err := genModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate notes: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no notes generated")
	}

	var notes strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			notes.WriteString(string(text))
		}
	}

	log.Info().
		Int("records", len(records)).
		Int("notes_length", notes.Len()).
		Msg("Generated session notes")

	return notes.String(), nil
}

func (s *Summariser) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func buildTranscript(records []store.Record) string {
	var transcript strings.Builder
	for _, rec := range records {
		speaker := rec.SpeakerName
		if speaker == "" {
			speaker = "Unknown"
		}
		transcript.WriteString(fmt.Sprintf("[%s] %s: %s\n",
			rec.Timestamp.Format("15:04:05"), speaker, rec.Text))
	}
	return transcript.String()
}

func buildPrompt(transcript string) string {
	return fmt.Sprintf(`You are a meeting notetaker. Given a diarized transcript with timestamps, produce:

1) **Summary** - bullet point summary (max 12 bullets)
2) **Decisions** - key decisions made during the conversation
3) **Action Items** - tasks with assignee (if mentioned)
4) **Open Questions** - unresolved questions or topics

Format the output as clean Markdown. Be concise but comprehensive.

**TRANSCRIPT:**
%s

**NOTES:**`, transcript)
}
