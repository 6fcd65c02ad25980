// Package store persists transcripts as append-only JSONL files, one file per
// session. Writes are best-effort; a failed append never blocks dispatch.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Record is one attributed transcript line.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	SpeakerID   string    `json:"speaker_id"`
	SpeakerName string    `json:"speaker_name"`
	Text        string    `json:"text"`
}

// FileStore appends records under baseDir/transcripts and saves generated
// notes under baseDir/notes.
type FileStore struct {
	baseDir string
}

func NewFileStore(baseDir string) (*FileStore, error) {
	for _, dir := range []string{
		filepath.Join(baseDir, "transcripts"),
		filepath.Join(baseDir, "notes"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Append writes one record to the session's transcript file.
func (s *FileStore) Append(sessionID string, rec Record) error {
	path := s.transcriptPath(sessionID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript %s: %w", path, err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(rec); err != nil {
		return fmt.Errorf("append transcript record: %w", err)
	}
	return nil
}

// Load reads back every record of a session's transcript. A missing file
// yields an empty slice.
func (s *FileStore) Load(sessionID string) ([]Record, error) {
	f, err := os.Open(s.transcriptPath(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var records []Record
	dec := json.NewDecoder(f)
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode transcript record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// SaveNotes writes generated meeting notes and returns the file path.
func (s *FileStore) SaveNotes(sessionID, notes string) (string, error) {
	path := filepath.Join(s.baseDir, "notes", sessionID+".md")
	if err := os.WriteFile(path, []byte(notes), 0o644); err != nil {
		return "", fmt.Errorf("write notes: %w", err)
	}
	log.Info().Str("session_id", sessionID).Str("file", path).Msg("Saved notes")
	return path, nil
}

func (s *FileStore) transcriptPath(sessionID string) string {
	return filepath.Join(s.baseDir, "transcripts", sessionID+".jsonl")
}

// GenerateSessionID returns a timestamped session identifier.
func GenerateSessionID() string {
	return "session_" + time.Now().Format("20060102_150405")
}
