package store

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestFileStore_AppendAndLoad(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() failed: %v", err)
	}

	recs := []Record{
		{Timestamp: time.Now(), SpeakerID: "u1", SpeakerName: "Alice", Text: "first line"},
		{Timestamp: time.Now(), SpeakerID: "u2", SpeakerName: "Bob", Text: "second line"},
	}
	for _, rec := range recs {
		if err := fs.Append("sess-1", rec); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	loaded, err := fs.Load("sess-1")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(loaded) != len(recs) {
		t.Fatalf("Expected %d records, got %d", len(recs), len(loaded))
	}
	for i := range recs {
		if loaded[i].SpeakerID != recs[i].SpeakerID {
			t.Errorf("Record %d: speaker %q, want %q", i, loaded[i].SpeakerID, recs[i].SpeakerID)
		}
		if loaded[i].Text != recs[i].Text {
			t.Errorf("Record %d: text %q, want %q", i, loaded[i].Text, recs[i].Text)
		}
	}
}

func TestFileStore_LoadMissingSession(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	recs, err := fs.Load("never-existed")
	if err != nil {
		t.Fatalf("Load() of missing session failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Expected no records, got %d", len(recs))
	}
}

func TestFileStore_SaveNotes(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	path, err := fs.SaveNotes("sess-1", "# Notes\n\n- point one\n")
	if err != nil {
		t.Fatalf("SaveNotes() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Notes file not readable: %v", err)
	}
	if !strings.Contains(string(data), "point one") {
		t.Errorf("Unexpected notes content %q", data)
	}
}

func TestGenerateSessionID(t *testing.T) {
	id := GenerateSessionID()
	if !strings.HasPrefix(id, "session_") {
		t.Errorf("Expected session_ prefix, got %q", id)
	}
}
