package bot

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func TestWaitVoiceReady_TimesOut(t *testing.T) {
	conn := &discordgo.VoiceConnection{}

	start := time.Now()
	err := waitVoiceReady(conn, 30*time.Millisecond)
	if err == nil {
		t.Fatal("Expected timeout error for a connection that never becomes ready")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait did not respect the deadline, took %s", elapsed)
	}
}

func TestWaitVoiceReady_ReadyConnection(t *testing.T) {
	conn := &discordgo.VoiceConnection{Ready: true}
	if err := waitVoiceReady(conn, 30*time.Millisecond); err != nil {
		t.Fatalf("Ready connection must not error: %v", err)
	}
}
