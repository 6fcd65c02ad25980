package bot

import (
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

type fakeSender struct {
	messages []string
	fail     bool
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.fail {
		return nil, fmt.Errorf("send failed")
	}
	f.messages = append(f.messages, content)
	return &discordgo.Message{}, nil
}

func TestChannelSink_FormatsAttribution(t *testing.T) {
	sender := &fakeSender{}
	sink := NewChannelSink(sender, "chan-1")

	if err := sink.Send("Alice", "hello there"); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(sender.messages))
	}
	if sender.messages[0] != "**Alice**: hello there" {
		t.Errorf("Unexpected message %q", sender.messages[0])
	}
}

func TestChannelSink_SplitsLongMessages(t *testing.T) {
	sender := &fakeSender{}
	sink := NewChannelSink(sender, "chan-1")

	long := strings.Repeat("a", 2500)
	if err := sink.Send("Alice", long); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	if len(sender.messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(sender.messages))
	}
	for i, msg := range sender.messages {
		if n := len([]rune(msg)); n > maxMessageRunes {
			t.Errorf("Message %d has %d runes, above the limit", i, n)
		}
	}
	joined := strings.Join(sender.messages, "")
	if joined != "**Alice**: "+long {
		t.Error("Reassembled parts do not equal the original content")
	}
}

func TestChannelSink_PropagatesSendError(t *testing.T) {
	sink := NewChannelSink(&fakeSender{fail: true}, "chan-1")
	if err := sink.Send("Alice", "hello"); err == nil {
		t.Error("Expected error from failing sender")
	}
}

func TestSplitMessage_RuneBoundaries(t *testing.T) {
	// Multibyte runes must never be cut mid-sequence.
	content := strings.Repeat("語", 2100)
	parts := splitMessage(content, 2000)

	if len(parts) != 2 {
		t.Fatalf("Expected 2 parts, got %d", len(parts))
	}
	if n := len([]rune(parts[0])); n != 2000 {
		t.Errorf("First part has %d runes, want 2000", n)
	}
	if n := len([]rune(parts[1])); n != 100 {
		t.Errorf("Second part has %d runes, want 100", n)
	}
	if strings.Join(parts, "") != content {
		t.Error("Parts do not reassemble to the original content")
	}
}

func TestSplitMessage_ShortContentSinglePart(t *testing.T) {
	parts := splitMessage("short", 2000)
	if len(parts) != 1 || parts[0] != "short" {
		t.Errorf("Unexpected parts %v", parts)
	}
}
