package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// maxMessageRunes is Discord's per-message content limit.
const maxMessageRunes = 2000

// messageSender is the slice of discordgo.Session the sink needs; tests
// provide a fake.
type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ChannelSink delivers attributed transcript lines to a Discord text channel,
// splitting anything over the platform's message length cap.
type ChannelSink struct {
	session   messageSender
	channelID string
}

func NewChannelSink(session messageSender, channelID string) *ChannelSink {
	return &ChannelSink{session: session, channelID: channelID}
}

func (s *ChannelSink) Send(speakerName, text string) error {
	content := fmt.Sprintf("**%s**: %s", speakerName, text)
	for _, part := range splitMessage(content, maxMessageRunes) {
		if _, err := s.session.ChannelMessageSend(s.channelID, part); err != nil {
			return fmt.Errorf("send to channel %s: %w", s.channelID, err)
		}
	}
	return nil
}

// splitMessage cuts content into rune-bounded pieces no longer than limit.
func splitMessage(content string, limit int) []string {
	runes := []rune(content)
	if len(runes) <= limit {
		return []string{content}
	}
	var parts []string
	for len(runes) > limit {
		parts = append(parts, string(runes[:limit]))
		runes = runes[limit:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
