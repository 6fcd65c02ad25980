package bot

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/DuckArrow/discord-scribe/internal/audio"
	"github.com/DuckArrow/discord-scribe/internal/session"
)

// voiceReadyTimeout bounds how long a join waits for the voice connection to
// complete its handshake.
const voiceReadyTimeout = 10 * time.Second

// voiceSession owns the Discord voice transport for one guild: the voice
// connection, the opus receive loop and the SSRC-to-speaker mapping. All
// pipeline semantics live in the coordinator it feeds.
type voiceSession struct {
	guildID       string
	channelID     string
	textChannelID string

	coord     *session.Coordinator
	dg        *discordgo.Session
	voiceConn *discordgo.VoiceConnection

	// One decoder per SSRC: opus decoding is stateful across packets.
	decoders map[uint32]*audio.OpusDecoder

	speakerMux sync.RWMutex
	speakers   map[uint32]audio.Speaker // SSRC -> resolved speaker

	done chan struct{}
	wg   sync.WaitGroup
}

func newVoiceSession(dg *discordgo.Session, coord *session.Coordinator, guildID, channelID, textChannelID string) (*voiceSession, error) {
	vs := &voiceSession{
		guildID:       guildID,
		channelID:     channelID,
		textChannelID: textChannelID,
		coord:         coord,
		dg:            dg,
		decoders:      make(map[uint32]*audio.OpusDecoder),
		speakers:      make(map[uint32]audio.Speaker),
		done:          make(chan struct{}),
	}

	// mute=false, deaf=false: the bot must receive audio to transcribe it.
	voiceConn, err := dg.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("join voice channel: %w", err)
	}
	vs.voiceConn = voiceConn

	// The speaking handler must be registered before audio reception starts,
	// it is the only source of SSRC-to-user mappings.
	voiceConn.AddHandler(vs.handleSpeakingUpdate)

	if err := waitVoiceReady(voiceConn, voiceReadyTimeout); err != nil {
		voiceConn.Disconnect()
		return nil, err
	}

	// Discord requires an initial speaking state before audio is delivered.
	if err := voiceConn.Speaking(false); err != nil {
		log.Warn().Str("session_id", coord.ID()).Err(err).
			Msg("Failed to send initial speaking state")
	}

	if err := coord.Start(); err != nil {
		voiceConn.Disconnect()
		return nil, err
	}

	vs.wg.Add(1)
	go vs.receiveLoop()

	log.Info().
		Str("session_id", coord.ID()).
		Str("guild_id", guildID).
		Str("channel_id", channelID).
		Msg("Voice session started")
	return vs, nil
}

// StopPipeline drains the transcription pipeline while keeping the voice
// connection alive. Frames arriving afterwards are ignored by the
// coordinator until a new session replaces this one.
func (vs *voiceSession) StopPipeline() {
	if err := vs.coord.Stop(); err != nil {
		log.Debug().Str("session_id", vs.coord.ID()).Err(err).Msg("Pipeline already stopped")
	}
}

// Teardown stops the pipeline if it is still running, ends the receive loop
// and disconnects from the voice channel.
func (vs *voiceSession) Teardown() {
	if vs.coord.State() == session.Active {
		vs.StopPipeline()
	}

	select {
	case <-vs.done:
	default:
		close(vs.done)
	}

	if vs.voiceConn != nil {
		if err := vs.voiceConn.Disconnect(); err != nil {
			log.Warn().Str("session_id", vs.coord.ID()).Err(err).Msg("Voice disconnect failed")
		}
	}
	vs.wg.Wait()

	log.Info().Str("session_id", vs.coord.ID()).Msg("Voice session torn down")
}

// waitVoiceReady polls until the connection's handshake completes or the
// timeout elapses.
func waitVoiceReady(conn *discordgo.VoiceConnection, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for !conn.Ready {
		if time.Now().After(deadline) {
			return fmt.Errorf("voice connection not ready after %s", timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func (vs *voiceSession) receiveLoop() {
	defer vs.wg.Done()
	for {
		select {
		case packet, ok := <-vs.voiceConn.OpusRecv:
			if !ok {
				log.Info().Str("session_id", vs.coord.ID()).Msg("Voice receive channel closed")
				return
			}
			vs.handlePacket(packet)
		case <-vs.done:
			return
		}
	}
}

func (vs *voiceSession) handlePacket(packet *discordgo.Packet) {
	speaker, ok := vs.speakerFor(packet.SSRC)
	if !ok {
		// No speaking update seen for this SSRC yet; the packet cannot be
		// attributed so it is dropped.
		log.Debug().Uint32("ssrc", packet.SSRC).Msg("Dropping packet from unmapped SSRC")
		return
	}

	decoder, ok := vs.decoders[packet.SSRC]
	if !ok {
		var err error
		decoder, err = audio.NewOpusDecoder()
		if err != nil {
			log.Warn().Uint32("ssrc", packet.SSRC).Err(err).Msg("Failed to create opus decoder")
			return
		}
		vs.decoders[packet.SSRC] = decoder
	}

	pcm, err := decoder.Decode(packet.Opus)
	if err != nil {
		log.Warn().
			Str("session_id", vs.coord.ID()).
			Uint32("ssrc", packet.SSRC).
			Err(err).
			Msg("Failed to decode opus packet")
		return
	}
	if len(pcm) == 0 {
		return
	}

	vs.coord.OnAudioFrame(audio.Frame{
		Speaker:    speaker,
		Samples:    audio.Int16ToBytes(pcm),
		CapturedAt: time.Now(),
	})
}

// handleSpeakingUpdate records the SSRC-to-user mapping Discord announces
// when a user starts speaking. Mappings are kept after the user stops, the
// SSRC stays stable for the lifetime of the connection.
func (vs *voiceSession) handleSpeakingUpdate(_ *discordgo.VoiceConnection, update *discordgo.VoiceSpeakingUpdate) {
	if update.UserID == "" {
		return
	}
	ssrc := uint32(update.SSRC)

	vs.speakerMux.RLock()
	_, known := vs.speakers[ssrc]
	vs.speakerMux.RUnlock()
	if known {
		return
	}

	speaker := audio.Speaker{
		ID:          update.UserID,
		DisplayName: vs.resolveDisplayName(update.UserID),
	}
	vs.speakerMux.Lock()
	vs.speakers[ssrc] = speaker
	vs.speakerMux.Unlock()

	log.Info().
		Str("session_id", vs.coord.ID()).
		Uint32("ssrc", ssrc).
		Str("user_id", update.UserID).
		Str("display_name", speaker.DisplayName).
		Msg("Mapped SSRC to speaker")
}

// resolveDisplayName prefers the guild nickname, then the username, then the
// raw user ID when neither can be fetched.
func (vs *voiceSession) resolveDisplayName(userID string) string {
	if member, err := vs.dg.State.Member(vs.guildID, userID); err == nil && member != nil {
		if member.Nick != "" {
			return member.Nick
		}
		if member.User != nil && member.User.Username != "" {
			return member.User.Username
		}
	}
	if user, err := vs.dg.User(userID); err == nil && user.Username != "" {
		return user.Username
	}
	return userID
}

func (vs *voiceSession) speakerFor(ssrc uint32) (audio.Speaker, bool) {
	vs.speakerMux.RLock()
	defer vs.speakerMux.RUnlock()
	speaker, ok := vs.speakers[ssrc]
	return speaker, ok
}
