// Package bot is the Discord-facing boundary: chat commands, voice transport
// wiring and output delivery. The transcription pipeline itself lives in
// internal/session and internal/stt.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/DuckArrow/discord-scribe/internal/audio"
	"github.com/DuckArrow/discord-scribe/internal/config"
	"github.com/DuckArrow/discord-scribe/internal/session"
	"github.com/DuckArrow/discord-scribe/internal/store"
	"github.com/DuckArrow/discord-scribe/internal/stt"
	"github.com/DuckArrow/discord-scribe/internal/stt/deepgram"
	"github.com/DuckArrow/discord-scribe/internal/stt/vosk"
	"github.com/DuckArrow/discord-scribe/internal/stt/whisper"
	"github.com/DuckArrow/discord-scribe/internal/summariser/gemini"
)

type Bot struct {
	config     *config.Config
	session    *discordgo.Session
	store      *store.FileStore
	summariser *gemini.Summariser
	engine     stt.Engine
	pool       *stt.Pool
	registry   *session.Registry

	poolCancel context.CancelFunc

	// Active voice sessions, keyed by guild ID.
	sessions map[string]*voiceSession
	mutex    sync.RWMutex
}

func NewBot(cfg *config.Config) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("create Discord session: %w", err)
	}

	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	fileStore, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	var summariser *gemini.Summariser
	if cfg.GenAIAPIKey != "" {
		summariser, err = gemini.New(cfg.GenAIAPIKey, cfg.GenAIModel)
		if err != nil {
			return nil, fmt.Errorf("create summariser: %w", err)
		}
	}

	// An engine that fails to load degrades the bot to capture-only rather
	// than refusing to start.
	engine := newEngine(cfg)

	pool := stt.NewPool(engine, stt.NewFilter(cfg.ExtraDenylist), stt.PoolConfig{
		Workers:      cfg.STTWorkers,
		Language:     cfg.Language,
		MinTaskBytes: cfg.MinSpeechMS * audio.EngineBytesPerMs,
	})

	bot := &Bot{
		config:     cfg,
		session:    dg,
		store:      fileStore,
		summariser: summariser,
		engine:     engine,
		pool:       pool,
		registry:   session.NewRegistry(),
		sessions:   make(map[string]*voiceSession),
	}

	dg.AddHandler(bot.onReady)
	dg.AddHandler(bot.onMessageCreate)
	dg.AddHandler(bot.onVoiceStateUpdate)

	return bot, nil
}

// newEngine builds the configured speech engine, returning nil (degraded
// mode) when it cannot be loaded.
func newEngine(cfg *config.Config) stt.Engine {
	var (
		engine stt.Engine
		err    error
	)
	switch cfg.STTBackend {
	case "whisper":
		engine, err = whisper.New(cfg.WhisperModelPath)
	case "vosk":
		engine, err = vosk.New(cfg.VoskModelPath)
	case "deepgram":
		engine = deepgram.New(cfg.DeepgramAPIKey, cfg.DeepgramModel)
	}
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.STTBackend).
			Msg("Speech engine failed to load, running capture-only")
		return nil
	}
	return engine
}

func (b *Bot) Start() error {
	poolCtx, cancel := context.WithCancel(context.Background())
	b.poolCancel = cancel
	if err := b.pool.Start(poolCtx); err != nil {
		cancel()
		return fmt.Errorf("start worker pool: %w", err)
	}

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open Discord session: %w", err)
	}
	log.Info().Msg("Discord bot started")
	return nil
}

// Stop tears down every active session concurrently, then releases the pool,
// engine and gateway connection.
func (b *Bot) Stop() error {
	b.mutex.Lock()
	active := make([]*voiceSession, 0, len(b.sessions))
	for _, vs := range b.sessions {
		active = append(active, vs)
	}
	b.sessions = make(map[string]*voiceSession)
	b.mutex.Unlock()

	var g errgroup.Group
	for _, vs := range active {
		vs := vs
		g.Go(func() error {
			vs.Teardown()
			return nil
		})
	}
	g.Wait()

	b.pool.Stop()
	if b.poolCancel != nil {
		b.poolCancel()
	}

	if err := b.session.Close(); err != nil {
		return fmt.Errorf("close Discord session: %w", err)
	}
	if b.engine != nil {
		b.engine.Close()
	}
	if b.summariser != nil {
		b.summariser.Close()
	}

	log.Info().Msg("Discord bot stopped")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	log.Info().
		Str("username", event.User.Username).
		Int("guilds", len(event.Guilds)).
		Msg("Bot is ready")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.Bot {
		return
	}

	switch strings.TrimSpace(m.Content) {
	case "!join":
		b.handleJoin(s, m)
	case "!stop":
		b.handleStop(s, m)
	case "!leave":
		b.handleLeave(s, m)
	case "!status":
		b.handleStatus(s, m)
	}
}

// onVoiceStateUpdate turns "user left the session's voice channel" into a
// speaker departure so their residual audio is flushed mid-utterance.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, update *discordgo.VoiceStateUpdate) {
	if update.BeforeUpdate == nil {
		return
	}
	vs := b.sessionFor(update.GuildID)
	if vs == nil {
		return
	}
	if update.BeforeUpdate.ChannelID == vs.channelID && update.ChannelID != vs.channelID {
		vs.coord.OnSpeakerDeparted(update.UserID)
	}
}

func (b *Bot) handleJoin(s *discordgo.Session, m *discordgo.MessageCreate) {
	voiceChannelID := b.findVoiceChannel(s, m.GuildID, m.Author.ID)
	if voiceChannelID == "" {
		b.sendError(s, m.ChannelID, "You need to be in a voice channel to use this command")
		return
	}

	// At most one session per guild: starting over an existing one tears the
	// old one down completely first.
	if old := b.sessionFor(m.GuildID); old != nil {
		log.Info().Str("guild_id", m.GuildID).Msg("Replacing existing session")
		old.Teardown()
		b.removeSession(m.GuildID)
	}

	sessionID := store.GenerateSessionID()
	cfg := b.config
	coord := session.New(
		sessionID,
		b.pool,
		b.registry,
		NewChannelSink(s, m.ChannelID),
		b.store,
		session.Config{
			ChunkBytes:        cfg.ChunkMS * audio.EngineBytesPerMs,
			OverlapBytes:      cfg.ChunkOverlapMS * audio.EngineBytesPerMs,
			SilenceAfter:      time.Duration(cfg.SilenceMS) * time.Millisecond,
			VADAggressiveness: cfg.VADAggressiveness,
			ChunkInterval:     time.Duration(cfg.ChunkTickMS) * time.Millisecond,
			DispatchInterval:  time.Duration(cfg.DispatchTickMS) * time.Millisecond,
			DrainTimeout:      cfg.DrainTimeout,
		},
	)

	vs, err := newVoiceSession(s, coord, m.GuildID, voiceChannelID, m.ChannelID)
	if err != nil {
		b.sendError(s, m.ChannelID, fmt.Sprintf("Failed to start recording: %v", err))
		return
	}

	b.mutex.Lock()
	b.sessions[m.GuildID] = vs
	b.mutex.Unlock()

	s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("🎙️ Transcribing <#%s>. Use `!leave` to stop.", voiceChannelID))
	if coord.Degraded() {
		s.ChannelMessageSend(m.ChannelID, "⚠️ Speech engine is not available - capturing audio only, no transcripts will be produced.")
	}

	log.Info().
		Str("session_id", sessionID).
		Str("guild_id", m.GuildID).
		Str("channel_id", voiceChannelID).
		Str("user_id", m.Author.ID).
		Msg("Started transcription session")
}

func (b *Bot) handleStop(s *discordgo.Session, m *discordgo.MessageCreate) {
	vs := b.sessionFor(m.GuildID)
	if vs == nil {
		b.sendError(s, m.ChannelID, "No active transcription session in this server")
		return
	}
	if vs.coord.State() != session.Active {
		b.sendError(s, m.ChannelID, "Transcription is not running")
		return
	}

	vs.StopPipeline()
	s.ChannelMessageSend(m.ChannelID, "⏹️ Transcription stopped. Use `!leave` to disconnect.")
}

func (b *Bot) handleLeave(s *discordgo.Session, m *discordgo.MessageCreate) {
	vs := b.sessionFor(m.GuildID)
	if vs == nil {
		b.sendError(s, m.ChannelID, "No active transcription session in this server")
		return
	}

	vs.Teardown()
	b.removeSession(m.GuildID)
	s.ChannelMessageSend(m.ChannelID, "👋 Left the voice channel.")

	b.postNotes(s, m.ChannelID, vs.coord.ID())

	log.Info().
		Str("session_id", vs.coord.ID()).
		Str("guild_id", m.GuildID).
		Msg("Completed transcription session")
}

func (b *Bot) handleStatus(s *discordgo.Session, m *discordgo.MessageCreate) {
	vs := b.sessionFor(m.GuildID)
	if vs == nil {
		s.ChannelMessageSend(m.ChannelID, "No active session.")
		return
	}

	coord := vs.coord
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Session** `%s`\n", coord.ID())
	fmt.Fprintf(&sb, "State: %s\n", coord.State())
	fmt.Fprintf(&sb, "Tracked speakers: %d\n", coord.SpeakerCount())
	fmt.Fprintf(&sb, "Pending transcriptions: %d\n", coord.PendingTasks())
	if coord.Degraded() {
		sb.WriteString("⚠️ Degraded: no speech engine loaded (capture-only)\n")
	}
	s.ChannelMessageSend(m.ChannelID, sb.String())
}

// postNotes generates and posts meeting notes when a summariser is
// configured; failures are reported but never fatal.
func (b *Bot) postNotes(s *discordgo.Session, channelID, sessionID string) {
	if b.summariser == nil {
		return
	}

	records, err := b.store.Load(sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to load transcript for notes")
		return
	}
	if len(records) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	notes, err := b.summariser.Summarise(ctx, records)
	if err != nil {
		b.sendError(s, channelID, "Failed to generate session notes")
		return
	}
	if _, err := b.store.SaveNotes(sessionID, notes); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to save notes")
	}

	s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: "📝 Session notes:",
		Files: []*discordgo.File{{
			Name:        "notes.md",
			ContentType: "text/markdown",
			Reader:      strings.NewReader(notes),
		}},
	})
}

func (b *Bot) findVoiceChannel(s *discordgo.Session, guildID, userID string) string {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return ""
	}
	for _, voiceState := range guild.VoiceStates {
		if voiceState.UserID == userID {
			return voiceState.ChannelID
		}
	}
	return ""
}

func (b *Bot) sessionFor(guildID string) *voiceSession {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.sessions[guildID]
}

func (b *Bot) removeSession(guildID string) {
	b.mutex.Lock()
	delete(b.sessions, guildID)
	b.mutex.Unlock()
}

func (b *Bot) sendError(s *discordgo.Session, channelID, message string) {
	s.ChannelMessageSend(channelID, "❌ "+message)
	log.Warn().Str("channel_id", channelID).Str("error", message).Msg("Sent error message")
}
