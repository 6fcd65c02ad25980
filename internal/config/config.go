package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Discord
	DiscordToken string

	// STT backend: "whisper", "vosk" or "deepgram"
	STTBackend string
	Language   string

	// Whisper settings
	WhisperModelPath string

	// Vosk settings
	VoskModelPath string

	// Deepgram settings
	DeepgramAPIKey string
	DeepgramModel  string

	// Gemini settings (optional; empty key disables notes generation)
	GenAIAPIKey string
	GenAIModel  string

	// Pipeline tuning
	ChunkMS           int
	ChunkOverlapMS    int
	SilenceMS         int
	MinSpeechMS       int
	VADAggressiveness int
	STTWorkers        int
	ChunkTickMS       int
	DispatchTickMS    int
	DrainTimeout      time.Duration
	ExtraDenylist     []string

	// Storage
	DataDir string

	// Logging
	LogLevel string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found, using environment variables only")
	}

	cfg := &Config{
		DiscordToken: os.Getenv("DISCORD_TOKEN"),

		STTBackend: getEnvOrDefault("STT_BACKEND", "whisper"),
		Language:   getEnvOrDefault("LANGUAGE", "en"),

		WhisperModelPath: getEnvOrDefault("WHISPER_MODEL_PATH", "./models/ggml-base.bin"),
		VoskModelPath:    getEnvOrDefault("VOSK_MODEL_PATH", "./models/vosk/en"),

		DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:  getEnvOrDefault("DEEPGRAM_MODEL", "nova-2"),

		GenAIAPIKey: os.Getenv("GENAI_API_KEY"),
		GenAIModel:  getEnvOrDefault("GENAI_MODEL", "gemini-1.5-flash"),

		ChunkMS:           getIntEnvOrDefault("CHUNK_MS", 4000),
		ChunkOverlapMS:    getIntEnvOrDefault("CHUNK_OVERLAP_MS", 200),
		SilenceMS:         getIntEnvOrDefault("SILENCE_MS", 700),
		MinSpeechMS:       getIntEnvOrDefault("MIN_SPEECH_MS", 300),
		VADAggressiveness: getIntEnvOrDefault("VAD_AGGRESSIVENESS", 2),
		STTWorkers:        getIntEnvOrDefault("STT_WORKERS", 2),
		ChunkTickMS:       getIntEnvOrDefault("CHUNK_TICK_MS", 250),
		DispatchTickMS:    getIntEnvOrDefault("DISPATCH_TICK_MS", 250),
		DrainTimeout:      time.Duration(getIntEnvOrDefault("DRAIN_TIMEOUT_S", 10)) * time.Second,
		ExtraDenylist:     getListEnvOrDefault("HALLUCINATION_DENYLIST", nil),

		DataDir: getEnvOrDefault("DATA_DIR", "./data"),

		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}

	switch c.STTBackend {
	case "whisper", "vosk", "deepgram":
	default:
		return fmt.Errorf("STT_BACKEND must be 'whisper', 'vosk' or 'deepgram'")
	}

	if c.STTBackend == "deepgram" && c.DeepgramAPIKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required when using deepgram backend")
	}

	if c.VADAggressiveness < 0 || c.VADAggressiveness > 3 {
		return fmt.Errorf("VAD_AGGRESSIVENESS must be between 0 and 3")
	}

	if c.ChunkMS <= 0 {
		return fmt.Errorf("CHUNK_MS must be positive")
	}
	if c.ChunkOverlapMS < 0 || c.ChunkOverlapMS >= c.ChunkMS {
		return fmt.Errorf("CHUNK_OVERLAP_MS must be non-negative and smaller than CHUNK_MS")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getListEnvOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
