package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the meeting gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Deepgram STT API configuration (cloud and local sources)
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"de"`  // Language code (de, en, es, etc.)

	// Fireflies configuration (bot-realtime source)
	FirefliesAPIKey      string `envconfig:"FIREFLIES_API_KEY" default:""`
	FirefliesRealtimeURL string `envconfig:"FIREFLIES_REALTIME_URL" default:""` // Override push feed URL (tests, proxies)
	FirefliesGraphQLURL  string `envconfig:"FIREFLIES_GRAPHQL_URL" default:""`  // Override polling API URL

	// Inbound webhook verification
	WebhookSecret string `envconfig:"WEBHOOK_SECRET" default:""` // Empty disables signature checks

	// Automation workflow endpoints (n8n or compatible)
	AutomationTranscriptURL string `envconfig:"AUTOMATION_TRANSCRIPT_URL" default:""`
	AutomationCommandURL    string `envconfig:"AUTOMATION_COMMAND_URL" default:""`

	// Resilience configuration
	ReconnectMaxAttempts int           `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"3"` // Attempts before polling fallback
	ReconnectBaseDelay   time.Duration `envconfig:"RECONNECT_BASE_DELAY" default:"5s"`  // Grows linearly per attempt
	ReconnectMaxDelay    time.Duration `envconfig:"RECONNECT_MAX_DELAY" default:"30s"`
	PollInterval         time.Duration `envconfig:"POLL_INTERVAL" default:"3s"`
	SegmentTimeout       time.Duration `envconfig:"SEGMENT_TIMEOUT" default:"10s"` // Per-segment automation forward
	CommandTimeout       time.Duration `envconfig:"COMMAND_TIMEOUT" default:"30s"` // Command round trip

	// Local capture configuration
	FFmpegPath       string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	AudioInputFormat string `envconfig:"AUDIO_INPUT_FORMAT" default:"pulse"` // pulse, alsa, avfoundation
	AudioInputDevice string `envconfig:"AUDIO_INPUT_DEVICE" default:"default"`
	AudioSampleRate  int    `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`

	// Transcript processing configuration
	FinalOnly             bool `envconfig:"FINAL_ONLY" default:"true"` // Drop interim fragments
	TranscriptBufferSize  int  `envconfig:"TRANSCRIPT_BUFFER_SIZE" default:"50"`
	SubscriberSendTimeout int  `envconfig:"SUBSCRIBER_SEND_TIMEOUT" default:"5"` // Seconds per subscriber write

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.ReconnectMaxAttempts < 1 {
		return nil, fmt.Errorf("RECONNECT_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive")
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
