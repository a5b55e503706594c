package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	os.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	os.Setenv("FIREFLIES_API_KEY", "test-fireflies-key")
	defer os.Unsetenv("DEEPGRAM_API_KEY")
	defer os.Unsetenv("FIREFLIES_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}

	if cfg.FirefliesAPIKey != "test-fireflies-key" {
		t.Errorf("Expected FirefliesAPIKey 'test-fireflies-key', got '%s'", cfg.FirefliesAPIKey)
	}
}

func TestLoad_NoCredentialsStillLoads(t *testing.T) {
	// Credentials are per-source; which sources are usable is decided at
	// session start, not at boot.
	os.Unsetenv("DEEPGRAM_API_KEY")
	os.Unsetenv("FIREFLIES_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.DeepgramAPIKey != "" {
		t.Errorf("Expected empty DeepgramAPIKey, got '%s'", cfg.DeepgramAPIKey)
	}
}

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("PORT")
	os.Unsetenv("DEEPGRAM_MODEL")
	os.Unsetenv("DEEPGRAM_LANGUAGE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}

	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}

	if cfg.DeepgramLanguage != "de" {
		t.Errorf("Expected default DeepgramLanguage 'de', got '%s'", cfg.DeepgramLanguage)
	}

	if cfg.AudioSampleRate != 16000 {
		t.Errorf("Expected default AudioSampleRate 16000, got %d", cfg.AudioSampleRate)
	}

	if !cfg.FinalOnly {
		t.Error("Expected default FinalOnly true, got false")
	}

	if cfg.TranscriptBufferSize != 50 {
		t.Errorf("Expected default TranscriptBufferSize 50, got %d", cfg.TranscriptBufferSize)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	os.Unsetenv("RECONNECT_MAX_ATTEMPTS")
	os.Unsetenv("RECONNECT_BASE_DELAY")
	os.Unsetenv("POLL_INTERVAL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.ReconnectMaxAttempts != 3 {
		t.Errorf("Expected default ReconnectMaxAttempts 3, got %d", cfg.ReconnectMaxAttempts)
	}

	if cfg.ReconnectBaseDelay != 5*time.Second {
		t.Errorf("Expected default ReconnectBaseDelay 5s, got %v", cfg.ReconnectBaseDelay)
	}

	if cfg.PollInterval != 3*time.Second {
		t.Errorf("Expected default PollInterval 3s, got %v", cfg.PollInterval)
	}

	if cfg.SegmentTimeout != 10*time.Second {
		t.Errorf("Expected default SegmentTimeout 10s, got %v", cfg.SegmentTimeout)
	}

	if cfg.CommandTimeout != 30*time.Second {
		t.Errorf("Expected default CommandTimeout 30s, got %v", cfg.CommandTimeout)
	}
}

func TestLoad_RejectsInvalidResilienceValues(t *testing.T) {
	os.Setenv("RECONNECT_MAX_ATTEMPTS", "0")
	defer os.Unsetenv("RECONNECT_MAX_ATTEMPTS")

	if _, err := Load(); err == nil {
		t.Error("Expected error for RECONNECT_MAX_ATTEMPTS=0")
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	defer os.Unsetenv("DEEPGRAM_API_KEY")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}

	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}
