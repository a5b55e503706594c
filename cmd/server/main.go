package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/meetstream/meeting-gateway/internal/automation"
	"github.com/meetstream/meeting-gateway/internal/config"
	"github.com/meetstream/meeting-gateway/internal/connector"
	"github.com/meetstream/meeting-gateway/internal/observability"
	"github.com/meetstream/meeting-gateway/internal/server"
	"github.com/meetstream/meeting-gateway/internal/session"
	"github.com/meetstream/meeting-gateway/internal/source"
	"github.com/meetstream/meeting-gateway/internal/transcript"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Bool("deepgram_configured", cfg.DeepgramAPIKey != "").
		Bool("fireflies_configured", cfg.FirefliesAPIKey != "").
		Bool("automation_configured", cfg.AutomationTranscriptURL != "").
		Msg("Meeting Gateway Service starting")

	automationClient := automation.NewHTTPClient(automation.Config{
		TranscriptURL:  cfg.AutomationTranscriptURL,
		CommandURL:     cfg.AutomationCommandURL,
		SegmentTimeout: cfg.SegmentTimeout,
		CommandTimeout: cfg.CommandTimeout,
	}, logger)

	connCfg := connector.Config{
		MaxAttempts:  cfg.ReconnectMaxAttempts,
		BaseDelay:    cfg.ReconnectBaseDelay,
		MaxDelay:     cfg.ReconnectMaxDelay,
		PollInterval: cfg.PollInterval,
	}
	seqCfg := transcript.SequencerConfig{
		FinalOnly:  cfg.FinalOnly,
		BufferSize: cfg.TranscriptBufferSize,
	}

	registry := session.NewRegistry(buildSourceFactory(cfg), automationClient, connCfg, seqCfg)

	srv := server.New(registry, cfg)

	// Create HTTP server with timeouts
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop active sessions after the listener drains so in-flight
	// requests still see them.
	registry.Shutdown()

	logger.Info().Msg("Server exited gracefully")
}

// buildSourceFactory maps a start request onto the configured transcript
// source variant. Missing credentials surface at session start, not at
// boot, so one unconfigured provider does not block the others.
func buildSourceFactory(cfg *config.Config) session.SourceFactory {
	return func(req session.StartRequest, logger zerolog.Logger) (source.TranscriptSource, source.Poller, error) {
		switch req.Source {
		case transcript.SourceCloud:
			if cfg.DeepgramAPIKey == "" {
				return nil, nil, fmt.Errorf("cloud source: %w", transcript.ErrMissingCredentials)
			}
			src := source.NewDeepgramSource(source.DeepgramOptions{
				APIKey:   cfg.DeepgramAPIKey,
				Model:    cfg.DeepgramModel,
				Language: cfg.DeepgramLanguage,
			}, logger)
			return src, nil, nil

		case transcript.SourceBotRealtime:
			if cfg.FirefliesAPIKey == "" {
				return nil, nil, fmt.Errorf("bot_realtime source: %w", transcript.ErrMissingCredentials)
			}
			if req.TranscriptID == "" {
				return nil, nil, fmt.Errorf("bot_realtime source: transcript_id is required")
			}
			opts := source.FirefliesOptions{
				APIKey:       cfg.FirefliesAPIKey,
				TranscriptID: req.TranscriptID,
				RealtimeURL:  cfg.FirefliesRealtimeURL,
				GraphQLURL:   cfg.FirefliesGraphQLURL,
			}
			return source.NewFirefliesSource(opts, logger), source.NewFirefliesPoller(opts, logger), nil

		case transcript.SourceLocal:
			if cfg.DeepgramAPIKey == "" {
				return nil, nil, fmt.Errorf("local source: %w", transcript.ErrMissingCredentials)
			}
			src := source.NewLocalSource(source.LocalOptions{
				Deepgram: source.DeepgramOptions{
					APIKey:   cfg.DeepgramAPIKey,
					Model:    cfg.DeepgramModel,
					Language: cfg.DeepgramLanguage,
				},
				FFmpegPath:  cfg.FFmpegPath,
				InputFormat: cfg.AudioInputFormat,
				InputDevice: cfg.AudioInputDevice,
				SampleRate:  cfg.AudioSampleRate,
			}, logger)
			return src, nil, nil
		}

		return nil, nil, fmt.Errorf("unknown source %q", req.Source)
	}
}
