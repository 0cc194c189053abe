package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/raine/tori-extract/config"
	"github.com/raine/tori-extract/internal/api"
	"github.com/raine/tori-extract/internal/extraction"
	"github.com/raine/tori-extract/internal/llm"
	"github.com/raine/tori-extract/internal/media"
	"github.com/raine/tori-extract/internal/notify"
	"github.com/raine/tori-extract/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	logFileName     = "tori-extract.log"
	shutdownTimeout = 30 * time.Second
	cachePruneEvery = 24 * time.Hour
	cacheMaxAge     = 30 * 24 * time.Hour
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	config.LoadEnvFile()

	if missing := config.Missing(); len(missing) > 0 {
		fatal("missing required config: %s", strings.Join(missing, ", "))
	}

	// JOURNAL_STREAM is set by systemd when running as a service.
	// Skip file logging under systemd (journald handles it).
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			fatal("failed to open log file: %v", err)
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))

		log.Info().Str("logFile", logFileName).Msg("logging to file")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("invalid config: %v", err)
	}

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("shutdown with error")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.Config) error {
	frames := media.NewFFmpegExtractor(cfg.FFmpegPath, cfg.FrameInterval, cfg.MaxFrames)
	if err := frames.Available(); err != nil {
		return err
	}

	geminiClient, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return err
	}
	log.Info().Msg("gemini client initialized")

	var cache *storage.SQLiteStore
	var analyzer llm.VisionAnalyzer = llm.NewGeminiVision(geminiClient)
	if cfg.CacheDBPath != "" {
		cache, err = storage.NewSQLiteStore(cfg.CacheDBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize analysis cache: %w", err)
		}
		defer cache.Close()
		analyzer = llm.NewCachedAnalyzer(analyzer, cache)
		log.Info().Str("dbPath", cfg.CacheDBPath).Msg("analysis caching enabled")
	}

	var text llm.TextGenerator
	switch cfg.TextProvider {
	case config.TextProviderNebius:
		text = llm.NewNebiusClient(llm.NebiusOpts{
			BaseURL: cfg.NebiusBaseURL,
			APIKey:  cfg.NebiusAPIKey,
			Model:   cfg.NebiusModel,
			Timeout: cfg.StageTimeout,
		})
	default:
		text = llm.NewGeminiText(geminiClient)
	}
	log.Info().Str("provider", cfg.TextProvider).Msg("text generator initialized")

	orch := extraction.NewOrchestrator(extraction.NewStore(), extraction.Collaborators{
		Frames:     frames,
		Detector:   analyzer,
		Filter:     analyzer,
		Listings:   llm.NewListingWriter(text),
		Negotiator: llm.NewNegotiationAssistant(text),
	}, extraction.Config{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		StageTimeout:      cfg.StageTimeout,
		JobTimeout:        cfg.JobTimeout,
		MaxUploadBytes:    cfg.MaxUploadBytes(),
		Retention:         cfg.JobRetention,
	})

	if cfg.NotificationsEnabled() {
		tg, err := notify.NewBotAPI(cfg.BotToken)
		if err != nil {
			return err
		}
		orch.SetNotifier(notify.NewTelegramNotifier(tg, cfg.NotifyChatID))
	}

	server := api.NewServer(cfg.HTTPAddr, api.NewHandler(api.Deps{
		Service:        orch,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		CORSOrigins:    cfg.CORSOrigins,
	}))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		orch.RunJanitor(ctx)
		return nil
	})

	if cache != nil {
		g.Go(func() error {
			pruneCache(ctx, cache)
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http server shutdown")
		}
		return orch.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// pruneCache drops stale analysis cache entries once a day.
func pruneCache(ctx context.Context, cache storage.AnalysisCache) {
	ticker := time.NewTicker(cachePruneEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := cache.PruneAnalysis(cacheMaxAge)
			if err != nil {
				log.Warn().Err(err).Msg("failed to prune analysis cache")
				continue
			}
			if n > 0 {
				log.Info().Int64("pruned", n).Msg("pruned analysis cache")
			}
		}
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
