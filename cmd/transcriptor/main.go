package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/timsteinerr/transcriptor/internal/adapters/duckdb"
	"github.com/timsteinerr/transcriptor/internal/adapters/redisstream"
	"github.com/timsteinerr/transcriptor/internal/adapters/whisper"
	"github.com/timsteinerr/transcriptor/internal/adapters/ytdlp"
	"github.com/timsteinerr/transcriptor/internal/config"
	"github.com/timsteinerr/transcriptor/internal/core/ports"
	"github.com/timsteinerr/transcriptor/internal/core/services"
	"github.com/timsteinerr/transcriptor/pkg/kernel"
	"golang.org/x/sync/errgroup"
)

func main() {
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := config.Load(bootLogger)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	logger.Info("starting transcriptor")

	if err := run(logger, cfg); err != nil {
		logger.Error("transcriptor startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	// Initialize Adapters
	fetcher := ytdlp.NewFetcher(logger, cfg.YtDlpPath)
	transcriber := whisper.NewTranscriber(logger, whisper.Config{
		Binary:   cfg.WhisperBinary,
		Model:    cfg.WhisperModel,
		ModelDir: cfg.WhisperModelDir,
	})
	logger.Info("external tools configured",
		"yt_dlp", fetcher.Binary(),
		"whisper_cpp", cfg.WhisperBinary,
		"whisper_model", cfg.WhisperModel,
	)
	if modelPath, err := transcriber.ModelPath(); err != nil {
		logger.Warn("whisper model not available yet, jobs will fail until it is installed", "error", err)
	} else {
		logger.Info("whisper model located", "path", modelPath)
	}

	var history ports.HistoryRepository
	if cfg.HistoryDB != "" {
		repo, err := duckdb.NewRepository(cfg.HistoryDB)
		if err != nil {
			return fmt.Errorf("failed to init history db: %w", err)
		}
		defer repo.Close()
		history = repo
		logger.Info("job history enabled", "path", cfg.HistoryDB)
	}

	redisClient := redisstream.NewClient(redisstream.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if redisClient != nil {
		defer redisClient.Close()
		if err := redisstream.Ping(ctx, redisClient); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("event mirroring enabled", "addr", cfg.RedisAddr, "stream", cfg.EventStream)
	}

	// Initialize Services
	eventBus := services.NewEventBus(logger)
	registry := services.NewJobRegistry()
	workspace := services.NewWorkspaceManager(cfg.WorkDir)
	scheduler := services.NewJobScheduler(logger, services.SchedulerConfig{MaxConcurrentJobs: cfg.MaxConcurrentJobs})
	pipeline := services.NewWorkerPipeline(logger, registry, workspace, eventBus, fetcher, transcriber,
		services.PipelineConfig{FetchTimeout: cfg.FetchTimeout})
	jobs := services.NewJobService(logger, registry, scheduler, pipeline, eventBus)

	// Initialize Kernel API Server
	apiServer, err := kernel.NewServer(ctx, logger, jobs, history, cfg.StaticDir)
	if err != nil {
		return fmt.Errorf("failed to init api server: %w", err)
	}

	// CORS Configuration
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: c.Handler(apiServer.Handler()),
	}

	// 1. Event consumers outlive the server so shutdown outcomes are still recorded.
	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()
	var consumers errgroup.Group
	if history != nil {
		recorder := services.NewHistoryRecorder(logger, eventBus, history)
		consumers.Go(func() error {
			return recorder.Run(consumerCtx)
		})
	}
	if redisClient != nil {
		relay := services.NewEventRelay(logger, eventBus, redisstream.NewEventStream(redisClient, cfg.EventStream, 0))
		consumers.Go(func() error {
			return relay.Run(consumerCtx)
		})
	}

	// Application Loop
	g, gCtx := errgroup.WithContext(ctx)

	// 2. Start API Server
	g.Go(func() error {
		logger.Info("starting api server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	// 3. Graceful Shutdown for API Server
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	// Pipelines see the cancelled context; let them record their outcome and clean up.
	cancel()
	scheduler.Wait()

	stopConsumers()
	if cerr := consumers.Wait(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
