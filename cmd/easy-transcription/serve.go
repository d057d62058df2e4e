package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/easytranscription/easy-transcription/internal/config"
	"github.com/easytranscription/easy-transcription/internal/metrics"
	"github.com/easytranscription/easy-transcription/internal/server"
	"github.com/easytranscription/easy-transcription/internal/session"
	"github.com/easytranscription/easy-transcription/internal/storage"
	"github.com/easytranscription/easy-transcription/internal/transcription"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// services bundles the components shared by serve and transcribe
type services struct {
	store      *storage.Store
	client     *transcription.Client
	sessionMgr *session.Manager
	metrics    *metrics.Metrics
}

func newServices(cfg *config.Config, uploadDir string, logger *slog.Logger, reg prometheus.Registerer) (*services, error) {
	m := metrics.NewMetrics(reg)

	store, err := storage.NewStore(uploadDir, cfg.Storage.GetMaxUploadBytes(), logger)
	if err != nil {
		return nil, err
	}

	client, err := transcription.NewClient(transcription.Config{
		Endpoint:          cfg.Transcription.Endpoint,
		APIKey:            cfg.Transcription.APIKey,
		Model:             cfg.Transcription.Model,
		SmartFormat:       cfg.Transcription.SmartFormat,
		Diarize:           cfg.Transcription.Diarize,
		Timeout:           cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:        cfg.Transcription.MaxRetries,
		MaxConcurrent:     cfg.Transcription.MaxConcurrent,
		RequestsPerMinute: cfg.Transcription.RequestsPerMinute,
	}, logger, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription client: %w", err)
	}

	// every attempt may run to the request timeout, plus backoff
	attempts := time.Duration(cfg.Transcription.MaxRetries + 1)
	sessionMgr := session.NewManager(logger, session.Config{
		Timeout:              cfg.Session.GetTimeoutDuration(),
		CleanupInterval:      cfg.Session.GetCleanupIntervalDuration(),
		TranscriptionTimeout: attempts*cfg.Transcription.GetTimeoutDuration() + time.Minute,
	}, store, &session.FileTranscriber{Client: client, Store: store}, m)

	return &services{
		store:      store,
		client:     client,
		sessionMgr: sessionMgr,
		metrics:    m,
	}, nil
}

func (s *services) close() {
	s.sessionMgr.Stop()
	s.client.Close()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Logging)
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPath),
	)
	logger.Info("Configuration loaded",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		slog.String("upload_dir", cfg.Storage.UploadDir),
		slog.Int("max_upload_mb", cfg.Storage.MaxUploadMB),
		slog.Int("session_timeout", cfg.Session.Timeout),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("transcription_model", cfg.Transcription.Model),
		slog.String("log_level", cfg.Logging.Level),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc, err := newServices(cfg, cfg.Storage.UploadDir, logger, reg)
	if err != nil {
		return err
	}
	defer svc.close()

	httpServer := server.NewHTTPServer(cfg.HTTP, logger, cfg, svc.sessionMgr, svc.store, svc.client, svc.metrics, reg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Starting graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
		return nil
	})

	logger.Info("Service started successfully, waiting for signals...")

	err = g.Wait()

	stats := svc.client.GetStats()
	logger.Info("Final transcription statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
		slog.Int("active_sessions", svc.sessionMgr.GetActiveSessionCount()),
	)
	logger.Info("Service stopped")

	return err
}
