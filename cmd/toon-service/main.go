// main package for the toon-service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/toon-service/internal/config"
	"github.com/book-expert/toon-service/internal/metrics"
	"github.com/book-expert/toon-service/internal/objectstore"
	"github.com/book-expert/toon-service/internal/service"
	"github.com/book-expert/toon-service/internal/worker"
)

const (
	bootstrapLogFile = "toon-service-bootstrap.log"
	serviceLogFile   = "toon-service.log"
	shutdownTimeout  = 5 * time.Second
	readHeaderLimit  = 10 * time.Second
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	manager := metrics.New()

	if cfg.Paths.MetricsAddress != "" {
		stopMetrics := serveMetrics(cfg.Paths.MetricsAddress, manager, log)
		defer stopMetrics()
	}

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	defer natsConnection.Close()

	js, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	stores, err := openStores(js, cfg.NATS)
	if err != nil {
		return err
	}

	renderPipeline, err := service.NewPipeline(cfg, log, manager)
	if err != nil {
		return fmt.Errorf("failed to create render pipeline: %w", err)
	}

	natsWorker := worker.NewNatsWorker(
		natsConnection,
		worker.Subjects{
			AudioChunkCreated: cfg.NATS.AudioChunkCreatedSubject,
			TextProcessed:     cfg.NATS.TextProcessedSubject,
			VideoRendered:     cfg.NATS.VideoRenderedSubject,
		},
		stores,
		renderPipeline,
		log,
		worker.WithTimeout(cfg.RenderTimeout()),
		worker.WithScratchDir(cfg.Paths.WorkDir),
	)

	log.System("Toon-Service successfully initialized. Listening for jobs on subject: %s", cfg.NATS.AudioChunkCreatedSubject)

	return natsWorker.Run(ctx)
}

func openStores(js nats.JetStreamContext, cfg config.NATSConfig) (worker.Stores, error) {
	audioStore, err := objectstore.New(js, cfg.AudioObjectStoreBucket)
	if err != nil {
		return worker.Stores{}, fmt.Errorf("failed to open audio bucket: %w", err)
	}

	videoStore, err := objectstore.New(js, cfg.VideoObjectStoreBucket)
	if err != nil {
		return worker.Stores{}, fmt.Errorf("failed to open video bucket: %w", err)
	}

	stores := worker.Stores{Audio: audioStore, Video: videoStore}

	if cfg.TranscriptBucket != "" && cfg.TextProcessedSubject != "" {
		textStore, textErr := objectstore.New(js, cfg.TranscriptBucket)
		if textErr != nil {
			return worker.Stores{}, fmt.Errorf("failed to open transcript bucket: %w", textErr)
		}

		stores.Text = textStore
	}

	return stores, nil
}

// serveMetrics exposes the registry on address until the returned function
// is called.
func serveMetrics(address string, manager *metrics.Manager, log *logger.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", manager.Handler())

	server := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: readHeaderLimit}

	go func() {
		log.Info("Serving metrics on %s/metrics", address)

		listenErr := server.ListenAndServe()
		if listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			log.Error("Metrics server failed: %v", listenErr)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = server.Shutdown(ctx)
	}
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
