// Embedlifed is the embedlife daemon: it serves the document lifecycle and
// search API over HTTP.
//
// Configuration is read from ~/.config/embedlife/config.yaml (or the file
// given with -config) and EMBEDLIFE_* environment variables. See
// internal/config for details.
//
// Usage:
//
//	# Start with defaults (in-memory store, static embeddings)
//	embedlifed
//
//	# Use Qdrant and a TEI server
//	EMBEDLIFE_STORE_PROVIDER=qdrant EMBEDLIFE_EMBEDDINGS_PROVIDER=tei \
//	EMBEDLIFE_EMBEDDINGS_BASE_URL=http://localhost:8080 embedlifed
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedlife/internal/config"
	"github.com/fyrsmithlabs/embedlife/internal/embeddings"
	"github.com/fyrsmithlabs/embedlife/internal/events"
	httpserver "github.com/fyrsmithlabs/embedlife/internal/http"
	"github.com/fyrsmithlabs/embedlife/internal/ingest"
	"github.com/fyrsmithlabs/embedlife/internal/logging"
	"github.com/fyrsmithlabs/embedlife/internal/storemanager"
	"github.com/fyrsmithlabs/embedlife/internal/telemetry"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/embedlife/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  embedlifed [-config FILE]   Start the embedlife daemon\n")
			fmt.Fprintf(os.Stderr, "  embedlifed version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("embedlifed by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until ctx is cancelled, then shuts
// everything down in reverse order.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	tel, err := telemetry.New(ctx, cfg.TelemetryConfig(version), logger.Named("telemetry"))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	manager, err := storemanager.New(cfg.ManagerConfig(), deps.store, deps.embedder, deps.bus, logger.Named("storemanager"))
	if err != nil {
		return fmt.Errorf("failed to create store manager: %w", err)
	}

	if cfg.Maintenance.SchedulerEnabled {
		scheduler := storemanager.NewScheduler(manager, cfg.SchedulerConfig(), logger.Named("scheduler"))
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start maintenance scheduler: %w", err)
		}
		defer scheduler.Stop()
	}

	if cfg.Ingest.Enabled {
		watcher, err := ingest.New(ingest.Config{
			Dir:         cfg.Ingest.Dir,
			TenantID:    cfg.Ingest.TenantID,
			ContentType: vectorstore.ContentType(cfg.Ingest.ContentType),
			Extensions:  cfg.Ingest.Extensions,
			Debounce:    cfg.Ingest.Debounce.Duration(),
		}, manager, logger.Named("ingest"))
		if err != nil {
			return fmt.Errorf("failed to create inbox watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start inbox watcher: %w", err)
		}
		defer func() {
			if err := watcher.Stop(); err != nil {
				logger.Warn("inbox watcher shutdown failed", zap.Error(err))
			}
		}()
	}

	srv, err := httpserver.NewServer(manager, logger.Named("http"), &httpserver.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	logger.Info("starting embedlife",
		zap.String("version", version),
		zap.String("store", cfg.Store.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.Int("dimension", deps.embedder.Dimension()),
		zap.Bool("nats", deps.nc != nil),
		zap.Bool("scheduler", cfg.Maintenance.SchedulerEnabled),
		zap.Bool("ingest", cfg.Ingest.Enabled),
		zap.Bool("telemetry", tel.IsEnabled()),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// dependencies holds the infrastructure the store manager runs on.
type dependencies struct {
	embedder embeddings.Provider
	store    vectorstore.Store
	bus      *events.Bus
	nc       *nats.Conn
	logger   *zap.Logger
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.nc != nil {
		if err := d.nc.Drain(); err != nil {
			d.logger.Warn("draining nats connection failed", zap.Error(err))
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("closing vector store failed", zap.Error(err))
		}
	}
	if d.embedder != nil {
		if err := d.embedder.Close(); err != nil {
			d.logger.Warn("closing embedding provider failed", zap.Error(err))
		}
	}
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	logCfg, err := cfg.LoggingConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Telemetry.Enabled {
		logCfg.Bridge = global.GetLoggerProvider()
	}
	return logging.New(logCfg)
}

// initDependencies creates the embedding provider, the vector store sized
// to its dimension, and the event bus with an optional NATS publisher.
func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{logger: logger}

	embedder, err := embeddings.NewProvider(cfg.EmbeddingsConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	deps.embedder = embedder
	logger.Info("embedding provider initialized",
		zap.String("provider", cfg.Embeddings.Provider),
		zap.String("model", embedder.Model()),
		zap.Int("dimension", embedder.Dimension()))

	store, err := vectorstore.NewStore(ctx, cfg.VectorStoreConfig(embedder.Dimension()), logger.Named("vectorstore"))
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.store = store

	deps.bus = events.NewBus(logger.Named("events"))
	if cfg.Events.NATSURL != "" {
		nc, err := nats.Connect(cfg.Events.NATSURL,
			nats.Name("embedlifed"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.Events.NATSURL, err)
		}
		deps.nc = nc
		deps.bus.Subscribe(events.NewNATSPublisher(nc, cfg.Events.SubjectPrefix))
		logger.Info("publishing lifecycle events to NATS",
			zap.String("url", cfg.Events.NATSURL),
			zap.String("subject_prefix", cfg.Events.SubjectPrefix))
	}
	return deps, nil
}
