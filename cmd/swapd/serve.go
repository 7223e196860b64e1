package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sai-swap/internal/api"
	"sai-swap/internal/config"
	"sai-swap/internal/observability"
	"sai-swap/internal/pda"
	"sai-swap/internal/program"
	"sai-swap/internal/storage"
	chstore "sai-swap/internal/storage/clickhouse"
	"sai-swap/internal/storage/memory"
	"sai-swap/internal/storage/migrations"
	"sai-swap/internal/storage/postgres"
	"sai-swap/internal/swap"
	"sai-swap/internal/token"
)

const logModule = "swapd"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "HTTP listen address")
	serveCmd.Flags().Bool("dev_mode", false, "enable /v1/dev funding endpoints")
	serveCmd.Flags().Bool("storage.migrate", false, "apply migrations before serving")
}

// backends holds the opened storage and how to release it.
type backends struct {
	ledger  storage.Ledger
	events  storage.EventStore
	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openPool(ctx context.Context, cfg *config.Config) (*postgres.Pool, error) {
	return postgres.NewPool(ctx, cfg.Storage.PostgresDSN,
		postgres.WithMaxConns(cfg.Storage.PostgresMaxConns),
		postgres.WithConnectTimeout(cfg.Storage.PostgresConnectTimeout),
	)
}

// openBackends opens the ledger and journal named by cfg, applying migrations
// first when cfg.Storage.Migrate is set.
func openBackends(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (*backends, error) {
	b := &backends{}

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)

		if cfg.Storage.Migrate {
			if _, err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				b.Close()
				return nil, err
			}
		}
		b.ledger = postgres.NewLedger(pool, metrics)
	default:
		b.ledger = memory.NewLedger()
	}

	if cfg.Storage.ClickhouseDSN == "" {
		b.events = memory.NewEventStore()
		return b, nil
	}

	var (
		conn *chstore.Conn
		err  error
	)
	if cfg.Storage.Migrate {
		conn, err = migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
	} else {
		conn, err = chstore.NewConn(ctx, cfg.Storage.ClickhouseDSN)
	}
	if err != nil {
		b.Close()
		return nil, err
	}
	b.closers = append(b.closers, func() { conn.Close() })
	b.events = chstore.NewEventStore(conn)
	return b, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logCloser, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer, cfg.Metrics.Namespace)

	b, err := openBackends(ctx, cfg, metrics)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer b.Close()

	hub := api.NewHub(cfg.Stream.BufferSize, metrics)
	deriver := pda.NewDeriver(cfg.Program())
	engine := swap.NewEngine(b.ledger, deriver,
		swap.WithEventSink(api.NewJournal(b.events, hub)),
		swap.WithMetrics(metrics),
	)

	srv := api.New(api.Config{
		Processor:    program.NewProcessor(engine, deriver),
		Engine:       engine,
		Tokens:       token.NewService(b.ledger),
		Events:       b.events,
		Hub:          hub,
		Metrics:      metrics,
		DevMode:      cfg.DevMode,
		WriteTimeout: cfg.Stream.WriteTimeout,
		PingInterval: cfg.Stream.PingInterval,
	})

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"module":   logModule,
			"listen":   cfg.Listen,
			"driver":   cfg.Storage.Driver,
			"program":  cfg.ProgramID,
			"dev_mode": cfg.DevMode,
		}).Info("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.WithField("module", logModule).Info("shutting down")

	// Hijacked stream connections are not tracked by Shutdown; closing the hub ends them.
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.WithField("module", logModule).Info("shutdown complete")
	return nil
}
