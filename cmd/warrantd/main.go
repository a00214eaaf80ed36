// Command warrantd serves the warrant queue API over HTTP.
//
// Backends are selected by environment: set WARRANT_POSTGRES_URL,
// WARRANT_MONGO_URL, WARRANT_SQLITE_PATH, or WARRANT_REDIS_ADDR to
// enable the corresponding store; any combination may be set and the
// strongest reachable one wins. With none set, warrantd runs on the
// in-memory store, which is fine for a single process and nothing else.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/xraph/warrant/api"
	"github.com/xraph/warrant/gate"
	"github.com/xraph/warrant/queue"
	"github.com/xraph/warrant/store"
	"github.com/xraph/warrant/store/bun"
	"github.com/xraph/warrant/store/memory"
	"github.com/xraph/warrant/store/mongo"
	"github.com/xraph/warrant/store/postgres"
	"github.com/xraph/warrant/store/redis"
	"github.com/xraph/warrant/store/sqlite"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("warrantd exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queueName := envOr("WARRANT_QUEUE", "default")
	addr := envOr("WARRANT_ADDR", ":8080")

	backends, err := buildBackends(ctx, queueName, logger)
	if err != nil {
		return err
	}

	q, err := queue.New(ctx,
		queue.WithBackends(backends...),
		queue.WithLogger(logger),
		queue.WithMigrate(),
	)
	if err != nil {
		return err
	}
	defer q.Close()

	srvOpts := []api.Option{api.WithLogger(logger)}
	if g := buildGate(); g != nil {
		srvOpts = append(srvOpts, api.WithGate(g))
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(q, srvOpts...).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("warrantd listening", "addr", addr, "queue", queueName)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// buildBackends constructs every store the environment names. Connection
// failures are fatal here; unreachable-at-probe-time is the façade's
// concern, unconstructable is ours.
func buildBackends(ctx context.Context, queueName string, logger *slog.Logger) ([]store.Backend, error) {
	var backends []store.Backend

	if dsn := os.Getenv("WARRANT_POSTGRES_URL"); dsn != "" {
		s, err := postgres.New(ctx, dsn, queueName, postgres.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		backends = append(backends, s)
	}
	if dsn := os.Getenv("WARRANT_BUN_URL"); dsn != "" {
		s, err := bun.New(ctx, dsn, queueName, bun.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		backends = append(backends, s)
	}
	if uri := os.Getenv("WARRANT_MONGO_URL"); uri != "" {
		s, err := mongo.New(ctx, uri, queueName, mongo.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		backends = append(backends, s)
	}
	if path := os.Getenv("WARRANT_SQLITE_PATH"); path != "" {
		s, err := sqlite.New(ctx, path, queueName, sqlite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		backends = append(backends, s)
	}
	if addr := os.Getenv("WARRANT_REDIS_ADDR"); addr != "" {
		s, err := redis.NewFromAddr(ctx, addr, queueName, redis.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		backends = append(backends, s)
	}

	if len(backends) == 0 {
		logger.Warn("no durable backend configured, using in-memory store")
		backends = append(backends, memory.New(queueName))
	}
	return backends, nil
}

func buildGate() *gate.Gate {
	cfg := gate.Config{
		Rate:        envFloat("WARRANT_CLAIM_RATE"),
		Burst:       envInt("WARRANT_CLAIM_BURST"),
		MaxInFlight: envInt("WARRANT_MAX_INFLIGHT"),
	}
	if cfg.Rate == 0 && cfg.MaxInFlight == 0 {
		return nil
	}
	return gate.New(cfg)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string) int {
	v, _ := strconv.Atoi(os.Getenv(key))
	return v
}

func envFloat(key string) float64 {
	v, _ := strconv.ParseFloat(os.Getenv(key), 64)
	return v
}
