// Command worker runs the solve fleet. By default it supervises N worker
// subprocesses (fresh address spaces, no shared broker connections); with
// -single it runs one worker loop in-process.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/puzzler-io/puzzler/internal/adapter/kv/redis"
	"github.com/puzzler-io/puzzler/internal/adapter/observability"
	"github.com/puzzler-io/puzzler/internal/adapter/queue/rabbitmq"
	"github.com/puzzler-io/puzzler/internal/config"
	"github.com/puzzler-io/puzzler/internal/domain"
	"github.com/puzzler-io/puzzler/internal/solver"
	"github.com/puzzler-io/puzzler/internal/solver/backend/glucose"
	"github.com/puzzler-io/puzzler/internal/solver/backend/scip"
	"github.com/puzzler-io/puzzler/internal/solver/model/sudoku"
	"github.com/puzzler-io/puzzler/internal/worker"
)

func main() {
	single := flag.Bool("single", false, "run one worker loop instead of supervising a fleet")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*single {
		sup := worker.NewSupervisor(cfg.WorkerCount(), cfg.WorkerShutdownGrace, logger)
		slog.Info("starting worker supervisor", slog.Int("workers", cfg.WorkerCount()))
		if err := sup.Run(ctx); err != nil {
			slog.Error("supervisor failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	store := redis.New(cfg.RedisAddr(), cfg.RedisDB, cfg.RedisMaxConnections)
	if err := store.Ping(ctx); err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	queue, err := rabbitmq.Dial(cfg.AMQPURL(), cfg.WorkQueue(), cfg.ResultQueueName, cfg.RabbitMQPoolSize)
	if err != nil {
		slog.Error("rabbitmq connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer queue.Close()

	registry := solver.NewRegistry()
	registry.Register(
		solver.Key{Type: domain.TypeIP, Name: domain.NameSudoku},
		solver.Entry{Model: sudoku.New(), Adapter: scip.New(cfg.SCIPBin, cfg.SolverTimeLimit)},
	)
	registry.Register(
		solver.Key{Type: domain.TypeSAT, Name: domain.NameSudoku},
		solver.Entry{Model: sudoku.New(), Adapter: glucose.New(cfg.GlucoseBin, cfg.SolverTimeLimit)},
	)

	w := worker.New(store, queue, registry, logger)
	slog.Info("starting single worker")
	if err := w.Run(ctx); err != nil {
		slog.Error("worker failed", slog.Any("error", err))
		os.Exit(1)
	}
}
