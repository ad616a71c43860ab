// Command server starts the puzzler API: problem submission, retrieval, and
// the SSE result stream, plus the background result listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/puzzler-io/puzzler/internal/adapter/httpserver"
	"github.com/puzzler-io/puzzler/internal/adapter/kv/redis"
	"github.com/puzzler-io/puzzler/internal/adapter/observability"
	"github.com/puzzler-io/puzzler/internal/adapter/queue/rabbitmq"
	"github.com/puzzler-io/puzzler/internal/app"
	"github.com/puzzler-io/puzzler/internal/config"
	"github.com/puzzler-io/puzzler/internal/domain"
	"github.com/puzzler-io/puzzler/internal/streamer"
	"github.com/puzzler-io/puzzler/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Infra: KV store and broker.
	store := redis.New(cfg.RedisAddr(), cfg.RedisDB, cfg.RedisMaxConnections)
	if err := store.Ping(context.Background()); err != nil {
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

	// Fan-out plus the background consumers.
	stream := streamer.New(logger)
	var bus domain.ResultBus
	if cfg.RedisFanout {
		bus = store
	}

	submitSvc := usecase.NewSubmitService(store, queue, logger)
	querySvc := usecase.NewQueryService(store)
	listener := usecase.NewResultListener(store, queue, stream, bus, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := listener.Run(ctx); err != nil {
			slog.Error("result listener failed", slog.Any("error", err))
		}
	}()

	if cfg.RedisFanout {
		// Frames applied by listeners on other instances arrive over Redis
		// pubsub and feed the local subscribers.
		go func() {
			ps := store.SubscribeResults(ctx)
			defer func() { _ = ps.Close() }()
			frames := make(chan streamer.Frame)
			go func() {
				defer close(frames)
				for msg := range ps.Channel() {
					frames <- streamer.Frame{
						ProblemID: redis.ChannelProblemID(msg.Channel),
						Payload:   []byte(msg.Payload),
					}
				}
			}()
			stream.Relay(ctx, frames)
		}()
	}

	if cfg.ReconcileInterval > 0 {
		reconciler := usecase.NewReconciler(store, queue, cfg.ReconcileInterval, cfg.ReconcileMinAge, logger)
		go reconciler.Run(ctx)
		slog.Info("reconciler started",
			slog.Duration("interval", cfg.ReconcileInterval),
			slog.Duration("min_age", cfg.ReconcileMinAge))
	}

	srv := httpserver.NewServer(cfg, submitSvc, querySvc, stream, store.Ping, queue.Ping)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
