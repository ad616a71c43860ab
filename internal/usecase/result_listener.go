package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/puzzler-io/puzzler/internal/domain"
	"github.com/puzzler-io/puzzler/internal/streamer"
)

// ResultConsumer is the broker surface the listener needs.
type ResultConsumer interface {
	ConsumeResults(ctx domain.Context) (<-chan domain.Delivery, error)
}

// ResultListener drains the result queue on the API side: it applies the
// terminal status to the KV record, fans the frame out to local stream
// subscribers, and optionally republishes it over the KV pubsub for other
// API instances. bus may be nil when cross-instance fan-out is disabled.
type ResultListener struct {
	store  domain.ProblemStore
	queue  ResultConsumer
	stream *streamer.Streamer
	bus    domain.ResultBus
	log    *slog.Logger
}

// NewResultListener wires a listener.
func NewResultListener(store domain.ProblemStore, queue ResultConsumer, stream *streamer.Streamer, bus domain.ResultBus, log *slog.Logger) *ResultListener {
	if log == nil {
		log = slog.Default()
	}
	return &ResultListener{store: store, queue: queue, stream: stream, bus: bus, log: log}
}

// Run consumes until ctx is cancelled.
func (l *ResultListener) Run(ctx domain.Context) error {
	deliveries, err := l.queue.ConsumeResults(ctx)
	if err != nil {
		return fmt.Errorf("result listener: consume: %w", err)
	}
	l.log.Info("result listener consuming")
	for d := range deliveries {
		l.Handle(ctx, d)
	}
	l.log.Info("result listener stopped")
	return nil
}

// Handle settles one result delivery. Storage failures requeue; malformed
// frames are dropped.
func (l *ResultListener) Handle(ctx domain.Context, d domain.Delivery) {
	var msg domain.ResultMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		l.log.Error("dropping malformed result frame", slog.Any("error", err))
		l.settle(d.Ack)
		return
	}
	id := msg.ResolveID()
	if id == "" || msg.Status == "" {
		l.log.Error("dropping result frame without id or status")
		l.settle(d.Ack)
		return
	}
	log := l.log.With(slog.String("problem_id", id), slog.String("status", msg.Status))

	fields := map[string]string{"status": msg.Status}
	if msg.Output != "" {
		fields["output"] = msg.Output
	}
	if msg.SolutionTime != "" {
		fields["solution_time"] = msg.SolutionTime
	}
	if msg.ErrorMessage != "" {
		fields["error_message"] = msg.ErrorMessage
	}
	if err := l.store.UpsertFields(ctx, id, fields); err != nil && !errors.Is(err, domain.ErrTerminal) {
		log.Error("apply result failed, requeueing", slog.Any("error", err))
		if err := d.Nack(true); err != nil {
			log.Error("nack failed", slog.Any("error", err))
		}
		return
	}

	l.stream.Publish(id, d.Body)
	if l.bus != nil {
		// Cross-instance fan-out is best effort; the KV record is already
		// terminal and pollers see it either way.
		if err := l.bus.PublishResult(ctx, id, d.Body); err != nil {
			log.Warn("pubsub republish failed", slog.Any("error", err))
		}
	}

	log.Info("result applied")
	l.settle(d.Ack)
}

func (l *ResultListener) settle(ack func() error) {
	if err := ack(); err != nil {
		l.log.Error("ack failed", slog.Any("error", err))
	}
}
