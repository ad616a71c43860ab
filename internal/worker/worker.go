// Package worker runs the solve pipeline: consume a problem, claim it,
// encode, solve, decode, persist, publish the result.
package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/puzzler-io/puzzler/internal/adapter/observability"
	"github.com/puzzler-io/puzzler/internal/codec"
	"github.com/puzzler-io/puzzler/internal/domain"
	"github.com/puzzler-io/puzzler/internal/solver"
)

// Queue is the broker surface the worker needs: one consumer on the work
// queue and publishing on the result queue.
type Queue interface {
	ConsumeWork(ctx domain.Context) (<-chan domain.Delivery, error)
	PublishResult(ctx domain.Context, msg domain.ResultMessage) error
}

// Worker processes one message at a time (prefetch=1 fair dispatch).
type Worker struct {
	store    domain.ProblemStore
	queue    Queue
	registry *solver.Registry
	log      *slog.Logger
}

// New wires a worker from its dependencies.
func New(store domain.ProblemStore, queue Queue, registry *solver.Registry, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{store: store, queue: queue, registry: registry, log: log}
}

// Run consumes until ctx is cancelled. The delivery channel closes on
// cancellation; an unsettled message returns to the queue.
func (w *Worker) Run(ctx domain.Context) error {
	deliveries, err := w.queue.ConsumeWork(ctx)
	if err != nil {
		return fmt.Errorf("worker: consume: %w", err)
	}
	w.log.Info("worker consuming")
	for d := range deliveries {
		w.Process(ctx, d)
	}
	w.log.Info("worker stopped")
	return nil
}

// Process runs the pipeline for one delivery and settles it exactly once.
//
// Deterministic failures (malformed payload, encoder or decoder errors) are
// never requeued; broker and storage I/O failures are.
func (w *Worker) Process(ctx domain.Context, d domain.Delivery) {
	p, err := codec.Decode(d.Body)
	if err != nil {
		// Poison message: requeueing would loop forever.
		w.log.Error("dropping malformed problem payload", slog.Any("error", err))
		if err := d.Ack(); err != nil {
			w.log.Error("ack failed", slog.Any("error", err))
		}
		return
	}
	log := w.log.With(
		slog.String("problem_id", p.ID),
		slog.String("problem_type", string(p.Type)),
		slog.String("problem_name", string(p.Name)))

	// Claim before encoding so the record shows IN_PROGRESS while the solver
	// runs. A terminal record means a duplicate delivery; drop it.
	err = w.store.UpsertFields(ctx, p.ID, map[string]string{"status": string(domain.StatusInProgress)})
	switch {
	case errors.Is(err, domain.ErrTerminal):
		log.Warn("duplicate delivery for settled problem, dropping")
		if err := d.Ack(); err != nil {
			log.Error("ack failed", slog.Any("error", err))
		}
		return
	case err != nil:
		log.Error("claim failed, requeueing", slog.Any("error", err))
		if err := d.Nack(true); err != nil {
			log.Error("nack failed", slog.Any("error", err))
		}
		return
	}

	entry, ok := w.registry.Lookup(p.Type, p.Name)
	if !ok {
		log.Warn("no solver pipeline registered")
		w.finish(ctx, d, p, domain.Solution{
			ProblemID:    p.ID,
			Status:       domain.StatusUnsupported,
			ErrorMessage: fmt.Sprintf("no solver registered for (%s, %s)", p.Type, p.Name),
		}, log)
		return
	}

	irProb, err := entry.Model.Encode(p)
	if err != nil {
		log.Error("encode failed", slog.Any("error", err))
		w.finish(ctx, d, p, domain.Solution{
			ProblemID:    p.ID,
			Status:       domain.StatusFailed,
			ErrorMessage: err.Error(),
		}, log)
		return
	}

	start := time.Now()
	res, err := entry.Adapter.Solve(ctx, irProb)
	elapsed := time.Since(start)
	if err != nil {
		log.Error("solve failed", slog.Any("error", err), slog.Duration("elapsed", elapsed))
	}
	observability.SolveDuration.WithLabelValues(string(p.Type)).Observe(elapsed.Seconds())

	sol, err := entry.Model.Decode(p, res)
	if err != nil {
		log.Error("decode failed", slog.Any("error", err))
		sol = domain.Solution{
			ProblemID:    p.ID,
			Status:       domain.StatusFailed,
			ErrorMessage: err.Error(),
		}
	}
	sol.SolutionTime = elapsed.Seconds()

	log.Info("solve finished",
		slog.String("status", string(sol.Status)),
		slog.Duration("elapsed", elapsed))
	w.finish(ctx, d, p, sol, log)
}

// finish persists the terminal status, publishes the result message, and
// acks. Either side failing requeues the delivery; the terminal guard in the
// store keeps the retry idempotent.
func (w *Worker) finish(ctx domain.Context, d domain.Delivery, p domain.Problem, sol domain.Solution, log *slog.Logger) {
	output := ""
	if sol.Status == domain.StatusSolved && sol.Data != nil {
		b, err := json.Marshal(sol.Data)
		if err != nil {
			log.Error("marshal solution failed", slog.Any("error", err))
			sol = domain.Solution{
				ProblemID:    sol.ProblemID,
				Status:       domain.StatusFailed,
				ErrorMessage: fmt.Sprintf("marshal solution: %v", err),
			}
		} else {
			output = string(b)
		}
	}

	fields := map[string]string{"status": string(sol.Status)}
	if output != "" {
		fields["output"] = output
	}
	if sol.SolutionTime > 0 {
		fields["solution_time"] = strconv.FormatFloat(sol.SolutionTime, 'f', -1, 64)
	}
	if sol.ErrorMessage != "" {
		fields["error_message"] = sol.ErrorMessage
	}

	if err := w.store.UpsertFields(ctx, p.ID, fields); err != nil && !errors.Is(err, domain.ErrTerminal) {
		log.Error("persist result failed, requeueing", slog.Any("error", err))
		if err := d.Nack(true); err != nil {
			log.Error("nack failed", slog.Any("error", err))
		}
		return
	}

	msg := domain.ResultMessage{
		ProblemID:    p.ID,
		Status:       string(sol.Status),
		Output:       output,
		ErrorMessage: sol.ErrorMessage,
	}
	if sol.SolutionTime > 0 {
		msg.SolutionTime = strconv.FormatFloat(sol.SolutionTime, 'f', -1, 64)
	}
	if err := w.queue.PublishResult(ctx, msg); err != nil {
		log.Error("publish result failed, requeueing", slog.Any("error", err))
		if err := d.Nack(true); err != nil {
			log.Error("nack failed", slog.Any("error", err))
		}
		return
	}

	observability.SolvesTotal.WithLabelValues(string(p.Type), string(sol.Status)).Inc()
	if err := d.Ack(); err != nil {
		log.Error("ack failed", slog.Any("error", err))
	}
}
