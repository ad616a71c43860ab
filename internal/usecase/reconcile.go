package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/puzzler-io/puzzler/internal/codec"
	"github.com/puzzler-io/puzzler/internal/domain"
)

// Reconciler republishes IN_QUEUE records that never reached the broker,
// covering a crash between the KV write and the publish in Submit. Records
// claimed by a worker (IN_PROGRESS) are left alone.
type Reconciler struct {
	store    domain.ProblemStore
	queue    domain.WorkQueue
	interval time.Duration
	minAge   time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewReconciler wires a reconciler sweeping every interval for records older
// than minAge.
func NewReconciler(store domain.ProblemStore, queue domain.WorkQueue, interval, minAge time.Duration, log *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if minAge <= 0 {
		minAge = 2 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		store:    store,
		queue:    queue,
		interval: interval,
		minAge:   minAge,
		log:      log,
		now:      time.Now,
	}
}

// Run sweeps periodically until ctx is cancelled.
func (r *Reconciler) Run(ctx domain.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.log.Error("reconcile sweep failed", slog.Any("error", err))
			} else if n > 0 {
				r.log.Info("reconcile republished stuck problems", slog.Int("count", n))
			}
		}
	}
}

// Sweep republishes every IN_QUEUE record older than minAge and returns how
// many it pushed. Duplicate deliveries are safe: the terminal guard in the
// store makes the worker side idempotent.
func (r *Reconciler) Sweep(ctx domain.Context) (int, error) {
	ids, err := r.store.NonTerminalIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile: list: %w", err)
	}

	republished := 0
	for _, id := range ids {
		p, err := r.store.Get(ctx, id)
		if err != nil {
			r.log.Warn("reconcile: skipping unreadable record",
				slog.String("problem_id", id), slog.Any("error", err))
			continue
		}
		if p.Status != domain.StatusInQueue || r.now().Sub(p.CreatedAt) < r.minAge {
			continue
		}
		body, err := codec.Encode(p)
		if err != nil {
			r.log.Error("reconcile: encode failed",
				slog.String("problem_id", id), slog.Any("error", err))
			continue
		}
		if err := r.queue.PublishProblem(ctx, body); err != nil {
			return republished, fmt.Errorf("reconcile: publish %s: %w", id, err)
		}
		republished++
	}
	return republished, nil
}
