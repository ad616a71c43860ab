// Package usecase holds the coordinator services orchestrating the domain
// ports: submission, querying, result listening, and queue reconciliation.
package usecase

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/puzzler-io/puzzler/internal/adapter/observability"
	"github.com/puzzler-io/puzzler/internal/codec"
	"github.com/puzzler-io/puzzler/internal/domain"
)

// idAttempts bounds the collision re-roll loop. With 128-bit random ids a
// second collision in a row means the store is lying, not that we are
// unlucky.
const idAttempts = 5

// SubmitService accepts new problems: persist first, then enqueue.
type SubmitService struct {
	store domain.ProblemStore
	queue domain.WorkQueue
	log   *slog.Logger
	now   func() time.Time
}

// NewSubmitService wires a submit service.
func NewSubmitService(store domain.ProblemStore, queue domain.WorkQueue, log *slog.Logger) *SubmitService {
	if log == nil {
		log = slog.Default()
	}
	return &SubmitService{store: store, queue: queue, log: log, now: time.Now}
}

// Submit creates the record as CREATED, flips it to IN_QUEUE, and publishes
// the msgpack payload. The KV write always precedes the broker publish; a
// record left IN_QUEUE by a crash between the two is picked up by the
// reconciler.
func (s *SubmitService) Submit(ctx domain.Context, typ domain.ProblemType, name domain.ProblemName, data map[string]any) (domain.Problem, error) {
	if len(data) == 0 {
		return domain.Problem{}, fmt.Errorf("%w: empty problem data", domain.ErrInvalidArgument)
	}

	id, err := s.newID(ctx)
	if err != nil {
		return domain.Problem{}, err
	}
	p := domain.Problem{
		ID:        id,
		Type:      typ,
		Name:      name,
		Data:      data,
		CreatedAt: s.now().UTC(),
		Status:    domain.StatusCreated,
	}
	if err := s.store.Put(ctx, p); err != nil {
		return domain.Problem{}, fmt.Errorf("submit: persist: %w", err)
	}
	if err := s.store.UpsertFields(ctx, id, map[string]string{"status": string(domain.StatusInQueue)}); err != nil {
		return domain.Problem{}, fmt.Errorf("submit: enqueue status: %w", err)
	}
	p.Status = domain.StatusInQueue

	body, err := codec.Encode(p)
	if err != nil {
		return domain.Problem{}, fmt.Errorf("submit: %w", err)
	}
	if err := s.queue.PublishProblem(ctx, body); err != nil {
		// The record stays IN_QUEUE; the reconciler republishes it.
		return domain.Problem{}, fmt.Errorf("submit: publish: %w", err)
	}

	observability.ProblemsSubmittedTotal.WithLabelValues(string(typ), string(name)).Inc()
	s.log.Info("problem submitted",
		slog.String("problem_id", id),
		slog.String("problem_type", string(typ)),
		slog.String("problem_name", string(name)))
	return p, nil
}

// newID generates a 32-char hex id and re-rolls on the (theoretical)
// collision.
func (s *SubmitService) newID(ctx domain.Context) (string, error) {
	for i := 0; i < idAttempts; i++ {
		u := uuid.New()
		id := hex.EncodeToString(u[:])
		exists, err := s.store.Exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("submit: id check: %w", err)
		}
		if !exists {
			return id, nil
		}
		s.log.Warn("problem id collision, regenerating", slog.String("problem_id", id))
	}
	return "", fmt.Errorf("%w: could not allocate a fresh problem id", domain.ErrStorage)
}
