// Package redis implements the problem store and the optional result bus on
// a Redis-compatible KV+pubsub server.
//
// Layout: one hash per problem, key = problem id (hex, no prefix). The
// "problem" field holds the full msgpack record; "status", "output",
// "solution_time", and "error_message" are field-level overlays so status
// updates do not re-serialize the blob.
package redis

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/puzzler-io/puzzler/internal/codec"
	"github.com/puzzler-io/puzzler/internal/domain"
)

const (
	fieldProblem      = "problem"
	fieldStatus       = "status"
	fieldOutput       = "output"
	fieldSolutionTime = "solution_time"
	fieldErrorMessage = "error_message"

	// resultChannelPrefix scopes pubsub channels used for cross-instance
	// result fan-out.
	resultChannelPrefix = "results:"
)

// Store implements domain.ProblemStore and domain.ResultBus.
type Store struct {
	rdb *redis.Client
}

// New connects a Store to the given address.
func New(addr string, db, poolSize int) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		PoolSize: poolSize,
	})
	return &Store{rdb: rdb}
}

// NewFromClient wraps an existing client; used by tests with miniredis.
func NewFromClient(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Ping verifies connectivity for readiness probes.
func (s *Store) Ping(ctx domain.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", domain.ErrStorage, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.rdb.Close() }

// Put persists the full problem record.
func (s *Store) Put(ctx domain.Context, p domain.Problem) error {
	blob, err := codec.Encode(p)
	if err != nil {
		return err
	}
	fields := map[string]any{
		fieldProblem: blob,
		fieldStatus:  string(p.Status),
	}
	if err := s.rdb.HSet(ctx, p.ID, fields).Err(); err != nil {
		return fmt.Errorf("%w: hset %s: %v", domain.ErrStorage, p.ID, err)
	}
	return nil
}

// Get loads a problem: blob decode plus field overlay, so partial updates
// written by UpsertFields are visible without a blob rewrite.
func (s *Store) Get(ctx domain.Context, id string) (domain.Problem, error) {
	m, err := s.rdb.HGetAll(ctx, id).Result()
	if err != nil {
		return domain.Problem{}, fmt.Errorf("%w: hgetall %s: %v", domain.ErrStorage, id, err)
	}
	if len(m) == 0 {
		return domain.Problem{}, fmt.Errorf("%w: problem %s", domain.ErrNotFound, id)
	}
	blob, ok := m[fieldProblem]
	if !ok {
		return domain.Problem{}, fmt.Errorf("%w: record %s has no problem blob", domain.ErrStorage, id)
	}
	p, err := codec.Decode([]byte(blob))
	if err != nil {
		return domain.Problem{}, err
	}
	if v, ok := m[fieldStatus]; ok && v != "" {
		p.Status = domain.ProblemStatus(v)
	}
	if v, ok := m[fieldOutput]; ok && v != "" {
		var sol map[string]any
		if err := json.Unmarshal([]byte(v), &sol); err != nil {
			slog.Warn("discarding unreadable solution payload", slog.String("problem_id", id), slog.Any("error", err))
		} else {
			p.Solution = sol
		}
	}
	if v, ok := m[fieldSolutionTime]; ok && v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			p.SolutionTime = t
		}
	}
	if v, ok := m[fieldErrorMessage]; ok && v != "" {
		p.ErrorMessage = v
	}
	return p, nil
}

// Exists reports whether a record is present under id.
func (s *Store) Exists(ctx domain.Context, id string) (bool, error) {
	n, err := s.rdb.Exists(ctx, id).Result()
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %v", domain.ErrStorage, id, err)
	}
	return n > 0, nil
}

// UpsertFields applies a field-level update. The status lattice is enforced
// here: updates that would move a terminal record, or walk the lattice
// backwards, are rejected with ErrTerminal. Applying the same mapping twice
// is a no-op the second time.
func (s *Store) UpsertFields(ctx domain.Context, id string, fields map[string]string) error {
	if next, ok := fields[fieldStatus]; ok {
		cur, err := s.rdb.HGet(ctx, id, fieldStatus).Result()
		switch {
		case err == redis.Nil:
			// No record yet; accept the write as-is.
		case err != nil:
			return fmt.Errorf("%w: hget %s: %v", domain.ErrStorage, id, err)
		default:
			if !domain.ProblemStatus(cur).CanTransitionTo(domain.ProblemStatus(next)) {
				return fmt.Errorf("%w: %s: %s -> %s", domain.ErrTerminal, id, cur, next)
			}
		}
	}
	m := make(map[string]any, len(fields))
	for k, v := range fields {
		m[k] = v
	}
	if err := s.rdb.HSet(ctx, id, m).Err(); err != nil {
		return fmt.Errorf("%w: hset %s: %v", domain.ErrStorage, id, err)
	}
	return nil
}

// NonTerminalIDs scans for records whose status is IN_QUEUE or IN_PROGRESS.
// Used by the reconciliation sweep.
func (s *Store) NonTerminalIDs(ctx domain.Context) ([]string, error) {
	var out []string
	iter := s.rdb.Scan(ctx, 0, "*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		status, err := s.rdb.HGet(ctx, key, fieldStatus).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: hget %s: %v", domain.ErrStorage, key, err)
		}
		st := domain.ProblemStatus(status)
		if st == domain.StatusInQueue || st == domain.StatusInProgress {
			out = append(out, key)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan: %v", domain.ErrStorage, err)
	}
	return out, nil
}

// PublishResult pushes a result frame onto the per-problem pubsub channel.
func (s *Store) PublishResult(ctx domain.Context, problemID string, payload []byte) error {
	if err := s.rdb.Publish(ctx, resultChannelPrefix+problemID, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %v", domain.ErrStorage, problemID, err)
	}
	return nil
}

// SubscribeResults opens a pattern subscription over every problem's result
// channel. The caller consumes ps.Channel() and closes the subscription.
func (s *Store) SubscribeResults(ctx domain.Context) *redis.PubSub {
	return s.rdb.PSubscribe(ctx, resultChannelPrefix+"*")
}

// ChannelProblemID extracts the problem id from a result channel name.
func ChannelProblemID(channel string) string {
	if len(channel) > len(resultChannelPrefix) && channel[:len(resultChannelPrefix)] == resultChannelPrefix {
		return channel[len(resultChannelPrefix):]
	}
	return ""
}
