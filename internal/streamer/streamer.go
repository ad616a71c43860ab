// Package streamer fans solve results out to in-process subscribers.
//
// One instance lives in each API process. Publishing never blocks: each
// subscriber owns a bounded channel and a full channel drops the newest frame
// for that subscriber only.
package streamer

import (
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/puzzler-io/puzzler/internal/adapter/observability"
	"github.com/puzzler-io/puzzler/internal/domain"
)

// SubscriberBuffer is the per-subscriber channel capacity.
const SubscriberBuffer = 16

// Frame is one fan-out payload tagged with its problem.
type Frame struct {
	ProblemID string
	Payload   []byte
}

// Subscription is one subscriber's handle. C yields payloads in arrival
// order; Close is idempotent and releases the slot. C is never closed: the
// consumer is the party calling Close, and leaving the channel open means a
// publisher holding a pre-Close snapshot can never hit a closed channel.
type Subscription struct {
	ID string
	C  <-chan []byte

	once  sync.Once
	close func()
}

// Close removes the subscription and closes C.
func (s *Subscription) Close() { s.once.Do(s.close) }

type subscriber struct {
	ch chan []byte
}

// Streamer is the guarded problem_id to subscriber-set mapping.
type Streamer struct {
	mu   sync.RWMutex
	subs map[string]map[string]*subscriber
	log  *slog.Logger
}

// New returns an empty streamer.
func New(log *slog.Logger) *Streamer {
	if log == nil {
		log = slog.Default()
	}
	return &Streamer{subs: make(map[string]map[string]*subscriber), log: log}
}

// Subscribe registers a new bounded subscriber for a problem.
func (s *Streamer) Subscribe(problemID string) *Subscription {
	id := ulid.Make().String()
	sub := &subscriber{ch: make(chan []byte, SubscriberBuffer)}

	s.mu.Lock()
	set, ok := s.subs[problemID]
	if !ok {
		set = make(map[string]*subscriber)
		s.subs[problemID] = set
	}
	set[id] = sub
	s.mu.Unlock()

	observability.StreamSubscribers.Inc()
	return &Subscription{
		ID: id,
		C:  sub.ch,
		close: func() {
			s.mu.Lock()
			if set, ok := s.subs[problemID]; ok {
				if _, present := set[id]; present {
					delete(set, id)
					if len(set) == 0 {
						delete(s.subs, problemID)
					}
				}
			}
			s.mu.Unlock()
			observability.StreamSubscribers.Dec()
		},
	}
}

// Publish delivers a payload to every current subscriber of the problem and
// returns how many received it. Subscribers with full channels are skipped.
func (s *Streamer) Publish(problemID string, payload []byte) int {
	// Snapshot under the read lock; sends happen outside it so a slow
	// subscriber cannot hold up Subscribe or Close.
	s.mu.RLock()
	set := s.subs[problemID]
	snapshot := make([]*subscriber, 0, len(set))
	for _, sub := range set {
		snapshot = append(snapshot, sub)
	}
	s.mu.RUnlock()

	delivered := 0
	for _, sub := range snapshot {
		select {
		case sub.ch <- payload:
			delivered++
		default:
			observability.StreamDropsTotal.Inc()
			s.log.Warn("dropping frame for slow subscriber", slog.String("problem_id", problemID))
		}
	}
	return delivered
}

// Subscribers reports the current subscriber count for a problem.
func (s *Streamer) Subscribers(problemID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[problemID])
}

// Relay republishes frames arriving from another instance (typically a KV
// pubsub pattern subscription) into the local fan-out. Returns when the
// frame channel closes or ctx is cancelled.
func (s *Streamer) Relay(ctx domain.Context, frames <-chan Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if f.ProblemID == "" {
				continue
			}
			s.Publish(f.ProblemID, f.Payload)
		}
	}
}
