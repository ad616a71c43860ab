// Package domain holds the core entities of the problem-solving pipeline and
// the ports its adapters implement.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrStorage         = errors.New("storage error")
	ErrQueue           = errors.New("queue error")
	ErrCodec           = errors.New("codec error")
	ErrEncoder         = errors.New("encoder error")
	ErrSolver          = errors.New("solver error")
	ErrUnsupported     = errors.New("unsupported problem")
	ErrTerminal        = errors.New("problem is in a terminal status")
)

// ProblemType selects the back-end IR a problem is compiled into.
type ProblemType string

const (
	TypeSearch ProblemType = "search"
	TypeCSP    ProblemType = "csp"
	TypeSAT    ProblemType = "sat"
	TypeIP     ProblemType = "ip"
)

// ProblemName selects the domain encoder.
type ProblemName string

const (
	NameSudoku        ProblemName = "sudoku"
	NameNQueens       ProblemName = "n_queens"
	NameGraphColoring ProblemName = "graph_coloring"
	NameKnapsack      ProblemName = "knapsack"
)

// ProblemStatus is the lifecycle state of a problem record.
type ProblemStatus string

const (
	StatusCreated     ProblemStatus = "CREATED"
	StatusInQueue     ProblemStatus = "IN_QUEUE"
	StatusInProgress  ProblemStatus = "IN_PROGRESS"
	StatusSolved      ProblemStatus = "SOLVED"
	StatusUnsolvable  ProblemStatus = "UNSOLVABLE"
	StatusUnsupported ProblemStatus = "UNSUPPORTED"
	StatusFailed      ProblemStatus = "FAILED"
)

// Terminal reports whether a record in this status is immutable.
func (s ProblemStatus) Terminal() bool {
	switch s {
	case StatusSolved, StatusUnsolvable, StatusUnsupported, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo enforces the monotonic status lattice:
// CREATED → IN_QUEUE → IN_PROGRESS → {SOLVED, UNSOLVABLE, UNSUPPORTED, FAILED}.
// Self-transitions are permitted so that idempotent upserts are no-ops.
func (s ProblemStatus) CanTransitionTo(next ProblemStatus) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusCreated:
		return next == StatusInQueue
	case StatusInQueue:
		return next == StatusInProgress || next.Terminal()
	case StatusInProgress:
		return next.Terminal()
	}
	return false
}

// Problem is the persisted request entity. problem_id is unique and immutable;
// Solution is non-nil iff Status == SOLVED.
type Problem struct {
	ID           string         `json:"problem_id"`
	Type         ProblemType    `json:"problem_type"`
	Name         ProblemName    `json:"problem_name"`
	Data         map[string]any `json:"problem_data"`
	CreatedAt    time.Time      `json:"created_at"`
	Status       ProblemStatus  `json:"status"`
	Solution     map[string]any `json:"solution,omitempty"`
	SolutionTime float64        `json:"solution_time,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Solution is the value a worker writes back onto its Problem.
type Solution struct {
	ProblemID    string
	Status       ProblemStatus
	Data         map[string]any
	SolutionTime float64
	ErrorMessage string
}

// ResultMessage is the payload carried on the result queue.
// LegacyID mirrors ID under the historical field name during the
// puzzle_id → problem_id migration; decoders accept either.
type ResultMessage struct {
	ProblemID    string `json:"problem_id,omitempty"`
	LegacyID     string `json:"puzzle_id,omitempty"`
	Status       string `json:"status"`
	Output       string `json:"output,omitempty"`
	SolutionTime string `json:"solution_time,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ResolveID returns the problem id regardless of which field the producer set.
func (m ResultMessage) ResolveID() string {
	if m.ProblemID != "" {
		return m.ProblemID
	}
	return m.LegacyID
}

// ProblemStore (port) — C1.
type ProblemStore interface {
	Put(ctx Context, p Problem) error
	Get(ctx Context, id string) (Problem, error)
	Exists(ctx Context, id string) (bool, error)
	// UpsertFields applies a field-level status update without re-serializing
	// the whole record. Terminal records are never transitioned again.
	UpsertFields(ctx Context, id string, fields map[string]string) error
	// NonTerminalIDs lists ids whose status is neither terminal nor CREATED,
	// for the reconciliation sweep.
	NonTerminalIDs(ctx Context) ([]string, error)
}

// ResultBus (port) — optional cross-instance fan-out over KV pubsub.
type ResultBus interface {
	PublishResult(ctx Context, problemID string, payload []byte) error
}

// WorkQueue (port) — C2 publish side.
type WorkQueue interface {
	PublishProblem(ctx Context, body []byte) error
	PublishResult(ctx Context, msg ResultMessage) error
}

// Delivery is one consumed queue message with explicit settlement.
type Delivery struct {
	Body []byte
	Ack  func() error
	Nack func(requeue bool) error
}

// Context aliases context.Context so signatures in the domain read uniformly.
type Context = context.Context
