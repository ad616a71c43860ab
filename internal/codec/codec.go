// Package codec serializes Problem records to their msgpack wire form.
//
// The wire envelope is kind-tagged: encode stamps the problem's kind, decode
// dispatches on it through a fixed registry and fails cleanly on unknown tags.
package codec

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/puzzler-io/puzzler/internal/domain"
)

// Envelope tags. KindGeneric carries problems that have no dedicated wire
// validation; the worker decides at registry-lookup time whether the pair
// (type, name) is actually supported.
const (
	KindSudoku  = "sudoku"
	KindGeneric = "generic"
)

// envelope is the msgpack wire form of a Problem. Timestamps travel as
// RFC3339 strings so the payload stays language-neutral.
type envelope struct {
	Kind         string         `msgpack:"kind"`
	ProblemID    string         `msgpack:"problem_id"`
	ProblemType  string         `msgpack:"problem_type"`
	ProblemName  string         `msgpack:"problem_name"`
	ProblemData  map[string]any `msgpack:"problem_data"`
	CreatedAt    string         `msgpack:"created_at"`
	Status       string         `msgpack:"status"`
	Solution     map[string]any `msgpack:"solution,omitempty"`
	SolutionTime float64        `msgpack:"solution_time,omitempty"`
	ErrorMessage string         `msgpack:"error_message,omitempty"`
}

// kinds maps envelope tags to decode-time validation hooks. A hook may reject
// a payload whose problem_data does not fit the kind.
var kinds = map[string]func(p *domain.Problem) error{
	KindSudoku: func(p *domain.Problem) error {
		if _, ok := p.Data["grid"]; !ok {
			return fmt.Errorf("%w: sudoku payload missing grid", domain.ErrCodec)
		}
		return nil
	},
	KindGeneric: func(*domain.Problem) error { return nil },
}

// KindFor returns the envelope tag for a problem name.
func KindFor(name domain.ProblemName) string {
	switch name {
	case domain.NameSudoku:
		return KindSudoku
	}
	return KindGeneric
}

// Encode converts a Problem to msgpack bytes.
func Encode(p domain.Problem) ([]byte, error) {
	env := envelope{
		Kind:         KindFor(p.Name),
		ProblemID:    p.ID,
		ProblemType:  string(p.Type),
		ProblemName:  string(p.Name),
		ProblemData:  p.Data,
		CreatedAt:    p.CreatedAt.UTC().Format(time.RFC3339Nano),
		Status:       string(p.Status),
		Solution:     p.Solution,
		SolutionTime: p.SolutionTime,
		ErrorMessage: p.ErrorMessage,
	}
	b, err := msgpack.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal problem %s: %v", domain.ErrCodec, p.ID, err)
	}
	return b, nil
}

// Decode converts msgpack bytes back to a Problem. Unknown kinds and
// malformed payloads fail with ErrCodec.
func Decode(b []byte) (domain.Problem, error) {
	var env envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return domain.Problem{}, fmt.Errorf("%w: unmarshal: %v", domain.ErrCodec, err)
	}
	validate, ok := kinds[env.Kind]
	if !ok {
		return domain.Problem{}, fmt.Errorf("%w: unknown kind %q", domain.ErrCodec, env.Kind)
	}
	if env.ProblemID == "" {
		return domain.Problem{}, fmt.Errorf("%w: empty problem_id", domain.ErrCodec)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, env.CreatedAt)
	if err != nil {
		return domain.Problem{}, fmt.Errorf("%w: created_at %q: %v", domain.ErrCodec, env.CreatedAt, err)
	}
	p := domain.Problem{
		ID:           env.ProblemID,
		Type:         domain.ProblemType(env.ProblemType),
		Name:         domain.ProblemName(env.ProblemName),
		Data:         env.ProblemData,
		CreatedAt:    createdAt,
		Status:       domain.ProblemStatus(env.Status),
		Solution:     env.Solution,
		SolutionTime: env.SolutionTime,
		ErrorMessage: env.ErrorMessage,
	}
	if err := validate(&p); err != nil {
		return domain.Problem{}, err
	}
	return p, nil
}
