package usecase

import (
	"fmt"

	"github.com/puzzler-io/puzzler/internal/domain"
)

// QueryService reads problem records back for the HTTP surface.
type QueryService struct {
	store domain.ProblemStore
}

// NewQueryService wires a query service.
func NewQueryService(store domain.ProblemStore) *QueryService {
	return &QueryService{store: store}
}

// Get returns the full record.
func (q *QueryService) Get(ctx domain.Context, id string) (domain.Problem, error) {
	if id == "" {
		return domain.Problem{}, fmt.Errorf("%w: empty problem id", domain.ErrInvalidArgument)
	}
	return q.store.Get(ctx, id)
}

// Print renders the problem grid as text with box separators. Solved records
// render the solution grid instead of the clues.
func (q *QueryService) Print(ctx domain.Context, id string) (string, error) {
	p, err := q.Get(ctx, id)
	if err != nil {
		return "", err
	}
	data := p.Data
	if p.Status == domain.StatusSolved && p.Solution != nil {
		data = p.Solution
	}
	grid, err := domain.GridFromData(data)
	if err != nil {
		return "", fmt.Errorf("print %s: %w", id, err)
	}
	return grid.Stringify(), nil
}
