// Package sudoku encodes 9x9 Sudoku instances into IP or SAT form and decodes
// back-end results into solved grids.
package sudoku

import (
	"fmt"
	"math"

	"github.com/puzzler-io/puzzler/internal/domain"
	"github.com/puzzler-io/puzzler/internal/solver/ir"
)

// Model implements solver.Model for Sudoku over both back-end IRs.
type Model struct{}

// New returns the Sudoku model.
func New() Model { return Model{} }

// Encode builds the IR matching the problem's type.
func (Model) Encode(p domain.Problem) (ir.Problem, error) {
	grid, err := domain.GridFromData(p.Data)
	if err != nil {
		return nil, err
	}
	switch p.Type {
	case domain.TypeIP:
		return encodeIP(grid), nil
	case domain.TypeSAT:
		return encodeSAT(grid), nil
	}
	return nil, fmt.Errorf("%w: sudoku has no %s encoding", domain.ErrEncoder, p.Type)
}

// Decode maps the raw back-end result onto a Solution carrying the solved
// grid, the back-end statistics, and the terminal status.
func (Model) Decode(p domain.Problem, res ir.Result) (domain.Solution, error) {
	sol := domain.Solution{ProblemID: p.ID}
	switch res.Status {
	case ir.StatusOptimal, ir.StatusFeasible:
		var grid domain.Grid
		switch p.Type {
		case domain.TypeIP:
			grid = ipSolutionToGrid(res.Variables)
		case domain.TypeSAT:
			grid = satSolutionToGrid(res.Assignment)
		default:
			return sol, fmt.Errorf("%w: sudoku has no %s decoding", domain.ErrEncoder, p.Type)
		}
		sol.Status = domain.StatusSolved
		sol.Data = map[string]any{
			"grid":       [][]int(grid),
			"statistics": res.Statistics,
			"status":     string(res.Status),
		}
	case ir.StatusUnsolvable:
		sol.Status = domain.StatusUnsolvable
		sol.Data = nil
	default:
		sol.Status = domain.StatusFailed
		sol.ErrorMessage = res.Err
	}
	return sol, nil
}

func varName(i, j, k int) string {
	return fmt.Sprintf("x_%d_%d_%d", i, j, k)
}

// encodeIP produces the binary assignment formulation: 729 variables
// x_{i,j,k}, all-equality constraints with rhs 1, and a constant (pure
// feasibility) objective.
func encodeIP(grid domain.Grid) ir.IPProblem {
	variables := make(map[string]ir.Variable, domain.GridSize*domain.GridSize*domain.GridSize)
	for i := 0; i < domain.GridSize; i++ {
		for j := 0; j < domain.GridSize; j++ {
			for k := 1; k <= domain.GridSize; k++ {
				variables[varName(i, j, k)] = ir.Variable{Type: ir.Binary, LB: 0, UB: 1}
			}
		}
	}

	var constraints []ir.Constraint

	// One value per cell.
	for i := 0; i < domain.GridSize; i++ {
		for j := 0; j < domain.GridSize; j++ {
			coeffs := make(map[string]float64, domain.GridSize)
			for k := 1; k <= domain.GridSize; k++ {
				coeffs[varName(i, j, k)] = 1
			}
			constraints = append(constraints, ir.Constraint{
				Coefficients: coeffs,
				Sense:        ir.Equal,
				RHS:          1,
				Name:         fmt.Sprintf("cell_%d_%d_one_value", i, j),
			})
		}
	}

	// Clue fixing.
	for i := 0; i < domain.GridSize; i++ {
		for j := 0; j < domain.GridSize; j++ {
			if clue := grid[i][j]; clue != 0 {
				constraints = append(constraints, ir.Constraint{
					Coefficients: map[string]float64{varName(i, j, clue): 1},
					Sense:        ir.Equal,
					RHS:          1,
					Name:         fmt.Sprintf("clue_%d_%d", i, j),
				})
			}
		}
	}

	// Row uniqueness per digit.
	for i := 0; i < domain.GridSize; i++ {
		for k := 1; k <= domain.GridSize; k++ {
			coeffs := make(map[string]float64, domain.GridSize)
			for j := 0; j < domain.GridSize; j++ {
				coeffs[varName(i, j, k)] = 1
			}
			constraints = append(constraints, ir.Constraint{
				Coefficients: coeffs,
				Sense:        ir.Equal,
				RHS:          1,
				Name:         fmt.Sprintf("row_%d_digit_%d", i, k),
			})
		}
	}

	// Column uniqueness per digit.
	for j := 0; j < domain.GridSize; j++ {
		for k := 1; k <= domain.GridSize; k++ {
			coeffs := make(map[string]float64, domain.GridSize)
			for i := 0; i < domain.GridSize; i++ {
				coeffs[varName(i, j, k)] = 1
			}
			constraints = append(constraints, ir.Constraint{
				Coefficients: coeffs,
				Sense:        ir.Equal,
				RHS:          1,
				Name:         fmt.Sprintf("col_%d_digit_%d", j, k),
			})
		}
	}

	// Box uniqueness per digit.
	for bi := 0; bi < domain.BoxSize; bi++ {
		for bj := 0; bj < domain.BoxSize; bj++ {
			for k := 1; k <= domain.GridSize; k++ {
				coeffs := make(map[string]float64, domain.GridSize)
				for i := bi * domain.BoxSize; i < (bi+1)*domain.BoxSize; i++ {
					for j := bj * domain.BoxSize; j < (bj+1)*domain.BoxSize; j++ {
						coeffs[varName(i, j, k)] = 1
					}
				}
				constraints = append(constraints, ir.Constraint{
					Coefficients: coeffs,
					Sense:        ir.Equal,
					RHS:          1,
					Name:         fmt.Sprintf("box_%d_%d_digit_%d", bi, bj, k),
				})
			}
		}
	}

	return ir.IPProblem{
		Objective:   ir.Objective{Coefficients: map[string]float64{}, Sense: ir.Minimize},
		Constraints: constraints,
		Variables:   variables,
	}
}

// ipSolutionToGrid rounds each binary assignment variable; a rounded 1 for
// x_{i,j,k} places digit k at (i,j).
func ipSolutionToGrid(variables map[string]float64) domain.Grid {
	grid := make(domain.Grid, domain.GridSize)
	for i := range grid {
		grid[i] = make([]int, domain.GridSize)
	}
	for name, value := range variables {
		var i, j, k int
		if _, err := fmt.Sscanf(name, "x_%d_%d_%d", &i, &j, &k); err != nil {
			continue
		}
		if i < 0 || i >= domain.GridSize || j < 0 || j >= domain.GridSize || k < 1 || k > domain.GridSize {
			continue
		}
		if math.Round(value) == 1 {
			grid[i][j] = k
		}
	}
	return grid
}

// satVar numbers variables 1-based: var(r,c,v) = 81r + 9c + v + 1 with
// r, c, v all in [0,9).
func satVar(r, c, v int) int {
	return 81*r + 9*c + v + 1
}

// encodeSAT produces the pairwise CNF encoding.
func encodeSAT(grid domain.Grid) ir.SATProblem {
	var clauses [][]int

	// At least one value per cell.
	for r := 0; r < domain.GridSize; r++ {
		for c := 0; c < domain.GridSize; c++ {
			clause := make([]int, domain.GridSize)
			for v := 0; v < domain.GridSize; v++ {
				clause[v] = satVar(r, c, v)
			}
			clauses = append(clauses, clause)
		}
	}

	// At most one value per cell.
	for r := 0; r < domain.GridSize; r++ {
		for c := 0; c < domain.GridSize; c++ {
			for v1 := 0; v1 < domain.GridSize; v1++ {
				for v2 := v1 + 1; v2 < domain.GridSize; v2++ {
					clauses = append(clauses, []int{-satVar(r, c, v1), -satVar(r, c, v2)})
				}
			}
		}
	}

	// Each value at most once per row.
	for r := 0; r < domain.GridSize; r++ {
		for v := 0; v < domain.GridSize; v++ {
			for c1 := 0; c1 < domain.GridSize; c1++ {
				for c2 := c1 + 1; c2 < domain.GridSize; c2++ {
					clauses = append(clauses, []int{-satVar(r, c1, v), -satVar(r, c2, v)})
				}
			}
		}
	}

	// Each value at most once per column.
	for c := 0; c < domain.GridSize; c++ {
		for v := 0; v < domain.GridSize; v++ {
			for r1 := 0; r1 < domain.GridSize; r1++ {
				for r2 := r1 + 1; r2 < domain.GridSize; r2++ {
					clauses = append(clauses, []int{-satVar(r1, c, v), -satVar(r2, c, v)})
				}
			}
		}
	}

	// Each value at most once per box.
	for br := 0; br < domain.BoxSize; br++ {
		for bc := 0; bc < domain.BoxSize; bc++ {
			for v := 0; v < domain.GridSize; v++ {
				var cells [][2]int
				for r := br * domain.BoxSize; r < (br+1)*domain.BoxSize; r++ {
					for c := bc * domain.BoxSize; c < (bc+1)*domain.BoxSize; c++ {
						cells = append(cells, [2]int{r, c})
					}
				}
				for a := 0; a < len(cells); a++ {
					for b := a + 1; b < len(cells); b++ {
						clauses = append(clauses, []int{
							-satVar(cells[a][0], cells[a][1], v),
							-satVar(cells[b][0], cells[b][1], v),
						})
					}
				}
			}
		}
	}

	// Clue unit clauses.
	for r := 0; r < domain.GridSize; r++ {
		for c := 0; c < domain.GridSize; c++ {
			if grid[r][c] != 0 {
				clauses = append(clauses, []int{satVar(r, c, grid[r][c]-1)})
			}
		}
	}

	return ir.SATProblem{Clauses: clauses}
}

// satSolutionToGrid maps each true literal L back onto the grid:
// with L' = L-1, r = L'/81, c = (L'%81)/9, v = L'%9, cell (r,c) gets v+1.
func satSolutionToGrid(assignment map[int]bool) domain.Grid {
	grid := make(domain.Grid, domain.GridSize)
	for i := range grid {
		grid[i] = make([]int, domain.GridSize)
	}
	for lit, val := range assignment {
		if !val || lit < 1 || lit > domain.GridSize*domain.GridSize*domain.GridSize {
			continue
		}
		l := lit - 1
		r := l / 81
		c := (l % 81) / 9
		v := l % 9
		grid[r][c] = v + 1
	}
	return grid
}
