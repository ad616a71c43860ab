package sudoku

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/puzzler-io/puzzler/internal/domain"
	"github.com/puzzler-io/puzzler/internal/solver/ir"
)

var canonicalRows = []string{
	"530070000",
	"600195000",
	"098000060",
	"800060003",
	"400803001",
	"700020006",
	"060000280",
	"000419005",
	"000080079",
}

var canonicalSolved = domain.Grid{
	{5, 3, 4, 6, 7, 8, 9, 1, 2},
	{6, 7, 2, 1, 9, 5, 3, 4, 8},
	{1, 9, 8, 3, 4, 2, 5, 6, 7},
	{8, 5, 9, 7, 6, 1, 4, 2, 3},
	{4, 2, 6, 8, 5, 3, 7, 9, 1},
	{7, 1, 3, 9, 2, 4, 8, 5, 6},
	{9, 6, 1, 5, 3, 7, 2, 8, 4},
	{2, 8, 7, 4, 1, 9, 6, 3, 5},
	{3, 4, 5, 2, 8, 6, 1, 7, 9},
}

func problemOf(t *testing.T, typ domain.ProblemType) (domain.Problem, domain.Grid) {
	t.Helper()
	grid, err := domain.ParseGridRows(canonicalRows)
	require.NoError(t, err)
	return domain.Problem{
		ID:        "sudoku-001",
		Type:      typ,
		Name:      domain.NameSudoku,
		Data:      map[string]any{"grid": grid},
		CreatedAt: time.Now().UTC(),
		Status:    domain.StatusInProgress,
	}, grid
}

func clueCount(g domain.Grid) int {
	n := 0
	for i := range g {
		for j := range g[i] {
			if g[i][j] != 0 {
				n++
			}
		}
	}
	return n
}

func TestEncodeIPShape(t *testing.T) {
	p, grid := problemOf(t, domain.TypeIP)
	enc, err := New().Encode(p)
	require.NoError(t, err)
	ip, ok := enc.(ir.IPProblem)
	require.True(t, ok)

	require.Len(t, ip.Variables, 729)
	for name, v := range ip.Variables {
		require.Equal(t, ir.Binary, v.Type, "variable %s", name)
	}

	// 81 cell + clue + 81 row + 81 col + 81 box constraints, all equalities.
	require.Len(t, ip.Constraints, 4*81+clueCount(grid))
	for _, c := range ip.Constraints {
		require.Equal(t, ir.Equal, c.Sense, "constraint %s", c.Name)
		require.EqualValues(t, 1, c.RHS, "constraint %s", c.Name)
	}

	require.Empty(t, ip.Objective.Coefficients, "feasibility problem has constant objective")
	require.Equal(t, ir.Minimize, ip.Objective.Sense)
	require.NoError(t, ip.Validate())
}

func TestEncodeSATShape(t *testing.T) {
	p, grid := problemOf(t, domain.TypeSAT)
	enc, err := New().Encode(p)
	require.NoError(t, err)
	sat, ok := enc.(ir.SATProblem)
	require.True(t, ok)

	// 81 at-least-one + 4*2916 pairwise (cell, row, col, box) + clue units.
	require.Len(t, sat.Clauses, 81+4*2916+clueCount(grid))
	require.Equal(t, 729, sat.NumVars())
	require.NoError(t, sat.Validate())
}

func TestSATVariableNumbering(t *testing.T) {
	require.Equal(t, 1, satVar(0, 0, 0))
	require.Equal(t, 9, satVar(0, 0, 8))
	require.Equal(t, 10, satVar(0, 1, 0))
	require.Equal(t, 82, satVar(1, 0, 0))
	require.Equal(t, 729, satVar(8, 8, 8))
}

// ipOracle fabricates the solver assignment for a known completion, standing
// in for the back-end kernel.
func ipOracle(solved domain.Grid) map[string]float64 {
	vars := make(map[string]float64, 729)
	for i := 0; i < domain.GridSize; i++ {
		for j := 0; j < domain.GridSize; j++ {
			for k := 1; k <= domain.GridSize; k++ {
				v := 0.0
				if solved[i][j] == k {
					v = 1.0
				}
				vars[varName(i, j, k)] = v
			}
		}
	}
	return vars
}

func satOracle(solved domain.Grid) map[int]bool {
	assignment := make(map[int]bool, 729)
	for r := 0; r < domain.GridSize; r++ {
		for c := 0; c < domain.GridSize; c++ {
			for v := 0; v < domain.GridSize; v++ {
				assignment[satVar(r, c, v)] = solved[r][c] == v+1
			}
		}
	}
	return assignment
}

func TestDecodeIPSolved(t *testing.T) {
	p, clues := problemOf(t, domain.TypeIP)
	res := ir.Result{
		Status:     ir.StatusOptimal,
		Variables:  ipOracle(canonicalSolved),
		Statistics: map[string]any{"iterations": 42},
		IsSolved:   true,
	}
	sol, err := New().Decode(p, res)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSolved, sol.Status)

	grid, err := domain.GridFromData(sol.Data)
	require.NoError(t, err)
	require.Equal(t, canonicalSolved, grid)
	require.True(t, grid.PreservesClues(clues))
	require.True(t, grid.IsCompleteValid())
	require.Equal(t, "optimal", sol.Data["status"])
}

func TestDecodeSATSolved(t *testing.T) {
	p, clues := problemOf(t, domain.TypeSAT)
	res := ir.Result{
		Status:     ir.StatusFeasible,
		Assignment: satOracle(canonicalSolved),
		IsSolved:   true,
	}
	sol, err := New().Decode(p, res)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSolved, sol.Status)

	grid, err := domain.GridFromData(sol.Data)
	require.NoError(t, err)
	require.Equal(t, canonicalSolved, grid)
	require.True(t, grid.PreservesClues(clues))
	require.True(t, grid.IsCompleteValid())
}

func TestDecodeUnsolvable(t *testing.T) {
	p, _ := problemOf(t, domain.TypeIP)
	sol, err := New().Decode(p, ir.Result{Status: ir.StatusUnsolvable})
	require.NoError(t, err)
	require.Equal(t, domain.StatusUnsolvable, sol.Status)
	require.Nil(t, sol.Data, "solution is null unless SOLVED")
}

func TestDecodeError(t *testing.T) {
	p, _ := problemOf(t, domain.TypeSAT)
	sol, err := New().Decode(p, ir.Result{Status: ir.StatusError, Err: "time limit reached"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, sol.Status)
	require.Equal(t, "time limit reached", sol.ErrorMessage)
}

func TestEncodeRejectsUnsupportedType(t *testing.T) {
	p, _ := problemOf(t, domain.TypeCSP)
	_, err := New().Encode(p)
	require.ErrorIs(t, err, domain.ErrEncoder)
}

func TestEncodeRejectsMissingGrid(t *testing.T) {
	p, _ := problemOf(t, domain.TypeIP)
	p.Data = map[string]any{}
	_, err := New().Encode(p)
	require.ErrorIs(t, err, domain.ErrEncoder)
}

func TestClueFixingConstraintsPresent(t *testing.T) {
	p, grid := problemOf(t, domain.TypeIP)
	enc, err := New().Encode(p)
	require.NoError(t, err)
	ip := enc.(ir.IPProblem)

	want := varName(0, 0, grid[0][0]) // x_0_0_5 for the canonical puzzle
	found := false
	for _, c := range ip.Constraints {
		if c.Name == "clue_0_0" {
			found = true
			require.Equal(t, map[string]float64{want: 1}, c.Coefficients)
		}
	}
	require.True(t, found, "clue constraint for (0,0) missing")
}
