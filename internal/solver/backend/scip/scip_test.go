package scip

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/puzzler-io/puzzler/internal/solver/ir"
)

func binaryVars(names ...string) map[string]ir.Variable {
	vars := make(map[string]ir.Variable, len(names))
	for _, n := range names {
		vars[n] = ir.Variable{Type: ir.Binary, LB: 0, UB: 1}
	}
	return vars
}

func renderLP(t *testing.T, ip ir.IPProblem) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteLP(&buf, ip))
	return buf.String()
}

// Equality constraints must render as a single "=" row. A two-sided bound
// rendering would leave the constraint unenforced.
func TestWriteLPEqualityRendering(t *testing.T) {
	ip := ir.IPProblem{
		Objective: ir.Objective{Coefficients: map[string]float64{}, Sense: ir.Minimize},
		Variables: binaryVars("x", "y"),
		Constraints: []ir.Constraint{
			{Coefficients: map[string]float64{"x": 1, "y": 1}, Sense: ir.Equal, RHS: 1, Name: "pick_one"},
		},
	}
	lp := renderLP(t, ip)

	require.Contains(t, lp, " pick_one: 1 x + 1 y = 1\n")
	require.NotContains(t, lp, "pick_one: 1 x + 1 y <=")
	require.NotContains(t, lp, "pick_one: 1 x + 1 y >=")
}

func TestWriteLPInequalityRendering(t *testing.T) {
	ip := ir.IPProblem{
		Objective: ir.Objective{Coefficients: map[string]float64{"x": 2}, Sense: ir.Maximize},
		Variables: binaryVars("x", "y"),
		Constraints: []ir.Constraint{
			{Coefficients: map[string]float64{"x": 1, "y": 1}, Sense: ir.LessEq, RHS: 1, Name: "cap"},
			{Coefficients: map[string]float64{"x": 1}, Sense: ir.GreaterEq, RHS: 0, Name: "floor"},
		},
	}
	lp := renderLP(t, ip)

	require.Contains(t, lp, "Maximize")
	require.Contains(t, lp, " obj: 2 x\n")
	require.Contains(t, lp, " cap: 1 x + 1 y <= 1\n")
	require.Contains(t, lp, " floor: 1 x >= 0\n")
}

func TestWriteLPNegativeCoefficients(t *testing.T) {
	ip := ir.IPProblem{
		Objective: ir.Objective{Coefficients: map[string]float64{"x": -1}, Sense: ir.Minimize},
		Variables: binaryVars("x", "y"),
		Constraints: []ir.Constraint{
			{Coefficients: map[string]float64{"x": -2, "y": 3}, Sense: ir.LessEq, RHS: 5, Name: "mixed"},
		},
	}
	lp := renderLP(t, ip)

	require.Contains(t, lp, " obj: - 1 x\n")
	require.Contains(t, lp, " mixed: - 2 x + 3 y <= 5\n")
}

func TestWriteLPFeasibilityObjective(t *testing.T) {
	ip := ir.IPProblem{
		Objective: ir.Objective{Coefficients: map[string]float64{}, Sense: ir.Minimize},
		Variables: binaryVars("a", "b"),
		Constraints: []ir.Constraint{
			{Coefficients: map[string]float64{"a": 1}, Sense: ir.Equal, RHS: 1, Name: "fix"},
		},
	}
	lp := renderLP(t, ip)

	require.Contains(t, lp, "Minimize\n obj: 0 a\n")
}

func TestWriteLPSections(t *testing.T) {
	ip := ir.IPProblem{
		Objective: ir.Objective{Coefficients: map[string]float64{"n": 1}, Sense: ir.Minimize},
		Variables: map[string]ir.Variable{
			"b": {Type: ir.Binary, LB: 0, UB: 1},
			"n": {Type: ir.Integer, LB: 0, UB: 10},
		},
		Constraints: []ir.Constraint{
			{Coefficients: map[string]float64{"b": 1, "n": 1}, Sense: ir.GreaterEq, RHS: 2, Name: "link"},
		},
	}
	lp := renderLP(t, ip)

	require.Contains(t, lp, "Bounds\n 0 <= n <= 10\n")
	require.Contains(t, lp, "General\n n\n")
	require.Contains(t, lp, "Binary\n b\n")
	require.True(t, strings.HasSuffix(lp, "End\n"))
}

func TestDropUndeclared(t *testing.T) {
	ip := ir.IPProblem{
		Objective: ir.Objective{
			Coefficients: map[string]float64{"x": 1, "ghost": 7},
			Sense:        ir.Minimize,
		},
		Variables: binaryVars("x"),
		Constraints: []ir.Constraint{
			{Coefficients: map[string]float64{"x": 1, "ghost": 1}, Sense: ir.Equal, RHS: 1, Name: "keep"},
			{Coefficients: map[string]float64{"ghost": 1}, Sense: ir.Equal, RHS: 1, Name: "gone"},
		},
	}
	cleaned := dropUndeclared(ip)

	require.Equal(t, map[string]float64{"x": 1}, cleaned.Objective.Coefficients)
	require.Len(t, cleaned.Constraints, 1)
	require.Equal(t, "keep", cleaned.Constraints[0].Name)
	require.Equal(t, map[string]float64{"x": 1}, cleaned.Constraints[0].Coefficients)
}

const scipOptimalOutput = `SCIP version 8.0.3 [precision: 8 byte]

read problem.lp
original problem has 4 variables (4 bin, 0 int, 0 impl, 0 cont) and 3 constraints

presolving:
SCIP Status        : problem is solved [optimal solution found]
Solving Time (sec) : 0.01
Solving Nodes      : 1
Primal Bound       : +0.00000000000000e+00 (1 solutions)

objective value:                                    0
x_0_0_5                                             1 	(obj:0)
x_1_1_3                                             1 	(obj:0)

SCIP> quit
`

func TestParseOutputOptimal(t *testing.T) {
	res := ParseOutput(scipOptimalOutput)

	require.Equal(t, ir.StatusOptimal, res.Status)
	require.True(t, res.IsSolved)
	require.Empty(t, res.Err)
	require.Equal(t, map[string]float64{"x_0_0_5": 1, "x_1_1_3": 1}, res.Variables)
	require.Equal(t, 0.01, res.Statistics["solving_time"])
	require.Equal(t, int64(1), res.Statistics["solving_nodes"])
}

func TestParseOutputInfeasible(t *testing.T) {
	out := "SCIP Status        : problem is solved [infeasible]\nSolving Time (sec) : 0.00\n"
	res := ParseOutput(out)

	require.Equal(t, ir.StatusUnsolvable, res.Status)
	require.False(t, res.IsSolved)
	require.Empty(t, res.Variables)
}

func TestParseOutputTimeLimitWithIncumbent(t *testing.T) {
	out := "SCIP Status        : solving was interrupted [time limit reached]\n" +
		"objective value:                                    3\n" +
		"x_0_0_1                                             1 	(obj:1)\n"
	res := ParseOutput(out)

	require.Equal(t, ir.StatusFeasible, res.Status)
	require.True(t, res.IsSolved)
	require.Equal(t, 3.0, res.ObjectiveValue)
	require.Equal(t, map[string]float64{"x_0_0_1": 1}, res.Variables)
}

func TestParseOutputTimeLimitNoIncumbent(t *testing.T) {
	res := ParseOutput("SCIP Status        : solving was interrupted [time limit reached]\n")

	require.Equal(t, ir.StatusError, res.Status)
	require.Equal(t, "time limit reached", res.Err)
}

func TestParseOutputGarbage(t *testing.T) {
	res := ParseOutput("command not found\n")

	require.Equal(t, ir.StatusError, res.Status)
	require.Equal(t, "unrecognized scip status", res.Err)
}

func TestSolveRejectsSATProblem(t *testing.T) {
	a := New("scip", 0)
	res, err := a.Solve(t.Context(), ir.SATProblem{Clauses: [][]int{{1}}})

	require.Error(t, err)
	require.Equal(t, ir.StatusError, res.Status)
}
