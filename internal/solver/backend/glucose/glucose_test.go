package glucose

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/puzzler-io/puzzler/internal/solver/ir"
)

func TestWriteDIMACS(t *testing.T) {
	sat := ir.SATProblem{Clauses: [][]int{
		{1, -2, 3},
		{-1},
		{2, 4},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteDIMACS(&buf, sat))
	require.Equal(t, "p cnf 4 3\n1 -2 3 0\n-1 0\n2 4 0\n", buf.String())
}

const glucoseSATOutput = `c This is glucose 4.2.1
c Reading from standard input... Use '--help' for help.
c restarts              : 1
c conflicts             : 17             (1700 /sec)
c CPU time              : 0.01 s
s SATISFIABLE
v 1 -2 3 -4 0
`

func TestParseOutputSatisfiable(t *testing.T) {
	res := ParseOutput(glucoseSATOutput, exitSAT)

	require.Equal(t, ir.StatusOptimal, res.Status)
	require.True(t, res.IsSolved)
	require.Empty(t, res.Err)
	require.Equal(t, map[int]bool{1: true, 2: false, 3: true, 4: false}, res.Assignment)
	require.Equal(t, int64(17), res.Statistics["conflicts"])
	require.Equal(t, 0.01, res.Statistics["cpu_time"])
}

func TestParseOutputSatisfiableMultipleValueLines(t *testing.T) {
	out := "s SATISFIABLE\nv 1 2\nv -3 0\n"
	res := ParseOutput(out, exitSAT)

	require.Equal(t, ir.StatusOptimal, res.Status)
	require.Equal(t, map[int]bool{1: true, 2: true, 3: false}, res.Assignment)
}

func TestParseOutputUnsatisfiable(t *testing.T) {
	res := ParseOutput("c restarts : 2\ns UNSATISFIABLE\n", exitUNSAT)

	require.Equal(t, ir.StatusUnsolvable, res.Status)
	require.False(t, res.IsSolved)
	require.Nil(t, res.Assignment)
}

// Some builds print no "s" line when killed; the exit code still decides.
func TestParseOutputExitCodeFallback(t *testing.T) {
	require.Equal(t, ir.StatusOptimal, ParseOutput("v 1 0\n", exitSAT).Status)
	require.Equal(t, ir.StatusUnsolvable, ParseOutput("", exitUNSAT).Status)
}

func TestParseOutputIndeterminate(t *testing.T) {
	res := ParseOutput("s INDETERMINATE\n", 0)

	require.Equal(t, ir.StatusError, res.Status)
	require.Equal(t, "time limit reached", res.Err)
}

func TestParseOutputGarbage(t *testing.T) {
	res := ParseOutput("segmentation fault\n", 139)

	require.Equal(t, ir.StatusError, res.Status)
	require.Contains(t, res.Err, "exit 139")
}

func TestSolveRejectsIPProblem(t *testing.T) {
	a := New("glucose", 0)
	res, err := a.Solve(t.Context(), ir.IPProblem{})

	require.Error(t, err)
	require.Equal(t, ir.StatusError, res.Status)
}
