// Package glucose invokes the Glucose SAT solver binary on CNF formulas.
//
// The formula is rendered to DIMACS, glucose runs with -model so the
// satisfying assignment lands on stdout, and the s/v result lines are parsed
// back. Glucose signals the verdict through its exit code: 10 for SAT, 20
// for UNSAT.
package glucose

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/puzzler-io/puzzler/internal/domain"
	"github.com/puzzler-io/puzzler/internal/solver/ir"
)

const (
	exitSAT   = 10
	exitUNSAT = 20
)

// Adapter shells out to the glucose binary.
type Adapter struct {
	bin       string
	timeLimit time.Duration
}

// New returns an adapter running the given binary with the given wall-clock
// cap per solve.
func New(bin string, timeLimit time.Duration) *Adapter {
	if bin == "" {
		bin = "glucose"
	}
	if timeLimit <= 0 {
		timeLimit = 300 * time.Second
	}
	return &Adapter{bin: bin, timeLimit: timeLimit}
}

// Solve implements solver.Adapter for CNF formulas.
func (a *Adapter) Solve(ctx domain.Context, prob ir.Problem) (ir.Result, error) {
	sat, ok := prob.(ir.SATProblem)
	if !ok {
		return ir.Result{Status: ir.StatusError, Err: "glucose adapter handles SAT formulas only"},
			fmt.Errorf("%w: glucose got %T", domain.ErrSolver, prob)
	}
	if err := sat.Validate(); err != nil {
		return ir.Result{Status: ir.StatusError, Err: err.Error()}, err
	}

	dir, err := os.MkdirTemp("", "glucose-*")
	if err != nil {
		return ir.Result{Status: ir.StatusError, Err: err.Error()}, fmt.Errorf("%w: tmpdir: %v", domain.ErrSolver, err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	cnfPath := filepath.Join(dir, "problem.cnf")
	f, err := os.Create(cnfPath)
	if err != nil {
		return ir.Result{Status: ir.StatusError, Err: err.Error()}, fmt.Errorf("%w: create cnf: %v", domain.ErrSolver, err)
	}
	if err := WriteDIMACS(f, sat); err != nil {
		_ = f.Close()
		return ir.Result{Status: ir.StatusError, Err: err.Error()}, err
	}
	if err := f.Close(); err != nil {
		return ir.Result{Status: ir.StatusError, Err: err.Error()}, fmt.Errorf("%w: close cnf: %v", domain.ErrSolver, err)
	}

	// Glucose enforces -cpu-lim itself; the context deadline is a backstop.
	runCtx, cancel := context.WithTimeout(ctx, a.timeLimit+10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.bin,
		"-model",
		fmt.Sprintf("-cpu-lim=%d", int(a.timeLimit.Seconds())),
		cnfPath,
	)
	out, err := cmd.CombinedOutput()
	if runCtx.Err() != nil {
		return ir.Result{Status: ir.StatusError, Err: "time limit reached"}, nil
	}

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return ir.Result{Status: ir.StatusError, Err: fmt.Sprintf("glucose: %v", err)}, nil
		}
		code = exitErr.ExitCode()
	}
	return ParseOutput(string(out), code), nil
}

// WriteDIMACS renders the formula with the standard problem line and
// zero-terminated clauses.
func WriteDIMACS(w io.Writer, sat ir.SATProblem) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "p cnf %d %d\n", sat.NumVars(), len(sat.Clauses))
	for _, clause := range sat.Clauses {
		for _, lit := range clause {
			fmt.Fprintf(bw, "%d ", lit)
		}
		fmt.Fprintln(bw, "0")
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: write cnf: %v", domain.ErrSolver, err)
	}
	return nil
}

// ParseOutput maps glucose's result lines and exit code onto the adapter
// result. The "s" line is authoritative when present; the exit code covers
// builds that omit it.
func ParseOutput(out string, exitCode int) ir.Result {
	res := ir.Result{
		Status:     ir.StatusError,
		Assignment: make(map[int]bool),
		Statistics: make(map[string]any),
	}

	verdict := ""
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "s "):
			verdict = strings.TrimSpace(strings.TrimPrefix(line, "s "))
		case strings.HasPrefix(line, "v "):
			for _, tok := range strings.Fields(line[2:]) {
				lit, err := strconv.Atoi(tok)
				if err != nil || lit == 0 {
					continue
				}
				if lit > 0 {
					res.Assignment[lit] = true
				} else {
					res.Assignment[-lit] = false
				}
			}
		case strings.HasPrefix(line, "c conflicts"):
			if fields := strings.Fields(line); len(fields) >= 4 {
				if v, err := strconv.ParseInt(fields[3], 10, 64); err == nil {
					res.Statistics["conflicts"] = v
				}
			}
		case strings.HasPrefix(line, "c CPU time"):
			if i := strings.Index(line, ":"); i >= 0 {
				fields := strings.Fields(line[i+1:])
				if len(fields) > 0 {
					if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
						res.Statistics["cpu_time"] = v
					}
				}
			}
		}
	}

	switch {
	case verdict == "SATISFIABLE" || (verdict == "" && exitCode == exitSAT):
		res.Status = ir.StatusOptimal
		res.IsSolved = true
	case verdict == "UNSATISFIABLE" || (verdict == "" && exitCode == exitUNSAT):
		res.Status = ir.StatusUnsolvable
		res.Assignment = nil
	case verdict == "INDETERMINATE":
		res.Err = "time limit reached"
	default:
		res.Err = fmt.Sprintf("unrecognized glucose result (exit %d)", exitCode)
	}
	return res
}
