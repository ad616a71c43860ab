// Package scip invokes the SCIP solver binary on integer programs.
//
// The kernel is a black box behind the adapter contract: the program is
// rendered to CPLEX LP format, SCIP runs in batch mode with a wall-clock
// limit, and its status line plus solution display are parsed back into the
// four-value result.
package scip

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/puzzler-io/puzzler/internal/domain"
	"github.com/puzzler-io/puzzler/internal/solver/ir"
)

// Adapter shells out to the SCIP binary.
type Adapter struct {
	bin       string
	timeLimit time.Duration
}

// New returns an adapter running the given binary with the given wall-clock
// cap per solve.
func New(bin string, timeLimit time.Duration) *Adapter {
	if bin == "" {
		bin = "scip"
	}
	if timeLimit <= 0 {
		timeLimit = 300 * time.Second
	}
	return &Adapter{bin: bin, timeLimit: timeLimit}
}

// Solve implements solver.Adapter for IP programs.
func (a *Adapter) Solve(ctx domain.Context, prob ir.Problem) (ir.Result, error) {
	ip, ok := prob.(ir.IPProblem)
	if !ok {
		return ir.Result{Status: ir.StatusError, Err: "scip adapter handles IP programs only"},
			fmt.Errorf("%w: scip got %T", domain.ErrSolver, prob)
	}
	if err := ip.Validate(); err != nil {
		return ir.Result{Status: ir.StatusError, Err: err.Error()}, err
	}
	ip = dropUndeclared(ip)

	dir, err := os.MkdirTemp("", "scip-*")
	if err != nil {
		return ir.Result{Status: ir.StatusError, Err: err.Error()}, fmt.Errorf("%w: tmpdir: %v", domain.ErrSolver, err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	lpPath := filepath.Join(dir, "problem.lp")
	f, err := os.Create(lpPath)
	if err != nil {
		return ir.Result{Status: ir.StatusError, Err: err.Error()}, fmt.Errorf("%w: create lp: %v", domain.ErrSolver, err)
	}
	if err := WriteLP(f, ip); err != nil {
		_ = f.Close()
		return ir.Result{Status: ir.StatusError, Err: err.Error()}, err
	}
	if err := f.Close(); err != nil {
		return ir.Result{Status: ir.StatusError, Err: err.Error()}, fmt.Errorf("%w: close lp: %v", domain.ErrSolver, err)
	}

	// SCIP enforces the limit itself; the context deadline is a backstop
	// against a hung process.
	runCtx, cancel := context.WithTimeout(ctx, a.timeLimit+10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.bin,
		"-c", fmt.Sprintf("set limits time %d", int(a.timeLimit.Seconds())),
		"-c", fmt.Sprintf("read %s", lpPath),
		"-c", "optimize",
		"-c", "display solution",
		"-c", "quit",
	)
	out, err := cmd.CombinedOutput()
	if runCtx.Err() != nil {
		return ir.Result{Status: ir.StatusError, Err: "time limit reached"}, nil
	}
	if err != nil {
		return ir.Result{Status: ir.StatusError, Err: fmt.Sprintf("scip: %v", err)}, nil
	}
	return ParseOutput(string(out)), nil
}

// dropUndeclared removes coefficients that reference variables absent from
// the declaration block; a warning is logged instead of failing the solve.
func dropUndeclared(ip ir.IPProblem) ir.IPProblem {
	clean := func(coeffs map[string]float64, where string) map[string]float64 {
		out := make(map[string]float64, len(coeffs))
		for name, coef := range coeffs {
			if _, ok := ip.Variables[name]; !ok {
				slog.Warn("skipping coefficient for undeclared variable",
					slog.String("variable", name),
					slog.String("in", where))
				continue
			}
			out[name] = coef
		}
		return out
	}
	ip.Objective.Coefficients = clean(ip.Objective.Coefficients, "objective")
	constraints := make([]ir.Constraint, 0, len(ip.Constraints))
	for _, c := range ip.Constraints {
		c.Coefficients = clean(c.Coefficients, c.Name)
		if len(c.Coefficients) == 0 {
			slog.Warn("dropping constraint with no declared variables", slog.String("constraint", c.Name))
			continue
		}
		constraints = append(constraints, c)
	}
	ip.Constraints = constraints
	return ip
}

// WriteLP renders the program in CPLEX LP format. Equality constraints are
// written as true equalities, never as a pair of one-sided bounds.
func WriteLP(w io.Writer, ip ir.IPProblem) error {
	bw := bufio.NewWriter(w)

	names := make([]string, 0, len(ip.Variables))
	for name := range ip.Variables {
		names = append(names, name)
	}
	sort.Strings(names)

	if ip.Objective.Sense == ir.Maximize {
		fmt.Fprintln(bw, "Maximize")
	} else {
		fmt.Fprintln(bw, "Minimize")
	}
	if len(ip.Objective.Coefficients) == 0 {
		// Pure feasibility: zero-coefficient placeholder on any variable.
		fmt.Fprintf(bw, " obj: 0 %s\n", names[0])
	} else {
		fmt.Fprintf(bw, " obj: %s\n", renderTerms(ip.Objective.Coefficients))
	}

	fmt.Fprintln(bw, "Subject To")
	for i, c := range ip.Constraints {
		name := c.Name
		if name == "" {
			name = fmt.Sprintf("c%d", i)
		}
		fmt.Fprintf(bw, " %s: %s %s %s\n", name, renderTerms(c.Coefficients), lpSense(c.Sense), trimFloat(c.RHS))
	}

	var binaries, generals []string
	boundsWritten := false
	var bounds strings.Builder
	for _, name := range names {
		v := ip.Variables[name]
		switch v.Type {
		case ir.Binary:
			binaries = append(binaries, name)
		case ir.Integer:
			generals = append(generals, name)
			fmt.Fprintf(&bounds, " %s <= %s <= %s\n", trimFloat(v.LB), name, trimFloat(v.UB))
			boundsWritten = true
		default:
			fmt.Fprintf(&bounds, " %s <= %s <= %s\n", trimFloat(v.LB), name, trimFloat(v.UB))
			boundsWritten = true
		}
	}
	if boundsWritten {
		fmt.Fprintln(bw, "Bounds")
		fmt.Fprint(bw, bounds.String())
	}
	if len(generals) > 0 {
		fmt.Fprintln(bw, "General")
		fmt.Fprintf(bw, " %s\n", strings.Join(generals, " "))
	}
	if len(binaries) > 0 {
		fmt.Fprintln(bw, "Binary")
		fmt.Fprintf(bw, " %s\n", strings.Join(binaries, " "))
	}
	fmt.Fprintln(bw, "End")
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: write lp: %v", domain.ErrSolver, err)
	}
	return nil
}

func lpSense(s ir.Sense) string {
	switch s {
	case ir.LessEq:
		return "<="
	case ir.GreaterEq:
		return ">="
	default:
		return "="
	}
}

func renderTerms(coeffs map[string]float64) string {
	names := make([]string, 0, len(coeffs))
	for name := range coeffs {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		coef := coeffs[name]
		if i == 0 {
			if coef < 0 {
				b.WriteString("- ")
				coef = -coef
			}
		} else {
			if coef < 0 {
				b.WriteString(" - ")
				coef = -coef
			} else {
				b.WriteString(" + ")
			}
		}
		b.WriteString(trimFloat(coef))
		b.WriteByte(' ')
		b.WriteString(name)
	}
	return b.String()
}

func trimFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ParseOutput maps SCIP's batch output onto the adapter result. Variables
// absent from the solution display are zero by convention.
func ParseOutput(out string) ir.Result {
	res := ir.Result{
		Status:     ir.StatusError,
		Variables:  make(map[string]float64),
		Statistics: make(map[string]any),
	}

	switch {
	case strings.Contains(out, "[optimal solution found]"):
		res.Status = ir.StatusOptimal
		res.IsSolved = true
	case strings.Contains(out, "[infeasible]"):
		res.Status = ir.StatusUnsolvable
	case strings.Contains(out, "[unbounded]") || strings.Contains(out, "[infeasible or unbounded]"):
		res.Status = ir.StatusUnsolvable
	case strings.Contains(out, "[time limit reached]"):
		if strings.Contains(out, "objective value:") {
			res.Status = ir.StatusFeasible
			res.IsSolved = true
		} else {
			res.Err = "time limit reached"
		}
	default:
		res.Err = "unrecognized scip status"
	}

	inSolution := false
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(line, "objective value:") {
			inSolution = true
			if v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "objective value:")), 64); err == nil {
				res.ObjectiveValue = v
			}
			continue
		}
		if inSolution {
			fields := strings.Fields(line)
			if len(fields) >= 2 && !strings.HasPrefix(line, "SCIP") {
				if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
					res.Variables[fields[0]] = v
					continue
				}
			}
			// Anything that does not look like a variable line ends the
			// solution display.
			inSolution = false
		}
		if strings.HasPrefix(trimmed, "Solving Time (sec)") {
			if i := strings.Index(trimmed, ":"); i >= 0 {
				if v, err := strconv.ParseFloat(strings.TrimSpace(trimmed[i+1:]), 64); err == nil {
					res.Statistics["solving_time"] = v
				}
			}
		}
		if strings.HasPrefix(trimmed, "Solving Nodes") {
			if i := strings.Index(trimmed, ":"); i >= 0 {
				fields := strings.Fields(trimmed[i+1:])
				if len(fields) > 0 {
					if v, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
						res.Statistics["solving_nodes"] = v
					}
				}
			}
		}
	}
	return res
}
