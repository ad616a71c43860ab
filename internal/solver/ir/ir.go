// Package ir defines the intermediate representations consumed by solver
// back-ends: a linear integer program and a CNF SAT formula.
package ir

import (
	"fmt"

	"github.com/puzzler-io/puzzler/internal/domain"
)

// Sense of a linear constraint.
type Sense string

const (
	LessEq    Sense = "<="
	GreaterEq Sense = ">="
	Equal     Sense = "=="
)

// ObjectiveSense of an IP objective.
type ObjectiveSense string

const (
	Minimize ObjectiveSense = "minimize"
	Maximize ObjectiveSense = "maximize"
)

// VarType of an IP decision variable.
type VarType string

const (
	Binary     VarType = "Binary"
	Integer    VarType = "Integer"
	Continuous VarType = "Continuous"
)

// Variable declares one decision variable with its bounds.
type Variable struct {
	Type VarType
	LB   float64
	UB   float64
}

// Constraint is one linear constraint: sum(coef*var) sense rhs.
type Constraint struct {
	Coefficients map[string]float64
	Sense        Sense
	RHS          float64
	Name         string
}

// Objective is the linear objective. An empty coefficient map means pure
// feasibility; back-ends that require a non-empty objective emit a
// zero-coefficient placeholder.
type Objective struct {
	Coefficients map[string]float64
	Sense        ObjectiveSense
}

// Problem is the sealed union of back-end IRs.
type Problem interface {
	irProblem()
}

// IPProblem is a (mixed) integer linear program.
type IPProblem struct {
	Objective   Objective
	Constraints []Constraint
	Variables   map[string]Variable
}

func (IPProblem) irProblem() {}

// Validate checks structural well-formedness before handing the program to a
// back-end.
func (p IPProblem) Validate() error {
	switch p.Objective.Sense {
	case Minimize, Maximize:
	default:
		return fmt.Errorf("%w: objective sense %q", domain.ErrEncoder, p.Objective.Sense)
	}
	if len(p.Variables) == 0 {
		return fmt.Errorf("%w: no variables declared", domain.ErrEncoder)
	}
	for name, v := range p.Variables {
		switch v.Type {
		case Binary, Integer, Continuous:
		default:
			return fmt.Errorf("%w: variable %s has type %q", domain.ErrEncoder, name, v.Type)
		}
	}
	for i, c := range p.Constraints {
		switch c.Sense {
		case LessEq, GreaterEq, Equal:
		default:
			return fmt.Errorf("%w: constraint %d (%s) has sense %q", domain.ErrEncoder, i, c.Name, c.Sense)
		}
		if len(c.Coefficients) == 0 {
			return fmt.Errorf("%w: constraint %d (%s) has no coefficients", domain.ErrEncoder, i, c.Name)
		}
	}
	return nil
}

// SATProblem is a CNF formula in DIMACS sign convention: positive literal =
// variable true, negative = negated.
type SATProblem struct {
	Clauses [][]int
}

func (SATProblem) irProblem() {}

// NumVars returns the highest variable index referenced by any literal.
func (p SATProblem) NumVars() int {
	max := 0
	for _, clause := range p.Clauses {
		for _, lit := range clause {
			v := lit
			if v < 0 {
				v = -v
			}
			if v > max {
				max = v
			}
		}
	}
	return max
}

// Validate rejects empty formulas and zero literals (reserved as the DIMACS
// clause terminator).
func (p SATProblem) Validate() error {
	if len(p.Clauses) == 0 {
		return fmt.Errorf("%w: empty clause set", domain.ErrEncoder)
	}
	for i, clause := range p.Clauses {
		if len(clause) == 0 {
			return fmt.Errorf("%w: clause %d is empty", domain.ErrEncoder, i)
		}
		for _, lit := range clause {
			if lit == 0 {
				return fmt.Errorf("%w: clause %d contains zero literal", domain.ErrEncoder, i)
			}
		}
	}
	return nil
}

// SolveStatus is the four-value status every back-end maps its native codes
// into.
type SolveStatus string

const (
	StatusOptimal    SolveStatus = "optimal"
	StatusFeasible   SolveStatus = "feasible"
	StatusUnsolvable SolveStatus = "unsolvable"
	StatusError      SolveStatus = "error"
)

// Result is the raw back-end outcome handed back to the domain model.
type Result struct {
	Status         SolveStatus
	Variables      map[string]float64 // IP assignments
	Assignment     map[int]bool       // SAT assignments
	ObjectiveValue float64
	Statistics     map[string]any
	IsSolved       bool
	Err            string
}
