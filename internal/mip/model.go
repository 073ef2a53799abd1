// Package mip is a small 0/1 integer linear programming layer.
//
// A Model holds binary variables, a linear objective to minimise and linear
// constraints. Solvers consume a Model through the Solver interface and report
// a Status together with the objective value and the variable assignment.
// BranchAndBound is the in-process implementation; it solves LP relaxations
// with gonum's simplex and branches on fractional variables.
package mip

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Sentinel errors returned for malformed models.
var (
	// ErrNilModel indicates that a nil *Model was passed to a solver.
	ErrNilModel = errors.New("mip: model is nil")

	// ErrBadVariable indicates a constraint term referencing an unknown variable.
	ErrBadVariable = errors.New("mip: constraint references unknown variable")

	// ErrNotFinite indicates a NaN or infinite coefficient, cost or right-hand side.
	ErrNotFinite = errors.New("mip: coefficient is not finite")
)

// Sense is the relation of a linear constraint.
type Sense int

const (
	Equal Sense = iota
	LessEqual
	GreaterEqual
)

func (s Sense) String() string {
	switch s {
	case Equal:
		return "="
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Term is coef * x[Var].
type Term struct {
	Var  int
	Coef float64
}

type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Model is a minimisation problem over binary variables.
type Model struct {
	Name  string
	names []string
	cost  []float64
	cons  []Constraint
}

func NewModel(name string) *Model {
	return &Model{Name: name}
}

// AddBinary adds a binary variable with the given objective coefficient and
// returns its index.
func (m *Model) AddBinary(name string, cost float64) int {
	m.names = append(m.names, name)
	m.cost = append(m.cost, cost)
	return len(m.cost) - 1
}

func (m *Model) AddConstraint(name string, terms []Term, sense Sense, rhs float64) {
	m.cons = append(m.cons, Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

func (m *Model) NumVars() int { return len(m.cost) }

func (m *Model) NumConstraints() int { return len(m.cons) }

func (m *Model) VarName(i int) string { return m.names[i] }

func (m *Model) Cost(i int) float64 { return m.cost[i] }

func (m *Model) Constraints() []Constraint { return m.cons }

// Objective evaluates the objective at values.
func (m *Model) Objective(values []float64) float64 {
	total := 0.0
	for i, c := range m.cost {
		total += c * values[i]
	}
	return total
}

// Feasible reports whether values satisfy every constraint within tol.
func (m *Model) Feasible(values []float64, tol float64) bool {
	for _, c := range m.cons {
		lhs := 0.0
		for _, t := range c.Terms {
			lhs += t.Coef * values[t.Var]
		}
		switch c.Sense {
		case Equal:
			if math.Abs(lhs-c.RHS) > tol {
				return false
			}
		case LessEqual:
			if lhs > c.RHS+tol {
				return false
			}
		case GreaterEqual:
			if lhs < c.RHS-tol {
				return false
			}
		}
	}
	return true
}

// Validate checks variable references and that every number is finite.
func (m *Model) Validate() error {
	if m == nil {
		return ErrNilModel
	}
	for i, c := range m.cost {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: cost of %s", ErrNotFinite, m.names[i])
		}
	}
	for _, c := range m.cons {
		if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
			return fmt.Errorf("%w: rhs of %s", ErrNotFinite, c.Name)
		}
		for _, t := range c.Terms {
			if t.Var < 0 || t.Var >= len(m.cost) {
				return fmt.Errorf("%w: %s uses x%d", ErrBadVariable, c.Name, t.Var)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("%w: %s coefficient of %s", ErrNotFinite, c.Name, m.names[t.Var])
			}
		}
	}
	return nil
}

// Status is the outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusTimeout
	StatusNodeLimit
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "Optimal"
	case StatusInfeasible:
		return "Infeasible"
	case StatusTimeout:
		return "Timeout"
	case StatusNodeLimit:
		return "NodeLimit"
	case StatusError:
		return "Error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result carries the solver outcome. Objective and Values are meaningful when
// Status is StatusOptimal; on Timeout or NodeLimit they hold the incumbent, if any.
type Result struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int
	Detail    string
}

// Solver solves a Model. The returned error is reserved for malformed models;
// infeasibility and limits are reported through Result.Status.
type Solver interface {
	Solve(ctx context.Context, m *Model) (Result, error)
}
