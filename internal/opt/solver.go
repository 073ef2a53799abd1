package opt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ottoroute/internal/mip"
	"ottoroute/internal/model"
)

// Algorithm names a solver.
type Algorithm string

const (
	AlgorithmDP Algorithm = "dp"
	AlgorithmIP Algorithm = "ip"
)

func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dp":
		return AlgorithmDP, nil
	case "ip":
		return AlgorithmIP, nil
	default:
		return "", fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, s)
	}
}

// Result is one solved instance.
type Result struct {
	Algorithm Algorithm
	Status    string  // model.StatusOptimal or model.StatusNoSolution
	Cost      float64 // rounded to three decimals
	RawCost   float64
	Route     []int // canonical indices of visited stops, start and goal included
	Elapsed   time.Duration
	Nodes     int    // branch-and-bound nodes, IP only
	Detail    string // diagnostic when no solution was found
}

func (r Result) Solved() bool { return r.Status == model.StatusOptimal }

// Err is nil for a solved result and wraps ErrNoSolution with the diagnostic otherwise.
func (r Result) Err() error {
	if r.Solved() {
		return nil
	}
	if r.Detail == "" {
		return ErrNoSolution
	}
	return fmt.Errorf("%w: %s", ErrNoSolution, r.Detail)
}

// String renders the output line for this instance.
func (r Result) String() string {
	if !r.Solved() {
		return "no solution"
	}
	return fmt.Sprintf("%.3f", r.Cost)
}

// Solver computes the optimal route cost of a Problem.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (Result, error)
}

// Options configure NewSolver.
type Options struct {
	// MIP backs the flow solver; nil selects an in-process branch-and-bound.
	MIP mip.Solver
	// Timeout bounds one flow solve; 0 selects DefaultTimeout.
	Timeout time.Duration
}

const DefaultTimeout = 30 * time.Second

// MaxFlowWaypoints caps instances accepted for AlgorithmIP by the service.
// The flow model has (n+2)(n+1)/2 variables and a dense LP tableau.
const MaxFlowWaypoints = 120

func NewSolver(algo Algorithm, opts Options) (Solver, error) {
	switch algo {
	case AlgorithmDP:
		return DPSolver{}, nil
	case AlgorithmIP:
		return NewFlowSolver(opts.MIP, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, algo)
	}
}
