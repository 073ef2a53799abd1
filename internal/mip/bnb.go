package mip

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Options tune BranchAndBound.
type Options struct {
	// MaxNodes caps the number of relaxations solved; 0 means unlimited.
	MaxNodes int
	// IntTol is the distance from 0 or 1 under which a value counts as integral.
	IntTol float64
	// LPTol is passed to the simplex as its reduced-cost tolerance.
	LPTol float64
	// Gap prunes nodes whose bound is within Gap of the incumbent.
	Gap float64
}

func DefaultOptions() Options {
	return Options{MaxNodes: 0, IntTol: 1e-6, LPTol: 1e-9, Gap: 1e-9}
}

// BranchAndBound is a depth-first branch-and-bound solver over binary variables.
type BranchAndBound struct {
	Opts Options
}

func NewBranchAndBound(opts Options) *BranchAndBound {
	return &BranchAndBound{Opts: opts}
}

// bbSearch holds the state of one solve.
type bbSearch struct {
	ctx   context.Context
	m     *Model
	opts  Options
	nodes int

	found    bool
	bestObj  float64
	bestVals []float64

	stopped Status // StatusOptimal while the search may continue
	lastErr error
}

// Solve implements Solver.
func (s *BranchAndBound) Solve(ctx context.Context, m *Model) (Result, error) {
	if err := m.Validate(); err != nil {
		return Result{Status: StatusError, Detail: err.Error()}, err
	}
	opts := s.Opts
	if opts.IntTol <= 0 {
		opts.IntTol = DefaultOptions().IntTol
	}
	if opts.LPTol <= 0 {
		opts.LPTol = DefaultOptions().LPTol
	}
	if opts.Gap <= 0 {
		opts.Gap = DefaultOptions().Gap
	}
	bb := &bbSearch{ctx: ctx, m: m, opts: opts, bestObj: math.Inf(1), stopped: StatusOptimal}

	fixed := make([]int8, m.NumVars())
	for i := range fixed {
		fixed[i] = -1
	}
	bb.branch(fixed)

	res := Result{Nodes: bb.nodes}
	if bb.found {
		res.Objective = bb.bestObj
		res.Values = bb.bestVals
	}
	switch {
	case bb.stopped != StatusOptimal:
		res.Status = bb.stopped
		res.Detail = fmt.Sprintf("search stopped after %d nodes", bb.nodes)
		if bb.lastErr != nil {
			res.Detail = bb.lastErr.Error()
		}
	case bb.found:
		res.Status = StatusOptimal
	case bb.lastErr != nil:
		res.Status = StatusError
		res.Detail = bb.lastErr.Error()
	default:
		res.Status = StatusInfeasible
		res.Detail = "no integral point satisfies the constraints"
	}
	return res, nil
}

func (bb *bbSearch) branch(fixed []int8) {
	if bb.stopped != StatusOptimal {
		return
	}
	if err := bb.ctx.Err(); err != nil {
		bb.stopped = StatusTimeout
		return
	}
	if bb.opts.MaxNodes > 0 && bb.nodes >= bb.opts.MaxNodes {
		bb.stopped = StatusNodeLimit
		return
	}
	bb.nodes++

	node, ok := bb.relax(fixed)
	if !ok {
		bb.stopped = StatusTimeout
		return
	}
	bound, values, err := node.bound, node.values, node.err
	if err != nil {
		if !errors.Is(err, errRelaxInfeasible) {
			// numeric trouble in the LP is treated like an infeasible node but remembered
			bb.lastErr = err
		}
		return
	}
	if bb.found && bound >= bb.bestObj-bb.opts.Gap {
		return
	}

	pick, frac := -1, 0.0
	for i, v := range values {
		if fixed[i] >= 0 {
			continue
		}
		d := math.Min(v, 1-v)
		if d > bb.opts.IntTol && d > frac {
			pick, frac = i, d
		}
	}
	if pick < 0 {
		rounded := make([]float64, len(values))
		for i, v := range values {
			rounded[i] = math.Round(v)
		}
		if !bb.m.Feasible(rounded, 1e-6) {
			bb.lastErr = errors.New("mip: rounded relaxation violates constraints")
			return
		}
		obj := bb.m.Objective(rounded)
		if !bb.found || obj < bb.bestObj {
			bb.found = true
			bb.bestObj = obj
			bb.bestVals = rounded
		}
		return
	}

	// nearest side first tends to find an incumbent sooner
	first, second := int8(1), int8(0)
	if values[pick] < 0.5 {
		first, second = 0, 1
	}
	for _, side := range []int8{first, second} {
		child := append([]int8(nil), fixed...)
		child[pick] = side
		bb.branch(child)
	}
}

type relaxOutcome struct {
	bound  float64
	values []float64
	err    error
}

// relax solves the LP relaxation of a node. The simplex cannot be interrupted,
// so it runs on its own goroutine and ok is false once the context is done;
// the abandoned goroutine finishes in the background and its result is dropped.
func (bb *bbSearch) relax(fixed []int8) (relaxOutcome, bool) {
	done := make(chan relaxOutcome, 1)
	go func() {
		bound, values, err := newRelaxation(bb.m, fixed, bb.opts.LPTol).solve()
		done <- relaxOutcome{bound: bound, values: values, err: err}
	}()
	select {
	case <-bb.ctx.Done():
		return relaxOutcome{}, false
	case out := <-done:
		if bb.ctx.Err() != nil {
			return relaxOutcome{}, false
		}
		return out, true
	}
}
