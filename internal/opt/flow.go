package opt

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"ottoroute/internal/mip"
	"ottoroute/internal/model"
)

// FlowSolver models the route as one unit of flow from start to goal over the
// forward arcs i<j and hands the 0/1 program to a mip.Solver.
type FlowSolver struct {
	MIP     mip.Solver
	Timeout time.Duration
}

// NewFlowSolver returns a FlowSolver. A nil backend selects the in-process
// branch-and-bound and a non-positive timeout selects DefaultTimeout.
func NewFlowSolver(backend mip.Solver, timeout time.Duration) *FlowSolver {
	if backend == nil {
		backend = mip.NewBranchAndBound(mip.DefaultOptions())
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &FlowSolver{MIP: backend, Timeout: timeout}
}

// Arc is the variable x[From,To].
type Arc struct{ From, To int }

// BuildModel returns the flow model of p and the arc behind each variable.
//
//	minimise   Σ ArcCost(i,j)·x[i,j]
//	subject to Σ_j x[0,j] = 1
//	           Σ_i x[i,goal] = 1
//	           Σ_i x[i,k] - Σ_j x[k,j] = 0   for every intermediate k
func BuildModel(p *Problem) (*mip.Model, []Arc) {
	n := p.Len()
	goal := p.Goal()
	m := mip.NewModel(fmt.Sprintf("route-%d", n-2))
	arcs := make([]Arc, 0, n*(n-1)/2)
	in := make([][]mip.Term, n)
	out := make([][]mip.Term, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := m.AddBinary(fmt.Sprintf("x_%d_%d", i, j), p.ArcCost(i, j))
			arcs = append(arcs, Arc{From: i, To: j})
			out[i] = append(out[i], mip.Term{Var: v, Coef: 1})
			in[j] = append(in[j], mip.Term{Var: v, Coef: 1})
		}
	}
	m.AddConstraint("leave_start", out[0], mip.Equal, 1)
	m.AddConstraint("reach_goal", in[goal], mip.Equal, 1)
	for k := 1; k < goal; k++ {
		terms := make([]mip.Term, 0, len(in[k])+len(out[k]))
		terms = append(terms, in[k]...)
		for _, t := range out[k] {
			terms = append(terms, mip.Term{Var: t.Var, Coef: -1})
		}
		m.AddConstraint(fmt.Sprintf("flow_%d", k), terms, mip.Equal, 0)
	}
	return m, arcs
}

// Solve implements Solver. A solver status other than optimal is reported as a
// no-solution Result, not an error; errors are reserved for malformed models
// and a failed route decode.
func (s *FlowSolver) Solve(ctx context.Context, p *Problem) (Result, error) {
	start := time.Now()
	backend, timeout := s.MIP, s.Timeout
	if backend == nil {
		backend = mip.NewBranchAndBound(mip.DefaultOptions())
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m, arcs := BuildModel(p)
	res, err := backend.Solve(ctx, m)
	if err != nil {
		return Result{}, fmt.Errorf("flow solve: %w", err)
	}
	out := Result{Algorithm: AlgorithmIP, Nodes: res.Nodes, Elapsed: time.Since(start)}
	if ctx.Err() != nil && res.Status == mip.StatusOptimal {
		// a backend that ignores ctx may still return after the deadline
		res.Status, res.Detail = mip.StatusTimeout, fmt.Sprintf("finished after the %s limit", timeout)
	}
	if res.Status != mip.StatusOptimal {
		out.Status = model.StatusNoSolution
		out.Detail = fmt.Sprintf("solver status %s", res.Status)
		if res.Detail != "" {
			out.Detail += ": " + res.Detail
		}
		log.Printf("opt: ip instance with %d waypoints: %s", p.Len()-2, out.Detail)
		return out, nil
	}

	route, err := decodeRoute(p, arcs, res.Values)
	if err != nil {
		return Result{}, err
	}
	// cost the decoded route directly; the LP objective carries simplex round-off
	cost, err := p.RouteCost(route)
	if err != nil {
		return Result{}, err
	}
	out.Status = model.StatusOptimal
	out.RawCost = cost
	out.Cost = Round3(cost)
	out.Route = route
	return out, nil
}

// decodeRoute follows the selected arcs from the start to the goal.
func decodeRoute(p *Problem, arcs []Arc, values []float64) ([]int, error) {
	if len(values) != len(arcs) {
		return nil, fmt.Errorf("%w: %d values for %d arcs", ErrBadRoute, len(values), len(arcs))
	}
	next := make(map[int]int, p.Len())
	for v, a := range arcs {
		if math.Round(values[v]) != 1 {
			continue
		}
		if prev, dup := next[a.From]; dup {
			return nil, fmt.Errorf("%w: stop %d leaves to both %d and %d", ErrBadRoute, a.From, prev, a.To)
		}
		next[a.From] = a.To
	}
	route := []int{0}
	for cur := 0; cur != p.Goal(); {
		nxt, ok := next[cur]
		if !ok {
			return nil, fmt.Errorf("%w: flow stops at %d", ErrBadRoute, cur)
		}
		route = append(route, nxt)
		cur = nxt
	}
	return route, nil
}
