package opt

import (
	"context"
	"math"
	"time"

	"ottoroute/internal/model"
)

// DPSolver finds the optimal route by dynamic programming over the fixed
// visiting order. dp[i] is the cheapest cost of arriving and loading at stop i;
// any earlier stop j can precede i, skipping everything in between.
//
// Complexity: O(n²) time, O(n) space.
type DPSolver struct{}

// Solve implements Solver. It never fails once the Problem exists.
func (DPSolver) Solve(_ context.Context, p *Problem) (Result, error) {
	return SolveDP(p), nil
}

func SolveDP(p *Problem) Result {
	start := time.Now()
	cost, pred := dpTable(p)
	goal := p.Goal()
	return Result{
		Algorithm: AlgorithmDP,
		Status:    model.StatusOptimal,
		Cost:      Round3(cost[goal]),
		RawCost:   cost[goal],
		Route:     walkBack(pred, goal),
		Elapsed:   time.Since(start),
	}
}

// dpTable fills the cost and predecessor arrays. Ties keep the smallest
// predecessor index.
func dpTable(p *Problem) ([]float64, []int) {
	n := p.Len()
	cost := make([]float64, n)
	pred := make([]int, n)
	for i := 1; i < n; i++ {
		cost[i] = math.Inf(1)
		pred[i] = -1
	}
	pred[0] = -1
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			if c := cost[j] + p.ArcCost(j, i); c < cost[i] {
				cost[i] = c
				pred[i] = j
			}
		}
	}
	return cost, pred
}

func walkBack(pred []int, goal int) []int {
	var rev []int
	for i := goal; i >= 0; i = pred[i] {
		rev = append(rev, i)
	}
	route := make([]int, len(rev))
	for k, idx := range rev {
		route[len(rev)-1-k] = idx
	}
	return route
}
