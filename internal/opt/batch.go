package opt

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"ottoroute/internal/model"
)

// BatchOptions configure SolveBatch.
type BatchOptions struct {
	// Workers bounds concurrent instance solves; values below 2 solve sequentially.
	Workers int
	// OnResult, when set, is called as each instance finishes. Calls may come
	// from several goroutines and in any order.
	OnResult func(Outcome)
}

// Outcome is the result of one instance in a batch. Err is set when the
// instance could not be solved at all (invalid input, malformed model).
type Outcome struct {
	Index  int
	Result Result
	Err    error
}

// SolveBatch solves every instance against cfg with solver and returns the
// outcomes in input order. A failing instance does not stop the others; only
// cancellation of ctx aborts the batch.
func SolveBatch(ctx context.Context, cfg Config, instances [][]model.Waypoint, solver Solver, opts BatchOptions) ([]Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if solver == nil {
		return nil, fmt.Errorf("%w: nil solver", ErrInvalidConfig)
	}
	out := make([]Outcome, len(instances))
	solveOne := func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		o := Outcome{Index: i}
		p, err := NewProblem(cfg, instances[i])
		if err == nil {
			o.Result, err = solver.Solve(ctx, p)
		}
		if err != nil {
			log.Printf("opt: instance %d: %v", i+1, err)
			o.Err = err
		}
		out[i] = o
		if opts.OnResult != nil {
			opts.OnResult(o)
		}
		return nil
	}

	if opts.Workers < 2 {
		for i := range instances {
			if err := solveOne(ctx, i); err != nil {
				return out[:i], err
			}
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := range instances {
		g.Go(func() error { return solveOne(gctx, i) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
