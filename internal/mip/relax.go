package mip

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// errRelaxInfeasible is returned when an LP relaxation has no feasible point.
var errRelaxInfeasible = errors.New("mip: relaxation infeasible")

const rankTol = 1e-9

// relaxation is the LP relaxation of a model under a partial fixing.
// Free variables get a column each; inequality rows get a slack column.
// Upper bounds x <= 1 are added lazily, only for variables whose LP value
// exceeds one or whose cost is negative.
type relaxation struct {
	m     *Model
	fixed []int8 // -1 free, 0 or 1 fixed
	tol   float64

	free    []int // model var index per free column
	colOf   []int // model var index -> free column or -1
	bounded map[int]bool
}

func newRelaxation(m *Model, fixed []int8, tol float64) *relaxation {
	r := &relaxation{m: m, fixed: fixed, tol: tol, colOf: make([]int, m.NumVars()), bounded: map[int]bool{}}
	for i := range r.colOf {
		r.colOf[i] = -1
		if fixed[i] < 0 {
			r.colOf[i] = len(r.free)
			r.free = append(r.free, i)
			if m.cost[i] < 0 {
				r.bounded[len(r.free)-1] = true
			}
		}
	}
	return r
}

type stdRow struct {
	coef map[int]float64 // column -> coefficient over free + slack columns
	rhs  float64
}

// rows builds the constraint rows in standard form with fixed variables
// substituted into the right-hand side. Inequalities get a dedicated slack column
// numbered from len(free).
func (r *relaxation) rows() ([]stdRow, int, error) {
	next := len(r.free)
	out := make([]stdRow, 0, len(r.m.cons))
	for _, c := range r.m.cons {
		row := stdRow{coef: map[int]float64{}, rhs: c.RHS}
		for _, t := range c.Terms {
			if f := r.fixed[t.Var]; f >= 0 {
				row.rhs -= t.Coef * float64(f)
				continue
			}
			row.coef[r.colOf[t.Var]] += t.Coef
		}
		switch c.Sense {
		case LessEqual:
			row.coef[next] = 1
			next++
		case GreaterEqual:
			row.coef[next] = -1
			next++
		}
		for k, v := range row.coef {
			if v == 0 {
				delete(row.coef, k)
			}
		}
		if len(row.coef) == 0 {
			if math.Abs(row.rhs) > r.tol {
				return nil, 0, errRelaxInfeasible
			}
			continue
		}
		out = append(out, row)
	}
	return out, next, nil
}

// independent drops linearly dependent rows. A dependent row whose reduced
// right-hand side is non-zero makes the system inconsistent.
func independent(rows []stdRow, ncols int) ([]stdRow, error) {
	type basisRow struct {
		vec   []float64
		rhs   float64
		pivot int
	}
	var basis []basisRow
	var kept []stdRow
	for _, row := range rows {
		vec := make([]float64, ncols)
		for k, v := range row.coef {
			vec[k] = v
		}
		rhs := row.rhs
		scale := 0.0
		for _, v := range vec {
			scale = math.Max(scale, math.Abs(v))
		}
		for _, b := range basis {
			f := vec[b.pivot] / b.vec[b.pivot]
			if f == 0 {
				continue
			}
			for k := range vec {
				vec[k] -= f * b.vec[k]
			}
			rhs -= f * b.rhs
		}
		piv, best := -1, rankTol*math.Max(scale, 1)
		for k, v := range vec {
			if math.Abs(v) > best {
				piv, best = k, math.Abs(v)
			}
		}
		if piv < 0 {
			if math.Abs(rhs) > 1e-7*math.Max(scale, 1) {
				return nil, errRelaxInfeasible
			}
			continue
		}
		basis = append(basis, basisRow{vec: vec, rhs: rhs, pivot: piv})
		kept = append(kept, row)
	}
	return kept, nil
}

// solve returns the relaxation optimum and the full variable vector (fixed
// values included).
func (r *relaxation) solve() (float64, []float64, error) {
	offset := 0.0
	values := make([]float64, r.m.NumVars())
	for i, f := range r.fixed {
		if f >= 0 {
			values[i] = float64(f)
			offset += r.m.cost[i] * float64(f)
		}
	}
	rows, ncols, err := r.rows()
	if err != nil {
		return 0, nil, err
	}
	rows, err = independent(rows, ncols)
	if err != nil {
		return 0, nil, err
	}

	for attempt := 0; attempt <= len(r.free); attempt++ {
		x, obj, err := r.simplex(rows, ncols)
		if errors.Is(err, lp.ErrUnbounded) {
			if len(r.bounded) == len(r.free) {
				return 0, nil, err
			}
			for k := range r.free {
				r.bounded[k] = true
			}
			continue
		}
		if err != nil {
			return 0, nil, err
		}
		grew := false
		for k, v := range x {
			if v > 1+r.tol && !r.bounded[k] {
				r.bounded[k] = true
				grew = true
			}
		}
		if grew {
			continue
		}
		for k, idx := range r.free {
			values[idx] = x[k]
		}
		return offset + obj, values, nil
	}
	return 0, nil, errors.New("mip: bound tightening did not converge")
}

// simplex assembles the dense standard-form problem and calls gonum's Simplex.
// Columns that appear in no row are set to their cheapest bound directly.
func (r *relaxation) simplex(rows []stdRow, ncols int) ([]float64, float64, error) {
	used := make([]bool, ncols)
	for _, row := range rows {
		for k := range row.coef {
			used[k] = true
		}
	}
	for k := range r.free {
		if r.bounded[k] {
			used[k] = true
		}
	}

	colIdx := make([]int, ncols)
	nc := 0
	for k := 0; k < ncols; k++ {
		colIdx[k] = -1
		if used[k] {
			colIdx[k] = nc
			nc++
		}
	}
	bounds := make([]int, 0, len(r.bounded))
	for k := range r.free {
		if r.bounded[k] {
			bounds = append(bounds, k)
		}
	}
	totalCols := nc + len(bounds)
	nrows := len(rows) + len(bounds)

	x := make([]float64, len(r.free))
	obj := 0.0
	for k, idx := range r.free {
		if !used[k] && r.m.cost[idx] < 0 {
			x[k] = 1
			obj += r.m.cost[idx]
		}
	}
	if nrows == 0 {
		return x, obj, nil
	}

	c := make([]float64, totalCols)
	for k, idx := range r.free {
		if used[k] {
			c[colIdx[k]] = r.m.cost[idx]
		}
	}
	A := mat.NewDense(nrows, totalCols, nil)
	b := make([]float64, nrows)
	for i, row := range rows {
		sign := 1.0
		if row.rhs < 0 {
			sign = -1
		}
		for k, v := range row.coef {
			A.Set(i, colIdx[k], sign*v)
		}
		b[i] = sign * row.rhs
	}
	for j, k := range bounds {
		i := len(rows) + j
		A.Set(i, colIdx[k], 1)
		A.Set(i, nc+j, 1)
		b[i] = 1
	}

	optF, optX, err := lp.Simplex(c, A, b, r.tol, nil)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return nil, 0, errRelaxInfeasible
		}
		return nil, 0, err
	}
	for k := range r.free {
		if used[k] {
			x[k] = optX[colIdx[k]]
		}
	}
	return x, obj + optF, nil
}
