package opt

import (
	"errors"
	"fmt"
	"math"

	"ottoroute/internal/model"
)

var (
	// ErrInvalidConfig marks configuration errors: bad speed, load time or waypoint values.
	ErrInvalidConfig = errors.New("opt: invalid configuration")

	// ErrNoSolution is returned when a solver finishes without an optimal route.
	ErrNoSolution = errors.New("opt: no optimal solution found")

	// ErrBadRoute is returned by RouteCost for index sequences that are not routes.
	ErrBadRoute = errors.New("opt: invalid route")
)

// Tolerance is the agreement threshold between solvers after rounding.
const Tolerance = 1e-3

// Config holds the vehicle constants shared by every instance of a run.
type Config struct {
	Speed    float64
	LoadTime float64
	Start    model.Point
	Goal     model.Point
}

// DefaultConfig returns the constants of the reference robot: 2 m/s, 10 s load
// time, start (0,0), goal (100,100).
func DefaultConfig() Config {
	return Config{
		Speed:    2.0,
		LoadTime: 10.0,
		Start:    model.Point{X: 0, Y: 0},
		Goal:     model.Point{X: 100, Y: 100},
	}
}

func ConfigFromVehicle(v model.VehicleConfig) Config {
	return Config{Speed: v.Speed, LoadTime: v.LoadTime, Start: v.Start, Goal: v.Goal}
}

func (c Config) Vehicle() model.VehicleConfig {
	return model.VehicleConfig{Speed: c.Speed, LoadTime: c.LoadTime, Start: c.Start, Goal: c.Goal}
}

func (c Config) Validate() error {
	if !finite(c.Speed) || c.Speed <= 0 {
		return fmt.Errorf("%w: speed must be positive, got %v", ErrInvalidConfig, c.Speed)
	}
	if !finite(c.LoadTime) || c.LoadTime < 0 {
		return fmt.Errorf("%w: load time must be non-negative, got %v", ErrInvalidConfig, c.LoadTime)
	}
	if !finite(c.Start.X) || !finite(c.Start.Y) {
		return fmt.Errorf("%w: start position is not finite", ErrInvalidConfig)
	}
	if !finite(c.Goal.X) || !finite(c.Goal.Y) {
		return fmt.Errorf("%w: goal position is not finite", ErrInvalidConfig)
	}
	return nil
}

// Problem is the canonical extended stop sequence: start at index 0, the
// intermediate waypoints in input order, goal at the last index. It is built
// once and only read afterwards, so solving it repeatedly is safe.
type Problem struct {
	cfg    Config
	stops  []model.Waypoint
	prefix []float64 // prefix[k] = sum of penalties of stops[0:k]
}

// NewProblem validates cfg and waypoints and builds the canonical sequence.
// The waypoints slice is copied.
func NewProblem(cfg Config, waypoints []model.Waypoint) (*Problem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stops := make([]model.Waypoint, 0, len(waypoints)+2)
	stops = append(stops, model.Waypoint{Point: cfg.Start})
	for i, w := range waypoints {
		if !finite(w.X) || !finite(w.Y) {
			return nil, fmt.Errorf("%w: waypoint %d has non-finite coordinates", ErrInvalidConfig, i+1)
		}
		if !finite(w.Penalty) || w.Penalty < 0 {
			return nil, fmt.Errorf("%w: waypoint %d penalty must be non-negative, got %v", ErrInvalidConfig, i+1, w.Penalty)
		}
		stops = append(stops, w)
	}
	stops = append(stops, model.Waypoint{Point: cfg.Goal})

	prefix := make([]float64, len(stops)+1)
	for k, s := range stops {
		prefix[k+1] = prefix[k] + s.Penalty
	}
	return &Problem{cfg: cfg, stops: stops, prefix: prefix}, nil
}

func (p *Problem) Config() Config { return p.cfg }

// Len is the canonical length, n+2.
func (p *Problem) Len() int { return len(p.stops) }

// Goal is the index of the goal stop.
func (p *Problem) Goal() int { return len(p.stops) - 1 }

func (p *Problem) Stop(i int) model.Waypoint { return p.stops[i] }

// Waypoints returns a copy of the intermediate waypoints.
func (p *Problem) Waypoints() []model.Waypoint {
	return append([]model.Waypoint(nil), p.stops[1:len(p.stops)-1]...)
}

// TravelTime is the straight-line distance between stops i and j divided by speed.
func (p *Problem) TravelTime(i, j int) float64 {
	a, b := p.stops[i], p.stops[j]
	return math.Hypot(a.X-b.X, a.Y-b.Y) / p.cfg.Speed
}

// PenaltySum is the total penalty of the stops strictly between i and j.
func (p *Problem) PenaltySum(i, j int) float64 {
	if i > j {
		i, j = j, i
	}
	if j <= i+1 {
		return 0
	}
	return p.prefix[j] - p.prefix[i+1]
}

// ArcCost is the cost of going directly from stop i to stop j: travel,
// penalties of everything skipped in between, and loading at j.
func (p *Problem) ArcCost(i, j int) float64 {
	return p.TravelTime(i, j) + p.PenaltySum(i, j) + p.cfg.LoadTime
}

// RouteCost sums the arc costs along route, which must start at 0, end at the
// goal and be strictly increasing.
func (p *Problem) RouteCost(route []int) (float64, error) {
	if len(route) < 2 || route[0] != 0 || route[len(route)-1] != p.Goal() {
		return 0, fmt.Errorf("%w: must run from 0 to %d", ErrBadRoute, p.Goal())
	}
	total := 0.0
	for k := 1; k < len(route); k++ {
		if route[k] <= route[k-1] {
			return 0, fmt.Errorf("%w: index %d does not follow %d", ErrBadRoute, route[k], route[k-1])
		}
		total += p.ArcCost(route[k-1], route[k])
	}
	return total, nil
}

// Round3 rounds to three decimals for output stability.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
