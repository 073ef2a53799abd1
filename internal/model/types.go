package model

import "time"

// Core domain types shared by the solvers, the loader and the API.

type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Waypoint is a candidate stop. Penalty is charged when the route skips it.
type Waypoint struct {
	Point
	Penalty float64 `json:"penalty"`
}

// VehicleConfig holds the run-wide constants applied to every instance.
type VehicleConfig struct {
	Speed    float64 `json:"speed" yaml:"speed"`
	LoadTime float64 `json:"loadTime" yaml:"loadTime"`
	Start    Point   `json:"start" yaml:"start"`
	Goal     Point   `json:"goal" yaml:"goal"`
}

type InstanceIn struct {
	Waypoints []Waypoint `json:"waypoints"`
}

type SolveRequest struct {
	Algorithm     string         `json:"algorithm,omitempty"`
	Vehicle       *VehicleConfig `json:"vehicle,omitempty"`
	Instances     []InstanceIn   `json:"instances"`
	TimeoutMs     int            `json:"timeoutMs,omitempty"`
	Workers       int            `json:"workers,omitempty"`
	IncludeRoutes bool           `json:"includeRoutes,omitempty"`
}

// Instance result statuses.
const (
	StatusOptimal    = "optimal"
	StatusNoSolution = "no_solution"
	StatusInvalid    = "invalid"
)

type InstanceResult struct {
	Index     int      `json:"index"`
	Status    string   `json:"status"`
	Cost      *float64 `json:"cost,omitempty"`
	Route     []int    `json:"route,omitempty"`
	Error     string   `json:"error,omitempty"`
	ElapsedMs int64    `json:"elapsedMs"`
}

// Run is one stored batch solve.
type Run struct {
	ID        string           `json:"id"`
	Algorithm string           `json:"algorithm"`
	Vehicle   VehicleConfig    `json:"vehicle"`
	CreatedAt time.Time        `json:"createdAt"`
	Results   []InstanceResult `json:"results"`
}

// Solved counts instances that reached an optimal status.
func (r Run) Solved() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusOptimal {
			n++
		}
	}
	return n
}

type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

// Event types emitted to brokers and webhook subscribers.
const (
	EventRunCompleted       = "run.completed"
	EventInstanceSolved     = "instance.solved"
	EventInstanceNoSolution = "instance.no_solution"
)
