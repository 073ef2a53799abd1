package opt

import (
	"sync"
	"time"
)

// Stats aggregates solve outcomes for one algorithm.
type Stats struct {
	Solved     int           `json:"solved"`
	NoSolution int           `json:"noSolution"`
	Failed     int           `json:"failed"`
	Total      time.Duration `json:"-"`
	TotalMs    int64         `json:"totalMs"`
	LastCost   float64       `json:"lastCost"`
}

var (
	mu    sync.Mutex
	stats = map[Algorithm]Stats{}
)

// RecordResult folds one outcome into the per-algorithm stats. A non-nil err
// counts as a failure and r is ignored.
func RecordResult(algo Algorithm, r Result, err error) {
	mu.Lock()
	defer mu.Unlock()
	s := stats[algo]
	switch {
	case err != nil:
		s.Failed++
	case r.Solved():
		s.Solved++
		s.LastCost = r.Cost
	default:
		s.NoSolution++
	}
	s.Total += r.Elapsed
	s.TotalMs = s.Total.Milliseconds()
	stats[algo] = s
}

// GetStats returns a snapshot keyed by algorithm name.
func GetStats() map[string]Stats {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]Stats, len(stats))
	for k, v := range stats {
		out[string(k)] = v
	}
	return out
}

// ResetStats clears everything recorded so far.
func ResetStats() {
	mu.Lock()
	stats = map[Algorithm]Stats{}
	mu.Unlock()
}
