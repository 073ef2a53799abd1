// Package loader reads problem instances from the line-oriented text format:
// a single-number header line opens an instance, each "x y penalty" line adds
// a waypoint to it, and the next header closes it.
package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"ottoroute/internal/model"
)

var (
	// ErrMalformed is returned for lines that are neither headers nor waypoints.
	ErrMalformed = errors.New("loader: malformed input")

	// ErrUnknownSample is returned by SampleFile for an unknown sample key.
	ErrUnknownSample = errors.New("loader: unknown sample")
)

// maxLine bounds a single input line.
const maxLine = 1 << 20

// Parse reads every instance from r. Blank lines are skipped. An instance
// still open at end of input is returned when it holds at least one waypoint.
func Parse(r io.Reader) ([][]model.Waypoint, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var (
		all     [][]model.Waypoint
		current []model.Waypoint
		open    bool
		lineNo  int
	)
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		nums := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: line %d: bad number %q", ErrMalformed, lineNo, f)
			}
			nums[i] = v
		}
		switch len(nums) {
		case 1:
			if open {
				all = append(all, current)
			}
			current = []model.Waypoint{}
			open = true
		case 3:
			if !open {
				return nil, fmt.Errorf("%w: line %d: waypoint before the first header", ErrMalformed, lineNo)
			}
			current = append(current, model.Waypoint{
				Point:   model.Point{X: nums[0], Y: nums[1]},
				Penalty: nums[2],
			})
		default:
			return nil, fmt.Errorf("%w: line %d: want 1 or 3 numbers, got %d", ErrMalformed, lineNo, len(nums))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("loader: read line %d: %w", lineNo+1, err)
	}
	if open && len(current) > 0 {
		all = append(all, current)
	}
	return all, nil
}

// ParseFile opens path and parses it.
func ParseFile(path string) ([][]model.Waypoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open: %w", err)
	}
	defer f.Close()
	inst, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return inst, nil
}
