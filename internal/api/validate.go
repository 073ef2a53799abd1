package api

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"ottoroute/internal/model"
	"ottoroute/internal/opt"
)

const maxInstances = 1000

// validateSolveRequest checks req; defaultAlgo stands in for an empty
// req.Algorithm when applying the per-algorithm waypoint cap.
func validateSolveRequest(req *model.SolveRequest, defaultAlgo string) error {
	algo, err := opt.ParseAlgorithm(firstNonEmpty(req.Algorithm, defaultAlgo))
	if err != nil {
		return fmt.Errorf("invalid algorithm: %s", firstNonEmpty(req.Algorithm, defaultAlgo))
	}
	if len(req.Instances) == 0 {
		return fmt.Errorf("instances must not be empty")
	}
	if len(req.Instances) > maxInstances {
		return fmt.Errorf("at most %d instances per request", maxInstances)
	}
	if req.TimeoutMs < 0 {
		return fmt.Errorf("timeoutMs must be >= 0")
	}
	if req.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if req.Vehicle != nil {
		if err := opt.ConfigFromVehicle(*req.Vehicle).Validate(); err != nil {
			return err
		}
	}
	for i, in := range req.Instances {
		if algo == opt.AlgorithmIP && len(in.Waypoints) > opt.MaxFlowWaypoints {
			return fmt.Errorf("instances[%d]: at most %d waypoints with algorithm ip, got %d", i, opt.MaxFlowWaypoints, len(in.Waypoints))
		}
		for j, w := range in.Waypoints {
			if math.IsNaN(w.Penalty) || w.Penalty < 0 {
				return fmt.Errorf("instances[%d].waypoints[%d]: penalty must be >= 0", i, j)
			}
		}
	}
	return nil
}

var knownEvents = map[string]struct{}{
	model.EventRunCompleted:       {},
	model.EventInstanceSolved:     {},
	model.EventInstanceNoSolution: {},
}

func validateSubscription(req *model.SubscriptionRequest) error {
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http(s) URL")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("events must not be empty")
	}
	for _, e := range req.Events {
		if _, ok := knownEvents[e]; !ok {
			return fmt.Errorf("unknown event type: %s", e)
		}
	}
	return nil
}
