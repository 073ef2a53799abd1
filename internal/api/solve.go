package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ottoroute/internal/loader"
	"ottoroute/internal/metrics"
	"ottoroute/internal/model"
	"ottoroute/internal/obs"
	"ottoroute/internal/opt"
)

const (
	maxBodyBytes = 8 << 20
	maxWorkers   = 16

	// eventRunFailed is broker-only; webhooks never see it.
	eventRunFailed = "run.failed"
)

// SolveResponse is the body returned by POST /v1/solve.
type SolveResponse struct {
	RunID     string                 `json:"runId"`
	Algorithm string                 `json:"algorithm"`
	Vehicle   model.VehicleConfig    `json:"vehicle"`
	Results   []model.InstanceResult `json:"results"`
}

// SolveHandler handles POST /v1/solve. JSON bodies carry a model.SolveRequest;
// text/plain bodies use the instance file format with the algorithm in ?algorithm=.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	req, err := decodeSolveRequest(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req, s.Cfg.Algorithm); err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}
	runID := uuid.Must(uuid.NewV7()).String()
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		ctx := obs.WithRequestID(s.lifetime(), obs.RequestID(r.Context()))
		s.async.Add(1)
		go func() {
			defer s.async.Done()
			if _, err := s.solve(ctx, runID, req, nil); err != nil {
				log.Printf("api: async run %s: %v", runID, err)
				s.Broker.Publish(runID, SSEEvent{Type: eventRunFailed, Data: map[string]any{"runId": runID, "error": err.Error()}})
			}
		}()
		w.Header().Set("Location", "/v1/runs/"+runID)
		writeJSON(w, http.StatusAccepted, map[string]any{"runId": runID, "events": "/v1/runs/" + runID + "/events/stream"})
		return
	}
	run, err := s.solve(r.Context(), runID, req, nil)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		writeProblem(w, status, "Solve failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, SolveResponse{RunID: run.ID, Algorithm: run.Algorithm, Vehicle: run.Vehicle, Results: run.Results})
}

func decodeSolveRequest(r *http.Request) (model.SolveRequest, error) {
	var req model.SolveRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "text/plain" {
		inst, err := loader.Parse(r.Body)
		if err != nil {
			return req, err
		}
		q := r.URL.Query()
		req.Algorithm = q.Get("algorithm")
		req.IncludeRoutes, _ = strconv.ParseBool(q.Get("routes"))
		for _, wps := range inst {
			req.Instances = append(req.Instances, model.InstanceIn{Waypoints: wps})
		}
		return req, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("invalid JSON: %w", err)
	}
	return req, nil
}

// solve runs req as one stored run. onResult, when set, sees every instance
// result as it completes; calls are serialized.
func (s *Server) solve(ctx context.Context, runID string, req model.SolveRequest, onResult func(model.InstanceResult)) (run model.Run, err error) {
	defer obs.Time(ctx, "solve_run")(&err)

	algo, err := opt.ParseAlgorithm(firstNonEmpty(req.Algorithm, s.Cfg.Algorithm))
	if err != nil {
		return run, err
	}
	vehicle := s.Cfg.Vehicle
	if req.Vehicle != nil {
		vehicle = *req.Vehicle
	}
	timeout := s.Cfg.SolveTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	solver, err := opt.NewSolver(algo, opt.Options{MIP: s.MIP, Timeout: timeout})
	if err != nil {
		return run, err
	}
	workers := req.Workers
	if workers <= 0 {
		workers = s.Cfg.Workers
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}

	instances := make([][]model.Waypoint, len(req.Instances))
	for i, in := range req.Instances {
		instances[i] = in.Waypoints
	}

	var mu sync.Mutex
	outcomes, err := opt.SolveBatch(ctx, opt.ConfigFromVehicle(vehicle), instances, solver, opt.BatchOptions{
		Workers: workers,
		OnResult: func(o opt.Outcome) {
			res := toInstanceResult(o, req.IncludeRoutes)
			opt.RecordResult(algo, o.Result, o.Err)
			metrics.ObserveSolve(string(algo), res.Status, o.Result.Elapsed.Seconds(), len(instances[o.Index]))
			evt := SSEEvent{Type: instanceEventType(res), Data: map[string]any{"runId": runID, "result": res}}
			s.Broker.Publish(runID, evt)
			s.Pub.Emit(ctx, evt.Type, evt.Data)
			if onResult != nil {
				mu.Lock()
				onResult(res)
				mu.Unlock()
			}
		},
	})
	if err != nil {
		return run, err
	}

	run = model.Run{ID: runID, Algorithm: string(algo), Vehicle: vehicle, CreatedAt: time.Now().UTC()}
	run.Results = make([]model.InstanceResult, len(outcomes))
	for i, o := range outcomes {
		run.Results[i] = toInstanceResult(o, req.IncludeRoutes)
	}
	if err := s.Store.SaveRun(ctx, run); err != nil {
		return run, fmt.Errorf("save run: %w", err)
	}
	summary := runSummary(run)
	s.Broker.Publish(runID, SSEEvent{Type: model.EventRunCompleted, Data: summary})
	s.Pub.Emit(ctx, model.EventRunCompleted, summary)
	return run, nil
}

func toInstanceResult(o opt.Outcome, includeRoute bool) model.InstanceResult {
	res := model.InstanceResult{Index: o.Index, ElapsedMs: o.Result.Elapsed.Milliseconds()}
	switch {
	case o.Err != nil:
		res.Status = model.StatusInvalid
		res.Error = o.Err.Error()
	case o.Result.Solved():
		res.Status = model.StatusOptimal
		c := o.Result.Cost
		res.Cost = &c
		if includeRoute {
			res.Route = o.Result.Route
		}
	default:
		res.Status = model.StatusNoSolution
		res.Error = o.Result.Err().Error()
	}
	return res
}

func runSummary(run model.Run) map[string]any {
	return map[string]any{"runId": run.ID, "algorithm": run.Algorithm, "instances": len(run.Results), "solved": run.Solved()}
}

func instanceEventType(res model.InstanceResult) string {
	if res.Status == model.StatusOptimal {
		return model.EventInstanceSolved
	}
	return model.EventInstanceNoSolution
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ConfigHandler handles GET /v1/config.
func (s *Server) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"vehicle":        s.Cfg.Vehicle,
		"algorithm":      firstNonEmpty(s.Cfg.Algorithm, string(opt.AlgorithmDP)),
		"algorithms":     []string{string(opt.AlgorithmDP), string(opt.AlgorithmIP)},
		"solveTimeoutMs": s.Cfg.SolveTimeout.Milliseconds(),
		"workers":        s.Cfg.Workers,
		"tolerance":      opt.Tolerance,
	})
}
