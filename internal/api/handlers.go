package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ottoroute/internal/model"
	"ottoroute/internal/opt"
	"ottoroute/internal/store"
)

const sseHeartbeat = 15 * time.Second

func pageParams(r *http.Request) (cursor string, limit int) {
	cursor = r.URL.Query().Get("cursor")
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return cursor, limit
}

// RunsIndexHandler handles GET /v1/runs
func (s *Server) RunsIndexHandler(w http.ResponseWriter, r *http.Request) {
	cursor, limit := pageParams(r)
	items, next, err := s.Store.ListRuns(r.Context(), cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles GET /v1/runs/{id}
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	run, err := s.Store.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Run not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get run failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// RunEventsHandler handles GET /v1/runs/{id}/events/stream. A run that is
// already stored is replayed and the stream ends; otherwise events are relayed
// from the broker until run.completed, run.failed or client disconnect.
func (s *Server) RunEventsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	// Subscribe before the store lookup so a run finishing in between is not missed.
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	send := func(evt SSEEvent) {
		b, _ := json.Marshal(evt.Data)
		fmt.Fprintf(w, "event: %s\n", evt.Type)
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	}
	heartbeat := func() {
		send(SSEEvent{Type: "heartbeat", Data: map[string]any{"runId": id, "ts": time.Now().UTC().Format(time.RFC3339)}})
	}

	if run, err := s.Store.GetRun(r.Context(), id); err == nil {
		for _, res := range run.Results {
			send(SSEEvent{Type: instanceEventType(res), Data: map[string]any{"runId": id, "result": res}})
		}
		send(SSEEvent{Type: model.EventRunCompleted, Data: runSummary(run)})
		return
	}
	heartbeat()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			send(evt)
			if evt.Type == model.EventRunCompleted || evt.Type == eventRunFailed {
				return
			}
		case <-ticker.C:
			// a dropped run.completed still ends the stream once the run is stored
			if run, err := s.Store.GetRun(r.Context(), id); err == nil {
				send(SSEEvent{Type: model.EventRunCompleted, Data: runSummary(run)})
				return
			}
			heartbeat()
		}
	}
}

// CreateSubscriptionHandler handles POST /v1/subscriptions
func (s *Server) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	var req model.SubscriptionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSubscription(&req); err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid subscription", err.Error(), r.URL.Path)
		return
	}
	sub, err := s.Store.CreateSubscription(r.Context(), req)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// ListSubscriptionsHandler handles GET /v1/subscriptions
func (s *Server) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	cursor, limit := pageParams(r)
	items, next, err := s.Store.ListSubscriptions(r.Context(), cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	err := s.Store.DeleteSubscription(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	cursor, limit := pageParams(r)
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), r.URL.Query().Get("status"), cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	err := s.Store.RetryWebhookDelivery(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Delivery not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Retry delivery failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

// SolveStatsHandler handles GET /v1/admin/stats: per-algorithm counters since start.
func (s *Server) SolveStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"algorithms": opt.GetStats()})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
