package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ottoroute/internal/config"
	"ottoroute/internal/mip"
	"ottoroute/internal/model"
	"ottoroute/internal/opt"
	"ottoroute/internal/store"
)

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.RateRPS = 0
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func do(t *testing.T, h http.Handler, method, path, contentType string, body []byte, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

const scenarioJSON = `{"algorithm":"%s","includeRoutes":true,"instances":[
    {"waypoints":[{"x":50,"y":0,"penalty":5},{"x":50,"y":100,"penalty":5}]},
    {"waypoints":[]}
]}`

func solveScenario(t *testing.T, h http.Handler, algo string) SolveResponse {
	t.Helper()
	body := []byte(strings.Replace(scenarioJSON, "%s", algo, 1))
	rr := do(t, h, http.MethodPost, "/v1/solve", "application/json", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("solve %s: got %d: %s", algo, rr.Code, rr.Body.String())
	}
	var resp SolveResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestHealthReady(t *testing.T) {
	h := newTestServer(t).Routes()
	if rr := do(t, h, http.MethodGet, "/healthz", "", nil); rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/readyz", "", nil); rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestSolveJSONBothAlgorithms(t *testing.T) {
	h := newTestServer(t).Routes()
	for _, algo := range []string{"dp", "ip"} {
		resp := solveScenario(t, h, algo)
		if resp.RunID == "" || resp.Algorithm != algo {
			t.Fatalf("%s: bad envelope %+v", algo, resp)
		}
		if len(resp.Results) != 2 {
			t.Fatalf("%s: got %d results", algo, len(resp.Results))
		}
		first, second := resp.Results[0], resp.Results[1]
		if first.Status != model.StatusOptimal || first.Cost == nil || *first.Cost != 90.711 {
			t.Fatalf("%s: first instance %+v", algo, first)
		}
		if got := first.Route; len(got) != 2 || got[0] != 0 || got[1] != 3 {
			t.Fatalf("%s: route %v, want [0 3]", algo, got)
		}
		if second.Cost == nil || *second.Cost != 80.711 {
			t.Fatalf("%s: second instance %+v", algo, second)
		}
	}
}

func TestSolveTextPlain(t *testing.T) {
	h := newTestServer(t).Routes()
	body := []byte("2\n50 0 5\n50 100 5\n0\n")
	rr := do(t, h, http.MethodPost, "/v1/solve?algorithm=ip", "text/plain; charset=utf-8", body)
	if rr.Code != 200 {
		t.Fatalf("solve text: got %d: %s", rr.Code, rr.Body.String())
	}
	var resp SolveResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Algorithm != "ip" || len(resp.Results) != 1 || *resp.Results[0].Cost != 90.711 {
		t.Fatalf("unexpected response: %s", rr.Body.String())
	}
	if resp.Results[0].Route != nil {
		t.Fatalf("route included without ?routes=true")
	}

	rr = do(t, h, http.MethodPost, "/v1/solve", "text/plain", []byte("1\n1 2\n"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed text: got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "line 2") {
		t.Fatalf("malformed text should name the line: %s", rr.Body.String())
	}
}

func TestSolveRejects(t *testing.T) {
	h := newTestServer(t).Routes()
	cases := map[string]struct {
		body string
		want int
	}{
		"bad json":         {`{"instances":`, http.StatusBadRequest},
		"no instances":     {`{"instances":[]}`, http.StatusUnprocessableEntity},
		"unknown algo":     {`{"algorithm":"greedy","instances":[{"waypoints":[]}]}`, http.StatusUnprocessableEntity},
		"negative penalty": {`{"instances":[{"waypoints":[{"x":1,"y":1,"penalty":-1}]}]}`, http.StatusUnprocessableEntity},
		"zero speed":       {`{"vehicle":{"speed":0,"loadTime":10,"start":{"x":0,"y":0},"goal":{"x":1,"y":1}},"instances":[{"waypoints":[]}]}`, http.StatusUnprocessableEntity},
		"negative timeout": {`{"timeoutMs":-1,"instances":[{"waypoints":[]}]}`, http.StatusUnprocessableEntity},
	}
	for name, tc := range cases {
		rr := do(t, h, http.MethodPost, "/v1/solve", "application/json", []byte(tc.body))
		if rr.Code != tc.want {
			t.Fatalf("%s: got %d want %d: %s", name, rr.Code, tc.want, rr.Body.String())
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
			t.Fatalf("%s: content type %q", name, ct)
		}
	}
	if rr := do(t, h, http.MethodGet, "/v1/solve", "", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /v1/solve: got %d", rr.Code)
	}
}

func TestSolveCapsIPWaypoints(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"instances":[{"waypoints":[`)
	for i := 0; i <= opt.MaxFlowWaypoints; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"x":1,"y":2,"penalty":3}`)
	}
	b.WriteString(`]}]}`)
	body := b.String()

	h := newTestServer(t).Routes()
	ip := strings.Replace(body, `{"instances"`, `{"algorithm":"ip","instances"`, 1)
	if rr := do(t, h, http.MethodPost, "/v1/solve", "application/json", []byte(ip)); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("ip over cap: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/v1/solve", "application/json", []byte(body)); rr.Code != http.StatusOK {
		t.Fatalf("dp over ip cap: got %d: %s", rr.Code, rr.Body.String())
	}
	// the configured default algorithm applies when the request names none
	h = newTestServer(t, func(c *config.Config) { c.Algorithm = "ip" }).Routes()
	if rr := do(t, h, http.MethodPost, "/v1/solve", "application/json", []byte(body)); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("default ip over cap: got %d", rr.Code)
	}
}

// blockingMIP holds every solve until its context is done.
type blockingMIP struct{ started chan struct{} }

func (b blockingMIP) Solve(ctx context.Context, _ *mip.Model) (mip.Result, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return mip.Result{Status: mip.StatusTimeout}, nil
}

func TestCloseCancelsAsyncRuns(t *testing.T) {
	s := newTestServer(t)
	started := make(chan struct{}, 1)
	s.MIP = blockingMIP{started: started}
	h := s.Routes()
	body := []byte(`{"algorithm":"ip","timeoutMs":600000,"instances":[{"waypoints":[]}]}`)
	rr := do(t, h, http.MethodPost, "/v1/solve?async=true", "application/json", body)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("async: got %d", rr.Code)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("async solve never started")
	}

	done := make(chan struct{})
	go func() { s.Close(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not cancel the async run")
	}
}

func TestSolveVehicleOverride(t *testing.T) {
	h := newTestServer(t).Routes()
	body := []byte(`{"vehicle":{"speed":1,"loadTime":0,"start":{"x":0,"y":0},"goal":{"x":3,"y":4}},"instances":[{"waypoints":[]}]}`)
	rr := do(t, h, http.MethodPost, "/v1/solve", "application/json", body)
	if rr.Code != 200 {
		t.Fatalf("solve: got %d", rr.Code)
	}
	var resp SolveResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if *resp.Results[0].Cost != 5 {
		t.Fatalf("cost %v, want 5", *resp.Results[0].Cost)
	}
	if resp.Vehicle.Goal.X != 3 {
		t.Fatalf("vehicle not echoed: %+v", resp.Vehicle)
	}
}

func TestRunsStoredAndListed(t *testing.T) {
	h := newTestServer(t).Routes()
	a := solveScenario(t, h, "dp")
	b := solveScenario(t, h, "ip")

	rr := do(t, h, http.MethodGet, "/v1/runs/"+b.RunID, "", nil)
	if rr.Code != 200 {
		t.Fatalf("get run: got %d", rr.Code)
	}
	var run model.Run
	_ = json.Unmarshal(rr.Body.Bytes(), &run)
	if run.ID != b.RunID || run.Algorithm != "ip" || run.Solved() != 2 {
		t.Fatalf("bad run %+v", run)
	}

	rr = do(t, h, http.MethodGet, "/v1/runs?limit=1", "", nil)
	var page struct {
		Items      []model.Run `json:"items"`
		NextCursor string      `json:"nextCursor"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &page)
	if len(page.Items) != 1 || page.Items[0].ID != a.RunID || page.NextCursor == "" {
		t.Fatalf("first page: %s", rr.Body.String())
	}
	rr = do(t, h, http.MethodGet, "/v1/runs?limit=1&cursor="+page.NextCursor, "", nil)
	page.Items, page.NextCursor = nil, ""
	_ = json.Unmarshal(rr.Body.Bytes(), &page)
	if len(page.Items) != 1 || page.Items[0].ID != b.RunID {
		t.Fatalf("second page: %s", rr.Body.String())
	}

	if rr := do(t, h, http.MethodGet, "/v1/runs/missing", "", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("missing run: got %d", rr.Code)
	}
}

func TestRunEventsReplayStoredRun(t *testing.T) {
	h := newTestServer(t).Routes()
	resp := solveScenario(t, h, "dp")
	rr := do(t, h, http.MethodGet, "/v1/runs/"+resp.RunID+"/events/stream", "", nil)
	if rr.Code != 200 {
		t.Fatalf("stream: got %d", rr.Code)
	}
	body := rr.Body.String()
	if strings.Count(body, "event: instance.solved") != 2 {
		t.Fatalf("want two instance events: %s", body)
	}
	if !strings.HasSuffix(strings.TrimSpace(body), `"solved":2}`) || !strings.Contains(body, "event: run.completed") {
		t.Fatalf("stream should end with run.completed: %s", body)
	}
}

func TestSubscriptionsAndWebhookEnqueue(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	sub := []byte(`{"url":"https://hooks.example.com/otto","events":["run.completed","instance.no_solution"],"secret":"k"}`)
	rr := do(t, h, http.MethodPost, "/v1/subscriptions", "application/json", sub)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d: %s", rr.Code, rr.Body.String())
	}
	var created model.Subscription
	_ = json.Unmarshal(rr.Body.Bytes(), &created)

	solveScenario(t, h, "dp")
	items, _, err := s.Store.ListWebhookDeliveries(context.Background(), store.DeliveryPending, "", 10)
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(items) != 1 || items[0].EventType != model.EventRunCompleted {
		t.Fatalf("want one run.completed delivery, got %+v", items)
	}
	rr = do(t, h, http.MethodGet, "/v1/admin/webhook-deliveries?status=pending", "", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), items[0].ID) {
		t.Fatalf("deliveries: %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, h, http.MethodPost, "/v1/admin/webhook-deliveries/"+items[0].ID+"/retry", "", nil); rr.Code != http.StatusAccepted {
		t.Fatalf("retry: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/v1/admin/webhook-deliveries/nope/retry", "", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("retry missing: got %d", rr.Code)
	}

	rr = do(t, h, http.MethodGet, "/v1/subscriptions", "", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), created.ID) {
		t.Fatalf("list: %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, h, http.MethodDelete, "/v1/subscriptions/"+created.ID, "", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodDelete, "/v1/subscriptions/"+created.ID, "", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("delete twice: got %d", rr.Code)
	}
}

func TestSubscriptionValidation(t *testing.T) {
	h := newTestServer(t).Routes()
	for _, body := range []string{
		`{"url":"ftp://x","events":["run.completed"]}`,
		`{"url":"https://x.example","events":[]}`,
		`{"url":"https://x.example","events":["route.planned"]}`,
	} {
		if rr := do(t, h, http.MethodPost, "/v1/subscriptions", "application/json", []byte(body)); rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: got %d", body, rr.Code)
		}
	}
}

func TestAdminAuthToken(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) { c.AuthMode = "token"; c.AuthSecret = "s3cret" }).Routes()
	rr := do(t, h, http.MethodGet, "/v1/subscriptions", "", nil)
	if rr.Code != http.StatusUnauthorized || rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("no token: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/v1/subscriptions", "", nil, "Authorization", "Bearer wrong"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/v1/admin/stats", "", nil, "Authorization", "Bearer s3cret"); rr.Code != 200 {
		t.Fatalf("good token: got %d", rr.Code)
	}
	// solving stays open
	if rr := do(t, h, http.MethodPost, "/v1/solve", "application/json", []byte(`{"instances":[{"waypoints":[]}]}`)); rr.Code != 200 {
		t.Fatalf("solve without token: got %d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) { c.RateRPS = 0.01; c.RateBurst = 1 }).Routes()
	if rr := do(t, h, http.MethodGet, "/v1/config", "", nil); rr.Code != 200 {
		t.Fatalf("first: got %d", rr.Code)
	}
	rr := do(t, h, http.MethodGet, "/v1/config", "", nil)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("second: got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/healthz", "", nil); rr.Code != 200 {
		t.Fatalf("health exempt: got %d", rr.Code)
	}
}

func TestConfigStatsDebugDocs(t *testing.T) {
	h := newTestServer(t).Routes()
	rr := do(t, h, http.MethodGet, "/v1/config", "", nil)
	var cfg struct {
		Vehicle   model.VehicleConfig `json:"vehicle"`
		Algorithm string              `json:"algorithm"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &cfg)
	if cfg.Vehicle.Speed != 2 || cfg.Vehicle.Goal.Y != 100 || cfg.Algorithm != "dp" {
		t.Fatalf("config: %s", rr.Body.String())
	}

	solveScenario(t, h, "dp")
	rr = do(t, h, http.MethodGet, "/v1/admin/stats", "", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"dp"`) {
		t.Fatalf("stats: %s", rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/debug", "", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"build"`) {
		t.Fatalf("debug: %s", rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/openapi.json", "", nil)
	var doc map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil || doc["openapi"] != "3.0.3" {
		t.Fatalf("openapi.json: %v", err)
	}
	if rr := do(t, h, http.MethodGet, "/openapi.yaml", "", nil); !strings.Contains(rr.Body.String(), "/v1/solve") {
		t.Fatalf("openapi.yaml missing paths")
	}
	if rr := do(t, h, http.MethodGet, "/docs", "", nil); !strings.Contains(rr.Body.String(), "redoc") {
		t.Fatalf("docs page")
	}

	rr = do(t, h, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(rr.Body.String(), "ottoroute_solves_total") || !strings.Contains(rr.Body.String(), `path="POST /v1/solve"`) {
		t.Fatalf("metrics missing solve series")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	h := newTestServer(t).Routes()
	rr := do(t, h, http.MethodGet, "/healthz", "", nil, "X-Request-Id", "abc-123")
	if got := rr.Header().Get("X-Request-Id"); got != "abc-123" {
		t.Fatalf("request id %q", got)
	}
	rr = do(t, h, http.MethodGet, "/healthz", "", nil)
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id not assigned")
	}
}

type infeasibleMIP struct{}

func (infeasibleMIP) Solve(context.Context, *mip.Model) (mip.Result, error) {
	return mip.Result{Status: mip.StatusInfeasible, Detail: "stub"}, nil
}

func TestSolveNoSolutionEmitsWebhook(t *testing.T) {
	s := newTestServer(t)
	s.MIP = infeasibleMIP{}
	h := s.Routes()
	sub := []byte(`{"url":"https://hooks.example.com/otto","events":["instance.no_solution"]}`)
	if rr := do(t, h, http.MethodPost, "/v1/subscriptions", "application/json", sub); rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d", rr.Code)
	}

	resp := solveScenario(t, h, "ip")
	for _, res := range resp.Results {
		if res.Status != model.StatusNoSolution || res.Cost != nil || !strings.Contains(res.Error, "stub") {
			t.Fatalf("want no_solution, got %+v", res)
		}
	}
	items, _, err := s.Store.ListWebhookDeliveries(context.Background(), "", "", 10)
	if err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("want one delivery per instance, got %d", len(items))
	}
	for _, d := range items {
		if d.EventType != model.EventInstanceNoSolution {
			t.Fatalf("event %s", d.EventType)
		}
	}
}
