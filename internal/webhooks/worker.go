package webhooks

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"ottoroute/internal/metrics"
	"ottoroute/internal/store"
)

const (
	DefaultMaxAttempts = 10
	batchSize          = 50
)

// Worker polls the store for due deliveries and POSTs them, retrying with
// exponential backoff until MaxAttempts, after which the delivery is dead-lettered.
type Worker struct {
	Store       store.Store
	HTTP        *http.Client
	Stop        chan struct{}
	MaxAttempts int
	Interval    time.Duration
}

func NewWorker(s store.Store, maxAttempts int) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Worker{Store: s, HTTP: &http.Client{Timeout: 5 * time.Second}, Stop: make(chan struct{}), MaxAttempts: maxAttempts, Interval: time.Second}
}

func (w *Worker) Start() {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				w.ProcessOnce(ctx)
				cancel()
			}
		}
	}()
}

// ProcessOnce attempts every due delivery once and returns how many were attempted.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, batchSize)
	if err != nil {
		log.Printf("webhooks: fetch due deliveries: %v", err)
		return 0
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
	return len(items)
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		_ = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), 0, 0)
		metrics.WebhookDeliveries.WithLabelValues(it.EventType, store.DeliveryFailed).Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventType, it.EventType)
	if it.Secret != "" {
		req.Header.Set(HeaderSignature, SignHMAC(it.Secret, it.Payload))
	}

	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latency := int(time.Since(start).Milliseconds())
	code := 0
	success := false
	if err == nil {
		code = resp.StatusCode
		_ = resp.Body.Close()
		success = code >= 200 && code < 300
	}
	lastErr := ""
	switch {
	case err != nil:
		lastErr = err.Error()
	case !success:
		lastErr = "unexpected status " + strconv.Itoa(code)
	}

	status := store.DeliveryDelivered
	switch {
	case success:
		_ = w.Store.MarkWebhookDelivery(ctx, it.ID, true, nil, "", code, latency)
	case it.Attempts+1 >= w.MaxAttempts:
		status = store.DeliveryFailed
		_ = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
		log.Printf("webhooks: delivery %s dead-lettered after %d attempts: %s", it.ID, it.Attempts+1, lastErr)
	default:
		status = store.DeliveryRetry
		next := time.Now().Add(nextBackoff(it.Attempts))
		_ = w.Store.MarkWebhookDelivery(ctx, it.ID, false, &next, lastErr, code, latency)
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
