package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"ottoroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu       sync.Mutex
	runs     map[string]model.Run
	runOrder []string               // insertion order
	subs     []model.Subscription
	// Webhooks queue state
	deliveries map[string]*memDelivery // id -> delivery state
	delOrder   []string
	dedup      map[string]string // event|url|key -> delivery id
	dlq        []DeliveryInfo
}

func NewMemory() *Memory {
	return &Memory{
		runs:       map[string]model.Run{},
		deliveries: map[string]*memDelivery{},
		dedup:      map[string]string{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) SaveRun(ctx context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		m.runOrder = append(m.runOrder, run.ID)
	}
	run.Results = append([]model.InstanceResult(nil), run.Results...)
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(ctx context.Context, id string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return model.Run{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRuns(ctx context.Context, cursor string, limit int) ([]model.Run, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, next := page(m.runOrder, cursor, pageSize(limit))
	out := make([]model.Run, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.runs[id])
	}
	return out, next, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: append([]string(nil), req.Events...), Secret: req.Secret}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.subs))
	byID := make(map[string]model.Subscription, len(m.subs))
	for i, s := range m.subs {
		ids[i] = s.ID
		byID[s.ID] = s
	}
	sel, next := page(ids, cursor, pageSize(limit))
	out := make([]model.Subscription, 0, len(sel))
	for _, id := range sel {
		out = append(out, byID[id])
	}
	return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subs {
		if s.ID == id {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := eventType + "|" + url + "|" + computeDedupKey(payload)
	if id, dup := m.dedup[key]; dup {
		return id, nil
	}
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending},
		NextAttemptAt:   time.Now(),
	}
	m.delOrder = append(m.delOrder, id)
	m.dedup[key] = id
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.delOrder {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(1 * time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	m.dlq = append(m.dlq, d.info())
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status, cursor string, limit int) ([]DeliveryInfo, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.delOrder))
	for _, id := range m.delOrder {
		if status == "" || m.deliveries[id].Status == status {
			ids = append(ids, id)
		}
	}
	sel, next := page(ids, cursor, pageSize(limit))
	out := make([]DeliveryInfo, 0, len(sel))
	for _, id := range sel {
		out = append(out, m.deliveries[id].info())
	}
	return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Status = DeliveryPending
	d.NextAttemptAt = time.Now()
	return nil
}

func (d *memDelivery) info() DeliveryInfo {
	in := DeliveryInfo{ID: d.ID, EventType: d.EventType, Status: d.Status, Attempts: d.Attempts, URL: d.URL, LastError: d.LastError, ResponseCode: d.ResponseCode}
	if d.Status == DeliveryPending || d.Status == DeliveryRetry {
		t := d.NextAttemptAt
		in.NextAttemptAt = &t
	}
	return in
}

// page returns up to limit ids following cursor, and the cursor of the next
// page ("" on the last one).
func page(ids []string, cursor string, limit int) ([]string, string) {
	start := 0
	if cursor != "" {
		for i := range ids {
			if ids[i] == cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(ids) {
		end = len(ids)
	}
	next := ""
	if end < len(ids) {
		next = ids[end-1]
	}
	return append([]string(nil), ids[start:end]...), next
}
