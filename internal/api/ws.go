package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ottoroute/internal/model"
)

// Streaming solve over WebSocket. The client sends
//
//	{"type":"solve","id":"1","payload":<SolveRequest>}
//
// and receives "accepted", one "result" per instance as it finishes, then
// "complete" (or "error") carrying the same id. "ping" is answered with "pong".

const (
	wsIdleTimeout = 60 * time.Second
	wsReadLimit   = maxBodyBytes
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(typ, id string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(wsMessage{Type: typ, ID: id, Payload: raw})
}

func (c *wsConn) fail(id, msg string) error {
	return c.send("error", id, map[string]string{"message": msg})
}

// SolveWSHandler handles GET /v1/solve/ws
func (s *Server) SolveWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	c := &wsConn{conn: conn}

	conn.SetReadLimit(wsReadLimit)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				_ = c.fail("", "invalid message")
			}
			return
		}
		switch msg.Type {
		case "ping":
			_ = c.send("pong", msg.ID, nil)
		case "solve":
			var req model.SolveRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				_ = c.fail(msg.ID, "invalid payload: "+err.Error())
				continue
			}
			if err := validateSolveRequest(&req, s.Cfg.Algorithm); err != nil {
				_ = c.fail(msg.ID, err.Error())
				continue
			}
			runID := uuid.Must(uuid.NewV7()).String()
			_ = c.send("accepted", msg.ID, map[string]string{"runId": runID})
			// no reads while solving; the deadline is reset on the next loop
			_ = conn.SetReadDeadline(time.Time{})
			run, err := s.solve(r.Context(), runID, req, func(res model.InstanceResult) {
				_ = c.send("result", msg.ID, res)
			})
			if err != nil {
				_ = c.fail(msg.ID, err.Error())
				continue
			}
			_ = c.send("complete", msg.ID, runSummary(run))
		default:
			_ = c.fail(msg.ID, "unknown message type: "+msg.Type)
		}
	}
}
