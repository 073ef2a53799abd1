package api

import (
	"net/http"
	"time"

	"ottoroute/internal/buildinfo"
)

// DebugJSON reports build info and the effective configuration, secrets omitted.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                 s.Cfg.Port,
			"AUTH_MODE":            s.Auth.Mode,
			"OTTO_ALGORITHM":       s.Cfg.Algorithm,
			"OTTO_SOLVE_TIMEOUT":   s.Cfg.SolveTimeout.String(),
			"OTTO_WORKERS":         s.Cfg.Workers,
			"RATE_RPS":             s.Cfg.RateRPS,
			"RATE_BURST":           s.Cfg.RateBurst,
			"WEBHOOK_MAX_ATTEMPTS": s.Cfg.WebhookMaxAttempts,
			"HAS_DATABASE_URL":     s.Cfg.DatabaseURL != "",
			"HAS_REDIS_URL":        s.Cfg.RedisURL != "",
		},
	})
}
