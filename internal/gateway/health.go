package gateway

import (
	"context"
	"net/http"

	"github.com/flemzord/parley/internal/provider"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string            `json:"status"` // "ok" or "degraded"
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 when every check passes, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok", Checks: map[string]string{}}

		if g.probe != nil {
			ctx, cancel := context.WithTimeout(r.Context(), g.config.ProbeTimeout)
			err := g.probe.HealthCheck(ctx)
			cancel()
			resp.Checks["provider"] = checkResult(err)
		}
		if g.cache != nil {
			_, err := g.cache.Stats(r.Context())
			resp.Checks["cache"] = checkResult(err)
		}

		code := http.StatusOK
		for _, v := range resp.Checks {
			if v != "ok" {
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				break
			}
		}
		respondJSON(w, code, resp)
	}
}

func checkResult(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := provider.Kind(err); kind != "other" {
		return kind
	}
	return err.Error()
}
