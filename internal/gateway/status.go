package gateway

import (
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	UptimeSeconds   int64        `json:"uptime_seconds"`
	SessionID       string       `json:"session_id,omitempty"`
	Model           string       `json:"model,omitempty"`
	ContextMessages int          `json:"context_messages"`
	EstimatedTokens int          `json:"estimated_tokens"`
	Cache           *CacheStatus `json:"cache,omitempty"`
}

// CacheStatus summarizes the response cache.
type CacheStatus struct {
	Entries int64  `json:"entries"`
	Bytes   int64  `json:"bytes"`
	Error   string `json:"error,omitempty"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		started := g.startedAt
		g.mu.Unlock()

		resp := StatusResponse{
			UptimeSeconds: int64(time.Since(started) / time.Second),
		}

		if g.session != nil {
			resp.SessionID = g.session.ID()
			resp.Model = g.session.Model()
			resp.ContextMessages = len(g.session.Context())
			resp.EstimatedTokens = g.session.EstimateTokens()
		}

		if g.cache != nil {
			st, err := g.cache.Stats(r.Context())
			resp.Cache = &CacheStatus{Entries: st.Entries, Bytes: st.Bytes}
			if err != nil {
				resp.Cache.Error = err.Error()
			}
		}

		respondJSON(w, http.StatusOK, resp)
	}
}
