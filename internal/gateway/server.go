package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/parley/internal/metrics"
)

// Handler returns the router with every route wired.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", g.handleHealth())
	r.Get("/status", g.handleStatus())
	if g.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(g.gatherer))
	}

	return r
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
