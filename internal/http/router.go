package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2jSoftware/s2t/internal/pipeline"
	"github.com/2jSoftware/s2t/internal/ws"
)

// Snapshotter reports the current session state for the health endpoint.
type Snapshotter interface {
	Snapshot() pipeline.Snapshot
}

type health struct {
	OK bool `json:"ok"`
	pipeline.Snapshot
}

func NewRouter(wss *ws.Server, state Snapshotter, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health{OK: true, Snapshot: state.Snapshot()})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	// transcript push and recording control
	r.Get("/ws", wss.Handle)
	return r
}
