package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(s.radio.Metrics()); err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /objects", s.handleObjects)
	mux.HandleFunc("GET /objects/{kind}", s.handleObjectKind)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /events.ndjson", s.handleEventStream)
	mux.HandleFunc("GET /report.pdf", s.handleReport)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux, nil
}
