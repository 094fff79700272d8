package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mxrc-robotics/mxrc/pkg/mxlog"
)

const indexPage = `<!doctype html>
<html><head><title>mxrc</title></head>
<body><h1>mxrc</h1><p><a href="/metrics">/metrics</a></p></body></html>
`

// Server exposes a Registry over HTTP: GET /metrics in Prometheus text
// format, GET / as a small HTML index (§6 "Metrics endpoint").
type Server struct {
	httpServer *http.Server
	logger     *mxlog.Logger
}

// NewServer builds an HTTP server bound to addr (expected localhost-only,
// per §6) serving registry.
func NewServer(addr string, registry *Registry, logger *mxlog.Logger) *Server {
	r := chi.NewRouter()
	r.Get("/metrics", promhttp.HandlerFor(registry.Gatherer(), promhttp.HandlerOpts{}).ServeHTTP)
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(indexPage))
	})
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start listens and serves in a background goroutine. Any error other than
// http.ErrServerClosed is logged.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.WithComponent("metrics_server").WithError(err).Error("metrics server stopped unexpectedly")
			}
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
