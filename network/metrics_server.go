package network

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/op/go-logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes Prometheus metrics on /metrics and a liveness
// probe on /health/live.
type MetricsServer struct {
	Server *http.Server
	Logger *logging.Logger
}

func NewMetricsServer(addr string, logger *logging.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return &MetricsServer{
		Server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Logger: logger,
	}
}

// Start serves in the background. Errors other than a normal shutdown
// are logged.
func (s *MetricsServer) Start() {
	s.Logger.Infof("Serving metrics on %s/metrics", s.Server.Addr)
	go func() {
		err := s.Server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Errorf("Metrics server stopped: %v", err)
		}
	}()
}

// Shutdown stops the server, waiting up to five seconds for open
// requests.
func (s *MetricsServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Server.Shutdown(ctx)
}
