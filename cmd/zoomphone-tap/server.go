package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/zoomphone-tap/pkg/metrics"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// syncStatus is reported by /health.
type syncStatus struct {
	running atomic.Bool
	runID   atomic.Value
}

type healthResponse struct {
	Status  string `json:"status"`
	Syncing bool   `json:"syncing"`
	RunID   string `json:"run_id,omitempty"`
	Version string `json:"version"`
}

func newRouter(status *syncStatus) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", healthHandler(status)).Methods(http.MethodGet)
	return r
}

func healthHandler(status *syncStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Version: version}
		if status != nil {
			resp.Syncing = status.running.Load()
			resp.RunID, _ = status.runID.Load().(string)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// serveMetrics starts the metrics server in the background and returns a
// function that shuts it down.
func serveMetrics(addr string, status *syncStatus, logger zerolog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Handler:           newRouter(status),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving /metrics and /health")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
