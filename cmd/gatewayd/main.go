/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// gatewayd runs the settlement gateway as a standalone daemon with an HTTP
// surface for invocations, outcome lookups, health and metrics.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/finclarity/settlement-gateway/pkg/common/logging"
	"github.com/finclarity/settlement-gateway/pkg/core/config"
	"github.com/finclarity/settlement-gateway/pkg/gateway"
	"github.com/finclarity/settlement-gateway/pkg/metrics"
)

var logger = logging.NewLogger("gatewayd")

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := pflag.String("config", "", "path to the gateway configuration file")
	listen := pflag.String("listen", "", "listen address override")
	pflag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Errorf("Loading configuration failed: %s", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	registry := prometheus.NewRegistry()
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(registry)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []gateway.Option{gateway.WithConfig(cfg)}
	if m != nil {
		opts = append(opts, gateway.WithMetrics(m))
	}

	gw, err := gateway.Connect(ctx, opts...)
	if err != nil {
		logger.Errorf("Gateway startup failed: %s", err)
		os.Exit(2)
	}
	defer gw.Close()

	if m != nil {
		gw.RegisterPoolMetrics(registry)
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newRouter(gw, registry, cfg.Metrics.Enabled),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", cfg.Listen)
		errCh <- server.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Errorf("HTTP server failed: %s", err)
		os.Exit(2)
	case s := <-sig:
		logger.Infof("Received %s; shutting down", s)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("HTTP shutdown did not complete cleanly: %s", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv()
	}
	return config.FromFile(path)
}

func newRouter(gw *gateway.Gateway, registry *prometheus.Registry, metricsEnabled bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/v1/invoke", func(w http.ResponseWriter, req *http.Request) {
		var invocation gateway.InvocationRequest
		if err := json.NewDecoder(req.Body).Decode(&invocation); err != nil {
			http.Error(w, "malformed invocation request", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, gw.Invoke(req.Context(), invocation))
	})

	r.Get("/v1/outcomes/{key}", func(w http.ResponseWriter, req *http.Request) {
		key := chi.URLParam(req, "key")
		outcome, state, ok := gw.Outcome(key)
		if !ok {
			http.Error(w, "no outcome recorded for key", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"state":   state.String(),
			"outcome": outcome,
		})
	})

	r.Post("/v1/tenants/{tenant}/invalidate", func(w http.ResponseWriter, req *http.Request) {
		gw.Invalidate(chi.URLParam(req, "tenant"))
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, gw.Health())
	})

	if metricsEnabled {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return r
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("Writing response failed: %s", err)
	}
}
