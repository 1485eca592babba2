// Package metrics exposes the bot's Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/oklahomer/go-kasumi/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommandsHandled counts handled commands by identifier and outcome
	// ("ok", "rejected" or "error").
	CommandsHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "charbot",
		Name:      "commands_handled_total",
		Help:      "Commands handled by identifier and outcome.",
	}, []string{"command", "outcome"})

	// RepSpent counts rep removed from user balances by reason.
	RepSpent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "charbot",
		Name:      "rep_spent_total",
		Help:      "Rep spent by users, by reason.",
	}, []string{"reason"})

	// ControlSpent counts control removed from gangs by reason.
	ControlSpent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "charbot",
		Name:      "control_spent_total",
		Help:      "Control spent by gangs, by reason.",
	}, []string{"reason"})

	// DuesOutcomes counts members charged or left unpaid by the monthly dues run.
	DuesOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "charbot",
		Name:      "dues_outcomes_total",
		Help:      "Dues outcomes per member: paid, unpaid, removed.",
	}, []string{"outcome"})

	// RaidsResolved counts finished raids by winning side.
	RaidsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "charbot",
		Name:      "raids_resolved_total",
		Help:      "Raids resolved by winning side.",
	}, []string{"winner"})

	// ItemsConfiscated counts items removed by shakedowns.
	ItemsConfiscated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "charbot",
		Name:      "shakedown_items_confiscated_total",
		Help:      "Items confiscated by shakedowns.",
	})
)

// NewRegistry returns a registry holding the bot collectors plus the Go
// runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		CommandsHandled,
		RepSpent,
		ControlSpent,
		DuesOutcomes,
		RaidsResolved,
		ItemsConfiscated,
	)
	return reg
}

// Serve exposes /metrics on addr until ctx is canceled. An empty addr
// disables the endpoint.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Failed to shut down metrics server: %+v", err)
		}
	}()

	go func() {
		logger.Infof("Serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server stopped: %+v", err)
		}
	}()
}
