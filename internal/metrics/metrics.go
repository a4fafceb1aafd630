// Package metrics exposes Prometheus counters for plugin loading and
// command dispatch. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Dispatch outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeDenied    = "denied"
	OutcomeDisabled  = "disabled"
	OutcomeThrottled = "throttled"
)

// Metrics groups the bot's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	commands   prometheus.Gauge
	loads      *prometheus.CounterVec
	dispatches *prometheus.CounterVec
	events     *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		commands: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "warden",
			Name:      "commands_registered",
			Help:      "Number of commands currently registered.",
		}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "plugin_loads_total",
			Help:      "Plugin load attempts by kind and result.",
		}, []string{"kind", "result"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "command_dispatches_total",
			Help:      "Command dispatches by command and outcome.",
		}, []string{"command", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "events_emitted_total",
			Help:      "Platform events emitted on the bus.",
		}, []string{"event"}),
	}
	m.Registry.MustRegister(
		m.commands, m.loads, m.dispatches, m.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// SetCommands records the registry size.
func (m *Metrics) SetCommands(n int) {
	if m == nil {
		return
	}
	m.commands.Set(float64(n))
}

// ObserveLoad counts one load attempt of kind "command" or "event".
func (m *Metrics) ObserveLoad(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.loads.WithLabelValues(kind, result).Inc()
}

// ObserveDispatch counts one dispatch outcome.
func (m *Metrics) ObserveDispatch(command, outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(command, outcome).Inc()
}

// ObserveEvent counts one emitted platform event.
func (m *Metrics) ObserveEvent(name string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(name).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics endpoint on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
