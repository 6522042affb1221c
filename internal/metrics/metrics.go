package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deskmate",
			Subsystem: "bus",
			Name:      "events_published_total",
			Help:      "Number of events successfully enqueued per queue.",
		}, []string{"queue"},
	)
	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deskmate",
			Subsystem: "bus",
			Name:      "events_dropped_total",
			Help:      "Number of events dropped by filters or full queues.",
		}, []string{"queue"},
	)
	eventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deskmate",
			Subsystem: "bus",
			Name:      "events_consumed_total",
			Help:      "Number of events dequeued per queue.",
		}, []string{"queue"},
	)
	queueSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "deskmate",
			Subsystem: "bus",
			Name:      "queue_size",
			Help:      "Current number of buffered events per queue.",
		}, []string{"queue"},
	)

	serviceRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deskmate",
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Number of restart attempts per managed service.",
		}, []string{"service"},
	)
	serviceHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "deskmate",
			Subsystem: "supervisor",
			Name:      "service_healthy",
			Help:      "Health of managed services (1 = healthy, 0 = failed).",
		}, []string{"service"},
	)
	coordinatorState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "deskmate",
			Subsystem: "supervisor",
			Name:      "coordinator_state",
			Help:      "Current coordinator state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)

	uiDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deskmate",
			Subsystem: "ui",
			Name:      "events_dropped_total",
			Help:      "UI-bound events dropped before delivery, by reason.",
		}, []string{"reason"},
	)
	commandsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deskmate",
			Subsystem: "command",
			Name:      "dispatched_total",
			Help:      "Dispatched commands by name and outcome.",
		}, []string{"command", "outcome"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{eventsPublished, eventsDropped, eventsConsumed, queueSize, serviceRestarts, serviceHealthy, coordinatorState, uiDropped, commandsDispatched}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncPublished(queue string) {
	if regOK.Load() {
		eventsPublished.WithLabelValues(queue).Inc()
	}
}
func IncDropped(queue string) {
	if regOK.Load() {
		eventsDropped.WithLabelValues(queue).Inc()
	}
}
func IncConsumed(queue string) {
	if regOK.Load() {
		eventsConsumed.WithLabelValues(queue).Inc()
	}
}
func SetQueueSize(queue string, n int) {
	if regOK.Load() {
		queueSize.WithLabelValues(queue).Set(float64(n))
	}
}
func IncServiceRestart(service string) {
	if regOK.Load() {
		serviceRestarts.WithLabelValues(service).Inc()
	}
}
func SetServiceHealthy(service string, healthy bool) {
	if regOK.Load() {
		var v float64
		if healthy {
			v = 1
		}
		serviceHealthy.WithLabelValues(service).Set(v)
	}
}
func SetCoordinatorState(state string, active bool) {
	if regOK.Load() {
		var v float64
		if active {
			v = 1
		}
		coordinatorState.WithLabelValues(state).Set(v)
	}
}
func IncUIDropped(reason string) {
	if regOK.Load() {
		uiDropped.WithLabelValues(reason).Inc()
	}
}
func IncCommand(command, outcome string) {
	if regOK.Load() {
		commandsDispatched.WithLabelValues(command, outcome).Inc()
	}
}
