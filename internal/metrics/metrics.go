package metrics

import (
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pmr",
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of successful process starts.",
		}, []string{"name"},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pmr",
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of stops (graceful or kill).",
		}, []string{"name"},
	)
	processFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pmr",
			Subsystem: "process",
			Name:      "failures_total",
			Help:      "Number of spawn failures and abnormal exits detected.",
		}, []string{"name"},
	)
	logRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pmr",
			Subsystem: "logs",
			Name:      "rotations_total",
			Help:      "Number of log rotations performed.",
		}, []string{"name"},
	)
	runningProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pmr",
			Subsystem: "process",
			Name:      "running",
			Help:      "Processes currently cataloged as running.",
		},
	)
)

// Register installs the collectors on reg. Safe to call more than once.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		processStarts, processStops, processFailures, logRotations, runningProcesses,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
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

func IncStart(name string) {
	if regOK.Load() {
		processStarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		processStops.WithLabelValues(name).Inc()
	}
}

func IncFailure(name string) {
	if regOK.Load() {
		processFailures.WithLabelValues(name).Inc()
	}
}

func IncRotation(name string) {
	if regOK.Load() {
		logRotations.WithLabelValues(name).Inc()
	}
}

func SetRunning(n int) {
	if regOK.Load() {
		runningProcesses.Set(float64(n))
	}
}
