package metric

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "beamcal"

// Registry holds all application metrics on a private prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	// State
	Snapshots           prometheus.Counter
	RestoreMoves        prometheus.Counter
	RestoreNotConverged prometheus.Counter

	// Focus
	FocusSamples         prometheus.Counter
	FocusScore           prometheus.Gauge
	FocusWorkingDistance prometheus.Gauge

	// Alignment
	AlignmentMoves   *prometheus.CounterVec
	AlignmentAborted prometheus.Counter

	// Imaging
	Captures *prometheus.CounterVec

	OperationDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry with all metrics and the Go/process collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Instrument state snapshots taken.",
		}),
		RestoreMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restore_moves_total",
			Help:      "Absolute stage moves issued while restoring a state.",
		}),
		RestoreNotConverged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restore_not_converged_total",
			Help:      "Restores whose stage position did not reach the target.",
		}),
		FocusSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "focus_samples_total",
			Help:      "Working distances evaluated by the sharpness search.",
		}),
		FocusScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "focus_best_score",
			Help:      "Sharpness score of the last selected working distance.",
		}),
		FocusWorkingDistance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "focus_working_distance_meters",
			Help:      "Working distance selected by the last sharpness search.",
		}),
		AlignmentMoves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alignment_moves_total",
			Help:      "Correctional needle moves issued by alignment, by channel.",
		}, []string{"channel"}),
		AlignmentAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alignment_aborted_total",
			Help:      "Alignment passes aborted because a feature was not detected.",
		}),
		Captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Images acquired, by channel and persistence.",
		}, []string{"channel", "saved"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of calibration operations.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"operation", "result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.Snapshots,
		r.RestoreMoves,
		r.RestoreNotConverged,
		r.FocusSamples,
		r.FocusScore,
		r.FocusWorkingDistance,
		r.AlignmentMoves,
		r.AlignmentAborted,
		r.Captures,
		r.OperationDuration,
	)
	return r
}

// Handler returns an HTTP handler exposing this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordCapture counts one acquisition.
func (r *Registry) RecordCapture(channel string, saved bool) {
	r.Captures.WithLabelValues(channel, strconv.FormatBool(saved)).Inc()
}

// RecordAlignmentMove counts one correctional move.
func (r *Registry) RecordAlignmentMove(channel string) {
	r.AlignmentMoves.WithLabelValues(channel).Inc()
}

// ObserveOperation records the duration of a named operation.
func (r *Registry) ObserveOperation(operation string, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.OperationDuration.WithLabelValues(operation, result).Observe(seconds)
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Handler returns an HTTP handler for the process-wide registry.
func Handler() http.Handler {
	return Global().Handler()
}

// Register adds collectors owned by other components, such as storage gauges.
func (r *Registry) Register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := r.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
