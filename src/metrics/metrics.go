// Package metrics counts what snapshot runs did and writes the result as a
// node_exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"shotty/src/orchestrate"
)

// Recorder implements orchestrate.Recorder on a private registry.
type Recorder struct {
	reg *prometheus.Registry

	volumes     *prometheus.CounterVec
	transitions *prometheus.CounterVec
	runs        prometheus.Counter
	lastRun     prometheus.Gauge
	runDuration prometheus.Gauge
}

var _ orchestrate.Recorder = (*Recorder)(nil)

func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		volumes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shotty_volumes_total",
				Help: "Volumes processed, by outcome",
			},
			[]string{"action"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shotty_instance_transitions_total",
				Help: "Instance stop/start transitions, by result",
			},
			[]string{"action", "result"},
		),
		runs: f.NewCounter(prometheus.CounterOpts{
			Name: "shotty_runs_total",
			Help: "Completed orchestration runs",
		}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "shotty_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
		runDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "shotty_last_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
	}
}

func (r *Recorder) VolumeDone(a orchestrate.VolumeAction) {
	r.volumes.WithLabelValues(string(a)).Inc()
}

func (r *Recorder) Transition(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.transitions.WithLabelValues(action, result).Inc()
}

// RunFinished records one completed run.
func (r *Recorder) RunFinished(start, end time.Time) {
	r.runs.Inc()
	r.lastRun.Set(float64(end.Unix()))
	r.runDuration.Set(end.Sub(start).Seconds())
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// WriteTextfile atomically writes all metrics to path in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
