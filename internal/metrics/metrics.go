package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dcamera_session_events_total",
		Help: "Total number of session events executed by kind and result code",
	}, []string{"kind", "result"})

	StateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dcamera_state_transitions_total",
		Help: "Total number of session state transitions",
	}, []string{"from", "to"})

	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dcamera_pipeline_frames_total",
		Help: "Total number of frames seen by the frame rate controller by outcome",
	}, []string{"outcome"})

	PipelineErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dcamera_pipeline_errors_total",
		Help: "Total number of pipelines disabled by a node failure",
	}, []string{"pipeline"})
)

// IncSessionEvent records an executed session event.
func IncSessionEvent(kind, result string) {
	if kind == "" {
		kind = "unknown"
	}
	SessionEventsTotal.WithLabelValues(kind, result).Inc()
}

// IncStateTransition records a state change.
func IncStateTransition(from, to string) {
	StateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// IncFrame records a frame rate controller decision, "forwarded" or "dropped".
func IncFrame(outcome string) {
	FramesTotal.WithLabelValues(outcome).Inc()
}

// IncPipelineError records a pipeline that was disabled after a node failure.
func IncPipelineError(pipeline string) {
	if pipeline == "" {
		pipeline = "unknown"
	}
	PipelineErrorsTotal.WithLabelValues(pipeline).Inc()
}
