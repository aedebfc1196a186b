package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestIncFrame(t *testing.T) {
	before := counterValue(t, FramesTotal.WithLabelValues("dropped"))
	IncFrame("dropped")
	IncFrame("dropped")
	require.Equal(t, before+2, counterValue(t, FramesTotal.WithLabelValues("dropped")))
}

func TestIncSessionEventUnknownKind(t *testing.T) {
	before := counterValue(t, SessionEventsTotal.WithLabelValues("unknown", "ok"))
	IncSessionEvent("", "ok")
	require.Equal(t, before+1, counterValue(t, SessionEventsTotal.WithLabelValues("unknown", "ok")))
}

func TestIncPipelineError(t *testing.T) {
	before := counterValue(t, PipelineErrorsTotal.WithLabelValues("unknown"))
	IncPipelineError("")
	require.Equal(t, before+1, counterValue(t, PipelineErrorsTotal.WithLabelValues("unknown")))
}
