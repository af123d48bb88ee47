package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	kind string
	name string
	tags map[string]string
}

type fakeSink struct{ samples []sample }

func (f *fakeSink) Count(name string, _ int64, tags map[string]string) {
	f.samples = append(f.samples, sample{"count", name, tags})
}

func (f *fakeSink) Gauge(name string, _ float64, tags map[string]string) {
	f.samples = append(f.samples, sample{"gauge", name, tags})
}

func (f *fakeSink) Timing(name string, _ time.Duration, tags map[string]string) {
	f.samples = append(f.samples, sample{"timing", name, tags})
}

func TestEmitEvaluationLifecycle(t *testing.T) {
	sink := &fakeSink{}
	EmitEvaluationLifecycle(sink, EvaluationMetric{
		EvaluationType: "quality",
		Category:       "fairness",
		Transition:     TransitionFailed,
		Result:         ResultError,
		Duration:       time.Second,
		Err:            errors.New("boom"),
	})

	require.Len(t, sink.samples, 2)
	assert.Equal(t, "evaluation.transition", sink.samples[0].name)
	assert.Equal(t, "errors_errorstring", sink.samples[0].tags["error_class"])
	assert.Equal(t, "evaluation.duration", sink.samples[1].name)
	assert.Equal(t, "timing", sink.samples[1].kind)
}

func TestEmitSkipsErrorClassOnSuccess(t *testing.T) {
	sink := &fakeSink{}
	EmitMetricScore(sink, MetricScore{Metric: "bias", Result: ResultSuccess, Err: errors.New("ignored")})
	require.Len(t, sink.samples, 1)
	_, ok := sink.samples[0].tags["error_class"]
	assert.False(t, ok)
}

func TestEmitArchiveAttemptFinal(t *testing.T) {
	sink := &fakeSink{}
	EmitArchiveAttempt(sink, ArchiveAttempt{Result: ResultSuccess, Attempt: 2, Final: true})
	require.Len(t, sink.samples, 2)
	assert.Equal(t, "archive.attempt", sink.samples[0].name)
	assert.Equal(t, "archive.outcome", sink.samples[1].name)
}

func TestEmitSnapshotWrite(t *testing.T) {
	sink := &fakeSink{}
	EmitSnapshotWrite(sink, "file", nil)
	EmitSnapshotWrite(sink, "index", errors.New("disk full"))
	require.Len(t, sink.samples, 2)
	assert.Equal(t, ResultSuccess, sink.samples[0].tags["result"])
	assert.Equal(t, ResultError, sink.samples[1].tags["result"])
	assert.Equal(t, "index", sink.samples[1].tags["kind"])
}

func TestNilSinkIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		EmitEvaluationLifecycle(nil, EvaluationMetric{})
		EmitSecurityRun(nil, SecurityRun{})
		EmitArchiveQueueDepth(nil, 1)
		EmitActiveEvaluations(nil, 1)
	})
}
