// Package metrics emits the evaluation orchestrator's standard metric families to a statsd.Sink.
package metrics

import (
	"strconv"
	"time"

	obserrors "github.com/target/evalorch/internal/observability/errors"
	"github.com/target/evalorch/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Evaluation lifecycle transitions.
const (
	TransitionSubmitted = "submitted"
	TransitionCompleted = "completed"
	TransitionFailed    = "failed"
	TransitionCancelled = "cancelled"
	TransitionRecovered = "recovered"
)

// EvaluationMetric captures details about an evaluation lifecycle event.
type EvaluationMetric struct {
	EvaluationType string
	Category       string
	Transition     string
	Result         string
	Duration       time.Duration
	Err            error
}

// EmitEvaluationLifecycle emits evaluation.transition and, when timed, evaluation.duration.
func EmitEvaluationLifecycle(sink statsd.Sink, in EvaluationMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"evaluation_type": in.EvaluationType,
		"category":        in.Category,
		"transition":      in.Transition,
		"result":          in.Result,
	}
	addErrorClass(tags, in.Result, in.Err)

	sink.Count("evaluation.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("evaluation.duration", in.Duration, CloneTags(tags))
	}
}

// MetricScore captures one (model, metric) scoring attempt.
type MetricScore struct {
	Metric   string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitMetricScore emits evaluation.metric and evaluation.metric.duration.
func EmitMetricScore(sink statsd.Sink, in MetricScore) {
	if sink == nil {
		return
	}
	tags := map[string]string{"metric": in.Metric, "result": in.Result}
	addErrorClass(tags, in.Result, in.Err)

	sink.Count("evaluation.metric", 1, tags)
	if in.Duration > 0 {
		sink.Timing("evaluation.metric.duration", in.Duration, CloneTags(tags))
	}
}

// SecurityRun captures one security runner invocation.
type SecurityRun struct {
	Source   string
	Fallback bool
	Duration time.Duration
}

// EmitSecurityRun emits security_runner.run and security_runner.duration.
func EmitSecurityRun(sink statsd.Sink, in SecurityRun) {
	if sink == nil {
		return
	}
	tags := map[string]string{"source": in.Source, "fallback": strconv.FormatBool(in.Fallback)}
	sink.Count("security_runner.run", 1, tags)
	if in.Duration > 0 {
		sink.Timing("security_runner.duration", in.Duration, CloneTags(tags))
	}
}

// ArchiveAttempt captures one archive write attempt.
type ArchiveAttempt struct {
	Result   string
	Attempt  int
	Final    bool
	Duration time.Duration
	Err      error
}

// EmitArchiveAttempt emits archive.attempt, archive.duration and, for the last attempt, archive.outcome.
func EmitArchiveAttempt(sink statsd.Sink, in ArchiveAttempt) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": in.Result}
	addErrorClass(tags, in.Result, in.Err)

	sink.Count("archive.attempt", 1, tags)
	if in.Duration > 0 {
		sink.Timing("archive.duration", in.Duration, CloneTags(tags))
	}
	if in.Final {
		sink.Count("archive.outcome", 1, CloneTags(tags))
	}
}

// EmitArchiveQueueDepth records the current archive queue length.
func EmitArchiveQueueDepth(sink statsd.Sink, depth int) {
	if sink == nil {
		return
	}
	sink.Gauge("archive.queue_depth", float64(depth), nil)
}

// EmitSnapshotWrite counts one persistence write of the given kind ("index", "file" or "event").
func EmitSnapshotWrite(sink statsd.Sink, kind string, err error) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	tags := map[string]string{"kind": kind, "result": result}
	addErrorClass(tags, result, err)
	sink.Count("snapshot.write", 1, tags)
}

// EmitActiveEvaluations records the number of evaluations currently running.
func EmitActiveEvaluations(sink statsd.Sink, active int) {
	if sink == nil {
		return
	}
	sink.Gauge("evaluation.active", float64(active), nil)
}

func addErrorClass(tags map[string]string, result string, err error) {
	if err == nil || result != ResultError {
		return
	}
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
