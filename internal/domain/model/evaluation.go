// Package model defines the core data types shared by the evaluation orchestrator.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of an evaluation job.
type JobStatus string

// EvaluationType selects the scoring path for an evaluation job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type EvaluationType string

// ModelStatus represents the per-model state within a job.
type ModelStatus string

// Recommendation is the bucket derived from an overall score.
type Recommendation string

const (
	// JobStatusPending indicates a job has been created but not started.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the scheduler is driving the job.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates every model finished and a summary exists.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusError indicates a job-level failure.
	JobStatusError JobStatus = "error"

	// EvaluationTypeQuality scores each metric through the metric scorer.
	EvaluationTypeQuality EvaluationType = "quality"
	// EvaluationTypeSecurity runs one adversarial security pass per model.
	EvaluationTypeSecurity EvaluationType = "security"

	ModelStatusRunning   ModelStatus = "running"
	ModelStatusCompleted ModelStatus = "completed"
	ModelStatusError     ModelStatus = "error"

	RecommendationExcellent        Recommendation = "excellent"
	RecommendationGood             Recommendation = "good"
	RecommendationNeedsImprovement Recommendation = "needs_improvement"
)

// SecurityMetricKey is the single metric key used by security evaluations.
const SecurityMetricKey = "security_overall"

// Framework display labels.
const (
	FrameworkQuality  = "Quality & Ethics Metrics"
	FrameworkSecurity = "Adversarial Security Testing"
)

// Valid returns true if the JobStatus is known.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusCompleted || s == JobStatusError
}

// IsTerminal reports whether no further scheduler mutation is expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// Valid returns true if the EvaluationType is known.
func (t EvaluationType) Valid() bool {
	return t == EvaluationTypeQuality || t == EvaluationTypeSecurity
}

// UnmarshalText implements encoding.TextUnmarshaler so the type can be parsed from env and JSON.
func (t *EvaluationType) UnmarshalText(text []byte) error {
	v := EvaluationType(strings.ToLower(strings.TrimSpace(string(text))))
	if v == "" {
		*t = ""
		return nil
	}
	if !v.Valid() {
		return fmt.Errorf("invalid evaluation type: %q", string(text))
	}
	*t = v
	return nil
}

// Framework returns the display label for the scoring methodology.
func (t EvaluationType) Framework() string {
	if t == EvaluationTypeSecurity {
		return FrameworkSecurity
	}
	return FrameworkQuality
}

// CategoryBreakdown counts security probes for one attack category.
type CategoryBreakdown struct {
	Total    int     `json:"total"`
	Resisted int     `json:"resisted"`
	Rate     float64 `json:"rate"`
}

// MetricDetails carries the per-test breakdown behind a score.
type MetricDetails struct {
	TotalTests  int                          `json:"totalTests"`
	PassedTests int                          `json:"passedTests"`
	FailedTests int                          `json:"failedTests"`
	Categories  map[string]CategoryBreakdown `json:"categories,omitempty"`
	Note        string                       `json:"note,omitempty"`
	Fallback    bool                         `json:"fallback,omitempty"`
	Source      string                       `json:"source,omitempty"`
}

// MetricResult is the outcome of one (model, metric) pair.
type MetricResult struct {
	Score     float64        `json:"score"`
	Threshold float64        `json:"threshold"`
	Passed    bool           `json:"passed"`
	Details   *MetricDetails `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
}

// Failed reports whether the pair recorded an error instead of a score.
func (r MetricResult) Failed() bool {
	return r.Error != ""
}

// ModelResult groups the metric results for one model.
type ModelResult struct {
	Model   string                  `json:"model"`
	Status  ModelStatus             `json:"status"`
	Metrics map[string]MetricResult `json:"metrics"`
}

// Summary is the reduction of all results of a completed job.
type Summary struct {
	ModelScores    map[string]int `json:"modelScores"`
	OverallScore   int            `json:"overallScore"`
	Recommendation Recommendation `json:"recommendation"`
}

// JobRecord is the durable representation of one evaluation run.
type JobRecord struct {
	ID              string                  `json:"id"`
	Status          JobStatus               `json:"status"`
	Category        string                  `json:"category"`
	EvaluationType  EvaluationType          `json:"evaluationType"`
	Framework       string                  `json:"framework"`
	Metrics         []string                `json:"metrics"`
	Models          []string                `json:"models"`
	StartTime       time.Time               `json:"startTime"`
	EndTime         *time.Time              `json:"endTime,omitempty"`
	Progress        int                     `json:"progress"`
	Results         map[string]*ModelResult `json:"results"`
	Summary         *Summary                `json:"summary,omitempty"`
	Error           string                  `json:"error,omitempty"`
	CustomTestCases json.RawMessage         `json:"customTestCases,omitempty"`
}

// DedupKey identifies submissions that compete for the same (category, type) slot.
func (j *JobRecord) DedupKey() string {
	return "evaluation:" + j.Category + ":" + string(j.EvaluationType)
}

// TotalSteps returns the number of progress steps the scheduler will report.
func (j *JobRecord) TotalSteps() int {
	if j.EvaluationType == EvaluationTypeSecurity {
		return len(j.Models)
	}
	return len(j.Models) * len(j.Metrics)
}

// Clone returns a deep copy safe to hand to other goroutines.
func (j *JobRecord) Clone() *JobRecord {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Metrics = slices.Clone(j.Metrics)
	cp.Models = slices.Clone(j.Models)
	if j.EndTime != nil {
		end := *j.EndTime
		cp.EndTime = &end
	}
	if j.CustomTestCases != nil {
		cp.CustomTestCases = slices.Clone(j.CustomTestCases)
	}
	if j.Results != nil {
		cp.Results = make(map[string]*ModelResult, len(j.Results))
		for k, mr := range j.Results {
			cp.Results[k] = mr.clone()
		}
	}
	if j.Summary != nil {
		s := *j.Summary
		s.ModelScores = maps.Clone(j.Summary.ModelScores)
		cp.Summary = &s
	}
	return &cp
}

func (m *ModelResult) clone() *ModelResult {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Metrics != nil {
		cp.Metrics = make(map[string]MetricResult, len(m.Metrics))
		for k, r := range m.Metrics {
			if r.Details != nil {
				d := *r.Details
				d.Categories = maps.Clone(r.Details.Categories)
				r.Details = &d
			}
			cp.Metrics[k] = r
		}
	}
	return &cp
}

// Validate checks the structural invariants of a record.
func (j *JobRecord) Validate() error {
	var errs []error
	if strings.TrimSpace(j.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if !j.Status.Valid() {
		errs = append(errs, fmt.Errorf("invalid status %q", j.Status))
	}
	if !j.EvaluationType.Valid() {
		errs = append(errs, fmt.Errorf("invalid evaluation type %q", j.EvaluationType))
	}
	if j.Progress < 0 || j.Progress > 100 {
		errs = append(errs, fmt.Errorf("progress must be between 0 and 100, got %d", j.Progress))
	}
	if (j.Summary != nil) != (j.Status == JobStatusCompleted) {
		errs = append(errs, errors.New("summary must be present exactly when status is completed"))
	}
	for modelKey, mr := range j.Results {
		if mr == nil {
			continue
		}
		for metricKey := range mr.Metrics {
			if !slices.Contains(j.Metrics, metricKey) {
				errs = append(errs, fmt.Errorf("model %s has unexpected metric %s", modelKey, metricKey))
			}
		}
	}
	return errors.Join(errs...)
}
