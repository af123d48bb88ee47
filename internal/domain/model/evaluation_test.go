package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *JobRecord {
	end := time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC)
	return &JobRecord{
		ID:             "job-1",
		Status:         JobStatusCompleted,
		Category:       "fairness",
		EvaluationType: EvaluationTypeQuality,
		Framework:      FrameworkQuality,
		Metrics:        []string{"bias", "toxicity"},
		Models:         []string{"gpt-4"},
		StartTime:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		EndTime:        &end,
		Progress:       100,
		Results: map[string]*ModelResult{
			"gpt-4": {
				Model:  "GPT-4",
				Status: ModelStatusCompleted,
				Metrics: map[string]MetricResult{
					"bias": {Score: 80, Threshold: 70, Passed: true, Details: &MetricDetails{TotalTests: 10, PassedTests: 8, FailedTests: 2}},
				},
			},
		},
		Summary: &Summary{ModelScores: map[string]int{"gpt-4": 80}, OverallScore: 80, Recommendation: RecommendationGood},
	}
}

func TestEvaluationTypeFramework(t *testing.T) {
	assert.Equal(t, FrameworkQuality, EvaluationTypeQuality.Framework())
	assert.Equal(t, FrameworkSecurity, EvaluationTypeSecurity.Framework())
}

func TestEvaluationTypeUnmarshalText(t *testing.T) {
	var et EvaluationType
	require.NoError(t, et.UnmarshalText([]byte(" Security ")))
	assert.Equal(t, EvaluationTypeSecurity, et)

	require.Error(t, et.UnmarshalText([]byte("speed")))

	var req SubmitEvaluationRequest
	err := json.Unmarshal([]byte(`{"category":"fairness","evaluationType":"bogus"}`), &req)
	require.Error(t, err)
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusError.IsTerminal())
	assert.False(t, JobStatus("failed").Valid())
}

func TestJobRecordTotalSteps(t *testing.T) {
	rec := &JobRecord{EvaluationType: EvaluationTypeQuality, Models: []string{"a", "b", "c"}, Metrics: []string{"m1", "m2", "m3", "m4"}}
	assert.Equal(t, 12, rec.TotalSteps())

	rec.EvaluationType = EvaluationTypeSecurity
	rec.Metrics = []string{SecurityMetricKey}
	assert.Equal(t, 3, rec.TotalSteps())
}

func TestJobRecordCloneIsDeep(t *testing.T) {
	orig := sampleRecord()
	cp := orig.Clone()

	require.Equal(t, orig, cp)

	cp.Models[0] = "changed"
	cp.Results["gpt-4"].Metrics["bias"] = MetricResult{Score: 1}
	cp.Summary.ModelScores["gpt-4"] = 1
	*cp.EndTime = time.Time{}

	assert.Equal(t, "gpt-4", orig.Models[0])
	assert.InDelta(t, 80, orig.Results["gpt-4"].Metrics["bias"].Score, 0.001)
	assert.Equal(t, 80, orig.Summary.ModelScores["gpt-4"])
	assert.False(t, orig.EndTime.IsZero())
	assert.Nil(t, (*JobRecord)(nil).Clone())
}

func TestJobRecordValidate(t *testing.T) {
	t.Run("valid completed record", func(t *testing.T) {
		require.NoError(t, sampleRecord().Validate())
	})

	t.Run("summary without completion", func(t *testing.T) {
		rec := sampleRecord()
		rec.Status = JobStatusRunning
		require.ErrorContains(t, rec.Validate(), "summary")
	})

	t.Run("metric outside job metrics", func(t *testing.T) {
		rec := sampleRecord()
		rec.Results["gpt-4"].Metrics["hallucination"] = MetricResult{}
		require.ErrorContains(t, rec.Validate(), "unexpected metric hallucination")
	})

	t.Run("progress out of range", func(t *testing.T) {
		rec := sampleRecord()
		rec.Progress = 101
		require.ErrorContains(t, rec.Validate(), "progress")
	})
}

func TestDedupKey(t *testing.T) {
	rec := &JobRecord{Category: "fairness", EvaluationType: EvaluationTypeSecurity}
	assert.Equal(t, "evaluation:fairness:security", rec.DedupKey())
}

func TestSubmitEvaluationRequest(t *testing.T) {
	t.Run("normalize applies defaults and dedups models", func(t *testing.T) {
		req := SubmitEvaluationRequest{Category: " fairness ", Models: []string{"a", " a", "b"}}
		req.Normalize()
		assert.Equal(t, "fairness", req.Category)
		assert.Equal(t, EvaluationTypeQuality, req.EvaluationType)
		assert.Equal(t, []string{"a", "b"}, req.Models)
		require.NoError(t, req.Validate())
	})

	t.Run("missing category", func(t *testing.T) {
		req := SubmitEvaluationRequest{}
		req.Normalize()
		require.ErrorContains(t, req.Validate(), "category is required")
	})

	t.Run("empty model key", func(t *testing.T) {
		req := SubmitEvaluationRequest{Category: "fairness", Models: []string{""}}
		require.ErrorContains(t, req.Validate(), "is required")
	})

	t.Run("custom test cases are packed", func(t *testing.T) {
		req := SubmitEvaluationRequest{Category: "fairness", CustomTestCases: []json.RawMessage{json.RawMessage(`{"prompt":"hi"}`)}}
		raw, err := req.CustomTestCasesJSON()
		require.NoError(t, err)
		assert.JSONEq(t, `[{"prompt":"hi"}]`, string(raw))
	})
}

func TestSecurityResultMetricResult(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	res := SecurityResult{
		Score:      82.5,
		TotalTests: 40,
		Resisted:   33,
		Failed:     7,
		Categories: map[string]CategoryBreakdown{"jailbreak": {Total: 10, Resisted: 9, Rate: 90}},
		Source:     SecuritySourceMarkers,
	}

	mr := res.MetricResult(80, at)
	assert.True(t, mr.Passed)
	assert.InDelta(t, 80, mr.Threshold, 0.001)
	require.NotNil(t, mr.Details)
	assert.Equal(t, 33, mr.Details.PassedTests)
	assert.Equal(t, SecuritySourceMarkers, mr.Details.Source)
	assert.Equal(t, at, mr.Timestamp)

	mr = res.MetricResult(90, at)
	assert.False(t, mr.Passed)
}
