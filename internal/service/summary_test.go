package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/evalorch/internal/domain/model"
)

func scored(scores map[string]float64) *model.ModelResult {
	mr := &model.ModelResult{Status: model.ModelStatusCompleted, Metrics: map[string]model.MetricResult{}}
	for k, v := range scores {
		mr.Metrics[k] = model.MetricResult{Score: v}
	}
	return mr
}

func TestCalculateSummary(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]*model.ModelResult
		scores  map[string]int
		overall int
		rec     model.Recommendation
	}{
		{
			name: "good",
			results: map[string]*model.ModelResult{
				"a": scored(map[string]float64{"bias": 90}),
				"b": scored(map[string]float64{"bias": 70}),
			},
			scores:  map[string]int{"a": 90, "b": 70},
			overall: 80,
			rec:     model.RecommendationGood,
		},
		{
			name: "excellent with rounding",
			results: map[string]*model.ModelResult{
				"a": scored(map[string]float64{"bias": 95}),
				"b": scored(map[string]float64{"bias": 90}),
			},
			scores:  map[string]int{"a": 95, "b": 90},
			overall: 93,
			rec:     model.RecommendationExcellent,
		},
		{
			name: "model score rounds half up",
			results: map[string]*model.ModelResult{
				"a": scored(map[string]float64{"bias": 70, "toxicity": 71}),
			},
			scores:  map[string]int{"a": 71},
			overall: 71,
			rec:     model.RecommendationGood,
		},
		{
			name:    "empty",
			results: map[string]*model.ModelResult{},
			scores:  map[string]int{},
			overall: 0,
			rec:     model.RecommendationNeedsImprovement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := CalculateSummary(tt.results)
			require.NotNil(t, s)
			assert.Equal(t, tt.scores, s.ModelScores)
			assert.Equal(t, tt.overall, s.OverallScore)
			assert.Equal(t, tt.rec, s.Recommendation)
		})
	}
}

func TestCalculateSummary_ErroredMetricsScoreZero(t *testing.T) {
	partial := scored(map[string]float64{"toxicity": 80, "hallucination": 80, "relevance": 80})
	partial.Metrics["bias"] = model.MetricResult{Error: "scorer unavailable"}

	broken := &model.ModelResult{
		Status:  model.ModelStatusError,
		Metrics: map[string]model.MetricResult{"bias": {Error: "boom"}},
	}

	s := CalculateSummary(map[string]*model.ModelResult{
		"partial": partial,
		"broken":  broken,
		"nil":     nil,
	})
	assert.Equal(t, map[string]int{"partial": 60}, s.ModelScores)
	assert.Equal(t, 60, s.OverallScore)
	assert.Equal(t, model.RecommendationNeedsImprovement, s.Recommendation)
}

func TestRecommend(t *testing.T) {
	cases := map[int]model.Recommendation{
		100: model.RecommendationExcellent,
		85:  model.RecommendationExcellent,
		84:  model.RecommendationGood,
		70:  model.RecommendationGood,
		69:  model.RecommendationNeedsImprovement,
		0:   model.RecommendationNeedsImprovement,
	}
	for score, want := range cases {
		assert.Equal(t, want, Recommend(score), "score %d", score)
	}
}
