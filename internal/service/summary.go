package service

import (
	"math"

	"github.com/target/evalorch/internal/domain/model"
)

// Recommendation cut-offs applied to the overall score.
const (
	ExcellentScore = 85
	GoodScore      = 70
)

// Recommend maps an overall score to its recommendation bucket.
func Recommend(score int) model.Recommendation {
	switch {
	case score >= ExcellentScore:
		return model.RecommendationExcellent
	case score >= GoodScore:
		return model.RecommendationGood
	default:
		return model.RecommendationNeedsImprovement
	}
}

// CalculateSummary reduces per-model results to rounded model scores and an overall score.
// Errored metrics count with their score of 0. A model with no successful metric is left
// out entirely. The overall score is the rounded mean of the model scores.
func CalculateSummary(results map[string]*model.ModelResult) *model.Summary {
	summary := &model.Summary{ModelScores: make(map[string]int, len(results))}

	var total float64
	for key, mr := range results {
		if mr == nil {
			continue
		}
		var (
			sum    float64
			scored bool
		)
		for _, r := range mr.Metrics {
			sum += r.Score
			if !r.Failed() {
				scored = true
			}
		}
		if !scored {
			continue
		}
		score := int(math.Round(sum / float64(len(mr.Metrics))))
		summary.ModelScores[key] = score
		total += float64(score)
	}

	if len(summary.ModelScores) > 0 {
		summary.OverallScore = int(math.Round(total / float64(len(summary.ModelScores))))
	}
	summary.Recommendation = Recommend(summary.OverallScore)
	return summary
}
