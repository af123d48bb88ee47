package model

import (
	"encoding/json"
	"maps"
	"time"
)

// Security result sources.
const (
	SecuritySourceNDJSON    = "ndjson"
	SecuritySourceMarkers   = "markers"
	SecuritySourceBraceScan = "brace_scan"
	SecuritySourceFallback  = "fallback"
)

// SecurityResult is the normalized outcome of one security runner invocation.
type SecurityResult struct {
	Score      float64                      `json:"score"`
	TotalTests int                          `json:"totalTests"`
	Resisted   int                          `json:"resisted"`
	Failed     int                          `json:"failed"`
	Categories map[string]CategoryBreakdown `json:"categories,omitempty"`
	Note       string                       `json:"note,omitempty"`
	Fallback   bool                         `json:"fallback,omitempty"`
	Source     string                       `json:"source"`
	Raw        json.RawMessage              `json:"raw,omitempty"`
}

// MetricResult converts the security outcome into the metric stored under SecurityMetricKey.
func (r SecurityResult) MetricResult(threshold float64, at time.Time) MetricResult {
	return MetricResult{
		Score:     r.Score,
		Threshold: threshold,
		Passed:    r.Score >= threshold,
		Timestamp: at,
		Details: &MetricDetails{
			TotalTests:  r.TotalTests,
			PassedTests: r.Resisted,
			FailedTests: r.Failed,
			Categories:  maps.Clone(r.Categories),
			Note:        r.Note,
			Fallback:    r.Fallback,
			Source:      r.Source,
		},
	}
}
