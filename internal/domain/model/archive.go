package model

import (
	"encoding/json"
	"time"
)

// ArchivedEvaluation is a finished job as stored in the relational archive.
type ArchivedEvaluation struct {
	JobID          string          `json:"job_id"          db:"job_id"`
	Category       string          `json:"category"        db:"category"`
	EvaluationType string          `json:"evaluation_type" db:"evaluation_type"`
	Status         string          `json:"status"          db:"status"`
	OverallScore   *int            `json:"overall_score"   db:"overall_score"`
	Recommendation *string         `json:"recommendation"  db:"recommendation"`
	Record         json.RawMessage `json:"record"          db:"record"`
	StartedAt      time.Time       `json:"started_at"      db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at"    db:"completed_at"`
	ArchivedAt     time.Time       `json:"archived_at"     db:"archived_at"`
}
