package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/target/evalorch/internal/core"
	"github.com/target/evalorch/internal/data/pgxutil"
	"github.com/target/evalorch/internal/domain/model"
)

// EvaluationArchiveRepo stores finished evaluation records in PostgreSQL.
type EvaluationArchiveRepo struct {
	DB *sql.DB
}

var _ core.ResultArchiver = (*EvaluationArchiveRepo)(nil)

// NewEvaluationArchiveRepo constructs an EvaluationArchiveRepo.
func NewEvaluationArchiveRepo(db *sql.DB) *EvaluationArchiveRepo {
	return &EvaluationArchiveRepo{DB: db}
}

// Archive upserts the record keyed by job id. Constraint and data errors are marked
// with core.ErrPermanent so callers stop retrying them.
func (r *EvaluationArchiveRepo) Archive(ctx context.Context, job *model.JobRecord) error {
	if r == nil || r.DB == nil {
		return ErrArchiveNotConfigured
	}
	if job == nil {
		return fmt.Errorf("%w: %w", core.ErrPermanent, ErrNilJob)
	}
	if job.ID == "" {
		return fmt.Errorf("%w: %w", core.ErrPermanent, ErrInvalidJobID)
	}

	record, err := MarshalSnapshot(job)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrPermanent, err)
	}

	var (
		overall        *int
		recommendation *string
	)
	if job.Summary != nil {
		score := job.Summary.OverallScore
		rec := string(job.Summary.Recommendation)
		overall, recommendation = &score, &rec
	}

	const query = `
		INSERT INTO evaluation_results (
			job_id, category, evaluation_type, status, overall_score, recommendation,
			record, started_at, completed_at, archived_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (job_id)
		DO UPDATE SET
			status = EXCLUDED.status,
			overall_score = EXCLUDED.overall_score,
			recommendation = EXCLUDED.recommendation,
			record = EXCLUDED.record,
			completed_at = EXCLUDED.completed_at,
			archived_at = now();`

	_, err = r.DB.ExecContext(ctx, query,
		job.ID,
		job.Category,
		string(job.EvaluationType),
		string(job.Status),
		overall,
		recommendation,
		record,
		job.StartTime,
		job.EndTime,
	)
	if err != nil {
		return classifyArchiveError(fmt.Errorf("upsert evaluation_results: %w", err))
	}
	return nil
}

func classifyArchiveError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) ||
			pgerrcode.IsDataException(pgErr.Code) ||
			pgErr.Code == pgerrcode.UndefinedTable {
			return fmt.Errorf("%w: %w", core.ErrPermanent, err)
		}
	}
	return err
}

const archiveColumns = `job_id, category, evaluation_type, status, overall_score, recommendation,
		record, started_at, completed_at, archived_at`

// GetByJobID returns the archived row for jobID.
func (r *EvaluationArchiveRepo) GetByJobID(ctx context.Context, jobID string) (*model.ArchivedEvaluation, error) {
	if r == nil || r.DB == nil {
		return nil, ErrArchiveNotConfigured
	}
	if jobID == "" {
		return nil, ErrInvalidJobID
	}

	query := `SELECT ` + archiveColumns + ` FROM evaluation_results WHERE job_id = $1`

	var res *model.ArchivedEvaluation
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, jobID)
		if err != nil {
			return err
		}
		defer rows.Close()
		row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.ArchivedEvaluation])
		if err != nil {
			return err
		}
		res = &row
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrArchiveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get evaluation_results: %w", err)
	}
	return res, nil
}

// ListRecent returns up to limit archived rows, most recently archived first.
func (r *EvaluationArchiveRepo) ListRecent(ctx context.Context, limit int) ([]*model.ArchivedEvaluation, error) {
	if r == nil || r.DB == nil {
		return nil, ErrArchiveNotConfigured
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + archiveColumns + ` FROM evaluation_results ORDER BY archived_at DESC LIMIT $1`

	var out []*model.ArchivedEvaluation
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.ArchivedEvaluation])
		if err != nil {
			return err
		}
		for i := range collected {
			row := collected[i]
			out = append(out, &row)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list evaluation_results: %w", err)
	}
	return out, nil
}
