package data

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/evalorch/internal/core"
	"github.com/target/evalorch/internal/domain/model"
	"github.com/target/evalorch/internal/testutil"
)

func TestClassifyArchiveError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"unique violation", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, true},
		{"check violation", &pgconn.PgError{Code: pgerrcode.CheckViolation}, true},
		{"invalid json", &pgconn.PgError{Code: pgerrcode.InvalidTextRepresentation}, true},
		{"missing table", &pgconn.PgError{Code: pgerrcode.UndefinedTable}, true},
		{"connection failure", &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, false},
		{"plain error", errors.New("dial tcp: refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyArchiveError(tt.err)
			assert.Equal(t, tt.permanent, errors.Is(got, core.ErrPermanent))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestEvaluationArchiveRepo_NotConfigured(t *testing.T) {
	var repo *EvaluationArchiveRepo
	assert.ErrorIs(t, repo.Archive(context.Background(), completedJob("x")), ErrArchiveNotConfigured)

	repo = NewEvaluationArchiveRepo(nil)
	_, err := repo.ListRecent(context.Background(), 10)
	assert.ErrorIs(t, err, ErrArchiveNotConfigured)
}

func TestEvaluationArchiveRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	db := testutil.SetupTestDB(t)
	repo := NewEvaluationArchiveRepo(db)
	ctx := context.Background()

	job := completedJob("archive-1")
	require.NoError(t, repo.Archive(ctx, job))
	require.NoError(t, repo.Archive(ctx, job), "archive is idempotent per job id")

	got, err := repo.GetByJobID(ctx, "archive-1")
	require.NoError(t, err)
	assert.Equal(t, "fairness", got.Category)
	assert.Equal(t, string(model.EvaluationTypeQuality), got.EvaluationType)
	require.NotNil(t, got.OverallScore)
	assert.Equal(t, 71, *got.OverallScore)
	require.NotNil(t, got.Recommendation)
	assert.Equal(t, string(model.RecommendationGood), *got.Recommendation)
	assert.JSONEq(t, mustSnapshot(t, job), string(got.Record))

	failed := testutil.NewJobRecord("archive-2")
	failed.Status = model.JobStatusError
	failed.Error = "boom"
	require.NoError(t, repo.Archive(ctx, failed))

	rows, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = repo.GetByJobID(ctx, "missing")
	assert.ErrorIs(t, err, ErrArchiveNotFound)

	pending := testutil.NewJobRecord("archive-3")
	err = repo.Archive(ctx, pending)
	assert.ErrorIs(t, err, core.ErrPermanent, "non-terminal status violates the check constraint")
}

func mustSnapshot(t *testing.T, job *model.JobRecord) string {
	t.Helper()
	b, err := MarshalSnapshot(job)
	require.NoError(t, err)
	return string(b)
}
