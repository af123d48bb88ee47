package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/evalorch/config"
	"github.com/target/evalorch/internal/data"
	"github.com/target/evalorch/internal/domain/model"
	"github.com/target/evalorch/internal/testutil"
)

func runCLI(t *testing.T, cfg config.AppConfig, args ...string) (string, error) {
	t.Helper()
	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	root := newRootCmd(cmdCtx, func() (config.AppConfig, error) { return cfg, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func seedSnapshots(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := data.NewFileSnapshotRepo(dir)
	require.NoError(t, err)

	done := testutil.NewJobRecord("job-done")
	end := testutil.TestTime().Add(time.Minute)
	done.Status = model.JobStatusCompleted
	done.Progress = 100
	done.EndTime = &end
	done.Results = map[string]*model.ModelResult{
		"gpt-4": {
			Model:  "gpt-4",
			Status: model.ModelStatusCompleted,
			Metrics: map[string]model.MetricResult{
				"bias":     {Score: 91, Threshold: 70, Passed: true, Timestamp: end},
				"toxicity": {Threshold: 70, Timestamp: end, Error: "scorer offline"},
			},
		},
	}
	done.Summary = &model.Summary{
		ModelScores:    map[string]int{"gpt-4": 91},
		OverallScore:   91,
		Recommendation: model.RecommendationExcellent,
	}

	running := testutil.NewJobRecord("job-running")
	running.Status = model.JobStatusRunning
	running.Progress = 50
	running.StartTime = testutil.TestTime().Add(time.Hour)

	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, done))
	require.NoError(t, repo.Save(ctx, running))
	return dir
}

func TestJobsList(t *testing.T) {
	dir := seedSnapshots(t)

	out, err := runCLI(t, config.AppConfig{}, "jobs", "list", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "job-done")
	assert.Contains(t, out, "job-running")
	assert.Contains(t, out, "91")
	assert.Less(t, bytes.Index([]byte(out), []byte("job-running")), bytes.Index([]byte(out), []byte("job-done")),
		"newest job first")

	out, err = runCLI(t, config.AppConfig{}, "jobs", "list", "--dir", dir, "--status", "running")
	require.NoError(t, err)
	assert.Contains(t, out, "job-running")
	assert.NotContains(t, out, "job-done")
}

func TestJobsListUsesConfiguredResultsDir(t *testing.T) {
	cfg := config.AppConfig{Evaluation: config.EvaluationConfig{ResultsDir: t.TempDir()}}

	out, err := runCLI(t, cfg, "jobs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no evaluations found")
}

func TestJobsShow(t *testing.T) {
	dir := seedSnapshots(t)

	out, err := runCLI(t, config.AppConfig{}, "jobs", "show", "job-done", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "excellent")
	assert.Contains(t, out, "bias")
	assert.Contains(t, out, "pass")
	assert.Contains(t, out, "offline")

	out, err = runCLI(t, config.AppConfig{}, "jobs", "show", "job-done", "--dir", dir, "--json")
	require.NoError(t, err)
	var job model.JobRecord
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, "job-done", job.ID)
	assert.Equal(t, model.JobStatusCompleted, job.Status)

	_, err = runCLI(t, config.AppConfig{}, "jobs", "show", "missing", "--dir", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, data.ErrJobNotFound)

	_, err = runCLI(t, config.AppConfig{}, "jobs", "show", "--dir", dir)
	assert.Error(t, err, "id argument is required")
}

func TestCatalogValidate(t *testing.T) {
	out, err := runCLI(t, config.AppConfig{}, "catalog", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "catalog embedded default is valid")
	assert.Contains(t, out, "fairness")

	_, err = runCLI(t, config.AppConfig{}, "catalog", "validate", "--file", "/nonexistent/catalog.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nonexistent/catalog.yaml")
}

func TestConfigLoadFailure(t *testing.T) {
	cmdCtx := &commandContext{Ctx: context.Background(), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	boom := errors.New("bad env")
	root := newRootCmd(cmdCtx, func() (config.AppConfig, error) { return config.AppConfig{}, boom })
	root.SetOut(io.Discard)
	root.SetArgs([]string{"catalog", "validate"})

	err := root.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestFlagValidationHappensBeforeConnecting(t *testing.T) {
	_, err := runCLI(t, config.AppConfig{}, "archive", "list", "--limit", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit must be greater than zero")

	_, err = runCLI(t, config.AppConfig{}, "migrate", "--timeout", "0s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout must be greater than zero")
}
