package securityrunner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/evalorch/internal/domain/model"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "runner.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o700))
	return path
}

func newRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	r, err := New(opts)
	require.NoError(t, err)
	return r
}

func TestRunnerMarkers(t *testing.T) {
	script := writeScript(t, `
echo "model=$2 category=$4"
echo "=== JSON_RESULT_START ==="
echo '{"score":80,"totalTests":10,"resisted":8}'
echo "=== JSON_RESULT_END ==="
echo "bye"`)
	res := newRunner(t, Options{Path: script}).Run(context.Background(), "gpt-4", "safety")

	assert.False(t, res.Fallback)
	assert.Equal(t, model.SecuritySourceMarkers, res.Source)
	assert.InDelta(t, 80, res.Score, 0.001)
	assert.Equal(t, 2, res.Failed)
}

func TestRunnerBraceScan(t *testing.T) {
	script := writeScript(t, `
echo "running"
echo '{'
echo '  "score": 66'
echo '}'`)
	res := newRunner(t, Options{Path: script}).Run(context.Background(), "gpt-4", "safety")
	assert.Equal(t, model.SecuritySourceBraceScan, res.Source)
	assert.InDelta(t, 66, res.Score, 0.001)
}

func TestRunnerStructuredOutputWins(t *testing.T) {
	script := writeScript(t, `
[ "$EVAL_RESULT_FD" = "3" ] || exit 9
echo '{"type":"progress","payload":{"done":1}}' >&3
echo '{"type":"result","payload":{"score":72}}' >&3
echo "=== JSON_RESULT_START ==="
echo '{"score":10}'
echo "=== JSON_RESULT_END ==="`)
	res := newRunner(t, Options{Path: script, StructuredOutput: true}).Run(context.Background(), "claude-3", "privacy")

	assert.Equal(t, model.SecuritySourceNDJSON, res.Source)
	assert.InDelta(t, 72, res.Score, 0.001)
}

func TestRunnerNonZeroExitFallsBack(t *testing.T) {
	script := writeScript(t, `
echo '{"score":99}'
exit 3`)
	res := newRunner(t, Options{Path: script}).Run(context.Background(), "gpt-4", "safety")

	assert.True(t, res.Fallback)
	assert.Equal(t, model.SecuritySourceFallback, res.Source)
	assert.GreaterOrEqual(t, res.Score, 0.0)
	assert.LessOrEqual(t, res.Score, 100.0)
	assert.Contains(t, res.Note, "exited with code 3")
	assert.InDelta(t, float64(FallbackScore("gpt-4", "safety")), res.Score, 0.001)
}

func TestRunnerNoJSONFallsBack(t *testing.T) {
	script := writeScript(t, `echo "nothing useful"`)
	res := newRunner(t, Options{Path: script}).Run(context.Background(), "gpt-4", "safety")
	assert.True(t, res.Fallback)
	assert.Contains(t, res.Note, "no parseable result")
}

func TestRunnerPayloadWithoutScoreFallsBack(t *testing.T) {
	script := writeScript(t, `echo '{"totalTests": 4}'`)
	res := newRunner(t, Options{Path: script}).Run(context.Background(), "gpt-4", "safety")
	assert.True(t, res.Fallback)
}

func TestRunnerTimeout(t *testing.T) {
	script := writeScript(t, `exec sleep 5`)
	start := time.Now()
	res := newRunner(t, Options{Path: script, Timeout: 200 * time.Millisecond}).
		Run(context.Background(), "gpt-4", "safety")

	assert.Less(t, time.Since(start), 4*time.Second)
	assert.True(t, res.Fallback)
	assert.Contains(t, res.Note, "timed out")
}

func TestRunnerEnvAndArgs(t *testing.T) {
	script := writeScript(t, `
[ "$1" = "--suite" ] && [ "$2" = "full" ] && [ "$3" = "--model" ] || exit 4
echo "{\"score\": $RUNNER_SCORE}"`)
	res := newRunner(t, Options{
		Path: script,
		Args: []string{"--suite", "full"},
		Env:  []string{"RUNNER_SCORE=58"},
	}).Run(context.Background(), "gpt-4", "safety")
	assert.False(t, res.Fallback, res.Note)
	assert.InDelta(t, 58, res.Score, 0.001)
}

func TestRunnerUnconfiguredAndMissingBinary(t *testing.T) {
	res := newRunner(t, Options{}).Run(context.Background(), "gpt-4", "safety")
	assert.True(t, res.Fallback)
	assert.Contains(t, res.Note, "not configured")

	res = newRunner(t, Options{Path: filepath.Join(t.TempDir(), "missing")}).
		Run(context.Background(), "gpt-4", "safety")
	assert.True(t, res.Fallback)
	assert.Contains(t, res.Note, "failed to start")
}

func TestNewRejectsBadEnv(t *testing.T) {
	_, err := New(Options{Env: []string{"NOEQUALS"}})
	assert.Error(t, err)
}
