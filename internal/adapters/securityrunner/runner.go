// Package securityrunner drives the external adversarial security test process and
// turns whatever it produces into a model.SecurityResult.
package securityrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/target/evalorch/internal/core"
	"github.com/target/evalorch/internal/domain/model"
	"github.com/target/evalorch/internal/observability/metrics"
	"github.com/target/evalorch/internal/observability/statsd"
)

// ResultFDEnv tells the child which file descriptor carries structured records.
const ResultFDEnv = "EVAL_RESULT_FD"

// resultFD is the child-side descriptor of the first ExtraFiles entry.
const resultFD = 3

// Options configures a Runner.
type Options struct {
	// Path is the runner executable. Empty disables the runner; every call falls back.
	Path string
	// Args are passed before --model and --category.
	Args []string
	// Env entries (KEY=VALUE) are appended to the inherited environment.
	Env []string
	// Timeout bounds one invocation; zero means no limit.
	Timeout time.Duration
	// StructuredOutput enables the NDJSON channel on fd 3.
	StructuredOutput bool
	Expressions      Expressions
	Logger           *slog.Logger
	Metrics          statsd.Sink
}

// Runner implements core.SecurityRunner by spawning one process per call.
type Runner struct {
	path       string
	args       []string
	env        []string
	timeout    time.Duration
	structured bool
	normalizer *Normalizer
	logger     *slog.Logger
	metrics    statsd.Sink
}

var _ core.SecurityRunner = (*Runner)(nil)

// New validates opts and builds a Runner.
func New(opts Options) (*Runner, error) {
	n, err := NewNormalizer(opts.Expressions)
	if err != nil {
		return nil, err
	}
	for _, kv := range opts.Env {
		if !strings.Contains(kv, "=") {
			return nil, fmt.Errorf("invalid runner env entry %q: want KEY=VALUE", kv)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		path:       strings.TrimSpace(opts.Path),
		args:       append([]string(nil), opts.Args...),
		env:        append([]string(nil), opts.Env...),
		timeout:    opts.Timeout,
		structured: opts.StructuredOutput,
		normalizer: n,
		logger:     logger.With("component", "security_runner"),
		metrics:    opts.Metrics,
	}, nil
}

// candidate is a payload recovered from one output channel.
type candidate struct {
	source string
	raw    json.RawMessage
}

// invocation is what one process run left behind.
type invocation struct {
	stdout     string
	stderr     string
	structured json.RawMessage
	exitCode   int
	err        error
	timedOut   bool
}

// Run executes the runner for one (model, category) pair. It never fails: every
// degraded path returns a fallback result that says why in its note.
func (r *Runner) Run(ctx context.Context, modelKey, category string) model.SecurityResult {
	start := time.Now()
	res := r.run(ctx, modelKey, category)
	metrics.EmitSecurityRun(r.metrics, metrics.SecurityRun{
		Source:   res.Source,
		Fallback: res.Fallback,
		Duration: time.Since(start),
	})
	return res
}

func (r *Runner) run(ctx context.Context, modelKey, category string) model.SecurityResult {
	log := r.logger.With("model", modelKey, "category", category)
	if r.path == "" {
		return Fallback(modelKey, category, "security runner not configured")
	}

	inv := r.invoke(ctx, modelKey, category)
	switch {
	case inv.timedOut:
		log.WarnContext(ctx, "security runner timed out", "timeout", r.timeout)
		return Fallback(modelKey, category, fmt.Sprintf("security runner timed out after %s", r.timeout))
	case ctx.Err() != nil:
		return Fallback(modelKey, category, "security run cancelled")
	case inv.err != nil:
		log.ErrorContext(ctx, "security runner failed to start", "error", inv.err)
		return Fallback(modelKey, category, "security runner failed to start: "+inv.err.Error())
	case inv.exitCode != 0:
		log.WarnContext(ctx, "security runner exited with error",
			"exit_code", inv.exitCode, "stderr", tail(inv.stderr, 2048))
		return Fallback(modelKey, category, fmt.Sprintf("security runner exited with code %d", inv.exitCode))
	}

	candidates := []candidate{{model.SecuritySourceNDJSON, inv.structured}}
	if raw, ok := ExtractMarkedJSON(inv.stdout); ok {
		candidates = append(candidates, candidate{model.SecuritySourceMarkers, raw})
	}
	if raw, ok := ExtractLastJSONBlock(inv.stdout); ok {
		candidates = append(candidates, candidate{model.SecuritySourceBraceScan, raw})
	}

	for _, c := range candidates {
		if c.raw == nil {
			continue
		}
		res, err := r.normalizer.Normalize(c.raw)
		if err != nil {
			log.DebugContext(ctx, "discarding unparseable runner payload", "source", c.source, "error", err)
			continue
		}
		res.Source = c.source
		log.InfoContext(ctx, "security run completed", "source", c.source, "score", res.Score)
		return res
	}

	log.WarnContext(ctx, "security runner produced no parseable result", "stdout_tail", tail(inv.stdout, 512))
	return Fallback(modelKey, category, "security runner produced no parseable result")
}

func (r *Runner) invoke(parent context.Context, modelKey, category string) invocation {
	ctx := parent
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, r.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), r.args...), "--model", modelKey, "--category", category)
	cmd := exec.CommandContext(ctx, r.path, args...)
	cmd.Env = append(os.Environ(), r.env...)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	var (
		pr     *os.File
		done   chan json.RawMessage
		closer func()
	)
	if r.structured {
		var pw *os.File
		var err error
		pr, pw, err = os.Pipe()
		if err != nil {
			return invocation{err: fmt.Errorf("create result pipe: %w", err)}
		}
		cmd.ExtraFiles = []*os.File{pw}
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%d", ResultFDEnv, resultFD))
		closer = func() { _ = pw.Close() }
	}

	if err := cmd.Start(); err != nil {
		if closer != nil {
			closer()
			_ = pr.Close()
		}
		return invocation{err: err}
	}

	if r.structured {
		// The parent's copy of the write end must be closed for the reader to see EOF.
		closer()
		done = make(chan json.RawMessage, 1)
		go func() {
			raw, _ := ExtractNDJSON(pr, r.logger)
			done <- raw
		}()
	}

	waitErr := cmd.Wait()

	inv := invocation{stdout: stdout.String(), stderr: stderr.String()}
	if done != nil {
		select {
		case inv.structured = <-done:
		case <-time.After(cmd.WaitDelay):
			// A grandchild kept the pipe open; stop reading.
			_ = pr.Close()
			inv.structured = <-done
		}
		_ = pr.Close()
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		inv.timedOut = true
		return inv
	}
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		inv.exitCode = exitErr.ExitCode()
		if inv.exitCode == 0 {
			inv.exitCode = -1
		}
	case errors.Is(waitErr, exec.ErrWaitDelay):
		// Output pipes were held open after exit; the process itself succeeded.
	default:
		inv.err = waitErr
	}
	return inv
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
