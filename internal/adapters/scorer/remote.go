package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/target/evalorch/internal/core"
	"github.com/target/evalorch/internal/domain/model"
	"golang.org/x/time/rate"
)

// ErrScorerResponse is returned when the remote scorer answers with an unusable response.
var ErrScorerResponse = errors.New("invalid scorer response")

// maxResponseBytes bounds the body read from the remote scorer.
const maxResponseBytes = 1 << 20

// RemoteOptions configures a RemoteScorer.
type RemoteOptions struct {
	URL string
	// RequestsPerSecond limits outgoing calls; zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	// Timeout bounds one call; zero leaves only the caller's context.
	Timeout    time.Duration
	AuthToken  string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// RemoteScorer posts each ScoreRequest to an HTTP scoring service.
type RemoteScorer struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	token    string
	logger   *slog.Logger
	now      func() time.Time
}

var _ core.MetricScorer = (*RemoteScorer)(nil)

type remoteRequest struct {
	Model     string  `json:"model"`
	Metric    string  `json:"metric"`
	Category  string  `json:"category"`
	Threshold float64 `json:"threshold"`
}

type remoteResponse struct {
	Score   *float64             `json:"score"`
	Details *model.MetricDetails `json:"details,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// NewRemoteScorer validates opts and builds a RemoteScorer.
func NewRemoteScorer(opts RemoteOptions) (*RemoteScorer, error) {
	u, err := url.Parse(strings.TrimSpace(opts.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid scorer url %q", opts.URL)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	limit := rate.Inf
	burst := opts.Burst
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		if burst <= 0 {
			burst = 1
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &RemoteScorer{
		endpoint: u.String(),
		client:   client,
		limiter:  rate.NewLimiter(limit, burst),
		timeout:  opts.Timeout,
		token:    opts.AuthToken,
		logger:   logger.With("component", "remote_scorer"),
		now:      now,
	}, nil
}

// Score implements core.MetricScorer. The pass flag is always recomputed locally.
func (s *RemoteScorer) Score(ctx context.Context, req core.ScoreRequest) (model.MetricResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return model.MetricResult{}, fmt.Errorf("scorer rate limit: %w", err)
	}

	body, err := json.Marshal(remoteRequest(req))
	if err != nil {
		return model.MetricResult{}, fmt.Errorf("encode score request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return model.MetricResult{}, fmt.Errorf("build score request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return model.MetricResult{}, fmt.Errorf("call scorer: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.DebugContext(ctx, "close scorer response", "error", cerr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return model.MetricResult{}, fmt.Errorf("read scorer response: %w", err)
	}

	var out remoteResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(out.Error)
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return model.MetricResult{}, fmt.Errorf("%w: status %d: %s", ErrScorerResponse, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return model.MetricResult{}, fmt.Errorf("%w: %w", ErrScorerResponse, decodeErr)
	}
	if out.Score == nil {
		return model.MetricResult{}, fmt.Errorf("%w: missing score", ErrScorerResponse)
	}

	score := *out.Score
	if score < 0 || score > 100 {
		return model.MetricResult{}, fmt.Errorf("%w: score %v out of range", ErrScorerResponse, score)
	}
	return model.MetricResult{
		Score:     score,
		Threshold: req.Threshold,
		Passed:    score >= req.Threshold,
		Details:   out.Details,
		Timestamp: s.now().UTC(),
	}, nil
}
