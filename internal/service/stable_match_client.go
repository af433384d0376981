package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/elective-match-api/internal/models"
	appErrors "github.com/noah-isme/elective-match-api/pkg/errors"
	"github.com/noah-isme/elective-match-api/pkg/logger"
)

const fallbackMessageSuffix = " (StableMatch unavailable, used random fallback)"

// Matcher answers a match request with a result value.
type Matcher interface {
	Solve(ctx context.Context, req models.MatchRequest) models.MatchResult
}

// EngineMatcher calls the primary matching engine. Errors carry
// ErrEngineUnavailable for transient failures and ErrEngineRejected for
// requests the engine refused.
type EngineMatcher interface {
	Match(ctx context.Context, req models.MatchRequest) (models.MatchResult, error)
}

// LocalEngineMatcher runs the engine in process.
type LocalEngineMatcher struct {
	engine Matcher
}

// NewLocalEngineMatcher wraps an in-process engine.
func NewLocalEngineMatcher(engine Matcher) *LocalEngineMatcher {
	return &LocalEngineMatcher{engine: engine}
}

// Match implements EngineMatcher.
func (m *LocalEngineMatcher) Match(ctx context.Context, req models.MatchRequest) (models.MatchResult, error) {
	return m.engine.Solve(ctx, req), nil
}

// HTTPEngineMatcher calls a remote engine over HTTP.
type HTTPEngineMatcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPEngineMatcher builds a remote matcher. Per attempt deadlines come from the context.
func NewHTTPEngineMatcher(baseURL string, client *http.Client) *HTTPEngineMatcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPEngineMatcher{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type engineEnvelope struct {
	Data  *models.MatchResult `json:"data"`
	Error *appErrors.Error    `json:"error"`
}

// Match implements EngineMatcher.
func (m *HTTPEngineMatcher) Match(ctx context.Context, req models.MatchRequest) (models.MatchResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return models.MatchResult{}, appErrors.Wrap(err, appErrors.ErrEngineRejected.Code, appErrors.ErrEngineRejected.Status, "encode match request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v1/matching/solve", bytes.NewReader(payload))
	if err != nil {
		return models.MatchResult{}, appErrors.Wrap(err, appErrors.ErrEngineRejected.Code, appErrors.ErrEngineRejected.Status, "build engine request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return models.MatchResult{}, appErrors.Wrap(err, appErrors.ErrEngineUnavailable.Code, appErrors.ErrEngineUnavailable.Status, "engine request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return models.MatchResult{}, appErrors.Wrap(err, appErrors.ErrEngineUnavailable.Code, appErrors.ErrEngineUnavailable.Status, "read engine response")
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return models.MatchResult{}, appErrors.Clone(appErrors.ErrEngineUnavailable, fmt.Sprintf("engine responded %d", resp.StatusCode))
	}

	var envelope engineEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return models.MatchResult{}, appErrors.Wrap(err, appErrors.ErrEngineUnavailable.Code, appErrors.ErrEngineUnavailable.Status, "decode engine response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		message := fmt.Sprintf("engine responded %d", resp.StatusCode)
		switch {
		case envelope.Data != nil && envelope.Data.Message != "":
			message = envelope.Data.Message
		case envelope.Error != nil:
			message = envelope.Error.Message
		}
		return models.MatchResult{}, appErrors.Clone(appErrors.ErrEngineRejected, message)
	}
	if envelope.Data == nil {
		return models.MatchResult{}, appErrors.Clone(appErrors.ErrEngineUnavailable, "engine response missing result")
	}
	if runID := resp.Header.Get(logger.RunIDHeader); runID != "" && envelope.Data.RunID == "" {
		envelope.Data.RunID = runID
	}
	return *envelope.Data, nil
}

// StableMatchClientConfig bounds calls to the engine.
type StableMatchClientConfig struct {
	AttemptTimeout time.Duration
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	TotalBudget    time.Duration
}

func (c StableMatchClientConfig) withDefaults() StableMatchClientConfig {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.TotalBudget <= 0 {
		c.TotalBudget = 15 * time.Second
	}
	return c
}

// StableMatchClient calls the engine with per attempt timeouts, exponential
// backoff and an overall budget, then falls back when the engine cannot answer.
type StableMatchClient struct {
	engine   EngineMatcher
	fallback Matcher
	cfg      StableMatchClientConfig
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewStableMatchClient wires the engine and the fallback matcher.
func NewStableMatchClient(engine EngineMatcher, fallback Matcher, cfg StableMatchClientConfig, metrics *MetricsService, logger *zap.Logger) *StableMatchClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StableMatchClient{engine: engine, fallback: fallback, cfg: cfg.withDefaults(), metrics: metrics, logger: logger}
}

type attemptOutcome struct {
	result models.MatchResult
	err    error
}

// Solve always returns a result. Engine failures end in the fallback matcher.
func (c *StableMatchClient) Solve(ctx context.Context, req models.MatchRequest) models.MatchResult {
	budgetCtx, cancel := context.WithTimeout(ctx, c.cfg.TotalBudget)
	defer cancel()

	schedule := &backoff.ExponentialBackOff{
		InitialInterval:     c.cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.cfg.MaxDelay,
	}
	schedule.Reset()

	c.logger.Info("invoking stable match engine",
		zap.Int("students", len(req.Students)),
		zap.Int("courses", len(req.Courses)),
	)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := schedule.NextBackOff()
			c.logger.Warn("Retrying StableMatch invocation", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))
			if !sleepContext(budgetCtx, delay) {
				lastErr = fmt.Errorf("retry budget exhausted: %w", budgetCtx.Err())
				break
			}
		}

		result, err := c.attempt(budgetCtx, req)
		if err == nil && result.Status == models.MatchStatusError {
			err = appErrors.Clone(appErrors.ErrEngineRejected, result.Message)
		}
		if err == nil {
			c.metrics.RecordClientAttempt(AttemptOutcomeSuccess)
			return result
		}

		lastErr = err
		if isRejected(err) {
			c.metrics.RecordClientAttempt(AttemptOutcomeRejected)
			c.logger.Warn("stable match engine rejected request", zap.Int("attempt", attempt), zap.Error(err))
			break
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			c.metrics.RecordClientAttempt(AttemptOutcomeTimeout)
		} else {
			c.metrics.RecordClientAttempt(AttemptOutcomeTransient)
		}
		c.logger.Warn("stable match attempt failed", zap.Int("attempt", attempt), zap.Int("max_attempts", c.cfg.MaxAttempts), zap.Error(err))
		if budgetCtx.Err() != nil {
			break
		}
	}

	return c.runFallback(ctx, req, lastErr)
}

// attempt runs one engine call under min(attempt timeout, remaining budget).
// A straggling call is abandoned when its deadline passes.
func (c *StableMatchClient) attempt(ctx context.Context, req models.MatchRequest) (models.MatchResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	done := make(chan attemptOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptOutcome{err: appErrors.Clone(appErrors.ErrEngineUnavailable, fmt.Sprintf("engine call panicked: %v", r))}
			}
		}()
		result, err := c.engine.Match(attemptCtx, req)
		done <- attemptOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-attemptCtx.Done():
		return models.MatchResult{}, fmt.Errorf("stable match attempt timed out: %w", attemptCtx.Err())
	}
}

func (c *StableMatchClient) runFallback(ctx context.Context, req models.MatchRequest, cause error) models.MatchResult {
	c.logger.Warn("Falling back to random matching", zap.Error(cause))
	c.metrics.RecordFallback()

	result := c.fallback.Solve(context.WithoutCancel(ctx), req)
	result.Message += fallbackMessageSuffix
	result.Fallback = true
	return result
}

func isRejected(err error) bool {
	var appErr *appErrors.Error
	return errors.As(err, &appErr) && appErr.Code == appErrors.ErrEngineRejected.Code
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
