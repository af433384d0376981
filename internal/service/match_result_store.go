package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/elective-match-api/internal/models"
)

const (
	matchRunKeyPrefix    = "run:match:"
	workflowRunKeyPrefix = "run:workflow:"
)

type storedMatch struct {
	result  models.MatchResult
	savedAt time.Time
}

type storedWorkflow struct {
	summary models.WorkflowSummary
	savedAt time.Time
}

// MatchResultStore keeps match results and workflow summaries queryable by run id.
// Entries live in memory for the TTL and are mirrored to the cache when enabled,
// so another replica can still answer for a run it did not execute.
type MatchResultStore struct {
	ttl       time.Duration
	cache     *CacheService
	logger    *zap.Logger
	now       func() time.Time
	mu        sync.RWMutex
	matches   map[string]storedMatch
	workflows map[string]storedWorkflow
}

// NewMatchResultStore constructs the store.
func NewMatchResultStore(ttl time.Duration, cache *CacheService, logger *zap.Logger) *MatchResultStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchResultStore{
		ttl:       ttl,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
		matches:   make(map[string]storedMatch),
		workflows: make(map[string]storedWorkflow),
	}
}

// SaveMatch stores a match result under its run id.
func (s *MatchResultStore) SaveMatch(ctx context.Context, result models.MatchResult) {
	if result.RunID == "" {
		return
	}
	s.mu.Lock()
	s.matches[result.RunID] = storedMatch{result: result, savedAt: s.now()}
	s.mu.Unlock()

	if err := s.cache.Set(ctx, matchRunKeyPrefix+result.RunID, result, s.ttl); err != nil {
		s.logger.Warn("match result not mirrored to cache", zap.String("run_id", result.RunID), zap.Error(err))
	}
}

// GetMatch returns a stored match result.
func (s *MatchResultStore) GetMatch(ctx context.Context, runID string) (models.MatchResult, bool) {
	s.mu.RLock()
	entry, ok := s.matches[runID]
	s.mu.RUnlock()
	if ok {
		if s.now().Sub(entry.savedAt) <= s.ttl {
			return entry.result, true
		}
		s.mu.Lock()
		delete(s.matches, runID)
		s.mu.Unlock()
	}

	var cached models.MatchResult
	if hit, _ := s.cache.Get(ctx, matchRunKeyPrefix+runID, &cached); hit {
		return cached, true
	}
	return models.MatchResult{}, false
}

// SaveWorkflow stores a workflow summary under its run id.
func (s *MatchResultStore) SaveWorkflow(ctx context.Context, summary models.WorkflowSummary) {
	if summary.RunID == "" {
		return
	}
	s.mu.Lock()
	s.workflows[summary.RunID] = storedWorkflow{summary: summary, savedAt: s.now()}
	s.mu.Unlock()

	if err := s.cache.Set(ctx, workflowRunKeyPrefix+summary.RunID, summary, s.ttl); err != nil {
		s.logger.Warn("workflow summary not mirrored to cache", zap.String("run_id", summary.RunID), zap.Error(err))
	}
}

// GetWorkflow returns a stored workflow summary.
func (s *MatchResultStore) GetWorkflow(ctx context.Context, runID string) (models.WorkflowSummary, bool) {
	s.mu.RLock()
	entry, ok := s.workflows[runID]
	s.mu.RUnlock()
	if ok {
		if s.now().Sub(entry.savedAt) <= s.ttl {
			return entry.summary, true
		}
		s.mu.Lock()
		delete(s.workflows, runID)
		s.mu.Unlock()
	}

	var cached models.WorkflowSummary
	if hit, _ := s.cache.Get(ctx, workflowRunKeyPrefix+runID, &cached); hit {
		return cached, true
	}
	return models.WorkflowSummary{}, false
}

// PurgeExpired drops expired in-memory entries and reports how many were removed.
func (s *MatchResultStore) PurgeExpired() int {
	now := s.now()
	removed := 0
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.matches {
		if now.Sub(entry.savedAt) > s.ttl {
			delete(s.matches, id)
			removed++
		}
	}
	for id, entry := range s.workflows {
		if now.Sub(entry.savedAt) > s.ttl {
			delete(s.workflows, id)
			removed++
		}
	}
	return removed
}

// RunJanitor purges expired entries every interval until ctx is cancelled.
func (s *MatchResultStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.PurgeExpired(); removed > 0 {
				s.logger.Debug("expired match runs purged", zap.Int("count", removed))
			}
		}
	}
}
