package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/elective-match-api/internal/models"
)

const randomMatchSuccessMessage = "Random matching completed (fallback algorithm)"

// RandomMatchingService assigns students to courses with free seats at random,
// ignoring preference order. It needs no external dependency.
type RandomMatchingService struct {
	mu     sync.Mutex
	rng    *rand.Rand
	logger *zap.Logger
}

// NewRandomMatchingService constructs the fallback matcher. A nil rng is seeded from the clock.
func NewRandomMatchingService(rng *rand.Rand, logger *zap.Logger) *RandomMatchingService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RandomMatchingService{rng: rng, logger: logger}
}

// Solve produces a capacity respecting random assignment. Ranks are marked unranked.
func (s *RandomMatchingService) Solve(ctx context.Context, req models.MatchRequest) (result models.MatchResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("random matching panicked", zap.Any("panic", r))
			result = errorResult(fmt.Sprintf("Random matching failed: %v", r))
		}
		result.ExecutionTimeMs = time.Since(start).Milliseconds()
	}()

	if err := validateFallbackRequest(req); err != nil {
		s.logger.Warn("random matching validation failed", zap.Error(err))
		return errorResult("Random matching failed: " + err.Error())
	}

	s.logger.Info("random matching started", zap.Int("students", len(req.Students)), zap.Int("courses", len(req.Courses)))

	capacities := make([]int, len(req.Courses))
	taken := make([]int, len(req.Courses))
	for i, cp := range req.Courses {
		capacities[i] = req.CapacityFor(cp)
	}

	maxAttempts := len(req.Students) * len(req.Courses)
	assignments := make([]models.Assignment, 0, len(req.Students))
	unmatched := make([]string, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sp := range req.Students {
		placed := false
		for attempt := 0; attempt < maxAttempts; attempt++ {
			idx := s.rng.Intn(len(req.Courses))
			if taken[idx] < capacities[idx] {
				taken[idx]++
				assignments = append(assignments, models.Assignment{
					StudentID:             sp.StudentID,
					CourseID:              req.Courses[idx].CourseID,
					StudentPreferenceRank: models.UnrankedPreference,
					CoursePreferenceRank:  models.UnrankedPreference,
				})
				placed = true
				break
			}
		}
		if !placed {
			s.logger.Debug("student left unmatched by random matching", zap.String("student_id", sp.StudentID))
			unmatched = append(unmatched, sp.StudentID)
		}
	}

	fullCourses := make([]string, 0)
	for i, cp := range req.Courses {
		if taken[i] >= capacities[i] {
			fullCourses = append(fullCourses, cp.CourseID)
		}
	}

	sort.Slice(assignments, func(i, j int) bool { return assignments[i].StudentID < assignments[j].StudentID })
	sort.Strings(unmatched)
	sort.Strings(fullCourses)

	s.logger.Info("random matching finished", zap.Int("assignments", len(assignments)), zap.Int("unmatched", len(unmatched)))
	return models.MatchResult{
		Status:            models.MatchStatusSuccess,
		Message:           randomMatchSuccessMessage,
		Assignments:       assignments,
		UnmatchedStudents: unmatched,
		FullCourses:       fullCourses,
		Fallback:          true,
	}
}

// validateFallbackRequest checks only what random assignment relies on:
// every student and course is present exactly once.
func validateFallbackRequest(req models.MatchRequest) error {
	if len(req.Students) == 0 {
		return errors.New("Students list cannot be empty")
	}
	if len(req.Courses) == 0 {
		return errors.New("Courses list cannot be empty")
	}
	studentIDs := make(map[string]struct{}, len(req.Students))
	for _, sp := range req.Students {
		if sp.StudentID == "" {
			return errors.New("Student ID cannot be empty")
		}
		if _, dup := studentIDs[sp.StudentID]; dup {
			return fmt.Errorf("Duplicate student ID: %s", sp.StudentID)
		}
		studentIDs[sp.StudentID] = struct{}{}
	}
	courseIDs := make(map[string]struct{}, len(req.Courses))
	for _, cp := range req.Courses {
		if cp.CourseID == "" {
			return errors.New("Course ID cannot be empty")
		}
		if _, dup := courseIDs[cp.CourseID]; dup {
			return fmt.Errorf("Duplicate course ID: %s", cp.CourseID)
		}
		courseIDs[cp.CourseID] = struct{}{}
	}
	return nil
}
