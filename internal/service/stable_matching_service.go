package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/elective-match-api/internal/models"
)

const (
	stableMatchSuccessMessage = "Stable matching completed successfully"
	invalidInputPrefix        = "Invalid input: "
	internalErrorPrefix       = "Internal error: "
)

// StableMatchingService runs capacity aware deferred acceptance over student
// and course preference lists.
type StableMatchingService struct {
	metrics *MetricsService
	logger  *zap.Logger
}

// NewStableMatchingService constructs the matching engine.
func NewStableMatchingService(metrics *MetricsService, logger *zap.Logger) *StableMatchingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StableMatchingService{metrics: metrics, logger: logger}
}

// Solve computes an assignment. Invalid input and internal faults are reported
// through the result status, never as a panic or error.
func (s *StableMatchingService) Solve(ctx context.Context, req models.MatchRequest) (result models.MatchResult) {
	start := time.Now()
	s.logger.Info("stable matching started",
		zap.Int("students", len(req.Students)),
		zap.Int("courses", len(req.Courses)),
		zap.Int("capacity_per_course", req.CapacityPerCourse),
	)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stable matching panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = errorResult(fmt.Sprintf("%s%v", internalErrorPrefix, r))
		}
		result.ExecutionTimeMs = time.Since(start).Milliseconds()
		s.metrics.ObserveSolve(string(result.Status), time.Since(start))
	}()

	if err := validateMatchRequest(req); err != nil {
		s.logger.Warn("stable matching validation failed", zap.Error(err))
		return errorResult(invalidInputPrefix + err.Error())
	}
	if err := ctx.Err(); err != nil {
		return errorResult(internalErrorPrefix + err.Error())
	}

	result = runDeferredAcceptance(req)
	s.logger.Info("stable matching finished",
		zap.Int("assignments", len(result.Assignments)),
		zap.Int("unmatched", len(result.UnmatchedStudents)),
		zap.Int("full_courses", len(result.FullCourses)),
	)
	return result
}

func errorResult(message string) models.MatchResult {
	return models.MatchResult{
		Status:            models.MatchStatusError,
		Message:           message,
		Assignments:       []models.Assignment{},
		UnmatchedStudents: []string{},
		FullCourses:       []string{},
	}
}

func validateMatchRequest(req models.MatchRequest) error {
	if len(req.Students) == 0 {
		return errors.New("Students list cannot be empty")
	}
	if len(req.Courses) == 0 {
		return errors.New("Courses list cannot be empty")
	}
	if req.CapacityPerCourse < 0 {
		return errors.New("Capacity per course must be at least 1")
	}

	studentIDs := make(map[string]struct{}, len(req.Students))
	for _, sp := range req.Students {
		if sp.StudentID == "" {
			return errors.New("Student ID cannot be empty")
		}
		if _, dup := studentIDs[sp.StudentID]; dup {
			return fmt.Errorf("Duplicate student ID: %s", sp.StudentID)
		}
		if len(sp.Preferences) == 0 {
			return fmt.Errorf("Student %s must have at least one preference", sp.StudentID)
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
		if len(cp.Preferences) == 0 {
			return fmt.Errorf("Course %s must have at least one preference", cp.CourseID)
		}
		if cp.Capacity < 0 {
			return fmt.Errorf("Course %s capacity must be at least 1", cp.CourseID)
		}
		courseIDs[cp.CourseID] = struct{}{}
	}

	for _, sp := range req.Students {
		seen := make(map[string]struct{}, len(sp.Preferences))
		for _, courseID := range sp.Preferences {
			if _, ok := courseIDs[courseID]; !ok {
				return fmt.Errorf("Student %s prefers unknown course %s", sp.StudentID, courseID)
			}
			if _, dup := seen[courseID]; dup {
				return fmt.Errorf("Student %s lists course %s more than once", sp.StudentID, courseID)
			}
			seen[courseID] = struct{}{}
		}
	}
	for _, cp := range req.Courses {
		seen := make(map[string]struct{}, len(cp.Preferences))
		for _, studentID := range cp.Preferences {
			if _, ok := studentIDs[studentID]; !ok {
				return fmt.Errorf("Course %s ranks unknown student %s", cp.CourseID, studentID)
			}
			if _, dup := seen[studentID]; dup {
				return fmt.Errorf("Course %s lists student %s more than once", cp.CourseID, studentID)
			}
			seen[studentID] = struct{}{}
		}
	}
	return nil
}

// unranked sorts after every ranked student.
const unranked = int(^uint(0) >> 1)

type seat struct {
	studentID string
	rank      int
}

// courseRoster holds the provisional assignees of a course ordered by rank,
// so the worst assignee is always the last element.
type courseRoster struct {
	capacity int
	ranks    map[string]int
	seats    []seat
}

func (c *courseRoster) rankOf(studentID string) int {
	if rank, ok := c.ranks[studentID]; ok {
		return rank
	}
	return unranked
}

func (c *courseRoster) full() bool {
	return len(c.seats) >= c.capacity
}

// insert keeps seats sorted; a newcomer goes after assignees of equal rank.
func (c *courseRoster) insert(studentID string, rank int) {
	idx := sort.Search(len(c.seats), func(i int) bool { return c.seats[i].rank > rank })
	c.seats = append(c.seats, seat{})
	copy(c.seats[idx+1:], c.seats[idx:])
	c.seats[idx] = seat{studentID: studentID, rank: rank}
}

func (c *courseRoster) worst() seat {
	return c.seats[len(c.seats)-1]
}

func (c *courseRoster) evictWorst() string {
	evicted := c.worst()
	c.seats = c.seats[:len(c.seats)-1]
	return evicted.studentID
}

func runDeferredAcceptance(req models.MatchRequest) models.MatchResult {
	rosters := make(map[string]*courseRoster, len(req.Courses))
	for _, cp := range req.Courses {
		ranks := make(map[string]int, len(cp.Preferences))
		for i, studentID := range cp.Preferences {
			ranks[studentID] = i + 1
		}
		rosters[cp.CourseID] = &courseRoster{capacity: req.CapacityFor(cp), ranks: ranks}
	}

	preferences := make(map[string][]string, len(req.Students))
	queue := make([]string, 0, len(req.Students))
	for _, sp := range req.Students {
		preferences[sp.StudentID] = sp.Preferences
		queue = append(queue, sp.StudentID)
	}

	for len(queue) > 0 {
		studentID := queue[0]
		queue = queue[1:]

		for _, courseID := range preferences[studentID] {
			roster := rosters[courseID]
			rank := roster.rankOf(studentID)
			if !roster.full() {
				roster.insert(studentID, rank)
				break
			}
			if rank < roster.worst().rank {
				queue = append(queue, roster.evictWorst())
				roster.insert(studentID, rank)
				break
			}
		}
	}

	return buildMatchResult(req, rosters)
}

func buildMatchResult(req models.MatchRequest, rosters map[string]*courseRoster) models.MatchResult {
	studentRanks := make(map[string]map[string]int, len(req.Students))
	for _, sp := range req.Students {
		ranks := make(map[string]int, len(sp.Preferences))
		for i, courseID := range sp.Preferences {
			ranks[courseID] = i + 1
		}
		studentRanks[sp.StudentID] = ranks
	}

	assignments := make([]models.Assignment, 0, len(req.Students))
	assigned := make(map[string]struct{}, len(req.Students))
	fullCourses := make([]string, 0)
	for _, cp := range req.Courses {
		roster := rosters[cp.CourseID]
		for _, st := range roster.seats {
			courseRank := st.rank
			if courseRank == unranked {
				courseRank = models.UnrankedPreference
			}
			assignments = append(assignments, models.Assignment{
				StudentID:             st.studentID,
				CourseID:              cp.CourseID,
				StudentPreferenceRank: studentRanks[st.studentID][cp.CourseID],
				CoursePreferenceRank:  courseRank,
			})
			assigned[st.studentID] = struct{}{}
		}
		if roster.full() {
			fullCourses = append(fullCourses, cp.CourseID)
		}
	}

	unmatched := make([]string, 0)
	for _, sp := range req.Students {
		if _, ok := assigned[sp.StudentID]; !ok {
			unmatched = append(unmatched, sp.StudentID)
		}
	}

	sort.Slice(assignments, func(i, j int) bool { return assignments[i].StudentID < assignments[j].StudentID })
	sort.Strings(unmatched)
	sort.Strings(fullCourses)

	return models.MatchResult{
		Status:            models.MatchStatusSuccess,
		Message:           stableMatchSuccessMessage,
		Assignments:       assignments,
		UnmatchedStudents: unmatched,
		FullCourses:       fullCourses,
	}
}
