package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/elective-match-api/internal/models"
)

type weightingSource interface {
	ListByOptionalCourse(ctx context.Context, courseCode string) ([]models.CourseWeighting, error)
}

type gradeSource interface {
	FindMostRecent(ctx context.Context, studentCode, courseCode string) (*models.Grade, error)
}

// PreferenceScoreService derives how strongly each optional course should
// rank each student from weighted prerequisite grades.
type PreferenceScoreService struct {
	weightings weightingSource
	grades     gradeSource
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewPreferenceScoreService constructs the score builder.
func NewPreferenceScoreService(weightings weightingSource, grades gradeSource, metrics *MetricsService, logger *zap.Logger) *PreferenceScoreService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceScoreService{weightings: weightings, grades: grades, metrics: metrics, logger: logger}
}

// ComputeScores scores every student against every course of a batch.
// Missing data and failed lookups degrade to NeutralScore; only context
// cancellation is returned as an error.
func (s *PreferenceScoreService) ComputeScores(ctx context.Context, students []models.Student, courses []models.Course) (models.ScoreTable, error) {
	weightsByCourse := make(map[string][]models.CourseWeighting, len(courses))
	for _, course := range courses {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		weightings, err := s.weightings.ListByOptionalCourse(ctx, course.Code)
		s.metrics.ObserveDBQuery("course_weightings", time.Since(start))
		if err != nil {
			s.logger.Warn("weighting lookup failed, using neutral score", zap.String("course", course.Code), zap.Error(err))
			weightings = nil
		}
		weightsByCourse[course.Code] = weightings
	}

	type gradeKey struct{ student, course string }
	memo := make(map[gradeKey]*models.Grade)
	lookup := func(studentCode, courseCode string) (float64, bool) {
		key := gradeKey{studentCode, courseCode}
		if grade, ok := memo[key]; ok {
			if grade == nil {
				return 0, false
			}
			return grade.Grade, true
		}
		start := time.Now()
		grade, err := s.grades.FindMostRecent(ctx, studentCode, courseCode)
		s.metrics.ObserveDBQuery("grade_most_recent", time.Since(start))
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				s.logger.Warn("grade lookup failed, skipping prerequisite",
					zap.String("student", studentCode), zap.String("course", courseCode), zap.Error(err))
			}
			grade = nil
		}
		memo[key] = grade
		if grade == nil {
			return 0, false
		}
		return grade.Grade, true
	}

	table := make(models.ScoreTable, len(students))
	for _, student := range students {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, course := range courses {
			score := weightedScore(weightsByCourse[course.Code], func(prereq string) (float64, bool) {
				return lookup(student.Code, prereq)
			})
			table.Set(student.Code, course.Code, score)
		}
	}
	return table, nil
}

// BuildScoreTable is the in-memory form of ComputeScores over a full grade history.
func BuildScoreTable(students []models.Student, courses []models.Course, weightings map[string][]models.CourseWeighting, history []models.Grade) models.ScoreTable {
	byPair := make(map[string]map[string][]models.Grade)
	for _, g := range history {
		byCourse, ok := byPair[g.StudentCode]
		if !ok {
			byCourse = make(map[string][]models.Grade)
			byPair[g.StudentCode] = byCourse
		}
		byCourse[g.CourseCode] = append(byCourse[g.CourseCode], g)
	}

	table := make(models.ScoreTable, len(students))
	for _, student := range students {
		for _, course := range courses {
			score := weightedScore(weightings[course.Code], func(prereq string) (float64, bool) {
				latest, ok := models.LatestGrade(byPair[student.Code][prereq])
				return latest.Grade, ok
			})
			table.Set(student.Code, course.Code, score)
		}
	}
	return table
}

// weightedScore averages prerequisite grades, converted to score points, by
// weight over the prerequisites the student has a grade for.
func weightedScore(weightings []models.CourseWeighting, grade func(prereq string) (float64, bool)) float64 {
	if len(weightings) == 0 {
		return models.NeutralScore
	}
	var weightedSum, totalWeight float64
	for _, w := range weightings {
		value, ok := grade(w.CompulsoryCourseCode)
		if !ok {
			continue
		}
		weightedSum += models.ScorePoints(value) * w.Percentage
		totalWeight += w.Percentage
	}
	if totalWeight <= 0 {
		return models.NeutralScore
	}
	return weightedSum / totalWeight
}

// RankStudents orders students for a course by descending score. Equal scores
// keep registry order.
func RankStudents(students []models.Student, courseCode string, table models.ScoreTable) []string {
	ranked := make([]models.Student, len(students))
	copy(ranked, students)
	sort.SliceStable(ranked, func(i, j int) bool {
		return table.Score(ranked[i].Code, courseCode) > table.Score(ranked[j].Code, courseCode)
	})
	codes := make([]string, len(ranked))
	for i, st := range ranked {
		codes[i] = st.Code
	}
	return codes
}
