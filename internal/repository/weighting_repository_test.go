package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elective-match-api/internal/models"
)

func TestWeightingRepositoryList(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewWeightingRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "optional_course_code", "compulsory_course_code", "percentage", "created_at", "updated_at"}).
		AddRow("w-1", "OPT1", "MATH1", 60.0, now, now).
		AddRow("w-2", "OPT1", "PROG1", 40.0, now, now)
	mock.ExpectQuery("FROM course_weightings WHERE optional_course_code").
		WithArgs("OPT1").
		WillReturnRows(rows)

	weightings, err := repo.ListByOptionalCourse(context.Background(), "OPT1")
	require.NoError(t, err)
	require.Len(t, weightings, 2)
	assert.Equal(t, 60.0, weightings[0].Percentage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWeightingRepositoryReplaceForCourse(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewWeightingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM course_weightings").
		WithArgs("OPT1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO course_weightings").
		WithArgs(sqlmock.AnyArg(), "OPT1", "MATH1", 70.0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	weightings := []models.CourseWeighting{{CompulsoryCourseCode: "MATH1", Percentage: 70}}
	require.NoError(t, repo.ReplaceForCourse(context.Background(), "OPT1", weightings))
	assert.Equal(t, "OPT1", weightings[0].OptionalCourseCode)
	assert.NotEmpty(t, weightings[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWeightingRepositoryReplaceRollsBackOnInsertFailure(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewWeightingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM course_weightings").
		WithArgs("OPT1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO course_weightings").
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	err := repo.ReplaceForCourse(context.Background(), "OPT1", []models.CourseWeighting{{CompulsoryCourseCode: "MATH1", Percentage: 10}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert course weighting")
	assert.NoError(t, mock.ExpectationsWereMet())
}
