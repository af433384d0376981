package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestStudentRepositoryListAll(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewStudentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "code", "full_name", "year", "group_name", "created_at"}).
		AddRow("stu-1", "S1", "Ana Pop", 3, "A1", now).
		AddRow("stu-2", "S2", "Ion Rusu", 3, "A2", now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, full_name, year, group_name, created_at FROM students ORDER BY code ASC")).
		WillReturnRows(rows)

	students, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "S1", students[0].Code)
	assert.Equal(t, "A2", students[1].Group)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByCodeMissing(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE code = $1")).
		WithArgs("S9").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByCode(context.Background(), "S9")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryListOptional(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewCourseRepository(db)

	rows := sqlmock.NewRows([]string{"id", "code", "title", "credits", "compulsory", "instructor_id", "created_at"}).
		AddRow("c-1", "OPT1", "Cloud Computing", 5, false, nil, time.Now()).
		AddRow("c-2", "OPT2", "Machine Learning", 5, false, "inst-1", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE compulsory = FALSE ORDER BY code ASC")).
		WillReturnRows(rows)

	courses, err := repo.ListOptional(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Nil(t, courses[0].InstructorID)
	require.NotNil(t, courses[1].InstructorID)
	assert.Equal(t, "inst-1", *courses[1].InstructorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryFindByCode(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewCourseRepository(db)

	rows := sqlmock.NewRows([]string{"id", "code", "title", "credits", "compulsory", "instructor_id", "created_at"}).
		AddRow("c-9", "MATH1", "Mathematics", 6, true, nil, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE code = $1")).
		WithArgs("MATH1").
		WillReturnRows(rows)

	course, err := repo.FindByCode(context.Background(), "MATH1")
	require.NoError(t, err)
	assert.True(t, course.Compulsory)
	assert.NoError(t, mock.ExpectationsWereMet())
}
