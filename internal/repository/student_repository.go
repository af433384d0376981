package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elective-match-api/internal/models"
)

// StudentRepository reads the student registry.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// ListAll returns every student in registry order.
func (r *StudentRepository) ListAll(ctx context.Context) ([]models.Student, error) {
	const query = `SELECT id, code, full_name, year, group_name, created_at FROM students ORDER BY code ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// FindByCode returns a student by registry code.
func (r *StudentRepository) FindByCode(ctx context.Context, code string) (*models.Student, error) {
	const query = `SELECT id, code, full_name, year, group_name, created_at FROM students WHERE code = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, code); err != nil {
		return nil, err
	}
	return &student, nil
}
