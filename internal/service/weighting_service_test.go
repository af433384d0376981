package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elective-match-api/internal/dto"
	"github.com/noah-isme/elective-match-api/internal/models"
	appErrors "github.com/noah-isme/elective-match-api/pkg/errors"
)

type courseLookupStub map[string]models.Course

func (s courseLookupStub) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	course, ok := s[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

type weightingStoreStub struct {
	replaced []models.CourseWeighting
	err      error
}

func (s *weightingStoreStub) ListByOptionalCourse(ctx context.Context, courseCode string) ([]models.CourseWeighting, error) {
	return nil, s.err
}

func (s *weightingStoreStub) ReplaceForCourse(ctx context.Context, courseCode string, weightings []models.CourseWeighting) error {
	s.replaced = weightings
	return s.err
}

func catalogue() courseLookupStub {
	return courseLookupStub{
		"MATH1": {Code: "MATH1", Compulsory: true},
		"PHYS1": {Code: "PHYS1", Compulsory: true},
		"OPT1":  {Code: "OPT1"},
		"OPT2":  {Code: "OPT2"},
	}
}

func requireAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, code, appErr.Code)
}

func TestWeightingServiceReplace(t *testing.T) {
	store := &weightingStoreStub{}
	svc := NewWeightingService(store, catalogue(), nil, nil)

	out, err := svc.Replace(context.Background(), "OPT1", dto.ReplaceWeightingsRequest{Preferences: []dto.WeightingItem{
		{CompulsoryCourseCode: "MATH1", Percentage: 70},
		{CompulsoryCourseCode: " PHYS1 ", Percentage: 30},
	}})

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, store.replaced, out)
	assert.Equal(t, "PHYS1", out[1].CompulsoryCourseCode)
	assert.Equal(t, "OPT1", out[1].OptionalCourseCode)
}

func TestWeightingServiceReplaceRejects(t *testing.T) {
	cases := []struct {
		name   string
		course string
		items  []dto.WeightingItem
		code   string
	}{
		{"percentage above 100", "OPT1", []dto.WeightingItem{{CompulsoryCourseCode: "MATH1", Percentage: 120}}, appErrors.ErrValidation.Code},
		{"empty set", "OPT1", nil, appErrors.ErrValidation.Code},
		{"unknown course", "OPT9", []dto.WeightingItem{{CompulsoryCourseCode: "MATH1", Percentage: 10}}, appErrors.ErrNotFound.Code},
		{"compulsory target", "MATH1", []dto.WeightingItem{{CompulsoryCourseCode: "PHYS1", Percentage: 10}}, appErrors.ErrInvalidWeights.Code},
		{"optional prerequisite", "OPT1", []dto.WeightingItem{{CompulsoryCourseCode: "OPT2", Percentage: 10}}, appErrors.ErrInvalidWeights.Code},
		{"missing prerequisite", "OPT1", []dto.WeightingItem{{CompulsoryCourseCode: "CHEM1", Percentage: 10}}, appErrors.ErrInvalidWeights.Code},
		{"repeated prerequisite", "OPT1", []dto.WeightingItem{{CompulsoryCourseCode: "MATH1", Percentage: 10}, {CompulsoryCourseCode: "MATH1", Percentage: 20}}, appErrors.ErrInvalidWeights.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &weightingStoreStub{}
			svc := NewWeightingService(store, catalogue(), nil, nil)
			_, err := svc.Replace(context.Background(), tc.course, dto.ReplaceWeightingsRequest{Preferences: tc.items})
			requireAppError(t, err, tc.code)
			assert.Nil(t, store.replaced)
		})
	}
}

func TestWeightingServiceListReturnsEmptySlice(t *testing.T) {
	svc := NewWeightingService(&weightingStoreStub{}, catalogue(), nil, nil)
	out, err := svc.List(context.Background(), "OPT1")
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
