package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mgiraudo/instituto-api/internal/models"
	"github.com/mgiraudo/instituto-api/pkg/config"
	appErrors "github.com/mgiraudo/instituto-api/pkg/errors"
)

type mockCourseRepo struct {
	items       map[string]*models.Course
	deactivated []string
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	courses := make([]models.Course, 0, len(m.items))
	for _, c := range m.items {
		courses = append(courses, *c)
	}
	return courses, len(courses), nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if course, ok := m.items[id]; ok {
		cp := *course
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if m.items == nil {
		m.items = make(map[string]*models.Course)
	}
	if course.ID == "" {
		course.ID = "generated"
	}
	cp := *course
	m.items[course.ID] = &cp
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	cp := *course
	m.items[course.ID] = &cp
	return nil
}

func (m *mockCourseRepo) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	if c, ok := m.items[id]; ok {
		c.Active = false
	}
	return nil
}

var testBillingPolicy = config.BillingConfig{
	DefaultSurchargePercent: 10.0,
	DefaultCommissionRate:   0.35,
	AllowZeroCommission:     true,
}

func TestCourseCreateSeedsLateFeeDefault(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := NewCourseService(repo, testBillingPolicy, nil, zap.NewNop())

	course, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:      "Piano",
		Kind:      "STANDARD",
		StartDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, course.LateFeePercent.Equal(decimal.NewFromInt(10)))
	assert.True(t, course.Active)
}

func TestCourseCreateCommissionSeedsDefaultRate(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := NewCourseService(repo, testBillingPolicy, nil, zap.NewNop())

	professorID := "prof-1"
	course, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:        "Jazz Ensemble",
		Kind:        "COMMISSION",
		StartDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		ProfessorID: &professorID,
	})
	require.NoError(t, err)
	require.NotNil(t, course.CommissionRate)
	assert.True(t, course.CommissionRate.Equal(decimal.NewFromFloat(0.35)))
}

func TestCourseCreateRentRequiresSchedule(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := NewCourseService(repo, testBillingPolicy, nil, zap.NewNop())

	professorID := "prof-1"
	_, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:        "Ceramics Studio",
		Kind:        "RENT",
		StartDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		ProfessorID: &professorID,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseCreateRentWithoutProfessor(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := NewCourseService(repo, testBillingPolicy, nil, zap.NewNop())

	rent := decimal.NewFromInt(80000)
	installments := 6
	_, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:              "Ceramics Studio",
		Kind:              "RENT",
		StartDate:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:           time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		MonthlyRentAmount: &rent,
		RentInstallments:  &installments,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseCreateRejectsCommissionRateAboveOne(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := NewCourseService(repo, testBillingPolicy, nil, zap.NewNop())

	professorID := "prof-1"
	rate := decimal.NewFromFloat(1.5)
	_, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:           "Jazz Ensemble",
		Kind:           "COMMISSION",
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		ProfessorID:    &professorID,
		CommissionRate: &rate,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrOutOfRange.Code, appErrors.FromError(err).Code)
}

func TestCourseUpdateKeepsKind(t *testing.T) {
	repo := &mockCourseRepo{items: map[string]*models.Course{"course-1": standardCourseFixture()}}
	svc := NewCourseService(repo, testBillingPolicy, nil, zap.NewNop())

	updated, err := svc.Update(context.Background(), "course-1", UpdateCourseRequest{
		Name:      "Piano Advanced",
		StartDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "Piano Advanced", updated.Name)
	assert.Equal(t, models.CourseKindStandard, updated.Kind)
}

func TestCourseDeactivate(t *testing.T) {
	repo := &mockCourseRepo{items: map[string]*models.Course{"course-1": standardCourseFixture()}}
	svc := NewCourseService(repo, testBillingPolicy, nil, zap.NewNop())

	err := svc.Deactivate(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"course-1"}, repo.deactivated)

	err = svc.Deactivate(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
