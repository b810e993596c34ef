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
	appErrors "github.com/mgiraudo/instituto-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	items     map[string]*models.Enrollment
	paidCount map[string]int
	withdrawn []string
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	details := make([]models.EnrollmentDetail, 0, len(m.items))
	for _, e := range m.items {
		details = append(details, m.detail(e))
	}
	return details, len(details), nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if enrollment, ok := m.items[id]; ok {
		cp := *enrollment
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if enrollment, ok := m.items[id]; ok {
		detail := m.detail(enrollment)
		return &detail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.items == nil {
		m.items = make(map[string]*models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "generated"
	}
	enrollment.Version = 1
	enrollment.CreatedAt = time.Now().UTC()
	cp := *enrollment
	m.items[enrollment.ID] = &cp
	return nil
}

func (m *mockEnrollmentRepo) Withdraw(ctx context.Context, id string) error {
	m.withdrawn = append(m.withdrawn, id)
	if e, ok := m.items[id]; ok {
		e.Status = models.EnrollmentStatusWithdrawn
	}
	return nil
}

func (m *mockEnrollmentRepo) detail(e *models.Enrollment) models.EnrollmentDetail {
	return models.EnrollmentDetail{
		Enrollment:       *e,
		CourseName:       "Piano",
		CourseKind:       models.CourseKindStandard,
		InstallmentsPaid: m.paidCount[e.ID],
	}
}

type mockPaymentsReader struct {
	payments []models.Payment
}

func (m *mockPaymentsReader) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	return m.payments, nil
}

func newEnrollmentService(repo *mockEnrollmentRepo, courses *mockCourseReader, ledger *mockPaymentsReader) *EnrollmentService {
	if ledger == nil {
		ledger = &mockPaymentsReader{}
	}
	return NewEnrollmentService(repo, courses, ledger, nil, zap.NewNop())
}

func TestEnrollMonthlyDefaultsInstallmentsToCourseSpan(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": standardCourseFixture()}}
	svc := newEnrollmentService(repo, courses, nil)

	// course runs 2024-01-15 .. 2024-03-20, spanning three calendar months
	detail, err := svc.Enroll(context.Background(), EnrollStudentRequest{
		CourseID:   "course-1",
		StudentID:  "stu-1",
		PlanKind:   "MONTHLY",
		UnitAmount: decimal.NewFromInt(15000),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, detail.Installments)
	assert.Equal(t, models.PaymentStatePending, detail.PaymentState)
}

func TestEnrollSinglePlanHasOneInstallment(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": standardCourseFixture()}}
	svc := newEnrollmentService(repo, courses, nil)

	detail, err := svc.Enroll(context.Background(), EnrollStudentRequest{
		CourseID:   "course-1",
		StudentID:  "stu-1",
		PlanKind:   "SINGLE",
		UnitAmount: decimal.NewFromInt(40000),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, detail.Installments)
}

func TestEnrollMonthlyInstallmentsOverride(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": standardCourseFixture()}}
	svc := newEnrollmentService(repo, courses, nil)

	installments := 6
	detail, err := svc.Enroll(context.Background(), EnrollStudentRequest{
		CourseID:     "course-1",
		StudentID:    "stu-1",
		PlanKind:     "MONTHLY",
		UnitAmount:   decimal.NewFromInt(15000),
		Installments: &installments,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, detail.Installments)
}

func TestEnrollRejectsInactiveCourse(t *testing.T) {
	course := standardCourseFixture()
	course.Active = false
	repo := &mockEnrollmentRepo{}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": course}}
	svc := newEnrollmentService(repo, courses, nil)

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{
		CourseID:   "course-1",
		StudentID:  "stu-1",
		PlanKind:   "SINGLE",
		UnitAmount: decimal.NewFromInt(40000),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCourseInactive.Code, appErrors.FromError(err).Code)
}

func TestEnrollRejectsNonPositiveAmount(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": standardCourseFixture()}}
	svc := newEnrollmentService(repo, courses, nil)

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{
		CourseID:   "course-1",
		StudentID:  "stu-1",
		PlanKind:   "SINGLE",
		UnitAmount: decimal.Zero,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidAmount.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentGetDerivesPaymentState(t *testing.T) {
	enrollment := monthlyEnrollmentFixture()
	repo := &mockEnrollmentRepo{
		items:     map[string]*models.Enrollment{"enr-1": enrollment},
		paidCount: map[string]int{"enr-1": 2},
	}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": standardCourseFixture()}}
	svc := newEnrollmentService(repo, courses, nil)

	detail, err := svc.Get(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatePartial, detail.PaymentState)
}

func TestEnrollmentWithdraw(t *testing.T) {
	repo := &mockEnrollmentRepo{items: map[string]*models.Enrollment{"enr-1": monthlyEnrollmentFixture()}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": standardCourseFixture()}}
	svc := newEnrollmentService(repo, courses, nil)

	detail, err := svc.Withdraw(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWithdrawn, detail.Status)
	assert.Equal(t, []string{"enr-1"}, repo.withdrawn)

	_, err = svc.Withdraw(context.Background(), "enr-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEnrollmentWithdrawn.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentListPayments(t *testing.T) {
	repo := &mockEnrollmentRepo{items: map[string]*models.Enrollment{"enr-1": monthlyEnrollmentFixture()}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": standardCourseFixture()}}
	ledger := &mockPaymentsReader{payments: []models.Payment{
		{ID: "pay-1", Context: models.PaymentContextTuition, Amount: decimal.NewFromInt(13500)},
	}}
	svc := newEnrollmentService(repo, courses, ledger)

	payments, err := svc.ListPayments(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "pay-1", payments[0].ID)
}
