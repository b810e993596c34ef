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
	"github.com/mgiraudo/instituto-api/internal/repository"
	appErrors "github.com/mgiraudo/instituto-api/pkg/errors"
)

type mockCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if course, ok := m.courses[id]; ok {
		cp := *course
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type mockEnrollmentReader struct {
	items map[string]*models.Enrollment
}

func (m *mockEnrollmentReader) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if enrollment, ok := m.items[id]; ok {
		cp := *enrollment
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type mockTuitionLedger struct {
	count       int
	registerErr error
	registered  []*models.Payment
}

func (m *mockTuitionLedger) CountByEnrollment(ctx context.Context, enrollmentID string) (int, error) {
	return m.count, nil
}

func (m *mockTuitionLedger) RegisterTuition(ctx context.Context, payment *models.Payment, planInstallments int) error {
	if m.registerErr != nil {
		return m.registerErr
	}
	payment.ID = "pay-1"
	no := m.count + 1
	payment.InstallmentNo = &no
	m.registered = append(m.registered, payment)
	return nil
}

func standardCourseFixture() *models.Course {
	return &models.Course{
		ID:             "course-1",
		Name:           "Piano",
		Kind:           models.CourseKindStandard,
		StartDate:      time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC),
		LateFeePercent: decimal.NewFromInt(5),
		Active:         true,
	}
}

func monthlyEnrollmentFixture() *models.Enrollment {
	return &models.Enrollment{
		ID:              "enr-1",
		CourseID:        "course-1",
		StudentID:       "stu-1",
		PlanKind:        models.PlanMonthly,
		UnitAmount:      decimal.NewFromInt(15000),
		Installments:    3,
		DiscountPercent: decimal.NewFromInt(10),
		Status:          models.EnrollmentStatusActive,
		CreatedAt:       time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func newTuitionService(ledger *mockTuitionLedger, enrollments *mockEnrollmentReader, courses *mockCourseReader, now time.Time) *TuitionService {
	svc := NewTuitionService(ledger, enrollments, courses, nil, nil, zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc
}

func TestTuitionPreviewAppliesDiscount(t *testing.T) {
	ledger := &mockTuitionLedger{count: 0}
	enrollments := &mockEnrollmentReader{items: map[string]*models.Enrollment{"enr-1": monthlyEnrollmentFixture()}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": standardCourseFixture()}}
	svc := newTuitionService(ledger, enrollments, courses, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))

	preview, err := svc.Preview(context.Background(), "enr-1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, preview.NextInstallmentNo)
	assert.True(t, preview.BaseAmount.Equal(decimal.NewFromInt(15000)))
	assert.True(t, preview.DiscountAmount.Equal(decimal.NewFromInt(1500)))
	assert.True(t, preview.FinalAmount.Equal(decimal.NewFromInt(13500)))
	assert.Equal(t, models.PaymentStatePending, preview.PaymentState)
	assert.True(t, preview.CanRegister)
}

func TestTuitionPreviewSuggestsSurchargeWhenOverdue(t *testing.T) {
	ledger := &mockTuitionLedger{count: 1}
	enrollments := &mockEnrollmentReader{items: map[string]*models.Enrollment{"enr-1": monthlyEnrollmentFixture()}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": standardCourseFixture()}}
	// three calendar months into the plan, only one installment paid
	svc := newTuitionService(ledger, enrollments, courses, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))

	preview, err := svc.Preview(context.Background(), "enr-1", false)
	require.NoError(t, err)
	assert.Equal(t, 3, preview.InstallmentsDue)
	assert.Equal(t, 2, preview.InstallmentsOverdue)
	assert.True(t, preview.SurchargeSuggested)
	assert.Equal(t, models.PaymentStatePartial, preview.PaymentState)
}

func TestTuitionRegisterAppliesSurcharge(t *testing.T) {
	enrollment := monthlyEnrollmentFixture()
	enrollment.DiscountPercent = decimal.Zero
	ledger := &mockTuitionLedger{count: 1}
	enrollments := &mockEnrollmentReader{items: map[string]*models.Enrollment{"enr-1": enrollment}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": standardCourseFixture()}}
	svc := newTuitionService(ledger, enrollments, courses, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))

	payment, err := svc.Register(context.Background(), "enr-1", true, "admin-1")
	require.NoError(t, err)
	require.Len(t, ledger.registered, 1)
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(15750)))
	require.NotNil(t, payment.SurchargePercent)
	assert.True(t, payment.SurchargePercent.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, models.PaymentContextTuition, payment.Context)
	assert.Equal(t, "admin-1", payment.RegisteredBy)
}

func TestTuitionRegisterRejectsCompletePlan(t *testing.T) {
	ledger := &mockTuitionLedger{count: 3}
	enrollments := &mockEnrollmentReader{items: map[string]*models.Enrollment{"enr-1": monthlyEnrollmentFixture()}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": standardCourseFixture()}}
	svc := newTuitionService(ledger, enrollments, courses, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.Register(context.Background(), "enr-1", false, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyComplete.Code, appErrors.FromError(err).Code)
}

func TestTuitionRegisterMapsConcurrentCompletion(t *testing.T) {
	ledger := &mockTuitionLedger{count: 2, registerErr: repository.ErrInstallmentsComplete}
	enrollments := &mockEnrollmentReader{items: map[string]*models.Enrollment{"enr-1": monthlyEnrollmentFixture()}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": standardCourseFixture()}}
	svc := newTuitionService(ledger, enrollments, courses, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.Register(context.Background(), "enr-1", false, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyComplete.Code, appErrors.FromError(err).Code)
}

func TestTuitionRegisterRejectsWithdrawnEnrollment(t *testing.T) {
	enrollment := monthlyEnrollmentFixture()
	enrollment.Status = models.EnrollmentStatusWithdrawn
	ledger := &mockTuitionLedger{}
	enrollments := &mockEnrollmentReader{items: map[string]*models.Enrollment{"enr-1": enrollment}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": standardCourseFixture()}}
	svc := newTuitionService(ledger, enrollments, courses, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.Register(context.Background(), "enr-1", false, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEnrollmentWithdrawn.Code, appErrors.FromError(err).Code)
	assert.Empty(t, ledger.registered)
}

func TestTuitionRegisterRejectsInactiveCourse(t *testing.T) {
	course := standardCourseFixture()
	course.Active = false
	ledger := &mockTuitionLedger{}
	enrollments := &mockEnrollmentReader{items: map[string]*models.Enrollment{"enr-1": monthlyEnrollmentFixture()}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": course}}
	svc := newTuitionService(ledger, enrollments, courses, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.Register(context.Background(), "enr-1", false, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCourseInactive.Code, appErrors.FromError(err).Code)
}

func TestTuitionPreviewNotFound(t *testing.T) {
	svc := newTuitionService(&mockTuitionLedger{}, &mockEnrollmentReader{}, &mockCourseReader{}, time.Now().UTC())

	_, err := svc.Preview(context.Background(), "missing", false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
