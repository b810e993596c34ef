package service

import (
	"context"
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

type mockRentLedger struct {
	paid        []int
	registerErr error
	registered  []*models.Payment
}

func (m *mockRentLedger) PaidRentInstallments(ctx context.Context, courseID string) ([]int, error) {
	return m.paid, nil
}

func (m *mockRentLedger) RegisterRent(ctx context.Context, payment *models.Payment) error {
	if m.registerErr != nil {
		return m.registerErr
	}
	payment.ID = "pay-1"
	m.registered = append(m.registered, payment)
	return nil
}

func rentCourseFixture() *models.Course {
	professorID := "prof-1"
	rent := decimal.NewFromInt(80000)
	installments := 6
	return &models.Course{
		ID:                "course-2",
		Name:              "Ceramics Studio",
		Kind:              models.CourseKindRent,
		StartDate:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:           time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		ProfessorID:       &professorID,
		MonthlyRentAmount: &rent,
		RentInstallments:  &installments,
		Active:            true,
	}
}

func newRentService(ledger *mockRentLedger, courses *mockCourseReader) *RentService {
	return NewRentService(ledger, courses, nil, nil, zap.NewNop())
}

func TestRentPreviewListsPendingInstallments(t *testing.T) {
	ledger := &mockRentLedger{paid: []int{1, 2, 4}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-2": rentCourseFixture()}}
	svc := newRentService(ledger, courses)

	preview, err := svc.Preview(context.Background(), "course-2", "prof-1")
	require.NoError(t, err)
	assert.Equal(t, 6, preview.TotalInstallments)
	assert.Equal(t, []int{3, 5, 6}, preview.PendingInstallments)
	assert.True(t, preview.AmountPerInstallment.Equal(decimal.NewFromInt(80000)))
}

func TestRentRegisterSettlesInstallment(t *testing.T) {
	ledger := &mockRentLedger{paid: []int{1, 2, 4}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-2": rentCourseFixture()}}
	svc := newRentService(ledger, courses)

	payment, err := svc.Register(context.Background(), "course-2", RegisterRentRequest{
		ProfessorID:   "prof-1",
		InstallmentNo: 3,
	}, "admin-1")
	require.NoError(t, err)
	require.Len(t, ledger.registered, 1)
	assert.Equal(t, models.PaymentContextRent, payment.Context)
	require.NotNil(t, payment.InstallmentNo)
	assert.Equal(t, 3, *payment.InstallmentNo)
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(80000)))
}

func TestRentRegisterMapsDuplicateToConflict(t *testing.T) {
	ledger := &mockRentLedger{registerErr: repository.ErrDuplicateInstallment}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-2": rentCourseFixture()}}
	svc := newRentService(ledger, courses)

	_, err := svc.Register(context.Background(), "course-2", RegisterRentRequest{
		ProfessorID:   "prof-1",
		InstallmentNo: 3,
	}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRentRegisterRejectsOutOfRangeInstallment(t *testing.T) {
	ledger := &mockRentLedger{}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-2": rentCourseFixture()}}
	svc := newRentService(ledger, courses)

	_, err := svc.Register(context.Background(), "course-2", RegisterRentRequest{
		ProfessorID:   "prof-1",
		InstallmentNo: 7,
	}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrOutOfRange.Code, appErrors.FromError(err).Code)
	assert.Empty(t, ledger.registered)
}

func TestRentRegisterRejectsUnassignedProfessor(t *testing.T) {
	ledger := &mockRentLedger{}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-2": rentCourseFixture()}}
	svc := newRentService(ledger, courses)

	_, err := svc.Register(context.Background(), "course-2", RegisterRentRequest{
		ProfessorID:   "prof-9",
		InstallmentNo: 3,
	}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRentPreviewRejectsNonRentCourse(t *testing.T) {
	ledger := &mockRentLedger{}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": standardCourseFixture()}}
	svc := newRentService(ledger, courses)

	_, err := svc.Preview(context.Background(), "course-1", "prof-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
