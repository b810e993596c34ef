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
	"github.com/mgiraudo/instituto-api/pkg/config"
	appErrors "github.com/mgiraudo/instituto-api/pkg/errors"
)

type mockCommissionLedger struct {
	last        *models.CommissionPeriod
	revenue     decimal.Decimal
	registerErr error
	registered  []*models.Payment
}

func (m *mockCommissionLedger) LastCommissionPeriod(ctx context.Context, courseID, professorID string) (*models.CommissionPeriod, error) {
	return m.last, nil
}

func (m *mockCommissionLedger) TuitionRevenueInPeriod(ctx context.Context, courseID string, start, end time.Time) (decimal.Decimal, error) {
	return m.revenue, nil
}

func (m *mockCommissionLedger) RegisterCommission(ctx context.Context, payment *models.Payment) error {
	if m.registerErr != nil {
		return m.registerErr
	}
	payment.ID = "pay-1"
	m.registered = append(m.registered, payment)
	return nil
}

func commissionCourseFixture() *models.Course {
	professorID := "prof-1"
	rate := decimal.NewFromFloat(0.35)
	return &models.Course{
		ID:             "course-3",
		Name:           "Jazz Ensemble",
		Kind:           models.CourseKindCommission,
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		ProfessorID:    &professorID,
		CommissionRate: &rate,
		Active:         true,
	}
}

func newCommissionService(ledger *mockCommissionLedger, courses *mockCourseReader, policy config.BillingConfig, now time.Time) *CommissionService {
	svc := NewCommissionService(ledger, courses, nil, policy, zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc
}

func TestCommissionPreviewComputesShare(t *testing.T) {
	ledger := &mockCommissionLedger{revenue: decimal.NewFromInt(300000)}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-3": commissionCourseFixture()}}
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	svc := newCommissionService(ledger, courses, config.BillingConfig{AllowZeroCommission: true}, now)

	preview, err := svc.Preview(context.Background(), "course-3", "prof-1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), preview.PeriodStart)
	assert.Equal(t, now, preview.PeriodEnd)
	assert.True(t, preview.CommissionAmount.Equal(decimal.NewFromInt(105000)))
	assert.True(t, preview.CanRegister)
}

func TestCommissionPreviewStartsAfterLastSettledPeriod(t *testing.T) {
	settledEnd := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	ledger := &mockCommissionLedger{
		last:    &models.CommissionPeriod{PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), PeriodEnd: settledEnd},
		revenue: decimal.NewFromInt(50000),
	}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-3": commissionCourseFixture()}}
	svc := newCommissionService(ledger, courses, config.BillingConfig{AllowZeroCommission: true}, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	preview, err := svc.Preview(context.Background(), "course-3", "prof-1")
	require.NoError(t, err)
	assert.Equal(t, settledEnd, preview.PeriodStart)
}

func TestCommissionRegisterSettlesPeriod(t *testing.T) {
	ledger := &mockCommissionLedger{revenue: decimal.NewFromInt(300000)}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-3": commissionCourseFixture()}}
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	svc := newCommissionService(ledger, courses, config.BillingConfig{AllowZeroCommission: true}, now)

	payment, err := svc.Register(context.Background(), "course-3", "prof-1", "admin-1")
	require.NoError(t, err)
	require.Len(t, ledger.registered, 1)
	assert.Equal(t, models.PaymentContextCommission, payment.Context)
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(105000)))
	require.NotNil(t, payment.PeriodStart)
	require.NotNil(t, payment.PeriodEnd)
	assert.Equal(t, now, *payment.PeriodEnd)
}

func TestCommissionRegisterZeroRevenuePolicy(t *testing.T) {
	ledger := &mockCommissionLedger{revenue: decimal.Zero}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-3": commissionCourseFixture()}}
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	svc := newCommissionService(ledger, courses, config.BillingConfig{AllowZeroCommission: false}, now)
	_, err := svc.Register(context.Background(), "course-3", "prof-1", "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidPeriod.Code, appErrors.FromError(err).Code)

	svc = newCommissionService(ledger, courses, config.BillingConfig{AllowZeroCommission: true}, now)
	payment, err := svc.Register(context.Background(), "course-3", "prof-1", "admin-1")
	require.NoError(t, err)
	assert.True(t, payment.Amount.IsZero())
}

func TestCommissionRegisterMapsOverlapToConflict(t *testing.T) {
	ledger := &mockCommissionLedger{revenue: decimal.NewFromInt(1000), registerErr: repository.ErrPeriodOverlap}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-3": commissionCourseFixture()}}
	svc := newCommissionService(ledger, courses, config.BillingConfig{AllowZeroCommission: true}, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.Register(context.Background(), "course-3", "prof-1", "admin-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCommissionPreviewNothingToSettle(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ledger := &mockCommissionLedger{
		last: &models.CommissionPeriod{PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), PeriodEnd: now},
	}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-3": commissionCourseFixture()}}
	svc := newCommissionService(ledger, courses, config.BillingConfig{AllowZeroCommission: true}, now)

	_, err := svc.Preview(context.Background(), "course-3", "prof-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidPeriod.Code, appErrors.FromError(err).Code)
}

func TestCommissionPreviewRejectsWrongProfessor(t *testing.T) {
	ledger := &mockCommissionLedger{revenue: decimal.NewFromInt(1000)}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-3": commissionCourseFixture()}}
	svc := newCommissionService(ledger, courses, config.BillingConfig{}, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	_, err := svc.Preview(context.Background(), "course-3", "prof-9")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
