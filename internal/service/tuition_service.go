package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mgiraudo/instituto-api/internal/models"
	"github.com/mgiraudo/instituto-api/internal/repository"
	appErrors "github.com/mgiraudo/instituto-api/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

type tuitionLedger interface {
	CountByEnrollment(ctx context.Context, enrollmentID string) (int, error)
	RegisterTuition(ctx context.Context, payment *models.Payment, planInstallments int) error
}

type billingEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type billingCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type revenueCacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// TuitionService computes and registers tuition installment payments.
type TuitionService struct {
	ledger      tuitionLedger
	enrollments billingEnrollmentReader
	courses     billingCourseReader
	cache       revenueCacheInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewTuitionService constructs TuitionService.
func NewTuitionService(ledger tuitionLedger, enrollments billingEnrollmentReader, courses billingCourseReader, cache revenueCacheInvalidator, validate *validator.Validate, logger *zap.Logger) *TuitionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TuitionService{
		ledger:      ledger,
		enrollments: enrollments,
		courses:     courses,
		cache:       cache,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Preview quotes the next unpaid installment for an enrollment. Pure
// read: nothing is mutated and the result may be stale by commit time.
func (s *TuitionService) Preview(ctx context.Context, enrollmentID string, applySurcharge bool) (*models.TuitionPreview, error) {
	enrollment, course, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	paid, err := s.ledger.CountByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read ledger")
	}

	return s.buildPreview(enrollment, course, paid, applySurcharge), nil
}

// Register commits the previewed installment. The amounts are recomputed
// and the plan limit re-verified inside the ledger transaction, so a
// stale preview can only fail, never double-charge.
func (s *TuitionService) Register(ctx context.Context, enrollmentID string, applySurcharge bool, actorID string) (*models.Payment, error) {
	enrollment, course, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrEnrollmentWithdrawn, "enrollment is withdrawn")
	}
	if !course.Active {
		return nil, appErrors.Clone(appErrors.ErrCourseInactive, "course is deactivated")
	}

	paid, err := s.ledger.CountByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read ledger")
	}
	preview := s.buildPreview(enrollment, course, paid, applySurcharge)
	if !preview.CanRegister {
		return nil, appErrors.Clone(appErrors.ErrAlreadyComplete, "all installments are already paid")
	}

	discount := enrollment.DiscountPercent
	surcharge := preview.SurchargePercent
	payment := &models.Payment{
		Context:          models.PaymentContextTuition,
		Amount:           preview.FinalAmount,
		PaidAt:           s.now(),
		EnrollmentID:     &enrollment.ID,
		DiscountPercent:  &discount,
		SurchargePercent: &surcharge,
		RegisteredBy:     actorID,
	}

	if err := s.ledger.RegisterTuition(ctx, payment, enrollment.Installments); err != nil {
		if errors.Is(err, repository.ErrInstallmentsComplete) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyComplete, "installment was registered concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register tuition payment")
	}

	s.invalidateRevenue(ctx, enrollment.CourseID)
	s.logger.Info("tuition payment registered",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("payment_id", payment.ID),
		zap.String("amount", payment.Amount.String()),
		zap.String("actor", actorID))
	return payment, nil
}

func (s *TuitionService) load(ctx context.Context, enrollmentID string) (*models.Enrollment, *models.Course, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	course, err := s.courses.FindByID(ctx, enrollment.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return enrollment, course, nil
}

func (s *TuitionService) buildPreview(enrollment *models.Enrollment, course *models.Course, paid int, applySurcharge bool) *models.TuitionPreview {
	total := enrollment.Installments
	expected := installmentsExpected(enrollment.CreatedAt, s.now(), total)
	overdue := expected - paid
	if overdue < 0 {
		overdue = 0
	}

	base := enrollment.UnitAmount
	discountAmount := base.Mul(enrollment.DiscountPercent).Div(hundred)

	surchargePercent := decimal.Zero
	surchargeAmount := decimal.Zero
	if applySurcharge {
		surchargePercent = course.LateFeePercent
		surchargeAmount = base.Mul(surchargePercent).Div(hundred)
	}

	final := base.Sub(discountAmount).Add(surchargeAmount)
	if final.IsNegative() {
		final = decimal.Zero
	}

	return &models.TuitionPreview{
		EnrollmentID:        enrollment.ID,
		InstallmentsPaid:    paid,
		InstallmentsTotal:   total,
		InstallmentsDue:     expected,
		InstallmentsOverdue: overdue,
		NextInstallmentNo:   paid + 1,
		BaseAmount:          base,
		DiscountPercent:     enrollment.DiscountPercent,
		DiscountAmount:      discountAmount,
		SurchargePercent:    surchargePercent,
		SurchargeAmount:     surchargeAmount,
		SurchargeSuggested:  overdue > 0,
		FinalAmount:         final,
		PaymentState:        models.DerivePaymentState(paid, total),
		CanRegister:         paid < total && enrollment.Status == models.EnrollmentStatusActive && course.Active,
	}
}

func (s *TuitionService) invalidateRevenue(ctx context.Context, courseID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("revenue:%s*", courseID)); err != nil {
		s.logger.Warn("failed to invalidate revenue cache", zap.String("course_id", courseID), zap.Error(err))
	}
}
