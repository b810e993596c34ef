package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mgiraudo/instituto-api/internal/models"
	"github.com/mgiraudo/instituto-api/internal/repository"
	"github.com/mgiraudo/instituto-api/pkg/config"
	appErrors "github.com/mgiraudo/instituto-api/pkg/errors"
)

type commissionLedger interface {
	LastCommissionPeriod(ctx context.Context, courseID, professorID string) (*models.CommissionPeriod, error)
	TuitionRevenueInPeriod(ctx context.Context, courseID string, start, end time.Time) (decimal.Decimal, error)
	RegisterCommission(ctx context.Context, payment *models.Payment) error
}

// CommissionService settles revenue-share periods between the institute
// and the professor assigned to a COMMISSION course.
type CommissionService struct {
	ledger  commissionLedger
	courses billingCourseReader
	cache   revenueCacheInvalidator
	policy  config.BillingConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewCommissionService constructs CommissionService.
func NewCommissionService(ledger commissionLedger, courses billingCourseReader, cache revenueCacheInvalidator, policy config.BillingConfig, logger *zap.Logger) *CommissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommissionService{
		ledger:  ledger,
		courses: courses,
		cache:   cache,
		policy:  policy,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Preview quotes the unsettled revenue-share window: from the end of the
// last settled period (or the course start) until now. Revenue is summed
// over [start, end).
func (s *CommissionService) Preview(ctx context.Context, courseID, professorID string) (*models.CommissionPreview, error) {
	course, err := s.loadCommissionCourse(ctx, courseID, professorID)
	if err != nil {
		return nil, err
	}

	start, end, err := s.settleWindow(ctx, course, professorID)
	if err != nil {
		return nil, err
	}

	revenue, err := s.ledger.TuitionRevenueInPeriod(ctx, courseID, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum period revenue")
	}

	rate := *course.CommissionRate
	amount := revenue.Mul(rate)
	return &models.CommissionPreview{
		CourseID:         courseID,
		ProfessorID:      professorID,
		PeriodStart:      start,
		PeriodEnd:        end,
		RevenueInPeriod:  revenue,
		CommissionRate:   rate,
		CommissionAmount: amount,
		CanRegister:      revenue.IsPositive() || s.policy.AllowZeroCommission,
	}, nil
}

// Register commits the settlement for the current window, closing the
// period: its end date becomes the next period's start. The ledger
// rejects overlapping periods committed concurrently.
func (s *CommissionService) Register(ctx context.Context, courseID, professorID, actorID string) (*models.Payment, error) {
	course, err := s.loadCommissionCourse(ctx, courseID, professorID)
	if err != nil {
		return nil, err
	}
	if !course.Active {
		return nil, appErrors.Clone(appErrors.ErrCourseInactive, "course is deactivated")
	}

	start, end, err := s.settleWindow(ctx, course, professorID)
	if err != nil {
		return nil, err
	}

	revenue, err := s.ledger.TuitionRevenueInPeriod(ctx, courseID, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum period revenue")
	}
	if revenue.IsZero() && !s.policy.AllowZeroCommission {
		return nil, appErrors.Clone(appErrors.ErrInvalidPeriod, "no revenue collected in the period")
	}

	amount := revenue.Mul(*course.CommissionRate)
	payment := &models.Payment{
		Context:      models.PaymentContextCommission,
		Amount:       amount,
		PaidAt:       s.now(),
		CourseID:     &course.ID,
		ProfessorID:  &professorID,
		PeriodStart:  &start,
		PeriodEnd:    &end,
		RegisteredBy: actorID,
	}

	if err := s.ledger.RegisterCommission(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrPeriodOverlap) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "period was settled concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register commission settlement")
	}

	s.invalidateRevenue(ctx, course.ID)
	s.logger.Info("commission period settled",
		zap.String("course_id", course.ID),
		zap.String("professor_id", professorID),
		zap.Time("period_start", start),
		zap.Time("period_end", end),
		zap.String("amount", amount.String()),
		zap.String("actor", actorID))
	return payment, nil
}

// settleWindow computes the open settlement window for the course.
func (s *CommissionService) settleWindow(ctx context.Context, course *models.Course, professorID string) (time.Time, time.Time, error) {
	last, err := s.ledger.LastCommissionPeriod(ctx, course.ID, professorID)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load last settled period")
	}

	start := course.StartDate
	if last != nil {
		start = last.PeriodEnd
	}
	end := s.now()
	if !end.After(start) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrInvalidPeriod, "nothing new to settle yet")
	}
	return start, end, nil
}

func (s *CommissionService) loadCommissionCourse(ctx context.Context, courseID, professorID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.Kind != models.CourseKindCommission {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course is not billed by commission")
	}
	if course.ProfessorID == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidPeriod, "no professor assigned to this course")
	}
	if *course.ProfessorID != professorID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "professor is not assigned to this course")
	}
	if course.CommissionRate == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course has no commission rate configured")
	}
	return course, nil
}

func (s *CommissionService) invalidateRevenue(ctx context.Context, courseID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("revenue:%s*", courseID)); err != nil {
		s.logger.Warn("failed to invalidate revenue cache", zap.String("course_id", courseID), zap.Error(err))
	}
}
