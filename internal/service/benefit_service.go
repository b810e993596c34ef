package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mgiraudo/instituto-api/internal/models"
	appErrors "github.com/mgiraudo/instituto-api/pkg/errors"
)

type benefitEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	UpdateDiscount(ctx context.Context, id string, percent decimal.Decimal) (bool, error)
	AddPoints(ctx context.Context, id string, delta int) (bool, error)
}

// SetDiscountRequest updates the discount percentage of an enrollment.
type SetDiscountRequest struct {
	Percent decimal.Decimal `json:"percent"`
}

// AddPointsRequest credits loyalty points to an enrollment.
type AddPointsRequest struct {
	Delta int `json:"delta"`
}

// BenefitService mutates discount and loyalty points on enrollments.
// These writes go through guarded single-row UPDATEs, so they serialize
// against concurrent tuition registrations locking the same row.
type BenefitService struct {
	repo      benefitEnrollmentRepository
	courses   billingCourseReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBenefitService constructs BenefitService.
func NewBenefitService(repo benefitEnrollmentRepository, courses billingCourseReader, validate *validator.Validate, logger *zap.Logger) *BenefitService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BenefitService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// SetDiscountPercent sets the enrollment discount, bounded to [0, 100].
func (s *BenefitService) SetDiscountPercent(ctx context.Context, enrollmentID string, req SetDiscountRequest, actorID string) error {
	if req.Percent.IsNegative() || req.Percent.GreaterThan(hundred) {
		return appErrors.Clone(appErrors.ErrOutOfRange, "discount percent must be between 0 and 100")
	}

	if err := s.requireActive(ctx, enrollmentID); err != nil {
		return err
	}

	updated, err := s.repo.UpdateDiscount(ctx, enrollmentID, req.Percent)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update discount")
	}
	if !updated {
		return appErrors.Clone(appErrors.ErrEnrollmentWithdrawn, "enrollment is withdrawn")
	}

	s.logger.Info("discount updated",
		zap.String("enrollment_id", enrollmentID),
		zap.String("percent", req.Percent.String()),
		zap.String("actor", actorID))
	return nil
}

// AddPoints credits loyalty points; the delta must be positive and the
// counter only ever grows.
func (s *BenefitService) AddPoints(ctx context.Context, enrollmentID string, req AddPointsRequest, actorID string) error {
	if req.Delta <= 0 {
		return appErrors.Clone(appErrors.ErrInvalidAmount, "points delta must be positive")
	}

	if err := s.requireActive(ctx, enrollmentID); err != nil {
		return err
	}

	updated, err := s.repo.AddPoints(ctx, enrollmentID, req.Delta)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add points")
	}
	if !updated {
		return appErrors.Clone(appErrors.ErrEnrollmentWithdrawn, "enrollment is withdrawn")
	}

	s.logger.Info("points credited",
		zap.String("enrollment_id", enrollmentID),
		zap.Int("delta", req.Delta),
		zap.String("actor", actorID))
	return nil
}

func (s *BenefitService) requireActive(ctx context.Context, enrollmentID string) error {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return appErrors.Clone(appErrors.ErrEnrollmentWithdrawn, "enrollment is withdrawn")
	}
	course, err := s.courses.FindByID(ctx, enrollment.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Active {
		return appErrors.Clone(appErrors.ErrCourseInactive, "course is deactivated")
	}
	return nil
}
