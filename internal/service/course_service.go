package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mgiraudo/instituto-api/internal/models"
	"github.com/mgiraudo/instituto-api/pkg/config"
	appErrors "github.com/mgiraudo/instituto-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Deactivate(ctx context.Context, id string) error
}

// CreateCourseRequest describes course creation payload.
type CreateCourseRequest struct {
	Name              string           `json:"name" validate:"required"`
	Kind              string           `json:"kind" validate:"required,oneof=STANDARD RENT COMMISSION"`
	StartDate         time.Time        `json:"start_date" validate:"required"`
	EndDate           time.Time        `json:"end_date" validate:"required"`
	ProfessorID       *string          `json:"professor_id,omitempty"`
	MonthlyRentAmount *decimal.Decimal `json:"monthly_rent_amount,omitempty"`
	RentInstallments  *int             `json:"rent_installments,omitempty"`
	CommissionRate    *decimal.Decimal `json:"commission_rate,omitempty"`
	LateFeePercent    *decimal.Decimal `json:"late_fee_percent,omitempty"`
}

// UpdateCourseRequest describes course update payload.
type UpdateCourseRequest struct {
	Name              string           `json:"name" validate:"required"`
	StartDate         time.Time        `json:"start_date" validate:"required"`
	EndDate           time.Time        `json:"end_date" validate:"required"`
	ProfessorID       *string          `json:"professor_id,omitempty"`
	MonthlyRentAmount *decimal.Decimal `json:"monthly_rent_amount,omitempty"`
	RentInstallments  *int             `json:"rent_installments,omitempty"`
	CommissionRate    *decimal.Decimal `json:"commission_rate,omitempty"`
	LateFeePercent    *decimal.Decimal `json:"late_fee_percent,omitempty"`
}

// CourseService manages the course directory.
type CourseService struct {
	repo      courseRepository
	billing   config.BillingConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, billing config.BillingConfig, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, billing: billing, validator: validate, logger: logger}
}

// List returns courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a new course, seeding billing defaults from config
// where the payload leaves them out.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	kind := models.CourseKind(req.Kind)
	if err := s.validateKind(kind, req.ProfessorID, req.MonthlyRentAmount, req.RentInstallments, req.CommissionRate); err != nil {
		return nil, err
	}

	lateFee := decimal.NewFromFloat(s.billing.DefaultSurchargePercent)
	if req.LateFeePercent != nil {
		lateFee = *req.LateFeePercent
	}
	commissionRate := req.CommissionRate
	if kind == models.CourseKindCommission && commissionRate == nil {
		rate := decimal.NewFromFloat(s.billing.DefaultCommissionRate)
		commissionRate = &rate
	}

	course := &models.Course{
		Name:              req.Name,
		Kind:              kind,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		ProfessorID:       req.ProfessorID,
		MonthlyRentAmount: req.MonthlyRentAmount,
		RentInstallments:  req.RentInstallments,
		CommissionRate:    commissionRate,
		LateFeePercent:    lateFee,
		Active:            true,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update edits course fields; the billing kind is immutable once set.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validateKind(course.Kind, req.ProfessorID, req.MonthlyRentAmount, req.RentInstallments, req.CommissionRate); err != nil {
		return nil, err
	}

	course.Name = req.Name
	course.StartDate = req.StartDate
	course.EndDate = req.EndDate
	course.ProfessorID = req.ProfessorID
	course.MonthlyRentAmount = req.MonthlyRentAmount
	course.RentInstallments = req.RentInstallments
	if req.CommissionRate != nil {
		course.CommissionRate = req.CommissionRate
	}
	if req.LateFeePercent != nil {
		course.LateFeePercent = *req.LateFeePercent
	}
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// Deactivate soft-deletes a course.
func (s *CourseService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate course")
	}
	return nil
}

func (s *CourseService) validateKind(kind models.CourseKind, professorID *string, rentAmount *decimal.Decimal, rentInstallments *int, commissionRate *decimal.Decimal) error {
	switch kind {
	case models.CourseKindRent:
		if professorID == nil {
			return appErrors.Clone(appErrors.ErrValidation, "rent courses require an assigned professor")
		}
		if rentAmount == nil || !rentAmount.IsPositive() {
			return appErrors.Clone(appErrors.ErrValidation, "rent courses require a positive monthly rent amount")
		}
		if rentInstallments == nil || *rentInstallments < 1 {
			return appErrors.Clone(appErrors.ErrValidation, "rent courses require at least one installment")
		}
	case models.CourseKindCommission:
		if professorID == nil {
			return appErrors.Clone(appErrors.ErrValidation, "commission courses require an assigned professor")
		}
		if commissionRate != nil && (commissionRate.IsNegative() || commissionRate.GreaterThan(decimal.NewFromInt(1))) {
			return appErrors.Clone(appErrors.ErrOutOfRange, "commission rate must be a fraction between 0 and 1")
		}
	}
	return nil
}
