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
	appErrors "github.com/mgiraudo/instituto-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Withdraw(ctx context.Context, id string) error
}

type enrollmentLedgerReader interface {
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error)
}

// EnrollStudentRequest describes enrollment creation payload.
type EnrollStudentRequest struct {
	CourseID        string          `json:"course_id" validate:"required"`
	StudentID       string          `json:"student_id" validate:"required"`
	PlanKind        string          `json:"plan_kind" validate:"required,oneof=SINGLE MONTHLY"`
	UnitAmount      decimal.Decimal `json:"unit_amount"`
	Installments    *int            `json:"installments,omitempty"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// EnrollmentService orchestrates enrollment lifecycle and ledger reads.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   billingCourseReader
	ledger    enrollmentLedgerReader
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses billingCourseReader, ledger enrollmentLedgerReader, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:      repo,
		courses:   courses,
		ledger:    ledger,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns enrollments with derived payment state and pagination.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	for i := range enrollments {
		enrollments[i].PaymentState = models.DerivePaymentState(enrollments[i].InstallmentsPaid, enrollments[i].Installments)
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one enrollment with derived payment state.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	detail.PaymentState = models.DerivePaymentState(detail.InstallmentsPaid, detail.Installments)
	return detail, nil
}

// Enroll registers a student to a course under a tuition plan. MONTHLY
// plans default their installment count to the calendar months the
// course spans; SINGLE plans always have exactly one.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if !req.UnitAmount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrInvalidAmount, "unit amount must be positive")
	}
	if req.DiscountPercent.IsNegative() || req.DiscountPercent.GreaterThan(hundred) {
		return nil, appErrors.Clone(appErrors.ErrOutOfRange, "discount percent must be between 0 and 100")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Active {
		return nil, appErrors.Clone(appErrors.ErrCourseInactive, "course is deactivated")
	}

	plan := models.PlanKind(req.PlanKind)
	installments := 1
	if plan == models.PlanMonthly {
		installments = installmentCount(course.StartDate, course.EndDate)
		if req.Installments != nil {
			if *req.Installments < 1 {
				return nil, appErrors.Clone(appErrors.ErrOutOfRange, "installments must be at least 1")
			}
			installments = *req.Installments
		}
	}

	enrollment := &models.Enrollment{
		CourseID:        req.CourseID,
		StudentID:       req.StudentID,
		PlanKind:        plan,
		UnitAmount:      req.UnitAmount,
		Installments:    installments,
		DiscountPercent: req.DiscountPercent,
		Status:          models.EnrollmentStatusActive,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	return s.Get(ctx, enrollment.ID)
}

// Withdraw terminates an enrollment, freezing further tuition payments.
func (s *EnrollmentService) Withdraw(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrEnrollmentWithdrawn, "enrollment already withdrawn")
	}
	if err := s.repo.Withdraw(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
	}
	return s.Get(ctx, id)
}

// ListPayments returns the tuition ledger rows for an enrollment in
// commit order.
func (s *EnrollmentService) ListPayments(ctx context.Context, id string) ([]models.Payment, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	payments, err := s.ledger.ListByEnrollment(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return payments, nil
}
