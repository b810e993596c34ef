package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mgiraudo/instituto-api/internal/models"
	"github.com/mgiraudo/instituto-api/internal/repository"
	appErrors "github.com/mgiraudo/instituto-api/pkg/errors"
)

type rentLedger interface {
	PaidRentInstallments(ctx context.Context, courseID string) ([]int, error)
	RegisterRent(ctx context.Context, payment *models.Payment) error
}

// RegisterRentRequest selects the rent installment to settle.
type RegisterRentRequest struct {
	ProfessorID   string `json:"professor_id" validate:"required"`
	InstallmentNo int    `json:"installment_no" validate:"required,min=1"`
}

// RentService computes and registers facility rent installments owed by
// the professor assigned to a RENT course.
type RentService struct {
	ledger    rentLedger
	courses   billingCourseReader
	cache     revenueCacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewRentService constructs RentService.
func NewRentService(ledger rentLedger, courses billingCourseReader, cache revenueCacheInvalidator, validate *validator.Validate, logger *zap.Logger) *RentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RentService{
		ledger:    ledger,
		courses:   courses,
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Preview lists the rent installments still owed for a course.
func (s *RentService) Preview(ctx context.Context, courseID, professorID string) (*models.RentPreview, error) {
	course, err := s.loadRentCourse(ctx, courseID, professorID)
	if err != nil {
		return nil, err
	}

	paid, err := s.ledger.PaidRentInstallments(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read ledger")
	}

	total := *course.RentInstallments
	paidSet := make(map[int]struct{}, len(paid))
	for _, n := range paid {
		paidSet[n] = struct{}{}
	}
	pending := make([]int, 0, total-len(paid))
	for n := 1; n <= total; n++ {
		if _, ok := paidSet[n]; !ok {
			pending = append(pending, n)
		}
	}

	return &models.RentPreview{
		CourseID:             courseID,
		ProfessorID:          professorID,
		TotalInstallments:    total,
		PaidInstallments:     paid,
		PendingInstallments:  pending,
		AmountPerInstallment: *course.MonthlyRentAmount,
	}, nil
}

// Register settles one pending rent installment. A concurrent
// registration of the same number loses with CONFLICT; the caller must
// re-fetch the preview and pick a still-pending number.
func (s *RentService) Register(ctx context.Context, courseID string, req RegisterRentRequest, actorID string) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rent payload")
	}

	course, err := s.loadRentCourse(ctx, courseID, req.ProfessorID)
	if err != nil {
		return nil, err
	}
	if !course.Active {
		return nil, appErrors.Clone(appErrors.ErrCourseInactive, "course is deactivated")
	}
	if req.InstallmentNo > *course.RentInstallments {
		return nil, appErrors.Clone(appErrors.ErrOutOfRange,
			fmt.Sprintf("installment %d exceeds the %d scheduled", req.InstallmentNo, *course.RentInstallments))
	}

	no := req.InstallmentNo
	professorID := req.ProfessorID
	payment := &models.Payment{
		Context:       models.PaymentContextRent,
		Amount:        *course.MonthlyRentAmount,
		PaidAt:        s.now(),
		CourseID:      &course.ID,
		ProfessorID:   &professorID,
		InstallmentNo: &no,
		RegisteredBy:  actorID,
	}

	if err := s.ledger.RegisterRent(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrDuplicateInstallment) {
			return nil, appErrors.Clone(appErrors.ErrConflict,
				fmt.Sprintf("installment %d was registered concurrently", no))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register rent payment")
	}

	s.invalidateRevenue(ctx, course.ID)
	s.logger.Info("rent installment registered",
		zap.String("course_id", course.ID),
		zap.Int("installment_no", no),
		zap.String("actor", actorID))
	return payment, nil
}

func (s *RentService) loadRentCourse(ctx context.Context, courseID, professorID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.Kind != models.CourseKindRent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course is not billed by rent")
	}
	if course.ProfessorID == nil || *course.ProfessorID != professorID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "professor is not assigned to this course")
	}
	if course.MonthlyRentAmount == nil || course.RentInstallments == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course has no rent schedule configured")
	}
	return course, nil
}

func (s *RentService) invalidateRevenue(ctx context.Context, courseID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("revenue:%s*", courseID)); err != nil {
		s.logger.Warn("failed to invalidate revenue cache", zap.String("course_id", courseID), zap.Error(err))
	}
}
