package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/mgiraudo/instituto-api/internal/models"
)

// Sentinel errors surfaced by the ledger so services can translate them
// into the API error vocabulary.
var (
	// ErrInstallmentsComplete signals the enrollment already holds a
	// ledger row for every plan installment.
	ErrInstallmentsComplete = errors.New("all plan installments already settled")
	// ErrDuplicateInstallment signals a rent installment number that was
	// registered concurrently.
	ErrDuplicateInstallment = errors.New("installment already settled")
	// ErrPeriodOverlap signals a commission period that overlaps an
	// already committed one.
	ErrPeriodOverlap = errors.New("commission period overlaps a settled period")
)

const pqUniqueViolation = "23505"

// PaymentRepository is the obligation ledger. Rows are append-only:
// there is no update or delete path through this type.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, context, amount, paid_at, enrollment_id, course_id, professor_id,
        installment_no, discount_percent, surcharge_percent, period_start, period_end, registered_by, created_at`

// ListByEnrollment returns tuition payments for an enrollment ordered by
// payment time ascending.
func (r *PaymentRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE enrollment_id = $1 AND context = $2 ORDER BY paid_at ASC, created_at ASC`, paymentColumns)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, enrollmentID, models.PaymentContextTuition); err != nil {
		return nil, fmt.Errorf("list tuition payments: %w", err)
	}
	return payments, nil
}

// CountByEnrollment returns how many tuition installments are settled.
func (r *PaymentRepository) CountByEnrollment(ctx context.Context, enrollmentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM payments WHERE enrollment_id = $1 AND context = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, enrollmentID, models.PaymentContextTuition); err != nil {
		return 0, fmt.Errorf("count tuition payments: %w", err)
	}
	return count, nil
}

// PaidRentInstallments returns the settled rent installment numbers for
// a course in ascending order.
func (r *PaymentRepository) PaidRentInstallments(ctx context.Context, courseID string) ([]int, error) {
	const query = `SELECT installment_no FROM payments WHERE course_id = $1 AND context = $2 ORDER BY installment_no ASC`
	var numbers []int
	if err := r.db.SelectContext(ctx, &numbers, query, courseID, models.PaymentContextRent); err != nil {
		return nil, fmt.Errorf("list paid rent installments: %w", err)
	}
	return numbers, nil
}

// LastCommissionPeriod returns the most recently settled commission
// period for the course/professor pair, or nil when none exists.
func (r *PaymentRepository) LastCommissionPeriod(ctx context.Context, courseID, professorID string) (*models.CommissionPeriod, error) {
	const query = `SELECT period_start, period_end, amount FROM payments
        WHERE course_id = $1 AND professor_id = $2 AND context = $3
        ORDER BY period_end DESC LIMIT 1`
	var period models.CommissionPeriod
	if err := r.db.GetContext(ctx, &period, query, courseID, professorID, models.PaymentContextCommission); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find last commission period: %w", err)
	}
	return &period, nil
}

// ListCommissionPeriods returns settled periods ordered by start date.
func (r *PaymentRepository) ListCommissionPeriods(ctx context.Context, courseID, professorID string) ([]models.CommissionPeriod, error) {
	const query = `SELECT period_start, period_end, amount FROM payments
        WHERE course_id = $1 AND professor_id = $2 AND context = $3
        ORDER BY period_start ASC`
	var periods []models.CommissionPeriod
	if err := r.db.SelectContext(ctx, &periods, query, courseID, professorID, models.PaymentContextCommission); err != nil {
		return nil, fmt.Errorf("list commission periods: %w", err)
	}
	return periods, nil
}

// TuitionRevenueInPeriod sums tuition collected for a course within
// [start, end). The end bound is exclusive so a payment stamped exactly
// at a period boundary belongs to the following period.
func (r *PaymentRepository) TuitionRevenueInPeriod(ctx context.Context, courseID string, start, end time.Time) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(p.amount), 0) FROM payments p
        JOIN enrollments e ON e.id = p.enrollment_id
        WHERE e.course_id = $1 AND p.context = $2 AND p.paid_at >= $3 AND p.paid_at < $4`
	var revenue decimal.Decimal
	if err := r.db.GetContext(ctx, &revenue, query, courseID, models.PaymentContextTuition, start, end); err != nil {
		return decimal.Zero, fmt.Errorf("sum tuition revenue: %w", err)
	}
	return revenue, nil
}

// RevenueSummary aggregates ledger totals per context for a course.
func (r *PaymentRepository) RevenueSummary(ctx context.Context, courseID string) (*models.CourseRevenueSummary, error) {
	const query = `SELECT
        COALESCE(SUM(p.amount) FILTER (WHERE p.context = 'TUITION'), 0) AS tuition_collected,
        COALESCE(SUM(p.amount) FILTER (WHERE p.context = 'RENT'), 0) AS rent_collected,
        COALESCE(SUM(p.amount) FILTER (WHERE p.context = 'COMMISSION'), 0) AS commission_paid_out,
        COUNT(*) AS payment_count
        FROM payments p
        LEFT JOIN enrollments e ON e.id = p.enrollment_id
        WHERE p.course_id = $1 OR e.course_id = $1`
	row := struct {
		TuitionCollected  decimal.Decimal `db:"tuition_collected"`
		RentCollected     decimal.Decimal `db:"rent_collected"`
		CommissionPaidOut decimal.Decimal `db:"commission_paid_out"`
		PaymentCount      int             `db:"payment_count"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, courseID); err != nil {
		return nil, fmt.Errorf("course revenue summary: %w", err)
	}
	return &models.CourseRevenueSummary{
		CourseID:          courseID,
		TuitionCollected:  row.TuitionCollected,
		RentCollected:     row.RentCollected,
		CommissionPaidOut: row.CommissionPaidOut,
		PaymentCount:      row.PaymentCount,
		GeneratedAt:       time.Now().UTC(),
	}, nil
}

// RegisterTuition appends a tuition payment after re-verifying the plan
// limit under a row lock on the enrollment. The lock serializes
// registrations against each other and against discount/point edits on
// the same enrollment, so the snapshot written here cannot race.
func (r *PaymentRepository) RegisterTuition(ctx context.Context, payment *models.Payment, planInstallments int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tuition registration: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var version int
	if err := tx.GetContext(ctx, &version, `SELECT version FROM enrollments WHERE id = $1 FOR UPDATE`, *payment.EnrollmentID); err != nil {
		return fmt.Errorf("lock enrollment: %w", err)
	}

	var settled int
	if err := tx.GetContext(ctx, &settled, `SELECT COUNT(*) FROM payments WHERE enrollment_id = $1 AND context = $2`,
		*payment.EnrollmentID, models.PaymentContextTuition); err != nil {
		return fmt.Errorf("recount settled installments: %w", err)
	}
	if settled >= planInstallments {
		return ErrInstallmentsComplete
	}

	no := settled + 1
	payment.InstallmentNo = &no
	if err := r.insert(ctx, tx, payment); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tuition registration: %w", err)
	}
	return nil
}

// RegisterRent appends a rent payment for one installment number. The
// course row lock plus the unique (course_id, installment_no) index
// guarantee that of two concurrent attempts exactly one succeeds.
func (r *PaymentRepository) RegisterRent(ctx context.Context, payment *models.Payment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rent registration: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var courseID string
	if err := tx.GetContext(ctx, &courseID, `SELECT id FROM courses WHERE id = $1 FOR UPDATE`, *payment.CourseID); err != nil {
		return fmt.Errorf("lock course: %w", err)
	}

	var exists int
	err = tx.GetContext(ctx, &exists, `SELECT 1 FROM payments WHERE course_id = $1 AND installment_no = $2 AND context = $3 LIMIT 1`,
		*payment.CourseID, *payment.InstallmentNo, models.PaymentContextRent)
	if err == nil {
		return ErrDuplicateInstallment
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check rent installment: %w", err)
	}

	if err := r.insert(ctx, tx, payment); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rent registration: %w", err)
	}
	return nil
}

// RegisterCommission appends a commission settlement after verifying the
// period does not overlap a committed one for the same course/professor.
func (r *PaymentRepository) RegisterCommission(ctx context.Context, payment *models.Payment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commission settlement: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var courseID string
	if err := tx.GetContext(ctx, &courseID, `SELECT id FROM courses WHERE id = $1 FOR UPDATE`, *payment.CourseID); err != nil {
		return fmt.Errorf("lock course: %w", err)
	}

	var overlap int
	err = tx.GetContext(ctx, &overlap, `SELECT 1 FROM payments
        WHERE course_id = $1 AND professor_id = $2 AND context = $3
        AND period_start < $4 AND period_end > $5 LIMIT 1`,
		*payment.CourseID, *payment.ProfessorID, models.PaymentContextCommission,
		*payment.PeriodEnd, *payment.PeriodStart)
	if err == nil {
		return ErrPeriodOverlap
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check commission overlap: %w", err)
	}

	if err := r.insert(ctx, tx, payment); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit commission settlement: %w", err)
	}
	return nil
}

// insert appends the row. Unique violations from the backstop indexes on
// (course_id, installment_no) and (course_id, professor_id,
// period_start) map to the ledger conflict sentinels.
func (r *PaymentRepository) insert(ctx context.Context, tx *sqlx.Tx, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = time.Now().UTC()
	}
	payment.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO payments (id, context, amount, paid_at, enrollment_id, course_id, professor_id,
        installment_no, discount_percent, surcharge_percent, period_start, period_end, registered_by, created_at)
        VALUES (:id, :context, :amount, :paid_at, :enrollment_id, :course_id, :professor_id,
        :installment_no, :discount_percent, :surcharge_percent, :period_start, :period_end, :registered_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, payment); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			if payment.Context == models.PaymentContextCommission {
				return ErrPeriodOverlap
			}
			return ErrDuplicateInstallment
		}
		return fmt.Errorf("append payment: %w", err)
	}
	return nil
}
