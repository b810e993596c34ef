package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/mgiraudo/instituto-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `e.id, e.course_id, e.student_id, e.plan_kind, e.unit_amount, e.installments,
        e.discount_percent, e.points, e.status, e.version, e.created_at, e.updated_at`

// List returns enrollments with course context and settled installment
// counts. Payment state is derived by the service from the count.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN courses c ON c.id = e.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":  "e.created_at",
		"course_name": "c.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s, c.name AS course_name, c.kind AS course_kind,
        (SELECT COUNT(*) FROM payments p WHERE p.enrollment_id = e.id AND p.context = 'TUITION') AS installments_paid
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, enrollmentColumns, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments e WHERE e.id = $1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with course context and settled
// installment count.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s, c.name AS course_name, c.kind AS course_kind,
        (SELECT COUNT(*) FROM payments p WHERE p.enrollment_id = e.id AND p.context = 'TUITION') AS installments_paid
        FROM enrollments e
        JOIN courses c ON c.id = e.course_id
        WHERE e.id = $1`, enrollmentColumns)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	enrollment.Version = 1
	const query = `INSERT INTO enrollments (id, course_id, student_id, plan_kind, unit_amount, installments,
        discount_percent, points, status, version, created_at, updated_at)
        VALUES (:id, :course_id, :student_id, :plan_kind, :unit_amount, :installments,
        :discount_percent, :points, :status, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Withdraw freezes an enrollment; no further tuition payments can be
// registered against it.
func (r *EnrollmentRepository) Withdraw(ctx context.Context, id string) error {
	const query = `UPDATE enrollments SET status = $2, version = version + 1, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusWithdrawn, time.Now().UTC()); err != nil {
		return fmt.Errorf("withdraw enrollment: %w", err)
	}
	return nil
}

// UpdateDiscount sets the discount percentage for an active enrollment.
// The single UPDATE takes the row lock, so it serializes against a
// concurrent tuition registration holding the same row FOR UPDATE.
// Returns false when the enrollment is not active.
func (r *EnrollmentRepository) UpdateDiscount(ctx context.Context, id string, percent decimal.Decimal) (bool, error) {
	const query = `UPDATE enrollments SET discount_percent = $2, version = version + 1, updated_at = $3
        WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, percent, time.Now().UTC(), models.EnrollmentStatusActive)
	if err != nil {
		return false, fmt.Errorf("update discount: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update discount rows: %w", err)
	}
	return affected > 0, nil
}

// AddPoints increments the loyalty point counter for an active
// enrollment. Returns false when the enrollment is not active.
func (r *EnrollmentRepository) AddPoints(ctx context.Context, id string, delta int) (bool, error) {
	const query = `UPDATE enrollments SET points = points + $2, version = version + 1, updated_at = $3
        WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, delta, time.Now().UTC(), models.EnrollmentStatusActive)
	if err != nil {
		return false, fmt.Errorf("add points: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add points rows: %w", err)
	}
	return affected > 0, nil
}
