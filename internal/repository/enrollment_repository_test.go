package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mgiraudo/instituto-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var enrollmentDetailRows = []string{
	"id", "course_id", "student_id", "plan_kind", "unit_amount", "installments",
	"discount_percent", "points", "status", "version", "created_at", "updated_at",
	"course_name", "course_kind", "installments_paid",
}

func TestEnrollmentRepositoryFindDetailByID(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(enrollmentDetailRows).
		AddRow("enr-1", "course-1", "stu-1", models.PlanMonthly, "15000", 3,
			"10", 0, models.EnrollmentStatusActive, 1, now, now,
			"Piano", models.CourseKindStandard, 2)
	mock.ExpectQuery("SELECT (.+) FROM enrollments e").
		WithArgs("enr-1").
		WillReturnRows(rows)

	detail, err := repo.FindDetailByID(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Equal(t, "Piano", detail.CourseName)
	require.Equal(t, 2, detail.InstallmentsPaid)
	require.True(t, detail.UnitAmount.Equal(decimal.NewFromInt(15000)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListFiltersByStudent(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(enrollmentDetailRows).
		AddRow("enr-1", "course-1", "stu-1", models.PlanMonthly, "15000", 3,
			"10", 0, models.EnrollmentStatusActive, 1, now, now,
			"Piano", models.CourseKindStandard, 0)
	mock.ExpectQuery("SELECT (.+) FROM enrollments e").
		WithArgs("stu-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments e")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	enrollments, total, err := repo.List(context.Background(), models.EnrollmentFilter{StudentID: "stu-1"})
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{
		CourseID:     "course-1",
		StudentID:    "stu-1",
		PlanKind:     models.PlanMonthly,
		UnitAmount:   decimal.NewFromInt(15000),
		Installments: 3,
	}
	err := repo.Create(context.Background(), enrollment)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, 1, enrollment.Version)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateDiscountGuardsStatus(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("UPDATE enrollments SET discount_percent").
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.UpdateDiscount(context.Background(), "enr-1", decimal.NewFromInt(25))
	require.NoError(t, err)
	require.True(t, updated)

	// withdrawn row: the guarded UPDATE touches nothing
	mock.ExpectExec("UPDATE enrollments SET discount_percent").
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err = repo.UpdateDiscount(context.Background(), "enr-1", decimal.NewFromInt(25))
	require.NoError(t, err)
	require.False(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAddPoints(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("UPDATE enrollments SET points = points").
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.AddPoints(context.Background(), "enr-1", 50)
	require.NoError(t, err)
	require.True(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryWithdraw(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("UPDATE enrollments SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Withdraw(context.Background(), "enr-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
