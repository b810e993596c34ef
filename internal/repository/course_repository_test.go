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

func newCourseRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var courseRows = []string{
	"id", "name", "kind", "start_date", "end_date", "professor_id", "monthly_rent_amount",
	"rent_installments", "commission_rate", "late_fee_percent", "active", "created_at", "updated_at",
}

func TestCourseRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(courseRows).
		AddRow("course-2", "Ceramics Studio", models.CourseKindRent, now, now.AddDate(0, 6, 0),
			"prof-1", "80000", 6, nil, "10", true, now, now)
	mock.ExpectQuery("SELECT (.+) FROM courses WHERE id = \\$1").
		WithArgs("course-2").
		WillReturnRows(rows)

	course, err := repo.FindByID(context.Background(), "course-2")
	require.NoError(t, err)
	require.Equal(t, models.CourseKindRent, course.Kind)
	require.NotNil(t, course.MonthlyRentAmount)
	require.True(t, course.MonthlyRentAmount.Equal(decimal.NewFromInt(80000)))
	require.NotNil(t, course.RentInstallments)
	require.Equal(t, 6, *course.RentInstallments)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryListFiltersByKind(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(courseRows).
		AddRow("course-3", "Jazz Ensemble", models.CourseKindCommission, now, now.AddDate(1, 0, 0),
			"prof-1", nil, nil, "0.35", "10", true, now, now)
	mock.ExpectQuery("SELECT (.+) FROM courses WHERE 1=1 AND kind = \\$1").
		WithArgs(models.CourseKindCommission).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses WHERE 1=1 AND kind = $1")).
		WithArgs(models.CourseKindCommission).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	courses, total, err := repo.List(context.Background(), models.CourseFilter{Kind: models.CourseKindCommission})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("INSERT INTO courses").
		WillReturnResult(sqlmock.NewResult(0, 1))

	course := &models.Course{
		Name:           "Piano",
		Kind:           models.CourseKindStandard,
		StartDate:      time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC),
		LateFeePercent: decimal.NewFromInt(10),
		Active:         true,
	}
	err := repo.Create(context.Background(), course)
	require.NoError(t, err)
	require.NotEmpty(t, course.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryDeactivate(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("UPDATE courses SET active = FALSE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Deactivate(context.Background(), "course-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
