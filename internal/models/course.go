package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CourseKind selects the billing regime of a course.
type CourseKind string

// Supported billing regimes.
const (
	// CourseKindStandard bills students tuition installments only.
	CourseKindStandard CourseKind = "STANDARD"
	// CourseKindRent bills the assigned professor a fixed monthly rent.
	CourseKindRent CourseKind = "RENT"
	// CourseKindCommission shares collected tuition revenue with the
	// assigned professor.
	CourseKindCommission CourseKind = "COMMISSION"
)

// CourseSchedule is the derived scheduling state of a course.
type CourseSchedule string

const (
	CourseNotStarted CourseSchedule = "NOT_STARTED"
	CourseInProgress CourseSchedule = "IN_PROGRESS"
	CourseFinished   CourseSchedule = "FINISHED"
)

// Course represents an offered course and its billing configuration.
type Course struct {
	ID                string           `db:"id" json:"id"`
	Name              string           `db:"name" json:"name"`
	Kind              CourseKind       `db:"kind" json:"kind"`
	StartDate         time.Time        `db:"start_date" json:"start_date"`
	EndDate           time.Time        `db:"end_date" json:"end_date"`
	ProfessorID       *string          `db:"professor_id" json:"professor_id,omitempty"`
	MonthlyRentAmount *decimal.Decimal `db:"monthly_rent_amount" json:"monthly_rent_amount,omitempty"`
	RentInstallments  *int             `db:"rent_installments" json:"rent_installments,omitempty"`
	CommissionRate    *decimal.Decimal `db:"commission_rate" json:"commission_rate,omitempty"`
	LateFeePercent    decimal.Decimal  `db:"late_fee_percent" json:"late_fee_percent"`
	Active            bool             `db:"active" json:"active"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// Schedule derives the scheduling state from the course date range.
func (c *Course) Schedule(now time.Time) CourseSchedule {
	switch {
	case now.Before(c.StartDate):
		return CourseNotStarted
	case now.After(c.EndDate):
		return CourseFinished
	default:
		return CourseInProgress
	}
}

// CourseFilter captures filtering criteria for listing courses.
type CourseFilter struct {
	Kind        CourseKind
	ProfessorID string
	Active      *bool
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
