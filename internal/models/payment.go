package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentContext identifies the obligation a ledger row settles.
type PaymentContext string

const (
	// PaymentContextTuition settles one tuition installment of an enrollment.
	PaymentContextTuition PaymentContext = "TUITION"
	// PaymentContextRent settles one facility rent installment of a course.
	PaymentContextRent PaymentContext = "RENT"
	// PaymentContextCommission settles a revenue-share period with a professor.
	PaymentContextCommission PaymentContext = "COMMISSION"
)

// Payment is one immutable ledger row. Exactly one owning-context group
// is populated: enrollment_id for tuition, (course_id, installment_no)
// for rent, (course_id, professor_id, period_start, period_end) for
// commission. Rows are never updated or deleted; corrections happen
// administratively outside this service.
type Payment struct {
	ID      string          `db:"id" json:"id"`
	Context PaymentContext  `db:"context" json:"context"`
	Amount  decimal.Decimal `db:"amount" json:"amount"`
	PaidAt  time.Time       `db:"paid_at" json:"paid_at"`

	EnrollmentID *string `db:"enrollment_id" json:"enrollment_id,omitempty"`
	CourseID     *string `db:"course_id" json:"course_id,omitempty"`
	ProfessorID  *string `db:"professor_id" json:"professor_id,omitempty"`

	// InstallmentNo numbers the settled installment (tuition and rent).
	InstallmentNo *int `db:"installment_no" json:"installment_no,omitempty"`

	// Snapshots taken at registration time for tuition rows. They are
	// never recomputed from the enrollment afterwards.
	DiscountPercent  *decimal.Decimal `db:"discount_percent" json:"discount_percent,omitempty"`
	SurchargePercent *decimal.Decimal `db:"surcharge_percent" json:"surcharge_percent,omitempty"`

	PeriodStart *time.Time `db:"period_start" json:"period_start,omitempty"`
	PeriodEnd   *time.Time `db:"period_end" json:"period_end,omitempty"`

	RegisteredBy string    `db:"registered_by" json:"registered_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// CommissionPeriod is a settled revenue-share window for a course and
// professor. Periods are contiguous: each period's end is the next
// period's start.
type CommissionPeriod struct {
	PeriodStart time.Time       `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time       `db:"period_end" json:"period_end"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
}
