package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
)

// PlanKind is the chosen tuition schedule for an enrollment.
type PlanKind string

const (
	// PlanSingle is one lump-sum payment.
	PlanSingle PlanKind = "SINGLE"
	// PlanMonthly spreads tuition over monthly installments.
	PlanMonthly PlanKind = "MONTHLY"
)

// PaymentState is derived from the ledger on read; it is never stored.
type PaymentState string

const (
	PaymentStatePending  PaymentState = "PENDING"
	PaymentStatePartial  PaymentState = "PARTIAL"
	PaymentStateComplete PaymentState = "COMPLETE"
)

// Enrollment registers a student to a course under a tuition plan.
type Enrollment struct {
	ID              string           `db:"id" json:"id"`
	CourseID        string           `db:"course_id" json:"course_id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	PlanKind        PlanKind         `db:"plan_kind" json:"plan_kind"`
	UnitAmount      decimal.Decimal  `db:"unit_amount" json:"unit_amount"`
	Installments    int              `db:"installments" json:"installments"`
	DiscountPercent decimal.Decimal  `db:"discount_percent" json:"discount_percent"`
	Points          int              `db:"points" json:"points"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	Version         int              `db:"version" json:"-"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with course info and the derived
// payment state.
type EnrollmentDetail struct {
	Enrollment
	CourseName       string       `db:"course_name" json:"course_name"`
	CourseKind       CourseKind   `db:"course_kind" json:"course_kind"`
	InstallmentsPaid int          `db:"installments_paid" json:"installments_paid"`
	PaymentState     PaymentState `db:"-" json:"payment_state"`
}

// DerivePaymentState computes the payment state from the ledger count.
// Kept as a pure function so stored state can never drift from the
// payments actually committed.
func DerivePaymentState(installmentsPaid, installmentsTotal int) PaymentState {
	switch {
	case installmentsPaid <= 0:
		return PaymentStatePending
	case installmentsPaid < installmentsTotal:
		return PaymentStatePartial
	default:
		return PaymentStateComplete
	}
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
