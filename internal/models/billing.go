package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TuitionPreview is the computed quote for the next unpaid tuition
// installment of an enrollment. Preview is a pure read; the amounts are
// re-validated against the ledger inside the registration transaction.
type TuitionPreview struct {
	EnrollmentID        string          `json:"enrollment_id"`
	InstallmentsPaid    int             `json:"installments_paid"`
	InstallmentsTotal   int             `json:"installments_total"`
	InstallmentsDue     int             `json:"installments_due"`
	InstallmentsOverdue int             `json:"installments_overdue"`
	NextInstallmentNo   int             `json:"next_installment_no"`
	BaseAmount          decimal.Decimal `json:"base_amount"`
	DiscountPercent     decimal.Decimal `json:"discount_percent"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	SurchargePercent    decimal.Decimal `json:"surcharge_percent"`
	SurchargeAmount     decimal.Decimal `json:"surcharge_amount"`
	SurchargeSuggested  bool            `json:"surcharge_suggested"`
	FinalAmount         decimal.Decimal `json:"final_amount"`
	PaymentState        PaymentState    `json:"payment_state"`
	CanRegister         bool            `json:"can_register"`
}

// RentPreview lists the rent installments a professor still owes for a
// RENT course.
type RentPreview struct {
	CourseID             string          `json:"course_id"`
	ProfessorID          string          `json:"professor_id"`
	TotalInstallments    int             `json:"total_installments"`
	PaidInstallments     []int           `json:"paid_installments"`
	PendingInstallments  []int           `json:"pending_installments"`
	AmountPerInstallment decimal.Decimal `json:"amount_per_installment"`
}

// CommissionPreview quotes the unsettled revenue-share window for a
// COMMISSION course.
type CommissionPreview struct {
	CourseID         string          `json:"course_id"`
	ProfessorID      string          `json:"professor_id"`
	PeriodStart      time.Time       `json:"period_start"`
	PeriodEnd        time.Time       `json:"period_end"`
	RevenueInPeriod  decimal.Decimal `json:"revenue_in_period"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	CanRegister      bool            `json:"can_register"`
}

// CourseRevenueSummary aggregates collected amounts per context for a
// course. Served from cache when fresh.
type CourseRevenueSummary struct {
	CourseID          string          `json:"course_id"`
	TuitionCollected  decimal.Decimal `json:"tuition_collected"`
	RentCollected     decimal.Decimal `json:"rent_collected"`
	CommissionPaidOut decimal.Decimal `json:"commission_paid_out"`
	PaymentCount      int             `json:"payment_count"`
	GeneratedAt       time.Time       `json:"generated_at"`
}
