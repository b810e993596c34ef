package service

import "time"

// installmentCount returns the number of monthly billing periods spanned
// by the date range, counting both boundary months. Degenerate ranges
// (end before start) collapse to a single installment.
func installmentCount(start, end time.Time) int {
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month()) + 1
	if months < 1 {
		return 1
	}
	return months
}

// installmentsExpected is the number of installments a plan should have
// collected by now, capped at the plan total.
func installmentsExpected(enrolledAt, now time.Time, total int) int {
	expected := installmentCount(enrolledAt, now)
	if expected > total {
		return total
	}
	return expected
}
