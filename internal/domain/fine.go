package domain

import "time"

// IsOverdue reports whether the loan's due date is strictly before today.
func IsOverdue(loan *Loan, today time.Time) bool {
	return DateOf(today).After(DateOf(loan.DueAt))
}

// DaysOverdue returns the whole days elapsed past the due date. The
// second return is false when the loan is not overdue; a loan due today
// is not overdue.
func DaysOverdue(loan *Loan, today time.Time) (int, bool) {
	if !IsOverdue(loan, today) {
		return 0, false
	}
	days := int(DateOf(today).Sub(DateOf(loan.DueAt)).Hours() / 24)
	return days, true
}

// FineAmount is days overdue times the caller-supplied daily rate, or
// 0 for a loan that is not overdue.
func FineAmount(loan *Loan, today time.Time, dailyRate float64) float64 {
	days, overdue := DaysOverdue(loan, today)
	if !overdue {
		return 0
	}
	return float64(days) * dailyRate
}
