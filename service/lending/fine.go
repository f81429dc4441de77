package lending

import "time"

// Fine policy: a loan may be kept 14 calendar days free of charge. The first
// overdue day costs $10 flat, every further day $1.
const (
	graceDays    = 14
	firstDayFine = 10.0
	perDayFine   = 1.0
)

// ComputeFine returns the fine accrued by a loan checked out on checkoutDate,
// evaluated as of asOf. Both arguments are treated as calendar dates; time of
// day is ignored. Deterministic, no clock reads.
func ComputeFine(checkoutDate, asOf time.Time) float64 {
	due := DateOnly(checkoutDate).AddDate(0, 0, graceDays)
	overdueDays := daysBetween(due, DateOnly(asOf))
	if overdueDays <= 0 {
		return 0
	}
	fine := firstDayFine + float64(overdueDays-1)*perDayFine
	if fine < 0 {
		return 0
	}
	return fine
}

// DateOnly strips the time-of-day component. All lending date arithmetic runs
// on these normalized values so that day counts are exact.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}
