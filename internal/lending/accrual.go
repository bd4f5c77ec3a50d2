// internal/lending/accrual.go
package lending

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultLateFeePerDay is charged for each calendar day past the deadline.
var DefaultLateFeePerDay = decimal.RequireFromString("0.5")

// RecomputeFee applies the late-fee rule to fee as of now. Paid fees are
// returned unchanged. Days are calendar days in now's location, so calling
// it twice on the same day gives the same amount. The amount never drops
// below zero.
func RecomputeFee(fee Fee, now time.Time, ratePerDay decimal.Decimal) Fee {
	if fee.AlreadyPaid {
		return fee
	}
	if late := DaysLate(now, fee.Deadline); late > 0 {
		fee.Amount = ratePerDay.Mul(decimal.NewFromInt(late))
	}
	if fee.Amount.IsNegative() {
		fee.Amount = decimal.Zero
	}
	return fee
}

// DaysLate counts the calendar days from deadline to now, both taken in
// now's location. It is negative while the deadline is in the future.
func DaysLate(now, deadline time.Time) int64 {
	return civilDay(now) - civilDay(deadline.In(now.Location()))
}

func civilDay(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
