package lending

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

var (
	deadline = time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)
	half     = decimal.RequireFromString("0.5")
)

func TestRecomputeFee(t *testing.T) {
	tests := []struct {
		name string
		fee  Fee
		now  time.Time
		want string
	}{
		{"before deadline", Fee{Deadline: deadline}, deadline.Add(-time.Hour), "0"},
		{"deadline day", Fee{Deadline: deadline}, deadline.Add(5 * time.Hour), "0"},
		{"one day late", Fee{Deadline: deadline}, deadline.AddDate(0, 0, 1), "0.5"},
		{"three days late", Fee{Deadline: deadline}, deadline.AddDate(0, 0, 3), "1.5"},
		{"overwrites stale amount", Fee{Deadline: deadline, Amount: decimal.NewFromInt(9)}, deadline.AddDate(0, 0, 2), "1"},
		{"keeps amount while on time", Fee{Deadline: deadline, Amount: decimal.NewFromInt(2)}, deadline, "2"},
		{"clamps negative", Fee{Deadline: deadline, Amount: decimal.NewFromInt(-4)}, deadline, "0"},
		{"paid is frozen", Fee{Deadline: deadline, Amount: decimal.NewFromInt(1), AlreadyPaid: true}, deadline.AddDate(0, 0, 30), "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecomputeFee(tt.fee, tt.now, half)
			assert.True(t, got.Amount.Equal(decimal.RequireFromString(tt.want)), "got %s", got.Amount)
		})
	}
}

func TestDaysLate_CalendarDaysInNowLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)

	// 23:00 UTC on the deadline day is already the next day in Tokyo.
	late := DaysLate(time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC).In(tokyo), deadline)
	assert.Equal(t, int64(1), late)

	assert.Equal(t, int64(0), DaysLate(time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC), deadline))
	assert.Equal(t, int64(-9), DaysLate(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), deadline))
}

func TestRecomputeFee_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fee := Fee{
			Deadline:    deadline,
			Amount:      decimal.New(rapid.Int64Range(-1000, 1000).Draw(t, "cents"), -2),
			AlreadyPaid: rapid.Bool().Draw(t, "paid"),
		}
		now := deadline.Add(time.Duration(rapid.Int64Range(-90*24, 90*24).Draw(t, "hours")) * time.Hour)
		later := now.Add(time.Duration(rapid.Int64Range(0, 30*24).Draw(t, "wait")) * time.Hour)

		once := RecomputeFee(fee, now, half)
		twice := RecomputeFee(once, now, half)
		if !once.Amount.Equal(twice.Amount) {
			t.Fatalf("not idempotent: %s then %s", once.Amount, twice.Amount)
		}
		if fee.AlreadyPaid && !once.Amount.Equal(fee.Amount) {
			t.Fatalf("paid fee changed from %s to %s", fee.Amount, once.Amount)
		}
		if !fee.AlreadyPaid && once.Amount.IsNegative() {
			t.Fatalf("negative amount %s", once.Amount)
		}
		if DaysLate(now, deadline) > 0 {
			if RecomputeFee(once, later, half).Amount.LessThan(once.Amount) {
				t.Fatalf("amount decreased between %v and %v", now, later)
			}
		}
	})
}

func TestParseStockPolicy(t *testing.T) {
	p, err := ParseStockPolicy("legacy")
	assert.NoError(t, err)
	assert.Equal(t, StockLegacy, p)

	_, err = ParseStockPolicy("lenient")
	assert.Error(t, err)
}
