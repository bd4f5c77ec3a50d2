package invoice

import (
	"testing"
	"time"

	"onlinelibrary/internal/edifact"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func fixedClock() time.Time {
	return time.Date(2024, 1, 5, 10, 30, 0, 0, time.UTC)
}

func sampleRecord() Record {
	return Record{
		BorrowingID: 7,
		BorrowDate:  time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		UserName:    "alice@example.com",
		Amount:      decimal.NewFromInt(3),
	}
}

func TestBuild_Text(t *testing.T) {
	b := NewBuilder(Envelope{}, fixedClock)

	msg, err := b.Build(sampleRecord())
	require.NoError(t, err)

	want := "UNA:+,? '" +
		"UNB+UNOC?:2:LibraryID:ClientID:240105?:1030:ExampleReferenceNumber123'" +
		"UNG+Borrowing:7:LibraryID:240105?:1030:ExampleReferenceNumber123'" +
		"UNE+NumberOfSegments:ReferenceNumber'" +
		"UNH+MessageReference:Borrowing:1:OnlineLibrary'" +
		"BGM+BORROWING:7'" +
		"DTM+Borrowing date:01.01.2024'" +
		"NAD+Borrower:User:alice@example.com:'" +
		"MOA+1:3:$'" +
		"UNT+NumberOfSegments:MessageReference'" +
		"UNZ+NumberOfGroups:InterchangeReference'"
	assert.Equal(t, want, msg.Text)
	require.Len(t, msg.Segments, 10)
	for _, seg := range msg.Segments {
		assert.Len(t, seg.Elements, 1, seg.Tag)
	}
}

func TestBuild_SegmentOrder(t *testing.T) {
	segs := NewBuilder(Envelope{}, fixedClock).Segments(sampleRecord())

	var tags []string
	for _, s := range segs {
		tags = append(tags, s.Tag)
	}
	assert.Equal(t, []string{"UNB", "UNG", "UNE", "UNH", "BGM", "DTM", "NAD", "MOA", "UNT", "UNZ"}, tags)
}

func TestBuild_EnvelopeOverrides(t *testing.T) {
	b := NewBuilder(Envelope{Sender: "CityLibrary", Currency: "EUR"}, fixedClock)

	segs := b.Segments(sampleRecord())
	sender, _ := segs[0].Field(0, 1)
	recipient, _ := segs[0].Field(0, 2)
	currency, _ := segs[7].Field(0, 2)

	assert.Equal(t, "CityLibrary", sender)
	assert.Equal(t, "ClientID", recipient)
	assert.Equal(t, "EUR", currency)
}

func TestBuild_FractionalAmountUsesDecimalMark(t *testing.T) {
	rec := sampleRecord()
	rec.Amount = decimal.RequireFromString("1.5")

	msg, err := NewBuilder(Envelope{}, fixedClock).Build(rec)
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "MOA+1:1,5:$'")

	f, err := Parse(msg.Text)
	require.NoError(t, err)
	amount, err := f.AmountDecimal()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.5").Equal(amount))
}

func TestBuild_EscapesUserName(t *testing.T) {
	rec := sampleRecord()
	rec.UserName = "o'brien+co@example.com"

	msg, err := NewBuilder(Envelope{}, fixedClock).Build(rec)
	require.NoError(t, err)

	f, err := Parse(msg.Text)
	require.NoError(t, err)
	assert.Equal(t, "o'brien+co@example.com", f.UserName)
}

func TestParse_RoundTrip(t *testing.T) {
	msg, err := NewBuilder(Envelope{}, fixedClock).Build(sampleRecord())
	require.NoError(t, err)

	f, err := Parse(msg.Text)
	require.NoError(t, err)

	assert.Equal(t, "7", f.InvoiceNumber)
	assert.Equal(t, "01.01.2024", f.BorrowDate)
	assert.Equal(t, "alice@example.com", f.UserName)
	require.NotNil(t, f.Amount)
	assert.Equal(t, "3", *f.Amount)
	assert.Equal(t, msg.Fields.InvoiceNumber, f.InvoiceNumber)
}

func TestParse_ComponentLayout(t *testing.T) {
	text := "UNA:+,? '" +
		"UNB+UNOC?:2:LibraryID:ClientID:240105?:1030:Ref'" +
		"UNG+Borrowing:7:LibraryID:240105?:1030:Ref'" +
		"BGM+BORROWING:7'" +
		"DTM+Borrowing date:01.01.2024'" +
		"NAD+Borrower:User:alice@example.com:'" +
		"MOA+1:3:$'"

	f, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, "7", f.InvoiceNumber)
	assert.Equal(t, "01.01.2024", f.BorrowDate)
	assert.Equal(t, "alice@example.com", f.UserName)
	require.NotNil(t, f.Amount)
	assert.Equal(t, "3", *f.Amount)
}

func TestParse_LastOccurrenceWins(t *testing.T) {
	text := "UNA:+,? '" +
		"UNG+Borrowing:A'UNG+Borrowing:B'" +
		"DTM+Borrowing date:01.01.2024'DTM+Borrowing date:02.02.2024'" +
		"NAD+Borrower:User:first:'NAD+Borrower:User:second:'" +
		"MOA+1:1:$'MOA+1:2:$'"

	f, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, "B", f.InvoiceNumber)
	assert.Equal(t, "02.02.2024", f.BorrowDate)
	assert.Equal(t, "second", f.UserName)
	require.NotNil(t, f.Amount)
	assert.Equal(t, "2", *f.Amount)
}

func TestParse_AbsentTagsGiveEmptyValues(t *testing.T) {
	f, err := Parse("UNA:+,? 'BGM+BORROWING:7'")
	require.NoError(t, err)

	assert.Empty(t, f.InvoiceNumber)
	assert.Empty(t, f.BorrowDate)
	assert.Empty(t, f.UserName)
	assert.Nil(t, f.Amount)

	_, err = f.AmountDecimal()
	assert.ErrorIs(t, err, ErrNoAmount)
}

func TestParse_ZeroAmountIsNotAbsent(t *testing.T) {
	f, err := Parse("UNA:+,? 'MOA+1:0:$'")
	require.NoError(t, err)
	require.NotNil(t, f.Amount)
	assert.Equal(t, "0", *f.Amount)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no advice", "BGM+BORROWING:7'"},
		{"dtm without date", "UNA:+,? 'DTM+Borrowing date'"},
		{"nad without name", "UNA:+,? 'NAD+Borrower:User'"},
		{"moa without amount", "UNA:+,? 'MOA+1'"},
		{"ung without number", "UNA:+,? 'UNG'"},
		{"values as separate elements", "UNA:+,? 'DTM+Borrowing date+01.01.2024'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			assert.ErrorIs(t, err, edifact.ErrMalformedMessage)
		})
	}
}

func TestParse_DeclaredDecimalMark(t *testing.T) {
	f, err := Parse("UNA:+.? 'MOA+1:2.5:$'")
	require.NoError(t, err)

	amount, err := f.AmountDecimal()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.5").Equal(amount))
}

func TestBuildParse_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rec := Record{
			BorrowingID: rapid.Int64Range(1, 1<<40).Draw(t, "id"),
			BorrowDate: time.Date(
				rapid.IntRange(2000, 2100).Draw(t, "year"),
				time.Month(rapid.IntRange(1, 12).Draw(t, "month")),
				rapid.IntRange(1, 28).Draw(t, "day"),
				0, 0, 0, 0, time.UTC),
			UserName: rapid.StringMatching(`[a-z0-9.'+:?]{1,20}@[a-z]{1,10}\.com`).Draw(t, "user"),
			Amount:   decimal.New(rapid.Int64Range(0, 100000).Draw(t, "cents"), -1),
		}

		msg, err := NewBuilder(Envelope{}, fixedClock).Build(rec)
		require.NoError(t, err)

		f, err := Parse(msg.Text)
		require.NoError(t, err)
		assert.Equal(t, msg.Fields.InvoiceNumber, f.InvoiceNumber)
		assert.Equal(t, msg.Fields.BorrowDate, f.BorrowDate)
		assert.Equal(t, rec.UserName, f.UserName)

		amount, err := f.AmountDecimal()
		require.NoError(t, err)
		assert.True(t, rec.Amount.Equal(amount), "amount %s != %s", rec.Amount, amount)
	})
}
