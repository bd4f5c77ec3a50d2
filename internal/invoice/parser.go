package invoice

import (
	"errors"
	"fmt"
	"strings"

	"onlinelibrary/internal/edifact"

	"github.com/shopspring/decimal"
)

// ErrNoAmount is returned by Fields.AmountDecimal when the message had no MOA.
var ErrNoAmount = errors.New("message carries no monetary amount")

// Fields are the values extracted from an invoice message. Amount is nil when
// the message has no MOA segment, so absence is distinguishable from zero.
type Fields struct {
	InvoiceNumber string  `json:"invoice_number"`
	BorrowDate    string  `json:"borrow_date"`
	UserName      string  `json:"user_name"`
	Amount        *string `json:"amount"`

	decimalMark byte
}

// AmountDecimal converts Amount using the decimal mark the message declared.
func (f Fields) AmountDecimal() (decimal.Decimal, error) {
	if f.Amount == nil {
		return decimal.Zero, ErrNoAmount
	}
	d := edifact.Delimiters{Decimal: f.decimalMark}
	v, err := decimal.NewFromString(strings.TrimSpace(d.NormalizeDecimal(*f.Amount)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", *f.Amount, err)
	}
	return v, nil
}

// Parse decodes text and extracts the invoice fields. Segments are visited in
// order and every occurrence of a recognised tag overwrites the previous one,
// so the last occurrence wins.
//
//	UNG  component 1 -> InvoiceNumber
//	DTM  component 1 -> BorrowDate
//	NAD  component 2 -> UserName
//	MOA  component 1 -> Amount
//
// Components are counted within the first element group.
func Parse(text string) (Fields, error) {
	msg, err := edifact.Decode(text)
	if err != nil {
		return Fields{}, err
	}

	f := Fields{decimalMark: msg.Delimiters.Decimal}
	for i, seg := range msg.Segments {
		switch seg.Tag {
		case "UNG":
			v, err := designated(seg, i, 1)
			if err != nil {
				return Fields{}, err
			}
			f.InvoiceNumber = v
		case "DTM":
			v, err := designated(seg, i, 1)
			if err != nil {
				return Fields{}, err
			}
			f.BorrowDate = v
		case "NAD":
			v, err := designated(seg, i, 2)
			if err != nil {
				return Fields{}, err
			}
			f.UserName = v
		case "MOA":
			v, err := designated(seg, i, 1)
			if err != nil {
				return Fields{}, err
			}
			f.Amount = &v
		}
	}
	return f, nil
}

func designated(seg edifact.Segment, index, component int) (string, error) {
	v, ok := seg.Field(0, component)
	if !ok {
		return "", fmt.Errorf("%w: segment %d (%s) has no component %d",
			edifact.ErrMalformedMessage, index+1, seg.Tag, component)
	}
	return v, nil
}
