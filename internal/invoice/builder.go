// Package invoice maps a borrowing and its fee onto the fixed EDIFACT
// skeleton the library exchanges, and extracts the same fields back out of
// inbound messages.
package invoice

import (
	"fmt"
	"strconv"
	"time"

	"onlinelibrary/internal/edifact"

	"github.com/shopspring/decimal"
)

const (
	// BorrowDateLayout is the layout of the DTM borrow date.
	BorrowDateLayout = "02.01.2006"

	envelopeDateLayout = "060102"
	envelopeTimeLayout = "1504"
)

// Envelope carries the placeholder values of the header and trailer segments.
// Recipients extract by tag, so none of these values are interpreted.
type Envelope struct {
	Sender           string `yaml:"sender"`
	Recipient        string `yaml:"recipient"`
	ControlReference string `yaml:"control_reference"`
	SyntaxIdentifier string `yaml:"syntax_identifier"`
	SyntaxVersion    string `yaml:"syntax_version"`
	Application      string `yaml:"application"`
	Currency         string `yaml:"currency"`
}

// DefaultEnvelope holds the values the library has always sent.
var DefaultEnvelope = Envelope{
	Sender:           "LibraryID",
	Recipient:        "ClientID",
	ControlReference: "ExampleReferenceNumber123",
	SyntaxIdentifier: "UNOC",
	SyntaxVersion:    "2",
	Application:      "OnlineLibrary",
	Currency:         "$",
}

// Record is the data an invoice is built from.
type Record struct {
	BorrowingID int64
	BorrowDate  time.Time
	UserName    string
	Amount      decimal.Decimal
}

// Message is a built invoice: the encoded text plus what went into it.
type Message struct {
	Text     string            `json:"text"`
	Segments []edifact.Segment `json:"segments"`
	Fields   Fields            `json:"fields"`
}

// Builder produces invoice messages. It is safe for concurrent use.
type Builder struct {
	envelope   Envelope
	delimiters edifact.Delimiters
	now        func() time.Time
}

// NewBuilder returns a builder using env. Empty envelope values fall back to
// DefaultEnvelope.
func NewBuilder(env Envelope, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{
		envelope:   env.withDefaults(),
		delimiters: edifact.DefaultDelimiters,
		now:        now,
	}
}

func (e Envelope) withDefaults() Envelope {
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&e.Sender, DefaultEnvelope.Sender)
	fill(&e.Recipient, DefaultEnvelope.Recipient)
	fill(&e.ControlReference, DefaultEnvelope.ControlReference)
	fill(&e.SyntaxIdentifier, DefaultEnvelope.SyntaxIdentifier)
	fill(&e.SyntaxVersion, DefaultEnvelope.SyntaxVersion)
	fill(&e.Application, DefaultEnvelope.Application)
	fill(&e.Currency, DefaultEnvelope.Currency)
	return e
}

// Segments returns the ordered segment skeleton for rec. Each segment carries
// its values as the components of one composite element, which is the layout
// recipients read by position.
func (b *Builder) Segments(rec Record) []edifact.Segment {
	env := b.envelope
	now := b.now()
	stamp := now.Format(envelopeDateLayout) + ":" + now.Format(envelopeTimeLayout)
	id := strconv.FormatInt(rec.BorrowingID, 10)
	amount := b.delimiters.FormatDecimal(rec.Amount.String())

	return []edifact.Segment{
		edifact.NewComposite("UNB", env.SyntaxIdentifier+":"+env.SyntaxVersion, env.Sender, env.Recipient, stamp, env.ControlReference),
		edifact.NewComposite("UNG", "Borrowing", id, env.Sender, stamp, env.ControlReference),
		edifact.NewComposite("UNE", "NumberOfSegments", "ReferenceNumber"),
		edifact.NewComposite("UNH", "MessageReference", "Borrowing", "1", env.Application),
		edifact.NewComposite("BGM", "BORROWING", id),
		edifact.NewComposite("DTM", "Borrowing date", rec.BorrowDate.Format(BorrowDateLayout)),
		edifact.NewComposite("NAD", "Borrower", "User", rec.UserName, ""),
		edifact.NewComposite("MOA", "1", amount, env.Currency),
		edifact.NewComposite("UNT", "NumberOfSegments", "MessageReference"),
		edifact.NewComposite("UNZ", "NumberOfGroups", "InterchangeReference"),
	}
}

// Build encodes the invoice for rec.
func (b *Builder) Build(rec Record) (*Message, error) {
	segments := b.Segments(rec)
	text, err := edifact.Message{Delimiters: b.delimiters, Segments: segments}.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode invoice for borrowing %d: %w", rec.BorrowingID, err)
	}

	amount := b.delimiters.FormatDecimal(rec.Amount.String())
	return &Message{
		Text:     text,
		Segments: segments,
		Fields: Fields{
			InvoiceNumber: strconv.FormatInt(rec.BorrowingID, 10),
			BorrowDate:    rec.BorrowDate.Format(BorrowDateLayout),
			UserName:      rec.UserName,
			Amount:        &amount,
			decimalMark:   b.delimiters.Decimal,
		},
	}, nil
}
