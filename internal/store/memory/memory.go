// Package memory is an in-process store for development and tests. A
// transaction works on a private copy of the whole state that replaces the
// shared state only when the transaction succeeds, and transactions run one
// at a time.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"onlinelibrary/internal/catalog"
	"onlinelibrary/internal/journal"
	"onlinelibrary/internal/lending"
	"onlinelibrary/internal/membership"
	"onlinelibrary/internal/platform/sentinel"

	"github.com/shopspring/decimal"
)

type sequences struct {
	book, review, user, borrowing, fee, event int64
}

type state struct {
	books      map[int64]catalog.Book
	reviews    []catalog.Review
	users      map[int64]membership.User
	borrowings map[int64]lending.Borrowing
	fees       map[int64]lending.Fee
	events     []journal.Event
	seq        sequences
}

func newState() *state {
	return &state{
		books:      make(map[int64]catalog.Book),
		users:      make(map[int64]membership.User),
		borrowings: make(map[int64]lending.Borrowing),
		fees:       make(map[int64]lending.Fee),
	}
}

// clone copies everything a transaction may write. Values held by pointer
// (return dates, review text) are never mutated in place.
func (s *state) clone() *state {
	return &state{
		books:      maps.Clone(s.books),
		reviews:    slices.Clone(s.reviews),
		users:      maps.Clone(s.users),
		borrowings: maps.Clone(s.borrowings),
		fees:       maps.Clone(s.fees),
		events:     slices.Clone(s.events),
		seq:        s.seq,
	}
}

// Store implements the catalog, membership, lending and journal stores.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// RunInTx runs fn against a copy of the state and installs the copy if fn
// succeeds.
func (s *Store) RunInTx(ctx context.Context, fn func(tx lending.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(&tx{st: work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Catalog.

func (s *Store) CreateBook(ctx context.Context, book *catalog.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.seq.book++
	book.ID = s.st.seq.book
	book.Version = 1
	book.CreatedAt = s.now().UTC()
	s.st.books[book.ID] = *book
	return nil
}

func (s *Store) GetBook(ctx context.Context, id int64) (*catalog.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.st.books[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &b, nil
}

func (s *Store) ListBooks(ctx context.Context) ([]catalog.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	books := slices.Collect(maps.Values(s.st.books))
	slices.SortFunc(books, func(a, b catalog.Book) int { return cmp.Compare(a.ID, b.ID) })
	return books, nil
}

func (s *Store) CreateReview(ctx context.Context, review *catalog.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.books[review.BookID]; !ok {
		return sentinel.ErrNotFound
	}
	s.st.seq.review++
	review.ID = s.st.seq.review
	review.CreatedAt = s.now().UTC()
	s.st.reviews = append(s.st.reviews, *review)
	return nil
}

func (s *Store) ListReviews(ctx context.Context, bookID int64) ([]catalog.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []catalog.Review
	for _, r := range s.st.reviews {
		if r.BookID == bookID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Membership.

func (s *Store) CreateUser(ctx context.Context, user *membership.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.st.users {
		if strings.EqualFold(u.UserName, user.UserName) {
			return sentinel.ErrDuplicate
		}
	}
	s.st.seq.user++
	user.ID = s.st.seq.user
	user.CreatedAt = s.now().UTC()
	s.st.users[user.ID] = *user
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*membership.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.st.users[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &u, nil
}

func (s *Store) FindUserByName(ctx context.Context, userName string) (*membership.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.st.users {
		if strings.EqualFold(u.UserName, userName) {
			return &u, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Journal.

func (s *Store) StreamEvents(ctx context.Context, afterSequence int64, limit int) ([]journal.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []journal.Event
	for _, ev := range s.st.events {
		if ev.Sequence > afterSequence {
			out = append(out, ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) LoadEvents(ctx context.Context, aggregateType string, aggregateID int64) ([]journal.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []journal.Event
	for _, ev := range s.st.events {
		if ev.AggregateType == aggregateType && ev.AggregateID == aggregateID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// tx is the lending view of a state copy.
type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) GetBookForUpdate(ctx context.Context, id int64) (*catalog.Book, error) {
	b, ok := t.st.books[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &b, nil
}

func (t *tx) UpdateBookAvailability(ctx context.Context, id int64, available, expectedVersion int) error {
	b, ok := t.st.books[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if b.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	b.Available = available
	b.Version++
	t.st.books[id] = b
	return nil
}

func (t *tx) GetUser(ctx context.Context, id int64) (*membership.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &u, nil
}

func (t *tx) GetBorrowing(ctx context.Context, id int64) (*lending.Borrowing, error) {
	b, ok := t.st.borrowings[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &b, nil
}

func (t *tx) GetActiveBorrowing(ctx context.Context, bookID, userID int64) (*lending.Borrowing, error) {
	for _, b := range t.st.borrowings {
		if b.BookID == bookID && b.UserID == userID && b.Active() {
			return &b, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (t *tx) CreateBorrowing(ctx context.Context, b *lending.Borrowing) error {
	if _, err := t.GetActiveBorrowing(ctx, b.BookID, b.UserID); err == nil {
		return sentinel.ErrDuplicate
	}
	t.st.seq.borrowing++
	b.ID = t.st.seq.borrowing
	t.st.borrowings[b.ID] = *b
	return nil
}

func (t *tx) MarkReturned(ctx context.Context, id int64, at time.Time) error {
	b, ok := t.st.borrowings[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if b.Returned {
		return sentinel.ErrConflict
	}
	b.Returned = true
	b.ReturnDate = &at
	t.st.borrowings[id] = b
	return nil
}

func (t *tx) ListBorrowings(ctx context.Context, userID int64, activeOnly bool) ([]lending.HistoryEntry, error) {
	var out []lending.HistoryEntry
	for _, b := range t.st.borrowings {
		if b.UserID != userID || (activeOnly && !b.Active()) {
			continue
		}
		book := t.st.books[b.BookID]
		out = append(out, lending.HistoryEntry{
			Borrowing: b,
			Title:     book.Title,
			Author:    book.Author,
			Cover:     book.Cover,
		})
	}
	slices.SortFunc(out, func(a, b lending.HistoryEntry) int {
		if c := b.BorrowDate.Compare(a.BorrowDate); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (t *tx) CreateFee(ctx context.Context, f *lending.Fee) error {
	for _, existing := range t.st.fees {
		if existing.BorrowID == f.BorrowID {
			return sentinel.ErrDuplicate
		}
	}
	t.st.seq.fee++
	f.ID = t.st.seq.fee
	t.st.fees[f.ID] = *f
	return nil
}

func (t *tx) GetFee(ctx context.Context, id int64) (*lending.Fee, error) {
	f, ok := t.st.fees[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &f, nil
}

func (t *tx) GetFeeByBorrowing(ctx context.Context, borrowID int64) (*lending.Fee, error) {
	for _, f := range t.st.fees {
		if f.BorrowID == borrowID {
			return &f, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (t *tx) ListFees(ctx context.Context, userID int64) ([]lending.Fee, error) {
	var out []lending.Fee
	for _, f := range t.st.fees {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b lending.Fee) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *tx) UpdateUnpaidFeeAmount(ctx context.Context, id int64, amount decimal.Decimal) (bool, error) {
	f, ok := t.st.fees[id]
	if !ok || f.AlreadyPaid {
		return false, nil
	}
	f.Amount = amount
	t.st.fees[id] = f
	return true, nil
}

func (t *tx) MarkFeePaid(ctx context.Context, id int64) (bool, error) {
	f, ok := t.st.fees[id]
	if !ok || f.AlreadyPaid {
		return false, nil
	}
	f.AlreadyPaid = true
	t.st.fees[id] = f
	return true, nil
}

func (t *tx) AppendEvents(ctx context.Context, events ...journal.Event) error {
	for _, ev := range events {
		for _, existing := range t.st.events {
			if existing.ID == ev.ID {
				return sentinel.ErrDuplicate
			}
		}
		t.st.seq.event++
		ev.Sequence = t.st.seq.event
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = t.now().UTC()
		}
		t.st.events = append(t.st.events, ev)
	}
	return nil
}
