package lending_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"onlinelibrary/internal/catalog"
	"onlinelibrary/internal/invoice"
	"onlinelibrary/internal/lending"
	"onlinelibrary/internal/membership"
	"onlinelibrary/internal/session"
	"onlinelibrary/internal/store/memory"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	router http.Handler
	store  *memory.Store
	clock  *clock
	user   *membership.User
	book   *catalog.Book
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store: memory.New(),
		clock: &clock{now: time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)},
		user:  &membership.User{UserName: "alice@example.com"},
		book:  &catalog.Book{Title: "Dune", Author: "Frank Herbert", Available: 1},
	}
	require.NoError(t, f.store.CreateUser(ctx, f.user))
	require.NoError(t, f.store.CreateBook(ctx, f.book))

	svc := lending.NewService(f.store, invoice.NewBuilder(invoice.Envelope{}, f.clock.Now), lending.DefaultConfig(),
		nil, slog.New(slog.NewTextHandler(io.Discard, nil)), lending.WithClock(f.clock.Now))
	h := lending.NewHandler(svc)

	r := chi.NewRouter()
	r.Post("/messages/parse", h.HandleParseMessage)
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := session.WithIdentity(req.Context(), session.Identity{UserID: f.user.ID, UserName: f.user.UserName})
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
		r.Post("/books/{id}/borrow", h.HandleBorrow)
		r.Post("/books/{id}/return", h.HandleReturn)
		r.Get("/me/borrowings", h.HandleActiveBorrowings)
		r.Get("/me/history", h.HandleHistory)
		r.Get("/me/invoices", h.HandleInvoices)
		r.Post("/fees/{id}/pay", h.HandlePay)
		r.Get("/borrowings/{id}/invoice", h.HandleInvoiceMessage)
	})
	f.router = r
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(method, target, reader))
	return w
}

func TestHandler_BorrowReturnFlow(t *testing.T) {
	f := newFixture(t)
	bookPath := "/books/" + strconv.FormatInt(f.book.ID, 10)

	w := f.do(http.MethodPost, bookPath+"/borrow", `{"days": 2}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var b lending.Borrowing
	require.NoError(t, json.NewDecoder(w.Body).Decode(&b))
	assert.Equal(t, 2, b.BorrowedForDays)

	w = f.do(http.MethodPost, bookPath+"/borrow", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodGet, "/me/borrowings", "")
	require.Equal(t, http.StatusOK, w.Code)
	var active []lending.HistoryEntry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&active))
	require.Len(t, active, 1)
	assert.Equal(t, "Dune", active[0].Title)

	w = f.do(http.MethodPost, bookPath+"/return", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodPost, bookPath+"/return", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodGet, "/me/borrowings", "")
	assert.JSONEq(t, `[]`, w.Body.String())

	w = f.do(http.MethodGet, "/me/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var history []lending.HistoryEntry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&history))
	assert.Len(t, history, 1)
}

func TestHandler_BorrowErrors(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/books/999/borrow", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/books/abc/borrow", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/books/1/borrow", `{"weeks": 1}`).Code)
}

func TestHandler_InvoicesAndPay(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/books/"+strconv.FormatInt(f.book.ID, 10)+"/borrow", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var b lending.Borrowing
	require.NoError(t, json.NewDecoder(w.Body).Decode(&b))

	f.clock.Advance(3 * 24 * time.Hour)

	w = f.do(http.MethodGet, "/me/invoices", "")
	require.Equal(t, http.StatusOK, w.Code)
	var fees []lending.Fee
	require.NoError(t, json.NewDecoder(w.Body).Decode(&fees))
	require.Len(t, fees, 1)
	assert.Equal(t, "1", fees[0].Amount.String())

	invoicePath := "/borrowings/" + strconv.FormatInt(b.ID, 10) + "/invoice"
	w = f.do(http.MethodGet, invoicePath, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "UNA"))
	text := w.Body.String()

	w = f.do(http.MethodGet, invoicePath+"?format=json", "")
	require.Equal(t, http.StatusOK, w.Code)
	var msg invoice.Message
	require.NoError(t, json.NewDecoder(w.Body).Decode(&msg))
	assert.Equal(t, text, msg.Text)
	assert.Len(t, msg.Segments, 10)

	payPath := "/fees/" + strconv.FormatInt(fees[0].ID, 10) + "/pay"
	w = f.do(http.MethodPost, payPath, "")
	require.Equal(t, http.StatusOK, w.Code)
	var paid lending.Fee
	require.NoError(t, json.NewDecoder(w.Body).Decode(&paid))
	assert.True(t, paid.AlreadyPaid)

	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, payPath, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/fees/999/pay", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/borrowings/999/invoice", "").Code)
}

func TestHandler_ParseMessage(t *testing.T) {
	f := newFixture(t)
	builder := invoice.NewBuilder(invoice.Envelope{}, f.clock.Now)
	msg, err := builder.Build(invoice.Record{
		BorrowingID: 42,
		BorrowDate:  f.clock.Now(),
		UserName:    "bob@example.com",
	})
	require.NoError(t, err)

	w := f.do(http.MethodPost, "/messages/parse", msg.Text)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var fields invoice.Fields
	require.NoError(t, json.NewDecoder(w.Body).Decode(&fields))
	assert.Equal(t, "42", fields.InvoiceNumber)
	assert.Equal(t, "bob@example.com", fields.UserName)

	w = f.do(http.MethodPost, "/messages/parse", "UNA:+,? 'NAD+Borrower'")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_ParseMessageTooLarge(t *testing.T) {
	f := newFixture(t)

	msg := "UNA:+,? 'FTX+" + strings.Repeat("x", 70<<10) + "'MOA+1:12:$'"
	w := f.do(http.MethodPost, "/messages/parse", msg)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "message too large")
}

func TestHandler_RequiresIdentity(t *testing.T) {
	svc := lending.NewService(memory.New(), invoice.NewBuilder(invoice.Envelope{}, time.Now), lending.DefaultConfig(),
		nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := lending.NewHandler(svc)

	w := httptest.NewRecorder()
	h.HandleInvoices(w, httptest.NewRequest(http.MethodGet, "/me/invoices", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
