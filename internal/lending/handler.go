// internal/lending/handler.go
package lending

import (
	"errors"
	"io"
	"net/http"

	"onlinelibrary/internal/edifact"
	"onlinelibrary/internal/platform/httpjson"
	"onlinelibrary/internal/session"
)

const maxMessageBytes = 64 << 10

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrAlreadyBorrowed),
		errors.Is(err, ErrNoActiveBorrowing),
		errors.Is(err, ErrAlreadyPaid),
		errors.Is(err, ErrOutOfStock):
		return http.StatusConflict
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, edifact.ErrMalformedMessage):
		return http.StatusBadRequest
	default:
		return httpjson.Status(err)
	}
}

func caller(w http.ResponseWriter, r *http.Request) (session.Identity, bool) {
	id, ok := session.FromContext(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "not logged in")
	}
	return id, ok
}

func (h *Handler) HandleBorrow(w http.ResponseWriter, r *http.Request) {
	me, ok := caller(w, r)
	if !ok {
		return
	}
	bookID, err := httpjson.IDParam(r, "id")
	if err != nil {
		httpjson.Fail(w, http.StatusBadRequest, err)
		return
	}

	var req struct {
		Days int `json:"days"`
	}
	if r.ContentLength != 0 {
		if err := httpjson.Decode(r, &req); err != nil {
			httpjson.Fail(w, http.StatusBadRequest, err)
			return
		}
	}

	borrowing, err := h.service.Borrow(r.Context(), bookID, me.UserID, req.Days)
	if err != nil {
		httpjson.Fail(w, statusFor(err), err)
		return
	}
	httpjson.Write(w, http.StatusCreated, borrowing)
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	me, ok := caller(w, r)
	if !ok {
		return
	}
	bookID, err := httpjson.IDParam(r, "id")
	if err != nil {
		httpjson.Fail(w, http.StatusBadRequest, err)
		return
	}

	if err := h.service.Return(r.Context(), bookID, me.UserID); err != nil {
		httpjson.Fail(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleActiveBorrowings(w http.ResponseWriter, r *http.Request) {
	me, ok := caller(w, r)
	if !ok {
		return
	}

	entries, err := h.service.ActiveBorrowings(r.Context(), me.UserID)
	if err != nil {
		httpjson.Fail(w, statusFor(err), err)
		return
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	httpjson.Write(w, http.StatusOK, entries)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	me, ok := caller(w, r)
	if !ok {
		return
	}

	entries, err := h.service.History(r.Context(), me.UserID)
	if err != nil {
		httpjson.Fail(w, statusFor(err), err)
		return
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	httpjson.Write(w, http.StatusOK, entries)
}

func (h *Handler) HandleInvoices(w http.ResponseWriter, r *http.Request) {
	me, ok := caller(w, r)
	if !ok {
		return
	}

	fees, err := h.service.ViewInvoices(r.Context(), me.UserID)
	if err != nil {
		httpjson.Fail(w, statusFor(err), err)
		return
	}
	if fees == nil {
		fees = []Fee{}
	}
	httpjson.Write(w, http.StatusOK, fees)
}

func (h *Handler) HandlePay(w http.ResponseWriter, r *http.Request) {
	me, ok := caller(w, r)
	if !ok {
		return
	}
	feeID, err := httpjson.IDParam(r, "id")
	if err != nil {
		httpjson.Fail(w, http.StatusBadRequest, err)
		return
	}

	fee, err := h.service.Pay(r.Context(), feeID, me.UserID)
	if err != nil {
		httpjson.Fail(w, statusFor(err), err)
		return
	}
	httpjson.Write(w, http.StatusOK, fee)
}

// HandleInvoiceMessage returns the EDI text, or the full message as JSON with
// ?format=json.
func (h *Handler) HandleInvoiceMessage(w http.ResponseWriter, r *http.Request) {
	me, ok := caller(w, r)
	if !ok {
		return
	}
	borrowingID, err := httpjson.IDParam(r, "id")
	if err != nil {
		httpjson.Fail(w, http.StatusBadRequest, err)
		return
	}

	msg, err := h.service.BuildInvoiceMessage(r.Context(), borrowingID, me.UserID)
	if err != nil {
		httpjson.Fail(w, statusFor(err), err)
		return
	}

	if r.URL.Query().Get("format") == "json" {
		httpjson.Write(w, http.StatusOK, msg)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, msg.Text)
}

// HandleParseMessage reads an EDI message from the body. Bodies over
// maxMessageBytes are rejected rather than parsed in part.
func (h *Handler) HandleParseMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpjson.Error(w, http.StatusRequestEntityTooLarge, "message too large")
			return
		}
		httpjson.Error(w, http.StatusBadRequest, "failed to read message")
		return
	}

	fields, err := h.service.ParseInboundMessage(string(body))
	if err != nil {
		httpjson.Fail(w, statusFor(err), err)
		return
	}
	httpjson.Write(w, http.StatusOK, fields)
}
