// internal/catalog/handler.go
package catalog

import (
	"net/http"

	"onlinelibrary/internal/platform/httpjson"
	"onlinelibrary/internal/session"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListBooks(r.Context())
	if err != nil {
		httpjson.Fail(w, httpjson.Status(err), err)
		return
	}
	if books == nil {
		books = []Book{}
	}
	httpjson.Write(w, http.StatusOK, books)
}

func (h *Handler) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpjson.IDParam(r, "id")
	if err != nil {
		httpjson.Fail(w, http.StatusBadRequest, err)
		return
	}

	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		httpjson.Fail(w, httpjson.Status(err), err)
		return
	}
	httpjson.Write(w, http.StatusOK, book)
}

func (h *Handler) HandleAddBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title     string `json:"title"`
		Author    string `json:"author"`
		Available int    `json:"available"`
		Cover     string `json:"cover"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Fail(w, http.StatusBadRequest, err)
		return
	}

	book, err := h.service.AddBook(r.Context(), req.Title, req.Author, req.Available, req.Cover)
	if err != nil {
		httpjson.Fail(w, httpjson.Status(err), err)
		return
	}
	httpjson.Write(w, http.StatusCreated, book)
}

func (h *Handler) HandleReviews(w http.ResponseWriter, r *http.Request) {
	id, err := httpjson.IDParam(r, "id")
	if err != nil {
		httpjson.Fail(w, http.StatusBadRequest, err)
		return
	}

	summary, err := h.service.Reviews(r.Context(), id)
	if err != nil {
		httpjson.Fail(w, httpjson.Status(err), err)
		return
	}
	if summary.Reviews == nil {
		summary.Reviews = []Review{}
	}
	httpjson.Write(w, http.StatusOK, summary)
}

// HandleAddReview accepts either {"rating": n} or {"review": "..."}.
func (h *Handler) HandleAddReview(w http.ResponseWriter, r *http.Request) {
	id, err := httpjson.IDParam(r, "id")
	if err != nil {
		httpjson.Fail(w, http.StatusBadRequest, err)
		return
	}

	var req struct {
		Rating *int    `json:"rating"`
		Review *string `json:"review"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Fail(w, http.StatusBadRequest, err)
		return
	}

	var review *Review
	switch {
	case req.Rating != nil:
		review, err = h.service.AddRating(r.Context(), id, *req.Rating)
	case req.Review != nil:
		caller, _ := session.FromContext(r.Context())
		review, err = h.service.AddReview(r.Context(), id, caller.UserName, *req.Review)
	default:
		httpjson.Error(w, http.StatusBadRequest, "rating or review is required")
		return
	}
	if err != nil {
		httpjson.Fail(w, httpjson.Status(err), err)
		return
	}
	httpjson.Write(w, http.StatusCreated, review)
}
