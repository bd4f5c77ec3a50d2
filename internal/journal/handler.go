package journal

import (
	"net/http"
	"strconv"

	"onlinelibrary/internal/platform/httpjson"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	reader *Reader
}

func NewHandler(reader *Reader) *Handler {
	return &Handler{reader: reader}
}

// HandleStream serves GET ?after=<sequence>&limit=<n>.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after, err := queryInt(q.Get("after"))
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid after")
		return
	}
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "invalid limit")
		return
	}

	events, err := h.reader.Stream(r.Context(), after, int(limit))
	if err != nil {
		httpjson.Fail(w, httpjson.Status(err), err)
		return
	}
	if events == nil {
		events = []Event{}
	}
	httpjson.Write(w, http.StatusOK, events)
}

// HandleAggregate serves the events of /{type}/{id}.
func (h *Handler) HandleAggregate(w http.ResponseWriter, r *http.Request) {
	aggregateType := chi.URLParam(r, "type")
	if aggregateType != AggregateBorrowing && aggregateType != AggregateFee {
		httpjson.Error(w, http.StatusBadRequest, "unknown aggregate type")
		return
	}
	id, err := httpjson.IDParam(r, "id")
	if err != nil {
		httpjson.Fail(w, http.StatusBadRequest, err)
		return
	}

	events, err := h.reader.Load(r.Context(), aggregateType, id)
	if err != nil {
		httpjson.Fail(w, httpjson.Status(err), err)
		return
	}
	if events == nil {
		events = []Event{}
	}
	httpjson.Write(w, http.StatusOK, events)
}

func queryInt(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
