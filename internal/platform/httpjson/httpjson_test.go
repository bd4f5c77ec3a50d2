package httpjson

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusConflict, "book already borrowed")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "book already borrowed", body["error"])
}

func TestDecode(t *testing.T) {
	var req struct {
		Days int `json:"days"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"days": 3}`))
	require.NoError(t, Decode(r, &req))
	assert.Equal(t, 3, req.Days)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"weeks": 3}`))
	assert.ErrorIs(t, Decode(r, &req), ErrBadRequest)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))
	assert.ErrorIs(t, Decode(r, &req), ErrBadRequest)
}

func TestIDParam(t *testing.T) {
	withParam := func(v string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", v)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	}

	id, err := IDParam(withParam("42"), "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "abc", "0", "-3"} {
		_, err := IDParam(withParam(bad), "id")
		assert.ErrorIs(t, err, ErrBadRequest, bad)
	}
}
