package journal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) StreamEvents(ctx context.Context, afterSequence int64, limit int) ([]Event, error) {
	args := m.Called(ctx, afterSequence, limit)
	return args.Get(0).([]Event), args.Error(1)
}

func (m *MockStore) LoadEvents(ctx context.Context, aggregateType string, aggregateID int64) ([]Event, error) {
	args := m.Called(ctx, aggregateType, aggregateID)
	return args.Get(0).([]Event), args.Error(1)
}

func TestNewEvent(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	ev, err := NewEvent(AggregateBorrowing, 7, BookBorrowed, map[string]int{"book_id": 3}, at)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, ev.ID)
	assert.Equal(t, int64(7), ev.AggregateID)
	assert.JSONEq(t, `{"book_id":3}`, string(ev.EventData))
	assert.Equal(t, time.UTC, ev.CreatedAt.Location())

	_, err = NewEvent(AggregateFee, 1, FeePaid, make(chan int), at)
	assert.Error(t, err)
}

func TestReader_StreamClampsLimit(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	store.On("StreamEvents", mock.Anything, int64(0), DefaultStreamLimit).Return([]Event{}, nil).Once()
	store.On("StreamEvents", mock.Anything, int64(5), MaxStreamLimit).Return([]Event{{Sequence: 6}}, nil).Once()
	r := NewReader(store)

	_, err := r.Stream(ctx, 0, 0)
	require.NoError(t, err)

	events, err := r.Stream(ctx, 5, 1_000_000)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	store.AssertExpectations(t)
}

func TestReader_WrapsStoreErrors(t *testing.T) {
	store := new(MockStore)
	boom := errors.New("boom")
	store.On("LoadEvents", mock.Anything, AggregateFee, int64(2)).Return([]Event(nil), boom)

	_, err := NewReader(store).Load(context.Background(), AggregateFee, 2)
	assert.ErrorIs(t, err, boom)
}

func TestHandler(t *testing.T) {
	store := new(MockStore)
	store.On("StreamEvents", mock.Anything, int64(10), 2).Return([]Event{{Sequence: 11, EventType: FeePaid}}, nil)
	store.On("LoadEvents", mock.Anything, AggregateBorrowing, int64(4)).Return([]Event(nil), nil)

	h := NewHandler(NewReader(store))
	r := chi.NewRouter()
	r.Get("/journal", h.HandleStream)
	r.Get("/journal/{type}/{id}", h.HandleAggregate)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/journal?after=10&limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var events []Event
	require.NoError(t, json.NewDecoder(w.Body).Decode(&events))
	assert.Equal(t, int64(11), events[0].Sequence)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/journal/borrowing/4", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/journal/book/4", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/journal?after=x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
