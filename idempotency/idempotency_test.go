package idempotency

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counting(status int, calls *int) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		*calls++
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"echo":` + string(body) + `}`))
	}
}

func post(h httprouter.Handle, key, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/api/drafts/d1/submit", strings.NewReader(body))
	if key != "" {
		r.Header.Set(Header, key)
	}
	rec := httptest.NewRecorder()
	h(rec, r, nil)
	return rec
}

func TestReplaysStoredResponse(t *testing.T) {
	calls := 0
	h := Middleware(NewMemory(), time.Hour)(counting(http.StatusCreated, &calls))

	first := post(h, "k1", `1`)
	second := post(h, "k1", `1`)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
}

func TestDifferentBodyConflicts(t *testing.T) {
	calls := 0
	h := Middleware(NewMemory(), time.Hour)(counting(http.StatusCreated, &calls))

	post(h, "k1", `1`)
	rec := post(h, "k1", `2`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestInFlightConflicts(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/drafts/d1/submit", nil)
	store := NewMemory()
	ok, err := store.Reserve(testContext(t), Record{Key: "k1", RequestHash: computeRequestHash(r, []byte(`1`), "")}, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	calls := 0
	h := Middleware(store, time.Hour)(counting(http.StatusCreated, &calls))

	rec := post(h, "k1", `1`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "in progress")
	assert.Zero(t, calls)
}

func TestServerErrorsAreNotStored(t *testing.T) {
	calls := 0
	h := Middleware(NewMemory(), time.Hour)(counting(http.StatusBadGateway, &calls))

	post(h, "k1", `1`)
	post(h, "k1", `1`)
	assert.Equal(t, 2, calls)
}

func TestNoKeyPassesThrough(t *testing.T) {
	calls := 0
	h := Middleware(NewMemory(), time.Hour)(counting(http.StatusCreated, &calls))
	post(h, "", `1`)
	post(h, "", `1`)
	assert.Equal(t, 2, calls)
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	ok, _ := m.Reserve(testContext(t), Record{Key: "k"}, time.Minute)
	require.True(t, ok)
	ok, _ = m.Reserve(testContext(t), Record{Key: "k"}, time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = m.Reserve(testContext(t), Record{Key: "k"}, time.Minute)
	assert.True(t, ok)
}

// testContext mirrors testing.T.Context (Go 1.24+): a context cancelled just
// before the test's Cleanup functions run.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
