package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clubpos/idempotency"
	"clubpos/kitchen"
	"clubpos/models"
	"clubpos/orders"
	"clubpos/ratelim"
	"clubpos/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	mem := store.NewMemory()
	mem.SeedCatalog([]models.Product{{ProductID: "a", Name: "Gin tonic", Price: 12000}}, nil, nil)
	board := kitchen.NewBoard(mem, kitchen.Options{})
	return New(Deps{
		Orders:         orders.NewHandler(mem, board, orders.NewService(mem, nil), orders.NewDrafts()),
		RateLimiter:    ratelim.NewRateLimiter(100, 100),
		Idempotency:    idempotency.NewMemory(),
		IdempotencyTTL: time.Hour,
	})
}

func serve(h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(newRouter(t), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitReplaysWithSameKey(t *testing.T) {
	h := newRouter(t)

	rec := serve(h, http.MethodPost, "/api/v1/drafts", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := between(rec.Body.String(), `"draftid":"`, `"`)
	require.NotEmpty(t, id)

	rec = serve(h, http.MethodPatch, "/api/v1/drafts/"+id+"/items/a/quantity", `{"delta":1}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	key := map[string]string{idempotency.Header: "k-1"}
	first := serve(h, http.MethodPost, "/api/v1/drafts/"+id+"/submit", "", key)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	again := serve(h, http.MethodPost, "/api/v1/drafts/"+id+"/submit", "", key)
	assert.Equal(t, http.StatusCreated, again.Code)
	assert.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, first.Body.String(), again.Body.String())

	// without the key the draft is already gone
	rec = serve(h, http.MethodPost, "/api/v1/drafts/"+id+"/submit", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func between(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	s = s[i+len(start):]
	j := strings.Index(s, end)
	if j < 0 {
		return ""
	}
	return s[:j]
}
