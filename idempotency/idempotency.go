// Package idempotency replays the stored response of a mutating request
// when a client retries it with the same Idempotency-Key header.
package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"time"

	"clubpos/utils"

	"github.com/julienschmidt/httprouter"
)

const Header = "Idempotency-Key"

type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type Record struct {
	Key         string    `json:"key"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	UserID      string    `json:"user_id"`
	RequestHash string    `json:"request_hash"`
	Response    *Response `json:"response,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists records. Reserve must be atomic: of several concurrent
// calls for one key exactly one returns true.
type Store interface {
	Reserve(ctx context.Context, rec Record, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (Record, bool, error)
	Complete(ctx context.Context, rec Record, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

func computeRequestHash(r *http.Request, bodyBytes []byte, userID string) string {
	h := sha256.New()
	h.Write([]byte(r.Method + ":" + r.URL.Path + ":" + userID + ":"))
	h.Write(bodyBytes)
	return hex.EncodeToString(h.Sum(nil))
}

// CaptureResponseWriter wraps http.ResponseWriter to capture status and body.
type CaptureResponseWriter struct {
	w           http.ResponseWriter
	statusCode  int
	buf         bytes.Buffer
	wroteHeader bool
}

func NewCaptureResponseWriter(w http.ResponseWriter) *CaptureResponseWriter {
	return &CaptureResponseWriter{w: w, statusCode: http.StatusOK}
}

func (c *CaptureResponseWriter) Header() http.Header {
	return c.w.Header()
}

func (c *CaptureResponseWriter) WriteHeader(statusCode int) {
	if !c.wroteHeader {
		c.statusCode = statusCode
		c.w.WriteHeader(statusCode)
		c.wroteHeader = true
	}
}

func (c *CaptureResponseWriter) Write(b []byte) (int, error) {
	c.wroteHeader = true
	c.buf.Write(b)
	return c.w.Write(b)
}

func (c *CaptureResponseWriter) Status() int {
	return c.statusCode
}

func (c *CaptureResponseWriter) BodyBytes() []byte {
	return c.buf.Bytes()
}

// Middleware makes a handler safe to retry. Without the header requests
// pass through. With it:
//   - the first request runs and its response is stored for ttl;
//   - a retry with the same body gets the stored response;
//   - a retry with a different body, or while the first is still running,
//     gets 409.
//
// Server errors are not stored, so a retry after a 5xx runs again.
func Middleware(store Store, ttl time.Duration) func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			key := r.Header.Get(Header)
			if key == "" {
				next(w, r, ps)
				return
			}

			userID := utils.GetUserIDFromRequest(r)

			// Limit body size to 1 MB to prevent memory issues
			bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			if err != nil {
				utils.RespondWithError(w, http.StatusBadRequest, "failed to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			ctx := r.Context()
			rec := Record{
				Key:         key,
				Method:      r.Method,
				Path:        r.URL.Path,
				UserID:      userID,
				RequestHash: computeRequestHash(r, bodyBytes, userID),
				CreatedAt:   time.Now().UTC(),
			}

			reserved, err := store.Reserve(ctx, rec, ttl)
			if err != nil {
				slog.ErrorContext(ctx, "idempotency reserve failed", "key", key, "error", err)
				utils.RespondWithError(w, http.StatusInternalServerError, "idempotency lookup error")
				return
			}
			if reserved {
				crw := NewCaptureResponseWriter(w)
				next(crw, r, ps)

				if crw.Status() >= http.StatusInternalServerError {
					if err := store.Release(context.WithoutCancel(ctx), key); err != nil {
						slog.ErrorContext(ctx, "idempotency release failed", "key", key, "error", err)
					}
					return
				}
				rec.Response = &Response{
					Status:      crw.Status(),
					ContentType: w.Header().Get("Content-Type"),
					Body:        append([]byte(nil), crw.BodyBytes()...),
				}
				if err := store.Complete(context.WithoutCancel(ctx), rec, ttl); err != nil {
					slog.ErrorContext(ctx, "idempotency complete failed", "key", key, "error", err)
				}
				return
			}

			existing, found, err := store.Get(ctx, key)
			if err != nil || !found {
				utils.RespondWithError(w, http.StatusInternalServerError, "idempotency lookup error")
				return
			}
			if existing.RequestHash != rec.RequestHash {
				utils.RespondWithError(w, http.StatusConflict, "idempotency key reused with a different request")
				return
			}
			if existing.Response == nil {
				utils.RespondWithError(w, http.StatusConflict, "request with this idempotency key is still in progress")
				return
			}

			if existing.Response.ContentType != "" {
				w.Header().Set("Content-Type", existing.Response.ContentType)
			}
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(existing.Response.Status)
			_, _ = w.Write(existing.Response.Body)
		}
	}
}
