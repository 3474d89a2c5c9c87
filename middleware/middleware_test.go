package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clubpos/globals"
	"clubpos/journal"
	"clubpos/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, secret []byte, userID string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           userID,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
	})
	s, err := tok.SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestOptionalAuth(t *testing.T) {
	globals.JwtSecret = []byte("test-secret")
	var seen, employee string
	h := OptionalAuth(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		seen = utils.GetUserIDFromRequest(r)
		employee = journal.EmployeeFrom(r.Context())
	})

	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"valid", "Bearer " + signed(t, globals.JwtSecret, "emp-3", time.Now().Add(time.Hour)), "emp-3"},
		{"expired", "Bearer " + signed(t, globals.JwtSecret, "emp-3", time.Now().Add(-time.Hour)), ""},
		{"wrong secret", "Bearer " + signed(t, []byte("other"), "emp-3", time.Now().Add(time.Hour)), ""},
		{"no scheme", "emp-3", ""},
		{"none", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen, employee = "x", "x"
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			h(httptest.NewRecorder(), r, nil)
			assert.Equal(t, tc.want, seen)
			assert.Equal(t, tc.want, employee)
		})
	}
}
