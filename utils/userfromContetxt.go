package utils

import (
	"net/http"

	"clubpos/globals"
)

// GetUserIDFromRequest returns the employee id set by the auth middleware,
// or "" for anonymous requests.
func GetUserIDFromRequest(r *http.Request) string {
	id, ok := r.Context().Value(globals.UserIDKey).(string)
	if !ok {
		return ""
	}
	return id
}
