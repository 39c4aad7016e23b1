package middleware

import (
	"context"
	"net/http"
	"regexp"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestID honours a well-formed inbound X-Request-ID, otherwise mints a
// UUID, and stores it where chi's GetReqID finds it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if !validRequestID.MatchString(rid) {
			rid = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), chimw.RequestIDKey, rid)
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}
