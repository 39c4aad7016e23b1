package middleware

import "net/http"

// CORS reflects allowed origins. A "*" entry allows any origin without
// credentials.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allow := make(map[string]struct{}, len(allowedOrigins))
	wildcard := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			wildcard = true
			continue
		}
		allow[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				_, listed := allow[origin]
				if listed || wildcard {
					h := w.Header()
					h.Add("Vary", "Origin")
					if listed {
						h.Set("Access-Control-Allow-Origin", origin)
						h.Set("Access-Control-Allow-Credentials", "true")
					} else {
						h.Set("Access-Control-Allow-Origin", "*")
					}
					h.Set("Access-Control-Allow-Headers", "Content-Type, X-Locale, X-Request-ID, X-User-ID")
					h.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
					h.Set("Access-Control-Expose-Headers", "X-Request-ID, Content-Disposition")
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
