package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds limiter memory; the least recently seen client
// is forgotten first.
const maxTrackedClients = 10000

// RateLimit allows limit requests per window per client IP, refilling evenly.
// A non-positive limit disables limiting.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 || per <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	every := rate.Every(per / time.Duration(limit))
	clients, _ := lru.New[string, *rate.Limiter](maxTrackedClients)
	var mu sync.Mutex
	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if l, ok := clients.Get(ip); ok {
			return l
		}
		l := rate.NewLimiter(every, limit)
		clients.Add(ip, l)
		return l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := limiterFor(clientIPForRateLimit(r)).Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{
					"code":    "RateLimited",
					"kind":    "rate_limited",
					"message": "too many requests, slow down",
				}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
