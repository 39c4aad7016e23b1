package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

// SupportedLocales are the languages user-facing messages exist in; the first
// entry is the fallback.
var SupportedLocales = []language.Tag{language.English, language.Indonesian}

var localeMatcher = language.NewMatcher(SupportedLocales)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			locale := detectLocale(r, defaultLocale, country)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, strings.ToUpper(country))
			}
			w.Header().Set("Content-Language", locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// detectLocale prefers X-Locale, then Accept-Language, then the visitor's
// country, then the configured default.
func detectLocale(r *http.Request, fallback string, country string) string {
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		if locale, ok := matchLocale(v); ok {
			return locale
		}
	}
	if v := r.Header.Get("Accept-Language"); v != "" {
		if locale, ok := matchLocale(v); ok {
			return locale
		}
	}
	if strings.EqualFold(country, "ID") {
		return "id"
	}
	if country != "" {
		return "en"
	}
	if locale, ok := matchLocale(fallback); ok {
		return locale
	}
	return "en"
}

// matchLocale maps a language list onto a supported base language.
func matchLocale(header string) (string, bool) {
	tags, _, err := language.ParseAcceptLanguage(strings.ToLower(header))
	if err != nil || len(tags) == 0 {
		return "", false
	}
	_, idx, conf := localeMatcher.Match(tags...)
	if conf == language.No {
		return "en", true
	}
	base, _ := SupportedLocales[idx].Base()
	return base.String(), true
}

// ClientIP returns the best-effort client IP address for the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return "en"
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CountryKey).(string); ok {
		return v
	}
	return ""
}

// ResolveCountry resolves a best-effort ISO country code for the given request.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	headerHints := []string{"X-Country-Code", "X-IP-Country", "CF-IPCountry", "X-Appengine-Country"}
	for _, key := range headerHints {
		if val := strings.TrimSpace(r.Header.Get(key)); val != "" {
			return strings.ToUpper(val)
		}
	}
	for _, header := range []string{r.Header.Get("X-Locale"), r.Header.Get("Accept-Language")} {
		if region := localeRegion(header); region != "" {
			return region
		}
	}
	for _, header := range []string{r.Header.Get("X-Locale"), r.Header.Get("Accept-Language")} {
		if locale, ok := matchLocale(header); ok && locale == "id" {
			return "ID"
		}
	}
	if lookup != nil {
		if ip := ClientIP(r); ip != "" {
			if country, err := lookup(ip); err == nil && country != "" {
				return strings.ToUpper(country)
			}
		}
	}
	return ""
}

// localeRegion returns the explicit region subtag of the first language.
func localeRegion(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	region, conf := tags[0].Region()
	if conf != language.Exact {
		return ""
	}
	return region.String()
}
