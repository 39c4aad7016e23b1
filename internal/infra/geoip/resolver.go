// Package geoip resolves visitor countries so the booth can pick Indonesian
// copy without an explicit locale header.
package geoip

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/oschwald/geoip2-golang"
)

// ErrUnavailable is returned when no database is loaded.
var ErrUnavailable = errors.New("geoip resolver unavailable")

const (
	cacheSize = 4096
	cacheTTL  = time.Hour
)

type countryReader interface {
	Country(ip net.IP) (*geoip2.Country, error)
	Close() error
}

// Resolver answers country lookups from a MaxMind database, caching results
// per IP.
type Resolver struct {
	reader countryReader
	cache  *expirable.LRU[string, string]
}

// NewResolver opens the database at path. An empty path yields a nil
// resolver, which is safe to call and always reports ErrUnavailable.
func NewResolver(path string) (*Resolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return newResolver(reader), nil
}

func newResolver(reader countryReader) *Resolver {
	return &Resolver{reader: reader, cache: expirable.NewLRU[string, string](cacheSize, nil, cacheTTL)}
}

// CountryCode returns the ISO country code for ip, or "" when the database
// has no answer.
func (r *Resolver) CountryCode(ip string) (string, error) {
	if r == nil || r.reader == nil {
		return "", ErrUnavailable
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "", fmt.Errorf("geoip: invalid ip %q", ip)
	}
	if parsed.IsLoopback() || parsed.IsPrivate() {
		return "", nil
	}
	key := parsed.String()
	if code, ok := r.cache.Get(key); ok {
		return code, nil
	}
	record, err := r.reader.Country(parsed)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup country: %w", err)
	}
	code := ""
	if record != nil {
		code = strings.ToUpper(record.Country.IsoCode)
	}
	r.cache.Add(key, code)
	return code, nil
}

// Close releases the database.
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}
