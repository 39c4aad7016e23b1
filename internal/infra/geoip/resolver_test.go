package geoip

import (
	"errors"
	"net"
	"testing"

	"github.com/oschwald/geoip2-golang"
)

type fakeReader struct {
	calls int
	code  string
	err   error
}

func (f *fakeReader) Country(ip net.IP) (*geoip2.Country, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	rec := &geoip2.Country{}
	rec.Country.IsoCode = f.code
	return rec, nil
}

func (f *fakeReader) Close() error { return nil }

func TestNilResolverIsUnavailable(t *testing.T) {
	r, err := NewResolver("  ")
	if err != nil || r != nil {
		t.Fatalf("expected nil resolver, got %v %v", r, err)
	}
	if _, err := r.CountryCode("36.68.1.1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close nil resolver: %v", err)
	}
}

func TestCountryCodeCachesLookups(t *testing.T) {
	reader := &fakeReader{code: "id"}
	r := newResolver(reader)

	for i := 0; i < 3; i++ {
		code, err := r.CountryCode("36.68.1.1")
		if err != nil || code != "ID" {
			t.Fatalf("lookup %d: %q %v", i, code, err)
		}
	}
	if reader.calls != 1 {
		t.Fatalf("expected one database read, got %d", reader.calls)
	}
}

func TestCountryCodeSkipsPrivateAndInvalid(t *testing.T) {
	reader := &fakeReader{code: "SG"}
	r := newResolver(reader)

	if code, err := r.CountryCode("192.168.1.10"); err != nil || code != "" {
		t.Fatalf("private ip: %q %v", code, err)
	}
	if _, err := r.CountryCode("not-an-ip"); err == nil {
		t.Fatal("expected error for invalid ip")
	}
	if reader.calls != 0 {
		t.Fatalf("database consulted %d times", reader.calls)
	}

	reader.err = errors.New("corrupt")
	if _, err := r.CountryCode("8.8.8.8"); err == nil {
		t.Fatal("expected lookup error")
	}
}
