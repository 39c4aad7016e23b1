package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
	"github.com/yazidnurfadil/mosque-hero/internal/infra"
)

const (
	DefaultFetchTimeout  = 30 * time.Second
	DefaultMaxFetchBytes = 25 << 20
)

// ImageFetcher downloads an image by URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, string, error)
}

// HTTPFetcher downloads over HTTP with a bounded timeout and body size.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher builds a fetcher. Zero values fall back to the defaults.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFetchBytes
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}, maxBytes: maxBytes}
}

// Fetch returns the body and its content type. Timeouts and 5xx responses are
// transient; other failures are not retriable.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, "", domain.NewError(domain.KindInvalidInput, domain.CodeInvalidRequest, fmt.Sprintf("invalid image url %q", rawURL), err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", "mosque-hero/1.0")
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, "", err
		}
		msg := "fetch image failed"
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			msg = "fetch image timed out"
		}
		return nil, "", domain.NewError(domain.KindTransient, domain.CodeTransientNetwork, msg, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg := fmt.Sprintf("fetch image status %d", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, "", domain.NewError(domain.KindTransient, domain.CodeTransientNetwork, msg, nil)
		}
		return nil, "", domain.NewError(domain.KindUpstreamProtocol, domain.CodeUpstreamProtocol, msg, nil)
	}
	data, err := infra.ReadAllWithLimit(resp.Body, f.maxBytes)
	if err != nil {
		if infra.IsResponseTooLarge(err) {
			return nil, "", domain.NewError(domain.KindProcessing, domain.CodeImageTooLarge, "fetched image too large", err)
		}
		return nil, "", domain.NewError(domain.KindTransient, domain.CodeTransientNetwork, "read image body", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
