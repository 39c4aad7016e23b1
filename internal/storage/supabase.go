package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
	"github.com/yazidnurfadil/mosque-hero/internal/infra"
)

// SupabaseOptions configures the Supabase Storage REST backend.
type SupabaseOptions struct {
	ProjectURL     string
	ServiceRoleKey string
	Bucket         string
	HTTPClient     *http.Client
	CacheControl   string
}

// SupabaseStore talks to the Supabase Storage REST API.
type SupabaseStore struct {
	projectURL   string
	key          string
	bucket       string
	cacheControl string
	httpClient   *http.Client
}

type supabaseError struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// NewSupabaseStore validates options and builds the client.
func NewSupabaseStore(opts SupabaseOptions) (*SupabaseStore, error) {
	projectURL := strings.TrimRight(strings.TrimSpace(opts.ProjectURL), "/")
	if projectURL == "" {
		return nil, errors.New("storage: supabase url is required")
	}
	if _, err := url.ParseRequestURI(projectURL); err != nil {
		return nil, fmt.Errorf("storage: supabase url: %w", err)
	}
	key := strings.TrimSpace(opts.ServiceRoleKey)
	if key == "" {
		return nil, errors.New("storage: supabase service role key is required")
	}
	bucket := strings.Trim(strings.TrimSpace(opts.Bucket), "/")
	if bucket == "" {
		bucket = "superhero-images"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	cacheControl := strings.TrimSpace(opts.CacheControl)
	if cacheControl == "" {
		cacheControl = "3600"
	}
	return &SupabaseStore{
		projectURL:   projectURL,
		key:          key,
		bucket:       bucket,
		cacheControl: cacheControl,
		httpClient:   httpClient,
	}, nil
}

// Put uploads with upsert disabled so an existing key is reported as a conflict.
func (s *SupabaseStore) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return Object{}, err
	}
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.projectURL, s.bucket, escapeKey(cleanKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return Object{}, fmt.Errorf("storage: build upload request: %w", err)
	}
	s.authorize(req)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "max-age="+s.cacheControl)
	req.Header.Set("x-upsert", "false")

	status, body, err := s.do(req)
	if err != nil {
		return Object{}, err
	}
	switch {
	case status < 300:
		return Object{Key: cleanKey, URL: s.URL(cleanKey)}, nil
	case isDuplicate(status, body):
		return Object{}, conflictError(cleanKey, nil)
	default:
		return Object{}, classify("upload", status, body)
	}
}

// Delete removes one object. Supabase reports removed objects; an empty list
// means the key did not exist.
func (s *SupabaseStore) Delete(ctx context.Context, key string) error {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string][]string{"prefixes": {cleanKey}})
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s", s.projectURL, s.bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("storage: build delete request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	status, body, err := s.do(req)
	if err != nil {
		return err
	}
	if status >= 300 {
		if status == http.StatusNotFound {
			return notFoundError(cleanKey, nil)
		}
		return classify("delete", status, body)
	}
	var removed []json.RawMessage
	if err := json.Unmarshal(body, &removed); err == nil && len(removed) == 0 {
		return notFoundError(cleanKey, nil)
	}
	return nil
}

// URL returns the public object URL.
func (s *SupabaseStore) URL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.projectURL, s.bucket, escapeKey(strings.TrimLeft(key, "/")))
}

// KeyFromURL extracts the key from a public object URL of this bucket.
func (s *SupabaseStore) KeyFromURL(rawURL string) (string, bool) {
	prefix := fmt.Sprintf("%s/storage/v1/object/public/%s/", s.projectURL, s.bucket)
	if !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	escaped := strings.SplitN(strings.TrimPrefix(rawURL, prefix), "?", 2)[0]
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return "", false
	}
	key, err := sanitizeKey(unescaped)
	if err != nil {
		return "", false
	}
	return key, true
}

func (s *SupabaseStore) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
}

func (s *SupabaseStore) do(req *http.Request) (int, []byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, nil, err
		}
		return 0, nil, unavailableError("storage: supabase request", err)
	}
	defer resp.Body.Close()
	body, err := infra.ReadAllWithLimit(resp.Body, 1<<20)
	if err != nil {
		return 0, nil, unavailableError("storage: read supabase response", err)
	}
	return resp.StatusCode, body, nil
}

func isDuplicate(status int, body []byte) bool {
	if status == http.StatusConflict {
		return true
	}
	var detail supabaseError
	if err := json.Unmarshal(body, &detail); err != nil {
		return false
	}
	return detail.StatusCode == "409" || strings.EqualFold(detail.Error, "Duplicate")
}

func classify(op string, status int, body []byte) error {
	msg := fmt.Sprintf("storage: supabase %s status %d", op, status)
	var detail supabaseError
	if err := json.Unmarshal(body, &detail); err == nil && detail.Message != "" {
		msg = fmt.Sprintf("storage: supabase %s: %s", op, detail.Message)
	}
	if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return unavailableError(msg, nil)
	}
	// Other client errors are rejections that a retry cannot fix.
	return domain.NewError(domain.KindUpstreamProtocol, domain.CodeStorageUnavailable, msg, nil)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var _ BlobStore = (*SupabaseStore)(nil)
