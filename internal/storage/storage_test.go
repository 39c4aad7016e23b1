package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+/\d{13}-[0-9a-f-]{36}\.[a-z0-9]+$`)

func TestNewKeyShape(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	tests := []struct {
		owner, name, contentType string
		wantPrefix, wantExt      string
	}{
		{owner: "", name: "photo.JPEG", wantPrefix: "anonymous/1700000000123-", wantExt: ".jpg"},
		{owner: "user-42", name: "x.png", wantPrefix: "user-42/1700000000123-", wantExt: ".png"},
		{owner: "a/../b", name: "", contentType: "image/webp", wantPrefix: "a____b/1700000000123-", wantExt: ".webp"},
		{owner: "u", name: "noext", contentType: "application/pdf", wantPrefix: "u/", wantExt: ".bin"},
	}
	for _, tc := range tests {
		key := NewKey(tc.owner, tc.name, tc.contentType, now)
		require.True(t, strings.HasPrefix(key, tc.wantPrefix), key)
		require.True(t, strings.HasSuffix(key, tc.wantExt), key)
		require.Regexp(t, keyPattern, key)
	}
}

func TestConcurrentUploadsNeverCollide(t *testing.T) {
	store := NewMemoryStore("https://cdn.test")
	now := time.Now()

	var wg sync.WaitGroup
	results := make([]Object, 32)
	errs := make([]error, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := NewKey("same-user", "photo.jpg", "image/jpeg", now)
			results[i], errs[i] = store.Put(context.Background(), key, []byte("x"), "image/jpeg")
		}(i)
	}
	wg.Wait()

	seenKeys := map[string]bool{}
	seenURLs := map[string]bool{}
	for i := range results {
		require.NoError(t, errs[i])
		require.False(t, seenKeys[results[i].Key])
		require.False(t, seenURLs[results[i].URL])
		seenKeys[results[i].Key] = true
		seenURLs[results[i].URL] = true
	}
}

func TestFileStoreNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/static/")
	require.NoError(t, err)
	ctx := context.Background()

	obj, err := store.Put(ctx, "anonymous/1-a.png", []byte("first"), "image/png")
	require.NoError(t, err)
	require.Equal(t, "anonymous/1-a.png", obj.Key)
	require.Equal(t, "http://localhost:8080/static/anonymous/1-a.png", obj.URL)

	_, err = store.Put(ctx, "anonymous/1-a.png", []byte("second"), "image/png")
	require.ErrorIs(t, err, domain.ErrStorageConflict)

	data, err := os.ReadFile(filepath.Join(dir, "anonymous", "1-a.png"))
	require.NoError(t, err)
	require.Equal(t, "first", string(data))

	key, ok := store.KeyFromURL(obj.URL)
	require.True(t, ok)
	require.Equal(t, obj.Key, key)
	_, ok = store.KeyFromURL("https://replicate.delivery/x.jpg")
	require.False(t, ok)

	require.NoError(t, store.Delete(ctx, obj.Key))
	require.ErrorIs(t, store.Delete(ctx, obj.Key), domain.ErrObjectNotFound)

	_, err = store.Put(ctx, "../escape.png", []byte("x"), "image/png")
	require.Error(t, err)
}

func TestSupabaseStoreUploadAndDelete(t *testing.T) {
	var mu sync.Mutex
	stored := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer service-key" || r.Header.Get("apikey") != "service-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.URL.Path == "/storage/v1/object/superhero-images/broken/500.png":
			w.WriteHeader(http.StatusServiceUnavailable)
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/storage/v1/object/superhero-images/"):
			if r.Header.Get("x-upsert") != "false" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			key := strings.TrimPrefix(r.URL.Path, "/storage/v1/object/superhero-images/")
			if stored[key] {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"statusCode":"409","error":"Duplicate","message":"The resource already exists"}`)
				return
			}
			stored[key] = true
			_, _ = io.WriteString(w, `{"Key":"superhero-images/`+key+`"}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/storage/v1/object/superhero-images":
			var body struct {
				Prefixes []string `json:"prefixes"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			removed := []map[string]string{}
			for _, p := range body.Prefixes {
				if stored[p] {
					delete(stored, p)
					removed = append(removed, map[string]string{"name": p})
				}
			}
			_ = json.NewEncoder(w).Encode(removed)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store, err := NewSupabaseStore(SupabaseOptions{ProjectURL: srv.URL, ServiceRoleKey: "service-key"})
	require.NoError(t, err)
	ctx := context.Background()

	obj, err := store.Put(ctx, "user 1/1-a.png", []byte("png"), "image/png")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/storage/v1/object/public/superhero-images/user%201/1-a.png", obj.URL)

	key, ok := store.KeyFromURL(obj.URL)
	require.True(t, ok)
	require.Equal(t, "user 1/1-a.png", key)

	_, err = store.Put(ctx, "user 1/1-a.png", []byte("png"), "image/png")
	require.ErrorIs(t, err, domain.ErrStorageConflict)

	require.NoError(t, store.Delete(ctx, "user 1/1-a.png"))
	require.ErrorIs(t, store.Delete(ctx, "user 1/1-a.png"), domain.ErrObjectNotFound)

	_, err = store.Put(ctx, "broken/500.png", []byte("png"), "image/png")
	require.Equal(t, domain.KindStorage, domain.KindOf(err))
}

type flakyStore struct {
	BlobStore
	failures int
	calls    int
	err      error
}

func (f *flakyStore) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return Object{}, f.err
	}
	return f.BlobStore.Put(ctx, key, data, contentType)
}

func fastBackoff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
}

func TestRetryingStoreRetriesTransientFailures(t *testing.T) {
	flaky := &flakyStore{BlobStore: NewMemoryStore("https://cdn"), failures: 2, err: unavailableError("storage: down", errors.New("503"))}
	store := NewRetryingStore(flaky, fastBackoff, nil)

	obj, err := store.Put(context.Background(), "k/1.png", []byte("x"), "image/png")
	require.NoError(t, err)
	require.Equal(t, "https://cdn/k/1.png", obj.URL)
	require.Equal(t, 3, flaky.calls)
}

func TestRetryingStoreDoesNotRetryConflicts(t *testing.T) {
	flaky := &flakyStore{BlobStore: NewMemoryStore("https://cdn"), failures: 5, err: conflictError("k/1.png", nil)}
	store := NewRetryingStore(flaky, fastBackoff, nil)

	_, err := store.Put(context.Background(), "k/1.png", []byte("x"), "image/png")
	require.ErrorIs(t, err, domain.ErrStorageConflict)
	require.Equal(t, 1, flaky.calls)
}

func TestRetryingStoreGivesUp(t *testing.T) {
	flaky := &flakyStore{BlobStore: NewMemoryStore("https://cdn"), failures: 10, err: unavailableError("storage: down", nil)}
	store := NewRetryingStore(flaky, fastBackoff, nil)

	_, err := store.Put(context.Background(), "k/1.png", []byte("x"), "image/png")
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	require.Equal(t, 4, flaky.calls)
}

func TestRetryingStoreAcceptsItsOwnCommittedUpload(t *testing.T) {
	var mu sync.Mutex
	stored := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		key := strings.TrimPrefix(r.URL.Path, "/storage/v1/object/superhero-images/")
		stored[key]++
		if stored[key] == 1 {
			w.WriteHeader(http.StatusGatewayTimeout)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"statusCode":"409","error":"Duplicate","message":"The resource already exists"}`)
	}))
	defer srv.Close()

	supa, err := NewSupabaseStore(SupabaseOptions{ProjectURL: srv.URL, ServiceRoleKey: "service-key"})
	require.NoError(t, err)
	store := NewRetryingStore(supa, fastBackoff, nil)

	obj, err := store.Put(context.Background(), "anonymous/1-a.png", []byte("png"), "image/png")
	require.NoError(t, err)
	require.Equal(t, "anonymous/1-a.png", obj.Key)
	require.Equal(t, srv.URL+"/storage/v1/object/public/superhero-images/anonymous/1-a.png", obj.URL)
	require.Equal(t, 2, stored["anonymous/1-a.png"])
}

type recordingObserver struct {
	ops []string
}

func (r *recordingObserver) RecordBlob(operation string, duration time.Duration, sizeBytes int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(domain.CodeOf(err))
	}
	r.ops = append(r.ops, operation+":"+outcome)
}

func TestObservedStoreRecordsOutcomes(t *testing.T) {
	obs := &recordingObserver{}
	store := NewObservedStore(NewMemoryStore("https://cdn"), obs)
	ctx := context.Background()

	_, _ = store.Put(ctx, "a/1.png", []byte("x"), "image/png")
	_, _ = store.Put(ctx, "a/1.png", []byte("x"), "image/png")
	_ = store.Delete(ctx, "a/1.png")
	_ = store.Delete(ctx, "a/1.png")
	require.Equal(t, []string{"put:ok", "put:StorageConflict", "delete:ok", "delete:ObjectNotFound"}, obs.ops)
}
