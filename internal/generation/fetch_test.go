package generation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		case "/big":
			_, _ = w.Write(make([]byte, 64))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		case "/down":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(50*time.Millisecond, 32)
	ctx := context.Background()

	data, ct, err := f.Fetch(ctx, srv.URL+"/ok.png")
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(data))
	require.Equal(t, "image/png", ct)

	_, _, err = f.Fetch(ctx, srv.URL+"/big")
	require.Equal(t, domain.CodeImageTooLarge, domain.CodeOf(err))

	_, _, err = f.Fetch(ctx, srv.URL+"/slow")
	require.Equal(t, domain.KindTransient, domain.KindOf(err))
	require.True(t, domain.IsRetriable(err))

	_, _, err = f.Fetch(ctx, srv.URL+"/down")
	require.True(t, domain.IsRetriable(err))

	_, _, err = f.Fetch(ctx, srv.URL+"/missing")
	require.Equal(t, domain.KindUpstreamProtocol, domain.KindOf(err))
	require.False(t, domain.IsRetriable(err))

	_, _, err = f.Fetch(ctx, "ftp://example.com/x.png")
	require.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}
