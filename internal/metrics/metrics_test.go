package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := New(reg)
	require.NoError(t, err)

	r.RecordTransition("complete", "ok")
	r.RecordTransition("complete", "ok")
	r.RecordTransition("fail", "stale")
	require.Equal(t, 2.0, testutil.ToFloat64(r.transitions.WithLabelValues("complete", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("fail", "stale")))

	r.RecordBlob("put", 10*time.Millisecond, 128, nil)
	r.RecordBlob("put", time.Millisecond, 64, domain.ErrStorageConflict)
	require.Equal(t, 128.0, testutil.ToFloat64(r.blobBytes))
	require.Equal(t, 1.0, testutil.ToFloat64(r.blobErrors.WithLabelValues("put", "StorageConflict")))

	r.ObserveJobCall("submit", "ok", 200*time.Millisecond)
	require.Equal(t, 1, testutil.CollectAndCount(r.jobCalls))
}

func TestRecorderReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	require.NoError(t, err)
	second, err := New(reg)
	require.NoError(t, err)

	first.RecordTransition("start", "ok")
	second.RecordTransition("start", "ok")
	require.Equal(t, 2.0, testutil.ToFloat64(second.transitions.WithLabelValues("start", "ok")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r, err := New(nil)
	require.NoError(t, err)
	r.RecordTransition("start", "ok")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	require.True(t, strings.Contains(string(body), `mosque_hero_generation_transitions_total{outcome="ok",transition="start"} 1`), string(body))

	var nilRecorder *Recorder
	nilRecorder.RecordTransition("start", "ok")
}
