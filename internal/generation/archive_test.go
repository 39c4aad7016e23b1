package generation

import (
	"archive/zip"
	"bytes"
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
)

func TestArchiveZipsReachableArtifacts(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, "ikhwan")
	tr, err := f.orch.Complete(context.Background(), res.RecordID, domain.Job{Status: domain.JobStatusSucceeded, OutputURL: outputURL})
	require.NoError(t, err)

	// the original is served, the composite is not
	original, ok := f.blobs.Get(res.OriginalKey)
	require.True(t, ok)
	f.fetcher.images[res.OriginalURL] = original

	raw, rec, err := f.orch.Archive(context.Background(), res.RecordID)
	require.NoError(t, err)
	require.Equal(t, tr.Record.ID, rec.ID)

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	var names []string
	for _, file := range zr.File {
		names = append(names, file.Name)
	}
	sort.Strings(names)
	require.Equal(t, []string{"generated.jpg", "original.jpg"}, names)

	composite, ok := f.blobs.Get(domain.Deref(rec.CompositeStoragePath))
	require.True(t, ok)
	f.fetcher.images[domain.Deref(rec.CompositeImageURL)] = composite
	raw, _, err = f.orch.Archive(context.Background(), res.RecordID)
	require.NoError(t, err)
	zr, err = zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)
}

func TestArchiveWithNothingReachable(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, "akhwat")

	_, _, err := f.orch.Archive(context.Background(), res.RecordID)
	require.ErrorIs(t, err, domain.ErrObjectNotFound)

	_, _, err = f.orch.Archive(context.Background(), "6b0a3f8e-0000-4000-8000-000000000001")
	require.ErrorIs(t, err, domain.ErrRecordNotFound)
}
