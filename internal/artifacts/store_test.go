package artifacts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yazidnurfadil/mosque-hero/internal/adapter/repo"
	"github.com/yazidnurfadil/mosque-hero/internal/domain"
	"github.com/yazidnurfadil/mosque-hero/internal/storage"
)

func newStore(t *testing.T) (*Store, *storage.MemoryStore, *repo.MemoryGenerationRepository) {
	t.Helper()
	blobs := storage.NewMemoryStore("https://cdn.test/static")
	records := repo.NewMemoryGenerationRepository()
	s, err := New(Options{
		Blobs:   blobs,
		Records: records,
		Clock:   func() time.Time { return time.UnixMilli(1700000000000) },
	})
	require.NoError(t, err)
	return s, blobs, records
}

func TestPutObjectScopesKeys(t *testing.T) {
	s, blobs, _ := newStore(t)
	ctx := context.Background()

	anon, err := s.PutObject(ctx, []byte("a"), "photo.jpg", "image/jpeg", nil)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(anon.Key, "anonymous/1700000000000-"), anon.Key)
	require.True(t, strings.HasSuffix(anon.Key, ".jpg"))

	owned, err := s.PutObject(ctx, []byte("b"), "photo.jpg", "image/jpeg", domain.StringPtr("user-7"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(owned.Key, "user-7/"), owned.Key)

	again, err := s.PutObject(ctx, []byte("c"), "photo.jpg", "image/jpeg", domain.StringPtr("user-7"))
	require.NoError(t, err)
	require.NotEqual(t, owned.Key, again.Key)
	require.NotEqual(t, owned.URL, again.URL)
	require.Len(t, blobs.Keys(), 3)

	_, err = s.PutObject(ctx, nil, "empty.jpg", "image/jpeg", nil)
	require.ErrorIs(t, err, domain.ErrNoImageProvided)
}

func TestUpdateRecordMissing(t *testing.T) {
	s, _, _ := newStore(t)
	_, err := s.UpdateRecord(context.Background(), "nope", domain.GenerationPatch{Status: domain.StatusPtr(domain.GenerationStatusFailed)})
	require.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestQueryRecordsNewestFirst(t *testing.T) {
	s, _, records := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		records.SetClock(func() time.Time { return at })
		_, err := s.CreateRecord(ctx, domain.NewGeneration{OriginalImageURL: string(rune('a' + i)), FrameType: domain.FrameIkhwan, JobID: "j"})
		require.NoError(t, err)
	}
	records.SetClock(func() time.Time { return base })
	_, err := s.CreateRecord(ctx, domain.NewGeneration{UserID: domain.StringPtr("u1"), OriginalImageURL: "owned", FrameType: domain.FrameAkhwat, JobID: "k"})
	require.NoError(t, err)

	anon, err := s.QueryRecords(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, anon, 2)
	require.Equal(t, "c", anon[0].OriginalImageURL)
	require.Equal(t, "b", anon[1].OriginalImageURL)

	owned, err := s.QueryRecords(ctx, domain.StringPtr("u1"), 0)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, "owned", owned[0].OriginalImageURL)
}

func TestDeleteRecordRemovesReferencedBlobs(t *testing.T) {
	s, blobs, records := newStore(t)
	ctx := context.Background()

	orig, err := s.PutObject(ctx, []byte("o"), "o.jpg", "image/jpeg", nil)
	require.NoError(t, err)
	comp, err := s.PutObject(ctx, []byte("c"), "composite.png", "image/png", nil)
	require.NoError(t, err)
	rec, err := s.CreateRecord(ctx, domain.NewGeneration{OriginalImageURL: orig.URL, FrameType: domain.FrameIkhwan, JobID: "j"})
	require.NoError(t, err)
	_, err = s.UpdateRecord(ctx, rec.ID, domain.GenerationPatch{
		GeneratedImageURL:    domain.StringPtr("https://replicate.delivery/out.jpg"),
		CompositeImageURL:    domain.StringPtr(comp.URL),
		CompositeStoragePath: domain.StringPtr(comp.Key),
		Status:               domain.StatusPtr(domain.GenerationStatusCompleted),
	})
	require.NoError(t, err)

	stored, err := s.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{orig.Key, comp.Key}, s.ReferencedKeys(stored))

	ok, err := s.DeleteRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, blobs.Keys())
	require.Equal(t, 0, records.Len())

	ok, err = s.DeleteRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteRecordToleratesMissingBlobs(t *testing.T) {
	s, _, records := newStore(t)
	ctx := context.Background()

	rec, err := s.CreateRecord(ctx, domain.NewGeneration{
		OriginalImageURL: "https://cdn.test/static/anonymous/1-gone.jpg",
		FrameType:        domain.FrameAkhwat,
		JobID:            "j",
	})
	require.NoError(t, err)
	_, err = s.UpdateRecord(ctx, rec.ID, domain.GenerationPatch{
		CompositeImageURL:    domain.StringPtr("https://cdn.test/static/anonymous/2-gone.png"),
		CompositeStoragePath: domain.StringPtr("anonymous/2-gone.png"),
		Status:               domain.StatusPtr(domain.GenerationStatusCompleted),
	})
	require.NoError(t, err)

	ok, err := s.DeleteRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, records.Len())
}

type failingDeleteRepo struct {
	*repo.MemoryGenerationRepository
}

func (f failingDeleteRepo) Delete(ctx context.Context, id string) (bool, error) {
	return false, domain.NewError(domain.KindStorage, domain.CodeStorageUnavailable, "metadata store: delete generation", errors.New("conn reset"))
}

func TestDeleteRecordPropagatesMetadataFailure(t *testing.T) {
	records := failingDeleteRepo{repo.NewMemoryGenerationRepository()}
	s, err := New(Options{Blobs: storage.NewMemoryStore("https://cdn"), Records: records})
	require.NoError(t, err)
	rec, err := s.CreateRecord(context.Background(), domain.NewGeneration{OriginalImageURL: "x", FrameType: domain.FrameIkhwan})
	require.NoError(t, err)

	_, err = s.DeleteRecord(context.Background(), rec.ID)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
}
