package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"app_reviews/internal/domain"
)

// createTestStore opens a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testReview(id string, at time.Time) domain.Review {
	return domain.Review{
		ReviewID:   id,
		AuthorName: "author " + id,
		AuthorURI:  "https://itunes.apple.com/us/reviews/id" + id,
		Rating:     3,
		Title:      "title " + id,
		Content:    "content " + id,
		UpdatedAt:  at,
		Version:    "2.1",
	}
}

var base = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.InsertBatch(context.Background(), 1, []domain.Review{testReview("a", base)}))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	ok, err := s2.Exists(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok, "rows survive reopen")
}

func TestStore_EmptyApp(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Latest(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	rs, err := s.Since(ctx, 42, base)
	require.NoError(t, err)
	assert.Empty(t, rs)
	assert.NotNil(t, rs, "empty window is an empty slice, not nil")
}

func TestStore_LatestAndSince(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBatch(ctx, 1, []domain.Review{
		testReview("r2", base.Add(2*time.Hour)),
		testReview("r4", base.Add(4*time.Hour)),
		testReview("r1", base.Add(1*time.Hour)),
	}))
	require.NoError(t, s.InsertBatch(ctx, 1, []domain.Review{testReview("r3", base.Add(3*time.Hour))}))
	require.NoError(t, s.InsertBatch(ctx, 2, []domain.Review{testReview("x", base.Add(9*time.Hour))}))

	latest, err := s.Latest(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "r4", latest.ReviewID)
	assert.Equal(t, int64(1), latest.AppID)
	assert.True(t, latest.UpdatedAt.Equal(base.Add(4*time.Hour)))
	assert.Equal(t, time.UTC, latest.UpdatedAt.Location())

	since, err := s.Since(ctx, 1, base.Add(2*time.Hour))
	require.NoError(t, err)
	ids := make([]string, 0, len(since))
	for _, r := range since {
		ids = append(ids, r.ReviewID)
	}
	// strictly after the cutoff, newest first
	assert.Equal(t, []string{"r4", "r3"}, ids)

	got := since[1]
	want := testReview("r3", base.Add(3*time.Hour))
	want.AppID = 1
	assert.Equal(t, want, got)
}

func TestStore_SinceNormalizesCutoffZone(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertBatch(ctx, 1, []domain.Review{testReview("r", base)}))

	// same instant expressed in another zone
	cutoff := base.Add(-time.Minute).In(time.FixedZone("PDT", -7*3600))
	rs, err := s.Since(ctx, 1, cutoff)
	require.NoError(t, err)
	assert.Len(t, rs, 1)
}

func TestStore_InsertBatchDoesNotDeduplicate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	r := testReview("dup", base)

	require.NoError(t, s.InsertBatch(ctx, 1, []domain.Review{r}))
	require.NoError(t, s.InsertBatch(ctx, 1, []domain.Review{r}))

	rs, err := s.Since(ctx, 1, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, rs, 2, "callers pre-filter; the store appends")
}

func TestStore_InsertBatchEmptyIsNoop(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.InsertBatch(context.Background(), 1, nil))
	ok, err := s.Exists(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_InsertBatchCanceledBeforeBegin(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.InsertBatch(ctx, 1, []domain.Review{testReview("a", base), testReview("b", base)})
	require.Error(t, err)

	ok, err := s.Exists(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok, "nothing from a failed batch is visible")
}

func TestStore_InsertBatchRollsBackMidBatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rs := make([]domain.Review, 600)
	for i := range rs {
		rs[i] = testReview(fmt.Sprintf("r%03d", i), base.Add(time.Duration(i)*time.Second))
	}
	rs[550].Rating = 0 // violates the rating CHECK after 550 rows went in

	err := s.InsertBatch(ctx, 1, rs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review r550")

	ok, err := s.Exists(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "rows before the failing one are rolled back")

	// the store is still usable afterwards
	rs[550].Rating = 5
	require.NoError(t, s.InsertBatch(ctx, 1, rs))
	got, err := s.Since(ctx, 1, base.Add(-time.Second))
	require.NoError(t, err)
	assert.Len(t, got, 600)
}

func TestStore_ConcurrentAppsKeepOrdering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for app := int64(1); app <= 4; app++ {
		wg.Add(1)
		go func(app int64) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				r := testReview("r", base.Add(time.Duration(i)*time.Minute))
				assert.NoError(t, s.InsertBatch(ctx, app, []domain.Review{r}))
			}
		}(app)
	}
	wg.Wait()

	for app := int64(1); app <= 4; app++ {
		rs, err := s.Since(ctx, app, base.Add(-time.Second))
		require.NoError(t, err)
		require.Len(t, rs, 5)
		for i := 1; i < len(rs); i++ {
			assert.False(t, rs[i].UpdatedAt.After(rs[i-1].UpdatedAt), "newest first for app %d", app)
		}
	}
}
