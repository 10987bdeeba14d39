package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"filevault-backend/internal/files"
)

var errThrottled = errors.New("throttled")

type failingList struct {
	*files.MemoryRepo
}

func (failingList) ListSignedExpiringBefore(context.Context, time.Time, int, int) ([]files.File, error) {
	return nil, errors.New("connection refused")
}

func seedSigned(t *testing.T, repo *files.MemoryRepo, key string, expiry time.Time) files.File {
	t.Helper()
	f, err := repo.Create(context.Background(), files.File{
		UserID:     "user-1",
		Key:        key,
		URL:        "https://bucket/" + key + "?sig=old",
		IsSigned:   true,
		ExpiryTime: &expiry,
	})
	require.NoError(t, err)
	return f
}

func newRefresher(repo ExpiringFiles, signer URLSigner, now time.Time) *Refresher {
	return &Refresher{
		Files:       repo,
		Signer:      signer,
		Validity:    24 * time.Hour,
		Lookahead:   2 * time.Hour,
		PageSize:    2,
		Concurrency: 10,
		Now:         func() time.Time { return now },
	}
}

func TestRefresherResignsExpiringRecord(t *testing.T) {
	now := time.Now().UTC()
	repo := files.NewMemoryRepo()
	bucket := newFakeBucket(now, "soon.pdf", "later.pdf")
	soon := seedSigned(t, repo, "soon.pdf", now.Add(30*time.Minute))
	seedSigned(t, repo, "later.pdf", now.Add(10*time.Hour))

	rep := newRefresher(repo, bucket, now).Run(context.Background())
	require.NoError(t, rep.Err)
	require.Equal(t, 1, rep.Refreshed)
	require.Equal(t, StatusOK, rep.Status())

	got, err := repo.FindByKey(context.Background(), "soon.pdf")
	require.NoError(t, err)
	require.NotEqual(t, soon.URL, got.URL)
	require.WithinDuration(t, now.Add(24*time.Hour), *got.ExpiryTime, time.Second)

	later, err := repo.FindByKey(context.Background(), "later.pdf")
	require.NoError(t, err)
	require.Equal(t, "https://bucket/later.pdf?sig=old", later.URL)
}

func TestRefresherWalksEveryPage(t *testing.T) {
	now := time.Now().UTC()
	repo := files.NewMemoryRepo()
	bucket := newFakeBucket(now)
	for i := 0; i < 7; i++ {
		key := fmt.Sprintf("k%02d", i)
		bucket.objects[key] = now
		seedSigned(t, repo, key, now.Add(time.Duration(i)*time.Minute))
	}

	rep := newRefresher(repo, bucket, now).Run(context.Background())
	require.NoError(t, rep.Err)
	require.Equal(t, 7, rep.Refreshed)
	require.Equal(t, 7, rep.Scanned)

	left, err := repo.ListSignedExpiringBefore(context.Background(), now.Add(2*time.Hour), 100, 0)
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestRefresherIsolatesFailuresAcrossPages(t *testing.T) {
	now := time.Now().UTC()
	repo := files.NewMemoryRepo()
	bucket := newFakeBucket(now)
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("k%d", i)
		bucket.objects[key] = now
		seedSigned(t, repo, key, now.Add(time.Duration(i)*time.Minute))
	}
	bucket.signErr["k0"] = errThrottled
	bucket.signErr["k3"] = errThrottled

	rep := newRefresher(repo, bucket, now).Run(context.Background())
	require.NoError(t, rep.Err)
	require.Equal(t, 3, rep.Refreshed)
	require.Equal(t, 2, rep.Failed)
	require.Equal(t, StatusPartial, rep.Status())

	for _, key := range []string{"k1", "k2", "k4"} {
		f, err := repo.FindByKey(context.Background(), key)
		require.NoError(t, err)
		require.True(t, f.ExpiryTime.After(now.Add(2*time.Hour)), key)
	}
	for _, key := range []string{"k0", "k3"} {
		f, err := repo.FindByKey(context.Background(), key)
		require.NoError(t, err)
		require.Contains(t, f.URL, "sig=old", key)
	}
}

func TestRefresherReportsMissingObjectAsInconsistent(t *testing.T) {
	now := time.Now().UTC()
	repo := files.NewMemoryRepo()
	bucket := newFakeBucket(now, "present")
	seedSigned(t, repo, "gone", now.Add(time.Minute))
	seedSigned(t, repo, "present", now.Add(2*time.Minute))

	rep := newRefresher(repo, bucket, now).Run(context.Background())
	require.NoError(t, rep.Err)
	require.Equal(t, 1, rep.Inconsistent)
	require.Equal(t, 1, rep.Refreshed)
	require.Zero(t, rep.Failed)

	gone, err := repo.FindByKey(context.Background(), "gone")
	require.NoError(t, err)
	require.Equal(t, "https://bucket/gone?sig=old", gone.URL)
}

func TestRefresherSecondRunIsNoop(t *testing.T) {
	now := time.Now().UTC()
	repo := files.NewMemoryRepo()
	bucket := newFakeBucket(now, "a", "b")
	seedSigned(t, repo, "a", now.Add(-time.Hour))
	seedSigned(t, repo, "b", now.Add(time.Hour))

	r := newRefresher(repo, bucket, now)
	first := r.Run(context.Background())
	require.Equal(t, 2, first.Refreshed)

	a, _ := repo.FindByKey(context.Background(), "a")
	second := r.Run(context.Background())
	require.Zero(t, second.Scanned)

	again, _ := repo.FindByKey(context.Background(), "a")
	require.Equal(t, a.URL, again.URL)
	require.Equal(t, *a.ExpiryTime, *again.ExpiryTime)
}

func TestRefresherSkipsWhenExpiryWouldNotAdvance(t *testing.T) {
	now := time.Now().UTC()
	repo := files.NewMemoryRepo()
	bucket := newFakeBucket(now, "a")
	f := seedSigned(t, repo, "a", now.Add(time.Minute))

	// A concurrent writer already pushed the expiry further out.
	_, err := repo.UpdateURLAndExpiry(context.Background(), f.ID, "https://bucket/a?sig=newer", now.Add(48*time.Hour))
	require.NoError(t, err)

	rep := newRefresher(staleList{repo: repo, page: []files.File{f}}, bucket, now).Run(context.Background())
	require.NoError(t, rep.Err)
	require.Equal(t, 1, rep.Skipped)
	require.Zero(t, rep.Refreshed)

	got, _ := repo.FindByKey(context.Background(), "a")
	require.Equal(t, "https://bucket/a?sig=newer", got.URL)
}

func TestRefresherListFailureStillCompletes(t *testing.T) {
	now := time.Now().UTC()
	rep := newRefresher(failingList{files.NewMemoryRepo()}, newFakeBucket(now), now).Run(context.Background())
	require.Error(t, rep.Err)
	require.Equal(t, StatusError, rep.Status())
	require.Zero(t, rep.Scanned)
	require.NotEmpty(t, rep.RunID)
}

// staleList serves a fixed first page, as a listing read before a concurrent update would.
type staleList struct {
	repo *files.MemoryRepo
	page []files.File
}

func (s staleList) ListSignedExpiringBefore(_ context.Context, _ time.Time, _, offset int) ([]files.File, error) {
	if offset >= len(s.page) {
		return nil, nil
	}
	return s.page[offset:], nil
}

func (s staleList) UpdateURLAndExpiry(ctx context.Context, id int64, url string, expiry time.Time) (int64, error) {
	return s.repo.UpdateURLAndExpiry(ctx, id, url, expiry)
}

type countingList struct {
	*files.MemoryRepo
	calls int
}

func (c *countingList) ListSignedExpiringBefore(ctx context.Context, threshold time.Time, limit, offset int) ([]files.File, error) {
	c.calls++
	return c.MemoryRepo.ListSignedExpiringBefore(ctx, threshold, limit, offset)
}

func TestRefresherDefaultsZeroWindow(t *testing.T) {
	now := time.Now().UTC()
	repo := files.NewMemoryRepo()
	bucket := newFakeBucket(now, "a", "b", "c")
	for _, key := range []string{"a", "b", "c"} {
		seedSigned(t, repo, key, now.Add(time.Minute))
	}
	list := &countingList{MemoryRepo: repo}

	r := &Refresher{Files: list, Signer: bucket, PageSize: 2, Now: func() time.Time { return now }}
	rep := r.Run(context.Background())
	require.NoError(t, rep.Err)
	require.Equal(t, 3, rep.Refreshed)
	require.LessOrEqual(t, list.calls, 3)

	got, err := repo.FindByKey(context.Background(), "a")
	require.NoError(t, err)
	require.WithinDuration(t, now.Add(DefaultValidity), *got.ExpiryTime, time.Second)
}

func TestRefresherRejectsValidityWithinLookahead(t *testing.T) {
	now := time.Now().UTC()
	repo := files.NewMemoryRepo()
	seedSigned(t, repo, "a", now.Add(time.Minute))
	list := &countingList{MemoryRepo: repo}

	r := newRefresher(list, newFakeBucket(now, "a"), now)
	r.Validity = time.Hour
	r.Lookahead = 2 * time.Hour

	rep := r.Run(context.Background())
	require.ErrorIs(t, rep.Err, ErrInvalidWindow)
	require.Equal(t, StatusError, rep.Status())
	require.Zero(t, list.calls)
	require.Zero(t, rep.Scanned)
}
