package progress

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "progress.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "progress.db")
	s, err := Open(path)
	require.NoError(t, err)
	s.Close()
}

func TestClaimNewDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Claim(ctx, "doc-1")
	require.NoError(t, err)
	assert.True(t, ok, "first claim on a new document should win")

	r, found, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatusProcessing, r.Status)
	assert.Equal(t, 1, r.Attempts)
}

func TestClaimAlreadyProcessing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Claim(ctx, "doc-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Claim(ctx, "doc-1")
	require.NoError(t, err)
	assert.False(t, ok, "second claim on a live processing record must lose")
}

func TestClaimCompletedDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, err(s.Claim(ctx, "doc-1")))
	require.NoError(t, s.Complete(ctx, "doc-1", 1500*time.Millisecond))

	ok, e := s.Claim(ctx, "doc-1")
	require.NoError(t, e)
	assert.False(t, ok, "completed documents are never reclaimed")

	r, _, _ := s.Get(ctx, "doc-1")
	assert.Equal(t, StatusCompleted, r.Status)
	assert.EqualValues(t, 1500, r.DurationMS)
}

// err discards the bool from Claim for require chains.
func err(_ bool, e error) error { return e }

func TestClaimFailedWithinBudget(t *testing.T) {
	s := newTestStore(t, WithMaxAttempts(2))
	ctx := context.Background()

	require.NoError(t, err(s.Claim(ctx, "doc-1")))
	require.NoError(t, s.Fail(ctx, "doc-1", "fetch: 500"))

	ok, e := s.Claim(ctx, "doc-1")
	require.NoError(t, e)
	assert.True(t, ok, "failed document with attempts remaining is reclaimable")

	require.NoError(t, s.Fail(ctx, "doc-1", "fetch: 500 again"))
	ok, e = s.Claim(ctx, "doc-1")
	require.NoError(t, e)
	assert.False(t, ok, "retry budget exhausted")
}

func TestClaimStaleProcessing(t *testing.T) {
	s := newTestStore(t, WithStaleClaim(1*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, err(s.Claim(ctx, "doc-1")))
	time.Sleep(1100 * time.Millisecond) // RFC 3339 has second resolution

	ok, e := s.Claim(ctx, "doc-1")
	require.NoError(t, e)
	assert.True(t, ok, "stale processing claim should be reclaimable")
}

func TestClaimConcurrentExactlyOneWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const claimers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, e := s.Claim(ctx, "contested")
			assert.NoError(t, e)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one concurrent claimer must win")
}

func TestFailRecordsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, err(s.Claim(ctx, "doc-1")))
	require.NoError(t, s.Fail(ctx, "doc-1", "embed: timeout"))

	r, found, e := s.Get(ctx, "doc-1")
	require.NoError(t, e)
	require.True(t, found)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, "embed: timeout", r.Error)
}

func TestMarkPendingClearsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, err(s.Claim(ctx, "doc-1")))
	require.NoError(t, s.Fail(ctx, "doc-1", "boom"))
	require.NoError(t, s.MarkPending(ctx, "doc-1"))

	r, _, _ := s.Get(ctx, "doc-1")
	assert.Equal(t, StatusPending, r.Status)
	assert.Empty(t, r.Error)

	// MarkPending on an unseen ID creates the row.
	require.NoError(t, s.MarkPending(ctx, "doc-2"))
	r, found, _ := s.Get(ctx, "doc-2")
	require.True(t, found)
	assert.Equal(t, StatusPending, r.Status)
}

func TestStatsAndIterate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, err(s.Claim(ctx, "a")))
	require.NoError(t, s.Complete(ctx, "a", time.Second))
	require.NoError(t, err(s.Claim(ctx, "b")))
	require.NoError(t, s.Fail(ctx, "b", "nope"))
	require.NoError(t, err(s.Claim(ctx, "c")))
	require.NoError(t, s.MarkPending(ctx, "d"))

	stats, e := s.Stats(ctx)
	require.NoError(t, e)
	assert.Equal(t, Stats{Pending: 1, Processing: 1, Completed: 1, Failed: 1}, stats)
	assert.Equal(t, 4, stats.Total())

	failed, e := s.Iterate(ctx, StatusFailed)
	require.NoError(t, e)
	assert.Equal(t, []string{"b"}, failed)

	completed, e := s.Iterate(ctx, StatusCompleted)
	require.NoError(t, e)
	assert.Equal(t, []string{"a"}, completed)
}

func TestIsCompleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	done, e := s.IsCompleted(ctx, "missing")
	require.NoError(t, e)
	assert.False(t, done)

	require.NoError(t, err(s.Claim(ctx, "doc-1")))
	require.NoError(t, s.Complete(ctx, "doc-1", 0))
	done, e = s.IsCompleted(ctx, "doc-1")
	require.NoError(t, e)
	assert.True(t, done)
}

func TestFailures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"x", "y", "z"} {
		require.NoError(t, err(s.Claim(ctx, id)))
		require.NoError(t, s.Fail(ctx, id, "failed "+id))
	}

	recs, e := s.Failures(ctx, 2)
	require.NoError(t, e)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, StatusFailed, r.Status)
		assert.NotEmpty(t, r.Error)
	}
}

func TestResetStale(t *testing.T) {
	s := newTestStore(t, WithStaleClaim(1*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, err(s.Claim(ctx, "doc-1")))
	require.NoError(t, err(s.Claim(ctx, "doc-2")))
	time.Sleep(1100 * time.Millisecond)

	n, e := s.ResetStale(ctx)
	require.NoError(t, e)
	assert.Equal(t, 2, n)

	pending, e := s.Iterate(ctx, StatusPending)
	require.NoError(t, e)
	assert.Len(t, pending, 2)
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, e := s.StartRun(ctx, "--start-date 2024-01-01 --end-date 2024-01-31")
	require.NoError(t, e)
	assert.Positive(t, id)
	require.NoError(t, s.EndRun(ctx, id, RunCompleted))
}
