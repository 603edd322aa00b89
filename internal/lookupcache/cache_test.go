package lookupcache_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/mailtrust/internal/lookupcache"
	"github.com/raysh454/mailtrust/internal/testutil"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openCache(t *testing.T, clk *clock) *lookupcache.Cache {
	t.Helper()
	c, err := lookupcache.Open(lookupcache.Config{Path: ":memory:", TTL: time.Hour}, nil, lookupcache.WithClock(clk.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpen_RequiresPath(t *testing.T) {
	t.Parallel()
	_, err := lookupcache.Open(lookupcache.Config{}, nil)
	require.Error(t, err)
}

func TestOpen_CreatesFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	c, err := lookupcache.Open(lookupcache.Config{Path: path}, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Put(context.Background(), "example.com", nil))
	assert.FileExists(t, path)
}

func TestRegistrations_HitMissAndExpiry(t *testing.T) {
	t.Parallel()
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := openCache(t, clk)
	upstream := &testutil.FakeRegistration{CreateDate: "2001-02-03"}
	prov := c.Registrations(upstream)
	ctx := context.Background()

	reg, err := prov.LookupRegistration(ctx, "Example.COM")
	require.NoError(t, err)
	assert.Equal(t, "2001-02-03", reg.CreateDate)

	reg, err = prov.LookupRegistration(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "2001-02-03", reg.CreateDate)
	assert.EqualValues(t, 1, upstream.Calls.Load(), "second lookup is served from cache")

	clk.Advance(time.Hour)
	_, err = prov.LookupRegistration(ctx, "example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 2, upstream.Calls.Load(), "expired entry goes upstream")
}

func TestRegistrations_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()
	c := openCache(t, &clock{now: time.Now()})
	upstream := &testutil.FakeRegistration{Err: testutil.ErrTransport}
	prov := c.Registrations(upstream)
	ctx := context.Background()

	_, err := prov.LookupRegistration(ctx, "example.com")
	require.ErrorIs(t, err, testutil.ErrTransport)
	_, hit, err := c.Get(ctx, "example.com")
	require.NoError(t, err)
	assert.False(t, hit)

	_, _ = prov.LookupRegistration(ctx, "example.com")
	assert.EqualValues(t, 2, upstream.Calls.Load())
}

func TestPurge(t *testing.T) {
	t.Parallel()
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := openCache(t, clk)
	ctx := context.Background()

	prov := c.Registrations(&testutil.FakeRegistration{CreateDate: "1999"})
	_, err := prov.LookupRegistration(ctx, "old.example")
	require.NoError(t, err)
	clk.Advance(30 * time.Minute)
	_, err = prov.LookupRegistration(ctx, "new.example")
	require.NoError(t, err)
	clk.Advance(45 * time.Minute)

	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, hit, err := c.Get(ctx, "new.example")
	require.NoError(t, err)
	assert.True(t, hit)
}
