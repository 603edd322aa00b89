package mailview_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/mailtrust/internal/mailview"
	"github.com/raysh454/mailtrust/internal/testutil"
)

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) Notify() { c.n.Add(1) }

func newWatcher(t *testing.T) *mailview.Watcher {
	t.Helper()
	w, err := mailview.NewWatcher(&testutil.DummyLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWatcher_NotifiesOnWrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "msg.eml")
	other := filepath.Join(dir, "other.eml")
	require.NoError(t, os.WriteFile(path, []byte("From: a@example.com\r\n\r\nhi"), 0o644))

	w := newWatcher(t)
	n := &countingNotifier{}
	require.NoError(t, w.Add(path, n))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	assert.Error(t, w.Start(ctx), "second start")

	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("From: b@example.com\r\n\r\nhi"), 0o644))

	require.Eventually(t, func() bool { return n.n.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, w.Notified(), int64(1))
}

func TestWatcher_AtomicRenameIsSeen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "msg.eml")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	w := newWatcher(t)
	n := &countingNotifier{}
	require.NoError(t, w.Add(path, n))
	require.NoError(t, w.Start(context.Background()))

	tmp := filepath.Join(dir, ".msg.eml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("v2"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool { return n.n.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_Validation(t *testing.T) {
	t.Parallel()
	w := newWatcher(t)
	assert.Error(t, w.Add(filepath.Join(t.TempDir(), "x.eml"), nil))
	assert.Error(t, w.Add("/does/not/exist/x.eml", &countingNotifier{}))

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.Error(t, w.Start(context.Background()))
}
