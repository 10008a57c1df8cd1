package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) *RunLock {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "output", "parsing.lock"))
}

func TestAcquireAndRelease(t *testing.T) {
	l := newTestLock(t)
	assert.False(t, l.IsHeld())

	require.NoError(t, l.Acquire())
	assert.True(t, l.IsHeld())

	require.NoError(t, l.Release())
	assert.False(t, l.IsHeld())
}

func TestRelease_Idempotent(t *testing.T) {
	l := newTestLock(t)
	require.NoError(t, l.Release())

	require.NoError(t, l.Acquire())
	require.NoError(t, l.Release())
	require.NoError(t, l.Release())
}

func TestIsHeld_StaleMarkerIgnored(t *testing.T) {
	l := newTestLock(t)
	l.now = func() time.Time { return time.Now().Add(-3601 * time.Second) }
	require.NoError(t, l.Acquire())

	l.now = time.Now
	_, err := os.Stat(l.Path())
	require.NoError(t, err, "marker file should still exist")
	assert.False(t, l.IsHeld())
}

func TestIsHeld_FallsBackToModTime(t *testing.T) {
	l := newTestLock(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(l.Path()), 0755))
	require.NoError(t, os.WriteFile(l.Path(), []byte("2024-01-01 00:00:00.000000"), 0644))
	assert.True(t, l.IsHeld())

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(l.Path(), old, old))
	assert.False(t, l.IsHeld())
}

func TestAcquire_FreshMarkerKept(t *testing.T) {
	l := newTestLock(t)
	first := time.Now().Add(-10 * time.Minute)
	l.now = func() time.Time { return first }
	require.NoError(t, l.Acquire())

	l.now = time.Now
	require.NoError(t, l.Acquire())

	age, ok := l.Age()
	require.True(t, ok)
	assert.GreaterOrEqual(t, age, 10*time.Minute)
}

func TestAcquire_StaleMarkerReplaced(t *testing.T) {
	l := newTestLock(t)
	l.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	require.NoError(t, l.Acquire())

	l.now = time.Now
	require.NoError(t, l.Acquire())
	assert.True(t, l.IsHeld())
}

func TestRun_ReleasesOnError(t *testing.T) {
	l := newTestLock(t)
	boom := errors.New("boom")

	err := l.Run(context.Background(), func(ctx context.Context) error {
		assert.True(t, l.IsHeld())
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, l.IsHeld())
}

func TestRun_ReleasesOnPanic(t *testing.T) {
	l := newTestLock(t)

	assert.Panics(t, func() {
		_ = l.Run(context.Background(), func(ctx context.Context) error {
			panic("scrape exploded")
		})
	})
	assert.False(t, l.IsHeld())
}

func TestRun_RejectsWhenHeld(t *testing.T) {
	l := newTestLock(t)
	require.NoError(t, l.Acquire())

	called := false
	err := l.Run(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.False(t, called)
	assert.True(t, l.IsHeld(), "foreign marker must be left alone")
}

func TestWait_ReturnsOnceReleased(t *testing.T) {
	l := newTestLock(t)
	require.NoError(t, l.Acquire())

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = l.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Wait(ctx, 5*time.Millisecond, nil))
}

func TestWait_Cancelled(t *testing.T) {
	l := newTestLock(t)
	require.NoError(t, l.Acquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx, 5*time.Millisecond, nil), context.DeadlineExceeded)
}
