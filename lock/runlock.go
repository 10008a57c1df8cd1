// Package lock implements the advisory run marker that keeps two scrape
// passes from overlapping.
//
// The marker is check-then-act: IsHeld followed by Acquire is not atomic, so
// two processes starting in the same instant can both proceed. Scrape passes
// are started by a single scheduler or by hand, which is why that window is
// tolerated.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// StaleAfter is the age past which a marker is treated as abandoned.
const StaleAfter = time.Hour

// ErrRunInProgress is returned by Run when a fresh marker already exists.
var ErrRunInProgress = eris.New("scrape run already in progress")

type marker struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

type RunLock struct {
	path       string
	staleAfter time.Duration
	now        func() time.Time
}

func New(path string) *RunLock {
	return &RunLock{
		path:       path,
		staleAfter: StaleAfter,
		now:        time.Now,
	}
}

func (l *RunLock) Path() string {
	return l.path
}

// Acquire writes the marker with the current time. It does nothing when a
// fresh marker already exists; a stale marker is replaced.
func (l *RunLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return eris.Wrap(err, "create lock dir")
	}

	for i := 0; i < 2; i++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			defer f.Close()
			data, _ := json.Marshal(marker{PID: os.Getpid(), AcquiredAt: l.now()})
			if _, err := f.Write(data); err != nil {
				return eris.Wrap(err, "write lock marker")
			}
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return eris.Wrap(err, "create lock marker")
		}
		if l.IsHeld() {
			return nil
		}
		zap.L().Warn("replacing stale run lock", zap.String("path", l.path))
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return eris.Wrap(err, "remove stale lock marker")
		}
	}
	return nil
}

// IsHeld reports whether a marker exists and is younger than the staleness threshold.
func (l *RunLock) IsHeld() bool {
	acquired, ok := l.acquiredAt()
	if !ok {
		return false
	}
	return l.now().Sub(acquired) < l.staleAfter
}

// Age returns how long ago the current marker was written.
func (l *RunLock) Age() (time.Duration, bool) {
	acquired, ok := l.acquiredAt()
	if !ok {
		return 0, false
	}
	return l.now().Sub(acquired), true
}

// Release removes the marker. Safe to call when no marker exists.
func (l *RunLock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return eris.Wrap(err, "remove lock marker")
	}
	return nil
}

// Run executes fn while holding the marker and releases it on every exit
// path, panics included. ErrRunInProgress is returned without calling fn
// when another pass holds a fresh marker.
func (l *RunLock) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.IsHeld() {
		return ErrRunInProgress
	}
	if err := l.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			zap.L().Error("release run lock", zap.Error(err))
		}
	}()
	return fn(ctx)
}

// Wait blocks until no fresh marker exists, polling every interval.
func (l *RunLock) Wait(ctx context.Context, interval time.Duration, onPoll func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for l.IsHeld() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if onPoll != nil {
				onPoll()
			}
		}
	}
	return nil
}

func (l *RunLock) acquiredAt() (time.Time, bool) {
	info, err := os.Stat(l.path)
	if err != nil {
		return time.Time{}, false
	}

	data, err := os.ReadFile(l.path)
	if err == nil {
		var m marker
		if json.Unmarshal(data, &m) == nil && !m.AcquiredAt.IsZero() {
			return m.AcquiredAt, true
		}
	}
	// Markers written by other tools carry no timestamp; fall back to mtime.
	return info.ModTime(), true
}
