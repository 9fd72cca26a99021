package voice

import (
	"sync"
	"time"
)

// DefaultGestureWindow is how long a press counts as an ongoing user interaction.
const DefaultGestureWindow = 30 * time.Second

// GestureLease records that the code still runs inside a user interaction.
// Mobile synthesis engines only start audio while the lease is live.
//
// The lease expires lazily: Live compares against the clock, no timer runs.
// While pinned it never expires; unpinning extends it by a full window.
type GestureLease struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	expires time.Time
	pins    int
}

func NewGestureLease(window time.Duration, now func() time.Time) *GestureLease {
	if window <= 0 {
		window = DefaultGestureWindow
	}
	if now == nil {
		now = time.Now
	}
	return &GestureLease{window: window, now: now}
}

// Acquire starts a fresh window. Called on every qualifying input.
func (l *GestureLease) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expires = l.now().Add(l.window)
}

// Extend pushes the expiry out by a full window if the lease is still live.
func (l *GestureLease) Extend() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.liveLocked() {
		return false
	}
	l.expires = l.now().Add(l.window)
	return true
}

// Pin keeps a live lease alive until the matching Unpin. Pinning an expired
// lease has no effect and returns false.
func (l *GestureLease) Pin() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.liveLocked() {
		return false
	}
	l.pins++
	return true
}

func (l *GestureLease) Unpin() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pins == 0 {
		return
	}
	l.pins--
	if l.pins == 0 {
		l.expires = l.now().Add(l.window)
	}
}

func (l *GestureLease) Live() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.liveLocked()
}

// Release consumes the lease.
func (l *GestureLease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pins = 0
	l.expires = time.Time{}
}

func (l *GestureLease) liveLocked() bool {
	return l.pins > 0 || l.now().Before(l.expires)
}
