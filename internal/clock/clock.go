// Package clock abstracts time for components that need deterministic tests.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// System is a Clock backed by time.Now.
type System struct{}

// NewSystem creates a system clock.
func NewSystem() System {
	return System{}
}

// Now returns the current time in UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Manual is a Clock whose time only moves when told to. For tests.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock starting at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t.UTC()}
}

// Now returns the manually controlled time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set positions the clock at t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t.UTC()
}
