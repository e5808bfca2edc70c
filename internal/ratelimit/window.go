package ratelimit

import "time"

// window is a bounded, time-ordered sequence of request timestamps.
// When capacity is exceeded the oldest entries are dropped.
type window struct {
	capacity int
	times    []time.Time
}

func newWindow(capacity int) *window {
	return &window{capacity: capacity}
}

func (w *window) add(t time.Time) {
	w.times = append(w.times, t)
	if len(w.times) > w.capacity {
		// Trim in place so the backing array does not grow without bound.
		n := copy(w.times, w.times[len(w.times)-w.capacity:])
		w.times = w.times[:n]
	}
}

func (w *window) len() int {
	return len(w.times)
}

func (w *window) oldest() (time.Time, bool) {
	if len(w.times) == 0 {
		return time.Time{}, false
	}
	return w.times[0], true
}

// fromEnd returns the n-th timestamp counting back from the newest
// (fromEnd(1) is the newest entry).
func (w *window) fromEnd(n int) (time.Time, bool) {
	if n < 1 || n > len(w.times) {
		return time.Time{}, false
	}
	return w.times[len(w.times)-n], true
}

// countAfter returns how many timestamps are strictly newer than cutoff.
func (w *window) countAfter(cutoff time.Time) int {
	count := 0
	for i := len(w.times) - 1; i >= 0; i-- {
		if !w.times[i].After(cutoff) {
			break
		}
		count++
	}
	return count
}

// after returns the timestamps strictly newer than cutoff, oldest first.
func (w *window) after(cutoff time.Time) []time.Time {
	for i, t := range w.times {
		if t.After(cutoff) {
			out := make([]time.Time, len(w.times)-i)
			copy(out, w.times[i:])
			return out
		}
	}
	return nil
}
