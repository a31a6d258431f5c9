// Package ratelimit implements bucket-approximated sliding-window rate
// limiting. Each window keeps a fixed ring of time buckets, so memory is
// O(1) per window and the admission scan is bounded by the bucket count;
// the worst-case overshoot versus a precise window is one bucket width.
package ratelimit

import (
	"time"
)

// slotCount is the number of time buckets per sliding window. One extra
// sentinel slot is kept so a full ring still covers the whole interval.
const slotCount = 20

type slot struct {
	from time.Duration // bucket start, as an offset from the clock epoch
	hits int
}

// Window is a single sliding-window limit: at most limit hits per interval.
// It is not safe for concurrent use; callers serialize access (the
// rate-limited client holds one mutex around its whole Group).
type Window struct {
	interval time.Duration
	slotSize time.Duration
	limit    int
	slots    *ring[slot]
}

// NewWindow builds a window admitting limit hits per interval.
func NewWindow(interval time.Duration, limit int) *Window {
	return &Window{
		interval: interval,
		slotSize: interval / slotCount,
		limit:    limit,
		slots:    newRing[slot](slotCount + 1),
	}
}

// canHitAt reports whether a hit at offset at would be admitted. When the
// window is saturated it returns the wait until the oldest contributing
// bucket slides out of the interval.
func (w *Window) canHitAt(at time.Duration) (wait time.Duration, deferred bool) {
	slotAt := w.slotAt(at)

	sum := 0
	w.slots.newestFirst(func(s slot) bool {
		if s.from+w.interval < slotAt {
			return false
		}
		sum += s.hits
		if sum >= w.limit {
			wait = s.from + w.interval + w.slotSize - at
			deferred = true
			return false
		}
		return true
	})
	return wait, deferred
}

// hitAt records one hit at offset at, merging into the current bucket when
// possible and otherwise pushing a fresh one (evicting the oldest if full).
func (w *Window) hitAt(at time.Duration) {
	from := w.slotAt(at)

	if last, ok := w.slots.last(); ok && last.from == from {
		w.slots.setLast(slot{from: from, hits: last.hits + 1})
		return
	}
	w.slots.push(slot{from: from, hits: 1})
}

func (w *Window) slotAt(at time.Duration) time.Duration {
	return at - at%w.slotSize
}

// Group composes several windows; a hit is admitted only when every window
// admits it, and the reported wait is the max across deferring windows.
// If any window defers, none records the hit.
type Group struct {
	windows []*Window
}

// NewGroup builds a group over the given windows.
func NewGroup(windows ...*Window) *Group {
	return &Group{windows: windows}
}

// HitAt attempts to record a hit at offset at. It returns (0, false) when
// the hit was admitted and recorded, or (wait, true) when the caller should
// sleep for wait and retry; nothing is recorded in the deferred case.
func (g *Group) HitAt(at time.Duration) (time.Duration, bool) {
	var wait time.Duration
	deferred := false
	for _, w := range g.windows {
		if d, def := w.canHitAt(at); def {
			deferred = true
			if d > wait {
				wait = d
			}
		}
	}
	if deferred {
		return wait, true
	}
	for _, w := range g.windows {
		w.hitAt(at)
	}
	return 0, false
}
