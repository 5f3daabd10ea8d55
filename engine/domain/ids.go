package domain

import (
	"sync/atomic"
	"time"
)

// IDAllocator hands out point ids. Ids follow wall-clock milliseconds but
// never repeat or go backwards within a process.
type IDAllocator struct {
	last atomic.Uint64
	now  func() time.Time
}

// NewIDAllocator returns an allocator seeded from the clock.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{now: time.Now}
}

// Next returns max(last+1, now in ms).
func (a *IDAllocator) Next() uint64 {
	for {
		last := a.last.Load()
		next := uint64(a.now().UnixMilli())
		if next <= last {
			next = last + 1
		}
		if a.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Observe raises the floor so later ids stay above an id seen in the store.
func (a *IDAllocator) Observe(id uint64) {
	for {
		last := a.last.Load()
		if id <= last || a.last.CompareAndSwap(last, id) {
			return
		}
	}
}
