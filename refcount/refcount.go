// Package refcount provides the reference counter shared by pipes and
// managers.
//
// A nil *Count is valid and describes a static object: Use and Release are
// no-ops and Single always reports false, so static objects can never be
// mutated through the single-holder check.
package refcount

import "sync/atomic"

// Count is an atomic reference counter. The release function is called
// exactly once, when the count transitions from one to zero.
type Count struct {
	n       int64
	release func()
}

// New returns a counter holding one reference.
func New(release func()) *Count {
	return &Count{
		n:       1,
		release: release,
	}
}

// Use takes a new reference.
func (c *Count) Use() {
	if c == nil {
		return
	}
	atomic.AddInt64(&c.n, 1)
}

// Release drops a reference. Releasing the last one triggers the release
// function. Releasing a dead counter panics.
func (c *Count) Release() {
	if c == nil {
		return
	}
	n := atomic.AddInt64(&c.n, -1)
	switch {
	case n == 0:
		if c.release != nil {
			c.release()
		}
	case n < 0:
		panic("refcount: release of dead counter")
	}
}

// Single returns true if there is exactly one holder.
func (c *Count) Single() bool {
	if c == nil {
		return false
	}
	return atomic.LoadInt64(&c.n) == 1
}

// Dead returns true if all references were released.
func (c *Count) Dead() bool {
	if c == nil {
		return false
	}
	return atomic.LoadInt64(&c.n) <= 0
}

// Refs returns the current number of references. It's meant for
// diagnostics only.
func (c *Count) Refs() int64 {
	if c == nil {
		return 0
	}
	return atomic.LoadInt64(&c.n)
}
