// Package subpipe helps to implement pipes owning a collection of subs.
//
// A super pipe creates a Manager for its subs. Subs are allocated by that
// manager and hold a reference to it, which is the reference counter of the
// super itself: the super lives as long as any of its subs. The super keeps
// subs in insertion order but doesn't own them, each sub is removed from
// the collection when it's freed.
package subpipe

import (
	"fmt"
	"iter"
	"slices"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/refcount"
)

type (
	// Manager allocates subs of a super pipe.
	Manager struct {
		super *avpipe.Pipe
		sig   avpipe.Signature
		alloc AllocFunc
		links []*Link
	}

	// AllocFunc allocates the sub pipe and returns its link. It must not
	// throw the ready event, manager does it once the sub is linked.
	AllocFunc func(m *Manager, probe avpipe.Probe, def *flow.Def) (*Link, error)

	// Link is the handle of a sub. It's kept by the sub handler.
	Link struct {
		mgr    *Manager
		pipe   *avpipe.Pipe
		linked bool
	}
)

// NewManager returns a manager of subs for the super pipe.
func NewManager(super *avpipe.Pipe, sig avpipe.Signature, alloc AllocFunc) *Manager {
	return &Manager{
		super: super,
		sig:   sig,
		alloc: alloc,
	}
}

// Signature implements avpipe.Manager.
func (m *Manager) Signature() avpipe.Signature {
	return m.sig
}

// Refcount implements avpipe.Manager. Subs share the counter of the super.
func (m *Manager) Refcount() *refcount.Count {
	return m.super.Refcount()
}

// Alloc implements avpipe.Manager. The sub is appended to the collection
// only if allocation succeeded.
func (m *Manager) Alloc(probe avpipe.Probe, def *flow.Def) (*avpipe.Pipe, error) {
	l, err := m.alloc(m, probe, def)
	if err != nil {
		return nil, fmt.Errorf("alloc %v sub of %v: %w: %w", m.sig, m.super, avpipe.ErrAlloc, err)
	}
	m.links = append(m.links, l)
	l.linked = true
	l.pipe.ThrowReady()
	return l.pipe, nil
}

// NewLink returns an unlinked handle for the sub pipe.
func (m *Manager) NewLink(sub *avpipe.Pipe) *Link {
	return &Link{mgr: m, pipe: sub}
}

// Super returns the super pipe.
func (m *Manager) Super() *avpipe.Pipe {
	return m.super
}

// Len returns the number of subs.
func (m *Manager) Len() int {
	return len(m.links)
}

// Subs returns the sequence of subs in insertion order. Every iteration
// starts from the first sub.
func (m *Manager) Subs() iter.Seq[*avpipe.Pipe] {
	return func(yield func(*avpipe.Pipe) bool) {
		for _, l := range slices.Clone(m.links) {
			if !l.linked {
				continue
			}
			if !yield(l.pipe) {
				return
			}
		}
	}
}

// Links returns the sequence of sub links in insertion order.
func (m *Manager) Links() iter.Seq[*Link] {
	return func(yield func(*Link) bool) {
		for _, l := range slices.Clone(m.links) {
			if !l.linked {
				continue
			}
			if !yield(l) {
				return
			}
		}
	}
}

// Control handles super commands related to subs. ErrUnhandled is returned
// for others.
func (m *Manager) Control(cmd avpipe.Command) error {
	switch c := cmd.(type) {
	case *avpipe.GetSubManager:
		c.Manager = m
		return nil
	case *avpipe.IterateSubs:
		c.Subs = m.Subs()
		return nil
	}
	return avpipe.ErrUnhandled
}

// Clean unlinks all remaining subs.
func (m *Manager) Clean() {
	for _, l := range m.links {
		l.linked = false
	}
	m.links = nil
}

// Pipe returns the sub pipe.
func (l *Link) Pipe() *avpipe.Pipe {
	return l.pipe
}

// Manager returns the manager of the sub.
func (l *Link) Manager() *Manager {
	return l.mgr
}

// Super returns the super pipe. The reference isn't retained.
func (l *Link) Super() *avpipe.Pipe {
	return l.mgr.super
}

// Remove detaches the sub from the collection of its super. It's safe to
// call it more than once.
func (l *Link) Remove() {
	if !l.linked {
		return
	}
	l.linked = false
	m := l.mgr
	if i := slices.Index(m.links, l); i >= 0 {
		m.links = slices.Delete(m.links, i, i+1)
	}
}

// Control handles sub commands related to the super. ErrUnhandled is
// returned for others.
func (l *Link) Control(cmd avpipe.Command) error {
	if c, ok := cmd.(*avpipe.GetSuper); ok {
		c.Super = l.mgr.super
		return nil
	}
	return avpipe.ErrUnhandled
}
