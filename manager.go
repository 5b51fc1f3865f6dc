package avpipe

import (
	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/refcount"
)

// Signature identifies a kind of pipes.
type Signature string

// Manager allocates pipes of one kind. It may be shared by many pipes and
// every pipe holds a reference to its manager.
type Manager interface {
	Signature() Signature
	// Alloc allocates a new pipe. The manager takes ownership of the probe
	// whatever the outcome. Flow pipes require def, void pipes ignore it.
	Alloc(probe Probe, def *flow.Def) (*Pipe, error)
	// Refcount returns the counter of the manager. Static managers return
	// nil.
	Refcount() *refcount.Count
}

// UseManager takes a reference to the manager and returns it.
func UseManager(m Manager) Manager {
	if m != nil {
		m.Refcount().Use()
	}
	return m
}

// ReleaseManager drops a reference to the manager.
func ReleaseManager(m Manager) {
	if m != nil {
		m.Refcount().Release()
	}
}

// AllocVoid allocates a pipe which doesn't need a flow definition.
func AllocVoid(m Manager, probe Probe) (*Pipe, error) {
	return m.Alloc(probe, nil)
}

// AllocFlow allocates a pipe for provided flow definition.
func AllocFlow(m Manager, probe Probe, def *flow.Def) (*Pipe, error) {
	if def == nil {
		ReleaseProbe(probe)
		return nil, ErrInvalid
	}
	return m.Alloc(probe, def)
}
