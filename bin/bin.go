// Package bin helps to implement pipes made of an inner chain of pipes.
//
// A bin has two reference counters. The external one is the counter of the
// pipe itself. The real one keeps private state alive: it's held by the
// bin and by every probe handed to inner pipes. When the last external
// reference is dropped, the bin releases its inner pipes and its own real
// reference. Private state is freed when the real counter drops to zero,
// i.e. when inner pipes are gone too:
//
//	func (e *enc) NoRef() {
//		e.bin.Clean()
//		e.real.Release()
//	}
package bin

import (
	"fmt"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/refcount"
)

// Bin holds the inner chain of a bin pipe.
type Bin struct {
	pipe      *avpipe.Pipe
	real      *refcount.Count
	lastInner *avpipe.Pipe
	output    *avpipe.Pipe
}

// Init binds the helper to the bin pipe and its real counter.
func (b *Bin) Init(p *avpipe.Pipe, real *refcount.Count) {
	b.pipe = p
	b.real = real
}

// Probe returns a probe for an inner pipe. It holds a reference to the real
// counter until it's released. Events thrown by inner pipes are re-thrown
// as events of the bin, except their lifecycle events.
func (b *Bin) Probe() avpipe.Probe {
	b.real.Use()
	return &relay{bin: b}
}

// StoreLastInner replaces the last inner pipe. The bin takes over the
// reference to the new pipe and releases the previous one. Nil detaches the
// current inner pipe without replacement.
func (b *Bin) StoreLastInner(inner *avpipe.Pipe) {
	old := b.lastInner
	b.lastInner = inner
	if inner != nil && b.output != nil {
		if err := inner.SetOutput(b.output); err != nil {
			b.pipe.Warnf("set output on inner %v: %v", inner, err)
		}
	}
	old.Release()
}

// LastInner returns the last inner pipe. It may be nil.
func (b *Bin) LastInner() *avpipe.Pipe {
	return b.lastInner
}

// Input forwards the buffer to the last inner pipe. Buffer is dropped if
// there is none.
func (b *Bin) Input(buf *flow.Buffer) {
	if b.lastInner == nil {
		return
	}
	b.lastInner.Input(buf)
}

// Control handles output commands and forwards others to the last inner
// pipe. ErrUnhandled is returned if there is no inner pipe.
func (b *Bin) Control(cmd avpipe.Command) error {
	switch c := cmd.(type) {
	case *avpipe.GetOutput:
		c.Output = b.output
		return nil
	case *avpipe.SetOutput:
		if b.lastInner != nil {
			if err := b.lastInner.SetOutput(c.Output); err != nil {
				return fmt.Errorf("set output on inner: %w", err)
			}
		}
		old := b.output
		b.output = c.Output.Use()
		old.Release()
		return nil
	}
	if b.lastInner == nil {
		return avpipe.ErrUnhandled
	}
	return b.lastInner.Control(cmd)
}

// Clean releases inner pipes and output.
func (b *Bin) Clean() {
	b.StoreLastInner(nil)
	b.output.Release()
	b.output = nil
}

type relay struct {
	bin      *Bin
	released bool
}

func (r *relay) Catch(inner *avpipe.Pipe, e avpipe.Event) error {
	switch e.(type) {
	case *avpipe.Ready, *avpipe.Dead:
		return nil
	}
	return r.bin.pipe.Throw(e)
}

func (r *relay) Release() {
	if r.released {
		return
	}
	r.released = true
	r.bin.real.Release()
}
