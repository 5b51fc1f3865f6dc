package main

import (
	"fmt"
	"io"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/refcount"
)

const sinkSignature avpipe.Signature = "avpipe.sink"

type sinkManager struct{}

func (sinkManager) Signature() avpipe.Signature {
	return sinkSignature
}

func (sinkManager) Refcount() *refcount.Count {
	return nil
}

func (sinkManager) Alloc(probe avpipe.Probe, _ *flow.Def) (*avpipe.Pipe, error) {
	return newSink(probe, nil).pipe, nil
}

// sink ends the graph. It records received flow definitions and writes
// blocks to w, if set.
type sink struct {
	pipe *avpipe.Pipe
	w    io.Writer

	def     *flow.Def
	written int
	err     error
}

func newSink(probe avpipe.Probe, w io.Writer) *sink {
	s := &sink{w: w}
	s.pipe = avpipe.New(sinkManager{}, probe, s)
	s.pipe.ThrowReady()
	return s
}

func (s *sink) Input(b *flow.Buffer) {
	if s.w == nil || b.Block == nil || s.err != nil {
		return
	}
	n, err := s.w.Write(b.Block)
	s.written += n
	if err != nil {
		s.err = fmt.Errorf("write block: %w", err)
		s.pipe.ThrowError(s.err)
	}
}

func (s *sink) Control(cmd avpipe.Command) error {
	switch c := cmd.(type) {
	case *avpipe.SetFlowDef:
		if c.Def == nil {
			return avpipe.ErrInvalid
		}
		s.def = c.Def
		return nil
	case *avpipe.GetFlowDef:
		c.Def = s.def
		return nil
	}
	return avpipe.ErrUnhandled
}

func (s *sink) Free() {}
