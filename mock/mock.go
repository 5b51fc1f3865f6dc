// Package mock provides mocks for pipes and codecs and allows to execute
// integration tests.
package mock

import (
	"reflect"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/refcount"
)

// Signature of mocked sinks.
const SinkSignature avpipe.Signature = "mock.sink"

type (
	// Probe records all events it catches. It never handles events, so
	// it can be chained in front of other probes.
	Probe struct {
		Records  []Record
		Released int
	}

	// Record is a caught event.
	Record struct {
		Pipe  *avpipe.Pipe
		Event avpipe.Event
	}
)

// Catch implements avpipe.Probe.
func (p *Probe) Catch(pipe *avpipe.Pipe, e avpipe.Event) error {
	p.Records = append(p.Records, Record{Pipe: pipe, Event: e})
	return avpipe.ErrUnhandled
}

// Release counts releases.
func (p *Probe) Release() {
	p.Released++
}

// Count returns number of caught events of the same type as e.
func (p *Probe) Count(e avpipe.Event) int {
	t := reflect.TypeOf(e)
	n := 0
	for _, r := range p.Records {
		if reflect.TypeOf(r.Event) == t {
			n++
		}
	}
	return n
}

// Sink mocks a pipe at the end of the graph. It records flow definitions
// and buffers it receives.
type Sink struct {
	Pipe           *avpipe.Pipe
	FlowDefs       []*flow.Def
	Buffers        []*flow.Buffer
	Discard        bool
	ErrorOnFlowDef error
	Freed          bool
}

type sinkManager struct{}

// SinkManager returns manager of mocked sinks.
func SinkManager() avpipe.Manager {
	return sinkManager{}
}

func (sinkManager) Signature() avpipe.Signature {
	return SinkSignature
}

func (sinkManager) Refcount() *refcount.Count {
	return nil
}

func (sinkManager) Alloc(probe avpipe.Probe, _ *flow.Def) (*avpipe.Pipe, error) {
	return NewSink(probe).Pipe, nil
}

// NewSink allocates a new sink.
func NewSink(probe avpipe.Probe) *Sink {
	s := &Sink{}
	s.Pipe = avpipe.New(sinkManager{}, probe, s)
	s.Pipe.ThrowReady()
	return s
}

// Input implements avpipe.Handler.
func (s *Sink) Input(b *flow.Buffer) {
	if !s.Discard {
		s.Buffers = append(s.Buffers, b)
	}
}

// Control implements avpipe.Handler.
func (s *Sink) Control(cmd avpipe.Command) error {
	switch c := cmd.(type) {
	case *avpipe.SetFlowDef:
		if s.ErrorOnFlowDef != nil {
			return s.ErrorOnFlowDef
		}
		if c.Def == nil {
			return avpipe.ErrInvalid
		}
		s.FlowDefs = append(s.FlowDefs, c.Def)
		return nil
	case *avpipe.GetFlowDef:
		c.Def = s.FlowDef()
		return nil
	}
	return avpipe.ErrUnhandled
}

// Free implements avpipe.Handler.
func (s *Sink) Free() {
	s.Freed = true
}

// FlowDef returns the last received flow definition.
func (s *Sink) FlowDef() *flow.Def {
	if len(s.FlowDefs) == 0 {
		return nil
	}
	return s.FlowDefs[len(s.FlowDefs)-1]
}
