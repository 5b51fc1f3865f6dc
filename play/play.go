// Package play synchronizes latency of the outputs of a program.
//
// A play pipe is a super pipe: every output of a program is a sub allocated
// by its sub manager. Each sub reports the latency of its upstream with the
// flow definition. The play pipe keeps the maximum of reported latencies and
// adds its own output latency to it. Every sub forwards its flow definition
// with this total latency, so all outputs of the program are played with the
// same delay.
//
// Input latency never decreases. Any increase of total latency is sent to
// all subs that already have a flow definition.
package play

import (
	"errors"
	"fmt"
	"time"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/refcount"
	"pipelined.dev/avpipe/subpipe"
)

const (
	// Signature of play pipes.
	Signature avpipe.Signature = "play"
	// SubSignature of play outputs.
	SubSignature avpipe.Signature = "play.sub"
	// DefaultOutputLatency is one frame at 50 Hz.
	DefaultOutputLatency = time.Second / 50
)

type (
	// SetOutputLatency sets the output latency of the play pipe.
	SetOutputLatency struct {
		Latency time.Duration
	}

	// GetOutputLatency returns the output latency of the play pipe.
	GetOutputLatency struct {
		Latency time.Duration
	}

	// GetLatency returns the input and total latency of the play pipe.
	GetLatency struct {
		Input time.Duration
		Total time.Duration
	}
)

// Name returns command name.
func (*SetOutputLatency) Name() string { return "play_set_output_latency" }

// Name returns command name.
func (*GetOutputLatency) Name() string { return "play_get_output_latency" }

// Name returns command name.
func (*GetLatency) Name() string { return "play_get_latency" }

// OutputLatency returns the output latency of the play pipe.
func OutputLatency(p *avpipe.Pipe) (time.Duration, error) {
	cmd := &GetOutputLatency{}
	if err := p.Control(cmd); err != nil {
		return 0, err
	}
	return cmd.Latency, nil
}

// ChangeOutputLatency sets the output latency of the play pipe.
func ChangeOutputLatency(p *avpipe.Pipe, latency time.Duration) error {
	return p.Control(&SetOutputLatency{Latency: latency})
}

// Latency returns the input and total latency of the play pipe.
func Latency(p *avpipe.Pipe) (input, total time.Duration, err error) {
	cmd := &GetLatency{}
	if err := p.Control(cmd); err != nil {
		return 0, 0, err
	}
	return cmd.Input, cmd.Total, nil
}

type manager struct{}

// NewManager returns the manager of play pipes. It's static and shared by
// all callers.
func NewManager() avpipe.Manager {
	return manager{}
}

func (manager) Signature() avpipe.Signature {
	return Signature
}

func (manager) Refcount() *refcount.Count {
	return nil
}

func (manager) Alloc(probe avpipe.Probe, _ *flow.Def) (*avpipe.Pipe, error) {
	p := &play{
		outputLatency: DefaultOutputLatency,
		latency:       DefaultOutputLatency,
		outputs:       make(map[*subpipe.Link]*output),
	}
	p.pipe = avpipe.New(manager{}, probe, p)
	p.subs = subpipe.NewManager(p.pipe, SubSignature, p.allocSub)
	p.pipe.ThrowReady()
	return p.pipe, nil
}

type play struct {
	pipe    *avpipe.Pipe
	subs    *subpipe.Manager
	outputs map[*subpipe.Link]*output

	// max latency of subs.
	inputLatency  time.Duration
	outputLatency time.Duration
	// total latency.
	latency time.Duration
}

func (p *play) allocSub(m *subpipe.Manager, probe avpipe.Probe, _ *flow.Def) (*subpipe.Link, error) {
	o := &output{play: p}
	o.pipe = avpipe.New(m, probe, o)
	o.output.Init(o.pipe)
	o.link = m.NewLink(o.pipe)
	p.outputs[o.link] = o
	return o.link, nil
}

func (p *play) setInputLatency(latency time.Duration) {
	p.inputLatency = latency
	p.setLatency()
}

// setLatency recomputes total latency and rebuilds flow definitions of all
// subs.
func (p *play) setLatency() {
	p.latency = p.inputLatency + p.outputLatency
	p.pipe.Debugf("latency %v (input %v, output %v)", p.latency, p.inputLatency, p.outputLatency)
	// every sub is rebuilt, Output skips defs identical to the sent ones.
	for l := range p.subs.Links() {
		p.outputs[l].buildFlowDef()
	}
}

func (p *play) Input(*flow.Buffer) {
	p.pipe.Warnf("play pipe doesn't accept input, use its subs")
}

func (p *play) Control(cmd avpipe.Command) error {
	switch c := cmd.(type) {
	case *GetOutputLatency:
		c.Latency = p.outputLatency
		return nil
	case *SetOutputLatency:
		if c.Latency < 0 {
			return fmt.Errorf("output latency %v: %w", c.Latency, avpipe.ErrInvalid)
		}
		p.outputLatency = c.Latency
		p.setLatency()
		return nil
	case *GetLatency:
		c.Input = p.inputLatency
		c.Total = p.latency
		return nil
	}
	return p.subs.Control(cmd)
}

func (p *play) Free() {
	p.subs.Clean()
}

// output is a sub of play pipe.
type output struct {
	play   *play
	pipe   *avpipe.Pipe
	link   *subpipe.Link
	output avpipe.Output

	// flow definition received from upstream.
	upstream *flow.Def
	// latency reported by upstream.
	latency time.Duration
}

func (o *output) setFlowDef(def *flow.Def) error {
	if def == nil {
		return fmt.Errorf("play sub flow def: %w", avpipe.ErrInvalid)
	}
	o.upstream = def.Dup()
	o.latency = o.upstream.Latency()
	// we never lower latency
	if o.latency > o.play.inputLatency {
		o.play.setInputLatency(o.latency)
	} else {
		o.buildFlowDef()
	}
	return nil
}

// buildFlowDef stores the upstream definition with total latency of the
// play pipe.
func (o *output) buildFlowDef() {
	if o.upstream == nil {
		return
	}
	def := o.upstream.Dup()
	def.SetLatency(o.play.latency)
	o.output.StoreFlowDef(def)
}

func (o *output) Input(b *flow.Buffer) {
	o.output.Output(b)
}

func (o *output) Control(cmd avpipe.Command) error {
	if c, ok := cmd.(*avpipe.SetFlowDef); ok {
		return o.setFlowDef(c.Def)
	}
	if err := o.output.Control(cmd); !errors.Is(err, avpipe.ErrUnhandled) {
		return err
	}
	return o.link.Control(cmd)
}

func (o *output) Free() {
	o.output.Clean()
	o.link.Remove()
	delete(o.play.outputs, o.link)
}
