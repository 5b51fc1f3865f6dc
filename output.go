package avpipe

import (
	"fmt"

	"pipelined.dev/avpipe/flow"
)

// Output manages the downstream side of a pipe: the output pipe and the
// flow definition of the link. The flow definition is sent before any
// buffer that follows it.
type Output struct {
	pipe     *Pipe
	output   *Pipe
	flowDef  *flow.Def
	sent     bool
	// true if rejection of the current flow def was reported.
	reported bool
}

// Init binds the helper to its pipe.
func (o *Output) Init(p *Pipe) {
	o.pipe = p
}

// StoreFlowDef replaces the output flow definition and sends it if output
// is set. Storing a definition identical to the one already sent is a
// no-op.
func (o *Output) StoreFlowDef(def *flow.Def) {
	if o.sent && o.flowDef.Equal(def) {
		return
	}
	o.flowDef = def
	o.sent = false
	o.reported = false
	if o.output != nil {
		o.send()
	}
}

// FlowDef returns the output flow definition.
func (o *Output) FlowDef() *flow.Def {
	return o.flowDef
}

// Sent returns true if the current flow definition was forwarded.
func (o *Output) Sent() bool {
	return o.sent
}

func (o *Output) send() bool {
	if o.sent || o.flowDef == nil {
		return true
	}
	if err := o.output.SetFlowDef(o.flowDef); err != nil {
		if o.reported {
			o.pipe.Debugf("output %v still rejects flow def: %v", o.output, err)
			return false
		}
		o.reported = true
		o.pipe.Warnf("output %v rejected flow def: %v", o.output, err)
		o.pipe.ThrowError(fmt.Errorf("set flow def on %v: %w", o.output, err))
		return false
	}
	o.sent = true
	o.reported = false
	return true
}

// Output sends buffer downstream. Buffer is dropped if there is no output
// or the output rejected the flow definition.
func (o *Output) Output(b *flow.Buffer) {
	if o.output == nil {
		o.pipe.Throw(&NeedOutput{Def: o.flowDef})
		if o.output == nil {
			return
		}
	}
	if !o.send() {
		return
	}
	o.output.Input(b)
}

// SetOutput replaces the output pipe. A reference to the new output is
// taken and pending flow definition is sent.
func (o *Output) SetOutput(output *Pipe) {
	if output == o.output {
		return
	}
	old := o.output
	o.output = output.Use()
	o.sent = false
	o.reported = false
	old.Release()
	if o.output != nil {
		o.send()
	}
}

// Control handles output commands. ErrUnhandled is returned for others.
func (o *Output) Control(cmd Command) error {
	switch c := cmd.(type) {
	case *GetOutput:
		c.Output = o.output
		return nil
	case *SetOutput:
		o.SetOutput(c.Output)
		return nil
	case *GetFlowDef:
		c.Def = o.flowDef
		return nil
	}
	return ErrUnhandled
}

// Clean releases the output.
func (o *Output) Clean() {
	o.output.Release()
	o.output = nil
	o.flowDef = nil
	o.sent = false
	o.reported = false
}
