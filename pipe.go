package avpipe

import (
	"fmt"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/refcount"
)

type (
	// Pipe is a processing unit of the graph. It's a handle backed by the
	// Handler provided by its manager.
	Pipe struct {
		uid   string
		mgr   Manager
		probe Probe
		refs  *refcount.Count
		h     Handler
		dead  bool
	}

	// Handler implements the behaviour of a pipe.
	Handler interface {
		// Input consumes or forwards the buffer. It must not block.
		Input(b *flow.Buffer)
		// Control processes the command. ErrUnhandled is returned if
		// command is not known to the handler.
		Control(cmd Command) error
		// Free releases private state. It's called once, after the dead
		// event was thrown.
		Free()
	}

	// NoRefer is implemented by handlers which may outlive their last
	// external reference, e.g. bins. NoRef is called instead of the
	// teardown and the handler must call Finalize itself.
	NoRefer interface {
		NoRef()
	}

	// Drainer is implemented by handlers which buffer output. Drain is
	// called synchronously before the dead event.
	Drainer interface {
		Drain()
	}
)

// New returns a pipe backed by provided handler. It takes a reference to
// the manager and ownership of the probe. Allocators must throw the ready
// event before returning the pipe.
func New(mgr Manager, probe Probe, h Handler) *Pipe {
	p := &Pipe{
		uid:   xid.New().String(),
		mgr:   UseManager(mgr),
		probe: probe,
		h:     h,
	}
	p.refs = refcount.New(p.noRef)
	return p
}

// Use takes a new reference to the pipe and returns it.
func (p *Pipe) Use() *Pipe {
	if p != nil {
		p.refs.Use()
	}
	return p
}

// Release drops a reference to the pipe. Dropping the last one triggers
// the teardown.
func (p *Pipe) Release() {
	if p != nil {
		p.refs.Release()
	}
}

// Refcount returns the counter of the pipe.
func (p *Pipe) Refcount() *refcount.Count {
	return p.refs
}

// Manager returns the manager of the pipe.
func (p *Pipe) Manager() Manager {
	return p.mgr
}

// Dead returns true once the dead event was thrown.
func (p *Pipe) Dead() bool {
	return p.dead
}

// Input sends buffer to the pipe. Buffers sent to a dead pipe are dropped.
func (p *Pipe) Input(b *flow.Buffer) {
	if p.dead {
		return
	}
	p.h.Input(b)
}

// Control sends the command to the pipe.
func (p *Pipe) Control(cmd Command) error {
	if p.dead {
		return fmt.Errorf("%v on dead pipe %v: %w", cmd.Name(), p, ErrInvalid)
	}
	return p.h.Control(cmd)
}

func (p *Pipe) noRef() {
	if nr, ok := p.h.(NoRefer); ok {
		nr.NoRef()
		return
	}
	p.Finalize()
}

// Finalize runs the ordered teardown of the pipe: drain, dead event, free
// of private state, release of probe and manager.
func (p *Pipe) Finalize() {
	if d, ok := p.h.(Drainer); ok {
		d.Drain()
	}
	p.dead = true
	p.Throw(&Dead{})
	p.h.Free()
	ReleaseProbe(p.probe)
	p.probe = nil
	ReleaseManager(p.mgr)
}

// Throw sends the event to the probe of the pipe. ErrUnhandled is returned
// if no probe caught it.
func (p *Pipe) Throw(e Event) error {
	if p.probe == nil {
		return ErrUnhandled
	}
	return p.probe.Catch(p, e)
}

// ThrowReady notifies that the pipe is ready to be used.
func (p *Pipe) ThrowReady() {
	p.Throw(&Ready{})
}

// ThrowError notifies about a recoverable error.
func (p *Pipe) ThrowError(err error) {
	p.Throw(&Error{Err: err})
}

// ThrowFatal notifies about an error after which the pipe is unusable.
func (p *Pipe) ThrowFatal(err error) {
	p.Throw(&Fatal{Err: err})
}

func (p *Pipe) logf(level logrus.Level, format string, args ...interface{}) {
	p.Throw(&Log{Level: level, Msg: fmt.Sprintf(format, args...)})
}

// Debugf throws a debug log event.
func (p *Pipe) Debugf(format string, args ...interface{}) {
	p.logf(logrus.DebugLevel, format, args...)
}

// Noticef throws an info log event.
func (p *Pipe) Noticef(format string, args ...interface{}) {
	p.logf(logrus.InfoLevel, format, args...)
}

// Warnf throws a warning log event.
func (p *Pipe) Warnf(format string, args ...interface{}) {
	p.logf(logrus.WarnLevel, format, args...)
}

// Errorf throws an error log event.
func (p *Pipe) Errorf(format string, args ...interface{}) {
	p.logf(logrus.ErrorLevel, format, args...)
}

// String returns signature and uid of the pipe.
func (p *Pipe) String() string {
	if p == nil {
		return "<nil>"
	}
	if p.mgr == nil {
		return p.uid
	}
	return fmt.Sprintf("%v %v", p.mgr.Signature(), p.uid)
}

// SetFlowDef sets the input flow definition.
func (p *Pipe) SetFlowDef(def *flow.Def) error {
	return p.Control(&SetFlowDef{Def: def})
}

// FlowDef returns the output flow definition.
func (p *Pipe) FlowDef() (*flow.Def, error) {
	cmd := &GetFlowDef{}
	if err := p.Control(cmd); err != nil {
		return nil, err
	}
	return cmd.Def, nil
}

// SetOutput sets the output pipe.
func (p *Pipe) SetOutput(output *Pipe) error {
	return p.Control(&SetOutput{Output: output})
}

// Output returns the output pipe.
func (p *Pipe) Output() (*Pipe, error) {
	cmd := &GetOutput{}
	if err := p.Control(cmd); err != nil {
		return nil, err
	}
	return cmd.Output, nil
}

// SetOption sets an option.
func (p *Pipe) SetOption(key, value string) error {
	return p.Control(&SetOption{Key: key, Value: value})
}

// Option returns the value of an option.
func (p *Pipe) Option(key string) (string, error) {
	cmd := &GetOption{Key: key}
	if err := p.Control(cmd); err != nil {
		return "", err
	}
	return cmd.Value, nil
}

// SubManager returns the manager allocating subs of the pipe.
func (p *Pipe) SubManager() (Manager, error) {
	cmd := &GetSubManager{}
	if err := p.Control(cmd); err != nil {
		return nil, err
	}
	return cmd.Manager, nil
}

// Subs returns subs of the pipe in insertion order.
func (p *Pipe) Subs() ([]*Pipe, error) {
	cmd := &IterateSubs{}
	if err := p.Control(cmd); err != nil {
		return nil, err
	}
	var subs []*Pipe
	for s := range cmd.Subs {
		subs = append(subs, s)
	}
	return subs, nil
}

// Super returns the super pipe of a sub.
func (p *Pipe) Super() (*Pipe, error) {
	cmd := &GetSuper{}
	if err := p.Control(cmd); err != nil {
		return nil, err
	}
	return cmd.Super, nil
}
