package mock

import (
	"fmt"
	"time"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/h264"
	"pipelined.dev/avpipe/refcount"
)

// BackendSignature is the signature of mocked backends.
const BackendSignature avpipe.Signature = "mock.backend"

type (
	// Backend mocks a manager of encoder backends. Allocated pipes are
	// recorded in order.
	Backend struct {
		ErrorOnAlloc error
		// Accept decides if a flow definition is accepted. All
		// definitions are accepted if it's nil.
		Accept func(def *flow.Def) bool
		// InvalidOptions are option keys rejected by backends.
		InvalidOptions []string
		// Hold keeps an extra reference to every allocated pipe.
		Hold  bool
		Pipes []*BackendPipe
	}

	// BackendPipe is a pipe allocated by mocked backend manager.
	BackendPipe struct {
		Pipe                *avpipe.Pipe
		Probe               avpipe.Probe
		AllocDef            *flow.Def
		FlowDefs            []*flow.Def
		Options             map[string]string
		Preset              string
		Tune                string
		Profile             string
		SpeedControlLatency time.Duration
		// Commands are the names of received commands in order.
		Commands []string
		Buffers  []*flow.Buffer
		Freed    bool

		backend *Backend
		output  avpipe.Output
	}
)

// Signature implements avpipe.Manager.
func (b *Backend) Signature() avpipe.Signature {
	return BackendSignature
}

// Refcount implements avpipe.Manager.
func (b *Backend) Refcount() *refcount.Count {
	return nil
}

// Alloc implements avpipe.Manager.
func (b *Backend) Alloc(probe avpipe.Probe, def *flow.Def) (*avpipe.Pipe, error) {
	if b.ErrorOnAlloc != nil {
		avpipe.ReleaseProbe(probe)
		return nil, b.ErrorOnAlloc
	}
	bp := &BackendPipe{
		Probe:    probe,
		AllocDef: def,
		Options:  make(map[string]string),
		backend:  b,
	}
	bp.Pipe = avpipe.New(b, probe, bp)
	bp.output.Init(bp.Pipe)
	bp.Pipe.ThrowReady()
	if b.Hold {
		bp.Pipe.Use()
	}
	b.Pipes = append(b.Pipes, bp)
	return bp.Pipe, nil
}

// Last returns the last allocated pipe.
func (b *Backend) Last() *BackendPipe {
	if len(b.Pipes) == 0 {
		return nil
	}
	return b.Pipes[len(b.Pipes)-1]
}

// Input implements avpipe.Handler.
func (bp *BackendPipe) Input(b *flow.Buffer) {
	bp.Buffers = append(bp.Buffers, b)
	bp.output.Output(b)
}

// Control implements avpipe.Handler.
func (bp *BackendPipe) Control(cmd avpipe.Command) error {
	bp.Commands = append(bp.Commands, cmd.Name())
	switch c := cmd.(type) {
	case *avpipe.SetFlowDef:
		if c.Def == nil {
			return avpipe.ErrInvalid
		}
		if bp.backend.Accept != nil && !bp.backend.Accept(c.Def) {
			return fmt.Errorf("flow def %q: %w", c.Def.Type(), avpipe.ErrInvalid)
		}
		bp.FlowDefs = append(bp.FlowDefs, c.Def)
		bp.output.StoreFlowDef(c.Def.Dup())
		return nil
	case *avpipe.SetOption:
		if contains(bp.backend.InvalidOptions, c.Key) {
			return fmt.Errorf("option %q: %w", c.Key, avpipe.ErrInvalid)
		}
		bp.Options[c.Key] = c.Value
		return nil
	case *avpipe.GetOption:
		v, ok := bp.Options[c.Key]
		if !ok {
			return avpipe.ErrInvalid
		}
		c.Value = v
		return nil
	case *h264.SetDefaultPreset:
		bp.Preset, bp.Tune = c.Preset, c.Tune
		return nil
	case *h264.SetProfile:
		bp.Profile = c.Profile
		return nil
	case *h264.SetSpeedControlLatency:
		bp.SpeedControlLatency = c.Latency
		return nil
	}
	return bp.output.Control(cmd)
}

// Free implements avpipe.Handler.
func (bp *BackendPipe) Free() {
	bp.Freed = true
	bp.output.Clean()
}
