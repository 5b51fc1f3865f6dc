package avpipe

import (
	"iter"

	"pipelined.dev/avpipe/flow"
)

// Command is a control command sent to a pipe. Commands are passed as
// pointers so handlers can fill results in.
type Command interface {
	Name() string
}

type (
	// SetFlowDef sets the input flow definition.
	SetFlowDef struct {
		Def *flow.Def
	}

	// GetFlowDef returns the output flow definition.
	GetFlowDef struct {
		Def *flow.Def
	}

	// SetOutput sets the output pipe.
	SetOutput struct {
		Output *Pipe
	}

	// GetOutput returns the output pipe.
	GetOutput struct {
		Output *Pipe
	}

	// SetOption sets an option.
	SetOption struct {
		Key   string
		Value string
	}

	// GetOption returns the value of an option.
	GetOption struct {
		Key   string
		Value string
	}

	// GetSubManager returns the manager allocating subs.
	GetSubManager struct {
		Manager Manager
	}

	// IterateSubs returns a sequence of subs.
	IterateSubs struct {
		Subs iter.Seq[*Pipe]
	}

	// GetSuper returns the super pipe of a sub.
	GetSuper struct {
		Super *Pipe
	}
)

// Name returns command name.
func (*SetFlowDef) Name() string { return "set_flow_def" }

// Name returns command name.
func (*GetFlowDef) Name() string { return "get_flow_def" }

// Name returns command name.
func (*SetOutput) Name() string { return "set_output" }

// Name returns command name.
func (*GetOutput) Name() string { return "get_output" }

// Name returns command name.
func (*SetOption) Name() string { return "set_option" }

// Name returns command name.
func (*GetOption) Name() string { return "get_option" }

// Name returns command name.
func (*GetSubManager) Name() string { return "get_sub_mgr" }

// Name returns command name.
func (*IterateSubs) Name() string { return "iterate_sub" }

// Name returns command name.
func (*GetSuper) Name() string { return "sub_get_super" }
