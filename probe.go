package avpipe

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"pipelined.dev/avpipe/flow"
)

type (
	// Probe catches events thrown by pipes. ErrUnhandled is returned if
	// event was not handled and should be offered to the next probe.
	Probe interface {
		Catch(p *Pipe, e Event) error
	}

	// ProbeFunc is a function probe.
	ProbeFunc func(p *Pipe, e Event) error

	// Event is thrown by pipes to notify probes.
	Event interface {
		String() string
	}
)

// Events.
type (
	// Ready is thrown when the pipe is allocated and usable.
	Ready struct{}

	// Dead is thrown when the pipe is being destroyed.
	Dead struct{}

	// Log carries a log message.
	Log struct {
		Level logrus.Level
		Msg   string
	}

	// Error notifies about a recoverable error.
	Error struct {
		Err error
	}

	// Fatal notifies about an error which makes the pipe unusable.
	Fatal struct {
		Err error
	}

	// NeedOutput is thrown when the pipe has no output and a buffer has to
	// be sent. The probe may set an output before returning.
	NeedOutput struct {
		Def *flow.Def
	}
)

func (*Ready) String() string { return "ready" }
func (*Dead) String() string { return "dead" }
func (e *Log) String() string { return fmt.Sprintf("log %v: %v", e.Level, e.Msg) }
func (e *Error) String() string { return fmt.Sprintf("error: %v", e.Err) }
func (e *Fatal) String() string { return fmt.Sprintf("fatal: %v", e.Err) }
func (*NeedOutput) String() string { return "need output" }

// Catch calls the function.
func (fn ProbeFunc) Catch(p *Pipe, e Event) error {
	return fn(p, e)
}

// ReleaseProbe releases the probe if it's reference counted.
func ReleaseProbe(probe Probe) {
	if r, ok := probe.(interface{ Release() }); ok {
		r.Release()
	}
}

type chain []Probe

// Chain returns a probe that offers events to provided probes in order,
// until one of them handles it. Releasing the chain releases all probes.
func Chain(probes ...Probe) Probe {
	c := make(chain, 0, len(probes))
	for _, probe := range probes {
		if probe != nil {
			c = append(c, probe)
		}
	}
	return c
}

func (c chain) Catch(p *Pipe, e Event) error {
	for _, probe := range c {
		if err := probe.Catch(p, e); !errors.Is(err, ErrUnhandled) {
			return err
		}
	}
	return ErrUnhandled
}

func (c chain) Release() {
	for _, probe := range c {
		ReleaseProbe(probe)
	}
}
