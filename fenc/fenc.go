// Package fenc provides the encoder adapter, a bin hiding the actual
// encoder behind a stable pipe.
//
// The backend is chosen from the requested output flow definition when the
// pipe is allocated. Options and tuning set on the adapter are kept and
// applied to every backend it allocates. When the backend rejects a new
// input flow definition, it's released, which drains it, and a new backend
// is allocated with the same options and tuning.
package fenc

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/bin"
	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/h264"
	"pipelined.dev/avpipe/refcount"
)

// Signature of encoder adapter pipes.
const Signature avpipe.Signature = "fenc"

// Kind is a kind of backend.
type Kind int

const (
	// Generic is the fallback backend.
	Generic Kind = iota
	// H264 is the backend for h264 flows.
	H264

	kinds
)

// backends maps output flow prefixes to the kinds of backends. First match
// wins, generic backend is used if nothing matches.
var backends = []struct {
	prefix string
	kind   Kind
}{
	{prefix: "block.h264.", kind: H264},
}

func (k Kind) String() string {
	switch k {
	case Generic:
		return "generic"
	case H264:
		return "h264"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// KindOf returns the kind of backend for the output flow definition.
func KindOf(def *flow.Def) Kind {
	for _, b := range backends {
		if def.HasTypePrefix(b.prefix) {
			return b.kind
		}
	}
	return Generic
}

// Manager allocates encoder adapters. It's reference counted and holds the
// managers of backends.
type Manager struct {
	refs     *refcount.Count
	backends [kinds]avpipe.Manager
}

// NewManager returns a new manager. Caller holds its only reference.
func NewManager() *Manager {
	m := &Manager{}
	m.refs = refcount.New(m.free)
	return m
}

// Signature implements avpipe.Manager.
func (m *Manager) Signature() avpipe.Signature {
	return Signature
}

// Refcount implements avpipe.Manager.
func (m *Manager) Refcount() *refcount.Count {
	return m.refs
}

// Backend returns the manager of backends of provided kind.
func (m *Manager) Backend(kind Kind) avpipe.Manager {
	if kind < 0 || kind >= kinds {
		return nil
	}
	return m.backends[kind]
}

// SetBackend replaces the manager of backends of provided kind. The manager
// can't be changed once it's shared.
func (m *Manager) SetBackend(kind Kind, backend avpipe.Manager) error {
	if kind < 0 || kind >= kinds {
		return fmt.Errorf("backend %v: %w", kind, avpipe.ErrInvalid)
	}
	if !m.refs.Single() {
		return fmt.Errorf("set %v backend: %w", kind, avpipe.ErrBusy)
	}
	old := m.backends[kind]
	m.backends[kind] = avpipe.UseManager(backend)
	avpipe.ReleaseManager(old)
	return nil
}

func (m *Manager) free() {
	for i := range m.backends {
		avpipe.ReleaseManager(m.backends[i])
		m.backends[i] = nil
	}
}

// Alloc implements avpipe.Manager. Def is the requested output flow
// definition.
func (m *Manager) Alloc(probe avpipe.Probe, def *flow.Def) (*avpipe.Pipe, error) {
	if def == nil {
		avpipe.ReleaseProbe(probe)
		return nil, fmt.Errorf("alloc %v without flow def: %w", Signature, avpipe.ErrInvalid)
	}
	e := &encoder{
		mgr:       m,
		kind:      KindOf(def),
		requested: def.Dup(),
	}
	e.pipe = avpipe.New(m, probe, e)
	e.real = refcount.New(e.pipe.Finalize)
	e.bin.Init(e.pipe, e.real)
	e.pipe.ThrowReady()

	inner, err := e.allocBackend()
	if err != nil {
		e.pipe.Release()
		return nil, err
	}
	e.bin.StoreLastInner(inner)
	return e.pipe, nil
}

type encoder struct {
	pipe *avpipe.Pipe
	real *refcount.Count
	bin  bin.Bin
	mgr  *Manager
	kind Kind
	// requested output flow definition.
	requested *flow.Def

	options   flow.Dict
	preset    *h264.SetDefaultPreset
	profile   *string
	scLatency *time.Duration

	// true if failure to configure a backend was reported.
	reported bool
}

// allocBackend allocates a backend and applies cached tuning and options.
func (e *encoder) allocBackend() (*avpipe.Pipe, error) {
	mgr := e.mgr.Backend(e.kind)
	if mgr == nil {
		return nil, fmt.Errorf("no %v backend for %q: %w", e.kind, e.requested.Type(), avpipe.ErrAlloc)
	}
	inner, err := avpipe.AllocFlow(mgr, e.bin.Probe(), e.requested.Dup())
	if err != nil {
		return nil, fmt.Errorf("alloc %v backend: %w", e.kind, err)
	}
	e.pipe.Debugf("allocated %v backend %v", e.kind, inner)
	if e.preset != nil {
		e.apply(inner, &h264.SetDefaultPreset{Preset: e.preset.Preset, Tune: e.preset.Tune})
	}
	if e.profile != nil {
		e.apply(inner, &h264.SetProfile{Profile: *e.profile})
	}
	if e.scLatency != nil {
		e.apply(inner, &h264.SetSpeedControlLatency{Latency: *e.scLatency})
	}
	for _, key := range e.options.Keys() {
		v, _ := e.options.String(key)
		e.apply(inner, &avpipe.SetOption{Key: key, Value: v})
	}
	return inner, nil
}

func (e *encoder) apply(inner *avpipe.Pipe, cmd avpipe.Command) {
	err := inner.Control(cmd)
	switch {
	case err == nil:
	case errors.Is(err, avpipe.ErrUnhandled):
		e.pipe.Debugf("%v backend ignored %v", e.kind, cmd.Name())
	default:
		e.pipe.Warnf("%v on %v backend: %v", describe(cmd), e.kind, err)
	}
}

func (e *encoder) setFlowDef(def *flow.Def) error {
	if def == nil {
		return fmt.Errorf("fenc flow def: %w", avpipe.ErrInvalid)
	}
	if inner := e.bin.LastInner(); inner != nil {
		err := inner.SetFlowDef(def)
		if err == nil {
			e.reported = false
			return nil
		}
		e.pipe.Noticef("backend rejected flow def %q: %v, allocating a new one", def.Type(), err)
		e.bin.StoreLastInner(nil)
	}

	inner, err := e.allocBackend()
	if err == nil {
		if err = inner.SetFlowDef(def); err != nil {
			inner.Release()
		}
	}
	if err != nil {
		e.pipe.Warnf("unable to configure backend for %q: %v", def.Type(), err)
		if !e.reported {
			e.reported = true
			e.pipe.ThrowError(fmt.Errorf("configure %v backend: %w", e.kind, err))
		}
		return fmt.Errorf("flow def %q: %w", def.Type(), avpipe.ErrUnhandled)
	}
	e.reported = false
	e.bin.StoreLastInner(inner)
	return nil
}

func (e *encoder) setOption(key, value string) error {
	if key == "" {
		return fmt.Errorf("empty option key: %w", avpipe.ErrInvalid)
	}
	e.options.SetString(key, value)
	if inner := e.bin.LastInner(); inner != nil {
		if err := inner.SetOption(key, value); err != nil {
			e.pipe.Warnf("invalid option %s=%s: %v", key, value, err)
		}
	}
	return nil
}

func (e *encoder) Input(b *flow.Buffer) {
	e.bin.Input(b)
}

func (e *encoder) Control(cmd avpipe.Command) error {
	switch c := cmd.(type) {
	case *avpipe.SetFlowDef:
		return e.setFlowDef(c.Def)
	case *avpipe.SetOption:
		return e.setOption(c.Key, c.Value)
	case *avpipe.GetOption:
		v, ok := e.options.String(c.Key)
		if !ok {
			return fmt.Errorf("option %s: %w", c.Key, avpipe.ErrInvalid)
		}
		c.Value = v
		return nil
	case *h264.SetDefaultPreset:
		e.preset = &h264.SetDefaultPreset{Preset: c.Preset, Tune: c.Tune}
		return e.forward(cmd)
	case *h264.SetProfile:
		profile := c.Profile
		e.profile = &profile
		return e.forward(cmd)
	case *h264.SetSpeedControlLatency:
		if c.Latency < 0 {
			return fmt.Errorf("speed control latency %v: %w", c.Latency, avpipe.ErrInvalid)
		}
		latency := c.Latency
		e.scLatency = &latency
		return e.forward(cmd)
	}
	return e.bin.Control(cmd)
}

// forward sends the tuning command to the backend, if any.
func (e *encoder) forward(cmd avpipe.Command) error {
	inner := e.bin.LastInner()
	if inner == nil {
		return nil
	}
	return inner.Control(cmd)
}

func (e *encoder) NoRef() {
	e.bin.Clean()
	e.real.Release()
}

func (e *encoder) Free() {
	e.pipe.Debugf("freeing %v encoder", e.kind)
}

func describe(cmd avpipe.Command) string {
	switch c := cmd.(type) {
	case *avpipe.SetOption:
		return fmt.Sprintf("option %s=%s", c.Key, c.Value)
	case *h264.SetDefaultPreset:
		return fmt.Sprintf("preset %s tune %s", c.Preset, c.Tune)
	case *h264.SetProfile:
		return fmt.Sprintf("profile %s", c.Profile)
	case *h264.SetSpeedControlLatency:
		return fmt.Sprintf("speed control latency %v", c.Latency)
	}
	return strings.ReplaceAll(cmd.Name(), "_", " ")
}
