// Package h264 provides an H.264 encoder pipe on top of a codec core.
//
// The pipe accepts "pic." flows and outputs "block.h264.pic.". Encoder is
// opened with the geometry of the first picture and reconfigured whenever a
// picture of another size or aspect ratio arrives. When the pipe dies, all
// delayed frames are flushed downstream before the encoder is closed.
package h264

import (
	"bytes"
	"fmt"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/refcount"
)

// Signature of h264 pipes.
const Signature avpipe.Signature = "x264"

const (
	// ExpectedFlow is the prefix of accepted input flows.
	ExpectedFlow = "pic."
	// OutFlow is the type of output flow.
	OutFlow = "block.h264.pic."
)

type manager struct {
	codec Codec
}

// NewManager returns a manager of encoder pipes driving provided codec.
// Manager holds no mutable state and isn't reference counted.
func NewManager(codec Codec) avpipe.Manager {
	return &manager{codec: codec}
}

func (m *manager) Signature() avpipe.Signature {
	return Signature
}

func (m *manager) Refcount() *refcount.Count {
	return nil
}

// Alloc allocates an encoder pipe. Provided flow definition, if any, is
// used as a template for the output flow definition.
func (m *manager) Alloc(probe avpipe.Probe, def *flow.Def) (*avpipe.Pipe, error) {
	e := &encoder{codec: m.codec}
	m.codec.Default(&e.params)
	e.pipe = avpipe.New(m, probe, e)
	e.output.Init(e.pipe)
	e.pipe.ThrowReady()

	out := def.Dup()
	if out == nil {
		out = &flow.Def{}
	}
	out.SetType(OutFlow)
	e.output.StoreFlowDef(out)
	return e.pipe, nil
}

type encoder struct {
	pipe   *avpipe.Pipe
	codec  Codec
	enc    Encoder
	params Params
	output avpipe.Output
}

func (e *encoder) Input(b *flow.Buffer) {
	if b.Planes == nil {
		e.output.Output(b)
		return
	}
	e.inputPic(b)
}

func (e *encoder) inputPic(b *flow.Buffer) {
	width, height, ok := b.PicSize()
	if !ok {
		e.pipe.Warnf("picture without size dropped")
		return
	}
	sar := b.SAR().Simplify()

	needOpen := false
	if e.enc == nil {
		needOpen = true
	} else if !e.params.geometry(width, height, sar) {
		needOpen = true
		e.pipe.Noticef("flow parameters changed, reconfiguring encoder")
	}
	if needOpen && !e.open(width, height, sar) {
		e.pipe.Errorf("could not open encoder")
		return
	}

	pts, _ := b.PTS()
	pkt, err := e.enc.Encode(&Picture{
		Width:  width,
		Height: height,
		SAR:    sar,
		PTS:    pts,
		Planes: b.Planes,
	})
	e.emit(pkt, err)
}

// open opens the encoder or reconfigures it if it's already opened.
func (e *encoder) open(width, height uint64, sar flow.Rational) bool {
	e.params.Width = width
	e.params.Height = height
	e.params.SAR = sar

	if e.enc != nil {
		if err := e.enc.Reconfig(e.params.Clone()); err != nil {
			e.pipe.Warnf("reconfigure %dx%d: %v", width, height, err)
			return false
		}
		return true
	}
	enc, err := e.codec.Open(e.params.Clone())
	if err != nil {
		e.pipe.Warnf("open %dx%d: %v", width, height, err)
		return false
	}
	e.enc = enc
	return true
}

func (e *encoder) emit(pkt *Packet, err error) {
	if err != nil {
		e.pipe.Warnf("error encoding frame: %v", err)
		return
	}
	if pkt == nil || len(pkt.NALs) == 0 {
		e.pipe.Debugf("no nal units returned")
		return
	}
	out := flow.NewBlock(bytes.Join(pkt.NALs, nil))
	out.SetPTS(pkt.PTS)
	out.SetDTS(pkt.DTS)
	e.output.Output(out)
}

// Drain flushes delayed frames and closes the encoder.
func (e *encoder) Drain() {
	if e.enc == nil {
		return
	}
	for n := e.enc.Delayed(); n > 0; {
		pkt, err := e.enc.Encode(nil)
		e.emit(pkt, err)
		left := e.enc.Delayed()
		if err != nil || left >= n {
			e.pipe.Warnf("encoder stalled with %d delayed frames", left)
			break
		}
		n = left
	}
	e.pipe.Noticef("closing encoder")
	if err := e.enc.Close(); err != nil {
		e.pipe.Warnf("close encoder: %v", err)
	}
	e.enc = nil
}

func (e *encoder) Free() {
	e.output.Clean()
}

func (e *encoder) setFlowDef(def *flow.Def) error {
	if def == nil {
		return avpipe.ErrInvalid
	}
	if !def.HasTypePrefix(ExpectedFlow) {
		return fmt.Errorf("flow def %q: %w", def.Type(), avpipe.ErrInvalid)
	}
	if e.enc != nil {
		if width, height, ok := def.PicSize(); ok && !e.params.geometry(width, height, def.SAR().Simplify()) {
			return fmt.Errorf("geometry %dx%d on opened encoder: %w", width, height, avpipe.ErrInvalid)
		}
	}
	out := def.Dup()
	out.SetType(OutFlow)
	e.output.StoreFlowDef(out)
	return nil
}

func (e *encoder) Control(cmd avpipe.Command) error {
	switch c := cmd.(type) {
	case *avpipe.SetFlowDef:
		return e.setFlowDef(c.Def)
	case *avpipe.SetOption:
		if err := e.codec.ParseOption(&e.params, c.Key, c.Value); err != nil {
			return fmt.Errorf("option %s=%s: %w", c.Key, c.Value, err)
		}
		return nil
	case *avpipe.GetOption:
		v, ok := e.params.Options[c.Key]
		if !ok {
			return fmt.Errorf("option %s: %w", c.Key, avpipe.ErrInvalid)
		}
		c.Value = v
		return nil
	case *SetDefault:
		e.codec.Default(&e.params)
		return nil
	case *SetDefaultPreset:
		if err := e.codec.DefaultPreset(&e.params, c.Preset, c.Tune); err != nil {
			return fmt.Errorf("preset %s tune %s: %w", c.Preset, c.Tune, err)
		}
		return nil
	case *SetProfile:
		if err := e.codec.ApplyProfile(&e.params, c.Profile); err != nil {
			return fmt.Errorf("profile %s: %w", c.Profile, err)
		}
		return nil
	case *SetSpeedControlLatency:
		if c.Latency < 0 {
			return fmt.Errorf("speed control latency %v: %w", c.Latency, avpipe.ErrInvalid)
		}
		e.params.SpeedControlLatency = c.Latency
		return nil
	case *Reconfigure:
		if e.enc == nil {
			return fmt.Errorf("reconfigure closed encoder: %w", avpipe.ErrInvalid)
		}
		return e.enc.Reconfig(e.params.Clone())
	}
	return e.output.Control(cmd)
}
