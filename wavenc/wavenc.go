// Package wavenc provides a generic encoder backend writing PCM sound into
// WAV blocks.
//
// The pipe accepts "sound.s16." flows with interleaved little-endian
// samples. The whole file is kept in memory and sent downstream as a single
// "block.wav.sound." buffer when the pipe is drained.
package wavenc

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/refcount"
)

// Signature of wav encoder pipes.
const Signature avpipe.Signature = "wavenc"

const (
	// ExpectedFlow is the prefix of accepted input flows.
	ExpectedFlow = "sound.s16."
	// OutFlow is the type of output flow.
	OutFlow = "block.wav.sound."
	// OptionBitDepth is the option key of output bit depth.
	OptionBitDepth = "bit_depth"

	// input bit depth.
	sourceBitDepth = 16
	pcmFormat      = 1
)

type manager struct{}

// NewManager returns the manager of wav encoder pipes.
func NewManager() avpipe.Manager {
	return manager{}
}

func (manager) Signature() avpipe.Signature {
	return Signature
}

func (manager) Refcount() *refcount.Count {
	return nil
}

// Alloc allocates a wav encoder. Provided flow definition, if any, is used
// as a template for the output flow definition.
func (manager) Alloc(probe avpipe.Probe, def *flow.Def) (*avpipe.Pipe, error) {
	e := &encoder{bitDepth: sourceBitDepth}
	e.pipe = avpipe.New(manager{}, probe, e)
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
	output avpipe.Output

	bitDepth int
	rate     uint64
	channels uint64

	file    *memFile
	enc     *wav.Encoder
	ib      *audio.IntBuffer
	// pts of the first block.
	pts     time.Duration
	hasPTS  bool
	samples int
}

func (e *encoder) Input(b *flow.Buffer) {
	if b.Block == nil {
		e.output.Output(b)
		return
	}
	if e.rate == 0 {
		e.pipe.Warnf("sound received before flow def, dropping")
		return
	}
	frame := 2 * int(e.channels)
	if len(b.Block)%frame != 0 {
		e.pipe.Warnf("truncated sound block of %d bytes, dropping", len(b.Block))
		return
	}
	if e.enc == nil {
		e.open(b)
	}

	shift := e.bitDepth - sourceBitDepth
	e.ib.Data = e.ib.Data[:0]
	for i := 0; i < len(b.Block); i += 2 {
		v := int(int16(binary.LittleEndian.Uint16(b.Block[i:])))
		e.ib.Data = append(e.ib.Data, v<<shift)
	}
	if err := e.enc.Write(e.ib); err != nil {
		e.pipe.Warnf("error encoding samples: %v", err)
		return
	}
	e.samples += len(b.Block) / frame
}

func (e *encoder) open(b *flow.Buffer) {
	e.file = &memFile{}
	e.enc = wav.NewEncoder(e.file, int(e.rate), e.bitDepth, int(e.channels), pcmFormat)
	e.ib = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: int(e.channels),
			SampleRate:  int(e.rate),
		},
		SourceBitDepth: e.bitDepth,
	}
	e.pts, e.hasPTS = b.PTS()
	e.pipe.Debugf("opened %d Hz %d channels %d bit encoder", e.rate, e.channels, e.bitDepth)
}

// Drain closes the encoder and sends the file downstream.
func (e *encoder) Drain() {
	if e.enc == nil {
		return
	}
	if err := e.enc.Close(); err != nil {
		e.pipe.Warnf("close encoder: %v", err)
		return
	}
	e.pipe.Noticef("closing encoder after %d samples", e.samples)
	out := flow.NewBlock(e.file.Bytes())
	if e.hasPTS {
		out.SetPTS(e.pts)
	}
	e.output.Output(out)
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
	rate, channels, ok := def.Sound()
	if !ok || rate == 0 || channels == 0 {
		return fmt.Errorf("flow def without sound format: %w", avpipe.ErrInvalid)
	}
	if e.enc != nil && (rate != e.rate || channels != e.channels) {
		return fmt.Errorf("%d Hz %d channels on started encoder: %w", rate, channels, avpipe.ErrInvalid)
	}
	e.rate, e.channels = rate, channels
	out := def.Dup()
	out.SetType(OutFlow)
	e.output.StoreFlowDef(out)
	return nil
}

func (e *encoder) setOption(key, value string) error {
	if key != OptionBitDepth {
		return fmt.Errorf("unknown option %q: %w", key, avpipe.ErrInvalid)
	}
	depth, err := strconv.Atoi(value)
	if err != nil || (depth != 16 && depth != 24 && depth != 32) {
		return fmt.Errorf("bit depth %q: %w", value, avpipe.ErrInvalid)
	}
	if e.enc != nil && depth != e.bitDepth {
		return fmt.Errorf("bit depth on started encoder: %w", avpipe.ErrInvalid)
	}
	e.bitDepth = depth
	return nil
}

func (e *encoder) Control(cmd avpipe.Command) error {
	switch c := cmd.(type) {
	case *avpipe.SetFlowDef:
		return e.setFlowDef(c.Def)
	case *avpipe.SetOption:
		return e.setOption(c.Key, c.Value)
	case *avpipe.GetOption:
		if c.Key != OptionBitDepth {
			return fmt.Errorf("unknown option %q: %w", c.Key, avpipe.ErrInvalid)
		}
		c.Value = strconv.Itoa(e.bitDepth)
		return nil
	}
	return e.output.Control(cmd)
}
