package h264

import (
	"time"

	"pipelined.dev/avpipe/flow"
)

type (
	// Params are the encoder parameters. Codec implementations own the
	// meaning of options.
	Params struct {
		Width               uint64
		Height              uint64
		SAR                 flow.Rational
		Preset              string
		Tune                string
		Profile             string
		SpeedControlLatency time.Duration
		Options             map[string]string
	}

	// Picture is a raw frame to encode.
	Picture struct {
		Width  uint64
		Height uint64
		SAR    flow.Rational
		PTS    time.Duration
		Planes []flow.Plane
	}

	// Packet is the encoded output for one frame.
	Packet struct {
		NALs [][]byte
		PTS  time.Duration
		DTS  time.Duration
	}

	// Codec is the codec core driven by encoder pipes.
	Codec interface {
		// Default resets params to codec defaults.
		Default(p *Params)
		// DefaultPreset applies preset and tune to params.
		DefaultPreset(p *Params, preset, tune string) error
		// ApplyProfile enforces profile on params.
		ApplyProfile(p *Params, profile string) error
		// ParseOption validates and applies an option to params.
		ParseOption(p *Params, key, value string) error
		// Open opens a new encoder.
		Open(p Params) (Encoder, error)
	}

	// Encoder is an opened encoder. It may delay frames, so the output of
	// Encode doesn't necessarily match the picture sent.
	Encoder interface {
		Reconfig(p Params) error
		// Encode encodes the picture. Nil picture flushes one delayed
		// frame. Nil packet is returned if no output is available.
		Encode(pic *Picture) (*Packet, error)
		// Delayed returns number of frames buffered by encoder.
		Delayed() int
		Close() error
	}
)

// Clone returns a deep copy of params.
func (p Params) Clone() Params {
	if p.Options != nil {
		opts := make(map[string]string, len(p.Options))
		for k, v := range p.Options {
			opts[k] = v
		}
		p.Options = opts
	}
	return p
}

func (p Params) geometry(width, height uint64, sar flow.Rational) bool {
	return p.Width == width && p.Height == height && p.SAR == sar
}
