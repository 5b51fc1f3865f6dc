package mock

import (
	"errors"
	"fmt"
	"strconv"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/h264"
)

var (
	presets  = []string{"ultrafast", "superfast", "veryfast", "faster", "fast", "medium", "slow", "slower", "veryslow", "placebo"}
	profiles = []string{"baseline", "main", "high"}
	// numeric options known by mocked codec.
	options = []string{"bitrate", "keyint", "crf", "threads"}
)

// Codec mocks an H.264 codec core. Opened encoders are recorded.
type Codec struct {
	// Delay is the number of frames held by opened encoders.
	Delay int
	// Stall makes encoders ignore flush requests.
	Stall       bool
	ErrorOnOpen error
	Encoders    []*Encoder
}

// Default implements h264.Codec.
func (c *Codec) Default(p *h264.Params) {
	*p = h264.Params{
		Preset:  "medium",
		Options: make(map[string]string),
	}
}

// DefaultPreset implements h264.Codec.
func (c *Codec) DefaultPreset(p *h264.Params, preset, tune string) error {
	if preset != "" && !contains(presets, preset) {
		return fmt.Errorf("unknown preset %q: %w", preset, avpipe.ErrInvalid)
	}
	p.Preset = preset
	p.Tune = tune
	return nil
}

// ApplyProfile implements h264.Codec.
func (c *Codec) ApplyProfile(p *h264.Params, profile string) error {
	if !contains(profiles, profile) {
		return fmt.Errorf("unknown profile %q: %w", profile, avpipe.ErrInvalid)
	}
	p.Profile = profile
	return nil
}

// ParseOption implements h264.Codec. Only numeric options are known.
func (c *Codec) ParseOption(p *h264.Params, key, value string) error {
	if !contains(options, key) {
		return fmt.Errorf("unknown option %q: %w", key, avpipe.ErrInvalid)
	}
	if _, err := strconv.Atoi(value); err != nil {
		return fmt.Errorf("option %q value %q: %w", key, value, avpipe.ErrInvalid)
	}
	if p.Options == nil {
		p.Options = make(map[string]string)
	}
	p.Options[key] = value
	return nil
}

// Open implements h264.Codec.
func (c *Codec) Open(p h264.Params) (h264.Encoder, error) {
	if c.ErrorOnOpen != nil {
		return nil, c.ErrorOnOpen
	}
	e := &Encoder{
		Params: p,
		Opened: p,
		delay:  c.Delay,
		stall:  c.Stall,
	}
	c.Encoders = append(c.Encoders, e)
	return e, nil
}

// Encoder mocks an opened encoder. Every packet carries a single NAL with
// the pts of the picture.
type Encoder struct {
	// Opened are params encoder was opened with.
	Opened h264.Params
	// Params are the params in effect.
	Params   h264.Params
	Frames   int
	Flushes  int
	Packets  int
	Geometry [][2]uint64
	Closed   bool

	// Reconfigs holds indices of frames which were encoded right after
	// reconfiguration.
	Reconfigs []int

	ErrorOnReconfig error
	ErrorOnClose    error

	delay int
	stall bool
	queue []*h264.Picture
}

// Reconfig implements h264.Encoder.
func (e *Encoder) Reconfig(p h264.Params) error {
	if e.ErrorOnReconfig != nil {
		return e.ErrorOnReconfig
	}
	e.Params = p
	e.Reconfigs = append(e.Reconfigs, e.Frames)
	return nil
}

// Encode implements h264.Encoder.
func (e *Encoder) Encode(pic *h264.Picture) (*h264.Packet, error) {
	if e.Closed {
		return nil, errors.New("encode on closed encoder")
	}
	if pic == nil {
		e.Flushes++
		if e.stall || len(e.queue) == 0 {
			return nil, nil
		}
		return e.pop(), nil
	}
	e.Frames++
	e.Geometry = append(e.Geometry, [2]uint64{pic.Width, pic.Height})
	e.queue = append(e.queue, pic)
	if len(e.queue) > e.delay {
		return e.pop(), nil
	}
	return nil, nil
}

func (e *Encoder) pop() *h264.Packet {
	pic := e.queue[0]
	e.queue = e.queue[1:]
	e.Packets++
	return &h264.Packet{
		NALs: [][]byte{{0, 0, 0, 1}, []byte(strconv.Itoa(int(pic.PTS)))},
		PTS:  pic.PTS,
		DTS:  pic.PTS,
	}
}

// Delayed implements h264.Encoder.
func (e *Encoder) Delayed() int {
	return len(e.queue)
}

// Close implements h264.Encoder.
func (e *Encoder) Close() error {
	e.Closed = true
	return e.ErrorOnClose
}

func contains(values []string, v string) bool {
	for i := range values {
		if values[i] == v {
			return true
		}
	}
	return false
}
