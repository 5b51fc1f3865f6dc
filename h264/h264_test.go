package h264_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/h264"
	"pipelined.dev/avpipe/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func picture(width, height uint64, pts time.Duration) *flow.Buffer {
	b := flow.NewPicture(width, height, flow.Plane{Chroma: "y8", Stride: int(width)})
	b.SetPTS(pts)
	return b
}

func newEncoder(t *testing.T, codec *mock.Codec, probe avpipe.Probe) (*avpipe.Pipe, *mock.Sink) {
	t.Helper()
	p, err := avpipe.AllocFlow(h264.NewManager(codec), probe, flow.NewDef(h264.OutFlow))
	require.Nil(t, err)
	sink := mock.NewSink(nil)
	require.Nil(t, p.SetOutput(sink.Pipe))
	sink.Pipe.Release()
	return p, sink
}

func TestGeometryChange(t *testing.T) {
	codec := &mock.Codec{}
	p, sink := newEncoder(t, codec, nil)

	p.Input(picture(640, 360, 0))
	p.Input(picture(640, 360, 1))
	p.Input(picture(1280, 720, 2))
	p.Input(picture(1280, 720, 3))
	b := picture(1280, 720, 4)
	b.SetSAR(flow.Rational{Num: 2, Den: 2})
	p.Input(b)

	require.Equal(t, 1, len(codec.Encoders))
	enc := codec.Encoders[0]
	assert.Equal(t, []int{2}, enc.Reconfigs)
	assert.Equal(t, uint64(640), enc.Opened.Width)
	assert.Equal(t, uint64(1280), enc.Params.Width)
	assert.Equal(t, 5, len(sink.Buffers))

	// aspect ratio change reconfigures too.
	b = picture(1280, 720, 5)
	b.SetSAR(flow.Rational{Num: 4, Den: 3})
	p.Input(b)
	assert.Equal(t, []int{2, 5}, enc.Reconfigs)

	p.Release()
	assert.True(t, enc.Closed)
}

func TestDrain(t *testing.T) {
	codec := &mock.Codec{Delay: 3}
	p, sink := newEncoder(t, codec, nil)

	for i := 0; i < 3; i++ {
		p.Input(picture(320, 240, time.Duration(i)))
	}
	assert.Empty(t, sink.Buffers)
	enc := codec.Encoders[0]
	assert.Equal(t, 3, enc.Delayed())

	p.Release()
	assert.Equal(t, 0, enc.Delayed())
	assert.Equal(t, 3, enc.Flushes)
	assert.True(t, enc.Closed)
	require.Equal(t, 3, len(sink.Buffers))
	for i, b := range sink.Buffers {
		pts, _ := b.PTS()
		dts, _ := b.DTS()
		assert.Equal(t, time.Duration(i), pts)
		assert.Equal(t, time.Duration(i), dts)
		assert.Equal(t, []byte{0, 0, 0, 1, byte('0' + i)}, b.Block)
	}
	assert.True(t, sink.Freed)
}

func TestDrainStall(t *testing.T) {
	codec := &mock.Codec{Delay: 2, Stall: true}
	probe := &mock.Probe{}
	p, _ := newEncoder(t, codec, probe)
	p.Input(picture(320, 240, 0))
	enc := codec.Encoders[0]
	enc.ErrorOnClose = errors.New("close failed")

	p.Release()
	assert.Equal(t, 1, enc.Flushes)
	assert.Equal(t, 1, enc.Delayed())
	assert.True(t, enc.Closed)
	assert.Equal(t, 1, probe.Count(&avpipe.Dead{}))
}

func TestFlowDef(t *testing.T) {
	codec := &mock.Codec{}
	p, sink := newEncoder(t, codec, nil)
	defer p.Release()

	err := p.SetFlowDef(flow.NewDef("sound.s16."))
	assert.True(t, errors.Is(err, avpipe.ErrInvalid))
	err = p.SetFlowDef(nil)
	assert.True(t, errors.Is(err, avpipe.ErrInvalid))

	def := flow.NewDef("pic.planar8_8_420.")
	def.SetPicSize(640, 360)
	assert.Nil(t, p.SetFlowDef(def))
	out := sink.FlowDef()
	assert.Equal(t, h264.OutFlow, out.Type())
	w, h, ok := out.PicSize()
	assert.True(t, ok)
	assert.Equal(t, uint64(640), w)
	assert.Equal(t, uint64(360), h)

	p.Input(picture(640, 360, 0))
	assert.Nil(t, p.SetFlowDef(def.Dup()))

	// opened encoder can't change geometry from flow def.
	def = def.Dup()
	def.SetPicSize(1280, 720)
	err = p.SetFlowDef(def)
	assert.True(t, errors.Is(err, avpipe.ErrInvalid))
}

func TestPassthrough(t *testing.T) {
	codec := &mock.Codec{}
	p, sink := newEncoder(t, codec, nil)
	p.Input(flow.NewBlock([]byte{1}))
	assert.Equal(t, 1, len(sink.Buffers))
	assert.Empty(t, codec.Encoders)

	// picture without size is dropped.
	p.Input(&flow.Buffer{Planes: []flow.Plane{{}}})
	assert.Equal(t, 1, len(sink.Buffers))
	p.Release()
}

func TestOpenError(t *testing.T) {
	codec := &mock.Codec{ErrorOnOpen: errors.New("no encoder")}
	probe := &mock.Probe{}
	p, sink := newEncoder(t, codec, probe)
	p.Input(picture(320, 240, 0))
	assert.Empty(t, sink.Buffers)
	assert.Equal(t, 2, probe.Count(&avpipe.Log{}))
	p.Release()
}

func TestControl(t *testing.T) {
	codec := &mock.Codec{}
	p, _ := newEncoder(t, codec, nil)
	defer p.Release()

	assert.Nil(t, p.SetOption("bitrate", "4000"))
	v, err := p.Option("bitrate")
	assert.Nil(t, err)
	assert.Equal(t, "4000", v)

	tests := []struct {
		description string
		cmd         avpipe.Command
	}{
		{
			description: "unknown option",
			cmd:         &avpipe.SetOption{Key: "color", Value: "red"},
		},
		{
			description: "invalid value",
			cmd:         &avpipe.SetOption{Key: "bitrate", Value: "fast"},
		},
		{
			description: "missing option",
			cmd:         &avpipe.GetOption{Key: "keyint"},
		},
		{
			description: "unknown preset",
			cmd:         &h264.SetDefaultPreset{Preset: "warp"},
		},
		{
			description: "unknown profile",
			cmd:         &h264.SetProfile{Profile: "extreme"},
		},
		{
			description: "negative latency",
			cmd:         &h264.SetSpeedControlLatency{Latency: -time.Second},
		},
		{
			description: "reconfigure closed encoder",
			cmd:         &h264.Reconfigure{},
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			err := p.Control(test.cmd)
			assert.True(t, errors.Is(err, avpipe.ErrInvalid))
		})
	}

	assert.Nil(t, p.Control(&h264.SetDefaultPreset{Preset: "veryfast", Tune: "zerolatency"}))
	assert.Nil(t, p.Control(&h264.SetProfile{Profile: "baseline"}))
	assert.Nil(t, p.Control(&h264.SetSpeedControlLatency{Latency: time.Second}))
	p.Input(picture(320, 240, 0))
	enc := codec.Encoders[0]
	assert.Equal(t, "veryfast", enc.Opened.Preset)
	assert.Equal(t, "zerolatency", enc.Opened.Tune)
	assert.Equal(t, "baseline", enc.Opened.Profile)
	assert.Equal(t, time.Second, enc.Opened.SpeedControlLatency)

	assert.Nil(t, p.SetOption("keyint", "25"))
	assert.Nil(t, p.Control(&h264.Reconfigure{}))
	assert.Equal(t, "25", enc.Params.Options["keyint"])
	assert.Equal(t, []int{1}, enc.Reconfigs)

	// defaults drop options.
	assert.Nil(t, p.Control(&h264.SetDefault{}))
	_, err = p.Option("bitrate")
	assert.True(t, errors.Is(err, avpipe.ErrInvalid))

	err = p.Control(&avpipe.GetSuper{})
	assert.True(t, errors.Is(err, avpipe.ErrUnhandled))
}
