package play_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/mock"
	"pipelined.dev/avpipe/play"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type program struct {
	play  *avpipe.Pipe
	subs  []*avpipe.Pipe
	sinks []*mock.Sink
}

func newProgram(t *testing.T, n int) *program {
	t.Helper()
	p, err := avpipe.AllocVoid(play.NewManager(), nil)
	require.Nil(t, err)
	m, err := p.SubManager()
	require.Nil(t, err)
	prog := &program{play: p}
	for i := 0; i < n; i++ {
		sub, err := avpipe.AllocVoid(m, nil)
		require.Nil(t, err)
		sink := mock.NewSink(nil)
		require.Nil(t, sub.SetOutput(sink.Pipe))
		sink.Pipe.Release()
		prog.subs = append(prog.subs, sub)
		prog.sinks = append(prog.sinks, sink)
	}
	return prog
}

func (prog *program) release() {
	for _, sub := range prog.subs {
		sub.Release()
	}
	prog.play.Release()
}

func latencyDef(latency time.Duration) *flow.Def {
	def := flow.NewDef("pic.")
	def.SetPicSize(1920, 1080)
	def.SetLatency(latency)
	return def
}

func TestNegotiation(t *testing.T) {
	prog := newProgram(t, 2)
	defer prog.release()
	sink1, sink2 := prog.sinks[0], prog.sinks[1]

	out, err := play.OutputLatency(prog.play)
	assert.Nil(t, err)
	assert.Equal(t, play.DefaultOutputLatency, out)

	assert.Nil(t, prog.subs[0].SetFlowDef(latencyDef(10*time.Millisecond)))
	input, total, err := play.Latency(prog.play)
	assert.Nil(t, err)
	assert.Equal(t, 10*time.Millisecond, input)
	assert.Equal(t, 30*time.Millisecond, total)
	assert.Equal(t, 1, len(sink1.FlowDefs))
	assert.Equal(t, 30*time.Millisecond, sink1.FlowDef().Latency())

	// smaller latency doesn't change input latency.
	assert.Nil(t, prog.subs[1].SetFlowDef(latencyDef(5*time.Millisecond)))
	input, _, _ = play.Latency(prog.play)
	assert.Equal(t, 10*time.Millisecond, input)
	assert.Equal(t, 30*time.Millisecond, sink2.FlowDef().Latency())
	assert.Equal(t, 1, len(sink1.FlowDefs))

	// increase is sent to all subs.
	assert.Nil(t, prog.subs[0].SetFlowDef(latencyDef(50*time.Millisecond)))
	input, total, _ = play.Latency(prog.play)
	assert.Equal(t, 50*time.Millisecond, input)
	assert.Equal(t, 70*time.Millisecond, total)
	assert.Equal(t, 2, len(sink1.FlowDefs))
	assert.Equal(t, 2, len(sink2.FlowDefs))
	assert.Equal(t, 70*time.Millisecond, sink1.FlowDef().Latency())
	assert.Equal(t, 70*time.Millisecond, sink2.FlowDef().Latency())

	// other attributes are kept.
	w, h, ok := sink2.FlowDef().PicSize()
	assert.True(t, ok)
	assert.Equal(t, uint64(1920), w)
	assert.Equal(t, uint64(1080), h)
}

func TestIdempotent(t *testing.T) {
	prog := newProgram(t, 2)
	defer prog.release()

	assert.Nil(t, prog.subs[0].SetFlowDef(latencyDef(10*time.Millisecond)))
	assert.Nil(t, prog.subs[1].SetFlowDef(latencyDef(5*time.Millisecond)))
	assert.Nil(t, prog.subs[0].SetFlowDef(latencyDef(10*time.Millisecond)))
	assert.Nil(t, prog.subs[1].SetFlowDef(latencyDef(5*time.Millisecond)))
	assert.Equal(t, 1, len(prog.sinks[0].FlowDefs))
	assert.Equal(t, 1, len(prog.sinks[1].FlowDefs))
}

func TestMonotonicInputLatency(t *testing.T) {
	tests := []struct {
		description string
		latencies   []time.Duration
	}{
		{
			description: "increasing",
			latencies:   []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond},
		},
		{
			description: "decreasing",
			latencies:   []time.Duration{3 * time.Millisecond, 2 * time.Millisecond, time.Millisecond},
		},
		{
			description: "mixed",
			latencies:   []time.Duration{2 * time.Millisecond, 0, 40 * time.Millisecond, 5 * time.Millisecond},
		},
		{
			description: "absent latency",
			latencies:   []time.Duration{0, 0},
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			prog := newProgram(t, len(test.latencies))
			defer prog.release()

			var max time.Duration
			for i, l := range test.latencies {
				if l > max {
					max = l
				}
				def := flow.NewDef("sound.")
				if l > 0 {
					def.SetLatency(l)
				}
				assert.Nil(t, prog.subs[i].SetFlowDef(def))
				input, total, err := play.Latency(prog.play)
				assert.Nil(t, err)
				assert.Equal(t, max, input)
				assert.Equal(t, max+play.DefaultOutputLatency, total)
				// every sub with a flow def is in sync.
				for _, sink := range prog.sinks[:i+1] {
					assert.Equal(t, total, sink.FlowDef().Latency())
				}
			}
		})
	}
}

func TestOutputLatency(t *testing.T) {
	prog := newProgram(t, 2)
	defer prog.release()

	assert.Nil(t, prog.subs[0].SetFlowDef(latencyDef(10*time.Millisecond)))
	assert.Nil(t, prog.subs[1].SetFlowDef(latencyDef(10*time.Millisecond)))

	assert.Nil(t, play.ChangeOutputLatency(prog.play, 40*time.Millisecond))
	out, err := play.OutputLatency(prog.play)
	assert.Nil(t, err)
	assert.Equal(t, 40*time.Millisecond, out)
	for _, sink := range prog.sinks {
		assert.Equal(t, 2, len(sink.FlowDefs))
		assert.Equal(t, 50*time.Millisecond, sink.FlowDef().Latency())
	}

	// unchanged total latency isn't sent again.
	assert.Nil(t, play.ChangeOutputLatency(prog.play, 40*time.Millisecond))
	assert.Equal(t, 2, len(prog.sinks[0].FlowDefs))

	err = play.ChangeOutputLatency(prog.play, -time.Millisecond)
	assert.True(t, errors.Is(err, avpipe.ErrInvalid))
}

func TestPendingOutput(t *testing.T) {
	p, err := avpipe.AllocVoid(play.NewManager(), nil)
	require.Nil(t, err)
	m, err := p.SubManager()
	require.Nil(t, err)
	sub1, err := avpipe.AllocVoid(m, nil)
	require.Nil(t, err)
	sub2, err := avpipe.AllocVoid(m, nil)
	require.Nil(t, err)

	assert.Nil(t, sub1.SetFlowDef(latencyDef(10*time.Millisecond)))
	assert.Nil(t, sub2.SetFlowDef(latencyDef(30*time.Millisecond)))

	// sub1 got its output after the latency increase.
	sink := mock.NewSink(nil)
	assert.Nil(t, sub1.SetOutput(sink.Pipe))
	sink.Pipe.Release()
	assert.Equal(t, 1, len(sink.FlowDefs))
	assert.Equal(t, 50*time.Millisecond, sink.FlowDef().Latency())

	sub1.Input(flow.NewPicture(1920, 1080))
	assert.Equal(t, 1, len(sink.Buffers))

	sub1.Release()
	sub2.Release()
	p.Release()
	assert.True(t, sink.Freed)
}

func TestSubCommands(t *testing.T) {
	probe := &mock.Probe{}
	p, err := avpipe.AllocVoid(play.NewManager(), probe)
	require.Nil(t, err)
	prog := &program{play: p}
	m, err := p.SubManager()
	require.Nil(t, err)
	for i := 0; i < 3; i++ {
		sub, err := avpipe.AllocVoid(m, nil)
		require.Nil(t, err)
		prog.subs = append(prog.subs, sub)
	}

	subs, err := p.Subs()
	assert.Nil(t, err)
	assert.Equal(t, prog.subs, subs)

	super, err := prog.subs[1].Super()
	assert.Nil(t, err)
	assert.Equal(t, p, super)

	err = prog.subs[0].SetFlowDef(nil)
	assert.True(t, errors.Is(err, avpipe.ErrInvalid))
	_, err = prog.subs[0].Option("latency")
	assert.True(t, errors.Is(err, avpipe.ErrUnhandled))

	// super stays alive while subs are.
	p.Release()
	assert.Equal(t, 0, probe.Count(&avpipe.Dead{}))
	prog.subs[0].Release()
	subs, err = p.Subs()
	assert.Nil(t, err)
	assert.Equal(t, prog.subs[1:], subs)
	prog.subs[1].Release()
	prog.subs[2].Release()
	assert.Equal(t, 1, probe.Count(&avpipe.Dead{}))
}
