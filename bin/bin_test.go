package bin_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/bin"
	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/mock"
	"pipelined.dev/avpipe/refcount"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type manager struct{}

func (manager) Signature() avpipe.Signature { return "test.bin" }
func (manager) Refcount() *refcount.Count { return nil }
func (manager) Alloc(probe avpipe.Probe, _ *flow.Def) (*avpipe.Pipe, error) {
	avpipe.ReleaseProbe(probe)
	return nil, avpipe.ErrInvalid
}

// testBin wraps a single pipe allocated by the backend.
type testBin struct {
	pipe  *avpipe.Pipe
	real  *refcount.Count
	bin   bin.Bin
	freed bool
}

func newBin(t *testing.T, probe avpipe.Probe, backend *mock.Backend) *testBin {
	t.Helper()
	b := &testBin{}
	b.pipe = avpipe.New(manager{}, probe, b)
	b.real = refcount.New(b.pipe.Finalize)
	b.bin.Init(b.pipe, b.real)
	inner, err := backend.Alloc(b.bin.Probe(), flow.NewDef("pic."))
	assert.Nil(t, err)
	b.bin.StoreLastInner(inner)
	b.pipe.ThrowReady()
	return b
}

func (b *testBin) Input(buf *flow.Buffer) { b.bin.Input(buf) }
func (b *testBin) Control(cmd avpipe.Command) error { return b.bin.Control(cmd) }
func (b *testBin) Free() { b.freed = true }

func (b *testBin) NoRef() {
	b.bin.Clean()
	b.real.Release()
}

func TestRelay(t *testing.T) {
	probe := &mock.Probe{}
	backend := &mock.Backend{}
	b := newBin(t, probe, backend)

	// lifecycle events of inner pipes stay private.
	assert.Equal(t, 1, probe.Count(&avpipe.Ready{}))

	backend.Last().Pipe.Warnf("inner message")
	assert.Equal(t, 1, probe.Count(&avpipe.Log{}))
	last := probe.Records[len(probe.Records)-1]
	assert.Equal(t, b.pipe, last.Pipe)

	b.pipe.Release()
	assert.True(t, b.freed)
	assert.True(t, backend.Last().Freed)
	assert.Equal(t, 1, probe.Count(&avpipe.Dead{}))
	assert.Equal(t, 1, probe.Released)
}

func TestOutput(t *testing.T) {
	backend := &mock.Backend{}
	b := newBin(t, nil, backend)
	sink := mock.NewSink(nil)

	assert.Nil(t, b.pipe.SetOutput(sink.Pipe))
	sink.Pipe.Release()
	out, err := b.pipe.Output()
	assert.Nil(t, err)
	assert.Equal(t, sink.Pipe, out)
	out, err = backend.Last().Pipe.Output()
	assert.Nil(t, err)
	assert.Equal(t, sink.Pipe, out)

	assert.Nil(t, b.pipe.SetFlowDef(flow.NewDef("pic.")))
	b.pipe.Input(flow.NewBlock([]byte{1}))
	assert.Equal(t, 1, len(sink.Buffers))

	// replaced inner pipe gets the output of the bin.
	inner, err := backend.Alloc(b.bin.Probe(), nil)
	assert.Nil(t, err)
	b.bin.StoreLastInner(inner)
	assert.True(t, backend.Pipes[0].Freed)
	out, err = inner.Output()
	assert.Nil(t, err)
	assert.Equal(t, sink.Pipe, out)

	b.pipe.Release()
	assert.True(t, sink.Freed)
}

func TestRealRefcount(t *testing.T) {
	probe := &mock.Probe{}
	backend := &mock.Backend{Hold: true}
	b := newBin(t, probe, backend)

	b.pipe.Release()
	assert.False(t, b.freed)
	assert.False(t, b.pipe.Dead())
	assert.Equal(t, 0, probe.Count(&avpipe.Dead{}))

	backend.Last().Pipe.Release()
	assert.True(t, backend.Last().Freed)
	assert.True(t, b.freed)
	assert.True(t, b.pipe.Dead())
	assert.Equal(t, 1, probe.Count(&avpipe.Dead{}))
}

func TestNoInner(t *testing.T) {
	backend := &mock.Backend{}
	b := newBin(t, nil, backend)
	b.bin.StoreLastInner(nil)
	assert.True(t, backend.Last().Freed)
	assert.Nil(t, b.bin.LastInner())

	err := b.pipe.SetOption("bitrate", "1000")
	assert.True(t, errors.Is(err, avpipe.ErrUnhandled))
	b.pipe.Input(flow.NewBlock([]byte{1}))

	b.pipe.Release()
	assert.True(t, b.freed)
}
