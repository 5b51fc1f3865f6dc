package subpipe_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"pipelined.dev/avpipe"
	"pipelined.dev/avpipe/flow"
	"pipelined.dev/avpipe/mock"
	"pipelined.dev/avpipe/refcount"
	"pipelined.dev/avpipe/subpipe"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type superManager struct{}

func (superManager) Signature() avpipe.Signature { return "test.super" }
func (superManager) Refcount() *refcount.Count { return nil }
func (superManager) Alloc(probe avpipe.Probe, _ *flow.Def) (*avpipe.Pipe, error) {
	return newSuper(probe).pipe, nil
}

type super struct {
	pipe  *avpipe.Pipe
	subs  *subpipe.Manager
	fail  bool
	freed bool
}

type sub struct {
	pipe *avpipe.Pipe
	link *subpipe.Link
}

func newSuper(probe avpipe.Probe) *super {
	s := &super{}
	s.pipe = avpipe.New(superManager{}, probe, s)
	s.subs = subpipe.NewManager(s.pipe, "test.sub", s.allocSub)
	s.pipe.ThrowReady()
	return s
}

func (s *super) allocSub(m *subpipe.Manager, probe avpipe.Probe, _ *flow.Def) (*subpipe.Link, error) {
	if s.fail {
		avpipe.ReleaseProbe(probe)
		return nil, errors.New("out of memory")
	}
	h := &sub{}
	h.pipe = avpipe.New(m, probe, h)
	h.link = m.NewLink(h.pipe)
	return h.link, nil
}

func (s *super) Input(*flow.Buffer) {}
func (s *super) Control(cmd avpipe.Command) error { return s.subs.Control(cmd) }
func (s *super) Free() {
	s.subs.Clean()
	s.freed = true
}

func (h *sub) Input(*flow.Buffer) {}
func (h *sub) Control(cmd avpipe.Command) error { return h.link.Control(cmd) }
func (h *sub) Free() { h.link.Remove() }

func allocSubs(t *testing.T, s *super, n int) []*avpipe.Pipe {
	t.Helper()
	m, err := s.pipe.SubManager()
	assert.Nil(t, err)
	subs := make([]*avpipe.Pipe, 0, n)
	for i := 0; i < n; i++ {
		p, err := avpipe.AllocVoid(m, nil)
		assert.Nil(t, err)
		subs = append(subs, p)
	}
	return subs
}

func TestSubs(t *testing.T) {
	s := newSuper(nil)
	subs := allocSubs(t, s, 3)

	got, err := s.pipe.Subs()
	assert.Nil(t, err)
	assert.Equal(t, subs, got)
	for _, p := range subs {
		sup, err := p.Super()
		assert.Nil(t, err)
		assert.Equal(t, s.pipe, sup)
	}

	// iteration can be stopped and restarted.
	for p := range s.subs.Subs() {
		assert.Equal(t, subs[0], p)
		break
	}
	assert.Equal(t, subs, slices.Collect(s.subs.Subs()))

	subs[1].Release()
	assert.Equal(t, 2, s.subs.Len())
	assert.Equal(t, []*avpipe.Pipe{subs[0], subs[2]}, slices.Collect(s.subs.Subs()))

	subs[0].Release()
	subs[2].Release()
	s.pipe.Release()
	assert.True(t, s.freed)
}

func TestSharedRefcount(t *testing.T) {
	probe := &mock.Probe{}
	s := newSuper(probe)
	subs := allocSubs(t, s, 2)

	s.pipe.Release()
	assert.False(t, s.freed)
	assert.Equal(t, 0, probe.Count(&avpipe.Dead{}))

	subs[0].Release()
	assert.False(t, s.freed)
	subs[1].Release()
	assert.True(t, s.freed)
	assert.Equal(t, 1, probe.Count(&avpipe.Dead{}))
}

func TestReady(t *testing.T) {
	s := newSuper(nil)
	m, err := s.pipe.SubManager()
	assert.Nil(t, err)

	linked := -1
	probe := avpipe.ProbeFunc(func(p *avpipe.Pipe, e avpipe.Event) error {
		if _, ok := e.(*avpipe.Ready); ok {
			linked = s.subs.Len()
		}
		return avpipe.ErrUnhandled
	})
	p, err := avpipe.AllocVoid(m, probe)
	assert.Nil(t, err)
	assert.Equal(t, 1, linked)

	p.Release()
	s.pipe.Release()
}

func TestAllocFailure(t *testing.T) {
	s := newSuper(nil)
	s.fail = true
	probe := &mock.Probe{}

	_, err := avpipe.AllocVoid(s.subs, probe)
	assert.True(t, errors.Is(err, avpipe.ErrAlloc))
	assert.Equal(t, 0, s.subs.Len())
	assert.Equal(t, 1, probe.Released)
	assert.Empty(t, probe.Records)

	s.pipe.Release()
	assert.True(t, s.freed)
}
