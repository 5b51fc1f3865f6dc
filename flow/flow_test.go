package flow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/avpipe/flow"
)

func TestDefDup(t *testing.T) {
	def := flow.NewDef("pic.")
	def.SetPicSize(720, 576)
	def.SetLatency(10 * time.Millisecond)

	dup := def.Dup()
	assert.True(t, def.Equal(dup))

	dup.SetLatency(30 * time.Millisecond)
	assert.False(t, def.Equal(dup))
	assert.Equal(t, 10*time.Millisecond, def.Latency())
	assert.Equal(t, 30*time.Millisecond, dup.Latency())
}

func TestDefType(t *testing.T) {
	tests := []struct {
		description string
		typ         string
		prefix      string
		expected    bool
	}{
		{
			description: "narrow match",
			typ:         "block.h264.pic.",
			prefix:      "block.h264.",
			expected:    true,
		},
		{
			description: "coarse match",
			typ:         "block.h264.pic.",
			prefix:      "block.",
			expected:    true,
		},
		{
			description: "mismatch",
			typ:         "block.mpeg2video.pic.",
			prefix:      "block.h264.",
			expected:    false,
		},
	}
	for _, test := range tests {
		def := flow.NewDef(test.typ)
		assert.Equal(t, test.expected, def.HasTypePrefix(test.prefix), test.description)
	}
	assert.False(t, (&flow.Def{}).HasTypePrefix(""))
}

func TestDictTypes(t *testing.T) {
	var d flow.Dict
	d.SetString("key", "value")
	_, ok := d.Unsigned("key")
	assert.False(t, ok)
	v, ok := d.String("key")
	assert.True(t, ok)
	assert.Equal(t, "value", v)

	d.Delete("key")
	assert.Equal(t, 0, d.Len())

	_, _, ok = d.PicSize()
	assert.False(t, ok)
	assert.Equal(t, flow.Rational{Num: 1, Den: 1}, d.SAR())
}

func TestEqual(t *testing.T) {
	var a, b *flow.Def
	assert.True(t, a.Equal(b))
	b = flow.NewDef("pic.")
	assert.False(t, a.Equal(b))
	assert.False(t, b.Equal(a))
	assert.True(t, b.Equal(b.Dup()))
}

func TestRational(t *testing.T) {
	assert.Equal(t, flow.Rational{Num: 16, Den: 9}, flow.Rational{Num: 64, Den: 36}.Simplify())
	assert.Equal(t, flow.Rational{Num: -1, Den: 2}, flow.Rational{Num: 2, Den: -4}.Simplify())
	assert.Equal(t, flow.Rational{Num: 1, Den: 0}, flow.Rational{Num: 1, Den: 0}.Simplify())
}

func TestBuffer(t *testing.T) {
	b := flow.NewPicture(16, 16, flow.Plane{Chroma: "y8", Stride: 16, Data: make([]byte, 256)})
	assert.False(t, b.Empty())
	_, ok := b.PTS()
	assert.False(t, ok)
	b.SetPTS(time.Second)
	pts, ok := b.PTS()
	assert.True(t, ok)
	assert.Equal(t, time.Second, pts)

	assert.True(t, (&flow.Buffer{}).Empty())
}
