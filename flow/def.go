package flow

import (
	"strings"
	"time"
)

// Attribute keys.
const (
	KeyDef      = "f.def"
	KeyLatency  = "k.latency"
	KeyPTS      = "k.pts"
	KeyDTS      = "k.dts"
	KeyHSize    = "p.hsize"
	KeyVSize    = "p.vsize"
	KeySAR      = "p.sar"
	KeyRate     = "s.rate"
	KeyChannels = "s.channels"
)

// Def is a flow definition. It describes the buffers travelling on one
// link and must not be mutated after it was sent downstream: Dup it and
// alter the copy instead.
type Def struct {
	Dict
}

// NewDef returns flow definition of provided type. Type is a dot-separated
// signature, e.g "pic." or "block.h264.pic.".
func NewDef(typ string) *Def {
	d := &Def{}
	d.SetType(typ)
	return d
}

// Dup returns a copy of flow definition.
func (d *Def) Dup() *Def {
	if d == nil {
		return nil
	}
	return &Def{Dict: d.dup()}
}

// Equal reports whether both definitions hold the same attributes.
func (d *Def) Equal(o *Def) bool {
	if d == nil || o == nil {
		return d == o
	}
	return d.Dict.Equal(&o.Dict)
}

// SetType sets the flow type.
func (d *Def) SetType(typ string) {
	d.SetString(KeyDef, typ)
}

// Type returns the flow type. Empty string is returned if not set.
func (d *Def) Type() string {
	typ, _ := d.String(KeyDef)
	return typ
}

// HasTypePrefix returns true if flow type starts with provided prefix.
func (d *Def) HasTypePrefix(prefix string) bool {
	typ, ok := d.String(KeyDef)
	return ok && strings.HasPrefix(typ, prefix)
}

// SetLatency sets the latency of the flow.
func (d *Def) SetLatency(l time.Duration) {
	d.SetDuration(KeyLatency, l)
}

// Latency returns the latency of the flow. Zero is returned if not set.
func (d *Def) Latency() time.Duration {
	l, _ := d.Duration(KeyLatency)
	return l
}

// SetPicSize sets picture size.
func (d *Dict) SetPicSize(width, height uint64) {
	d.SetUnsigned(KeyHSize, width)
	d.SetUnsigned(KeyVSize, height)
}

// PicSize returns picture size.
func (d *Dict) PicSize() (width, height uint64, ok bool) {
	width, ok = d.Unsigned(KeyHSize)
	if !ok {
		return 0, 0, false
	}
	height, ok = d.Unsigned(KeyVSize)
	if !ok {
		return 0, 0, false
	}
	return width, height, true
}

// SetSAR sets sample aspect ratio.
func (d *Dict) SetSAR(sar Rational) {
	d.SetRational(KeySAR, sar)
}

// SAR returns sample aspect ratio, 1:1 if not set.
func (d *Dict) SAR() Rational {
	if sar, ok := d.Rational(KeySAR); ok && sar.Den != 0 {
		return sar
	}
	return Rational{Num: 1, Den: 1}
}

// SetSound sets sound properties.
func (d *Dict) SetSound(rate, channels uint64) {
	d.SetUnsigned(KeyRate, rate)
	d.SetUnsigned(KeyChannels, channels)
}

// Sound returns sound properties.
func (d *Dict) Sound() (rate, channels uint64, ok bool) {
	rate, ok = d.Unsigned(KeyRate)
	if !ok {
		return 0, 0, false
	}
	channels, ok = d.Unsigned(KeyChannels)
	if !ok {
		return 0, 0, false
	}
	return rate, channels, true
}
