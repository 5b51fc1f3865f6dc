package flow

import "time"

type (
	// Buffer carries a chunk of media. Block buffers have Block set,
	// pictures have Planes set. Buffers without payload are passed through.
	Buffer struct {
		Dict
		Block  []byte
		Planes []Plane
	}

	// Plane is a single chroma plane of a picture.
	Plane struct {
		Chroma string
		Stride int
		Data   []byte
	}
)

// NewBlock returns a block buffer.
func NewBlock(data []byte) *Buffer {
	return &Buffer{Block: data}
}

// NewPicture returns a picture buffer of provided size.
func NewPicture(width, height uint64, planes ...Plane) *Buffer {
	b := &Buffer{Planes: planes}
	b.SetPicSize(width, height)
	return b
}

// Empty returns true if buffer carries no payload.
func (b *Buffer) Empty() bool {
	return b.Block == nil && b.Planes == nil
}

// SetPTS sets presentation timestamp.
func (b *Buffer) SetPTS(ts time.Duration) {
	b.SetDuration(KeyPTS, ts)
}

// PTS returns presentation timestamp.
func (b *Buffer) PTS() (time.Duration, bool) {
	return b.Duration(KeyPTS)
}

// SetDTS sets decoding timestamp.
func (b *Buffer) SetDTS(ts time.Duration) {
	b.SetDuration(KeyDTS, ts)
}

// DTS returns decoding timestamp.
func (b *Buffer) DTS() (time.Duration, bool) {
	return b.Duration(KeyDTS)
}
