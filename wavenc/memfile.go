package wavenc

import (
	"errors"
	"io"
)

// memFile is an in-memory io.WriteSeeker. WAV encoder seeks back to the
// header when it's closed.
type memFile struct {
	data []byte
	pos  int
}

func (f *memFile) Write(p []byte) (int, error) {
	if end := f.pos + len(p); end > len(f.data) {
		f.data = append(f.data, make([]byte, end-len(f.data))...)
	}
	n := copy(f.data[f.pos:], p)
	f.pos += n
	return n, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(f.pos) + offset
	case io.SeekEnd:
		pos = int64(len(f.data)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if pos < 0 {
		return 0, errors.New("negative position")
	}
	f.pos = int(pos)
	return pos, nil
}

// Bytes returns the content of the file.
func (f *memFile) Bytes() []byte {
	return f.data
}
