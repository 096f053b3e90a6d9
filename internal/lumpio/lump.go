package lumpio

import (
	"github.com/pkg/errors"
)

// Lump is an offset/length addressed section of a BSP file.
type Lump struct {
	Offset int
	Length int
	// Version and UncompressedSize are only present in Source lump directories.
	Version          int
	UncompressedSize int
}

// Slice returns the lump contents, failing when the descriptor points outside data.
func (l Lump) Slice(data []byte) ([]byte, error) {
	if l.Length == 0 {
		return nil, nil
	}
	if l.Offset < 0 || l.Length < 0 || l.Offset+l.Length > len(data) {
		return nil, errors.Wrapf(ErrTruncated, "lump at %d+%d exceeds file size %d", l.Offset, l.Length, len(data))
	}
	return data[l.Offset : l.Offset+l.Length], nil
}

// Records decodes every fixed-size record of a lump with decode. Trailing bytes
// that do not form a whole record are ignored.
func Records[T any](lump []byte, size int, decode func(r *Reader) T) ([]T, error) {
	if size <= 0 {
		return nil, errors.Errorf("invalid record size %d", size)
	}
	n := len(lump) / size
	out := make([]T, n)
	r := NewReader(lump)
	for i := 0; i < n; i++ {
		r.Seek(i * size)
		out[i] = decode(r)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
