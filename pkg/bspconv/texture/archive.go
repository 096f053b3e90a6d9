package texture

import (
	"archive/zip"
	"bytes"
	"image"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
)

// ArchiveProvider looks textures up inside a zip archive. Names match
// case-insensitively.
type ArchiveProvider struct {
	zr     *zip.Reader
	index  map[string]*zip.File
	closer io.Closer
}

// NewArchiveProvider indexes the zip archive held in r.
func NewArchiveProvider(r io.ReaderAt, size int64) (*ArchiveProvider, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open zip archive")
	}

	p := &ArchiveProvider{zr: zr, index: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		p.index[strings.ToLower(f.Name)] = f
	}
	return p, nil
}

// NewMemoryArchive indexes an archive held in memory, like the Source pakfile lump.
func NewMemoryArchive(data []byte) (*ArchiveProvider, error) {
	return NewArchiveProvider(bytes.NewReader(data), int64(len(data)))
}

// OpenArchive indexes the archive at path. Close releases the file.
func OpenArchive(path string) (*ArchiveProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open archive %q", path)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to stat archive %q", path)
	}

	p, err := NewArchiveProvider(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "archive %q", path)
	}
	p.closer = f
	return p, nil
}

// Close releases the underlying file of an archive opened with OpenArchive.
func (p *ArchiveProvider) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// Len returns the number of entries in the archive.
func (p *ArchiveProvider) Len() int {
	return len(p.zr.File)
}

func (p *ArchiveProvider) open(name string) (io.ReadCloser, bool) {
	f, ok := p.index[strings.ToLower(name)]
	if !ok || f.FileInfo().IsDir() || f.UncompressedSize64 == 0 {
		return nil, false
	}
	rc, err := f.Open()
	if err != nil {
		return nil, false
	}
	return rc, true
}

func (p *ArchiveProvider) Resolve(ref scene.TextureRef) (image.Image, error) {
	for _, name := range Candidates(ref.Name) {
		rc, ok := p.open(name)
		if !ok {
			continue
		}
		img, err := Decode(rc)
		rc.Close()
		if err != nil {
			return nil, errors.Wrapf(scene.ErrMissingResource, "archive entry %q: %v", name, err)
		}
		return img, nil
	}
	return nil, errors.Wrapf(scene.ErrMissingResource, "texture %q not in archive", ref.Name)
}
