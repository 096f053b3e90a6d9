package lightmap

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// DirSink writes images as PNG files into Dir.
type DirSink struct {
	Dir string
}

func (s DirSink) Save(name string, img image.Image) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create lightmap directory %q", s.Dir)
	}

	path := filepath.Join(s.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to encode %q", path)
	}

	return errors.Wrapf(f.Close(), "failed to close %q", path)
}

// MemorySink keeps saved images in memory.
type MemorySink struct {
	mu     sync.Mutex
	images map[string]image.Image
}

func (s *MemorySink) Save(name string, img image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.images == nil {
		s.images = make(map[string]image.Image)
	}
	s.images[name] = img
	return nil
}

// Image returns a saved image or nil.
func (s *MemorySink) Image(name string) image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.images[name]
}

// Names returns the saved names in sorted order.
func (s *MemorySink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.images))
	for name := range s.images {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
