// Package bspconv converts Half-Life, Xash and Source engine BSP levels into
// triangulated meshes batched by material plus packed lightmap atlas images.
//
// The format is detected from the first word of the file and the matching
// parser in hlbsp or vbsp produces a scene.Map.
package bspconv

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/saiko-tech/bsp-converter/internal/lumpio"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/hlbsp"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/vbsp"
)

// formatOf maps the first two words of a file to its dialect.
func formatOf(head []byte) (scene.Format, error) {
	if len(head) < 4 {
		return scene.FormatUnknown, errors.Wrap(scene.ErrUnknownFormat, "file too short")
	}

	word := binary.LittleEndian.Uint32(head)
	switch word {
	case hlbsp.Version30:
		return scene.FormatHalfLife, nil
	case hlbsp.Version31:
		return scene.FormatExtendedHalfLife, nil
	case vbsp.Ident:
		if len(head) < 8 {
			return scene.FormatUnknown, errors.Wrap(scene.ErrUnknownFormat, "file too short")
		}
		v := int(int32(binary.LittleEndian.Uint32(head[4:])))
		if v < vbsp.MinVersion || v > vbsp.MaxVersion {
			return scene.FormatUnknown, errors.Wrapf(scene.ErrUnknownFormat, "unsupported vbsp version %d", v)
		}
		return scene.FormatSourceV19 + scene.Format(v-vbsp.MinVersion), nil
	}

	return scene.FormatUnknown, errors.Wrapf(scene.ErrUnknownFormat, "unknown identifier %#08x", word)
}

// DetectFormat reads the identifying words at the start of r. It does not
// read past them.
func DetectFormat(r io.ReaderAt) (scene.Format, error) {
	head := make([]byte, 8)
	n, err := r.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return scene.FormatUnknown, errors.Wrap(err, "failed to read bsp header")
	}
	return formatOf(head[:n])
}

// LoadBytes converts a level held in memory.
func LoadBytes(data []byte, name string, cfg scene.Config, opts scene.Options) (*scene.Map, error) {
	format, err := formatOf(data)
	if err != nil {
		return nil, err
	}

	// the parsers re-read the header themselves
	if format.IsSource() {
		return vbsp.Load(data, name, cfg, opts)
	}
	return hlbsp.Load(data, name, cfg, opts)
}

// Load reads a whole level from r and converts it.
func Load(r io.Reader, name string, cfg scene.Config, opts scene.Options) (*scene.Map, error) {
	data, err := lumpio.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return LoadBytes(data, name, cfg, opts)
}

// LevelName returns the file name of path without directory and extension,
// used to name the lightmap images of a level.
func LevelName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadFile converts the level at path, named after the file.
func LoadFile(path string, cfg scene.Config, opts scene.Options) (*scene.Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", path)
	}
	defer f.Close()

	m, err := Load(f, LevelName(path), cfg, opts)
	return m, errors.Wrapf(err, "failed to load %q", path)
}
