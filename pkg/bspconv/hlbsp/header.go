package hlbsp

import (
	"github.com/pkg/errors"

	"github.com/saiko-tech/bsp-converter/internal/lumpio"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
)

// Versions of the primary header.
const (
	Version30 = 30
	// Version31 adds two clipnode lumps after the lump directory.
	Version31 = 31
)

// Lump indices of the primary directory.
const (
	LumpEntities = iota
	LumpPlanes
	LumpTextures
	LumpVertexes
	LumpVisibility
	LumpNodes
	LumpTexinfo
	LumpFaces
	LumpLighting
	LumpClipnodes
	LumpLeafs
	LumpMarkSurfaces
	LumpEdges
	LumpSurfEdges
	LumpModels

	numLumps
)

// Lump indices of the extra header.
const (
	ExtraLumpLightVecs = iota
	ExtraLumpFaceInfo

	numExtraLumps = 12
)

const (
	// ExtraMagic is "XASH" read as a little-endian word.
	ExtraMagic   = 'X' | 'A'<<8 | 'S'<<16 | 'H'<<24
	ExtraVersion = 4

	sampleSize30 = 16
	sampleSize31 = 8
)

// Header is the decoded lump directory.
type Header struct {
	Version int
	Lumps   [numLumps]lumpio.Lump
	// Extra is set when the extended header follows the primary directory.
	Extra      bool
	ExtraLumps [numExtraLumps]lumpio.Lump
}

// SampleSize is the default world-unit step between lightmap samples.
func (h *Header) SampleSize() int {
	if h.Version == Version31 {
		return sampleSize31
	}
	return sampleSize30
}

// Format reports the dialect of h.
func (h *Header) Format() scene.Format {
	if h.Version == Version31 {
		return scene.FormatExtendedHalfLife
	}
	return scene.FormatHalfLife
}

func readLump(r *lumpio.Reader) lumpio.Lump {
	return lumpio.Lump{Offset: int(r.Int32()), Length: int(r.Int32())}
}

// ParseHeader decodes the lump directory at the start of data.
func ParseHeader(data []byte) (*Header, error) {
	r := lumpio.NewReader(data)
	h := &Header{Version: int(r.Int32())}
	if r.Err() != nil {
		return nil, errors.Wrap(scene.ErrUnknownFormat, "file too short")
	}

	switch h.Version {
	case Version30, Version31:
	default:
		return nil, errors.Wrapf(scene.ErrUnknownFormat, "unsupported bsp version %d", h.Version)
	}

	for i := range h.Lumps {
		h.Lumps[i] = readLump(r)
	}
	if err := r.Err(); err != nil {
		return nil, errors.Wrapf(scene.ErrMalformedGeometry, "lump directory: %v", err)
	}

	if h.Version == Version31 {
		r.Skip(2 * 8)
	}

	// the extended header is optional, a short file simply has none
	magic, version := r.Uint32(), r.Int32()
	if r.Err() != nil || magic != ExtraMagic || version != ExtraVersion {
		return h, nil
	}

	var extra [numExtraLumps]lumpio.Lump
	for i := range extra {
		extra[i] = readLump(r)
	}
	if r.Err() == nil {
		h.Extra = true
		h.ExtraLumps = extra
	}

	return h, nil
}
