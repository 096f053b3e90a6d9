package vbsp

import (
	"github.com/pkg/errors"

	"github.com/saiko-tech/bsp-converter/internal/lumpio"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
)

// Ident is "VBSP" read as a little-endian word.
const Ident = 'V' | 'B'<<8 | 'S'<<16 | 'P'<<24

const (
	MinVersion = 19
	MaxVersion = 21
)

// Lump indices interpreted by the converter.
const (
	LumpEntities           = 0
	LumpTexData            = 2
	LumpVertexes           = 3
	LumpNodes              = 5
	LumpTexinfo            = 6
	LumpFaces              = 7
	LumpLighting           = 8
	LumpLeafs              = 10
	LumpEdges              = 12
	LumpSurfEdges          = 13
	LumpModels             = 14
	LumpLeafFaces          = 16
	LumpDispInfo           = 26
	LumpVertNormals        = 30
	LumpVertNormalIndices  = 31
	LumpDispVerts          = 33
	LumpPakfile            = 40
	LumpTexDataStringData  = 43
	LumpTexDataStringTable = 44
	LumpLightingHDR        = 53
	LumpFacesHDR           = 58

	NumLumps = 64
)

// Header is the decoded VBSP lump directory.
type Header struct {
	Version  int
	Lumps    [NumLumps]lumpio.Lump
	Revision int
}

// Format reports the dialect of h.
func (h *Header) Format() scene.Format {
	return scene.FormatSourceV19 + scene.Format(h.Version-MinVersion)
}

// ParseHeader decodes the identifier, version and lump directory at the start of data.
func ParseHeader(data []byte) (*Header, error) {
	r := lumpio.NewReader(data)
	ident, version := r.Uint32(), int(r.Int32())
	if r.Err() != nil || ident != Ident {
		return nil, errors.Wrap(scene.ErrUnknownFormat, "missing VBSP identifier")
	}
	if version < MinVersion || version > MaxVersion {
		return nil, errors.Wrapf(scene.ErrUnknownFormat, "unsupported vbsp version %d", version)
	}

	h := &Header{Version: version}
	for i := range h.Lumps {
		h.Lumps[i] = lumpio.Lump{
			Offset:           int(r.Int32()),
			Length:           int(r.Int32()),
			Version:          int(r.Int32()),
			UncompressedSize: int(r.Int32()),
		}
	}
	h.Revision = int(r.Int32())
	if err := r.Err(); err != nil {
		return nil, errors.Wrapf(scene.ErrMalformedGeometry, "lump directory: %v", err)
	}
	return h, nil
}
