package hlbsp

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/saiko-tech/bsp-converter/internal/lumpio"
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
)

// miptex is the header of one texture in the textures lump.
type miptex struct {
	name     string
	width    int
	height   int
	external bool
	data     []byte
}

// maxTextureSize bounds miptex dimensions; real textures stay far below it.
const maxTextureSize = 1 << 16

// embeddedSize is the header plus four mip levels, the palette size and a 256 color palette.
func embeddedSize(width, height int) int {
	return mipHeaderSize + (width*height*85)>>6 + 2 + 256*3
}

func readMiptex(lump []byte, offset int) (miptex, error) {
	r := lumpio.NewReader(lump)
	r.Seek(offset)

	var mt miptex
	mt.name = r.CString(16)
	mt.width = int(r.Uint32())
	mt.height = int(r.Uint32())
	firstMip := r.Uint32()
	if err := r.Err(); err != nil {
		return mt, err
	}
	if mt.width <= 0 || mt.height <= 0 || mt.width > maxTextureSize || mt.height > maxTextureSize {
		return mt, errors.Errorf("texture %q has size %dx%d", mt.name, mt.width, mt.height)
	}

	// a zero offset means the pixels live in a WAD
	mt.external = firstMip == 0
	if !mt.external {
		end := min(offset+embeddedSize(mt.width, mt.height), len(lump))
		if end < offset {
			return mt, errors.Errorf("texture %q data outside the lump", mt.name)
		}
		mt.data = lump[offset:end]
	}
	return mt, nil
}

// loadTextures decodes the textures lump into index-aligned texture and
// material slots. Texture sizes always come from the lump so that UVs can be
// normalized even when the pixels are not resolved.
func (l *loader) loadTextures(lump []byte) error {
	if len(lump) == 0 {
		return nil
	}

	r := lumpio.NewReader(lump)
	count := int(r.Int32())
	if r.Err() != nil || count < 0 || count > len(lump)/4 {
		return errors.Wrapf(scene.ErrMalformedGeometry, "textures lump: bad texture count %d", count)
	}
	offsets := make([]int, count)
	for i := range offsets {
		offsets[i] = int(r.Int32())
	}
	if err := r.Err(); err != nil {
		return errors.Wrapf(scene.ErrMalformedGeometry, "textures lump: offsets: %v", err)
	}

	l.m.Textures = make([]scene.Texture, count)
	l.m.Materials = make([]scene.Material, count)
	l.texSizes = make([][2]int, count)

	for i, off := range offsets {
		mt, tex, err := l.loadTexture(i, lump, off)
		if err != nil {
			return err
		}

		l.texSizes[i] = [2]int{mt.width, mt.height}
		l.m.Textures[i] = tex
		l.m.Materials[i] = scene.Material{
			Name:      mt.name,
			Texture:   i,
			AlphaTest: strings.HasPrefix(mt.name, "{"),
		}
	}

	l.log.Debug("loaded textures", zap.Int("count", count))
	return nil
}

func (l *loader) loadTexture(i int, lump []byte, off int) (miptex, scene.Texture, error) {
	if off == -1 {
		l.log.Warn("texture has no data, using placeholder", zap.Int("texture", i))
		ph := scene.Placeholder()
		return miptex{name: ph.Name, width: ph.Width, height: ph.Height}, ph, nil
	}

	mt, err := readMiptex(lump, off)
	if err != nil {
		return mt, scene.Texture{}, errors.Wrapf(scene.ErrMalformedGeometry, "textures lump: texture %d at %d: %v", i, off, err)
	}

	if mt.external && !l.cfg.AllTextures {
		return mt, scene.Texture{Name: mt.name, Width: mt.width, Height: mt.height}, nil
	}

	ref := scene.TextureRef{Name: mt.name, Data: mt.data, Archives: l.m.WadNames}
	tex, err := scene.LoadTexture(l.opts, ref, mt.width, mt.height)
	return mt, tex, err
}
