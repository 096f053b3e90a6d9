package hlbsp

import (
	"github.com/saiko-tech/bsp-converter/pkg/bspconv/lightmap"
)

// faceStyles returns the styles of f up to the first NoStyle.
func faceStyles(f *face) []uint8 {
	for i, s := range f.styles {
		if s == NoStyle {
			return f.styles[:i]
		}
	}
	return f.styles[:]
}

// writeStyles saves the light style layers selected by the config. owners
// maps each packed rect to its face.
func (l *loader) writeStyles(owners []int, rects []lightmap.Rect) error {
	faces := make([]lightmap.StyleFace, len(owners))
	for ri, fi := range owners {
		f := &l.faces[fi]
		faces[ri] = lightmap.StyleFace{
			Rect:   rects[ri],
			Styles: faceStyles(f),
			Offset: f.lightOfs,
			Stride: rects[ri].W * rects[ri].H * 3,
		}
	}

	w := &lightmap.StyleWriter{
		Name:     l.name,
		Width:    l.atlasSize[0],
		Height:   l.atlasSize[1],
		Encoding: lightmap.RGB8,
		Lighting: l.lighting,
		Faces:    faces,
		Sink:     l.opts.Images,
		Log:      l.log,
	}
	names, err := w.Write(l.cfg.LightStyles, l.cfg.LightStyle)
	l.m.LightStyleImages = append(l.m.LightStyleImages, names...)
	return err
}
