package lightmap

import (
	"slices"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
)

// StyleFace locates the light samples of one packed face.
type StyleFace struct {
	Rect Rect
	// Styles lists the face's styles up to the first unused slot.
	Styles []uint8
	// Offset is the byte offset of the first style block in the lighting lump.
	Offset int
	// Stride is the byte distance between consecutive style blocks.
	Stride int
}

// StyleWriter renders the animated light style layers of a level into images
// laid out like its primary atlas page.
type StyleWriter struct {
	Name     string
	Width    int
	Height   int
	Encoding Encoding
	Lighting []byte
	Faces    []StyleFace
	Sink     scene.ImageSink
	Log      *zap.Logger
}

// Present returns the distinct non-zero styles used by the faces, ascending.
func (w *StyleWriter) Present() []int {
	var out []int
	for _, f := range w.Faces {
		for _, s := range f.Styles {
			if s != 0 && !slices.Contains(out, int(s)) {
				out = append(out, int(s))
			}
		}
	}
	slices.Sort(out)
	return out
}

// Composite sums the blocks of every style accepted by want. Channels
// saturate at 255.
func (w *StyleWriter) Composite(want func(style int) bool) *Image {
	img := NewImage(w.Width, w.Height)

	var rgb []byte
	for _, f := range w.Faces {
		n := f.Rect.W * f.Rect.H
		block := n * w.Encoding.BytesPerTexel()

		for i, s := range f.Styles {
			if !want(int(s)) {
				continue
			}
			off := f.Offset + i*f.Stride
			if off < 0 || off+block > len(w.Lighting) {
				break
			}

			src := w.Lighting[off : off+block]
			if w.Encoding == RGBE {
				rgb = slices.Grow(rgb[:0], n*3)[:n*3]
				DecodeRGBE(rgb, src)
				src = rgb
			}
			img.AddSaturate(f.Rect, src)
		}
	}
	return img
}

// Write saves the layers selected by mode and returns their names. style is
// only used by StylesSingle.
func (w *StyleWriter) Write(mode scene.StyleMode, style int) ([]string, error) {
	var names []string
	save := func(name string, img *Image) error {
		if err := w.Sink.Save(name, img.NRGBA()); err != nil {
			return errors.Wrapf(err, "failed to save %s", name)
		}
		names = append(names, name)
		return nil
	}

	present := w.Present()
	switch mode {
	case scene.StylesSingle:
		if !slices.Contains(present, style) {
			w.Log.Info("light style not used by any face", zap.Int("style", style))
			return nil, nil
		}
		err := save(StyleName(w.Name, style), w.Composite(func(s int) bool { return s == style }))
		return names, err

	case scene.StylesEach:
		for _, k := range present {
			k := k
			if err := save(StyleName(w.Name, k), w.Composite(func(s int) bool { return s == k })); err != nil {
				return names, err
			}
		}

	case scene.StylesMerged:
		if len(present) == 0 {
			w.Log.Info("no light styles found")
			return nil, nil
		}
		err := save(MergedName(w.Name), w.Composite(func(int) bool { return true }))
		return names, err
	}

	return names, nil
}
