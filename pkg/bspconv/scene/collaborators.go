package scene

import (
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// TextureRef identifies a texture to decode. Data carries the embedded
// texture record when the level stores one (HL miptex), Archives the external
// archives named by the level.
type TextureRef struct {
	Name     string
	Data     []byte
	Archives []string
}

// TextureProvider decodes texture pixels. Implementations return an error
// wrapping ErrMissingResource when ref cannot be found.
type TextureProvider interface {
	Resolve(ref TextureRef) (image.Image, error)
}

// ImageSink persists the lightmap images produced during a load under their
// conventional file names.
type ImageSink interface {
	Save(name string, img image.Image) error
}

// SceneWriter serializes a finished Map.
type SceneWriter interface {
	Export(m *Map, levelName string) error
}

// Options carries the collaborators of one load.
type Options struct {
	Logger   *zap.Logger
	Textures TextureProvider
	Images   ImageSink
}

// WithDefaults replaces a nil logger with a no-op one and a nil image sink with
// one that discards.
func (o Options) WithDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Images == nil {
		o.Images = discardSink{}
	}
	return o
}

type discardSink struct{}

func (discardSink) Save(string, image.Image) error { return nil }

const (
	PlaceholderName = "default"
	PlaceholderSize = 16
)

// Placeholder returns the texture substituted for missing or absent texture data.
func Placeholder() Texture {
	img := image.NewGray(image.Rect(0, 0, PlaceholderSize, PlaceholderSize))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	return Texture{
		Name:        PlaceholderName,
		Width:       PlaceholderSize,
		Height:      PlaceholderSize,
		Image:       img,
		Placeholder: true,
	}
}

// LoadTexture resolves ref through the configured provider. Without a
// provider the texture keeps its name and size but no pixels. A missing
// resource is logged and replaced by the placeholder; other errors are returned.
func LoadTexture(opts Options, ref TextureRef, width, height int) (Texture, error) {
	tex := Texture{Name: ref.Name, Width: width, Height: height}
	if opts.Textures == nil {
		return tex, nil
	}

	img, err := opts.Textures.Resolve(ref)
	if errors.Is(err, ErrMissingResource) {
		opts.Logger.Warn("texture not found, using placeholder", zap.String("texture", ref.Name), zap.Error(err))
		return Placeholder(), nil
	}
	if err != nil {
		return Texture{}, errors.Wrapf(err, "failed to resolve texture %q", ref.Name)
	}

	tex.Image = img
	return tex, nil
}
