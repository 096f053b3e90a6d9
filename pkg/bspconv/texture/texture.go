// Package texture resolves texture pixels for the BSP parsers from loose
// image directories and zip archives such as the Source pakfile.
package texture

import (
	"image"
	_ "image/jpeg" // register decoders
	_ "image/png"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
)

// Extensions are tried in order after the bare texture name.
var Extensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".webp"}

// Candidates returns the relative paths tried for a texture name, first as
// given and then below materials/.
func Candidates(name string) []string {
	name = strings.TrimPrefix(path.Clean(strings.ReplaceAll(name, `\`, "/")), "/")

	var out []string
	for _, base := range []string{name, path.Join("materials", name)} {
		out = append(out, base)
		for _, ext := range Extensions {
			out = append(out, base+ext)
		}
	}
	return out
}

// Decode decodes any registered image format.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	return img, nil
}

// Chain tries each provider in order. A provider reporting a missing
// resource passes the request on; any other error stops the chain.
type Chain []scene.TextureProvider

func (c Chain) Resolve(ref scene.TextureRef) (image.Image, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		img, err := p.Resolve(ref)
		if errors.Is(err, scene.ErrMissingResource) {
			continue
		}
		return img, err
	}
	return nil, errors.Wrapf(scene.ErrMissingResource, "texture %q", ref.Name)
}
