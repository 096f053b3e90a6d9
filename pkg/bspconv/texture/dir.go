package texture

import (
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
)

// DirProvider looks textures up as loose image files below Dirs.
type DirProvider struct {
	Dirs []string
}

func (p DirProvider) Resolve(ref scene.TextureRef) (image.Image, error) {
	for _, dir := range p.Dirs {
		for _, name := range Candidates(ref.Name) {
			img, err := decodeFile(filepath.Join(dir, filepath.FromSlash(name)))
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, err
			}
			return img, nil
		}
	}
	return nil, errors.Wrapf(scene.ErrMissingResource, "texture %q not found in %v", ref.Name, p.Dirs)
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if stat.IsDir() {
		return nil, os.ErrNotExist
	}

	// undecodable files are treated like absent ones
	img, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(scene.ErrMissingResource, "texture file %q: %v", path, err)
	}
	return img, nil
}
