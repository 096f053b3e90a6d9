// Package lightmap packs per-face lightmaps into atlas pages.
//
// The allocator is a skyline: one height per atlas column. A block is placed at
// the column span whose tallest column is lowest.
package lightmap

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/saiko-tech/bsp-converter/pkg/bspconv/scene"
)

// Encoding is the layout of the light samples handed to Write.
type Encoding int

const (
	// RGB8 samples are 3 bytes per texel, copied verbatim.
	RGB8 Encoding = iota
	// RGBE samples are 4 bytes per texel with a shared signed exponent.
	RGBE
)

// BytesPerTexel returns the sample stride of e.
func (e Encoding) BytesPerTexel() int {
	if e == RGBE {
		return 4
	}
	return 3
}

// Rect is a lightmap block. W and H are set by the caller, X and Y by Pack.
type Rect struct {
	X, Y int
	W, H int
}

// Empty reports whether r has no texels.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Atlas is one lightmap page being filled. It is reused for subsequent
// pages after Finalize.
type Atlas struct {
	Width  int
	Height int

	maxSize  int
	encoding Encoding
	columns  []int
	packed   bool
	page     int

	light *Image
	dirs  *Image
}

// NewAtlas returns an empty atlas growing up to maxSize in each dimension.
// With deluxe set, a second buffer receives light direction samples.
func NewAtlas(maxSize int, encoding Encoding, deluxe bool) *Atlas {
	a := &Atlas{maxSize: maxSize, encoding: encoding}
	if deluxe {
		a.dirs = &Image{}
	}
	return a
}

func (a *Atlas) reset(width, height int) {
	a.Width, a.Height = width, height
	a.columns = make([]int, width)
}

// alloc reserves a w*h block at the lowest available skyline position.
func (a *Atlas) alloc(w, h int) (x, y int, ok bool) {
	best := a.Height
	x = -1
	for i := 0; i <= a.Width-w; i++ {
		tallest := 0
		j := 0
		for ; j < w; j++ {
			if a.columns[i+j] >= best {
				break
			}
			if a.columns[i+j] > tallest {
				tallest = a.columns[i+j]
			}
		}
		if j == w {
			x = i
			best = tallest
		}
	}

	if x < 0 || best+h > a.Height {
		return 0, 0, false
	}
	for i := 0; i < w; i++ {
		a.columns[x+i] = best + h
	}
	return x, best, true
}

// grow doubles the smaller dimension, clamped to the maximum size.
func (a *Atlas) grow() bool {
	switch {
	case a.Height > a.Width && a.Width < a.maxSize:
		a.Width = min(a.Width*2, a.maxSize)
	case a.Height < a.maxSize:
		a.Height = min(a.Height*2, a.maxSize)
	case a.Width < a.maxSize:
		a.Width = min(a.Width*2, a.maxSize)
	default:
		return false
	}
	return true
}

// Pack places every non-empty rect, growing the atlas from 32x32 until all of
// them fit. It fails with scene.ErrAtlasOverflow when the maximum size is
// reached first; the atlas cannot be written to in that case.
func (a *Atlas) Pack(rects []Rect) error {
	a.packed = false
	size := min(scene.MinLightmapSize, a.maxSize)
	a.reset(size, size)

	for {
		if a.tryPack(rects) {
			break
		}
		if !a.grow() {
			return errors.Wrapf(scene.ErrAtlasOverflow, "%d rectangles do not fit %dx%d", countNonEmpty(rects), a.maxSize, a.maxSize)
		}
		a.reset(a.Width, a.Height)
	}

	a.light = NewImage(a.Width, a.Height)
	if a.dirs != nil {
		a.dirs = NewImage(a.Width, a.Height)
	}
	a.packed = true
	return nil
}

func (a *Atlas) tryPack(rects []Rect) bool {
	for i := range rects {
		r := &rects[i]
		if r.Empty() {
			continue
		}
		x, y, ok := a.alloc(r.W, r.H)
		if !ok {
			return false
		}
		r.X, r.Y = x, y
	}
	return true
}

func countNonEmpty(rects []Rect) int {
	n := 0
	for _, r := range rects {
		if !r.Empty() {
			n++
		}
	}
	return n
}

// Write stores the samples of one face in its packed block. dirs holds RGB
// direction samples and is ignored unless the atlas was created with deluxe set.
func (a *Atlas) Write(r Rect, samples []byte, dirs []byte) error {
	if !a.packed {
		return errors.New("write to unpacked atlas")
	}
	if r.X < 0 || r.Y < 0 || r.X+r.W > a.Width || r.Y+r.H > a.Height {
		return errors.Errorf("rect %+v outside %dx%d atlas", r, a.Width, a.Height)
	}

	n := r.W * r.H
	if len(samples) < n*a.encoding.BytesPerTexel() {
		return errors.Errorf("need %d light samples, got %d bytes", n, len(samples))
	}

	if a.encoding == RGBE {
		rgb := make([]byte, n*3)
		DecodeRGBE(rgb, samples[:n*4])
		samples = rgb
	}
	a.light.Blit(r, samples)

	if a.dirs != nil && len(dirs) >= n*3 {
		a.dirs.Blit(r, dirs)
	}
	return nil
}

// UV converts a position in texel units to normalized atlas coordinates.
func (a *Atlas) UV(s, t float32) mgl32.Vec2 {
	return mgl32.Vec2{s / float32(a.Width), t / float32(a.Height)}
}

// TexelCenter returns the normalized coordinates of the center of r's first texel.
func (a *Atlas) TexelCenter(r Rect) mgl32.Vec2 {
	return a.UV(float32(r.X)+0.5, float32(r.Y)+0.5)
}

// Pages lists the file names written by Finalize.
type Pages struct {
	Lightmap  string
	Deluxemap string
}

// PageName returns <name>_lightmap<page>.png.
func PageName(name string, page int) string {
	return fmt.Sprintf("%s_lightmap%d.png", name, page)
}

// DeluxePageName returns <name>_deluxemap<page>.png.
func DeluxePageName(name string, page int) string {
	return fmt.Sprintf("%s_deluxemap%d.png", name, page)
}

// StyleName returns <name>_style<style>_lightmap.png.
func StyleName(name string, style int) string {
	return fmt.Sprintf("%s_style%d_lightmap.png", name, style)
}

// MergedName returns <name>_merged_lightmap.png.
func MergedName(name string) string {
	return name + "_merged_lightmap.png"
}

// Finalize saves the page through sink and starts the next one.
func (a *Atlas) Finalize(name string, sink scene.ImageSink) (Pages, error) {
	if !a.packed {
		return Pages{}, errors.New("finalize of unpacked atlas")
	}

	pages := Pages{Lightmap: PageName(name, a.page)}
	if err := sink.Save(pages.Lightmap, a.light.NRGBA()); err != nil {
		return Pages{}, errors.Wrapf(err, "failed to save %s", pages.Lightmap)
	}

	if a.dirs != nil {
		pages.Deluxemap = DeluxePageName(name, a.page)
		if err := sink.Save(pages.Deluxemap, a.dirs.NRGBA()); err != nil {
			return Pages{}, errors.Wrapf(err, "failed to save %s", pages.Deluxemap)
		}
		a.dirs = &Image{}
	}

	a.page++
	a.packed = false
	a.light = nil
	a.reset(0, 0)
	return pages, nil
}
