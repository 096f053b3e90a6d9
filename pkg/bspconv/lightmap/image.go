package lightmap

import (
	"image"

	"github.com/chewxy/math32"
)

// Image is a tightly packed 24-bit RGB buffer.
type Image struct {
	Width  int
	Height int
	Pix    []byte
}

// NewImage returns a black width*height image.
func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height, Pix: make([]byte, width*height*3)}
}

// Blit copies r.W*r.H RGB texels from src into r.
func (img *Image) Blit(r Rect, src []byte) {
	rowLen := r.W * 3
	for y := 0; y < r.H; y++ {
		dst := ((r.Y+y)*img.Width + r.X) * 3
		copy(img.Pix[dst:dst+rowLen], src[y*rowLen:(y+1)*rowLen])
	}
}

// AddSaturate adds r.W*r.H RGB texels from src into r, clamping each channel at 255.
func (img *Image) AddSaturate(r Rect, src []byte) {
	rowLen := r.W * 3
	for y := 0; y < r.H; y++ {
		dst := ((r.Y+y)*img.Width + r.X) * 3
		row := img.Pix[dst : dst+rowLen]
		for i, c := range src[y*rowLen : (y+1)*rowLen] {
			sum := int(row[i]) + int(c)
			if sum > 255 {
				sum = 255
			}
			row[i] = byte(sum)
		}
	}
}

// NRGBA converts the buffer to an opaque image for encoding.
func (img *Image) NRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	for i, j := 0, 0; i < len(img.Pix); i, j = i+3, j+4 {
		out.Pix[j] = img.Pix[i]
		out.Pix[j+1] = img.Pix[i+1]
		out.Pix[j+2] = img.Pix[i+2]
		out.Pix[j+3] = 0xff
	}
	return out
}

const (
	gamma    = 1 / 2.2
	exposure = 0.5
)

// DecodeRGBE converts 4-byte RGBE texels from src into 3-byte RGB texels in dst.
// Channels are gamma corrected, scaled by a fixed exposure and normalized by
// the brightest channel when it exceeds 1.
func DecodeRGBE(dst, src []byte) {
	for i, j := 0, 0; i+3 < len(src) && j+2 < len(dst); i, j = i+4, j+3 {
		scale := math32.Pow(2, float32(int8(src[i+3])))

		var c [3]float32
		brightest := float32(0)
		for k := 0; k < 3; k++ {
			c[k] = math32.Pow(float32(src[i+k])*scale/255, gamma) * exposure
			brightest = math32.Max(brightest, c[k])
		}

		if brightest > 1 {
			for k := range c {
				c[k] /= brightest
			}
		}

		for k := 0; k < 3; k++ {
			dst[j+k] = byte(c[k]*255 + 0.5)
		}
	}
}
