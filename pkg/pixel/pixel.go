// Package pixel defines the canonical decoded-image buffer shared by every codec.
//
// An Image holds Width*Height packed ARGB words (alpha in the high byte), row-major and
// top-to-bottom. Sources stored bottom-up are normalised with an explicit FlipVertical;
// nothing in this package reorders rows implicitly.
package pixel

import (
	"image"
	"image/color"
)

const (
	// MaxDimension is the largest accepted width or height.
	MaxDimension = 1 << 16
	// MaxPixels caps Width*Height before any buffer is allocated.
	MaxPixels = 1 << 28
)

// Image is the canonical pixel buffer.
type Image struct {
	Width  int
	Height int
	Pix    []uint32 // ARGB, len == Width*Height

	Props Properties

	// Next links multi-image containers into a ring. See LinkFrames.
	Next *Image
	// ManualTransition tells consumers not to advance to Next on their own.
	ManualTransition bool
}

// New allocates a zeroed image after validating the dimensions.
func New(width, height int) (*Image, error) {
	if err := CheckDimensions(width, height); err != nil {
		return nil, err
	}
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]uint32, width*height),
	}, nil
}

// CheckDimensions rejects non-positive, oversized or overflowing dimensions.
func CheckDimensions(width, height int) error {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return &InvalidDimensionError{Width: width, Height: height}
	}
	if uint64(width)*uint64(height) > MaxPixels {
		return &InvalidDimensionError{Width: width, Height: height}
	}
	return nil
}

// FromImage converts any image.Image into a canonical buffer.
func FromImage(src image.Image) (*Image, error) {
	if m, ok := src.(*Image); ok {
		return m.Clone(), nil
	}
	b := src.Bounds()
	m, err := New(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	if nrgba, ok := src.(*image.NRGBA); ok {
		for y := 0; y < m.Height; y++ {
			row := nrgba.Pix[(y)*nrgba.Stride:]
			for x := 0; x < m.Width; x++ {
				p := row[x*4 : x*4+4]
				m.Pix[y*m.Width+x] = ARGB(p[3], p[0], p[1], p[2])
			}
		}
		return m, nil
	}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			m.Pix[y*m.Width+x] = ARGB(c.A, c.R, c.G, c.B)
		}
	}
	return m, nil
}

// Clone returns a deep copy of the pixels and properties. Frame links are kept as-is.
func (m *Image) Clone() *Image {
	dup := *m
	dup.Pix = append([]uint32(nil), m.Pix...)
	dup.Props = m.Props.Clone()
	return &dup
}

// ColorModel implements image.Image.
func (m *Image) ColorModel() color.Model { return color.NRGBAModel }

// Bounds implements image.Image.
func (m *Image) Bounds() image.Rectangle { return image.Rect(0, 0, m.Width, m.Height) }

// At implements image.Image.
func (m *Image) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return color.NRGBA{}
	}
	a, r, g, b := Split(m.Pix[y*m.Width+x])
	return color.NRGBA{R: r, G: g, B: b, A: a}
}

// ToNRGBA copies the buffer into a standard library image.
func (m *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(m.Bounds())
	for i, p := range m.Pix {
		a, r, g, b := Split(p)
		out.Pix[i*4+0] = r
		out.Pix[i*4+1] = g
		out.Pix[i*4+2] = b
		out.Pix[i*4+3] = a
	}
	return out
}

// ARGB packs four channels into a canonical pixel.
func ARGB(a, r, g, b uint8) uint32 {
	return uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// Split unpacks a canonical pixel.
func Split(p uint32) (a, r, g, b uint8) {
	return uint8(p >> 24), uint8(p >> 16), uint8(p >> 8), uint8(p)
}

// LinkFrames chains frames through Next. With manual unset the last frame points back to
// the first, forming a ring; with manual set the chain ends at the last frame and every
// frame carries ManualTransition. A single frame is left unlinked.
func LinkFrames(frames []*Image, manual bool) *Image {
	if len(frames) == 0 {
		return nil
	}
	if len(frames) == 1 {
		frames[0].Next = nil
		frames[0].ManualTransition = manual
		return frames[0]
	}
	for i, f := range frames {
		f.ManualTransition = manual
		switch {
		case i+1 < len(frames):
			f.Next = frames[i+1]
		case manual:
			f.Next = nil
		default:
			f.Next = frames[0]
		}
	}
	return frames[0]
}

// Frames walks the chain starting at m and returns each frame once.
func Frames(m *Image) []*Image {
	var out []*Image
	seen := make(map[*Image]bool)
	for f := m; f != nil && !seen[f]; f = f.Next {
		seen[f] = true
		out = append(out, f)
	}
	return out
}
