package pixel

import (
	"errors"
	"fmt"
	"image/color"
)

// ErrNoPalette is returned by a PaletteProvider that has nothing for a name.
var ErrNoPalette = errors.New("no palette")

// Palette is a colour table of 16 or 256 ARGB entries.
type Palette []uint32

// NewPalette validates the entry count.
func NewPalette(entries []uint32) (Palette, error) {
	if len(entries) != 16 && len(entries) != 256 {
		return nil, fmt.Errorf("palette must have 16 or 256 entries, got %d", len(entries))
	}
	return Palette(entries), nil
}

// Lookup returns entry i or a PaletteIndexOutOfRangeError.
func (p Palette) Lookup(i int) (uint32, error) {
	if i < 0 || i >= len(p) {
		return 0, &PaletteIndexOutOfRangeError{Index: i, Size: len(p)}
	}
	return p[i], nil
}

// Color converts the palette for use with image.Paletted.
func (p Palette) Color() color.Palette {
	out := make(color.Palette, len(p))
	for i, c := range p {
		a, r, g, b := Split(c)
		out[i] = color.NRGBA{R: r, G: g, B: b, A: a}
	}
	return out
}

// PaletteFromColor converts a standard library palette.
func PaletteFromColor(cp color.Palette) Palette {
	out := make(Palette, len(cp))
	for i, c := range cp {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		out[i] = ARGB(n.A, n.R, n.G, n.B)
	}
	return out
}

// ApplyPalette expands one index per pixel into a new image. Any index outside the palette
// fails the whole call.
func ApplyPalette(indices []byte, width, height int, p Palette) (*Image, error) {
	if err := CheckDimensions(width, height); err != nil {
		return nil, err
	}
	if len(indices) < width*height {
		return nil, &TruncatedDataError{Need: width * height, Have: len(indices)}
	}
	pix := make([]uint32, width*height)
	for i := range pix {
		c, err := p.Lookup(int(indices[i]))
		if err != nil {
			return nil, err
		}
		pix[i] = c
	}
	return &Image{Width: width, Height: height, Pix: pix}, nil
}

// PaletteProvider resolves shared palettes for paletted images that carry none. It is
// resolved once per container and passed into each decode call.
type PaletteProvider interface {
	Palette(name string) (Palette, error)
}

// PaletteFunc adapts a function to PaletteProvider.
type PaletteFunc func(name string) (Palette, error)

// Palette implements PaletteProvider.
func (f PaletteFunc) Palette(name string) (Palette, error) { return f(name) }

// FindSibling looks up another resource in the same container by name.
type FindSibling func(name string) ([]byte, bool)
