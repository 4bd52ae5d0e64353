// Package swizzle converts between console tiled memory layouts and linear row-major data.
//
// Every transform is a bijection over a buffer of exactly Width*Height*ElementSize bytes,
// so Unswizzle(Swizzle(b, d), d) returns b for any valid descriptor.
package swizzle

import (
	"fmt"
	"math/bits"

	"github.com/goopsie/pixcodec/pkg/pixel"
)

// Kind selects the tiling scheme.
type Kind int

const (
	// PS2 is the GS PSMT8 block layout, also used for 32-bit texels.
	PS2 Kind = iota
	// Morton is power-of-two Z-order, used for BC block grids on handheld and desktop consoles.
	Morton
	// PSP packs 16-byte by 8-row tiles.
	PSP
)

func (k Kind) String() string {
	switch k {
	case PS2:
		return "ps2"
	case Morton:
		return "morton"
	case PSP:
		return "psp"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of String.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{PS2, Morton, PSP} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown swizzle kind %q", s)
}

// Descriptor describes a swizzled surface. Width and Height count elements, not bytes. For
// block-compressed data an element is one block.
type Descriptor struct {
	Width       int
	Height      int
	ElementSize int
	Kind        Kind
}

// Size returns the number of bytes the surface occupies.
func (d Descriptor) Size() int {
	return d.Width * d.Height * d.ElementSize
}

// Validate checks the geometry the layout requires.
func (d Descriptor) Validate() error {
	return d.check(d.Size())
}

func (d Descriptor) check(got int) error {
	if d.Width <= 0 || d.Height <= 0 || d.ElementSize <= 0 {
		return &pixel.InvalidDimensionError{Width: d.Width, Height: d.Height}
	}
	var ok bool
	switch d.Kind {
	case PS2:
		ok = (d.ElementSize == 1 || d.ElementSize == 4) && d.Width%16 == 0 && d.Height%4 == 0
	case Morton:
		ok = isPow2(d.Width) && isPow2(d.Height)
	case PSP:
		ok = (d.Width*d.ElementSize)%16 == 0 && d.Height%8 == 0
	default:
		return fmt.Errorf("unknown swizzle kind %d", int(d.Kind))
	}
	if !ok || got != d.Size() {
		return &pixel.BoundsViolationError{Want: d.Size(), Got: got}
	}
	return nil
}

func isPow2(v int) bool { return v > 0 && v&(v-1) == 0 }

// Unswizzle returns data rearranged from the descriptor's tiled order into linear order.
func Unswizzle(data []byte, d Descriptor) ([]byte, error) {
	return remap(data, d, false)
}

// Swizzle returns linear data rearranged into the descriptor's tiled order.
func Swizzle(data []byte, d Descriptor) ([]byte, error) {
	return remap(data, d, true)
}

func remap(data []byte, d Descriptor, toTiled bool) ([]byte, error) {
	if err := d.check(len(data)); err != nil {
		return nil, err
	}

	var offset func(x, y int) int
	switch d.Kind {
	case PS2:
		offset = func(x, y int) int { return ps2Offset(x, y, d.Width) }
	case Morton:
		offset = func(x, y int) int { return mortonOffset(x, y, d.Width, d.Height) }
	case PSP:
		// PSP tiles are measured in bytes whatever the element size.
		return pspRemap(data, d, toTiled), nil
	}

	es := d.ElementSize
	out := make([]byte, len(data))
	for y := 0; y < d.Height; y++ {
		for x := 0; x < d.Width; x++ {
			lin := (y*d.Width + x) * es
			tiled := offset(x, y) * es
			if toTiled {
				copy(out[tiled:tiled+es], data[lin:lin+es])
			} else {
				copy(out[lin:lin+es], data[tiled:tiled+es])
			}
		}
	}
	return out, nil
}

// ps2Offset maps a linear element position to its PSMT8 block position.
func ps2Offset(x, y, width int) int {
	blockLoc := (y&^0xF)*width + (x&^0xF)*2
	swapSel := (((y + 2) >> 2) & 1) * 4
	posY := (((y &^ 3) >> 1) + (y & 1)) & 7
	colLoc := posY*width*2 + ((x+swapSel)&7)*4
	byteNum := ((y >> 1) & 1) + ((x >> 2) & 2)
	return blockLoc + colLoc + byteNum
}

// mortonOffset interleaves x and y bits up to the shorter side, then appends the remaining
// bits of the longer side.
func mortonOffset(x, y, w, h int) int {
	xb := bits.TrailingZeros(uint(w))
	yb := bits.TrailingZeros(uint(h))
	common := min(xb, yb)

	off, shift := 0, 0
	for i := 0; i < common; i++ {
		off |= ((x >> i) & 1) << shift
		shift++
		off |= ((y >> i) & 1) << shift
		shift++
	}
	if xb > common {
		off |= (x >> common) << shift
	} else if yb > common {
		off |= (y >> common) << shift
	}
	return off
}

const (
	pspTileWidth  = 16
	pspTileHeight = 8
)

func pspRemap(data []byte, d Descriptor, toTiled bool) []byte {
	pitch := d.Width * d.ElementSize
	tilesX := pitch / pspTileWidth
	out := make([]byte, len(data))
	tiled := 0
	for ty := 0; ty < d.Height/pspTileHeight; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			for row := 0; row < pspTileHeight; row++ {
				lin := (ty*pspTileHeight+row)*pitch + tx*pspTileWidth
				if toTiled {
					copy(out[tiled:tiled+pspTileWidth], data[lin:lin+pspTileWidth])
				} else {
					copy(out[lin:lin+pspTileWidth], data[tiled:tiled+pspTileWidth])
				}
				tiled += pspTileWidth
			}
		}
	}
	return out
}
