package swizzle

import (
	"fmt"

	"github.com/goopsie/pixcodec/pkg/pixel"
)

// UnpackNibbles expands 4-bit data to one index per byte, low nibble first.
func UnpackNibbles(data []byte, count int) ([]byte, error) {
	if need := (count + 1) / 2; len(data) < need {
		return nil, &pixel.TruncatedDataError{Need: need, Have: len(data)}
	}
	out := make([]byte, count)
	for i := range out {
		out[i] = (data[i/2] >> (4 * (i & 1))) & 0x0F
	}
	return out, nil
}

// PackNibbles is the inverse of UnpackNibbles. Values above 15 are rejected.
func PackNibbles(indices []byte) ([]byte, error) {
	out := make([]byte, (len(indices)+1)/2)
	for i, v := range indices {
		if v > 0x0F {
			return nil, &pixel.PaletteIndexOutOfRangeError{Index: int(v), Size: 16}
		}
		out[i/2] |= v << (4 * (i & 1))
	}
	return out, nil
}

// Unswizzle4 unswizzles PS2 4-bit data by expanding to 8 bits, running the PSMT8 transform
// and repacking.
func Unswizzle4(data []byte, width, height int) ([]byte, error) {
	return nibbleRemap(data, width, height, Unswizzle)
}

// Swizzle4 is the inverse of Unswizzle4.
func Swizzle4(data []byte, width, height int) ([]byte, error) {
	return nibbleRemap(data, width, height, Swizzle)
}

func nibbleRemap(data []byte, width, height int, fn func([]byte, Descriptor) ([]byte, error)) ([]byte, error) {
	d := Descriptor{Width: width, Height: height, ElementSize: 1, Kind: PS2}
	if want := (width*height + 1) / 2; len(data) != want {
		return nil, &pixel.BoundsViolationError{Want: want, Got: len(data)}
	}
	wide, err := UnpackNibbles(data, width*height)
	if err != nil {
		return nil, err
	}
	wide, err = fn(wide, d)
	if err != nil {
		return nil, err
	}
	return PackNibbles(wide)
}

// UnswizzleCLUT reorders a CSM1 palette into linear order. Within every 32 entries the
// second and third groups of eight are exchanged. Palettes shorter than 32 entries are
// returned unchanged.
func UnswizzleCLUT(p pixel.Palette) (pixel.Palette, error) {
	return csm1(p)
}

// SwizzleCLUT converts a linear palette to CSM1 order. The permutation is its own inverse.
func SwizzleCLUT(p pixel.Palette) (pixel.Palette, error) {
	return csm1(p)
}

func csm1(p pixel.Palette) (pixel.Palette, error) {
	if len(p) >= 32 && len(p)%32 != 0 {
		return nil, fmt.Errorf("csm1 palette of %d entries is not a multiple of 32", len(p))
	}
	out := make(pixel.Palette, 0, len(p))
	if len(p) < 32 {
		return append(out, p...), nil
	}
	for i := 0; i < len(p); i += 32 {
		out = append(out, p[i:i+8]...)
		out = append(out, p[i+16:i+24]...)
		out = append(out, p[i+8:i+16]...)
		out = append(out, p[i+24:i+32]...)
	}
	return out, nil
}
