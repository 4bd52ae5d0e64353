// Package texture holds reference container adapters built on the codec engine.
//
// Four containers are understood:
//  1. DDS files, legacy FourCC, legacy bitmask and DX10 headers
//  2. Echo VR raw BC data without a header, described by a 256-byte .meta sibling
//  3. PKM files holding ETC1/ETC2 data
//  4. PS2 TI paletted textures
//
// Each container is exposed as an arbiter.Candidate; Register installs all of them.
package texture

import (
	"fmt"
	"math"

	"github.com/goopsie/pixcodec/pkg/block"
	"github.com/goopsie/pixcodec/pkg/cursor"
	"github.com/goopsie/pixcodec/pkg/packed"
	"github.com/goopsie/pixcodec/pkg/pixel"
)

// DXGI format values used by DDS DX10 headers and Echo VR metadata.
const (
	DXGIFormatUnknown           = 0
	DXGIFormatR11G11B10Float    = 26
	DXGIFormatR8G8B8A8Unorm     = 28
	DXGIFormatR8G8B8A8UnormSRGB = 29
	DXGIFormatR8Unorm           = 61
	DXGIFormatBC1Unorm          = 71
	DXGIFormatBC1UnormSRGB      = 72
	DXGIFormatBC2Unorm          = 74
	DXGIFormatBC2UnormSRGB      = 75
	DXGIFormatBC3Unorm          = 77
	DXGIFormatBC3UnormSRGB      = 78
	DXGIFormatBC4Unorm          = 80
	DXGIFormatBC4Snorm          = 81
	DXGIFormatBC5Unorm          = 83
	DXGIFormatBC5Snorm          = 84
	DXGIFormatB5G6R5Unorm       = 85
	DXGIFormatB5G5R5A1Unorm     = 86
	DXGIFormatB8G8R8A8Unorm     = 87
	DXGIFormatB8G8R8X8Unorm     = 88
	DXGIFormatB8G8R8A8Typeless  = 90
	DXGIFormatB8G8R8A8UnormSRGB = 91
	DXGIFormatBC6HUF16          = 95
	DXGIFormatBC6HSF16          = 96
	DXGIFormatBC7Unorm          = 98
	DXGIFormatBC7UnormSRGB      = 99
	DXGIFormatB4G4R4A4Unorm     = 115
)

// surface says how one pixel format is stored and decoded.
type surface struct {
	name       string
	compressed bool
	block      block.Format
	layout     packed.Layout
	noAlpha    bool
	float      bool // R11G11B10 packed float
}

func (s surface) size(w, h int) int {
	switch {
	case s.compressed:
		return s.block.DataSize(w, h)
	case s.float:
		return w * h * 4
	}
	return s.layout.BytesFor(w, h)
}

// chainSize is the byte size of a full mip chain of n levels.
func (s surface) chainSize(w, h, n int) int {
	total := 0
	for i := 0; i < n; i++ {
		total += s.size(max(w>>i, 1), max(h>>i, 1))
	}
	return total
}

func (s surface) decode(c *cursor.Cursor, w, h int) (*pixel.Image, error) {
	var (
		img *pixel.Image
		err error
	)
	switch {
	case s.compressed:
		img, err = block.Decode(c, w, h, s.block)
	case s.float:
		img, err = decodeR11G11B10(c, w, h)
	default:
		img, err = packed.Decode(c, w, h, s.layout)
	}
	if err != nil {
		return nil, err
	}
	if s.noAlpha {
		img.RemoveAlpha()
	}
	img.Props.SetString(pixel.PropImageFormat, s.name)
	return img, nil
}

var dxgiSurfaces = map[uint32]surface{
	DXGIFormatBC1Unorm:          {name: "BC1_UNORM", compressed: true, block: block.DXT1},
	DXGIFormatBC1UnormSRGB:      {name: "BC1_UNORM_SRGB", compressed: true, block: block.DXT1},
	DXGIFormatBC2Unorm:          {name: "BC2_UNORM", compressed: true, block: block.DXT3},
	DXGIFormatBC2UnormSRGB:      {name: "BC2_UNORM_SRGB", compressed: true, block: block.DXT3},
	DXGIFormatBC3Unorm:          {name: "BC3_UNORM", compressed: true, block: block.DXT5},
	DXGIFormatBC3UnormSRGB:      {name: "BC3_UNORM_SRGB", compressed: true, block: block.DXT5},
	DXGIFormatBC4Unorm:          {name: "BC4_UNORM", compressed: true, block: block.BC4},
	DXGIFormatBC4Snorm:          {name: "BC4_SNORM", compressed: true, block: block.BC4S},
	DXGIFormatBC5Unorm:          {name: "BC5_UNORM", compressed: true, block: block.BC5},
	DXGIFormatBC5Snorm:          {name: "BC5_SNORM", compressed: true, block: block.BC5S},
	DXGIFormatBC6HUF16:          {name: "BC6H_UF16", compressed: true, block: block.BC6HU},
	DXGIFormatBC6HSF16:          {name: "BC6H_SF16", compressed: true, block: block.BC6HS},
	DXGIFormatBC7Unorm:          {name: "BC7_UNORM", compressed: true, block: block.BC7},
	DXGIFormatBC7UnormSRGB:      {name: "BC7_UNORM_SRGB", compressed: true, block: block.BC7},
	DXGIFormatR8G8B8A8Unorm:     {name: "R8G8B8A8_UNORM", layout: packed.RGBA8888},
	DXGIFormatR8G8B8A8UnormSRGB: {name: "R8G8B8A8_UNORM_SRGB", layout: packed.RGBA8888},
	DXGIFormatB8G8R8A8Unorm:     {name: "B8G8R8A8_UNORM", layout: packed.BGRA8888},
	DXGIFormatB8G8R8X8Unorm:     {name: "B8G8R8X8_UNORM", layout: packed.BGRA8888, noAlpha: true},
	DXGIFormatB8G8R8A8Typeless:  {name: "B8G8R8A8_TYPELESS", layout: packed.BGRA8888},
	DXGIFormatB8G8R8A8UnormSRGB: {name: "B8G8R8A8_UNORM_SRGB", layout: packed.BGRA8888},
	DXGIFormatR8Unorm:           {name: "R8_UNORM", layout: packed.L8},
	DXGIFormatB5G6R5Unorm:       {name: "B5G6R5_UNORM", layout: packed.RGB565},
	DXGIFormatB5G5R5A1Unorm:     {name: "B5G5R5A1_UNORM", layout: packed.ARGB1555},
	DXGIFormatB4G4R4A4Unorm:     {name: "B4G4R4A4_UNORM", layout: packed.ARGB4444},
	DXGIFormatR11G11B10Float:    {name: "R11G11B10_FLOAT", float: true},
}

// FormatName returns a human-readable name for a DXGI_FORMAT value.
func FormatName(format uint32) string {
	if s, ok := dxgiSurfaces[format]; ok {
		return s.name
	}
	return fmt.Sprintf("UNKNOWN(0x%x)", format)
}

// DXGIFormatFor returns the DXGI value written for an encodable block format.
func DXGIFormatFor(f block.Format) (uint32, error) {
	switch f {
	case block.DXT1:
		return DXGIFormatBC1Unorm, nil
	case block.DXT3:
		return DXGIFormatBC2Unorm, nil
	case block.DXT5:
		return DXGIFormatBC3Unorm, nil
	}
	return 0, &pixel.UnsupportedFormatError{Format: f.String()}
}

// calculateLinearSize returns the top-level surface size stored in the DDS pitch field.
func calculateLinearSize(width, height, format uint32) uint32 {
	s, ok := dxgiSurfaces[format]
	if !ok {
		// Unknown formats are assumed to use 16-byte blocks.
		return ((width + 3) / 4) * ((height + 3) / 4) * 16
	}
	return uint32(s.size(int(width), int(height)))
}

// decodeR11G11B10 unpacks the small-float format, clamping each channel to [0, 1].
func decodeR11G11B10(c *cursor.Cursor, w, h int) (*pixel.Image, error) {
	if err := pixel.CheckDimensions(w, h); err != nil {
		return nil, err
	}
	src, err := c.Read(w * h * 4)
	if err != nil {
		return nil, err
	}
	img, err := pixel.New(w, h)
	if err != nil {
		return nil, err
	}
	for i := range img.Pix {
		v := uint32(src[i*4]) | uint32(src[i*4+1])<<8 | uint32(src[i*4+2])<<16 | uint32(src[i*4+3])<<24
		img.Pix[i] = pixel.ARGB(0xFF,
			unitToByte(smallFloat(v&0x7FF, 6)),
			unitToByte(smallFloat((v>>11)&0x7FF, 6)),
			unitToByte(smallFloat((v>>22)&0x3FF, 5)),
		)
	}
	return img, nil
}

// smallFloat decodes an unsigned float with a 5-bit exponent and the given mantissa width.
func smallFloat(u uint32, mantissaBits uint) float64 {
	exponent := (u >> mantissaBits) & 0x1F
	mantissa := float64(u & (1<<mantissaBits - 1))
	scale := float64(uint32(1) << mantissaBits)
	switch exponent {
	case 0:
		return mantissa / scale / 16384.0
	case 31:
		return 65504.0
	}
	return math.Ldexp(1.0+mantissa/scale, int(exponent)-15)
}

func unitToByte(v float64) uint8 {
	return uint8(math.Min(255, math.Max(0, v*255+0.5)))
}
