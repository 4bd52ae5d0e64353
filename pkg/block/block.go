// Package block decodes and encodes 4×4 block-compressed textures.
//
// Supported for decode: DXT1 (BC1), DXT3 (BC2), DXT5 (BC3), BC4, BC5, BC7, ETC1, ETC2 RGB,
// ETC2 RGBA8 (EAC alpha), ETC2 RGBA1 (punch-through) and the EAC R11/RG11 family.
// DXT1, DXT3, DXT5 and the ETC family can also be encoded.
//
// Images whose dimensions are not multiples of four are stored as whole blocks. Decode
// consumes every stored block and crops the result to the logical size.
package block

import (
	"fmt"
	"strings"

	"github.com/goopsie/pixcodec/pkg/cursor"
	"github.com/goopsie/pixcodec/pkg/pixel"
)

// Format identifies a block-compressed encoding.
type Format int

const (
	DXT1 Format = iota
	DXT3
	DXT5
	BC4
	BC5
	BC7
	ETC1
	ETC2RGB
	ETC2RGBA8
	ETC2RGBA1
	EACR11
	EACRG11
	EACR11S
	EACRG11S

	// Recognised but not decoded.
	BC4S
	BC5S
	BC6HU
	BC6HS
)

var formatNames = map[Format]string{
	DXT1:      "DXT1",
	DXT3:      "DXT3",
	DXT5:      "DXT5",
	BC4:       "BC4",
	BC5:       "BC5",
	BC7:       "BC7",
	ETC1:      "ETC1",
	ETC2RGB:   "ETC2_RGB",
	ETC2RGBA8: "ETC2_RGBA8",
	ETC2RGBA1: "ETC2_RGBA1",
	EACR11:    "EAC_R11",
	EACRG11:   "EAC_RG11",
	EACR11S:   "EAC_R11_SNORM",
	EACRG11S:  "EAC_RG11_SNORM",
	BC4S:      "BC4_SNORM",
	BC5S:      "BC5_SNORM",
	BC6HU:     "BC6H_UF16",
	BC6HS:     "BC6H_SF16",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat accepts the names printed by String plus the BC aliases.
func ParseFormat(name string) (Format, error) {
	switch strings.ToUpper(name) {
	case "BC1":
		return DXT1, nil
	case "BC2":
		return DXT3, nil
	case "BC3":
		return DXT5, nil
	}
	for f, s := range formatNames {
		if strings.EqualFold(s, name) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown block format %q", name)
}

// BlockSize returns the number of bytes in one 4×4 block.
func (f Format) BlockSize() int {
	switch f {
	case DXT1, BC4, BC4S, ETC1, ETC2RGB, ETC2RGBA1, EACR11, EACR11S:
		return 8
	default:
		return 16
	}
}

// DataSize returns the number of bytes a w×h surface occupies, counting whole blocks.
func (f Format) DataSize(w, h int) int {
	return ((w + 3) / 4) * ((h + 3) / 4) * f.BlockSize()
}

type blockDecoder func(src []byte, dst *[16]uint32)

func decoderFor(f Format) (blockDecoder, error) {
	switch f {
	case BC4:
		return decodeBC4, nil
	case BC5:
		return decodeBC5, nil
	case BC7:
		return decodeBC7, nil
	case BC4S, BC5S, BC6HU, BC6HS:
		return nil, &pixel.UnsupportedFormatError{Format: f.String()}
	}
	return nil, fmt.Errorf("unknown block format %d", int(f))
}

// Decode reads w×h pixels of format f from c. Blocks are consumed row-major. On error no
// image is returned and no bytes are consumed.
func Decode(c *cursor.Cursor, w, h int, f Format) (*pixel.Image, error) {
	if err := pixel.CheckDimensions(w, h); err != nil {
		return nil, err
	}
	surface, ok := surfaceDecoders[f]
	var dec blockDecoder
	if !ok {
		var err error
		if dec, err = decoderFor(f); err != nil {
			return nil, err
		}
	}

	size := f.DataSize(w, h)
	if err := c.Need(size); err != nil {
		return nil, err
	}
	if surface != nil {
		data, err := c.Peek(size)
		if err != nil {
			return nil, err
		}
		img, err := surface(data, w, h, f)
		if err != nil {
			return nil, err
		}
		if err := c.Skip(size); err != nil {
			return nil, err
		}
		return img, nil
	}

	bw, bh := (w+3)/4, (h+3)/4
	pw := bw * 4
	padded := make([]uint32, pw*bh*4)
	var blk [16]uint32
	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			src, err := c.Read(f.BlockSize())
			if err != nil {
				return nil, err
			}
			dec(src, &blk)
			for py := 0; py < 4; py++ {
				copy(padded[(by*4+py)*pw+bx*4:], blk[py*4:py*4+4])
			}
		}
	}
	return crop(padded, pw, w, h), nil
}

// crop trims a whole-block surface of row pitch pw down to w×h.
func crop(padded []uint32, pw, w, h int) *pixel.Image {
	img := &pixel.Image{Width: w, Height: h, Pix: padded}
	if pw == w && len(padded) == w*h {
		return img
	}
	pix := make([]uint32, w*h)
	for y := 0; y < h; y++ {
		copy(pix[y*w:(y+1)*w], padded[y*pw:])
	}
	img.Pix = pix
	return img
}
