package block

import (
	"encoding/binary"

	"github.com/goopsie/pixcodec/pkg/pixel"
)

// rgb565 expands a 5:6:5 colour to 8 bits per channel.
func rgb565(c uint16) (r, g, b int) {
	r5 := int(c>>11) & 0x1F
	g6 := int(c>>5) & 0x3F
	b5 := int(c) & 0x1F
	return r5<<3 | r5>>2, g6<<2 | g6>>4, b5<<3 | b5>>2
}

// colorPalette builds the four colours of a DXT colour block. With fourColor unset and
// c0 <= c1 the block is in three-colour mode and entry 3 is transparent black.
func colorPalette(c0, c1 uint16, fourColor bool) [4]uint32 {
	r0, g0, b0 := rgb565(c0)
	r1, g1, b1 := rgb565(c1)

	var pal [4]uint32
	pal[0] = pixel.ARGB(0xFF, uint8(r0), uint8(g0), uint8(b0))
	pal[1] = pixel.ARGB(0xFF, uint8(r1), uint8(g1), uint8(b1))
	if fourColor || c0 > c1 {
		pal[2] = pixel.ARGB(0xFF, uint8((2*r0+r1)/3), uint8((2*g0+g1)/3), uint8((2*b0+b1)/3))
		pal[3] = pixel.ARGB(0xFF, uint8((r0+2*r1)/3), uint8((g0+2*g1)/3), uint8((b0+2*b1)/3))
	} else {
		pal[2] = pixel.ARGB(0xFF, uint8((r0+r1)/2), uint8((g0+g1)/2), uint8((b0+b1)/2))
		pal[3] = 0
	}
	return pal
}

func decodeColorBlock(src []byte, dst *[16]uint32, fourColor bool) {
	c0 := binary.LittleEndian.Uint16(src[0:2])
	c1 := binary.LittleEndian.Uint16(src[2:4])
	pal := colorPalette(c0, c1, fourColor)
	indices := binary.LittleEndian.Uint32(src[4:8])
	for i := 0; i < 16; i++ {
		dst[i] = pal[(indices>>(2*i))&3]
	}
}

// alphaPalette builds the eight values of a DXT5/BC4 interpolated block.
func alphaPalette(a0, a1 uint8) [8]uint8 {
	var pal [8]uint8
	pal[0], pal[1] = a0, a1
	if a0 > a1 {
		for i := 2; i < 8; i++ {
			pal[i] = uint8((int(a0)*(8-i) + int(a1)*(i-1)) / 7)
		}
	} else {
		for i := 2; i < 6; i++ {
			pal[i] = uint8((int(a0)*(6-i) + int(a1)*(i-1)) / 5)
		}
		pal[6] = 0
		pal[7] = 0xFF
	}
	return pal
}

func decodeAlphaBlock(src []byte, dst *[16]uint8) {
	pal := alphaPalette(src[0], src[1])
	var bits uint64
	for i := 0; i < 6; i++ {
		bits |= uint64(src[2+i]) << (8 * i)
	}
	for i := 0; i < 16; i++ {
		dst[i] = pal[(bits>>(3*i))&7]
	}
}

func decodeDXT1(src []byte, dst *[16]uint32) {
	decodeColorBlock(src, dst, false)
}

func decodeDXT3(src []byte, dst *[16]uint32) {
	decodeColorBlock(src[8:], dst, true)
	for i := 0; i < 16; i++ {
		a := (src[i/2] >> (4 * (i & 1))) & 0x0F
		dst[i] = dst[i]&0x00FFFFFF | uint32(a*17)<<24
	}
}

func decodeDXT5(src []byte, dst *[16]uint32) {
	var alpha [16]uint8
	decodeAlphaBlock(src, &alpha)
	decodeColorBlock(src[8:], dst, true)
	for i := 0; i < 16; i++ {
		dst[i] = dst[i]&0x00FFFFFF | uint32(alpha[i])<<24
	}
}

func decodeBC4(src []byte, dst *[16]uint32) {
	var v [16]uint8
	decodeAlphaBlock(src, &v)
	for i := 0; i < 16; i++ {
		dst[i] = pixel.ARGB(0xFF, v[i], v[i], v[i])
	}
}

// decodeBC5 maps the two channels to red and green; blue is zero.
func decodeBC5(src []byte, dst *[16]uint32) {
	var r, g [16]uint8
	decodeAlphaBlock(src[0:8], &r)
	decodeAlphaBlock(src[8:16], &g)
	for i := 0; i < 16; i++ {
		dst[i] = pixel.ARGB(0xFF, r[i], g[i], 0)
	}
}
