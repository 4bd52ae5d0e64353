// Package packed converts between canonical ARGB pixels and fixed-width packed layouts.
//
// Sixteen-bit layouts are bit fields inside one word, named most significant field first
// (RGB565 has red in bits 15-11). The word is read little-endian unless WithByteOrder says
// otherwise. Layouts built from whole bytes (RGB888, BGRA8888, L8A8, ...) are named in
// memory order and are not affected by the byte order.
package packed

import (
	"fmt"
	"strings"
)

// Layout identifies one packed pixel representation.
type Layout int

const (
	Paletted8 Layout = iota
	Paletted4
	Paletted4Rows
	RGB565
	BGR565
	ARGB1555
	RGBA5551
	ARGB4444
	RGBA4444
	BGRA4444
	GBAR4444
	RGB888
	BGR888
	RGBA8888
	ARGB8888
	BGRA8888
	L8
	L8A8
	U8V8
)

var layoutNames = map[Layout]string{
	Paletted8:     "P8",
	Paletted4:     "P4",
	Paletted4Rows: "P4R",
	RGB565:        "RGB565",
	BGR565:        "BGR565",
	ARGB1555:      "ARGB1555",
	RGBA5551:      "RGBA5551",
	ARGB4444:      "ARGB4444",
	RGBA4444:      "RGBA4444",
	BGRA4444:      "BGRA4444",
	GBAR4444:      "GBAR4444",
	RGB888:        "RGB888",
	BGR888:        "BGR888",
	RGBA8888:      "RGBA8888",
	ARGB8888:      "ARGB8888",
	BGRA8888:      "BGRA8888",
	L8:            "L8",
	L8A8:          "L8A8",
	U8V8:          "U8V8",
}

func (l Layout) String() string {
	if s, ok := layoutNames[l]; ok {
		return s
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}

// ParseLayout looks a layout up by its case-insensitive name.
func ParseLayout(name string) (Layout, error) {
	for l, s := range layoutNames {
		if strings.EqualFold(s, name) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown layout %q", name)
}

// Layouts returns every layout in declaration order.
func Layouts() []Layout {
	out := make([]Layout, 0, len(layoutNames))
	for l := Paletted8; l <= U8V8; l++ {
		out = append(out, l)
	}
	return out
}

// Paletted reports whether the layout stores palette indices.
func (l Layout) Paletted() bool { return l == Paletted8 || l.Nibbles() }

// Nibbles reports whether the layout packs two 4-bit indices per byte. Paletted4 runs the
// nibbles continuously across rows, as PS2 and TI textures do; Paletted4Rows starts every
// row on a fresh byte, leaving the high nibble unused when the width is odd.
func (l Layout) Nibbles() bool { return l == Paletted4 || l == Paletted4Rows }

// nibble locates pixel i of a w-wide image: the byte holding it and whether it is the
// high nibble.
func (l Layout) nibble(i, w int) (int, bool) {
	if l == Paletted4Rows {
		x, y := i%w, i/w
		return y*((w+1)/2) + x/2, x&1 == 1
	}
	return i / 2, i&1 == 1
}

// field is one channel of a 16-bit word. bits == 0 means the channel is absent.
type field struct {
	shift, bits uint
}

// wordLayout describes a 16-bit layout as A, R, G, B fields.
type wordLayout [4]field

var wordLayouts = map[Layout]wordLayout{
	RGB565:   {{0, 0}, {11, 5}, {5, 6}, {0, 5}},
	BGR565:   {{0, 0}, {0, 5}, {5, 6}, {11, 5}},
	ARGB1555: {{15, 1}, {10, 5}, {5, 5}, {0, 5}},
	RGBA5551: {{0, 1}, {11, 5}, {6, 5}, {1, 5}},
	ARGB4444: {{12, 4}, {8, 4}, {4, 4}, {0, 4}},
	RGBA4444: {{0, 4}, {12, 4}, {8, 4}, {4, 4}},
	BGRA4444: {{0, 4}, {4, 4}, {8, 4}, {12, 4}},
	GBAR4444: {{4, 4}, {0, 4}, {12, 4}, {8, 4}},
}

// byteLayout gives the memory offset of A, R, G, B; -1 means absent.
type byteLayout struct {
	size int
	pos  [4]int
}

var byteLayouts = map[Layout]byteLayout{
	RGB888:   {3, [4]int{-1, 0, 1, 2}},
	BGR888:   {3, [4]int{-1, 2, 1, 0}},
	RGBA8888: {4, [4]int{3, 0, 1, 2}},
	ARGB8888: {4, [4]int{0, 1, 2, 3}},
	BGRA8888: {4, [4]int{3, 2, 1, 0}},
}

// BytesFor returns the number of bytes a w×h image occupies in the layout.
func (l Layout) BytesFor(w, h int) int {
	switch l {
	case Paletted4:
		return (w*h + 1) / 2
	case Paletted4Rows:
		return (w + 1) / 2 * h
	case Paletted8, L8:
		return w * h
	case L8A8, U8V8:
		return w * h * 2
	}
	if _, ok := wordLayouts[l]; ok {
		return w * h * 2
	}
	if bl, ok := byteLayouts[l]; ok {
		return w * h * bl.size
	}
	return 0
}

// expand widens an n-bit channel value to 8 bits by bit replication.
func expand(v uint32, bits uint) uint8 {
	switch bits {
	case 1:
		if v != 0 {
			return 0xFF
		}
		return 0
	case 4:
		return uint8(v * 17)
	case 5:
		return uint8(v<<3 | v>>2)
	case 6:
		return uint8(v<<2 | v>>4)
	case 8:
		return uint8(v)
	}
	return uint8(v << (8 - bits))
}

func (wl wordLayout) unpack(w uint32) uint32 {
	var ch [4]uint8
	for i, f := range wl {
		if f.bits == 0 {
			ch[i] = 0xFF
			continue
		}
		ch[i] = expand((w>>f.shift)&(1<<f.bits-1), f.bits)
	}
	return uint32(ch[0])<<24 | uint32(ch[1])<<16 | uint32(ch[2])<<8 | uint32(ch[3])
}

func (wl wordLayout) pack(p uint32) uint32 {
	var w uint32
	for i, f := range wl {
		if f.bits == 0 {
			continue
		}
		v := (p >> (24 - 8*uint(i))) & 0xFF
		w |= (v >> (8 - f.bits)) << f.shift
	}
	return w
}
