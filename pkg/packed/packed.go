package packed

import (
	"encoding/binary"
	"fmt"

	"github.com/goopsie/pixcodec/pkg/cursor"
	"github.com/goopsie/pixcodec/pkg/pixel"
)

type config struct {
	palette pixel.Palette
	order   binary.ByteOrder
}

// Option configures Decode and Encode.
type Option func(*config)

// WithPalette supplies the colour table for paletted layouts.
func WithPalette(p pixel.Palette) Option {
	return func(c *config) {
		c.palette = p
	}
}

// WithByteOrder sets the byte order of 16-bit words. The default is little-endian.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(c *config) {
		c.order = order
	}
}

func newConfig(opts []Option) *config {
	c := &config{order: binary.LittleEndian}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decode reads a w×h image in the given layout from c. On error nothing is returned and
// the cursor is left where it was.
func Decode(c *cursor.Cursor, w, h int, layout Layout, opts ...Option) (*pixel.Image, error) {
	if err := pixel.CheckDimensions(w, h); err != nil {
		return nil, err
	}
	cfg := newConfig(opts)
	if layout.Paletted() && cfg.palette == nil {
		return nil, fmt.Errorf("decode %s: palette required", layout)
	}

	n := layout.BytesFor(w, h)
	if n == 0 {
		return nil, &pixel.UnsupportedFormatError{Format: layout.String()}
	}
	src, err := c.Peek(n)
	if err != nil {
		return nil, err
	}

	pix := make([]uint32, w*h)
	if err := unpack(pix, src, w, layout, cfg); err != nil {
		return nil, err
	}
	// Only advance once the whole image decoded.
	if _, err := c.Read(n); err != nil {
		return nil, err
	}
	return &pixel.Image{Width: w, Height: h, Pix: pix}, nil
}

func unpack(dst []uint32, src []byte, w int, layout Layout, cfg *config) error {
	switch layout {
	case Paletted8:
		for i := range dst {
			p, err := cfg.palette.Lookup(int(src[i]))
			if err != nil {
				return err
			}
			dst[i] = p
		}
		return nil
	case Paletted4, Paletted4Rows:
		for i := range dst {
			b, high := layout.nibble(i, w)
			idx := src[b] & 0x0F
			if high {
				idx = src[b] >> 4
			}
			p, err := cfg.palette.Lookup(int(idx))
			if err != nil {
				return err
			}
			dst[i] = p
		}
		return nil
	case L8:
		for i := range dst {
			l := src[i]
			dst[i] = pixel.ARGB(0xFF, l, l, l)
		}
		return nil
	case L8A8:
		for i := range dst {
			l, a := src[i*2], src[i*2+1]
			dst[i] = pixel.ARGB(a, l, l, l)
		}
		return nil
	case U8V8:
		for i := range dst {
			// Signed bump offsets become unsigned around 128.
			dst[i] = pixel.ARGB(0xFF, src[i*2]^0x80, src[i*2+1]^0x80, 0xFF)
		}
		return nil
	}

	if wl, ok := wordLayouts[layout]; ok {
		for i := range dst {
			dst[i] = wl.unpack(uint32(cfg.order.Uint16(src[i*2:])))
		}
		return nil
	}
	if bl, ok := byteLayouts[layout]; ok {
		for i := range dst {
			px := src[i*bl.size : (i+1)*bl.size]
			var ch [4]uint8
			for j, pos := range bl.pos {
				if pos < 0 {
					ch[j] = 0xFF
				} else {
					ch[j] = px[pos]
				}
			}
			dst[i] = pixel.ARGB(ch[0], ch[1], ch[2], ch[3])
		}
		return nil
	}
	return &pixel.UnsupportedFormatError{Format: layout.String()}
}

// Encode packs img into the layout, the exact inverse of Decode for non-paletted layouts.
func Encode(img *pixel.Image, layout Layout, opts ...Option) ([]byte, error) {
	if layout.Paletted() {
		return nil, fmt.Errorf("encode %s: use EncodePaletted", layout)
	}
	cfg := newConfig(opts)
	out := make([]byte, layout.BytesFor(img.Width, img.Height))
	if len(out) == 0 {
		return nil, &pixel.UnsupportedFormatError{Format: layout.String()}
	}

	switch layout {
	case L8:
		for i, p := range img.Pix {
			_, r, _, _ := pixel.Split(p)
			out[i] = r
		}
		return out, nil
	case L8A8:
		for i, p := range img.Pix {
			a, r, _, _ := pixel.Split(p)
			out[i*2], out[i*2+1] = r, a
		}
		return out, nil
	case U8V8:
		for i, p := range img.Pix {
			_, r, g, _ := pixel.Split(p)
			out[i*2], out[i*2+1] = r^0x80, g^0x80
		}
		return out, nil
	}

	if wl, ok := wordLayouts[layout]; ok {
		for i, p := range img.Pix {
			cfg.order.PutUint16(out[i*2:], uint16(wl.pack(p)))
		}
		return out, nil
	}
	bl := byteLayouts[layout]
	for i, p := range img.Pix {
		a, r, g, b := pixel.Split(p)
		ch := [4]uint8{a, r, g, b}
		for j, pos := range bl.pos {
			if pos >= 0 {
				out[i*bl.size+pos] = ch[j]
			}
		}
	}
	return out, nil
}
