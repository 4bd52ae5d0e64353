package texture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/goopsie/pixcodec/pkg/arbiter"
	"github.com/goopsie/pixcodec/pkg/cursor"
	"github.com/goopsie/pixcodec/pkg/packed"
	"github.com/goopsie/pixcodec/pkg/pixel"
	"github.com/goopsie/pixcodec/pkg/swizzle"
)

// TI header offsets.
const (
	tiOffBPP  = 0x16
	tiOffW    = 0x22
	tiOffH    = 0x24
	tiOffCLUT = 0x30
)

// TIInfo is a parsed TI header.
type TIInfo struct {
	Width, Height int
	BPP           int // 4 or 8
	HasCLUT       bool
}

func (i TIInfo) clutSize() int {
	if i.BPP == 4 {
		return 16 * 4
	}
	return 256 * 4
}

func (i TIInfo) layout() packed.Layout {
	if i.BPP == 4 {
		return packed.Paletted4
	}
	return packed.Paletted8
}

func (i TIInfo) pixelSize() int {
	return i.layout().BytesFor(i.Width, i.Height)
}

func (i TIInfo) size(clut bool) int {
	n := tiOffCLUT + i.pixelSize()
	if clut {
		n += i.clutSize()
	}
	return n
}

// ParseTIHeader reads the TI header. A body of exactly the pixel size has no CLUT; any
// longer body carries one, and must hold the whole CLUT and pixel area.
func ParseTIHeader(data []byte) (TIInfo, error) {
	var info TIInfo
	c := cursor.New(data)
	if err := c.Need(tiOffCLUT); err != nil {
		return info, fmt.Errorf("read header: %w", err)
	}
	switch data[tiOffBPP] {
	case 0:
		info.BPP = 4
	case 1:
		info.BPP = 8
	default:
		return info, fmt.Errorf("invalid BPP type: %d", data[tiOffBPP])
	}
	info.Width = int(binary.LittleEndian.Uint16(data[tiOffW:]))
	info.Height = int(binary.LittleEndian.Uint16(data[tiOffH:]))
	if err := pixel.CheckDimensions(info.Width, info.Height); err != nil {
		return info, err
	}
	body := len(data) - tiOffCLUT
	switch {
	case body < info.pixelSize():
		return info, &pixel.TruncatedDataError{Need: tiOffCLUT + info.pixelSize(), Have: len(data)}
	case body == info.pixelSize():
	case body < info.clutSize()+info.pixelSize():
		return info, &pixel.TruncatedDataError{Need: info.size(true), Have: len(data)}
	default:
		info.HasCLUT = true
	}
	return info, nil
}

// ps2Alpha scales PS2 alpha (0x80 is opaque) to 8 bits.
func ps2Alpha(a uint8) uint8 {
	return uint8(min(255, int(a)*255/128))
}

func toPS2Alpha(a uint8) uint8 {
	return uint8(min(128, (int(a)*128+127)/255))
}

func decodeCLUT(raw []byte, bpp int) (pixel.Palette, error) {
	pal := make(pixel.Palette, len(raw)/4)
	for i := range pal {
		r, g, b, a := raw[i*4], raw[i*4+1], raw[i*4+2], raw[i*4+3]
		pal[i] = pixel.ARGB(ps2Alpha(a), r, g, b)
	}
	if bpp == 8 {
		return swizzle.UnswizzleCLUT(pal)
	}
	return pal, nil
}

func encodeCLUT(pal pixel.Palette, bpp int) ([]byte, error) {
	if bpp == 8 {
		var err error
		if pal, err = swizzle.SwizzleCLUT(pal); err != nil {
			return nil, err
		}
	}
	raw := make([]byte, len(pal)*4)
	for i, p := range pal {
		a, r, g, b := pixel.Split(p)
		raw[i*4], raw[i*4+1], raw[i*4+2], raw[i*4+3] = r, g, b, toPS2Alpha(a)
	}
	return raw, nil
}

// DecodeTI decodes a TI texture. A file without its own CLUT takes its palette from
// palettes, looked up by name.
func DecodeTI(data []byte, name string, palettes pixel.PaletteProvider) (*pixel.Image, error) {
	info, err := ParseTIHeader(data)
	if err != nil {
		return nil, err
	}

	c := cursor.New(data)
	if err := c.SeekTo(tiOffCLUT); err != nil {
		return nil, err
	}
	var pal pixel.Palette
	if info.HasCLUT {
		raw, err := c.Read(info.clutSize())
		if err != nil {
			return nil, fmt.Errorf("read CLUT: %w", err)
		}
		if pal, err = decodeCLUT(raw, info.BPP); err != nil {
			return nil, err
		}
	} else {
		if palettes == nil {
			return nil, fmt.Errorf("%s has no CLUT: %w", name, pixel.ErrNoPalette)
		}
		if pal, err = palettes.Palette(name); err != nil {
			return nil, fmt.Errorf("external palette for %s: %w", name, err)
		}
	}

	img, err := packed.Decode(c, info.Width, info.Height, info.layout(), packed.WithPalette(pal))
	if err != nil {
		return nil, fmt.Errorf("read pixels: %w", err)
	}
	img.Props.SetString(pixel.PropImageFormat, fmt.Sprintf("TI %dbpp", info.BPP))
	return img, nil
}

// PatchTI returns a copy of the TI file src with its CLUT and pixels replaced by img,
// quantized to the file's bit depth. The dimensions must match.
func PatchTI(src []byte, img *pixel.Image) ([]byte, error) {
	info, err := ParseTIHeader(src)
	if err != nil {
		return nil, err
	}
	if !info.HasCLUT {
		return nil, errors.New("patch TI: file carries no CLUT")
	}
	if img.Width != info.Width || img.Height != info.Height {
		return nil, fmt.Errorf("patch TI: image is %dx%d, texture is %dx%d",
			img.Width, img.Height, info.Width, info.Height)
	}

	indices, pal, err := packed.EncodePaletted(img, info.layout())
	if err != nil {
		return nil, fmt.Errorf("patch TI: %w", err)
	}
	clut, err := encodeCLUT(pal, info.BPP)
	if err != nil {
		return nil, fmt.Errorf("patch TI: %w", err)
	}

	out := make([]byte, len(src))
	copy(out, src)
	copy(out[tiOffCLUT:], clut)
	copy(out[tiOffCLUT+len(clut):], indices)
	return out, nil
}

func scoreTI(c *cursor.Cursor, h arbiter.Hints) (int, error) {
	var r arbiter.Rater
	r.Require(c.Len() >= tiOffCLUT, 0)
	if r.Failed() {
		return 0, nil
	}
	info, err := ParseTIHeader(c.Bytes())
	r.Require(err == nil, 20)
	if r.Failed() {
		return 0, nil
	}
	// The header has no magic, so the extension or an exact length must vouch for it.
	exact := c.Len() == info.size(info.HasCLUT)
	r.Require(h.Ext == ".ti" || exact, 0)
	r.Add(h.Ext == ".ti", 30)
	r.Add(exact, 20)
	return r.Score(), nil
}

func decodeTI(_ context.Context, c *cursor.Cursor, req *arbiter.Request) arbiter.Result {
	img, err := DecodeTI(c.Bytes(), req.Name, req.Palettes)
	if err != nil {
		return arbiter.Fail(err)
	}
	return arbiter.Ok(img)
}

// TICandidate decodes PS2 TI textures.
func TICandidate() arbiter.Candidate {
	return arbiter.Candidate{Name: "ti", Score: scoreTI, Decode: decodeTI}
}
