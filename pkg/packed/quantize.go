package packed

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/ericpauley/go-quantize/quantize"
	"github.com/goopsie/pixcodec/pkg/pixel"
)

// EncodePaletted converts img to palette indices. Images with few enough distinct colours
// keep them exactly; anything else goes through a median-cut quantizer.
func EncodePaletted(img *pixel.Image, layout Layout) ([]byte, pixel.Palette, error) {
	var colors int
	switch layout {
	case Paletted4, Paletted4Rows:
		colors = 16
	case Paletted8:
		colors = 256
	default:
		return nil, nil, fmt.Errorf("encode paletted: %s is not a paletted layout", layout)
	}

	var indices []byte
	pal, index := exactPalette(img, colors)
	if pal != nil {
		indices = make([]byte, len(img.Pix))
		for i, p := range img.Pix {
			indices[i] = index[p]
		}
	} else {
		q := quantize.MedianCutQuantizer{}
		pal = pixel.PaletteFromColor(q.Quantize(make(color.Palette, 0, colors), img))
		pm := image.NewPaletted(img.Bounds(), pal.Color())
		draw.Draw(pm, pm.Rect, img, image.Point{}, draw.Src)
		indices = pm.Pix
	}
	for len(pal) < colors {
		pal = append(pal, 0)
	}

	if layout == Paletted8 {
		return indices, pal, nil
	}
	out := make([]byte, layout.BytesFor(img.Width, img.Height))
	for i, idx := range indices {
		b, high := layout.nibble(i, img.Width)
		if high {
			out[b] |= (idx & 0x0F) << 4
		} else {
			out[b] |= idx & 0x0F
		}
	}
	return out, pal, nil
}

// exactPalette collects distinct colours, giving up once there are more than limit.
func exactPalette(img *pixel.Image, limit int) (pixel.Palette, map[uint32]byte) {
	index := make(map[uint32]byte)
	var pal pixel.Palette
	for _, p := range img.Pix {
		if _, ok := index[p]; ok {
			continue
		}
		if len(pal) == limit {
			return nil, nil
		}
		index[p] = byte(len(pal))
		pal = append(pal, p)
	}
	return pal, index
}
