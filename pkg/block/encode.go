package block

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/nigeltao/etc2/lib/etc2"

	"github.com/goopsie/pixcodec/pkg/pixel"
)

// Encode compresses img into DXT1, DXT3 or DXT5 blocks using a min/max endpoint fit.
// Edge blocks of images that are not multiples of four repeat the last row and column.
// DXT1 switches to three-colour mode for blocks holding any pixel with alpha below 128.
// The ETC and EAC formats go through the etc2 encoder.
func Encode(img *pixel.Image, f Format) ([]byte, error) {
	if err := pixel.CheckDimensions(img.Width, img.Height); err != nil {
		return nil, err
	}
	if ef, ok := etcFormats[f]; ok {
		var buf bytes.Buffer
		buf.Grow(f.DataSize(img.Width, img.Height))
		if err := etc2.Encode(&buf, img.ToNRGBA(), ef, nil); err != nil {
			return nil, fmt.Errorf("encode %s: %w", f, err)
		}
		return buf.Bytes(), nil
	}

	var enc func(blk *[16]uint32, dst []byte)
	switch f {
	case DXT1:
		enc = encodeDXT1
	case DXT3:
		enc = encodeDXT3
	case DXT5:
		enc = encodeDXT5
	default:
		return nil, &pixel.UnsupportedFormatError{Format: f.String()}
	}

	bw, bh := (img.Width+3)/4, (img.Height+3)/4
	size := f.BlockSize()
	out := make([]byte, bw*bh*size)
	var blk [16]uint32
	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			for py := 0; py < 4; py++ {
				y := min(by*4+py, img.Height-1)
				for px := 0; px < 4; px++ {
					x := min(bx*4+px, img.Width-1)
					blk[py*4+px] = img.Pix[y*img.Width+x]
				}
			}
			off := (by*bw + bx) * size
			enc(&blk, out[off:off+size])
		}
	}
	return out, nil
}

func to565(r, g, b int) uint16 {
	return uint16((r*31+127)/255)<<11 | uint16((g*63+127)/255)<<5 | uint16((b*31+127)/255)
}

func colorDistance(a, b uint32) int {
	_, ar, ag, ab := pixel.Split(a)
	_, br, bg, bb := pixel.Split(b)
	dr, dg, db := int(ar)-int(br), int(ag)-int(bg), int(ab)-int(bb)
	return dr*dr + dg*dg + db*db
}

// colorEndpoints returns the 565 packed per-channel minimum and maximum over the pixels
// selected by use. ok is false when no pixel is selected.
func colorEndpoints(blk *[16]uint32, use func(i int) bool) (lo, hi uint16, ok bool) {
	minR, minG, minB := 255, 255, 255
	maxR, maxG, maxB := 0, 0, 0
	for i, p := range blk {
		if !use(i) {
			continue
		}
		ok = true
		_, r, g, b := pixel.Split(p)
		minR, maxR = min(minR, int(r)), max(maxR, int(r))
		minG, maxG = min(minG, int(g)), max(maxG, int(g))
		minB, maxB = min(minB, int(b)), max(maxB, int(b))
	}
	if !ok {
		return 0, 0, false
	}
	return to565(minR, minG, minB), to565(maxR, maxG, maxB), true
}

func nearest(pal []uint32, p uint32) int {
	best, bestDist := 0, colorDistance(pal[0], p)
	for i := 1; i < len(pal); i++ {
		if d := colorDistance(pal[i], p); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// encodeColorBlock writes an 8-byte four-colour block.
func encodeColorBlock(blk *[16]uint32, dst []byte) {
	lo, hi, _ := colorEndpoints(blk, func(int) bool { return true })
	binary.LittleEndian.PutUint16(dst[0:2], hi)
	binary.LittleEndian.PutUint16(dst[2:4], lo)

	var indices uint32
	if hi != lo {
		pal := colorPalette(hi, lo, true)
		for i, p := range blk {
			indices |= uint32(nearest(pal[:], p)) << (2 * i)
		}
	}
	binary.LittleEndian.PutUint32(dst[4:8], indices)
}

func encodeDXT1(blk *[16]uint32, dst []byte) {
	transparent := func(i int) bool { return blk[i]>>24 < 0x80 }

	hasAlpha := false
	for i := range blk {
		if transparent(i) {
			hasAlpha = true
			break
		}
	}
	if !hasAlpha {
		encodeColorBlock(blk, dst)
		return
	}

	// Three-colour mode: c0 <= c1, index 3 is transparent.
	lo, hi, _ := colorEndpoints(blk, func(i int) bool { return !transparent(i) })
	binary.LittleEndian.PutUint16(dst[0:2], lo)
	binary.LittleEndian.PutUint16(dst[2:4], hi)
	pal := colorPalette(lo, hi, false)

	var indices uint32
	for i, p := range blk {
		idx := 3
		if !transparent(i) {
			idx = nearest(pal[:3], p)
		}
		indices |= uint32(idx) << (2 * i)
	}
	binary.LittleEndian.PutUint32(dst[4:8], indices)
}

func encodeDXT3(blk *[16]uint32, dst []byte) {
	for i := range dst[:8] {
		dst[i] = 0
	}
	for i, p := range blk {
		a := (int(p>>24)*15 + 127) / 255
		dst[i/2] |= byte(a) << (4 * (i & 1))
	}
	encodeColorBlock(blk, dst[8:16])
}

func encodeDXT5(blk *[16]uint32, dst []byte) {
	a0, a1 := uint8(0), uint8(0xFF)
	for _, p := range blk {
		a := uint8(p >> 24)
		a0, a1 = max(a0, a), min(a1, a)
	}
	dst[0], dst[1] = a0, a1

	var bits uint64
	if a0 != a1 {
		pal := alphaPalette(a0, a1)
		for i, p := range blk {
			a := int(p >> 24)
			best, bestDist := 0, 256
			for j, v := range pal {
				d := a - int(v)
				if d < 0 {
					d = -d
				}
				if d < bestDist {
					best, bestDist = j, d
				}
			}
			bits |= uint64(best) << (3 * i)
		}
	}
	for i := 0; i < 6; i++ {
		dst[2+i] = byte(bits >> (8 * i))
	}
	encodeColorBlock(blk, dst[8:16])
}
