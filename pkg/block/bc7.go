package block

import (
	"encoding/binary"

	"github.com/goopsie/pixcodec/pkg/pixel"
)

type bc7Mode struct {
	subsets        int
	partitionBits  int
	rotationBits   int
	indexSelBits   int
	colorBits      int
	alphaBits      int
	endpointPBits  bool
	sharedPBits    bool
	indexBits      int
	secondaryIndex int
}

var bc7Modes = [8]bc7Mode{
	{3, 4, 0, 0, 4, 0, true, false, 3, 0},
	{2, 6, 0, 0, 6, 0, false, true, 3, 0},
	{3, 6, 0, 0, 5, 0, false, false, 2, 0},
	{2, 6, 0, 0, 7, 0, true, false, 2, 0},
	{1, 0, 2, 1, 5, 6, false, false, 2, 3},
	{1, 0, 2, 0, 7, 8, false, false, 2, 2},
	{1, 0, 0, 0, 7, 7, true, false, 4, 0},
	{2, 6, 0, 0, 5, 5, true, false, 2, 0},
}

var (
	bc7Weights2 = [4]int{0, 21, 43, 64}
	bc7Weights3 = [8]int{0, 9, 18, 27, 37, 46, 55, 64}
	bc7Weights4 = [16]int{0, 4, 9, 13, 17, 21, 26, 30, 34, 38, 43, 47, 51, 55, 60, 64}
)

func bc7Weight(bits, idx int) int {
	switch bits {
	case 2:
		return bc7Weights2[idx]
	case 3:
		return bc7Weights3[idx]
	default:
		return bc7Weights4[idx]
	}
}

// bitReader reads a 128-bit little-endian block LSB first.
type bitReader struct {
	lo, hi uint64
	pos    uint
}

func (r *bitReader) read(n int) int {
	var v uint64
	for i := 0; i < n; i++ {
		var bit uint64
		if r.pos < 64 {
			bit = (r.lo >> r.pos) & 1
		} else if r.pos < 128 {
			bit = (r.hi >> (r.pos - 64)) & 1
		}
		v |= bit << uint(i)
		r.pos++
	}
	return int(v)
}

func bc7Unquantize(v, prec int) int {
	v <<= 8 - prec
	return v | v>>prec
}

func bc7Subset(subsets, partition, i int) int {
	switch subsets {
	case 2:
		return int(bc7Partitions2[partition][i])
	case 3:
		return int(bc7Partitions3[partition][i])
	}
	return 0
}

func bc7IsAnchor(subsets, partition, i int) bool {
	if i == 0 {
		return true
	}
	switch subsets {
	case 2:
		return i == int(bc7Anchor2[partition])
	case 3:
		return i == int(bc7Anchor3a[partition]) || i == int(bc7Anchor3b[partition])
	}
	return false
}

// decodeBC7 decodes one 16-byte block. A block with no mode bit in its first byte is
// reserved and decodes to transparent black.
func decodeBC7(src []byte, dst *[16]uint32) {
	r := &bitReader{
		lo: binary.LittleEndian.Uint64(src[0:8]),
		hi: binary.LittleEndian.Uint64(src[8:16]),
	}

	mode := -1
	for m := 0; m < 8; m++ {
		if r.read(1) == 1 {
			mode = m
			break
		}
	}
	if mode < 0 {
		*dst = [16]uint32{}
		return
	}
	info := bc7Modes[mode]

	partition := r.read(info.partitionBits)
	rotation := r.read(info.rotationBits)
	indexSel := r.read(info.indexSelBits)

	numEP := info.subsets * 2
	var ep [6][4]int
	for ch := 0; ch < 3; ch++ {
		for e := 0; e < numEP; e++ {
			ep[e][ch] = r.read(info.colorBits)
		}
	}
	if info.alphaBits > 0 {
		for e := 0; e < numEP; e++ {
			ep[e][3] = r.read(info.alphaBits)
		}
	}

	colorPrec, alphaPrec := info.colorBits, info.alphaBits
	switch {
	case info.endpointPBits:
		for e := 0; e < numEP; e++ {
			p := r.read(1)
			for ch := 0; ch < 4; ch++ {
				ep[e][ch] = ep[e][ch]<<1 | p
			}
		}
		colorPrec++
		if alphaPrec > 0 {
			alphaPrec++
		}
	case info.sharedPBits:
		for s := 0; s < info.subsets; s++ {
			p := r.read(1)
			for _, e := range [2]int{2 * s, 2*s + 1} {
				for ch := 0; ch < 4; ch++ {
					ep[e][ch] = ep[e][ch]<<1 | p
				}
			}
		}
		colorPrec++
		if alphaPrec > 0 {
			alphaPrec++
		}
	}

	for e := 0; e < numEP; e++ {
		for ch := 0; ch < 3; ch++ {
			ep[e][ch] = bc7Unquantize(ep[e][ch], colorPrec)
		}
		if alphaPrec > 0 {
			ep[e][3] = bc7Unquantize(ep[e][3], alphaPrec)
		} else {
			ep[e][3] = 0xFF
		}
	}

	var primary, secondary [16]int
	for i := 0; i < 16; i++ {
		n := info.indexBits
		if bc7IsAnchor(info.subsets, partition, i) {
			n--
		}
		primary[i] = r.read(n)
	}
	if info.secondaryIndex > 0 {
		for i := 0; i < 16; i++ {
			n := info.secondaryIndex
			if i == 0 {
				n--
			}
			secondary[i] = r.read(n)
		}
	}

	for i := 0; i < 16; i++ {
		s := bc7Subset(info.subsets, partition, i)
		e0, e1 := ep[2*s], ep[2*s+1]

		colorBits, colorIdx := info.indexBits, primary[i]
		alphaBits, alphaIdx := info.indexBits, primary[i]
		if info.secondaryIndex > 0 {
			if indexSel == 0 {
				alphaBits, alphaIdx = info.secondaryIndex, secondary[i]
			} else {
				colorBits, colorIdx = info.secondaryIndex, secondary[i]
			}
		}

		var px [4]int
		cw := bc7Weight(colorBits, colorIdx)
		for ch := 0; ch < 3; ch++ {
			px[ch] = ((64-cw)*e0[ch] + cw*e1[ch] + 32) >> 6
		}
		aw := bc7Weight(alphaBits, alphaIdx)
		px[3] = ((64-aw)*e0[3] + aw*e1[3] + 32) >> 6

		switch rotation {
		case 1:
			px[0], px[3] = px[3], px[0]
		case 2:
			px[1], px[3] = px[3], px[1]
		case 3:
			px[2], px[3] = px[3], px[2]
		}
		dst[i] = pixel.ARGB(uint8(px[3]), uint8(px[0]), uint8(px[1]), uint8(px[2]))
	}
}
