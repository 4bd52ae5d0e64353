package block

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"

	"github.com/mauserzjeh/dxt"
	"github.com/nigeltao/etc2/lib/etc2"

	"github.com/goopsie/pixcodec/pkg/pixel"
)

// surfaceDecoder decodes a whole stored surface at once. data holds exactly
// f.DataSize(w, h) bytes.
type surfaceDecoder func(data []byte, w, h int, f Format) (*pixel.Image, error)

var surfaceDecoders = map[Format]surfaceDecoder{
	DXT1:      decodeS3TCSurface,
	DXT3:      decodeS3TCSurface,
	DXT5:      decodeS3TCSurface,
	ETC1:      decodeETCSurface,
	ETC2RGB:   decodeETCSurface,
	ETC2RGBA8: decodeETCSurface,
	ETC2RGBA1: decodeETCSurface,
	EACR11:    decodeETCSurface,
	EACRG11:   decodeETCSurface,
	EACR11S:   decodeETCSurface,
	EACRG11S:  decodeETCSurface,
}

// etcFormats maps block formats onto their etc2 library counterparts.
var etcFormats = map[Format]etc2.Format{
	ETC1:      etc2.FormatETC1,
	ETC2RGB:   etc2.FormatETC2RGB,
	ETC2RGBA8: etc2.FormatETC2RGBA8,
	ETC2RGBA1: etc2.FormatETC2RGBA1,
	EACR11:    etc2.FormatETC2R11Unsigned,
	EACRG11:   etc2.FormatETC2RG11Unsigned,
	EACR11S:   etc2.FormatETC2R11Signed,
	EACRG11S:  etc2.FormatETC2RG11Signed,
}

func decodeETCSurface(data []byte, w, h int, f Format) (*pixel.Image, error) {
	ef := etcFormats[f]
	m, err := ef.NewImage(w, h)
	if err != nil {
		return nil, &pixel.InvalidDimensionError{Width: w, Height: h}
	}
	b := m.Bounds()
	if err := ef.Decode(m, bytes.NewReader(data), b.Dx()/4, b.Dy()/4); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f, err)
	}
	return pixel.FromImage(m.SubImage(image.Rect(0, 0, w, h)))
}

// decodeS3TCSurface runs the dxt package over the surface, then redoes every block whose
// endpoints select the alternate palette. The package always interpolates four opaque
// colours, which is only right for DXT1 with color0 > color1 and for DXT3/DXT5 with
// color0 >= color1.
func decodeS3TCSurface(data []byte, w, h int, f Format) (*pixel.Image, error) {
	var (
		rgba []byte
		err  error
		dec  blockDecoder
		off  int
	)
	switch f {
	case DXT1:
		rgba, err = dxt.DecodeDXT1(data, uint(w), uint(h))
		dec = decodeDXT1
	case DXT3:
		rgba, err = dxt.DecodeDXT3(data, uint(w), uint(h))
		dec, off = decodeDXT3, 8
	case DXT5:
		rgba, err = dxt.DecodeDXT5(data, uint(w), uint(h))
		dec, off = decodeDXT5, 8
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f, err)
	}

	img := &pixel.Image{Width: w, Height: h, Pix: make([]uint32, w*h)}
	for i := range img.Pix {
		p := rgba[i*4 : i*4+4]
		img.Pix[i] = pixel.ARGB(p[3], p[0], p[1], p[2])
	}

	size := f.BlockSize()
	bw := (w + 3) / 4
	var blk [16]uint32
	for i := 0; i*size < len(data); i++ {
		src := data[i*size : (i+1)*size]
		c0 := binary.LittleEndian.Uint16(src[off:])
		c1 := binary.LittleEndian.Uint16(src[off+2:])
		if c0 > c1 || (off > 0 && c0 == c1) {
			continue
		}
		dec(src, &blk)
		bx, by := (i%bw)*4, (i/bw)*4
		for py := 0; py < 4 && by+py < h; py++ {
			for px := 0; px < 4 && bx+px < w; px++ {
				img.Pix[(by+py)*w+bx+px] = blk[py*4+px]
			}
		}
	}
	return img, nil
}

// ETCFormat returns the etc2 library format backing f, if any.
func ETCFormat(f Format) (etc2.Format, bool) {
	ef, ok := etcFormats[f]
	return ef, ok
}
