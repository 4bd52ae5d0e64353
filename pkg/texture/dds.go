package texture

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/goopsie/pixcodec/pkg/arbiter"
	"github.com/goopsie/pixcodec/pkg/block"
	"github.com/goopsie/pixcodec/pkg/cursor"
	"github.com/goopsie/pixcodec/pkg/mipmap"
	"github.com/goopsie/pixcodec/pkg/packed"
	"github.com/goopsie/pixcodec/pkg/pixel"
)

const (
	DDSMagic      = 0x20534444 // "DDS "
	DDSHeaderSize = 124

	DDSFlagCaps        = 0x00000001
	DDSFlagHeight      = 0x00000002
	DDSFlagWidth       = 0x00000004
	DDSFlagPitch       = 0x00000008
	DDSFlagPixelFormat = 0x00001000
	DDSFlagMipMapCount = 0x00020000
	DDSFlagLinearSize  = 0x00080000

	DDPFAlphaPixels = 0x00000001
	DDPFFourCC      = 0x00000004
	DDPFRGB         = 0x00000040
	DDPFLuminance   = 0x00020000

	DDSCapsTexture = 0x00001000
	DDSCapsMipMap  = 0x00400000
	DDSCaps2Cube   = 0x00000200

	dx10FourCC        = "DX10"
	dx10HeaderSize    = 20
	resourceTexture2D = 3
	miscTextureCube   = 0x4
)

// DDSHeader is the magic plus the 124-byte DDS header.
type DDSHeader struct {
	Magic             uint32
	Size              uint32
	Flags             uint32
	Height            uint32
	Width             uint32
	PitchOrLinearSize uint32
	Depth             uint32
	MipMapCount       uint32
	Reserved1         [11]uint32
	PixelFormat       DDSPixelFormat
	Caps              uint32
	Caps2             uint32
	Caps3             uint32
	Caps4             uint32
	Reserved2         uint32
}

// DDSPixelFormat is the 32-byte pixel format block.
type DDSPixelFormat struct {
	Size        uint32
	Flags       uint32
	FourCC      [4]byte
	RGBBitCount uint32
	RBitMask    uint32
	GBitMask    uint32
	BBitMask    uint32
	ABitMask    uint32
}

// DDSDX10Header is the extension that follows a "DX10" FourCC.
type DDSDX10Header struct {
	DXGIFormat        uint32
	ResourceDimension uint32
	MiscFlag          uint32
	ArraySize         uint32
	MiscFlags2        uint32
}

// DDSInfo summarises a parsed DDS header.
type DDSInfo struct {
	Width      int
	Height     int
	MipLevels  int
	ArraySize  int // faces for cube maps
	FourCC     string
	DXGIFormat uint32 // zero for legacy headers without a DXGI equivalent
	FormatName string
	DataOffset int

	surface surface
}

// SurfaceSize is the byte size of one full mip chain.
func (i *DDSInfo) SurfaceSize() int {
	return i.surface.chainSize(i.Width, i.Height, i.MipLevels)
}

var legacyFourCC = map[string]uint32{
	"DXT1": DXGIFormatBC1Unorm,
	"DXT2": DXGIFormatBC2Unorm,
	"DXT3": DXGIFormatBC2Unorm,
	"DXT4": DXGIFormatBC3Unorm,
	"DXT5": DXGIFormatBC3Unorm,
	"ATI1": DXGIFormatBC4Unorm,
	"BC4U": DXGIFormatBC4Unorm,
	"BC4S": DXGIFormatBC4Snorm,
	"ATI2": DXGIFormatBC5Unorm,
	"BC5U": DXGIFormatBC5Unorm,
	"BC5S": DXGIFormatBC5Snorm,
}

type bitmaskFormat struct {
	bits, r, g, b, a uint32
	luminance        bool
	surface          surface
}

var legacyBitmasks = []bitmaskFormat{
	{32, 0xFF0000, 0xFF00, 0xFF, 0xFF000000, false, surface{name: "A8R8G8B8", layout: packed.BGRA8888}},
	{32, 0xFF0000, 0xFF00, 0xFF, 0, false, surface{name: "X8R8G8B8", layout: packed.BGRA8888, noAlpha: true}},
	{32, 0xFF, 0xFF00, 0xFF0000, 0xFF000000, false, surface{name: "A8B8G8R8", layout: packed.RGBA8888}},
	{32, 0xFF, 0xFF00, 0xFF0000, 0, false, surface{name: "X8B8G8R8", layout: packed.RGBA8888, noAlpha: true}},
	{24, 0xFF0000, 0xFF00, 0xFF, 0, false, surface{name: "R8G8B8", layout: packed.BGR888}},
	{16, 0xF800, 0x7E0, 0x1F, 0, false, surface{name: "R5G6B5", layout: packed.RGB565}},
	{16, 0x7C00, 0x3E0, 0x1F, 0x8000, false, surface{name: "A1R5G5B5", layout: packed.ARGB1555}},
	{16, 0x7C00, 0x3E0, 0x1F, 0, false, surface{name: "X1R5G5B5", layout: packed.ARGB1555, noAlpha: true}},
	{16, 0xF00, 0xF0, 0xF, 0xF000, false, surface{name: "A4R4G4B4", layout: packed.ARGB4444}},
	{8, 0xFF, 0, 0, 0, true, surface{name: "L8", layout: packed.L8}},
	{16, 0xFF, 0, 0, 0xFF00, true, surface{name: "A8L8", layout: packed.L8A8}},
}

func legacySurface(pf DDSPixelFormat) (surface, bool) {
	lum := pf.Flags&DDPFLuminance != 0
	for _, f := range legacyBitmasks {
		if f.bits == pf.RGBBitCount && f.r == pf.RBitMask && f.luminance == lum &&
			(lum || f.g == pf.GBitMask && f.b == pf.BBitMask) &&
			(f.a == 0 && pf.Flags&DDPFAlphaPixels == 0 || f.a == pf.ABitMask && f.a != 0) {
			return f.surface, true
		}
	}
	return surface{}, false
}

// ParseDDSHeader reads the headers at the start of c and leaves c at the first surface.
func ParseDDSHeader(c *cursor.Cursor) (*DDSInfo, error) {
	raw, err := c.Read(4 + DDSHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var header DDSHeader
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header.Magic != DDSMagic {
		return nil, fmt.Errorf("invalid DDS magic: 0x%08x", header.Magic)
	}

	info := &DDSInfo{
		Width:      int(header.Width),
		Height:     int(header.Height),
		MipLevels:  max(int(header.MipMapCount), 1),
		ArraySize:  1,
		FourCC:     string(header.PixelFormat.FourCC[:]),
		DataOffset: 4 + DDSHeaderSize,
	}
	if header.Caps2&DDSCaps2Cube != 0 {
		info.ArraySize = 6
	}

	switch {
	case header.PixelFormat.Flags&DDPFFourCC != 0 && info.FourCC == dx10FourCC:
		raw, err := c.Read(dx10HeaderSize)
		if err != nil {
			return nil, fmt.Errorf("read DX10 header: %w", err)
		}
		var dx10 DDSDX10Header
		if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &dx10); err != nil {
			return nil, fmt.Errorf("read DX10 header: %w", err)
		}
		info.DXGIFormat = dx10.DXGIFormat
		info.ArraySize = max(int(dx10.ArraySize), 1)
		if dx10.MiscFlag&miscTextureCube != 0 {
			info.ArraySize *= 6
		}
		info.DataOffset += dx10HeaderSize
	case header.PixelFormat.Flags&DDPFFourCC != 0:
		format, ok := legacyFourCC[info.FourCC]
		if !ok {
			return nil, &pixel.UnsupportedFormatError{Format: "FourCC " + info.FourCC}
		}
		info.DXGIFormat = format
	default:
		s, ok := legacySurface(header.PixelFormat)
		if !ok {
			return nil, &pixel.UnsupportedFormatError{Format: fmt.Sprintf("%d-bit bitmask 0x%x/0x%x/0x%x/0x%x",
				header.PixelFormat.RGBBitCount, header.PixelFormat.RBitMask, header.PixelFormat.GBitMask,
				header.PixelFormat.BBitMask, header.PixelFormat.ABitMask)}
		}
		info.surface = s
		info.FormatName = s.name
		return info.bound()
	}

	s, ok := dxgiSurfaces[info.DXGIFormat]
	if !ok {
		return nil, &pixel.UnsupportedFormatError{Format: FormatName(info.DXGIFormat)}
	}
	info.surface = s
	info.FormatName = s.name
	return info.bound()
}

// bound validates the dimensions and caps the mip count at a full chain, so later size
// arithmetic cannot overflow.
func (i *DDSInfo) bound() (*DDSInfo, error) {
	if err := pixel.CheckDimensions(i.Width, i.Height); err != nil {
		return nil, err
	}
	i.MipLevels = min(i.MipLevels, mipmap.Levels(i.Width, i.Height))
	return i, nil
}

// DecodeDDS decodes the top mip level of the first surface. With full set every array
// slice or cube face is decoded and the slices are linked as a frame ring.
func DecodeDDS(data []byte, full bool) (*pixel.Image, error) {
	c := cursor.New(data)
	info, err := ParseDDSHeader(c)
	if err != nil {
		return nil, err
	}

	slices := 1
	if full {
		slices = info.ArraySize
	}
	stride := info.SurfaceSize()
	top := info.surface.size(info.Width, info.Height)
	if stride <= 0 || top <= 0 {
		return nil, fmt.Errorf("empty %s surface", info.FormatName)
	}
	// Every slice but the last needs its whole chain; the last needs only its top level.
	avail := len(data) - info.DataOffset
	if avail < top || (avail-top)/stride < slices-1 {
		need := math.MaxInt
		if slices-1 <= (math.MaxInt-info.DataOffset-top)/stride {
			need = info.DataOffset + (slices-1)*stride + top
		}
		return nil, &pixel.TruncatedDataError{Need: need, Have: len(data)}
	}
	frames := make([]*pixel.Image, 0, slices)
	for i := 0; i < slices; i++ {
		if err := c.SeekTo(info.DataOffset + i*stride); err != nil {
			return nil, fmt.Errorf("seek slice %d: %w", i, err)
		}
		img, err := info.surface.decode(c, info.Width, info.Height)
		if err != nil {
			return nil, fmt.Errorf("decode slice %d: %w", i, err)
		}
		img.Props.SetInt(pixel.PropMipmapCount, info.MipLevels)
		frames = append(frames, img)
	}
	return pixel.LinkFrames(frames, false), nil
}

// createDDSHeader builds the magic, header and DX10 extension for meta.
func createDDSHeader(meta *TextureMetadata) []byte {
	flags := uint32(DDSFlagCaps | DDSFlagHeight | DDSFlagWidth | DDSFlagPixelFormat | DDSFlagLinearSize)
	caps := uint32(DDSCapsTexture)
	if meta.MipLevels > 1 {
		flags |= DDSFlagMipMapCount
		caps |= DDSCapsMipMap
	}

	header := DDSHeader{
		Magic:             DDSMagic,
		Size:              DDSHeaderSize,
		Flags:             flags,
		Height:            meta.Height,
		Width:             meta.Width,
		PitchOrLinearSize: calculateLinearSize(meta.Width, meta.Height, meta.DXGIFormat),
		MipMapCount:       meta.MipLevels,
		PixelFormat: DDSPixelFormat{
			Size:   32,
			Flags:  DDPFFourCC,
			FourCC: [4]byte{'D', 'X', '1', '0'},
		},
		Caps: caps,
	}
	dx10 := DDSDX10Header{
		DXGIFormat:        meta.DXGIFormat,
		ResourceDimension: resourceTexture2D,
		ArraySize:         max(meta.ArraySize, 1),
	}

	var buf bytes.Buffer
	buf.Grow(4 + DDSHeaderSize + dx10HeaderSize)
	// Writes to a bytes.Buffer cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, &header)
	_ = binary.Write(&buf, binary.LittleEndian, &dx10)
	return buf.Bytes()
}

// EncodeDDS block-compresses img with a generated mip chain and writes a DX10 DDS file.
// mipLevels of zero writes the full chain down to 1×1.
func EncodeDDS(w io.Writer, img *pixel.Image, format block.Format, mipLevels int) error {
	dxgi, err := DXGIFormatFor(format)
	if err != nil {
		return err
	}
	var opts []mipmap.Option
	if mipLevels > 0 {
		opts = append(opts, mipmap.WithMaxLevels(mipLevels))
	}
	chain, err := mipmap.Generate(img, opts...)
	if err != nil {
		return fmt.Errorf("generate mipmaps: %w", err)
	}

	var data []byte
	for i, level := range chain {
		enc, err := block.Encode(level, format)
		if err != nil {
			return fmt.Errorf("encode mip %d: %w", i, err)
		}
		data = append(data, enc...)
	}

	meta := &TextureMetadata{
		Width:       uint32(img.Width),
		Height:      uint32(img.Height),
		MipLevels:   uint32(len(chain)),
		DXGIFormat:  dxgi,
		RawFileSize: uint32(len(data)),
		ArraySize:   1,
	}
	if _, err := w.Write(createDDSHeader(meta)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write compressed data: %w", err)
	}
	return nil
}

func scoreDDS(c *cursor.Cursor, h arbiter.Hints) (int, error) {
	var r arbiter.Rater
	magic, err := c.Peek(4)
	r.Require(err == nil && string(magic) == "DDS ", 50)
	r.Add(h.Ext == ".dds", 10)
	if r.Failed() {
		return 0, nil
	}
	info, err := ParseDDSHeader(c)
	if err == nil {
		r.Add(true, 20)
		r.Add(info.DataOffset+info.surface.size(info.Width, info.Height) <= h.Size, 20)
	}
	return r.Score(), nil
}

func decodeDDS(_ context.Context, c *cursor.Cursor, req *arbiter.Request) arbiter.Result {
	img, err := DecodeDDS(c.Bytes(), req.Full)
	if err != nil {
		return arbiter.Fail(err)
	}
	return arbiter.Ok(img)
}

// DDSCandidate decodes DDS files.
func DDSCandidate() arbiter.Candidate {
	return arbiter.Candidate{Name: "dds", Score: scoreDDS, Decode: decodeDDS}
}
