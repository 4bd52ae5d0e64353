package texture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"testing"

	"github.com/goopsie/pixcodec/pkg/arbiter"
	"github.com/goopsie/pixcodec/pkg/block"
	"github.com/goopsie/pixcodec/pkg/cursor"
	"github.com/goopsie/pixcodec/pkg/pixel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redDXT1 is one opaque red DXT1 block.
var redDXT1 = []byte{0x00, 0xF8, 0x1F, 0x00, 0, 0, 0, 0}

func legacyDDS(t *testing.T, pf DDSPixelFormat, w, h, mips uint32, caps2 uint32, data []byte) []byte {
	t.Helper()
	header := DDSHeader{
		Magic:       DDSMagic,
		Size:        DDSHeaderSize,
		Flags:       DDSFlagCaps | DDSFlagHeight | DDSFlagWidth | DDSFlagPixelFormat,
		Height:      h,
		Width:       w,
		MipMapCount: mips,
		PixelFormat: pf,
		Caps:        DDSCapsTexture,
		Caps2:       caps2,
	}
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &header))
	buf.Write(data)
	return buf.Bytes()
}

func fourCC(s string) DDSPixelFormat {
	pf := DDSPixelFormat{Size: 32, Flags: DDPFFourCC}
	copy(pf.FourCC[:], s)
	return pf
}

func TestParseMetadata(t *testing.T) {
	data := make([]byte, MetadataSize)
	binary.LittleEndian.PutUint32(data[0x00:], 512)
	binary.LittleEndian.PutUint32(data[0x04:], 512)
	binary.LittleEndian.PutUint32(data[0x08:], 10)
	binary.LittleEndian.PutUint32(data[0x0C:], DXGIFormatBC7Unorm)
	binary.LittleEndian.PutUint32(data[0x10:], 262288)
	binary.LittleEndian.PutUint32(data[0x14:], 262144)
	binary.LittleEndian.PutUint32(data[0x1C:], 1)

	meta, err := ParseMetadata(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, uint32(512), meta.Width)
	assert.Equal(t, uint32(512), meta.Height)
	assert.Equal(t, uint32(10), meta.MipLevels)
	assert.Equal(t, uint32(DXGIFormatBC7Unorm), meta.DXGIFormat)
	assert.Equal(t, uint32(262144), meta.RawFileSize)

	_, err = ParseMetadata(bytes.NewReader(data[:100]))
	assert.Error(t, err)
}

func TestMetadataRoundTrip(t *testing.T) {
	original := &TextureMetadata{
		Width:       1024,
		Height:      1024,
		MipLevels:   11,
		DXGIFormat:  DXGIFormatBC3Unorm,
		DDSFileSize: 699192,
		RawFileSize: 699048,
		ArraySize:   1,
	}
	data := original.Bytes()
	require.Len(t, data, MetadataSize)

	parsed, err := ParseMetadata(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
	assert.Contains(t, parsed.String(), "BC3_UNORM")
}

func TestMetadataWriteToLayout(t *testing.T) {
	meta := &TextureMetadata{Width: 64, Height: 32, MipLevels: 7, DXGIFormat: DXGIFormatBC1Unorm, Flags: 0x11, ArraySize: 6}
	meta.Reserved[0] = 0xAB
	meta.Reserved[223] = 0xCD

	var buf bytes.Buffer
	n, err := meta.WriteTo(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, MetadataSize, n)

	data := buf.Bytes()
	require.Len(t, data, MetadataSize)
	assert.Equal(t, uint32(64), binary.LittleEndian.Uint32(data[0x00:]))
	assert.Equal(t, uint32(32), binary.LittleEndian.Uint32(data[0x04:]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(data[0x08:]))
	assert.Equal(t, uint32(DXGIFormatBC1Unorm), binary.LittleEndian.Uint32(data[0x0C:]))
	assert.Equal(t, uint32(0x11), binary.LittleEndian.Uint32(data[0x18:]))
	assert.Equal(t, uint32(6), binary.LittleEndian.Uint32(data[0x1C:]))
	assert.Equal(t, byte(0xAB), data[0x20])
	assert.Equal(t, byte(0xCD), data[0xFF])
	assert.Equal(t, data, meta.Bytes())
}

func TestFormatName(t *testing.T) {
	tests := []struct {
		format   uint32
		expected string
	}{
		{DXGIFormatBC1Unorm, "BC1_UNORM"},
		{DXGIFormatBC3Unorm, "BC3_UNORM"},
		{DXGIFormatBC7Unorm, "BC7_UNORM"},
		{DXGIFormatBC7UnormSRGB, "BC7_UNORM_SRGB"},
		{DXGIFormatR11G11B10Float, "R11G11B10_FLOAT"},
		{9999, "UNKNOWN(0x270f)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatName(tt.format))
	}
}

func TestConvertRawBCToDDS(t *testing.T) {
	meta := &TextureMetadata{
		Width:       512,
		Height:      512,
		MipLevels:   10,
		DXGIFormat:  DXGIFormatBC7Unorm,
		DDSFileSize: 262288,
		RawFileSize: 262144,
		ArraySize:   1,
	}
	rawData := make([]byte, meta.RawFileSize)

	ddsData, err := ConvertRawBCToDDS(rawData, meta)
	require.NoError(t, err)
	require.Len(t, ddsData, 148+int(meta.RawFileSize))

	assert.Equal(t, uint32(DDSMagic), binary.LittleEndian.Uint32(ddsData[0:4]))
	assert.Equal(t, meta.Height, binary.LittleEndian.Uint32(ddsData[12:16]))
	assert.Equal(t, meta.Width, binary.LittleEndian.Uint32(ddsData[16:20]))
	assert.Equal(t, "DX10", string(ddsData[84:88]))
	assert.Equal(t, meta.DXGIFormat, binary.LittleEndian.Uint32(ddsData[128:132]))

	info, err := ParseDDSHeader(cursor.New(ddsData))
	require.NoError(t, err)
	assert.Equal(t, 10, info.MipLevels)
	assert.Equal(t, 148, info.DataOffset)
}

func TestConvertRawBCToDDSErrors(t *testing.T) {
	_, err := ConvertRawBCToDDS(make([]byte, 500), &TextureMetadata{RawFileSize: 1000})
	assert.Error(t, err)

	_, err = ConvertRawBCToDDS(make([]byte, 100), nil)
	assert.Error(t, err)
}

func TestCalculateLinearSize(t *testing.T) {
	tests := []struct {
		width, height, format, expected uint32
	}{
		{512, 512, DXGIFormatBC1Unorm, 128 * 128 * 8},
		{512, 512, DXGIFormatBC7Unorm, 128 * 128 * 16},
		{513, 513, DXGIFormatBC7Unorm, 129 * 129 * 16},
		{16, 16, DXGIFormatR8G8B8A8Unorm, 16 * 16 * 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, calculateLinearSize(tt.width, tt.height, tt.format))
	}
}

func TestDecodeLegacyDXT1(t *testing.T) {
	data := legacyDDS(t, fourCC("DXT1"), 4, 4, 1, 0, redDXT1)

	img, err := DecodeDDS(data, false)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Width)
	for _, p := range img.Pix {
		require.Equal(t, uint32(0xFFFF0000), p)
	}
	name, _ := img.Props.String(pixel.PropImageFormat)
	assert.Equal(t, "BC1_UNORM", name)
	mips, _ := img.Props.Int(pixel.PropMipmapCount)
	assert.Equal(t, 1, mips)
}

func TestDecodeLegacyBitmask(t *testing.T) {
	pf := DDSPixelFormat{
		Size:        32,
		Flags:       DDPFRGB | DDPFAlphaPixels,
		RGBBitCount: 32,
		RBitMask:    0xFF0000,
		GBitMask:    0xFF00,
		BBitMask:    0xFF,
		ABitMask:    0xFF000000,
	}
	data := legacyDDS(t, pf, 2, 1, 0, 0, []byte{0x01, 0x02, 0x03, 0x80, 0x10, 0x20, 0x30, 0xFF})

	img, err := DecodeDDS(data, false)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x80030201, 0xFF302010}, img.Pix)

	pf.RGBBitCount = 12
	_, err = DecodeDDS(legacyDDS(t, pf, 2, 1, 0, 0, nil), false)
	var unsupported *pixel.UnsupportedFormatError
	assert.True(t, errors.As(err, &unsupported))
}

func TestDecodeCubeFaces(t *testing.T) {
	var faces []byte
	for i := 0; i < 6; i++ {
		faces = append(faces, redDXT1...)
	}
	data := legacyDDS(t, fourCC("DXT1"), 4, 4, 1, DDSCaps2Cube, faces)

	single, err := DecodeDDS(data, false)
	require.NoError(t, err)
	assert.Nil(t, single.Next)

	full, err := DecodeDDS(data, true)
	require.NoError(t, err)
	assert.Len(t, pixel.Frames(full), 6)
}

func TestDecodeDDSMipCountClamped(t *testing.T) {
	data := legacyDDS(t, fourCC("DXT1"), 4, 4, 0xFFFFFFFF, 0, redDXT1)
	require.Len(t, data, 136)

	info, err := ParseDDSHeader(cursor.New(data))
	require.NoError(t, err)
	assert.Equal(t, 3, info.MipLevels)

	img, err := DecodeDDS(data, true)
	require.NoError(t, err)
	mips, _ := img.Props.Int(pixel.PropMipmapCount)
	assert.Equal(t, 3, mips)
}

func TestDecodeDDSArraySizeBeyondData(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(legacyDDS(t, fourCC("DX10"), 4, 4, 1, 0, nil))
	dx10 := DDSDX10Header{
		DXGIFormat:        DXGIFormatBC1Unorm,
		ResourceDimension: resourceTexture2D,
		MiscFlag:          miscTextureCube,
		ArraySize:         0x7FFFFFFF,
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &dx10))
	buf.Write(redDXT1)

	img, err := DecodeDDS(buf.Bytes(), false)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFFFF0000), img.Pix[0])

	_, err = DecodeDDS(buf.Bytes(), true)
	var truncated *pixel.TruncatedDataError
	require.True(t, errors.As(err, &truncated))
	assert.Equal(t, buf.Len(), truncated.Have)
	assert.Greater(t, truncated.Need, buf.Len())
}

func TestDecodeDDSRejectsHugeDimensions(t *testing.T) {
	data := legacyDDS(t, fourCC("DXT1"), 0xFFFFFFFF, 0xFFFFFFFF, 1, 0, redDXT1)
	_, err := DecodeDDS(data, false)
	var dims *pixel.InvalidDimensionError
	assert.True(t, errors.As(err, &dims))
}

func TestDecodeUnsupportedDXGI(t *testing.T) {
	meta := &TextureMetadata{Width: 4, Height: 4, MipLevels: 1, DXGIFormat: DXGIFormatBC6HUF16, RawFileSize: 16, ArraySize: 1}
	_, err := DecodeRawBC(make([]byte, 16), meta, false)
	var unsupported *pixel.UnsupportedFormatError
	assert.True(t, errors.As(err, &unsupported))
}

func TestEncodeDDSRoundTrip(t *testing.T) {
	img, err := pixel.New(8, 8)
	require.NoError(t, err)
	for i := range img.Pix {
		img.Pix[i] = 0xFF0000FF
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeDDS(&buf, img, block.DXT5, 0))

	info, err := ParseDDSHeader(cursor.New(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 4, info.MipLevels)
	assert.Equal(t, uint32(DXGIFormatBC3Unorm), info.DXGIFormat)
	assert.Equal(t, buf.Len(), info.DataOffset+info.SurfaceSize())

	back, err := DecodeDDS(buf.Bytes(), false)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, back.Pix)

	assert.Error(t, EncodeDDS(&buf, img, block.BC7, 0))
}

func TestDecodeR11G11B10(t *testing.T) {
	// Exponent 15 and zero mantissa is 1.0 in every channel.
	one11 := uint32(15 << 6)
	one10 := uint32(15 << 5)
	v := one11 | one11<<11 | one10<<22
	data := binary.LittleEndian.AppendUint32(nil, v)

	img, err := decodeR11G11B10(cursor.New(data), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFFFFFFFF), img.Pix[0])
}

func pkmFile(dataType uint16, w, h int, body []byte) []byte {
	hdr := []byte("PKM 20")
	hdr = binary.BigEndian.AppendUint16(hdr, dataType)
	hdr = binary.BigEndian.AppendUint16(hdr, uint16((w+3)&^3))
	hdr = binary.BigEndian.AppendUint16(hdr, uint16((h+3)&^3))
	hdr = binary.BigEndian.AppendUint16(hdr, uint16(w))
	hdr = binary.BigEndian.AppendUint16(hdr, uint16(h))
	return append(hdr, body...)
}

func TestDecodePKM(t *testing.T) {
	etc := []byte{0x88, 0x88, 0x88, 0x00, 0, 0, 0, 0}
	img, err := DecodePKM(pkmFile(0, 3, 2, etc))
	require.NoError(t, err)
	assert.Equal(t, 3, img.Width)
	assert.Equal(t, 2, img.Height)
	assert.Equal(t, uint32(0xFF8A8A8A), img.Pix[5])

	img, err = DecodePKM(pkmFile(5, 4, 4, []byte{0xFF, 0, 0, 0, 0, 0, 0, 0}))
	require.NoError(t, err)
	format, _ := img.Props.String(pixel.PropImageFormat)
	assert.Equal(t, "EAC_R11", format)
	assert.Equal(t, uint32(0xFFFFFFFF), img.Pix[0])

	_, err = DecodePKM(pkmFile(2, 4, 4, etc))
	var unsupported *pixel.UnsupportedFormatError
	require.True(t, errors.As(err, &unsupported))

	bad := pkmFile(0, 4, 4, etc)
	binary.BigEndian.PutUint16(bad[8:], 12)
	_, err = DecodePKM(bad)
	assert.Error(t, err)
}

func TestEncodePKM(t *testing.T) {
	src, err := pixel.New(5, 3)
	require.NoError(t, err)
	for i := range src.Pix {
		src.Pix[i] = 0xFF204060
	}

	data, err := EncodePKM(src, block.ETC2RGB)
	require.NoError(t, err)
	require.Len(t, data, pkmHeaderSize+block.ETC2RGB.DataSize(5, 3))

	info, err := ParsePKMHeader(cursor.New(data))
	require.NoError(t, err)
	assert.Equal(t, block.ETC2RGB, info.Format)
	assert.Equal(t, 8, info.PaddedWidth)

	img, err := DecodePKM(data)
	require.NoError(t, err)
	assert.Equal(t, 5, img.Width)

	// The registered image decoder reads the same file.
	std, name, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "pkm", name)
	assert.Equal(t, image.Rect(0, 0, 5, 3), std.Bounds())

	for i, p := range img.Pix {
		_, r, g, b := pixel.Split(p)
		assert.InDelta(t, 0x20, int(r), 8, "pixel %d", i)
		assert.InDelta(t, 0x40, int(g), 8, "pixel %d", i)
		assert.InDelta(t, 0x60, int(b), 8, "pixel %d", i)
	}

	_, err = EncodePKM(src, block.DXT1)
	var unsupported *pixel.UnsupportedFormatError
	assert.True(t, errors.As(err, &unsupported))
}

func tiFile(bpp byte, w, h int, clut, pix []byte) []byte {
	data := make([]byte, tiOffCLUT)
	data[tiOffBPP] = bpp
	binary.LittleEndian.PutUint16(data[tiOffW:], uint16(w))
	binary.LittleEndian.PutUint16(data[tiOffH:], uint16(h))
	data = append(data, clut...)
	return append(data, pix...)
}

func TestDecodeTI4(t *testing.T) {
	clut := make([]byte, 16*4)
	clut[4*1+0], clut[4*1+3] = 0xFF, 0x80 // entry 1: opaque red
	clut[4*2+2], clut[4*2+3] = 0xFF, 0x40 // entry 2: half blue

	img, err := DecodeTI(tiFile(0, 2, 1, clut, []byte{0x21}), "a.ti", nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0xFFFF0000, 0x7F0000FF}, img.Pix)
}

func TestDecodeTI8CSM1(t *testing.T) {
	clut := make([]byte, 256*4)
	// Stored entry 16 is linear entry 8.
	clut[16*4+1], clut[16*4+3] = 0xFF, 0x80

	img, err := DecodeTI(tiFile(1, 1, 1, clut, []byte{8}), "b.ti", nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFF00FF00), img.Pix[0])
}

func TestDecodeTIExternalPalette(t *testing.T) {
	data := tiFile(0, 2, 1, nil, []byte{0x10})

	_, err := DecodeTI(data, "c.ti", nil)
	assert.ErrorIs(t, err, pixel.ErrNoPalette)

	pal := make(pixel.Palette, 16)
	pal[1] = 0xFF123456
	provider := pixel.PaletteFunc(func(name string) (pixel.Palette, error) {
		assert.Equal(t, "c.ti", name)
		return pal, nil
	})
	img, err := DecodeTI(data, "c.ti", provider)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 0xFF123456}, img.Pix)
}

func TestDecodeTITruncatedCLUTFile(t *testing.T) {
	// 4×4 at 4bpp needs a 64-byte CLUT and 8 pixel bytes; only half the pixels are present.
	data := tiFile(0, 4, 4, make([]byte, 16*4), make([]byte, 4))

	_, err := ParseTIHeader(data)
	var truncated *pixel.TruncatedDataError
	require.True(t, errors.As(err, &truncated))
	assert.Equal(t, tiOffCLUT+16*4+8, truncated.Need)
	assert.Equal(t, len(data), truncated.Have)

	_, err = DecodeTI(data, "t.ti", nil)
	assert.True(t, errors.As(err, &truncated))
}

func TestScoreTI(t *testing.T) {
	clut := make([]byte, 16*4)
	exact := tiFile(0, 2, 2, clut, make([]byte, 2))
	padded := append(append([]byte(nil), exact...), make([]byte, 16)...)

	tests := []struct {
		name string
		data []byte
		ext  string
		want int
	}{
		{"ExactWithExtension", exact, ".ti", 70},
		{"ExactWithoutExtension", exact, ".bin", 40},
		{"PaddedWithExtension", padded, ".ti", 50},
		{"PaddedWithoutExtension", padded, ".bin", 0},
		{"TruncatedWithExtension", exact[:len(exact)-1], ".ti", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := scoreTI(cursor.New(tt.data), arbiter.Hints{Ext: tt.ext, Size: len(tt.data)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, score)
		})
	}
}

func TestPatchTI(t *testing.T) {
	src := tiFile(1, 4, 2, make([]byte, 256*4), make([]byte, 8))
	img, err := pixel.New(4, 2)
	require.NoError(t, err)
	for i := range img.Pix {
		img.Pix[i] = pixel.ARGB(0xFF, uint8(i*30), 0, uint8(255-i*30))
	}

	patched, err := PatchTI(src, img)
	require.NoError(t, err)
	require.Len(t, patched, len(src))

	back, err := DecodeTI(patched, "p.ti", nil)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, back.Pix)

	small, _ := pixel.New(2, 2)
	_, err = PatchTI(src, small)
	assert.Error(t, err)
}

func TestRegistryDispatch(t *testing.T) {
	reg := arbiter.New()
	require.NoError(t, Register(reg))
	assert.Len(t, reg.Candidates(), 4)

	dds := legacyDDS(t, fourCC("DXT1"), 4, 4, 1, 0, redDXT1)
	_, name, err := reg.Dispatch(context.Background(), &arbiter.Request{Name: "tex.dds", Data: dds})
	require.NoError(t, err)
	assert.Equal(t, "dds", name)

	meta := &TextureMetadata{Width: 4, Height: 4, MipLevels: 1, DXGIFormat: DXGIFormatBC1Unorm, RawFileSize: 8, ArraySize: 1}
	siblings := map[string][]byte{"0badf00d" + MetadataSuffix: meta.Bytes()}
	req := &arbiter.Request{
		Name: "0badf00d",
		Data: redDXT1,
		FindSibling: func(name string) ([]byte, bool) {
			b, ok := siblings[name]
			return b, ok
		},
	}
	img, name, err := reg.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "evr-raw", name)
	assert.Equal(t, uint32(0xFFFF0000), img.Pix[0])

	_, _, err = reg.Dispatch(context.Background(), &arbiter.Request{Name: "noise", Data: []byte{1, 2, 3}})
	assert.ErrorIs(t, err, arbiter.ErrNoCandidate)
}
