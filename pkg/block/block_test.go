package block

import (
	"errors"
	"testing"

	"github.com/goopsie/pixcodec/pkg/cursor"
	"github.com/goopsie/pixcodec/pkg/pixel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(v uint32) []uint32 {
	out := make([]uint32, 16)
	for i := range out {
		out[i] = v
	}
	return out
}

func decodeOne(t *testing.T, f Format, data []byte) []uint32 {
	t.Helper()
	img, err := Decode(cursor.New(data), 4, 4, f)
	require.NoError(t, err)
	return img.Pix
}

func TestDecodeKnownBlocks(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		data   []byte
		want   []uint32
	}{
		{
			name:   "DXT1Red",
			format: DXT1,
			data:   []byte{0x00, 0xF8, 0x1F, 0x00, 0, 0, 0, 0},
			want:   solid(0xFFFF0000),
		},
		{
			name:   "DXT1ThreeColourTransparent",
			format: DXT1,
			data:   []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
			want:   solid(0),
		},
		{
			name:   "DXT3HalfAlpha",
			format: DXT3,
			data: []byte{
				0x88, 0x88, 0x88, 0x88, 0x88, 0x88, 0x88, 0x88,
				0x00, 0xF8, 0x00, 0x00, 0, 0, 0, 0,
			},
			want: solid(0x88FF0000),
		},
		{
			name:   "DXT5",
			format: DXT5,
			data: []byte{
				0x40, 0x00, 0, 0, 0, 0, 0, 0,
				0x00, 0xF8, 0x00, 0x00, 0, 0, 0, 0,
			},
			want: solid(0x40FF0000),
		},
		{
			name:   "DXT3ForcedFourColour",
			format: DXT3,
			data: []byte{
				0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
				0x00, 0x00, 0xFF, 0xFF, 0xAA, 0xAA, 0xAA, 0xAA,
			},
			want: solid(0xFF555555),
		},
		{
			name:   "BC4Grey",
			format: BC4,
			data:   []byte{0x40, 0x00, 0, 0, 0, 0, 0, 0},
			want:   solid(0xFF404040),
		},
		{
			name:   "BC4IndexOne",
			format: BC4,
			data:   []byte{0xFF, 0x00, 0x49, 0x92, 0x24, 0x49, 0x92, 0x24},
			want:   solid(0xFF000000),
		},
		{
			name:   "BC5",
			format: BC5,
			data: []byte{
				0x10, 0x00, 0, 0, 0, 0, 0, 0,
				0x20, 0x00, 0, 0, 0, 0, 0, 0,
			},
			want: solid(0xFF102000),
		},
		{
			name:   "BC7Mode6White",
			format: BC7,
			data: []byte{
				0xC0, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
				0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
			},
			want: solid(0xFFFFFFFF),
		},
		{
			name:   "BC7Mode0",
			format: BC7,
			data: []byte{
				0x95, 0x24, 0x44, 0x9A, 0xC7, 0xFA, 0x22, 0x36,
				0x5A, 0x86, 0x88, 0x56, 0x58, 0xD6, 0x04, 0xFB,
			},
			want: []uint32{
				0xFF3DB127, 0xFF2F706F, 0xFF26469E, 0xFF399C3E,
				0xFF197A33, 0xFF1DA986, 0xFF197A33, 0xFF197A33,
				0xFF6D4928, 0xFFA32C2D, 0xFF3A6523, 0xFF3A6523,
				0xFF217321, 0xFF6D4928, 0xFFD61031, 0xFF6D4928,
			},
		},
		{
			name:   "BC7Mode1",
			format: BC7,
			data: []byte{
				0xA2, 0xBB, 0xF9, 0xFD, 0xFA, 0xA7, 0xAC, 0xEE,
				0x65, 0xE6, 0xE1, 0xAA, 0x1B, 0x69, 0xFB, 0x27,
			},
			want: []uint32{
				0xFFEFEBBB, 0xFFEB9ADA, 0xFF8E3BA4, 0xFFD988D0,
				0xFFD7CCA1, 0xFF9B7E5E, 0xFFEB9ADA, 0xFF7C2899,
				0xFF8E3BA4, 0xFFD988D0, 0xFFB39D78, 0xFFB39D78,
				0xFFFDADE5, 0xFFFDADE5, 0xFF8E3BA4, 0xFFE3DCAE,
			},
		},
		{
			name:   "BC7Mode2",
			format: BC7,
			data: []byte{
				0x14, 0xFD, 0xC4, 0xFD, 0x34, 0xC2, 0xAD, 0xFD,
				0x72, 0xC8, 0xA0, 0x06, 0xF2, 0xE9, 0x6D, 0x77,
			},
			want: []uint32{
				0xFFF72118, 0xFF9CE794, 0xFFEFB552, 0xFFD3B520,
				0xFFF72118, 0xFFD96241, 0xFFEFB552, 0xFF6B9442,
				0xFFBAA66B, 0xFFD96241, 0xFF6B9442, 0xFF5BB734,
				0xFF9CE794, 0xFF5BB734, 0xFF6B9442, 0xFF39FF18,
			},
		},
		{
			name:   "BC7Mode3",
			format: BC7,
			data: []byte{
				0x38, 0x55, 0x76, 0x7C, 0x64, 0x6B, 0xE7, 0x0A,
				0x98, 0x06, 0xC3, 0xD2, 0xF9, 0xCF, 0x13, 0x1D,
			},
			want: []uint32{
				0xFF2B5B4D, 0xFF90024A, 0xFFD73F73, 0xFF90024A,
				0xFF777707, 0xFF777707, 0xFFF95D87, 0xFF90024A,
				0xFF777707, 0xFF2B5B4D, 0xFF446436, 0xFFF95D87,
				0xFF446436, 0xFF777707, 0xFF446436, 0xFF2B5B4D,
			},
		},
		{
			name:   "BC7Mode4RotatedSwapped",
			format: BC7,
			data: []byte{
				0xB0, 0x35, 0x0D, 0x63, 0x2E, 0x30, 0xE8, 0xD4,
				0xE1, 0x5F, 0x4A, 0x79, 0x61, 0x15, 0x18, 0x56,
			},
			want: []uint32{
				0x9F001C45, 0x9F041C45, 0x660C2A96, 0x74042682,
				0x4A0831BD, 0x91081F58, 0xAD081831, 0x830C236C,
				0x66002A96, 0x91001F58, 0xAD0C1831, 0x740C2682,
				0x9F0C1C45, 0x740C2682, 0x66082A96, 0x91001F58,
			},
		},
		{
			name:   "BC7Mode4",
			format: BC7,
			data: []byte{
				0x10, 0x96, 0xB9, 0x57, 0x33, 0xD7, 0x59, 0x70,
				0x73, 0x25, 0xFA, 0xBA, 0xE3, 0x4D, 0xBC, 0xCB,
			},
			want: []uint32{
				0x72B573AD, 0x75637BCE, 0x737E78C3, 0x74B573AD,
				0x73B573AD, 0x757E78C3, 0x71637BCE, 0x757E78C3,
				0x749A76B8, 0x727E78C3, 0x72637BCE, 0x747E78C3,
				0x737E78C3, 0x75B573AD, 0x729A76B8, 0x74B573AD,
			},
		},
		{
			name:   "BC7Mode5Rotated",
			format: BC7,
			data: []byte{
				0xA0, 0x55, 0xB3, 0xA5, 0x52, 0x46, 0xB5, 0x5F,
				0xA1, 0xDB, 0x02, 0xBA, 0x98, 0xE9, 0xE1, 0x17,
			},
			want: []uint32{
				0x2CABEDCB, 0x2CAB88CB, 0x2BB6BCA3, 0x2ACD8850,
				0x2BB6BCA3, 0x2ACD8850, 0x2BC28878, 0x2BB657A3,
				0x2BB6BCA3, 0x2CABEDCB, 0x2CAB88CB, 0x2CAB57CB,
				0x2BB657A3, 0x2ACDBC50, 0x2BB6BCA3, 0x2BB6EDA3,
			},
		},
		{
			name:   "BC7Mode7",
			format: BC7,
			data: []byte{
				0x80, 0xF8, 0x4A, 0xF4, 0x01, 0xEF, 0x59, 0x3A,
				0x26, 0xAE, 0x31, 0x84, 0x34, 0x3F, 0xBB, 0xF9,
			},
			want: []uint32{
				0x45555145, 0x1386916C, 0x1595C34E, 0x3051A640,
				0x1079618A, 0x1079618A, 0x45555145, 0x3051A640,
				0x1595C34E, 0x1079618A, 0x45555145, 0x1C4DF73C,
				0x18A2F330, 0x1C4DF73C, 0x1C4DF73C, 0x1595C34E,
			},
		},
		{
			name:   "BC7Reserved",
			format: BC7,
			data:   make([]byte, 16),
			want:   solid(0),
		},
		{
			name:   "ETC1IndividualPositive",
			format: ETC1,
			data:   []byte{0x88, 0x88, 0x88, 0x00, 0, 0, 0, 0},
			want:   solid(0xFF8A8A8A),
		},
		{
			name:   "ETC1IndividualNegative",
			format: ETC1,
			data:   []byte{0x88, 0x88, 0x88, 0x00, 0xFF, 0xFF, 0x00, 0x00},
			want:   solid(0xFF868686),
		},
		{
			name:   "ETC2RGBA8",
			format: ETC2RGBA8,
			data: []byte{
				0x80, 0x00, 0, 0, 0, 0, 0, 0,
				0x88, 0x88, 0x88, 0x00, 0, 0, 0, 0,
			},
			want: solid(0x808A8A8A),
		},
		{
			name:   "ETC2TMode",
			format: ETC2RGB,
			data:   []byte{0x15, 0xC1, 0xD2, 0xDF, 0xA9, 0x96, 0x4A, 0xEF},
			want: []uint32{
				0xFFFF62FF, 0xFFDD22DD, 0xFFDD22DD, 0xFF99CC11,
				0xFF9D009D, 0xFFFF62FF, 0xFFFF62FF, 0xFFDD22DD,
				0xFF9D009D, 0xFFFF62FF, 0xFF99CC11, 0xFFFF62FF,
				0xFFFF62FF, 0xFF9D009D, 0xFF9D009D, 0xFFDD22DD,
			},
		},
		{
			name:   "ETC2HMode",
			format: ETC2RGB,
			data:   []byte{0x41, 0x05, 0xCC, 0xA7, 0xB5, 0x33, 0x02, 0xFC},
			want: []uint32{
				0xFFC2C26D, 0xFF70701B, 0xFFC2C26D, 0xFFC2C26D,
				0xFFC2C26D, 0xFF70701B, 0xFF5F000A, 0xFFC2C26D,
				0xFF5F000A, 0xFF5F000A, 0xFFC2C26D, 0xFFB14B5C,
				0xFF5F000A, 0xFF5F000A, 0xFFB14B5C, 0xFFC2C26D,
			},
		},
		{
			name:   "ETC2Planar",
			format: ETC2RGB,
			data:   []byte{0x2F, 0xA9, 0x14, 0x27, 0xCB, 0x00, 0x88, 0x53},
			want: []uint32{
				0xFF5DA9C3, 0xFF59B2B3, 0xFF55BAA3, 0xFF51C392,
				0xFF4A8FA6, 0xFF469895, 0xFF42A085, 0xFF3EA975,
				0xFF377688, 0xFF337E78, 0xFF2F8768, 0xFF2B8F57,
				0xFF235C6B, 0xFF1F645A, 0xFF1B6D4A, 0xFF17753A,
			},
		},
		{
			name:   "ETC2RGBA1Opaque",
			format: ETC2RGBA1,
			data:   []byte{0x88, 0x88, 0x88, 0x00, 0, 0, 0, 0},
			want:   solid(0xFF8C8C8C),
		},
		{
			name:   "ETC2RGBA1Transparent",
			format: ETC2RGBA1,
			data:   []byte{0x88, 0x88, 0x88, 0x00, 0xFF, 0xFF, 0x00, 0x00},
			want:   solid(0),
		},
		{
			name:   "EACR11",
			format: EACR11,
			data:   []byte{0xFF, 0, 0, 0, 0, 0, 0, 0},
			want:   solid(0xFFFFFFFF),
		},
		{
			name:   "EACRG11",
			format: EACRG11,
			data: []byte{
				0xFF, 0, 0, 0, 0, 0, 0, 0,
				0x00, 0, 0, 0, 0, 0, 0, 0,
			},
			want: solid(0xFFFF0000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeOne(t, tt.format, tt.data)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Four DXT1 blocks laid out 2×2.
var dxt1Mosaic = []byte{
	0x00, 0xF8, 0x1F, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xE0, 0x07, 0x00, 0x00, 0xAA, 0xAA, 0xAA, 0xAA,
	0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0x00, 0x00, 0xE4, 0xE4, 0xE4, 0xE4,
}

func TestDecodeDXT1Mosaic(t *testing.T) {
	c := cursor.New(dxt1Mosaic)
	img, err := Decode(c, 8, 8, DXT1)
	require.NoError(t, err)
	assert.Equal(t, len(dxt1Mosaic), c.Pos())

	const (
		r = 0xFFFF0000
		g = 0xFF00AA00
		w = 0xFFFFFFFF
		k = 0xFF000000
		l = 0xFFAAAAAA
		d = 0xFF555555
	)
	want := []uint32{
		r, r, r, r, g, g, g, g,
		r, r, r, r, g, g, g, g,
		r, r, r, r, g, g, g, g,
		r, r, r, r, g, g, g, g,
		0, 0, 0, 0, w, k, l, d,
		0, 0, 0, 0, w, k, l, d,
		0, 0, 0, 0, w, k, l, d,
		0, 0, 0, 0, w, k, l, d,
	}
	assert.Equal(t, want, img.Pix)

	encoded, err := Encode(img, DXT1)
	require.NoError(t, err)
	require.Len(t, encoded, len(dxt1Mosaic))

	back, err := Decode(cursor.New(encoded), 8, 8, DXT1)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, back.Pix)
}

func TestEncodeDXT1Transparent(t *testing.T) {
	img, err := pixel.New(4, 4)
	require.NoError(t, err)
	for i := range img.Pix {
		if i%2 == 0 {
			img.Pix[i] = 0xFFFF0000
		}
	}

	data, err := Encode(img, DXT1)
	require.NoError(t, err)

	back, err := Decode(cursor.New(data), 4, 4, DXT1)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, back.Pix)
}

func TestEncodeDXT5Alpha(t *testing.T) {
	img, err := pixel.New(6, 5)
	require.NoError(t, err)
	for i := range img.Pix {
		img.Pix[i] = 0x000000FF
		if i%3 == 0 {
			img.Pix[i] |= 0xFF000000
		}
	}

	data, err := Encode(img, DXT5)
	require.NoError(t, err)
	assert.Len(t, data, DXT5.DataSize(6, 5))

	back, err := Decode(cursor.New(data), 6, 5, DXT5)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, back.Pix)
}

func TestEncodeDXT3(t *testing.T) {
	img, err := pixel.New(4, 4)
	require.NoError(t, err)
	copy(img.Pix, solid(0x88FF0000))

	data, err := Encode(img, DXT3)
	require.NoError(t, err)
	assert.Equal(t, solid(0x88FF0000), decodeOne(t, DXT3, data))
}

func TestEncodeETC(t *testing.T) {
	img, err := pixel.New(6, 6)
	require.NoError(t, err)
	for i := range img.Pix {
		img.Pix[i] = 0xFF406080
	}

	for _, f := range []Format{ETC1, ETC2RGB, ETC2RGBA8} {
		t.Run(f.String(), func(t *testing.T) {
			data, err := Encode(img, f)
			require.NoError(t, err)
			require.Len(t, data, f.DataSize(6, 6))

			back, err := Decode(cursor.New(data), 6, 6, f)
			require.NoError(t, err)
			for i, p := range back.Pix {
				a, r, g, b := pixel.Split(p)
				assert.Equal(t, uint8(0xFF), a, "pixel %d", i)
				assert.InDelta(t, 0x40, int(r), 8, "pixel %d", i)
				assert.InDelta(t, 0x60, int(g), 8, "pixel %d", i)
				assert.InDelta(t, 0x80, int(b), 8, "pixel %d", i)
			}
		})
	}
}

func TestEncodeUnsupported(t *testing.T) {
	img, _ := pixel.New(4, 4)
	_, err := Encode(img, BC7)
	var unsupported *pixel.UnsupportedFormatError
	assert.True(t, errors.As(err, &unsupported))
}

func TestDecodeCropsPartialBlocks(t *testing.T) {
	data := append(append([]byte{}, dxt1Mosaic[0:8]...), dxt1Mosaic[8:16]...)
	c := cursor.New(data)
	img, err := Decode(c, 5, 3, DXT1)
	require.NoError(t, err)

	assert.Equal(t, 5, img.Width)
	assert.Equal(t, 3, img.Height)
	assert.Len(t, img.Pix, 15)
	assert.Equal(t, uint32(0xFF00AA00), img.Pix[4])
	assert.Equal(t, 16, c.Pos(), "stored blocks are consumed whole")
}

func TestDecodeTruncated(t *testing.T) {
	c := cursor.New(make([]byte, 15))
	img, err := Decode(c, 8, 4, DXT1)
	var trunc *pixel.TruncatedDataError
	require.True(t, errors.As(err, &trunc))
	assert.Equal(t, 16, trunc.Need)
	assert.Nil(t, img)
	assert.Equal(t, 0, c.Pos())
}

func TestDecodeUnsupportedFormats(t *testing.T) {
	for _, f := range []Format{BC4S, BC5S, BC6HU, BC6HS} {
		t.Run(f.String(), func(t *testing.T) {
			_, err := Decode(cursor.New(make([]byte, 64)), 4, 4, f)
			var unsupported *pixel.UnsupportedFormatError
			require.True(t, errors.As(err, &unsupported))
			assert.Equal(t, f.String(), unsupported.Format)
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"BC1":        DXT1,
		"bc3":        DXT5,
		"dxt5":       DXT5,
		"ETC2_RGBA8": ETC2RGBA8,
		"bc7":        BC7,
	}
	for name, want := range tests {
		got, err := ParseFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseFormat("pvrtc")
	assert.Error(t, err)
}

func TestDataSize(t *testing.T) {
	assert.Equal(t, 8, DXT1.DataSize(1, 1))
	assert.Equal(t, 16*4, DXT5.DataSize(8, 5))
	assert.Equal(t, 8*4, ETC1.DataSize(8, 8))
}

func BenchmarkDecodeBC7(b *testing.B) {
	data := make([]byte, BC7.DataSize(256, 256))
	for i := 0; i < len(data); i += 16 {
		data[i] = 0x40
	}
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		if _, err := Decode(cursor.New(data), 256, 256, BC7); err != nil {
			b.Fatal(err)
		}
	}
}
