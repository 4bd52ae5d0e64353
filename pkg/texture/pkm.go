package texture

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/nigeltao/etc2/lib/pkm"

	"github.com/goopsie/pixcodec/pkg/arbiter"
	"github.com/goopsie/pixcodec/pkg/block"
	"github.com/goopsie/pixcodec/pkg/cursor"
	"github.com/goopsie/pixcodec/pkg/pixel"
)

const pkmHeaderSize = 16

// PKMInfo is a parsed PKM header. All fields are big-endian on disk.
type PKMInfo struct {
	Version      string // "10" or "20"
	DataType     uint16
	PaddedWidth  int
	PaddedHeight int
	Width        int
	Height       int
	Format       block.Format
}

var pkmFormats = map[uint16]block.Format{
	0x00: block.ETC1,
	0x01: block.ETC2RGB,
	0x03: block.ETC2RGBA8,
	0x04: block.ETC2RGBA1,
	0x09: block.ETC2RGB, // sRGB
	0x0A: block.ETC2RGBA8,
	0x0B: block.ETC2RGBA1,
	0x05: block.EACR11,
	0x06: block.EACRG11,
	0x07: block.EACR11S,
	0x08: block.EACRG11S,
}

// ParsePKMHeader reads the 16-byte PKM header. Unlike pkm.DecodeConfig it accepts any
// known data type under either version string.
func ParsePKMHeader(c *cursor.Cursor) (*PKMInfo, error) {
	raw, err := c.Read(pkmHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(raw[0:4]) != pkm.Magic {
		return nil, fmt.Errorf("invalid PKM magic %q", raw[0:4])
	}
	info := &PKMInfo{
		Version:      string(raw[4:6]),
		DataType:     binary.BigEndian.Uint16(raw[6:8]),
		PaddedWidth:  int(binary.BigEndian.Uint16(raw[8:10])),
		PaddedHeight: int(binary.BigEndian.Uint16(raw[10:12])),
		Width:        int(binary.BigEndian.Uint16(raw[12:14])),
		Height:       int(binary.BigEndian.Uint16(raw[14:16])),
	}
	if info.Version != "10" && info.Version != "20" {
		return nil, fmt.Errorf("unknown PKM version %q", info.Version)
	}
	if info.PaddedWidth != (info.Width+3)&^3 || info.PaddedHeight != (info.Height+3)&^3 {
		return nil, fmt.Errorf("PKM padded size %dx%d does not match %dx%d",
			info.PaddedWidth, info.PaddedHeight, info.Width, info.Height)
	}
	f, ok := pkmFormats[info.DataType]
	if !ok {
		return nil, &pixel.UnsupportedFormatError{Format: fmt.Sprintf("PKM type %d", info.DataType)}
	}
	info.Format = f
	return info, nil
}

// DecodePKM decodes a PKM file.
func DecodePKM(data []byte) (*pixel.Image, error) {
	c := cursor.New(data)
	info, err := ParsePKMHeader(c)
	if err != nil {
		return nil, err
	}
	img, err := block.Decode(c, info.Width, info.Height, info.Format)
	if err != nil {
		return nil, err
	}
	img.Props.SetString(pixel.PropImageFormat, info.Format.String())
	img.Props.SetInt(pixel.PropMipmapCount, 1)
	return img, nil
}

// EncodePKM compresses img with one of the ETC or EAC formats and wraps it in a PKM
// header.
func EncodePKM(img *pixel.Image, f block.Format) ([]byte, error) {
	ef, ok := block.ETCFormat(f)
	if !ok {
		return nil, &pixel.UnsupportedFormatError{Format: f.String()}
	}
	var buf bytes.Buffer
	if err := pkm.Encode(&buf, img.ToNRGBA(), &pkm.EncodeOptions{Format: ef}); err != nil {
		return nil, fmt.Errorf("encode PKM: %w", err)
	}
	return buf.Bytes(), nil
}

func scorePKM(c *cursor.Cursor, h arbiter.Hints) (int, error) {
	var r arbiter.Rater
	magic, err := c.Peek(4)
	r.Require(err == nil && string(magic) == pkm.Magic, 40)
	r.Add(h.Ext == ".pkm", 10)
	if r.Failed() {
		return 0, nil
	}
	info, err := ParsePKMHeader(c)
	if err != nil {
		// Still ours; let the decoder report why.
		return r.Score(), nil
	}
	r.Add(true, 20)
	r.Add(pkmHeaderSize+info.Format.DataSize(info.Width, info.Height) <= h.Size, 20)
	return r.Score(), nil
}

func decodePKM(_ context.Context, c *cursor.Cursor, _ *arbiter.Request) arbiter.Result {
	img, err := DecodePKM(c.Bytes())
	if err != nil {
		return arbiter.Fail(err)
	}
	return arbiter.Ok(img)
}

// PKMCandidate decodes PKM ETC containers.
func PKMCandidate() arbiter.Candidate {
	return arbiter.Candidate{Name: "pkm", Score: scorePKM, Decode: decodePKM}
}
