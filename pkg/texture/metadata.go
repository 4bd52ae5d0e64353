package texture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MetadataSize is the fixed size of an Echo VR texture metadata file.
const MetadataSize = 256

// MetadataSuffix is appended to a raw texture's name to find its metadata sibling.
const MetadataSuffix = ".meta"

// TextureMetadata is the 256-byte descriptor stored next to headerless BC data.
type TextureMetadata struct {
	Width       uint32    // +0x00
	Height      uint32    // +0x04
	MipLevels   uint32    // +0x08
	DXGIFormat  uint32    // +0x0C
	DDSFileSize uint32    // +0x10: size with a DX10 DDS header
	RawFileSize uint32    // +0x14: size of the headerless data
	Flags       uint32    // +0x18
	ArraySize   uint32    // +0x1C
	Reserved    [224]byte // +0x20
}

// ParseMetadata reads texture metadata from r.
func ParseMetadata(r io.Reader) (*TextureMetadata, error) {
	var meta TextureMetadata
	if err := binary.Read(r, binary.LittleEndian, &meta); err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	return &meta, nil
}

// WriteTo writes the 256-byte little-endian form of m to w.
func (m *TextureMetadata) WriteTo(w io.Writer) (int64, error) {
	if err := binary.Write(w, binary.LittleEndian, m); err != nil {
		return 0, fmt.Errorf("write metadata: %w", err)
	}
	return MetadataSize, nil
}

// Bytes returns the encoded metadata.
func (m *TextureMetadata) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(MetadataSize)
	m.WriteTo(&buf) // writes to a bytes.Buffer cannot fail
	return buf.Bytes()
}

func (m *TextureMetadata) String() string {
	return fmt.Sprintf("%dx%d %s, %d mips, %d raw bytes (%d as DDS)",
		m.Width, m.Height, FormatName(m.DXGIFormat), m.MipLevels, m.RawFileSize, m.DDSFileSize)
}

// ConvertRawBCToDDS prefixes headerless texture data with a DX10 DDS header.
func ConvertRawBCToDDS(raw []byte, meta *TextureMetadata) ([]byte, error) {
	switch {
	case meta == nil:
		return nil, errors.New("convert raw texture: no metadata")
	case uint64(len(raw)) != uint64(meta.RawFileSize):
		return nil, fmt.Errorf("convert raw texture: have %d bytes, metadata says %d", len(raw), meta.RawFileSize)
	}
	return append(createDDSHeader(meta), raw...), nil
}
