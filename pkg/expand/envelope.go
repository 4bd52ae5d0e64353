package expand

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/DataDog/zstd"
)

// EnvelopeMagic identifies a zstd envelope header.
var EnvelopeMagic = [4]byte{'Z', 'S', 'T', 'D'}

// EnvelopeSize is the fixed size of an envelope header.
const EnvelopeSize = 24

// envelopeFieldsLength is the byte count after the magic and length words.
const envelopeFieldsLength = 16

// DefaultCompressionLevel is used by EncodeEnvelope unless overridden.
const DefaultCompressionLevel = zstd.BestSpeed

// Envelope is the header some engines put in front of a zstd frame: the magic, the
// length of the remaining fields, then the expanded and compressed sizes.
type Envelope struct {
	Magic            [4]byte
	FieldsLength     uint32
	Length           uint64
	CompressedLength uint64
}

// Validate checks the header fields.
func (e *Envelope) Validate() error {
	if e.Magic != EnvelopeMagic {
		return fmt.Errorf("invalid envelope magic %x", e.Magic)
	}
	if e.FieldsLength != envelopeFieldsLength {
		return fmt.Errorf("invalid envelope header length %d", e.FieldsLength)
	}
	if e.Length == 0 || e.CompressedLength == 0 {
		return fmt.Errorf("envelope sizes must be non-zero (%d/%d)", e.Length, e.CompressedLength)
	}
	return nil
}

// MarshalBinary encodes the header.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	buf := make([]byte, EnvelopeSize)
	copy(buf[0:4], e.Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], e.FieldsLength)
	binary.LittleEndian.PutUint64(buf[8:16], e.Length)
	binary.LittleEndian.PutUint64(buf[16:24], e.CompressedLength)
	return buf, nil
}

// UnmarshalBinary decodes and validates the header at the start of data.
func (e *Envelope) UnmarshalBinary(data []byte) error {
	if len(data) < EnvelopeSize {
		return fmt.Errorf("envelope header too short: need %d, got %d", EnvelopeSize, len(data))
	}
	copy(e.Magic[:], data[0:4])
	e.FieldsLength = binary.LittleEndian.Uint32(data[4:8])
	e.Length = binary.LittleEndian.Uint64(data[8:16])
	e.CompressedLength = binary.LittleEndian.Uint64(data[16:24])
	return e.Validate()
}

type encodeConfig struct {
	level int
}

// EncodeOption configures EncodeEnvelope.
type EncodeOption func(*encodeConfig)

// WithCompressionLevel sets the zstd level.
func WithCompressionLevel(level int) EncodeOption {
	return func(c *encodeConfig) {
		c.level = level
	}
}

// EncodeEnvelope compresses data with zstd and writes it to dst behind an envelope header.
func EncodeEnvelope(dst io.Writer, data []byte, opts ...EncodeOption) error {
	cfg := encodeConfig{level: DefaultCompressionLevel}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(data) == 0 {
		return fmt.Errorf("encode envelope: no data")
	}

	compressed, err := zstd.CompressLevel(nil, data, cfg.level)
	if err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	header := Envelope{
		Magic:            EnvelopeMagic,
		FieldsLength:     envelopeFieldsLength,
		Length:           uint64(len(data)),
		CompressedLength: uint64(len(compressed)),
	}
	raw, _ := header.MarshalBinary()
	if _, err := dst.Write(raw); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := dst.Write(compressed); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
