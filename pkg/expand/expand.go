// Package expand turns compressed byte streams back into the raw bytes a codec decodes.
package expand

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/DataDog/zstd"
	"github.com/goopsie/pixcodec/pkg/pixel"
	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
)

// MaxExpandedSize caps the output of every expander, declared or not. It matches the
// largest canonical image a codec will allocate.
const MaxExpandedSize = pixel.MaxPixels * 4

// Expander decompresses src. size is the expected output length; zero means unknown,
// which only formats that record their own length accept.
type Expander interface {
	Expand(src []byte, size int) ([]byte, error)
}

var (
	zstdFrameMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	lz4FrameMagic  = []byte{0x04, 0x22, 0x4D, 0x18}
)

// Zstd expands bare zstd frames and enveloped ones.
type Zstd struct{}

func (Zstd) String() string { return "zstd" }

// Expand implements Expander.
func (Zstd) Expand(src []byte, size int) ([]byte, error) {
	if err := checkLimit(size); err != nil {
		return nil, err
	}
	if bytes.HasPrefix(src, EnvelopeMagic[:]) {
		var env Envelope
		if err := env.UnmarshalBinary(src); err != nil {
			return nil, err
		}
		if size > 0 && uint64(size) != env.Length {
			return nil, fmt.Errorf("envelope holds %d bytes, want %d", env.Length, size)
		}
		if env.Length > MaxExpandedSize {
			return nil, &pixel.BoundsViolationError{Want: MaxExpandedSize, Got: clampInt(env.Length)}
		}
		if avail := uint64(len(src) - EnvelopeSize); env.CompressedLength > avail {
			need := math.MaxInt
			if env.CompressedLength < uint64(math.MaxInt-EnvelopeSize) {
				need = int(env.CompressedLength) + EnvelopeSize
			}
			return nil, &pixel.TruncatedDataError{Need: need, Have: len(src)}
		}
		src, size = src[EnvelopeSize:EnvelopeSize+int(env.CompressedLength)], int(env.Length)
	}

	if size == 0 {
		zr := zstd.NewReader(bytes.NewReader(src))
		defer zr.Close()
		out, err := readLimited(zr)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out, nil
	}
	out, err := zstd.Decompress(make([]byte, 0, size), src)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return checkSize(out, size)
}

// Zlib expands zlib streams.
type Zlib struct{}

func (Zlib) String() string { return "zlib" }

// Expand implements Expander.
func (Zlib) Expand(src []byte, size int) ([]byte, error) {
	if err := checkLimit(size); err != nil {
		return nil, err
	}
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer zr.Close()
	if size == 0 {
		out, err := readLimited(zr)
		if err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		return out, nil
	}
	out := make([]byte, size)
	if n, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("zlib: %w", &pixel.TruncatedDataError{Need: size, Have: n})
	}
	return out, nil
}

// LZ4 expands LZ4 frames and raw LZ4 blocks. Blocks carry no length, so size is required.
type LZ4 struct{}

func (LZ4) String() string { return "lz4" }

// Expand implements Expander.
func (LZ4) Expand(src []byte, size int) ([]byte, error) {
	if err := checkLimit(size); err != nil {
		return nil, err
	}
	if bytes.HasPrefix(src, lz4FrameMagic) {
		out, err := readLimited(lz4.NewReader(bytes.NewReader(src)))
		if err != nil {
			return nil, fmt.Errorf("lz4 frame: %w", err)
		}
		return checkSize(out, size)
	}
	if size == 0 {
		return nil, fmt.Errorf("lz4 block: expanded size required")
	}
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(src, out)
	if err != nil {
		return nil, fmt.Errorf("lz4 block: %w", err)
	}
	return checkSize(out[:n], size)
}

// checkLimit rejects a requested size that is negative or above MaxExpandedSize.
func checkLimit(size int) error {
	if size < 0 || size > MaxExpandedSize {
		return &pixel.BoundsViolationError{Want: MaxExpandedSize, Got: size}
	}
	return nil
}

// readLimited drains r, failing once more than MaxExpandedSize bytes come out.
func readLimited(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, MaxExpandedSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxExpandedSize {
		return nil, &pixel.BoundsViolationError{Want: MaxExpandedSize, Got: len(out)}
	}
	return out, nil
}

func clampInt(v uint64) int {
	if v > math.MaxInt {
		return math.MaxInt
	}
	return int(v)
}

func checkSize(out []byte, size int) ([]byte, error) {
	if size > 0 && len(out) != size {
		return nil, &pixel.TruncatedDataError{Need: size, Have: len(out)}
	}
	return out, nil
}

var byName = map[string]Expander{
	"zstd": Zstd{},
	"zlib": Zlib{},
	"lz4":  LZ4{},
}

// ByName returns the expander called name.
func ByName(name string) (Expander, error) {
	e, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown expander %q (have %v)", name, Names())
	}
	return e, nil
}

// Names lists the registered expander names.
func Names() []string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Sniff picks an expander from the leading bytes of src. Raw LZ4 blocks have no magic
// and are never sniffed.
func Sniff(src []byte) (Expander, bool) {
	switch {
	case bytes.HasPrefix(src, EnvelopeMagic[:]), bytes.HasPrefix(src, zstdFrameMagic):
		return Zstd{}, true
	case bytes.HasPrefix(src, lz4FrameMagic):
		return LZ4{}, true
	case len(src) >= 2 && src[0]&0x0F == 8 && src[0]>>4 <= 7 && (uint16(src[0])<<8|uint16(src[1]))%31 == 0:
		return Zlib{}, true
	}
	return nil, false
}
