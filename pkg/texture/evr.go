package texture

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goopsie/pixcodec/pkg/arbiter"
	"github.com/goopsie/pixcodec/pkg/cursor"
	"github.com/goopsie/pixcodec/pkg/pixel"
)

func findMetadata(name string, find pixel.FindSibling) (*TextureMetadata, bool) {
	if find == nil {
		return nil, false
	}
	data, ok := find(name + MetadataSuffix)
	if !ok || len(data) != MetadataSize {
		return nil, false
	}
	meta, err := ParseMetadata(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	return meta, true
}

func scoreRawBC(_ *cursor.Cursor, h arbiter.Hints) (int, error) {
	var r arbiter.Rater
	meta, ok := findMetadata(h.Name, h.Sibling)
	r.Require(ok, 20)
	if r.Failed() {
		return 0, nil
	}
	r.Require(int(meta.RawFileSize) == h.Size, 60)
	_, known := dxgiSurfaces[meta.DXGIFormat]
	r.Add(known, 10)
	return r.Score(), nil
}

// DecodeRawBC decodes headerless Echo VR texture data using its metadata.
func DecodeRawBC(data []byte, meta *TextureMetadata, full bool) (*pixel.Image, error) {
	dds, err := ConvertRawBCToDDS(data, meta)
	if err != nil {
		return nil, err
	}
	return DecodeDDS(dds, full)
}

func decodeRawBC(_ context.Context, c *cursor.Cursor, req *arbiter.Request) arbiter.Result {
	meta, ok := findMetadata(req.Name, req.FindSibling)
	if !ok {
		return arbiter.Skip()
	}
	img, err := DecodeRawBC(c.Bytes(), meta, req.Full)
	if err != nil {
		return arbiter.Fail(fmt.Errorf("raw texture %s: %w", req.Name, err))
	}
	return arbiter.Ok(img)
}

// RawBCCandidate decodes headerless BC data with a .meta sibling.
func RawBCCandidate() arbiter.Candidate {
	return arbiter.Candidate{Name: "evr-raw", Score: scoreRawBC, Decode: decodeRawBC}
}
