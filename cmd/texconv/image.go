package main

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/goopsie/pixcodec/pkg/pixel"
	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// readImage loads any format the standard library or x/image can decode.
func readImage(path string) (*pixel.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return pixel.FromImage(src)
}

// scaled resizes img by factor with Catmull-Rom filtering.
func scaled(img *pixel.Image, factor float64) image.Image {
	if factor <= 0 || factor == 1 {
		return img
	}
	w := max(int(float64(img.Width)*factor), 1)
	h := max(int(float64(img.Height)*factor), 1)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img.ToNRGBA(), img.Bounds(), xdraw.Src, nil)
	return dst
}

// writeImage saves img in the format named by the path's extension.
func writeImage(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		err = png.Encode(f, img)
	case ".bmp":
		err = bmp.Encode(f, img)
	case ".tif", ".tiff":
		err = tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported output format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// writeFrames writes every frame of img. Extra frames get an index before the extension.
func writeFrames(path string, img *pixel.Image, factor float64) ([]string, error) {
	frames := pixel.Frames(img)
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)

	var written []string
	for i, frame := range frames {
		out := path
		if len(frames) > 1 {
			out = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		if err := writeImage(out, scaled(frame, factor)); err != nil {
			return written, err
		}
		written = append(written, out)
	}
	return written, nil
}
