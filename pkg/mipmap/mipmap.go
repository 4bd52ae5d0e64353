// Package mipmap builds successively halved copies of an image for the texture write path.
package mipmap

import (
	"github.com/goopsie/pixcodec/pkg/pixel"
)

// Option configures Generate.
type Option func(*config)

type config struct {
	maxLevels int
}

// WithMaxLevels limits the chain to n levels including the base image. Values below 1 are
// ignored. Asking for more levels than the image supports stops at 1×1; see Shortfall.
func WithMaxLevels(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxLevels = n
		}
	}
}

// Levels returns the length of a full chain for a w×h image.
func Levels(w, h int) int {
	n := 1
	for w > 1 || h > 1 {
		w, h = max(w/2, 1), max(h/2, 1)
		n++
	}
	return n
}

// Generate returns img followed by each halved level down to 1×1. Level 0 is img itself.
// Each level is an area average of the one before it.
func Generate(img *pixel.Image, opts ...Option) ([]*pixel.Image, error) {
	if err := pixel.CheckDimensions(img.Width, img.Height); err != nil {
		return nil, err
	}
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	chain := []*pixel.Image{img}
	w, h := img.Width, img.Height
	for w > 1 || h > 1 {
		if cfg.maxLevels > 0 && len(chain) >= cfg.maxLevels {
			break
		}
		w, h = max(w/2, 1), max(h/2, 1)
		mip, err := resize(chain[len(chain)-1], w, h)
		if err != nil {
			return nil, err
		}
		chain = append(chain, mip)
	}
	return chain, nil
}

// Shortfall reports how many of the requested levels the chain could not provide.
func Shortfall(requested int, chain []*pixel.Image) int {
	return max(requested-len(chain), 0)
}

// resize area-averages src into a dw×dh image. Destination pixel dx covers source columns
// [dx*sw/dw, (dx+1)*sw/dw), and rows likewise.
func resize(src *pixel.Image, dw, dh int) (*pixel.Image, error) {
	dst, err := pixel.New(dw, dh)
	if err != nil {
		return nil, err
	}
	sw, sh := src.Width, src.Height

	for dy := 0; dy < dh; dy++ {
		y0, y1 := dy*sh/dh, max((dy+1)*sh/dh, dy*sh/dh+1)
		for dx := 0; dx < dw; dx++ {
			x0, x1 := dx*sw/dw, max((dx+1)*sw/dw, dx*sw/dw+1)

			var aSum, rSum, gSum, bSum, n int
			for sy := y0; sy < y1; sy++ {
				for sx := x0; sx < x1; sx++ {
					a, r, g, b := pixel.Split(src.Pix[sy*sw+sx])
					aSum += int(a)
					rSum += int(r)
					gSum += int(g)
					bSum += int(b)
					n++
				}
			}
			dst.Pix[dy*dw+dx] = pixel.ARGB(
				uint8((aSum+n/2)/n),
				uint8((rSum+n/2)/n),
				uint8((gSum+n/2)/n),
				uint8((bSum+n/2)/n),
			)
		}
	}
	return dst, nil
}
