package pixel

// Transforms below swap in a freshly built Pix slice and return the receiver, so a caller
// still holding the old slice never observes a half-transformed buffer.

// FlipVertical reverses row order.
func (m *Image) FlipVertical() *Image {
	out := make([]uint32, len(m.Pix))
	for y := 0; y < m.Height; y++ {
		copy(out[(m.Height-1-y)*m.Width:(m.Height-y)*m.Width], m.Pix[y*m.Width:(y+1)*m.Width])
	}
	m.Pix = out
	return m
}

// SwapRedBlue exchanges the red and blue channels.
func (m *Image) SwapRedBlue() *Image {
	return m.mapPixels(func(p uint32) uint32 {
		return p&0xFF00FF00 | (p>>16)&0xFF | (p&0xFF)<<16
	})
}

// ReverseAlpha replaces each alpha a with 255-a.
func (m *Image) ReverseAlpha() *Image {
	return m.mapPixels(func(p uint32) uint32 { return p ^ 0xFF000000 })
}

// RemoveAlpha forces every pixel opaque.
func (m *Image) RemoveAlpha() *Image {
	return m.mapPixels(func(p uint32) uint32 { return p | 0xFF000000 })
}

func (m *Image) mapPixels(fn func(uint32) uint32) *Image {
	out := make([]uint32, len(m.Pix))
	for i, p := range m.Pix {
		out[i] = fn(p)
	}
	m.Pix = out
	return m
}

// Crop returns a new image holding the w×h region at (x, y). Properties are copied.
func (m *Image) Crop(x, y, w, h int) (*Image, error) {
	if x < 0 || y < 0 || x+w > m.Width || y+h > m.Height {
		return nil, &InvalidDimensionError{Width: w, Height: h}
	}
	out, err := New(w, h)
	if err != nil {
		return nil, err
	}
	for row := 0; row < h; row++ {
		copy(out.Pix[row*w:(row+1)*w], m.Pix[(y+row)*m.Width+x:])
	}
	out.Props = m.Props.Clone()
	return out, nil
}
