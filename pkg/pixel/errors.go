package pixel

import "fmt"

// TruncatedDataError reports that fewer bytes were available than a structure needs.
type TruncatedDataError struct {
	Need int
	Have int
}

func (e *TruncatedDataError) Error() string {
	return fmt.Sprintf("truncated data: need %d bytes, have %d", e.Need, e.Have)
}

// PaletteIndexOutOfRangeError reports a palette index at or beyond the palette length.
type PaletteIndexOutOfRangeError struct {
	Index int
	Size  int
}

func (e *PaletteIndexOutOfRangeError) Error() string {
	return fmt.Sprintf("palette index %d out of range for %d entries", e.Index, e.Size)
}

// InvalidDimensionError reports a non-positive or oversized width/height.
type InvalidDimensionError struct {
	Width  int
	Height int
}

func (e *InvalidDimensionError) Error() string {
	return fmt.Sprintf("invalid dimensions %dx%d", e.Width, e.Height)
}

// UnsupportedFormatError reports a recognised format that has no decoder.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format: %s", e.Format)
}

// BoundsViolationError reports a buffer whose size disagrees with its descriptor.
type BoundsViolationError struct {
	Want int
	Got  int
}

func (e *BoundsViolationError) Error() string {
	return fmt.Sprintf("bounds violation: descriptor covers %d bytes, buffer has %d", e.Want, e.Got)
}
