// Package container serves files and their siblings out of a directory tree.
package container

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/goopsie/pixcodec/pkg/pixel"
)

// PaletteSuffixes are tried in order when looking up an external palette.
var PaletteSuffixes = []string{".palette", ".Palette", ".pal"}

// Dir is a read-only view of a directory. Names are slash-separated and relative to the
// root. Sibling lookups ignore case.
type Dir struct {
	fsys fs.FS

	mu      sync.Mutex
	listing map[string]map[string]string // dir -> lower-case name -> actual name
}

// Open returns a Dir rooted at root.
func Open(root string) (*Dir, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	return New(os.DirFS(root)), nil
}

// New wraps an existing file system.
func New(fsys fs.FS) *Dir {
	return &Dir{fsys: fsys, listing: make(map[string]map[string]string)}
}

// ReadFile returns the contents of name.
func (d *Dir) ReadFile(name string) ([]byte, error) {
	return fs.ReadFile(d.fsys, name)
}

func (d *Dir) names(dir string) (map[string]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.listing[dir]; ok {
		return m, nil
	}
	entries, err := fs.ReadDir(d.fsys, dir)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		lower := strings.ToLower(e.Name())
		// Case variants: the first in directory order wins.
		if _, ok := m[lower]; !ok {
			m[lower] = e.Name()
		}
	}
	d.listing[dir] = m
	return m, nil
}

// Resolve maps name to the actual file name in its directory, ignoring case.
func (d *Dir) Resolve(name string) (string, bool) {
	dir, base := path.Split(name)
	dir = path.Clean(dir)
	if _, err := fs.Stat(d.fsys, name); err == nil {
		return name, true
	}
	m, err := d.names(dir)
	if err != nil {
		return "", false
	}
	actual, ok := m[strings.ToLower(base)]
	if !ok {
		return "", false
	}
	return path.Join(dir, actual), true
}

// FindSibling reads name, matching the file name case-insensitively.
func (d *Dir) FindSibling(name string) ([]byte, bool) {
	actual, ok := d.Resolve(name)
	if !ok {
		return nil, false
	}
	data, err := d.ReadFile(actual)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Palette loads the palette stored next to name under one of PaletteSuffixes. It makes
// Dir a pixel.PaletteProvider.
func (d *Dir) Palette(name string) (pixel.Palette, error) {
	for _, suffix := range PaletteSuffixes {
		if data, ok := d.FindSibling(name + suffix); ok {
			pal, err := ParsePalette(data)
			if err != nil {
				return nil, fmt.Errorf("palette %s%s: %w", name, suffix, err)
			}
			return pal, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, pixel.ErrNoPalette)
}

// ParsePalette reads 16 or 256 entries stored as RGBA or RGB bytes. RGBA palettes whose
// alpha never exceeds 0x80 use PS2 alpha, where 0x80 is opaque.
func ParsePalette(data []byte) (pixel.Palette, error) {
	switch len(data) {
	case 16 * 4, 256 * 4:
		ps2 := true
		for i := 3; i < len(data); i += 4 {
			if data[i] > 0x80 {
				ps2 = false
				break
			}
		}
		pal := make(pixel.Palette, len(data)/4)
		for i := range pal {
			a := data[i*4+3]
			if ps2 {
				a = uint8(min(255, int(a)*255/128))
			}
			pal[i] = pixel.ARGB(a, data[i*4], data[i*4+1], data[i*4+2])
		}
		return pal, nil
	case 16 * 3, 256 * 3:
		pal := make(pixel.Palette, len(data)/3)
		for i := range pal {
			pal[i] = pixel.ARGB(0xFF, data[i*3], data[i*3+1], data[i*3+2])
		}
		return pal, nil
	}
	return nil, fmt.Errorf("unexpected palette size %d", len(data))
}

// Walk calls fn for every regular file under the root, skipping hidden files and
// directories.
func (d *Dir) Walk(fn func(name string) error) error {
	return fs.WalkDir(d.fsys, ".", func(name string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if name != "." && strings.HasPrefix(e.Name(), ".") {
			if e.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !e.Type().IsRegular() {
			return nil
		}
		return fn(name)
	})
}

// ErrNotFound is returned by Lookup for names that do not resolve.
var ErrNotFound = errors.New("file not found")

// Lookup reads name, falling back to a case-insensitive match.
func (d *Dir) Lookup(name string) ([]byte, error) {
	data, ok := d.FindSibling(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return data, nil
}
