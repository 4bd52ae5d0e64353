package pixel

import "strconv"

// Well-known property keys used by adapters that re-encode what they decoded.
const (
	PropImageFormat = "ImageFormat"
	PropMipmapCount = "MipmapCount"
)

// Value is a property value: either a string or an int.
type Value struct {
	Str   string
	Int   int
	IsInt bool
}

func (v Value) String() string {
	if v.IsInt {
		return strconv.Itoa(v.Int)
	}
	return v.Str
}

// Properties is an insertion-ordered string-keyed map. The codec engine never reads it.
type Properties struct {
	keys []string
	vals map[string]Value
}

func (p *Properties) set(key string, v Value) {
	if p.vals == nil {
		p.vals = make(map[string]Value)
	}
	if _, ok := p.vals[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.vals[key] = v
}

// SetString stores a string value, keeping the original position of an existing key.
func (p *Properties) SetString(key, value string) { p.set(key, Value{Str: value}) }

// SetInt stores an int value.
func (p *Properties) SetInt(key string, value int) { p.set(key, Value{Int: value, IsInt: true}) }

// Get returns the raw value for key.
func (p *Properties) Get(key string) (Value, bool) {
	v, ok := p.vals[key]
	return v, ok
}

// String returns the value for key as a string; ints are formatted.
func (p *Properties) String(key string) (string, bool) {
	v, ok := p.vals[key]
	if !ok {
		return "", false
	}
	return v.String(), true
}

// Int returns the value for key if it was stored as an int.
func (p *Properties) Int(key string) (int, bool) {
	v, ok := p.vals[key]
	if !ok || !v.IsInt {
		return 0, false
	}
	return v.Int, true
}

// Keys returns keys in insertion order.
func (p *Properties) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Len returns the number of keys.
func (p *Properties) Len() int { return len(p.keys) }

// Clone returns an independent copy.
func (p *Properties) Clone() Properties {
	var out Properties
	for _, k := range p.keys {
		out.set(k, p.vals[k])
	}
	return out
}
