package strategy

import (
	"sort"

	"github.com/spf13/cast"
)

// Params is a loosely typed strategy parameter set. Values may come from YAML,
// JSON or the optimizer grid, so accessors coerce rather than assert.
type Params map[string]any

// Float returns key as float64, or def when missing or not coercible
func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f
}

// Int returns key as int. Float values from a grid are truncated.
func (p Params) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	i, err := cast.ToIntE(v)
	if err == nil {
		return i
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return int(f)
}

// Bool returns key as bool
func (p Params) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// String returns key as string
func (p Params) String(key string, def string) string {
	v, ok := p[key]
	if !ok {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return s
}

// Merge returns a copy of p overlaid with override
func (p Params) Merge(override Params) Params {
	out := make(Params, len(p)+len(override))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
