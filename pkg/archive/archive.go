// Package archive defines the contract shared by the container format drivers.
// This file contains the entry model, the driver interfaces and pack options.
package archive

import (
	"fmt"

	"github.com/hansbonini/galtools/pkg/common"
)

// Variant names a layout within a format family, e.g. "tdb" or "vda"
type Variant string

// Entry is one slot of a container. Its position in the slice is its index.
type Entry struct {
	Name    string
	Data    []byte
	Present bool           // false marks a gap that must survive a repack
	Attrs   map[string]int // per-entry layout details needed to rebuild the header
}

// Gap returns an absent entry named name
func Gap(name string) Entry {
	return Entry{Name: name}
}

// NewEntry returns a present entry
func NewEntry(name string, data []byte) Entry {
	return Entry{Name: name, Data: data, Present: true}
}

// Attr returns the named attribute or def when it is unset
func (e Entry) Attr(key string, def int) int {
	if v, ok := e.Attrs[key]; ok {
		return v
	}
	return def
}

// SetAttr records an attribute, allocating the map on first use
func (e *Entry) SetAttr(key string, value int) {
	if e.Attrs == nil {
		e.Attrs = make(map[string]int)
	}
	e.Attrs[key] = value
}

// Detector recognises a format from raw bytes
type Detector interface {
	// Name is the format family, e.g. "cdb"
	Name() string
	// Detect reports whether data is plausibly this format and which variant it is
	Detect(data []byte) (Variant, bool)
}

// Driver unpacks and packs one format family
type Driver interface {
	Detector
	// Variants lists the supported layouts, default first
	Variants() []Variant
	// Unpack splits data into entries. An empty variant auto-detects.
	Unpack(data []byte, variant Variant) ([]Entry, error)
	// Pack builds a container from entries
	Pack(entries []Entry, opts Options) ([]byte, error)
}

// Options control Pack
type Options struct {
	// Variant selects the layout; empty means the driver default
	Variant Variant
	// Placeholders keeps absent entries as gaps; otherwise they are dropped
	Placeholders bool
}

// DefaultOptions keeps gaps and uses the driver default layout
func DefaultOptions() Options {
	return Options{Placeholders: true}
}

// Prepare applies the placeholder option to entries
func (o Options) Prepare(entries []Entry) []Entry {
	if o.Placeholders {
		return entries
	}
	present := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Present {
			present = append(present, entry)
		}
	}
	return present
}

// ResolveVariant returns the variant to pack with, checking that d supports it
func ResolveVariant(d Driver, v Variant) (Variant, error) {
	variants := d.Variants()
	if v == "" {
		return variants[0], nil
	}
	for _, candidate := range variants {
		if candidate == v {
			return v, nil
		}
	}
	return "", common.WrapErrorf(common.ErrUnknownVariant, "%s %q (available: %v)", d.Name(), v, variants)
}

// DetectVariant resolves an unpack variant, detecting it when v is empty
func DetectVariant(d Driver, data []byte, v Variant) (Variant, error) {
	if v != "" {
		return ResolveVariant(d, v)
	}
	detected, ok := d.Detect(data)
	if !ok {
		return "", common.NewFormatError(d.Name(), common.NoIndex, 0, "%d bytes do not match any %s layout", len(data), d.Name())
	}
	return detected, nil
}

// EntryName builds the conventional NNN.EXT entry name
func EntryName(index int, ext string) string {
	if ext == "" {
		return fmt.Sprintf("%03d", index)
	}
	return fmt.Sprintf("%03d.%s", index, ext)
}

// CountPresent returns the number of present entries
func CountPresent(entries []Entry) int {
	n := 0
	for _, entry := range entries {
		if entry.Present {
			n++
		}
	}
	return n
}

type restricted struct {
	Detector
	variants []Variant
}

// Restrict returns a detector that only accepts the given variants of d
func Restrict(d Detector, variants ...Variant) Detector {
	return &restricted{Detector: d, variants: variants}
}

func (r *restricted) Detect(data []byte) (Variant, bool) {
	v, ok := r.Detector.Detect(data)
	if !ok {
		return "", false
	}
	for _, allowed := range r.variants {
		if v == allowed {
			return v, true
		}
	}
	return "", false
}
