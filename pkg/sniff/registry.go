package sniff

import (
	"fmt"

	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/hansbonini/galtools/pkg/archive/animdb"
	"github.com/hansbonini/galtools/pkg/archive/cdb"
	"github.com/hansbonini/galtools/pkg/archive/msgdb"
	"github.com/hansbonini/galtools/pkg/archive/timdb"
	"github.com/hansbonini/galtools/pkg/archive/vab"
)

// Drivers returns every container driver, in sniffing order
func Drivers() []archive.Driver {
	return []archive.Driver{
		msgdb.New(),
		timdb.New(),
		cdb.New(),
		animdb.New(),
		vab.New(),
	}
}

// Lookup returns the driver for a format family name
func Lookup(name string) (archive.Driver, error) {
	var names []string
	for _, d := range Drivers() {
		if d.Name() == name {
			return d, nil
		}
		names = append(names, d.Name())
	}
	return nil, fmt.Errorf("no driver for format %q (available: %v)", name, names)
}

// Unpackable reports whether a result can be unpacked by a container driver.
// A lone TIM is recognised but has no entries.
func Unpackable(r Result) bool {
	if !r.Known() {
		return false
	}
	_, err := Lookup(r.Format)
	return err == nil
}
