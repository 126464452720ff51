// Package sniff identifies container formats from raw bytes.
//
// Candidates are tried in a fixed order, most specific first, and the first
// one whose detector accepts the data wins. The sniffer looks at one level
// only; whether to recurse into the entries of a match is up to the caller.
package sniff

import (
	"fmt"

	"github.com/hansbonini/galtools/pkg/archive"
	"github.com/hansbonini/galtools/pkg/archive/animdb"
	"github.com/hansbonini/galtools/pkg/archive/cdb"
	"github.com/hansbonini/galtools/pkg/archive/msgdb"
	"github.com/hansbonini/galtools/pkg/archive/timdb"
	"github.com/hansbonini/galtools/pkg/archive/vab"
	"github.com/hansbonini/galtools/pkg/common"
	"github.com/hansbonini/galtools/pkg/tim"
)

// Result names the matched format. An empty Format means no candidate
// matched.
type Result struct {
	Format  string
	Variant archive.Variant
}

// Known reports whether a candidate matched
func (r Result) Known() bool {
	return r.Format != ""
}

func (r Result) String() string {
	switch {
	case !r.Known():
		return "unknown"
	case r.Variant == "":
		return r.Format
	default:
		return fmt.Sprintf("%s/%s", r.Format, r.Variant)
	}
}

// Sniffer holds an ordered list of candidate detectors
type Sniffer struct {
	candidates []archive.Detector
}

// New returns a sniffer trying candidates in the given order
func New(candidates ...archive.Detector) *Sniffer {
	return &Sniffer{candidates: candidates}
}

// Default returns the sniffer used by the tools. Indexed message tables are
// recognised by their magic, TIM databases need every entry to parse, and
// the Japanese message layout has the weakest fingerprint so it goes last.
func Default() *Sniffer {
	messages := msgdb.New()
	return New(
		archive.Restrict(messages, msgdb.Latin),
		timdb.New(),
		tim.Detector{},
		cdb.New(),
		animdb.New(),
		vab.New(),
		archive.Restrict(messages, msgdb.Japanese),
	)
}

// Sniff returns the first candidate accepting data. It never fails.
func (s *Sniffer) Sniff(data []byte) Result {
	for _, candidate := range s.candidates {
		if variant, ok := candidate.Detect(data); ok {
			return Result{Format: candidate.Name(), Variant: variant}
		}
	}
	return Result{}
}

// Identify is Sniff for callers that treat an unknown format as an error.
// name is only used in the error message.
func (s *Sniffer) Identify(name string, data []byte) (Result, error) {
	result := s.Sniff(data)
	if !result.Known() {
		return result, &common.UnknownFormatError{Name: name, Size: len(data)}
	}
	common.LogDebug(common.InfoFormatDetected, name, result.Format, result.Variant)
	return result, nil
}
