package project

import (
	"fmt"
	"time"

	"github.com/hansbonini/galtools/pkg/common"
	"github.com/hansbonini/galtools/pkg/psx"
	digest "github.com/opencontainers/go-digest"
)

// ExportReport describes the outcome of an export
type ExportReport struct {
	Output    string
	Replaced  []string
	Unchanged []string // touched since the baseline but with identical content
	Flush     *psx.FlushReport
}

type baselineUpdate struct {
	index  int
	mtime  time.Time
	digest digest.Digest
}

// Export writes the files changed since their baseline into a patched copy
// of img at outPath. Baselines and the sidecar are only updated after the
// flush succeeds; on any failure the image is reset and the sidecar is left
// as it was.
func (p *Project) Export(img *psx.Image, outPath string) (*ExportReport, error) {
	report, updates, err := p.stage(img)
	if err != nil {
		img.Reset()
		return nil, err
	}
	if len(report.Replaced) == 0 {
		common.LogInfo(common.InfoNothingToExport)
		return report, nil
	}

	flush, err := img.Flush(outPath)
	if err != nil {
		img.Reset()
		return nil, err
	}
	report.Output = outPath
	report.Flush = flush

	for _, u := range updates {
		p.Files[u.index].Baseline = u.mtime
		p.Files[u.index].Digest = u.digest
	}
	p.LastExport = time.Now().UTC()
	p.LastOutput = outPath
	if err := p.Save(); err != nil {
		return nil, err
	}

	common.LogInfo(common.InfoProjectExported, len(report.Replaced), outPath)
	return report, nil
}

// stage queues the changed files on img and collects the baseline updates
// that apply once the flush succeeds
func (p *Project) stage(img *psx.Image) (*ExportReport, []baselineUpdate, error) {
	changed, err := p.Diff()
	if err != nil {
		return nil, nil, err
	}

	report := &ExportReport{}
	var updates []baselineUpdate
	for _, discPath := range changed {
		i, _ := p.record(discPath)
		rec := p.Files[i]

		mtime, err := p.modTime(rec)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", rec.Path, err)
		}
		data, err := p.content(rec)
		if err != nil {
			return nil, nil, err
		}

		sum := digest.FromBytes(data)
		updates = append(updates, baselineUpdate{index: i, mtime: mtime, digest: sum})
		if sum == rec.Digest {
			common.LogDebug(common.DebugFileUnchanged, rec.Path)
			report.Unchanged = append(report.Unchanged, rec.Path)
			continue
		}

		if err := img.ReplaceFile(rec.Path, data); err != nil {
			return nil, nil, err
		}
		report.Replaced = append(report.Replaced, rec.Path)
	}
	return report, updates, nil
}
