package psx

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hansbonini/galtools/pkg/common"
)

// CueSheet is the part of a cue sheet the image model uses: the first FILE
// and the tracks it holds
type CueSheet struct {
	File     string
	FileType string
	Tracks   []CueTrack

	lines []string
}

// CueTrack is a TRACK entry of a cue sheet
type CueTrack struct {
	Number int
	Mode   string
}

// SectorFormat maps the track mode to the format of its sectors
func (t CueTrack) SectorFormat() (SectorFormat, error) {
	switch strings.ToUpper(t.Mode) {
	case "MODE2/2352":
		return FormatMode2, nil
	case "MODE1/2352":
		return FormatMode1, nil
	case "MODE1/2048", "MODE2/2048":
		return FormatCooked, nil
	default:
		return FormatCooked, fmt.Errorf("track %d: unsupported mode %s", t.Number, t.Mode)
	}
}

// ParseCue reads a cue sheet. Only the first FILE is kept; tracks stored in
// later files are logged and ignored.
func ParseCue(r io.Reader) (*CueSheet, error) {
	sheet := &CueSheet{}
	files := 0

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		sheet.lines = append(sheet.lines, line)

		fields, err := cueFields(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if len(fields) == 0 {
			continue
		}

		switch strings.ToUpper(fields[0]) {
		case "FILE":
			files++
			if files > 1 {
				continue
			}
			if len(fields) < 2 {
				return nil, fmt.Errorf("line %d: FILE without a file name", lineNo)
			}
			sheet.File = fields[1]
			if len(fields) > 2 {
				sheet.FileType = strings.ToUpper(fields[2])
			}
		case "TRACK":
			if len(fields) < 3 {
				return nil, fmt.Errorf("line %d: TRACK needs a number and a mode", lineNo)
			}
			number, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid track number %q", lineNo, fields[1])
			}
			track := CueTrack{Number: number, Mode: strings.ToUpper(fields[2])}
			if files == 0 {
				return nil, fmt.Errorf("line %d: TRACK before FILE", lineNo)
			}
			if files > 1 {
				common.LogWarn(common.WarnCueTrackIgnored, track.Number, track.Mode)
				continue
			}
			sheet.Tracks = append(sheet.Tracks, track)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if sheet.File == "" {
		return nil, fmt.Errorf("no FILE entry")
	}
	if len(sheet.Tracks) == 0 {
		return nil, fmt.Errorf("no TRACK entry for %s", sheet.File)
	}
	for _, track := range sheet.Tracks[1:] {
		common.LogWarn(common.WarnCueTrackIgnored, track.Number, track.Mode)
	}
	return sheet, nil
}

// DataTrack returns the first track of the first file, which must hold data
func (c *CueSheet) DataTrack() (CueTrack, SectorFormat, error) {
	track := c.Tracks[0]
	format, err := track.SectorFormat()
	return track, format, err
}

// Rewrite returns the cue sheet with its first FILE pointing at file
func (c *CueSheet) Rewrite(file string) string {
	var b strings.Builder
	replaced := false
	for _, line := range c.lines {
		fields, _ := cueFields(line)
		if !replaced && len(fields) > 0 && strings.EqualFold(fields[0], "FILE") {
			indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			fileType := c.FileType
			if fileType == "" {
				fileType = "BINARY"
			}
			fmt.Fprintf(&b, "%sFILE \"%s\" %s\n", indent, file, fileType)
			replaced = true
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// NewCue returns a single-track cue sheet for a data file
func NewCue(file string, format SectorFormat) string {
	return fmt.Sprintf("FILE \"%s\" BINARY\n  TRACK 01 %s\n    INDEX 01 00:00:00\n", file, format)
}

// cueFields splits a cue line into fields, honouring double quotes
func cueFields(line string) ([]string, error) {
	var fields []string
	rest := strings.TrimSpace(line)
	for rest != "" {
		if rest[0] == '"' {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated quote in %q", line)
			}
			fields = append(fields, rest[1:end+1])
			rest = strings.TrimSpace(rest[end+2:])
			continue
		}
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			fields = append(fields, rest)
			break
		}
		fields = append(fields, rest[:end])
		rest = strings.TrimSpace(rest[end:])
	}
	return fields, nil
}
