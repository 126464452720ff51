package msgdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/hansbonini/galtools/pkg/archive"
)

// Control codes of the Japanese text engine
const (
	CodeReturn   uint16 = 0x8001
	CodeWait     uint16 = 0x8002
	CodePause    uint16 = 0x8003
	CodeLine     uint16 = 0x8004
	CodeYesNo    uint16 = 0x8005
	CodeColor    uint16 = 0x8006
	kanjiBit     uint16 = 0x800
	maxKanjiCode uint16 = 0xFFF
)

var controlNames = map[uint16]byte{
	CodeReturn: 'r',
	CodeWait:   'w',
	CodePause:  'p',
	CodeLine:   'l',
	CodeYesNo:  'y',
	CodeColor:  'c',
}

var controlCodes = func() map[byte]uint16 {
	m := make(map[byte]uint16, len(controlNames))
	for code, name := range controlNames {
		m[name] = code
	}
	return m
}()

var basicCodes = func() map[rune]uint16 {
	m := make(map[rune]uint16, len(basicTable))
	for i, r := range basicTable {
		if _, seen := m[r]; !seen && r != 0 {
			m[r] = uint16(i)
		}
	}
	return m
}()

func isBasic(r rune) bool {
	_, ok := basicCodes[r]
	return ok
}

func takesArgument(code uint16) bool {
	low := code & 0xFF
	return code&0xC000 != 0 && (low == 3 || low == 6)
}

// KanjiPages is the number of kanji page slots
func KanjiPages() int { return len(kanjiPages) }

// kanjiPage returns the page and its reverse map, in which the first
// occurrence of a character wins
func kanjiPage(page int) ([]rune, map[rune]uint16, error) {
	if page < 0 || page >= len(kanjiPages) {
		return nil, nil, fmt.Errorf("kanji page %d out of range 0-%d", page, len(kanjiPages)-1)
	}
	kanji := kanjiPages[page]
	codes := make(map[rune]uint16, len(kanji))
	for i := len(kanji) - 1; i >= 0; i-- {
		codes[kanji[i]] = kanjiBit | uint16(i)
	}
	return kanji, codes, nil
}

// DecodeJapanese renders a raw Japanese string as text. Codes with no
// printable form are written as escapes so that EncodeJapanese restores the
// exact bytes.
func DecodeJapanese(data []byte, page int) (string, error) {
	kanji, kanjiCodes, err := kanjiPage(page)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	expectArgument := false
	for _, code := range Codes(data) {
		if expectArgument {
			fmt.Fprintf(&sb, "(%d)", code)
			expectArgument = false
			continue
		}

		switch {
		case code&0xC000 != 0:
			if name, ok := controlNames[code]; ok {
				sb.WriteByte('$')
				sb.WriteByte(name)
			} else {
				fmt.Fprintf(&sb, "$u(%d)", code)
			}
			expectArgument = takesArgument(code)
		case code >= kanjiBit && code <= maxKanjiCode:
			index := int(code - kanjiBit)
			if index < len(kanji) && kanjiCodes[kanji[index]] == code && !isBasic(kanji[index]) {
				sb.WriteRune(kanji[index])
			} else {
				fmt.Fprintf(&sb, "$k(%d)", index)
			}
		case int(code) < len(basicTable):
			r := basicTable[code]
			switch {
			case r == '$':
				sb.WriteString("$$")
			case r == 0 || basicCodes[r] != code:
				fmt.Fprintf(&sb, "$u(%d)", code)
			default:
				sb.WriteRune(r)
			}
		default:
			fmt.Fprintf(&sb, "$u(%d)", code)
		}
	}
	return sb.String(), nil
}

// EncodeJapanese converts text back to a raw Japanese string
func EncodeJapanese(text string, page int) ([]byte, error) {
	_, kanjiCodes, err := kanjiPage(page)
	if err != nil {
		return nil, err
	}

	runes := []rune(text)
	var codes []uint16
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '$' {
			if code, ok := basicCodes[r]; ok {
				codes = append(codes, code)
			} else if code, ok := kanjiCodes[r]; ok {
				codes = append(codes, code)
			} else {
				return nil, fmt.Errorf("character %q at %d has no code on kanji page %d", r, i, page)
			}
			continue
		}

		i++
		if i >= len(runes) {
			return nil, fmt.Errorf("dangling $ at end of text")
		}
		escape := runes[i]
		var code uint16
		switch {
		case escape == '$':
			code = basicCodes['$']
		case escape == 'k' || escape == 'u':
			value, next, err := parseArgument(runes, i+1)
			if err != nil {
				return nil, fmt.Errorf("$%c: %w", escape, err)
			}
			i = next
			if escape == 'k' {
				if value > int(maxKanjiCode-kanjiBit) {
					return nil, fmt.Errorf("$k(%d) out of range", value)
				}
				code = kanjiBit | uint16(value)
			} else {
				code = uint16(value)
			}
		default:
			named, ok := controlCodes[byte(escape)]
			if !ok || escape > 0x7F {
				return nil, fmt.Errorf("unknown control code $%c", escape)
			}
			code = named
		}
		codes = append(codes, code)

		// The argument of a control code follows in parentheses, except at
		// the very end of a string
		if takesArgument(code) && i+1 < len(runes) && runes[i+1] == '(' {
			value, next, err := parseArgument(runes, i+1)
			if err != nil {
				return nil, fmt.Errorf("argument of code 0x%04X: %w", code, err)
			}
			i = next
			codes = append(codes, uint16(value))
		}
	}

	out := make([]byte, 0, 2*len(codes))
	for _, code := range codes {
		out = binary.LittleEndian.AppendUint16(out, code)
	}
	return out, nil
}

// parseArgument reads "(n)" starting at runes[start] and returns n and the
// index of the closing parenthesis
func parseArgument(runes []rune, start int) (int, int, error) {
	if start >= len(runes) || runes[start] != '(' {
		return 0, 0, fmt.Errorf("expected ( at %d", start)
	}
	end := start + 1
	for end < len(runes) && runes[end] != ')' {
		end++
	}
	if end >= len(runes) {
		return 0, 0, fmt.Errorf("missing ) after %d", start)
	}
	value, err := strconv.Atoi(string(runes[start+1 : end]))
	if err != nil || value < 0 || value >= terminator {
		return 0, 0, fmt.Errorf("invalid value %q", string(runes[start+1:end]))
	}
	return value, end, nil
}

// DecodeLatin converts a Windows-1252 string to UTF-8
func DecodeLatin(data []byte) (string, error) {
	text, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(text), nil
}

// EncodeLatin converts UTF-8 text to Windows-1252
func EncodeLatin(text string) ([]byte, error) {
	data, err := charmap.Windows1252.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("text %q is not representable in Windows-1252: %w", text, err)
	}
	return data, nil
}

// ExportText renders entries as UTF-8 text, one string per line
func ExportText(entries []archive.Entry, variant archive.Variant, page int) ([]byte, error) {
	var buf bytes.Buffer
	for i, entry := range entries {
		var line string
		var err error
		if variant == Japanese {
			line, err = DecodeJapanese(entry.Data, page)
		} else {
			line, err = DecodeLatin(entry.Data)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode string %d: %w", i, err)
		}
		if strings.ContainsAny(line, "\r\n") {
			return nil, fmt.Errorf("failed to decode string %d: contains a line break", i)
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// ImportText parses text written by ExportText back into entries
func ImportText(text []byte, variant archive.Variant, page int) ([]archive.Entry, error) {
	lines := strings.Split(string(text), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	entries := make([]archive.Entry, len(lines))
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		var data []byte
		var err error
		if variant == Japanese {
			data, err = EncodeJapanese(line, page)
		} else {
			data, err = EncodeLatin(line)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to encode line %d: %w", i+1, err)
		}
		entries[i] = archive.NewEntry(archive.EntryName(i, ""), data)
	}
	return entries, nil
}
