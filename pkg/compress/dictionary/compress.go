package dictionary

import (
	"encoding/binary"

	"github.com/hansbonini/galtools/pkg/common"
)

// minPairCount is the number of occurrences a pair needs before it earns a slot
const minPairCount = 4

// Compress encodes data as a single frame.
func Compress(data []byte) ([]byte, error) {
	body := make([]byte, 0, len(data)/2+dictionarySize)
	for start := 0; start < len(data); start += ChunkSize {
		end := min(start+ChunkSize, len(data))
		chunk, entries, streamLen := compressChunk(data[start:end])
		body = append(body, chunk...)
		common.LogDebug(common.DebugChunkCompressed, start, end-start, entries, streamLen)
	}

	dataLen, err := common.SafeIntToUint32(len(body))
	if err != nil {
		return nil, err
	}

	frame := make([]byte, lengthSize, lengthSize+len(body)+3)
	binary.LittleEndian.PutUint32(frame, dataLen)
	frame = append(frame, body...)
	for i := 0; i < padding(len(body)); i++ {
		frame = append(frame, '0')
	}
	return frame, nil
}

// CompressAll encodes each input as its own frame and concatenates the frames.
func CompressAll(inputs [][]byte) ([]byte, error) {
	var out []byte
	for _, input := range inputs {
		frame, err := Compress(input)
		if err != nil {
			return nil, err
		}
		out = append(out, frame...)
	}
	return out, nil
}

// compressChunk replaces the most frequent adjacent pair with an unused byte
// value until no pair repeats enough or every byte value is taken.
func compressChunk(chunk []byte) ([]byte, int, int) {
	var used [dictionarySize]bool
	for _, b := range chunk {
		used[b] = true
	}

	symbols := append([]byte(nil), chunk...)
	dict := identityTable()
	var assigned []byte

	next := 0
	var counts [dictionarySize * dictionarySize]int
	touched := make([]int, 0, len(symbols))
	for {
		for next < dictionarySize && used[next] {
			next++
		}
		if next == dictionarySize || len(symbols) < 2 {
			break
		}

		for _, key := range touched {
			counts[key] = 0
		}
		touched = touched[:0]
		for i := 0; i+1 < len(symbols); i++ {
			key := int(symbols[i])<<8 | int(symbols[i+1])
			if counts[key] == 0 {
				touched = append(touched, key)
			}
			counts[key]++
		}

		// ties go to the lowest pair
		best, bestCount := 0, 0
		for _, key := range touched {
			if count := counts[key]; count > bestCount || (count == bestCount && key < best) {
				best, bestCount = key, count
			}
		}
		if bestCount < minPairCount {
			break
		}

		code := byte(next)
		left, right := byte(best>>8), byte(best)
		used[code] = true
		dict[code] = pair{left, right}
		assigned = append(assigned, code)
		symbols = replacePair(symbols, left, right, code)
	}

	out := serializeTable(dict, assigned)
	out = binary.BigEndian.AppendUint16(out, uint16(len(symbols)))
	return append(out, symbols...), len(assigned), len(symbols)
}

// replacePair substitutes code for each non-overlapping left/right pair, scanning left to right.
func replacePair(symbols []byte, left, right, code byte) []byte {
	out := symbols[:0]
	for i := 0; i < len(symbols); i++ {
		if i+1 < len(symbols) && symbols[i] == left && symbols[i+1] == right {
			out = append(out, code)
			i++
			continue
		}
		out = append(out, symbols[i])
	}
	return out
}

// serializeTable writes the slots listed in codes, which must be ascending.
// Slots in between keep their identity mapping and are skipped over.
func serializeTable(dict *table, codes []byte) []byte {
	out := make([]byte, 0, len(codes)*3+4)
	current := 0

	for i := 0; i < len(codes); {
		target := int(codes[i])
		for target-current > 0x80 {
			out = append(out, 0xFF, byte(current+0x80))
			current += 0x81
		}

		if target > current {
			// A skip byte fills exactly one slot
			out = append(out, byte(0x7F+target-current))
			out = appendSlot(out, dict, target)
			current = target + 1
			i++
			continue
		}

		// Consecutive slots share one count byte
		run := 1
		for i+run < len(codes) && run < 0x80 && int(codes[i+run]) == target+run {
			run++
		}
		out = append(out, byte(run-1))
		for j := 0; j < run; j++ {
			out = appendSlot(out, dict, target+j)
		}
		current = target + run
		i += run
	}

	// Skip the remaining slots until the index reaches the end of the table
	for current < dictionarySize {
		diff := dictionarySize - current
		if diff <= 0x80 {
			out = append(out, byte(0x7F+diff))
			break
		}
		out = append(out, 0xFF, byte(current+0x80))
		current += 0x81
	}
	return out
}

func appendSlot(out []byte, dict *table, index int) []byte {
	entry := dict[index]
	if int(entry.left) == index {
		return append(out, entry.left)
	}
	return append(out, entry.left, entry.right)
}
