// Package dictionary implements the byte-pair dictionary compression used by
// compressed TIM databases.
//
// A frame is a u32 LE length followed by that many bytes of chunks and padding
// to a 4-byte boundary. Each chunk carries a 256-slot dictionary, where unused
// byte values stand for pairs of symbols, followed by a u16 BE symbol count and
// the symbols themselves. Symbols expand recursively until only literals remain.
package dictionary

import (
	"encoding/binary"

	"github.com/hansbonini/galtools/pkg/common"
)

// Name identifies the codec in errors and logs
const Name = "dictionary"

const (
	// ChunkSize is the amount of input covered by one dictionary
	ChunkSize = 5000

	dictionarySize = 0x100
	lengthSize     = 4
	streamLenSize  = 2
	// maxExpansion bounds the stack pops for one symbol so cyclic tables fail
	maxExpansion = 0x10000
)

// Block is one decompressed frame and the offset at which its frame starts.
type Block struct {
	Offset int
	Data   []byte
}

// pair is a dictionary slot. A slot whose left value equals its own index is a literal.
type pair struct {
	left, right byte
}

type table [dictionarySize]pair

func identityTable() *table {
	var t table
	for i := range t {
		t[i] = pair{byte(i), byte(i)}
	}
	return &t
}

// Decompress expands the first frame in data.
func Decompress(data []byte) ([]byte, error) {
	block, _, err := decompressFrame(data, 0)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return []byte{}, nil
	}
	return block.Data, nil
}

// DecompressAll expands consecutive frames until the data runs out or a frame
// with a zero length is found.
func DecompressAll(data []byte) ([]Block, error) {
	var blocks []Block
	offset := 0
	for offset < len(data) {
		block, next, err := decompressFrame(data, offset)
		if err != nil {
			return nil, err
		}
		if block == nil {
			break
		}
		blocks = append(blocks, *block)
		offset = next
	}
	return blocks, nil
}

// FrameSize returns the number of bytes occupied by the frame at the start of
// data, padding included, without expanding it.
func FrameSize(data []byte) (int, error) {
	if len(data) < lengthSize {
		return 0, common.NewCorruptDataError(Name, 0, "frame header needs %d bytes, have %d", lengthSize, len(data))
	}
	dataLen := int(binary.LittleEndian.Uint32(data))
	end := lengthSize + dataLen
	if dataLen > len(data)-lengthSize {
		return 0, common.NewCorruptDataError(Name, 0, "declared length %d exceeds %d available bytes",
			dataLen, len(data)-lengthSize)
	}
	return min(end+padding(dataLen), len(data)), nil
}

func padding(dataLen int) int {
	return (4 - dataLen&3) & 3
}

// decompressFrame expands the frame at offset. A nil block means a zero-length
// terminator was found.
func decompressFrame(data []byte, offset int) (*Block, int, error) {
	r := &reader{data: data, pos: offset}

	header, err := r.bytes(lengthSize)
	if err != nil {
		return nil, 0, err
	}
	dataLen := int(binary.LittleEndian.Uint32(header))
	if dataLen == 0 {
		return nil, r.pos, nil
	}
	if dataLen > len(data)-r.pos {
		return nil, 0, common.NewCorruptDataError(Name, int64(offset),
			"declared length %d exceeds %d available bytes", dataLen, len(data)-r.pos)
	}

	// Chunks must stay inside the declared frame
	r.end = r.pos + dataLen
	output := make([]byte, 0, dataLen*2)

	for r.pos < r.end {
		dict, err := readTable(r)
		if err != nil {
			return nil, 0, err
		}

		lenBytes, err := r.bytes(streamLenSize)
		if err != nil {
			return nil, 0, err
		}
		stream, err := r.bytes(int(binary.BigEndian.Uint16(lenBytes)))
		if err != nil {
			return nil, 0, err
		}

		output, err = expand(output, dict, stream, r.pos-len(stream))
		if err != nil {
			return nil, 0, err
		}
	}

	// Padding may be cut short at the very end of the buffer
	r.end = len(data)
	for i := 0; i < padding(dataLen) && r.pos < len(data); i++ {
		b := data[r.pos]
		if b != 0 && b != '0' {
			return nil, 0, common.NewCorruptDataError(Name, int64(r.pos), "invalid padding byte 0x%02X", b)
		}
		r.pos++
	}

	common.LogDebug("Dictionary frame at 0x%X: %d -> %d bytes", offset, dataLen, len(output))
	return &Block{Offset: offset, Data: output}, r.pos, nil
}

// readTable parses a serialized dictionary.
func readTable(r *reader) (*table, error) {
	dict := identityTable()
	index := 0
	for index != dictionarySize {
		control, err := r.byte()
		if err != nil {
			return nil, err
		}

		count := 1
		if control < 0x80 {
			count = int(control) + 1
		} else {
			index += int(control) - 0x7F
			if index > dictionarySize {
				return nil, common.NewCorruptDataError(Name, int64(r.pos-1),
					"dictionary index advanced past 0x%X", dictionarySize)
			}
		}

		for ; count > 0 && index != dictionarySize; count-- {
			left, err := r.byte()
			if err != nil {
				return nil, err
			}
			right := left
			if int(left) != index {
				if right, err = r.byte(); err != nil {
					return nil, err
				}
			}
			dict[index] = pair{left, right}
			index++
		}
	}
	return dict, nil
}

// expand appends the expansion of every symbol in stream to output.
func expand(output []byte, dict *table, stream []byte, streamOffset int) ([]byte, error) {
	stack := make([]byte, 0, 64)
	for i, symbol := range stream {
		stack = append(stack[:0], symbol)
		pops := 0
		for len(stack) > 0 {
			index := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			entry := dict[index]
			if entry.left == index {
				output = append(output, index)
			} else {
				stack = append(stack, entry.right, entry.left)
			}

			pops++
			if pops > maxExpansion {
				return nil, common.NewCorruptDataError(Name, int64(streamOffset+i),
					"symbol 0x%02X does not terminate", symbol)
			}
		}
	}
	return output, nil
}

// reader walks a frame with bounds checks that report truncation as corruption.
type reader struct {
	data []byte
	pos  int
	end  int
}

func (r *reader) limit() int {
	if r.end == 0 {
		return len(r.data)
	}
	return r.end
}

func (r *reader) byte() (byte, error) {
	if r.pos >= r.limit() {
		return 0, common.NewCorruptDataError(Name, int64(r.pos), "stream truncated")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n > r.limit()-r.pos {
		return nil, common.NewCorruptDataError(Name, int64(r.pos),
			"stream truncated: need %d bytes, have %d", n, r.limit()-r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}
