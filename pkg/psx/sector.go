package psx

import (
	"encoding/binary"
	"fmt"

	"github.com/hansbonini/galtools/pkg/common"
)

// SectorFormat is the on-disk shape of the sectors of a data track
type SectorFormat int

const (
	// FormatCooked stores only the 2048 bytes of user data per sector (.iso)
	FormatCooked SectorFormat = iota
	// FormatMode1 stores raw 2352-byte Mode 1 sectors
	FormatMode1
	// FormatMode2 stores raw 2352-byte Mode 2 XA sectors
	FormatMode2
)

func (f SectorFormat) String() string {
	switch f {
	case FormatMode1:
		return "MODE1/2352"
	case FormatMode2:
		return "MODE2/2352"
	default:
		return "MODE1/2048"
	}
}

// Size is the number of bytes a sector takes in the image file
func (f SectorFormat) Size() int {
	if f == FormatCooked {
		return CD_DATA_SIZE
	}
	return CD_SECTOR_SIZE
}

// DataOffset is where user data starts inside a stored sector
func (f SectorFormat) DataOffset() int {
	switch f {
	case FormatMode1:
		return CD_SYNC_SIZE + CD_HEADER_SIZE
	case FormatMode2:
		return CD_SYNC_SIZE + CD_HEADER_SIZE + CD_SUBHEADER_SIZE
	default:
		return 0
	}
}

// XA submode bits
const (
	SubmodeEOR  = 0x01
	SubmodeData = 0x08
	SubmodeForm = 0x20
	SubmodeEOF  = 0x80
	// SubmodeLast closes a file or directory extent
	SubmodeLast = SubmodeEOF | SubmodeData | SubmodeEOR
)

// Offsets inside a raw sector
const (
	mode1EDCOffset = 0x810
	form1EDCOffset = 0x818
	form2EDCOffset = 0x92C
	eccPOffset     = 0x81C
	eccQOffset     = 0x8C8
	submodeOffset  = 18
)

var syncPattern = [CD_SYNC_SIZE]byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

var (
	edcTable  [256]uint32
	eccFTable [256]byte
	eccBTable [256]byte
)

func init() {
	for i := 0; i < 256; i++ {
		j := byte(i << 1)
		if i&0x80 != 0 {
			j ^= 0x1D
		}
		eccFTable[i] = j
		eccBTable[byte(i)^j] = byte(i)

		edc := uint32(i)
		for k := 0; k < 8; k++ {
			if edc&1 != 0 {
				edc = edc>>1 ^ 0xD8018001
			} else {
				edc >>= 1
			}
		}
		edcTable[i] = edc
	}
}

// EDC computes the CD-ROM error detection code of data
func EDC(data []byte) uint32 {
	var edc uint32
	for _, b := range data {
		edc = edc>>8 ^ edcTable[byte(edc)^b]
	}
	return edc
}

// eccBlock computes one Reed-Solomon parity block over src into dst
func eccBlock(src []byte, majorCount, minorCount, majorMult, minorInc int, dst []byte) {
	size := majorCount * minorCount
	for major := 0; major < majorCount; major++ {
		index := (major>>1)*majorMult + major&1
		var a, b byte
		for minor := 0; minor < minorCount; minor++ {
			t := src[index]
			index += minorInc
			if index >= size {
				index -= size
			}
			a ^= t
			b ^= t
			a = eccFTable[a]
		}
		a = eccBTable[eccFTable[a]^b]
		dst[major] = a
		dst[major+majorCount] = a ^ b
	}
}

// generateECC fills the P and Q parity of a raw sector. Mode 2 sectors are
// computed with a zeroed address.
func generateECC(raw []byte, zeroAddress bool) {
	var saved [CD_HEADER_SIZE]byte
	if zeroAddress {
		copy(saved[:], raw[CD_SYNC_SIZE:])
		clear(raw[CD_SYNC_SIZE : CD_SYNC_SIZE+CD_HEADER_SIZE])
	}
	eccBlock(raw[CD_SYNC_SIZE:], 86, 24, 2, 86, raw[eccPOffset:])
	eccBlock(raw[CD_SYNC_SIZE:], 52, 43, 86, 88, raw[eccQOffset:])
	if zeroAddress {
		copy(raw[CD_SYNC_SIZE:], saved[:])
	}
}

func writeHeader(raw []byte, lba int64, mode byte) error {
	address, err := common.SafeInt64ToUint32(lba)
	if err != nil {
		return err
	}
	copy(raw, syncPattern[:])
	m, s, f := common.LBAToMSFParts(address)
	raw[12] = common.ToBCD(m)
	raw[13] = common.ToBCD(s)
	raw[14] = common.ToBCD(f)
	raw[15] = mode
	return nil
}

// EncodeSector builds the stored form of sector lba holding data, which is
// zero-padded to 2048 bytes. Raw Mode 2 sectors are written as Form 1 with
// the given XA submode.
func EncodeSector(format SectorFormat, raw []byte, lba int64, data []byte, submode byte) error {
	if len(data) > CD_DATA_SIZE {
		return fmt.Errorf("sector data of %d bytes exceeds %d", len(data), CD_DATA_SIZE)
	}
	if len(raw) != format.Size() {
		return fmt.Errorf("sector buffer of %d bytes, want %d", len(raw), format.Size())
	}
	clear(raw)

	switch format {
	case FormatCooked:
		copy(raw, data)
	case FormatMode1:
		if err := writeHeader(raw, lba, 1); err != nil {
			return err
		}
		copy(raw[16:], data)
		binary.LittleEndian.PutUint32(raw[mode1EDCOffset:], EDC(raw[:mode1EDCOffset]))
		generateECC(raw, false)
	case FormatMode2:
		if err := writeHeader(raw, lba, 2); err != nil {
			return err
		}
		raw[submodeOffset] = submode &^ SubmodeForm
		copy(raw[20:24], raw[16:20])
		copy(raw[24:], data)
		binary.LittleEndian.PutUint32(raw[form1EDCOffset:], EDC(raw[16:form1EDCOffset]))
		generateECC(raw, true)
	}
	return nil
}

// CheckEDC reports whether the stored EDC of a raw sector matches its
// contents. Sectors without a mode and Form 2 sectors with an EDC of zero
// pass.
func CheckEDC(raw []byte) bool {
	if len(raw) != CD_SECTOR_SIZE {
		return false
	}
	switch raw[15] {
	case 0:
		return true
	case 1:
		return EDC(raw[:mode1EDCOffset]) == binary.LittleEndian.Uint32(raw[mode1EDCOffset:])
	case 2:
		if raw[submodeOffset]&SubmodeForm != 0 {
			stored := binary.LittleEndian.Uint32(raw[form2EDCOffset:])
			return stored == 0 || EDC(raw[16:form2EDCOffset]) == stored
		}
		return EDC(raw[16:form1EDCOffset]) == binary.LittleEndian.Uint32(raw[form1EDCOffset:])
	default:
		return false
	}
}

// SectorLBA decodes the MSF address of a raw sector
func SectorLBA(raw []byte) int64 {
	return common.MSFToLBA(raw[12], raw[13], raw[14])
}
