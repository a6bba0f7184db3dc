package smx

import (
	"encoding/binary"
	"fmt"
)

// On-disk record sizes in the packed debug sections.
const (
	symbolRecordSize = 22
	dimRecordSize    = 6
	fileRecordSize   = 8
	lineRecordSize   = 8
)

// nameAt reads the NUL-terminated string at offset off in the names section.
func nameAt(names []byte, off uint32) (string, error) {
	if off >= uint32(len(names)) {
		return "", fmt.Errorf("name offset %d beyond names section (%d bytes)", off, len(names))
	}
	end := off
	for end < uint32(len(names)) && names[end] != 0 {
		end++
	}
	return string(names[off:end]), nil
}

// DecodeSymbols parses the raw .dbg.symbols section. count is the declared
// symbol count from the .dbg.info header; decoding stops early if a record
// would overrun the section, so a corrupt image yields a short table rather
// than a crash.
func DecodeSymbols(data, names []byte, count uint32) []*Symbol {
	syms := make([]*Symbol, 0, count)
	cursor := 0
	for i := uint32(0); i < count; i++ {
		if cursor+symbolRecordSize > len(data) {
			break
		}
		rec := data[cursor:]
		sym := &Symbol{
			Addr:      Cell(binary.LittleEndian.Uint32(rec[0:])),
			TagID:     binary.LittleEndian.Uint16(rec[4:]),
			CodeStart: binary.LittleEndian.Uint32(rec[6:]),
			CodeEnd:   binary.LittleEndian.Uint32(rec[10:]),
			Ident:     rec[14],
			VClass:    rec[15],
		}
		dimcount := binary.LittleEndian.Uint16(rec[16:])
		nameOff := binary.LittleEndian.Uint32(rec[18:])
		cursor += symbolRecordSize

		if name, err := nameAt(names, nameOff); err == nil {
			sym.Name = name
		}

		// Dimension records immediately follow their symbol.
		if dimcount > 0 {
			if cursor+int(dimcount)*dimRecordSize > len(data) {
				break
			}
			sym.Dims = make([]ArrayDim, dimcount)
			for d := 0; d < int(dimcount); d++ {
				dim := data[cursor:]
				sym.Dims[d] = ArrayDim{
					TagID: binary.LittleEndian.Uint16(dim[0:]),
					Size:  binary.LittleEndian.Uint32(dim[2:]),
				}
				cursor += dimRecordSize
			}
		}
		syms = append(syms, sym)
	}
	return syms
}

// DecodeFiles parses the raw .dbg.files section.
func DecodeFiles(data, names []byte, count uint32) []FileEntry {
	files := make([]FileEntry, 0, count)
	cursor := 0
	for i := uint32(0); i < count; i++ {
		if cursor+fileRecordSize > len(data) {
			break
		}
		addr := binary.LittleEndian.Uint32(data[cursor:])
		nameOff := binary.LittleEndian.Uint32(data[cursor+4:])
		cursor += fileRecordSize
		name, err := nameAt(names, nameOff)
		if err != nil {
			continue
		}
		files = append(files, FileEntry{Addr: addr, Name: name})
	}
	return files
}

// DecodeLines parses the raw .dbg.lines section.
func DecodeLines(data []byte, count uint32) []LineEntry {
	lines := make([]LineEntry, 0, count)
	cursor := 0
	for i := uint32(0); i < count; i++ {
		if cursor+lineRecordSize > len(data) {
			break
		}
		lines = append(lines, LineEntry{
			Addr: binary.LittleEndian.Uint32(data[cursor:]),
			Line: binary.LittleEndian.Uint32(data[cursor+4:]),
		})
		cursor += lineRecordSize
	}
	return lines
}
