package smx

import (
	"encoding/binary"
	"testing"
)

func testImage() *Image {
	return NewImageBuilder().
		AddFile(0, "addons/x/main.sp").
		AddFile(200, "addons/x/util.inc").
		AddLine(4, 11).
		AddLine(24, 12).
		AddLine(44, 13).
		AddLine(108, 20).
		AddLine(204, 3).
		AddTag(1, "bool").
		AddTag(2, "Float").
		AddFunction("main", 0, 0, 48).
		AddFunction("foo", 96, 96, 132).
		AddFunction("helper", 200, 200, 240).
		AddSymbol(&Symbol{Name: "counter", Addr: 16, Ident: IdentVariable, CodeStart: 0, CodeEnd: 240}).
		AddSymbol(&Symbol{Name: "x", Addr: -4, VClass: 1, Ident: IdentVariable, CodeStart: 100, CodeEnd: 132}).
		AddSymbol(&Symbol{Name: "x", Addr: -8, VClass: 1, Ident: IdentVariable, CodeStart: 110, CodeEnd: 130}).
		Image()
}

func TestLookupFile(t *testing.T) {
	img := testImage()

	file, ok := img.LookupFile(24)
	if !ok || file != "addons/x/main.sp" {
		t.Errorf("LookupFile(24) = %q, %v", file, ok)
	}

	file, ok = img.LookupFile(230)
	if !ok || file != "addons/x/util.inc" {
		t.Errorf("LookupFile(230) = %q, %v", file, ok)
	}
}

func TestLookupLineIsOneBased(t *testing.T) {
	img := testImage()

	// The table stores 0-based lines; lookups report source lines.
	line, ok := img.LookupLine(24)
	if !ok || line != 13 {
		t.Errorf("LookupLine(24) = %d, %v, want 13", line, ok)
	}

	// An address between two entries belongs to the earlier line.
	line, ok = img.LookupLine(30)
	if !ok || line != 13 {
		t.Errorf("LookupLine(30) = %d, %v, want 13", line, ok)
	}

	if _, ok := img.LookupLine(2); ok {
		t.Error("LookupLine before the first entry should miss")
	}
}

func TestLookupFunction(t *testing.T) {
	img := testImage()

	name, ok := img.LookupFunction(108)
	if !ok || name != "foo" {
		t.Errorf("LookupFunction(108) = %q, %v", name, ok)
	}

	if _, ok := img.LookupFunction(60); ok {
		t.Error("LookupFunction in a gap should miss")
	}
}

func TestGetLineAddress(t *testing.T) {
	img := testImage()

	addr, ok := img.GetLineAddress(12, "addons/x/main.sp")
	if !ok || addr != 24 {
		t.Errorf("GetLineAddress(12) = %#x, %v, want 0x18", addr, ok)
	}

	// Line 3 exists only in util.inc; main.sp must not resolve it.
	if _, ok := img.GetLineAddress(3, "addons/x/main.sp"); ok {
		t.Error("GetLineAddress found a line of another file")
	}
	if _, ok := img.GetLineAddress(99, "addons/x/main.sp"); ok {
		t.Error("GetLineAddress found a nonexistent line")
	}
}

func TestGetFunctionAddress(t *testing.T) {
	img := testImage()

	// The resolved address is the function's first debug point, not its
	// entry, so the breakpoint can trap.
	addr, ok := img.GetFunctionAddress("foo", "addons/x/main.sp")
	if !ok || addr != 108 {
		t.Errorf("GetFunctionAddress(foo) = %#x, %v, want 0x6c", addr, ok)
	}

	if _, ok := img.GetFunctionAddress("helper", "addons/x/main.sp"); ok {
		t.Error("helper lives in util.inc, not main.sp")
	}
}

func TestFindFileByPartialName(t *testing.T) {
	img := testImage()

	for _, partial := range []string{"main.sp", "x/main.sp", "addons/x/main.sp"} {
		file, ok := img.FindFileByPartialName(partial)
		if !ok || file != "addons/x/main.sp" {
			t.Errorf("FindFileByPartialName(%q) = %q, %v", partial, file, ok)
		}
	}

	// Substring match as a fallback.
	file, ok := img.FindFileByPartialName("util")
	if !ok || file != "addons/x/util.inc" {
		t.Errorf("FindFileByPartialName(util) = %q, %v", file, ok)
	}

	if _, ok := img.FindFileByPartialName("nosuch.sp"); ok {
		t.Error("FindFileByPartialName matched a nonexistent file")
	}
	if _, ok := img.FindFileByPartialName(""); ok {
		t.Error("empty partial must not match")
	}
}

func TestGetVariableSmallestScope(t *testing.T) {
	img := testImage()

	// At cip 120 both "x" symbols are in scope; the inner one wins.
	sym, ok := img.GetVariable("x", 120)
	if !ok {
		t.Fatal("x not found")
	}
	if sym.Addr != -8 {
		t.Errorf("GetVariable picked addr %d, want the inner declaration at -8", sym.Addr)
	}

	// At cip 105 only the outer x is in scope.
	sym, ok = img.GetVariable("x", 105)
	if !ok || sym.Addr != -4 {
		t.Errorf("GetVariable(105) = %+v, %v", sym, ok)
	}

	if _, ok := img.GetVariable("x", 50); ok {
		t.Error("x must be out of scope in main")
	}
	if _, ok := img.GetVariable("main", 10); ok {
		t.Error("functions are not variables")
	}
}

func TestGetTagName(t *testing.T) {
	img := testImage()
	if name, ok := img.GetTagName(1); !ok || name != "bool" {
		t.Errorf("GetTagName(1) = %q, %v", name, ok)
	}
	if _, ok := img.GetTagName(9); ok {
		t.Error("unknown tag must miss")
	}
}

func encodeSymbol(t *testing.T, addr int32, tagid uint16, codestart, codeend uint32, ident, vclass uint8, dims []ArrayDim, nameOff uint32) []byte {
	t.Helper()
	rec := make([]byte, symbolRecordSize)
	binary.LittleEndian.PutUint32(rec[0:], uint32(addr))
	binary.LittleEndian.PutUint16(rec[4:], tagid)
	binary.LittleEndian.PutUint32(rec[6:], codestart)
	binary.LittleEndian.PutUint32(rec[10:], codeend)
	rec[14] = ident
	rec[15] = vclass
	binary.LittleEndian.PutUint16(rec[16:], uint16(len(dims)))
	binary.LittleEndian.PutUint32(rec[18:], nameOff)
	for _, d := range dims {
		dim := make([]byte, dimRecordSize)
		binary.LittleEndian.PutUint16(dim[0:], d.TagID)
		binary.LittleEndian.PutUint32(dim[2:], d.Size)
		rec = append(rec, dim...)
	}
	return rec
}

func TestDecodeSymbols(t *testing.T) {
	names := []byte("counter\x00arr\x00")

	var data []byte
	data = append(data, encodeSymbol(t, 16, 0, 0, 240, IdentVariable, 0, nil, 0)...)
	data = append(data, encodeSymbol(t, 32, 0, 0, 240, IdentArray, 0, []ArrayDim{{Size: 10}}, 8)...)

	syms := DecodeSymbols(data, names, 2)
	if len(syms) != 2 {
		t.Fatalf("decoded %d symbols, want 2", len(syms))
	}
	if syms[0].Name != "counter" || syms[0].Addr != 16 {
		t.Errorf("symbol 0 = %+v", syms[0])
	}
	if syms[1].Name != "arr" || len(syms[1].Dims) != 1 || syms[1].Dims[0].Size != 10 {
		t.Errorf("symbol 1 = %+v", syms[1])
	}
}

func TestDecodeSymbolsTruncated(t *testing.T) {
	names := []byte("a\x00")
	full := encodeSymbol(t, 0, 0, 0, 100, IdentVariable, 0, nil, 0)

	// A record cut short must stop decoding, not crash or fabricate.
	data := append(append([]byte{}, full...), full[:10]...)
	syms := DecodeSymbols(data, names, 2)
	if len(syms) != 1 {
		t.Fatalf("decoded %d symbols from truncated section, want 1", len(syms))
	}

	// Dimension records overrunning the section drop the symbol too.
	arr := encodeSymbol(t, 0, 0, 0, 100, IdentArray, 0, []ArrayDim{{Size: 4}}, 0)
	syms = DecodeSymbols(arr[:len(arr)-2], names, 1)
	if len(syms) != 0 {
		t.Fatalf("decoded %d symbols with truncated dims, want 0", len(syms))
	}

	// A declared count larger than the section is clamped.
	syms = DecodeSymbols(full, names, 100)
	if len(syms) != 1 {
		t.Fatalf("decoded %d symbols, want 1", len(syms))
	}
}

func TestDecodeFilesAndLines(t *testing.T) {
	names := []byte("main.sp\x00")

	files := make([]byte, fileRecordSize)
	binary.LittleEndian.PutUint32(files[0:], 0)
	binary.LittleEndian.PutUint32(files[4:], 0)
	decoded := DecodeFiles(files, names, 1)
	if len(decoded) != 1 || decoded[0].Name != "main.sp" {
		t.Fatalf("DecodeFiles = %+v", decoded)
	}

	// A name offset beyond the names section skips the record.
	binary.LittleEndian.PutUint32(files[4:], 4096)
	if got := DecodeFiles(files, names, 1); len(got) != 0 {
		t.Errorf("DecodeFiles with bad name offset = %+v", got)
	}

	lines := make([]byte, lineRecordSize)
	binary.LittleEndian.PutUint32(lines[0:], 24)
	binary.LittleEndian.PutUint32(lines[4:], 12)
	gotLines := DecodeLines(lines, 1)
	if len(gotLines) != 1 || gotLines[0].Addr != 24 || gotLines[0].Line != 12 {
		t.Fatalf("DecodeLines = %+v", gotLines)
	}
	if got := DecodeLines(lines[:5], 1); len(got) != 0 {
		t.Errorf("DecodeLines on truncated section = %+v", got)
	}
}
