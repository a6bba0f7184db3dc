package smx

import "sort"

// ImageBuilder assembles an Image from already-decoded tables. The loader
// feeds it the decoded debug sections; tests and the bundled demo plugin
// construct images directly.
type ImageBuilder struct {
	files   []FileEntry
	lines   []LineEntry
	symbols []*Symbol
	tags    map[uint16]string
}

func NewImageBuilder() *ImageBuilder {
	return &ImageBuilder{tags: make(map[uint16]string)}
}

// AddFile records that the code range starting at addr belongs to file name.
func (b *ImageBuilder) AddFile(addr uint32, name string) *ImageBuilder {
	b.files = append(b.files, FileEntry{Addr: addr, Name: name})
	return b
}

// AddLine records the debug point emitted for a source line.
func (b *ImageBuilder) AddLine(addr, line uint32) *ImageBuilder {
	b.lines = append(b.lines, LineEntry{Addr: addr, Line: line})
	return b
}

// AddTag registers a compiler tag name.
func (b *ImageBuilder) AddTag(id uint16, name string) *ImageBuilder {
	b.tags[id] = name
	return b
}

// AddSymbol appends a debug symbol. The symbol is referenced, not copied, so
// later display-format changes are visible to the caller.
func (b *ImageBuilder) AddSymbol(sym *Symbol) *ImageBuilder {
	b.symbols = append(b.symbols, sym)
	return b
}

// AddFunction appends a function symbol spanning [start, end].
func (b *ImageBuilder) AddFunction(name string, addr Cell, start, end uint32) *ImageBuilder {
	return b.AddSymbol(&Symbol{
		Name:      name,
		Addr:      addr,
		CodeStart: start,
		CodeEnd:   end,
		Ident:     IdentFunction,
	})
}

// Image finalizes the tables. File and line entries are sorted by address;
// symbol order is preserved so shadowing resolution stays deterministic.
func (b *ImageBuilder) Image() *Image {
	files := append([]FileEntry(nil), b.files...)
	lines := append([]LineEntry(nil), b.lines...)
	sort.SliceStable(files, func(i, j int) bool { return files[i].Addr < files[j].Addr })
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Addr < lines[j].Addr })
	return &Image{
		files:   files,
		lines:   lines,
		symbols: append([]*Symbol(nil), b.symbols...),
		tags:    b.tags,
	}
}
