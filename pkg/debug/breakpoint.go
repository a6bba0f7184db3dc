package debug

import (
	"strconv"
	"strings"

	"github.com/pawnlang/pawndbg/pkg/smx"
)

// Breakpoint marks a code address the step engine halts at.
type Breakpoint struct {
	// Addr is the code address of the debug point.
	Addr uint32
	// FuncName is set for function breakpoints, for pretty printing.
	FuncName string
	// Temporary breakpoints are removed on first hit.
	Temporary bool
	// Number is the user-visible id, assigned from a per-registry counter
	// at creation and never reused.
	Number int
}

// BreakpointInfo is one row of a breakpoint listing.
type BreakpointInfo struct {
	Bp   *Breakpoint
	File string
	Line uint32
}

// BreakpointRegistry maps code addresses to breakpoints, at most one per
// address. Iteration follows insertion order so listings stay stable while
// unrelated entries come and go.
type BreakpointRegistry struct {
	image      *smx.Image
	order      []uint32
	byAddr     map[uint32]*Breakpoint
	nextNumber int
}

func NewBreakpointRegistry(image *smx.Image) *BreakpointRegistry {
	return &BreakpointRegistry{
		image:  image,
		byAddr: make(map[uint32]*Breakpoint),
	}
}

func (r *BreakpointRegistry) Len() int {
	return len(r.order)
}

// insert de-duplicates by address: a second breakpoint at an address returns
// the existing one.
func (r *BreakpointRegistry) insert(addr uint32, name string, temporary bool) *Breakpoint {
	if bp, ok := r.byAddr[addr]; ok {
		return bp
	}
	r.nextNumber++
	bp := &Breakpoint{
		Addr:      addr,
		FuncName:  name,
		Temporary: temporary,
		Number:    r.nextNumber,
	}
	r.byAddr[addr] = bp
	r.order = append(r.order, addr)
	return bp
}

// AddLine sets a breakpoint on a 0-based source line. file may be partial;
// when it does not match the file table, currentFile is used.
func (r *BreakpointRegistry) AddLine(file, currentFile string, line uint32, temporary bool) (*Breakpoint, bool) {
	target, ok := r.image.FindFileByPartialName(file)
	if !ok {
		target = currentFile
	}
	addr, ok := r.image.GetLineAddress(line, target)
	if !ok {
		return nil, false
	}
	return r.insert(addr, "", temporary), true
}

// AddFunction sets a breakpoint on a function's first debug point, as
// resolved by Image.GetFunctionAddress. The name stored on
// the breakpoint is the reverse lookup of the resolved address.
func (r *BreakpointRegistry) AddFunction(file, function string, temporary bool) (*Breakpoint, bool) {
	target, ok := r.image.FindFileByPartialName(file)
	if !ok {
		return nil, false
	}
	addr, ok := r.image.GetFunctionAddress(function, target)
	if !ok {
		return nil, false
	}
	realname, _ := r.image.LookupFunction(addr)
	return r.insert(addr, realname, temporary), true
}

// ClearByNumber removes the breakpoint carrying the given user-visible
// number.
func (r *BreakpointRegistry) ClearByNumber(number int) bool {
	for _, addr := range r.order {
		if r.byAddr[addr].Number == number {
			return r.ClearByAddr(addr)
		}
	}
	return false
}

func (r *BreakpointRegistry) ClearByAddr(addr uint32) bool {
	if _, ok := r.byAddr[addr]; !ok {
		return false
	}
	delete(r.byAddr, addr)
	for i, a := range r.order {
		if a == addr {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *BreakpointRegistry) ClearAll() {
	r.order = r.order[:0]
	r.byAddr = make(map[uint32]*Breakpoint)
	// nextNumber is deliberately not reset, so old numbers never come back.
}

// FindBySpec resolves "[file:]{line|function}" to the matching breakpoint's
// number, or -1. A bare number is returned as-is.
func (r *BreakpointRegistry) FindBySpec(spec, currentFile string) int {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return -1
	}

	filename := currentFile
	if sep := strings.LastIndex(spec, ":"); sep >= 0 {
		resolved, ok := r.image.FindFileByPartialName(spec[:sep])
		if !ok {
			return -1
		}
		filename = resolved
		spec = strings.TrimSpace(spec[sep+1:])
	} else if n, err := strconv.Atoi(spec); err == nil {
		return n
	}

	for _, addr := range r.order {
		bp := r.byAddr[addr]
		fname, ok := r.image.LookupFile(bp.Addr)
		if !ok || fname != filename {
			continue
		}
		if bp.FuncName != "" && bp.FuncName == spec {
			return bp.Number
		}
		if line, ok := r.image.LookupLine(bp.Addr); ok {
			if n, err := strconv.ParseUint(spec, 10, 32); err == nil && line == uint32(n) {
				return bp.Number
			}
		}
	}
	return -1
}

// List returns all breakpoints in iteration order with their resolved
// source positions.
func (r *BreakpointRegistry) List() []BreakpointInfo {
	infos := make([]BreakpointInfo, 0, len(r.order))
	for _, addr := range r.order {
		bp := r.byAddr[addr]
		info := BreakpointInfo{Bp: bp}
		info.File, _ = r.image.LookupFile(bp.Addr)
		info.Line, _ = r.image.LookupLine(bp.Addr)
		infos = append(infos, info)
	}
	return infos
}

// Check is the hot-path lookup from the step engine. A temporary breakpoint
// is removed before returning.
func (r *BreakpointRegistry) Check(cip uint32) (*Breakpoint, bool) {
	bp, ok := r.byAddr[cip]
	if !ok {
		return nil, false
	}
	if bp.Temporary {
		r.ClearByAddr(cip)
		return bp, true
	}
	return bp, false
}
