package debug

import (
	"fmt"
	"math"
	"strings"

	"github.com/pawnlang/pawndbg/pkg/smx"
)

// Display formats, stored in the high nibble of a symbol's vclass byte. A
// zero high nibble means no explicit format has been chosen yet.
const (
	DispDefault = 0x10
	DispString  = 0x20
	DispBin     = 0x30
	DispHex     = 0x40
	DispBool    = 0x50
	DispFloat   = 0x70

	dispMask = 0x0f
)

// MaxDimensions caps the indices accepted in a symbol expression.
const MaxDimensions = 3

// MaxLineLength bounds string auto-detection on untagged arrays.
const MaxLineLength = 128

// SymbolValue reads the cell at index k of a symbol, resolving frame-
// relative addressing and one level of reference indirection.
func (e *Entry) SymbolValue(sym *smx.Symbol, index int) (smx.Cell, error) {
	base := sym.Addr
	if sym.Local() {
		base += e.frm
	}
	if sym.Ident == smx.IdentReference || sym.Ident == smx.IdentRefArray {
		v, err := e.ctx.ReadCell(base)
		if err != nil {
			return 0, err
		}
		base = v
	}
	return e.ctx.ReadCell(base + smx.Cell(index*smx.CellSize))
}

// SetSymbolValue writes a single cell, mirroring SymbolValue's addressing.
func (e *Entry) SetSymbolValue(sym *smx.Symbol, index int, value smx.Cell) error {
	base := sym.Addr
	if sym.Local() {
		base += e.frm
	}
	if sym.Ident == smx.IdentReference || sym.Ident == smx.IdentRefArray {
		v, err := e.ctx.ReadCell(base)
		if err != nil {
			return err
		}
		base = v
	}
	return e.ctx.WriteCell(base+smx.Cell(index*smx.CellSize), value)
}

// SymbolString reads a one-dimensional array symbol as a NUL-terminated
// string.
func (e *Entry) SymbolString(sym *smx.Symbol) (string, error) {
	base := sym.Addr
	if sym.Local() {
		base += e.frm
	}
	if sym.Ident == smx.IdentRefArray {
		v, err := e.ctx.ReadCell(base)
		if err != nil {
			return "", err
		}
		base = v
	}
	return e.ctx.ReadStringNULL(base)
}

// FormatValue renders a single cell in the given display format.
func FormatValue(value smx.Cell, disp uint8) string {
	switch disp {
	case DispFloat:
		return fmt.Sprintf("%f", math.Float32frombits(uint32(value)))
	case DispHex:
		return fmt.Sprintf("%x", uint32(value))
	case DispBool:
		switch value {
		case 0:
			return "false"
		case 1:
			return "true"
		default:
			return fmt.Sprintf("%d (false)", value)
		}
	default:
		return fmt.Sprintf("%d", value)
	}
}

func isArray(sym *smx.Symbol) bool {
	return sym.Ident == smx.IdentArray || sym.Ident == smx.IdentRefArray
}

// plausibleString reports whether s looks like readable text: it must start
// with a letter and contain only tabs, line breaks, and printable ASCII.
func plausibleString(s string) bool {
	if s == "" || len(s) >= MaxLineLength-1 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < ' ' && c != '\n' && c != '\r' && c != '\t' {
			return false
		}
		if c >= 0x7f {
			return false
		}
	}
	c := s[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// applyDefaultFormat picks a display format for a symbol that has none: the
// tag name decides for bool and float, and an untagged one-dimensional
// array that holds readable text becomes a string.
func (e *Entry) applyDefaultFormat(sym *smx.Symbol) {
	if sym.VClass&^uint8(dispMask) != 0 {
		return
	}
	if tag, ok := e.Image().GetTagName(sym.TagID); ok {
		switch strings.ToLower(tag) {
		case "bool":
			sym.VClass |= DispBool
			return
		case "float":
			sym.VClass |= DispFloat
			return
		}
	}
	if isArray(sym) && len(sym.Dims) == 1 {
		if s, err := e.SymbolString(sym); err == nil && plausibleString(s) {
			sym.VClass |= DispString
		}
	}
}

// FormatVariable renders a symbol, optionally indexed, per the display
// rules of the disp/watch commands. Errors come back as parenthesized
// messages rather than Go errors so listings keep their shape.
func (e *Entry) FormatVariable(sym *smx.Symbol, idx []uint32) string {
	// First check whether the variable is visible at all.
	if e.cip < sym.CodeStart || e.cip > sym.CodeEnd {
		return "(not in scope)"
	}

	e.applyDefaultFormat(sym)
	disp := sym.VClass &^ uint8(dispMask)

	if isArray(sym) {
		for d := 0; d < len(idx); d++ {
			if d < len(sym.Dims) && sym.Dims[d].Size > 0 && idx[d] >= sym.Dims[d].Size {
				return "(index out of range)"
			}
		}
	}

	switch {
	case isArray(sym) && len(idx) == 0:
		if disp == DispString {
			s, err := e.SymbolString(sym)
			if err != nil {
				return "NULL_STRING"
			}
			return fmt.Sprintf("%q", s)
		}
		if len(sym.Dims) == 1 {
			return e.formatArrayPrefix(sym, disp)
		}
		return "(multi-dimensional array)"

	case !isArray(sym) && len(idx) > 0:
		return "(invalid index, not an array)"

	default:
		// Simple variable, or indexed array element. Intermediate
		// dimensions store byte offsets to their sub-arrays.
		base := 0
		dim := 0
		for ; dim < len(idx)-1; dim++ {
			base += int(idx[dim])
			v, err := e.SymbolValue(sym, base)
			if err != nil {
				break
			}
			base += int(v) / smx.CellSize
		}
		last := 0
		if dim < len(idx) {
			last = int(idx[dim])
		}
		v, err := e.SymbolValue(sym, base+last)
		switch {
		case err == nil && len(sym.Dims) == len(idx):
			return FormatValue(v, disp)
		case len(sym.Dims) != len(idx):
			return "(invalid number of dimensions)"
		default:
			return "?"
		}
	}
}

// formatArrayPrefix prints the first elements of a one-dimensional array as
// {v0,v1,...}, appending ",..." when the array is longer than shown or its
// size is unknown.
func (e *Entry) formatArrayPrefix(sym *smx.Symbol, disp uint8) string {
	size := sym.Dims[0].Size
	shown := size
	if shown > 5 {
		shown = 5
	} else if shown == 0 {
		// Unknown array length, assume at least one element.
		shown = 1
	}

	var b strings.Builder
	b.WriteString("{")
	for i := uint32(0); i < shown; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		if v, err := e.SymbolValue(sym, int(i)); err == nil {
			b.WriteString(FormatValue(v, disp))
		} else {
			b.WriteString("?")
		}
	}
	if shown < size || size == 0 {
		b.WriteString(",...")
	}
	b.WriteString("}")
	return b.String()
}

// ParseSymbolExpr splits "name[i][j]" into the bare name and its index
// vector, capped at MaxDimensions.
func ParseSymbolExpr(expr string) (string, []uint32) {
	bracket := strings.IndexByte(expr, '[')
	if bracket < 0 {
		return strings.TrimSpace(expr), nil
	}
	name := strings.TrimSpace(expr[:bracket])
	var idx []uint32
	rest := expr[bracket:]
	for len(idx) < MaxDimensions {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			break
		}
		rest = rest[open+1:]
		n := 0
		for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
			n++
		}
		var v uint32
		fmt.Sscanf(rest[:n], "%d", &v)
		idx = append(idx, v)
	}
	return name, idx
}
