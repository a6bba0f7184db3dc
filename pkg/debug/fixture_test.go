package debug

import (
	"math"
	"testing"

	"github.com/pawnlang/pawndbg/pkg/smx"
	"github.com/pawnlang/pawndbg/pkg/vm"
)

// Fixture plugin: main (code 0..48, debug points at 4/24/44) calls foo
// (code 96..132, debug points at 108/128). The line table stores 0-based
// lines, so the points display as lines 11, 12, 13, 20, 21.
func testImage() *smx.Image {
	return smx.NewImageBuilder().
		AddFile(0, "addons/x/main.sp").
		AddLine(4, 10).
		AddLine(24, 11).
		AddLine(44, 12).
		AddLine(108, 19).
		AddLine(128, 20).
		AddTag(0, "_").
		AddTag(1, "bool").
		AddTag(2, "Float").
		AddFunction("main", 0, 0, 48).
		AddFunction("foo", 96, 96, 132).
		AddSymbol(&smx.Symbol{Name: "counter", Addr: 16, Ident: smx.IdentVariable, CodeStart: 0, CodeEnd: 240}).
		AddSymbol(&smx.Symbol{Name: "arr", Addr: 32, Ident: smx.IdentArray, CodeStart: 0, CodeEnd: 240,
			Dims: []smx.ArrayDim{{Size: 10}}}).
		AddSymbol(&smx.Symbol{Name: "msg", Addr: 80, Ident: smx.IdentArray, CodeStart: 0, CodeEnd: 240,
			Dims: []smx.ArrayDim{{Size: 16}}}).
		AddSymbol(&smx.Symbol{Name: "grid", Addr: 160, Ident: smx.IdentArray, CodeStart: 0, CodeEnd: 240,
			Dims: []smx.ArrayDim{{Size: 2}, {Size: 3}}}).
		AddSymbol(&smx.Symbol{Name: "flag", Addr: 72, TagID: 1, Ident: smx.IdentVariable, CodeStart: 0, CodeEnd: 240}).
		AddSymbol(&smx.Symbol{Name: "ratio", Addr: 76, TagID: 2, Ident: smx.IdentVariable, CodeStart: 0, CodeEnd: 240}).
		AddSymbol(&smx.Symbol{Name: "x", Addr: -4, VClass: 1, Ident: smx.IdentVariable, CodeStart: 100, CodeEnd: 132}).
		AddSymbol(&smx.Symbol{Name: "ref", Addr: -8, VClass: 1, Ident: smx.IdentReference, CodeStart: 100, CodeEnd: 132}).
		Image()
}

func mustWrite(t *testing.T, ctx *vm.PluginContext, addr, value smx.Cell) {
	t.Helper()
	if err := ctx.WriteCell(addr, value); err != nil {
		t.Fatalf("writing fixture cell %d: %v", addr, err)
	}
}

// testContext populates a context for the fixture image. The "current"
// frame sits at 3900 with x at frm-4 and ref at frm-8 pointing at counter.
func testContext(t *testing.T, image *smx.Image) *vm.PluginContext {
	t.Helper()
	ctx := vm.NewPluginContext(image, 4096)

	mustWrite(t, ctx, 16, 42) // counter
	for i, v := range []smx.Cell{1, 2, 3, 4, 5, 6} {
		mustWrite(t, ctx, smx.Cell(32+i*smx.CellSize), v)
	}
	for i, ch := range "hi there" {
		mustWrite(t, ctx, smx.Cell(80+i*smx.CellSize), smx.Cell(ch))
	}
	mustWrite(t, ctx, 72, 1) // flag = true
	mustWrite(t, ctx, 76, smx.Cell(math.Float32bits(1.5)))

	// grid[2][3]: two indirection cells holding byte offsets to the rows,
	// then the row data.
	mustWrite(t, ctx, 160, 8)
	mustWrite(t, ctx, 164, 16)
	for i, v := range []smx.Cell{10, 11, 12, 20, 21, 22} {
		mustWrite(t, ctx, smx.Cell(168+i*smx.CellSize), v)
	}

	mustWrite(t, ctx, 3900-4, 7)  // x
	mustWrite(t, ctx, 3900-8, 16) // ref -> counter
	return ctx
}

// makeEntry builds a front-end entry halted at cip with a single scripted
// frame at frm.
func makeEntry(t *testing.T, d *Debugger, ctx *vm.PluginContext, cip uint32, frm smx.Cell) *Entry {
	t.Helper()
	iter := vm.NewStackIterator([]vm.Frame{{Scripted: true, Cip: cip, Ctx: ctx}})
	regs := vm.Registers{Cip: smx.Cell(cip), Frm: frm}
	return newEntry(d, ctx, iter, regs, cip, nil)
}

// recorder is a Handler that records entries and replies with a fixed run
// mode per halt.
type recorder struct {
	modes   []Runmode
	entries []*Entry
}

func (r *recorder) HandleHalt(e *Entry) Runmode {
	r.entries = append(r.entries, e)
	if len(r.modes) == 0 {
		return Running
	}
	mode := r.modes[0]
	if len(r.modes) > 1 {
		r.modes = r.modes[1:]
	}
	return mode
}
