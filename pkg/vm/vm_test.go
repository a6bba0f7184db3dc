package vm

import (
	"testing"

	"github.com/pawnlang/pawndbg/pkg/smx"
)

func TestReadWriteCell(t *testing.T) {
	ctx := NewPluginContext(nil, 64)

	if err := ctx.WriteCell(8, -123456); err != nil {
		t.Fatalf("WriteCell: %v", err)
	}
	v, err := ctx.ReadCell(8)
	if err != nil {
		t.Fatalf("ReadCell: %v", err)
	}
	if v != -123456 {
		t.Errorf("ReadCell = %d, want -123456", v)
	}
}

func TestCellBoundsChecked(t *testing.T) {
	ctx := NewPluginContext(nil, 64)

	for _, addr := range []smx.Cell{-4, 61, 64, 1 << 20} {
		if _, err := ctx.ReadCell(addr); err == nil {
			t.Errorf("ReadCell(%d) should fail", addr)
		}
		if err := ctx.WriteCell(addr, 1); err == nil {
			t.Errorf("WriteCell(%d) should fail", addr)
		}
	}
}

func TestReadStringNULL(t *testing.T) {
	ctx := NewPluginContext(nil, 128)
	for i, ch := range "hello" {
		if err := ctx.WriteCell(smx.Cell(16+i*smx.CellSize), smx.Cell(ch)); err != nil {
			t.Fatal(err)
		}
	}
	// The terminator cell is already zero.

	s, err := ctx.ReadStringNULL(16)
	if err != nil {
		t.Fatalf("ReadStringNULL: %v", err)
	}
	if s != "hello" {
		t.Errorf("ReadStringNULL = %q", s)
	}

	// A string running off the end of the segment is an error, not a
	// silent truncation.
	for a := smx.Cell(0); a < 128; a += smx.CellSize {
		ctx.WriteCell(a, 'x')
	}
	if _, err := ctx.ReadStringNULL(16); err == nil {
		t.Error("unterminated string should fail")
	}
}

// testProgram builds: main stores 7 to a global, calls foo which stores 42
// to a local, and halts. Debug points sit at each "line".
func testProgram() []smx.Cell {
	op := func(o Opcode) smx.Cell { return smx.Cell(o) }
	code := make([]smx.Cell, 24)
	copy(code, []smx.Cell{
		op(OpProc),           //  0
		op(OpBreak),          //  4
		op(OpConstPri), 7,    //  8
		op(OpStorGlobal), 16, // 16
		op(OpBreak),       // 24
		op(OpConstPri), 5, // 28
		op(OpCall), 96,    // 36
		op(OpBreak),       // 44
		op(OpHalt),        // 48
	})
	return append(code,
		op(OpProc),          //  96
		op(OpStack), 8,      // 100
		op(OpBreak),         // 108
		op(OpConstPri), 42,  // 112
		op(OpStorLocal), -4, // 120
		op(OpBreak),         // 128
		op(OpRetn),          // 132
	)
}

func TestInterpRunsAndStores(t *testing.T) {
	ctx := NewPluginContext(nil, 1024)
	in := NewInterp(ctx, testProgram())

	if err := in.Run(0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v, _ := ctx.ReadCell(16); v != 7 {
		t.Errorf("global = %d, want 7", v)
	}
	if ctx.Pri() != 42 {
		t.Errorf("pri = %d, want 42", ctx.Pri())
	}
}

func TestInterpDebugHookSeesFrames(t *testing.T) {
	ctx := NewPluginContext(nil, 1024)
	in := NewInterp(ctx, testProgram())

	type halt struct {
		cip    uint32
		frames []uint32
	}
	var halts []halt

	in.SetDebugHook(func(c Context, iter FrameIterator, regs Registers) error {
		h := halt{cip: uint32(regs.Cip)}
		for iter.Reset(); !iter.Done(); iter.Next() {
			if !iter.IsScriptedFrame() {
				t.Fatal("interpreter stacks are all scripted")
			}
			h.frames = append(h.frames, iter.Cip())
		}
		halts = append(halts, h)
		return nil
	})

	if err := in.Run(0); err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantCips := []uint32{4, 24, 108, 128, 44}
	if len(halts) != len(wantCips) {
		t.Fatalf("got %d halts, want %d", len(halts), len(wantCips))
	}
	for i, want := range wantCips {
		if halts[i].cip != want {
			t.Errorf("halt %d at cip %d, want %d", i, halts[i].cip, want)
		}
	}

	// Inside foo the stack shows the callee first, then the call site.
	if len(halts[2].frames) != 2 || halts[2].frames[0] != 108 || halts[2].frames[1] != 36 {
		t.Errorf("frames inside foo = %v", halts[2].frames)
	}
	// After the return the caller is the only frame again.
	if len(halts[4].frames) != 1 {
		t.Errorf("frames after return = %v", halts[4].frames)
	}
}

func TestInterpFrameChain(t *testing.T) {
	ctx := NewPluginContext(nil, 1024)
	in := NewInterp(ctx, testProgram())

	var outerFrm, innerFrm smx.Cell
	in.SetDebugHook(func(c Context, iter FrameIterator, regs Registers) error {
		switch uint32(regs.Cip) {
		case 24:
			outerFrm = regs.Frm
		case 108:
			innerFrm = regs.Frm
		}
		return nil
	})
	if err := in.Run(0); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The saved previous frame pointer sits one cell above the callee's
	// frame pointer; the frame selector depends on this layout.
	saved, err := ctx.ReadCell(innerFrm + smx.CellSize)
	if err != nil {
		t.Fatalf("reading saved frame: %v", err)
	}
	if saved != outerFrm {
		t.Errorf("saved frame = %d, want %d", saved, outerFrm)
	}
	if innerFrm >= outerFrm {
		t.Errorf("callee frame %d should sit below caller frame %d", innerFrm, outerFrm)
	}
}

func TestInterpInvalidOpcode(t *testing.T) {
	ctx := NewPluginContext(nil, 256)
	in := NewInterp(ctx, []smx.Cell{99})
	if err := in.Run(0); err == nil {
		t.Fatal("invalid opcode should fail")
	}

	in = NewInterp(ctx, []smx.Cell{smx.Cell(OpConstPri)})
	if err := in.Run(0); err == nil {
		t.Fatal("truncated instruction should fail")
	}
}

func TestStackIteratorMixedFrames(t *testing.T) {
	ctx := NewPluginContext(nil, 64)
	frames := []Frame{
		{Scripted: true, Cip: 108, Ctx: ctx},
		{Scripted: false, Native: "CreateTimer"},
		{Scripted: true, Cip: 36, Ctx: ctx},
	}
	it := NewStackIterator(frames)

	var scripted []uint32
	var natives []string
	for ; !it.Done(); it.Next() {
		if it.IsScriptedFrame() {
			scripted = append(scripted, it.Cip())
		} else {
			natives = append(natives, it.NativeName())
		}
	}
	if len(scripted) != 2 || scripted[0] != 108 || scripted[1] != 36 {
		t.Errorf("scripted frames = %v", scripted)
	}
	if len(natives) != 1 || natives[0] != "CreateTimer" {
		t.Errorf("native frames = %v", natives)
	}

	it.Reset()
	if it.Done() || !it.IsScriptedFrame() {
		t.Error("Reset should rewind to the first frame")
	}
}
