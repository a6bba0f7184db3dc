package main

import (
	"github.com/pawnlang/pawndbg/pkg/smx"
	"github.com/pawnlang/pawndbg/pkg/vm"
)

const demoDataSize = 4096

// buildDemoPlugin assembles the small plugin shipped with the CLI: a main
// function that initializes a global counter and calls a helper with a
// local variable, with a debug point at every source line. It stands in
// for a loaded plugin binary so the debugger can be tried without a
// compiler at hand.
func buildDemoPlugin() (*smx.Image, []smx.Cell, uint32) {
	const (
		mainAddr = 0
		fooAddr  = 96
	)
	op := func(o vm.Opcode) smx.Cell { return smx.Cell(o) }

	code := make([]smx.Cell, fooAddr/smx.CellSize)
	copy(code, []smx.Cell{
		op(vm.OpProc),        //  0  main()
		op(vm.OpBreak),       //  4  line 3
		op(vm.OpConstPri), 7, //  8
		op(vm.OpStorGlobal), 0, // 16  counter = 7
		op(vm.OpBreak),       // 24  line 4
		op(vm.OpConstPri), 5, // 28
		op(vm.OpCall), fooAddr, // 36  foo()
		op(vm.OpBreak), // 44  line 6
		op(vm.OpHalt),  // 48
	})
	code = append(code,
		op(vm.OpProc),         //  96  foo()
		op(vm.OpStack), 8,     // 100
		op(vm.OpBreak),        // 108  line 12
		op(vm.OpConstPri), 42, // 112
		op(vm.OpStorLocal), -4, // 120  x = 42
		op(vm.OpBreak), // 128  line 13
		op(vm.OpRetn),  // 132
	)

	image := smx.NewImageBuilder().
		AddFile(0, "main.sp").
		AddLine(4, 2).
		AddLine(24, 3).
		AddLine(44, 5).
		AddLine(108, 11).
		AddLine(128, 12).
		AddTag(0, "_").
		AddFunction("main", mainAddr, 0, 48).
		AddFunction("foo", fooAddr, 96, 132).
		AddSymbol(&smx.Symbol{
			Name:      "counter",
			Addr:      0,
			Ident:     smx.IdentVariable,
			CodeStart: 0,
			CodeEnd:   132,
		}).
		AddSymbol(&smx.Symbol{
			Name:      "x",
			Addr:      -4,
			Ident:     smx.IdentVariable,
			VClass:    1,
			CodeStart: 100,
			CodeEnd:   132,
		}).
		Image()

	return image, code, mainAddr
}
