package debug

import (
	"fmt"
	"io"

	"github.com/pawnlang/pawndbg/pkg/smx"
	"github.com/pawnlang/pawndbg/pkg/vm"
)

// Entry is the state of one front-end visit: the frame iterator of the halt
// and the currently selected frame. It is rebuilt on every halt; carrying it
// across halts would leave commands reading stale frames.
type Entry struct {
	dbg    *Debugger
	frames vm.FrameIterator
	regs   vm.Registers
	hit    *Breakpoint
	report *ErrorReport

	frameCount    int
	selectedFrame int
	ctx           vm.Context
	cip           uint32
	frm           smx.Cell
}

func newEntry(d *Debugger, ctx vm.Context, iter vm.FrameIterator, regs vm.Registers, cip uint32, hit *Breakpoint) *Entry {
	e := &Entry{
		dbg:    d,
		frames: iter,
		regs:   regs,
		hit:    hit,
		ctx:    ctx,
		cip:    cip,
		frm:    regs.Frm,
	}

	// Count the frames and select the first scripted one.
	iter.Reset()
	selected := false
	for ; !iter.Done(); iter.Next() {
		if !selected && iter.IsScriptedFrame() {
			e.selectedFrame = e.frameCount
			selected = true
		}
		e.frameCount++
	}
	iter.Reset()
	return e
}

// Image returns the metadata of the selected frame's plugin.
func (e *Entry) Image() *smx.Image {
	return e.ctx.Image()
}

// Registers returns the machine snapshot captured at the halt.
func (e *Entry) Registers() vm.Registers {
	return e.regs
}

// FrameCount returns the total number of frames, scripted and native.
func (e *Entry) FrameCount() int {
	return e.frameCount
}

// SelectedFrame returns the index of the selected frame.
func (e *Entry) SelectedFrame() int {
	return e.selectedFrame
}

// SelectFrame makes frame n the target of inspection commands. Only
// scripted frames can be selected. The frame pointer of a non-top frame is
// recovered by walking the saved-frame chain of its context.
func (e *Entry) SelectFrame(n int) error {
	if n < 0 || n >= e.frameCount {
		return fmt.Errorf("invalid frame. There are only %d frames on the stack", e.frameCount)
	}
	if n == e.selectedFrame {
		return fmt.Errorf("frame %d is already selected", n)
	}

	iter := e.frames
	iter.Reset()
	for index := 0; !iter.Done(); iter.Next() {
		if index == n {
			break
		}
		index++
	}
	if !iter.IsScriptedFrame() {
		return fmt.Errorf("%d is not a scripted frame", n)
	}

	ctx := iter.Context()

	// Count the scripted frames belonging to the same context above and
	// including the target, to find the right frame pointer.
	iter.Reset()
	scripted := 0
	for index := 0; !iter.Done(); iter.Next() {
		if iter.IsScriptedFrame() && iter.Context() == ctx {
			scripted++
		}
		if index == n {
			break
		}
		index++
	}

	e.selectedFrame = n
	e.ctx = ctx
	e.cip = iter.Cip()
	if file, ok := ctx.Image().LookupFile(e.cip); ok {
		e.dbg.currentFile = file
	}
	if line, ok := ctx.Image().LookupLine(e.cip); ok {
		e.dbg.lastLine = line
	}

	// The saved previous frame pointer lives one cell above frm. Native
	// frames in between neither appear in nor advance the chain.
	frm := ctx.Frm()
	for i := 1; i < scripted; i++ {
		prev, err := ctx.ReadCell(frm + smx.CellSize)
		if err != nil {
			return fmt.Errorf("walking frame chain: %w", err)
		}
		frm = prev
	}
	e.frm = frm
	return nil
}

// DumpStack writes the back trace, marking the selected frame.
func (e *Entry) DumpStack(w io.Writer) {
	iter := e.frames
	iter.Reset()

	for index := 0; !iter.Done(); iter.Next() {
		marker := "  "
		if index == e.selectedFrame {
			marker = "->"
		}

		if iter.IsScriptedFrame() {
			ctx := iter.Context()
			cip := iter.Cip()
			name, ok := ctx.Image().LookupFunction(cip)
			if !ok {
				fmt.Fprintf(w, "%s[%d] <unknown>\n", marker, index)
				index++
				continue
			}
			file, ok := ctx.Image().LookupFile(cip)
			if !ok {
				file = "<unknown>"
			}
			line, _ := ctx.Image().LookupLine(cip)
			fmt.Fprintf(w, "%s[%d] %s::%s, line %d\n", marker, index, file, name, line)
		} else if name := iter.NativeName(); name != "" {
			fmt.Fprintf(w, "%s[%d] %s()\n", marker, index, name)
		} else {
			fmt.Fprintf(w, "%s[%d] <unknown>\n", marker, index)
		}
		index++
	}
}
