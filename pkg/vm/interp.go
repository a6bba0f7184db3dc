package vm

import (
	"fmt"

	"github.com/pawnlang/pawndbg/pkg/smx"
)

// Opcode is one instruction word of the reference interpreter. The set is
// deliberately tiny: just enough control flow and data movement to execute
// plugins with debug points, calls, and cell stores.
type Opcode smx.Cell

const (
	OpHalt Opcode = iota
	OpBreak
	OpProc
	OpRetn
	OpCall
	OpConstPri
	OpAddPri
	OpStorLocal
	OpStorGlobal
	OpStack
	OpJump
	OpJZero
)

// DebugHook is invoked at every debug point. Returning an error aborts the
// run; the debugger returns nil to continue.
type DebugHook func(ctx Context, iter FrameIterator, regs Registers) error

// Interp executes bytecode for a single plugin context on the calling
// goroutine. Frame layout: the cell at frm+4 holds the caller's frame
// pointer and frm+8 the return address; locals live at negative offsets.
type Interp struct {
	ctx  *PluginContext
	code []smx.Cell
	hook DebugHook

	// Call-site addresses of active callers, outermost first. Used to
	// materialize the frame iterator handed to the debug hook.
	callSites []uint32
}

func NewInterp(ctx *PluginContext, code []smx.Cell) *Interp {
	return &Interp{ctx: ctx, code: code}
}

// SetDebugHook installs the debug-point callback. A nil hook makes OpBreak
// a no-op.
func (in *Interp) SetDebugHook(hook DebugHook) {
	in.hook = hook
}

func (in *Interp) fetch(cip uint32) (smx.Cell, error) {
	idx := int(cip) / smx.CellSize
	if cip%smx.CellSize != 0 || idx < 0 || idx >= len(in.code) {
		return 0, fmt.Errorf("code address 0x%x out of bounds", cip)
	}
	return in.code[idx], nil
}

// frames builds the scripted stack for the current halt, innermost first.
func (in *Interp) frames(cip uint32) []Frame {
	frames := []Frame{{Scripted: true, Cip: cip, Ctx: in.ctx}}
	for i := len(in.callSites) - 1; i >= 0; i-- {
		frames = append(frames, Frame{Scripted: true, Cip: in.callSites[i], Ctx: in.ctx})
	}
	return frames
}

// Run executes from entry until OpHalt. It returns the error of the first
// faulting instruction, with the faulting address attached.
func (in *Interp) Run(entry uint32) error {
	ctx := in.ctx
	cip := entry
	for {
		op, err := in.fetch(cip)
		if err != nil {
			return err
		}
		ctx.cip = cip
		here := cip
		cip += smx.CellSize

		operand := func() (smx.Cell, error) {
			v, err := in.fetch(cip)
			if err != nil {
				return 0, fmt.Errorf("truncated instruction at 0x%x", here)
			}
			cip += smx.CellSize
			return v, nil
		}

		switch Opcode(op) {
		case OpHalt:
			return nil

		case OpBreak:
			if in.hook == nil {
				continue
			}
			ctx.cip = here
			iter := NewStackIterator(in.frames(here))
			if err := in.hook(ctx, iter, ctx.Registers()); err != nil {
				return fmt.Errorf("debug hook at 0x%x: %w", here, err)
			}

		case OpProc:
			if err := ctx.push(ctx.frm); err != nil {
				return err
			}
			ctx.frm = ctx.sp - smx.CellSize
			ctx.sp = ctx.frm

		case OpRetn:
			saved, err := ctx.ReadCell(ctx.frm + smx.CellSize)
			if err != nil {
				return err
			}
			ret, err := ctx.ReadCell(ctx.frm + 2*smx.CellSize)
			if err != nil {
				return err
			}
			ctx.sp = ctx.frm + 3*smx.CellSize
			ctx.frm = saved
			cip = uint32(ret)
			if n := len(in.callSites); n > 0 {
				in.callSites = in.callSites[:n-1]
			}

		case OpCall:
			target, err := operand()
			if err != nil {
				return err
			}
			if err := ctx.push(smx.Cell(cip)); err != nil {
				return err
			}
			in.callSites = append(in.callSites, here)
			cip = uint32(target)

		case OpConstPri:
			v, err := operand()
			if err != nil {
				return err
			}
			ctx.pri = v

		case OpAddPri:
			v, err := operand()
			if err != nil {
				return err
			}
			ctx.pri += v

		case OpStorLocal:
			off, err := operand()
			if err != nil {
				return err
			}
			if err := ctx.WriteCell(ctx.frm+off, ctx.pri); err != nil {
				return err
			}

		case OpStorGlobal:
			addr, err := operand()
			if err != nil {
				return err
			}
			if err := ctx.WriteCell(addr, ctx.pri); err != nil {
				return err
			}

		case OpStack:
			n, err := operand()
			if err != nil {
				return err
			}
			ctx.sp -= n

		case OpJump:
			target, err := operand()
			if err != nil {
				return err
			}
			cip = uint32(target)

		case OpJZero:
			target, err := operand()
			if err != nil {
				return err
			}
			if ctx.pri == 0 {
				cip = uint32(target)
			}

		default:
			return fmt.Errorf("invalid opcode %d at 0x%x", op, here)
		}
	}
}
