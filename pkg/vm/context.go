// Package vm defines the debugger's view of the virtual machine — plugin
// contexts with cell-addressed memory, stack frame iteration, and the host
// watchdog — together with a small reference interpreter used by tests and
// the bundled demo plugin.
package vm

import (
	"fmt"

	"github.com/pawnlang/pawndbg/pkg/smx"
)

// Context is the capability set the debugger needs from one plugin context.
// Cell addresses are byte offsets into the context's data segment; every
// access is bounds-checked and returns an error instead of faulting.
type Context interface {
	// Frm returns the current frame pointer.
	Frm() smx.Cell
	// Image returns the debug metadata of the loaded plugin.
	Image() *smx.Image
	// ReadCell reads the cell at a data address.
	ReadCell(addr smx.Cell) (smx.Cell, error)
	// WriteCell overwrites the cell at a data address.
	WriteCell(addr, value smx.Cell) error
	// ReadStringNULL reads a NUL-terminated string starting at addr, one
	// character per cell.
	ReadStringNULL(addr smx.Cell) (string, error)
}

// Watchdog is the host's runaway-script guard. It is paused while the
// debugger holds the VM halted so a thinking user does not trip it.
type Watchdog interface {
	Pause()
	Resume()
}

// NopWatchdog satisfies Watchdog for hosts that run without one.
type NopWatchdog struct{}

func (NopWatchdog) Pause()  {}
func (NopWatchdog) Resume() {}

// Registers is the machine state snapshot taken at a halt.
type Registers struct {
	Pri smx.Cell
	Alt smx.Cell
	Cip smx.Cell
	Sp  smx.Cell
	Frm smx.Cell
}

// PluginContext is an in-process Context implementation backed by a plain
// byte slice data segment.
type PluginContext struct {
	image *smx.Image
	data  []byte

	pri smx.Cell
	alt smx.Cell
	frm smx.Cell
	sp  smx.Cell
	cip uint32
}

// NewPluginContext creates a context with a zeroed data segment of dataSize
// bytes. The stack occupies the top of the segment and grows down.
func NewPluginContext(image *smx.Image, dataSize int) *PluginContext {
	return &PluginContext{
		image: image,
		data:  make([]byte, dataSize),
		sp:    smx.Cell(dataSize),
		frm:   smx.Cell(dataSize),
	}
}

func (c *PluginContext) Image() *smx.Image { return c.image }
func (c *PluginContext) Frm() smx.Cell     { return c.frm }

// SetFrm positions the frame register. The interpreter maintains it during
// execution; host glue embedding a foreign VM sets it before halts.
func (c *PluginContext) SetFrm(frm smx.Cell) { c.frm = frm }
func (c *PluginContext) Sp() smx.Cell      { return c.sp }
func (c *PluginContext) Pri() smx.Cell     { return c.pri }
func (c *PluginContext) Alt() smx.Cell     { return c.alt }
func (c *PluginContext) Cip() uint32       { return c.cip }

// translate bounds-checks a cell address against the data segment.
func (c *PluginContext) translate(addr smx.Cell) (int, error) {
	off := int(addr)
	if off < 0 || off+smx.CellSize > len(c.data) {
		return 0, fmt.Errorf("data address 0x%x out of bounds (segment is %d bytes)", uint32(addr), len(c.data))
	}
	return off, nil
}

func (c *PluginContext) ReadCell(addr smx.Cell) (smx.Cell, error) {
	off, err := c.translate(addr)
	if err != nil {
		return 0, err
	}
	v := uint32(c.data[off]) | uint32(c.data[off+1])<<8 | uint32(c.data[off+2])<<16 | uint32(c.data[off+3])<<24
	return smx.Cell(v), nil
}

func (c *PluginContext) WriteCell(addr, value smx.Cell) error {
	off, err := c.translate(addr)
	if err != nil {
		return err
	}
	v := uint32(value)
	c.data[off] = byte(v)
	c.data[off+1] = byte(v >> 8)
	c.data[off+2] = byte(v >> 16)
	c.data[off+3] = byte(v >> 24)
	return nil
}

// ReadStringNULL reads consecutive cells starting at addr, one character per
// cell, until a NUL cell. Running off the end of the segment before a NUL
// cell is an error.
func (c *PluginContext) ReadStringNULL(addr smx.Cell) (string, error) {
	if _, err := c.translate(addr); err != nil {
		return "", err
	}
	var out []byte
	for a := addr; ; a += smx.CellSize {
		cell, err := c.ReadCell(a)
		if err != nil {
			return "", fmt.Errorf("unterminated string at 0x%x", uint32(addr))
		}
		if cell == 0 {
			break
		}
		out = append(out, byte(cell))
	}
	return string(out), nil
}

// Registers snapshots the machine state for the remote protocol.
func (c *PluginContext) Registers() Registers {
	return Registers{
		Pri: c.pri,
		Alt: c.alt,
		Cip: smx.Cell(c.cip),
		Sp:  c.sp,
		Frm: c.frm,
	}
}

// push grows the stack down by one cell and stores value there.
func (c *PluginContext) push(value smx.Cell) error {
	c.sp -= smx.CellSize
	return c.WriteCell(c.sp, value)
}
