// Package debug implements the source-level debugger core: the per-
// instruction step/break engine, breakpoint and watch registries, symbol
// inspection through the VM's address space, frame selection across mixed
// native/scripted stacks, and the interactive console.
package debug

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pawnlang/pawndbg/pkg/logging"
	"github.com/pawnlang/pawndbg/pkg/metrics"
	"github.com/pawnlang/pawndbg/pkg/smx"
	"github.com/pawnlang/pawndbg/pkg/vm"
)

// Runmode drives the step/break engine's halt decision.
type Runmode int

const (
	// Running halts only on breakpoints.
	Running Runmode = iota
	// Stepping halts at every debug point, entering calls.
	Stepping
	// StepOver halts at the next debug point outside callees.
	StepOver
	// StepOut runs until the current function returns.
	StepOut
)

func (r Runmode) String() string {
	switch r {
	case Running:
		return "running"
	case Stepping:
		return "stepping"
	case StepOver:
		return "step-over"
	case StepOut:
		return "step-out"
	}
	return "unknown"
}

// maxLineBreaks bounds consecutive suppressed halts on one source line, so
// a loop written entirely on a single line still surfaces eventually.
const maxLineBreaks = 5

// ErrorReport describes an unhandled script error forwarded by the VM.
type ErrorReport struct {
	Message string
	Fatal   bool
}

// Handler is a halted-VM front-end: the local console or a remote session.
// It is entered on the VM thread and returns the run mode to resume with.
type Handler interface {
	HandleHalt(e *Entry) Runmode
}

// Options carries the collaborators a Debugger is wired with. Zero values
// are usable: logging is discarded, metrics are skipped, and the watchdog
// is a no-op.
type Options struct {
	Logger   *logging.Logger
	Metrics  *metrics.Metrics
	Watchdog vm.Watchdog
}

// Debugger holds the per-context debugging state. All mutable state is
// guarded by one mutex, shared between the VM thread and a remote session
// thread. The image's file and line tables are read-only and need no
// locking; symbol display formats are changed only by the console.
type Debugger struct {
	mu       sync.Mutex
	image    *smx.Image
	watchdog vm.Watchdog
	logger   *logging.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	handler Handler

	runmode     Runmode
	lastFrm     smx.Cell
	lastLine    uint32
	currentFile string
	breakCount  int
	active      bool

	breakpoints *BreakpointRegistry
	watches     *WatchList

	// The last step/next command, repeated on empty console input.
	// Persists across halts.
	lastCommand string
}

func New(image *smx.Image, opts Options) *Debugger {
	if opts.Watchdog == nil {
		opts.Watchdog = vm.NopWatchdog{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Debugger{
		image:       image,
		watchdog:    opts.Watchdog,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		tracer:      otel.Tracer("pawndbg/debug"),
		runmode:     Running,
		breakpoints: NewBreakpointRegistry(image),
		watches:     NewWatchList(),
	}
}

// SetHandler installs the front-end entered on halts.
func (d *Debugger) SetHandler(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

func (d *Debugger) Image() *smx.Image {
	return d.image
}

func (d *Debugger) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Debugger) Activate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = true
}

// Deactivate turns debugging off and drops all breakpoints and watches.
func (d *Debugger) Deactivate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = false
	d.breakpoints.ClearAll()
	d.watches.ClearAll()
	d.runmode = Running
}

func (d *Debugger) Runmode() Runmode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runmode
}

func (d *Debugger) SetRunmode(mode Runmode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runmode = mode
}

// CurrentFile returns the file of the most recent halt.
func (d *Debugger) CurrentFile() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentFile
}

// LastLine returns the line of the most recent halt.
func (d *Debugger) LastLine() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastLine
}

// Breakpoints exposes the registry; callers must hold the debugger's lock
// via WithLock when racing a remote session.
func (d *Debugger) Breakpoints() *BreakpointRegistry {
	return d.breakpoints
}

func (d *Debugger) Watches() *WatchList {
	return d.watches
}

// WithLock runs fn with the debugger state locked. Front-ends running off
// the VM thread use it around registry mutations.
func (d *Debugger) WithLock(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}

// OnBreak is the per-debug-point hook. It decides whether to halt based on
// the run mode, frame depth, and the breakpoint table; on a halt it blocks
// in the front-end until a new run mode is chosen. A nil return always
// means "continue executing".
func (d *Debugger) OnBreak(ctx vm.Context, iter vm.FrameIterator, regs vm.Registers) error {
	d.mu.Lock()
	if !d.active || d.handler == nil {
		d.mu.Unlock()
		return nil
	}

	d.breakCount++
	orig := d.runmode
	cip := uint32(regs.Cip)

	// Running until the function exits: a larger frame pointer means the
	// callee has returned.
	if d.runmode == StepOut && regs.Frm > d.lastFrm {
		d.runmode = Stepping
	}

	var hit *Breakpoint
	if d.runmode != Stepping && d.runmode != StepOver {
		var wasTemp bool
		hit, wasTemp = d.breakpoints.Check(cip)
		if hit == nil {
			d.mu.Unlock()
			return nil
		}
		if wasTemp {
			d.logger.DebugWithFields("temporary breakpoint consumed", map[string]interface{}{
				"addr": cip, "number": hit.Number,
			})
		}
		d.runmode = Stepping
	}

	// Try not to halt twice on the same source line, unless the line keeps
	// re-breaking (a loop on a single line).
	if line, ok := d.image.LookupLine(cip); ok {
		if line == d.lastLine && d.breakCount < maxLineBreaks {
			d.runmode = orig
			d.mu.Unlock()
			return nil
		}
		d.lastLine = line
	}
	d.breakCount = 0

	// Still inside a stepped-over callee.
	if d.runmode == StepOver && regs.Frm < d.lastFrm {
		d.mu.Unlock()
		return nil
	}

	if file, ok := d.image.LookupFile(cip); ok {
		d.currentFile = file
	}
	handler := d.handler
	d.mu.Unlock()

	_, span := d.tracer.Start(context.Background(), "debugger.halt",
		trace.WithAttributes(
			attribute.Int64("cip", int64(cip)),
			attribute.Bool("breakpoint", hit != nil),
		))
	d.metrics.IncHalt(hit != nil)
	if hit != nil {
		d.logger.InfoWithFields("halted on breakpoint", map[string]interface{}{
			"number": hit.Number, "addr": cip,
		})
	}

	// The VM stays halted while the user thinks; the host watchdog must
	// not count that time.
	d.watchdog.Pause()
	entry := newEntry(d, ctx, iter, regs, cip, hit)
	mode := handler.HandleHalt(entry)
	d.watchdog.Resume()
	span.End()

	d.mu.Lock()
	d.runmode = mode
	if mode == StepOver || mode == StepOut {
		d.lastFrm = entry.frm
	}
	d.metrics.SetBreakpoints(d.breakpoints.Len())
	d.metrics.SetWatches(d.watches.Len())
	d.mu.Unlock()
	return nil
}

// ReportError enters the front-end on an unhandled VM error. Execution is
// not resumed afterwards for fatal reports; that is the caller's decision.
func (d *Debugger) ReportError(report ErrorReport, ctx vm.Context, iter vm.FrameIterator) {
	d.mu.Lock()
	if !d.active || d.handler == nil {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	// Find the nearest scripted frame.
	iter.Reset()
	for !iter.Done() && !iter.IsScriptedFrame() {
		iter.Next()
	}
	if iter.Done() {
		d.logger.Warn("script error with no scripted frame on the stack")
		return
	}
	cip := iter.Cip()
	if fctx := iter.Context(); fctx != nil {
		ctx = fctx
	}
	iter.Reset()

	d.mu.Lock()
	if line, ok := d.image.LookupLine(cip); ok {
		d.lastLine = line
	}
	if file, ok := d.image.LookupFile(cip); ok {
		d.currentFile = file
	}
	handler := d.handler
	d.mu.Unlock()

	d.logger.ErrorWithFields("unhandled script error", map[string]interface{}{
		"error": report.Message, "fatal": report.Fatal, "cip": cip,
	})
	d.metrics.IncError()

	regs := vm.Registers{Cip: smx.Cell(cip), Frm: ctx.Frm()}
	d.watchdog.Pause()
	entry := newEntry(d, ctx, iter, regs, cip, nil)
	entry.report = &report
	mode := handler.HandleHalt(entry)
	d.watchdog.Resume()

	d.mu.Lock()
	d.runmode = mode
	if mode == StepOver || mode == StepOut {
		d.lastFrm = entry.frm
	}
	d.mu.Unlock()
}
