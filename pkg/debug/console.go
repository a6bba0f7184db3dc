package debug

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/pawnlang/pawndbg/pkg/smx"
)

// LineReader supplies one line of user input per call. The CLI wires a
// readline-backed prompt; tests feed a buffered reader.
type LineReader func() (string, error)

// Console is the line-oriented local front-end. It is entered on the VM
// thread at each halt and drives the debugger until the user picks a run
// mode.
type Console struct {
	read LineReader
	out  io.Writer
}

func NewConsole(read LineReader, out io.Writer) *Console {
	return &Console{read: read, out: out}
}

// skipPath strips leading directories from a file path for display.
func skipPath(path string) string {
	if i := strings.LastIndexAny(path, "/\\"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func (c *Console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// HandleHalt implements Handler. It returns the run mode to resume with.
func (c *Console) HandleHalt(e *Entry) Runmode {
	d := e.dbg

	if e.report != nil {
		if e.report.Fatal {
			c.printf("%s %s\n", color.RedString("STOP on FATAL exception:"), e.report.Message)
		} else {
			c.printf("%s %s\n", color.RedString("STOP on exception:"), e.report.Message)
		}
	}

	if e.hit != nil {
		c.printf("%s %d at line %d in %s\n", color.YellowString("BREAK"), e.hit.Number, d.LastLine(), skipPath(d.CurrentFile()))
	} else {
		c.printf("%s at line %d in %s\n", color.YellowString("STOP"), d.LastLine(), skipPath(d.CurrentFile()))
	}

	c.listWatches(e)

	for {
		line, err := c.read()
		if err != nil {
			// Losing stdin is treated as "go".
			return Running
		}
		line = strings.TrimSpace(line)

		// Repeat the last step/next, if no new command was given.
		if line == "" {
			line = d.lastCommand
		}
		d.lastCommand = ""

		command := line
		params := ""
		if sp := strings.IndexAny(line, " \t"); sp >= 0 {
			command = line[:sp]
			params = strings.TrimSpace(line[sp+1:])
		}
		command = strings.ToLower(command)
		if command == "" {
			c.listCommands("")
			continue
		}

		switch command {
		case "?":
			c.listCommands(strings.ToLower(params))

		case "quit":
			c.printf("Clearing all breakpoints. Running normally.\n")
			d.Deactivate()
			return Running

		case "g", "go":
			if strings.EqualFold(params, "func") {
				return StepOut
			}
			return Running

		case "s", "step":
			d.lastCommand = "s"
			return Stepping

		case "n", "next":
			d.lastCommand = "n"
			return StepOver

		case "funcs":
			c.printf("Listing functions:\n")
			c.listFunctions(e)

		case "files":
			c.printf("Source files:\n")
			for _, f := range e.Image().Files() {
				c.printf("%s\n", f.Name)
			}

		case "bt", "backtrace":
			c.printf("Stack trace:\n")
			e.DumpStack(c.out)

		case "f", "frame":
			c.cmdFrame(e, params)

		case "break", "tbreak":
			c.cmdBreak(e, command == "tbreak", params)

		case "cbreak":
			c.cmdClearBreak(e, params)

		case "disp", "d":
			c.cmdDisplay(e, params)

		case "set":
			c.cmdSet(e, params)
			c.listWatches(e)

		case "type":
			c.cmdType(e, params)

		case "pos":
			c.cmdPos(e)

		case "w", "watch":
			if params == "" {
				c.printf("Missing variable name\n")
				continue
			}
			if d.watches.Add(params) {
				c.listWatches(e)
			} else {
				c.printf("Invalid watch\n")
			}

		case "cw", "cwatch":
			if params == "" {
				c.printf("Missing variable name\n")
				continue
			}
			c.cmdClearWatch(e, params)
			c.listWatches(e)

		default:
			c.printf("\tInvalid command \"%s\", use \"?\" to view all commands\n", command)
		}
	}
}

func (c *Console) cmdFrame(e *Entry, params string) {
	if params == "" || params[0] < '0' || params[0] > '9' {
		c.printf("Invalid syntax. Type \"? frame\" for help.\n")
		return
	}
	n, _ := strconv.Atoi(params)
	if err := e.SelectFrame(n); err != nil {
		c.printf("%s.\n", err)
		return
	}
	c.printf("Selected frame %d.\n", n)
}

func (c *Console) cmdBreak(e *Entry, temporary bool, params string) {
	d := e.dbg
	if params == "" {
		c.listBreakpoints(e)
		return
	}

	// A filename may precede the breakpoint location; the user usually
	// types a partial name.
	filename := d.CurrentFile()
	if sep := strings.Index(params, ":"); sep >= 0 {
		resolved, ok := e.Image().FindFileByPartialName(params[:sep])
		if !ok {
			c.printf("Invalid filename.\n")
			return
		}
		filename = resolved
		params = strings.TrimSpace(params[sep+1:])
	}

	var bp *Breakpoint
	var ok bool
	switch {
	case params != "" && params[0] >= '0' && params[0] <= '9':
		n, _ := strconv.ParseUint(params, 10, 32)
		// Typed lines are 1-based, the line table is 0-based.
		bp, ok = d.breakpoints.AddLine(filename, d.CurrentFile(), uint32(n)-1, temporary)
	case params == ".":
		bp, ok = d.breakpoints.AddLine(filename, d.CurrentFile(), d.LastLine()-1, temporary)
	default:
		bp, ok = d.breakpoints.AddFunction(filename, params, temporary)
	}

	if !ok {
		c.printf("Invalid breakpoint\n")
		return
	}
	line, _ := e.Image().LookupLine(bp.Addr)
	c.printf("Set breakpoint %d in file %s on line %d", bp.Number, skipPath(filename), line)
	if bp.FuncName != "" {
		c.printf(" in function %s", bp.FuncName)
	}
	c.printf("\n")
}

func (c *Console) cmdClearBreak(e *Entry, params string) {
	d := e.dbg
	if params == "*" {
		d.breakpoints.ClearAll()
		return
	}
	number := d.breakpoints.FindBySpec(params, d.CurrentFile())
	if number < 0 || !d.breakpoints.ClearByNumber(number) {
		c.printf("\tUnknown breakpoint (or wrong syntax)\n")
		return
	}
	c.printf("\tCleared breakpoint %d\n", number)
}

func (c *Console) listBreakpoints(e *Entry) {
	for _, info := range e.dbg.breakpoints.List() {
		c.printf("%2d  ", info.Bp.Number)
		c.printf("line: %d", info.Line)
		if info.Bp.Temporary {
			c.printf("  (TEMP)")
		}
		if info.File != "" {
			c.printf("\tfile: %s", skipPath(info.File))
		}
		if info.Bp.FuncName != "" {
			c.printf("\tfunc: %s", info.Bp.FuncName)
		}
		c.printf("\n")
	}
}

func (c *Console) cmdDisplay(e *Entry, params string) {
	if params == "" {
		// Display all variables that are in scope.
		for _, sym := range e.Image().Symbols() {
			if sym.Ident == smx.IdentFunction || e.cip < sym.CodeStart || e.cip > sym.CodeEnd {
				continue
			}
			cls := "glb"
			if sym.Local() {
				cls = "loc"
			}
			c.printf("%s\t%s\t%s\n", cls, sym.Name, e.FormatVariable(sym, nil))
		}
		return
	}

	name, idx := ParseSymbolExpr(params)
	sym, ok := e.Image().GetVariable(name, e.cip)
	if !ok {
		c.printf("\tSymbol not found, or not a variable\n")
		return
	}
	cls := "glb"
	if sym.Local() {
		cls = "loc"
	}
	c.printf("%s\t%s\t%s\n", cls, params, e.FormatVariable(sym, idx))
}

func (c *Console) cmdSet(e *Entry, params string) {
	eq := strings.Index(params, "=")
	if eq < 0 {
		c.printf("Invalid syntax for \"set\". Type \"? set\".\n")
		return
	}
	lhs := strings.TrimSpace(params[:eq])
	value, err := strconv.ParseInt(strings.TrimSpace(params[eq+1:]), 10, 64)
	if err != nil || lhs == "" {
		c.printf("Invalid syntax for \"set\". Type \"? set\".\n")
		return
	}

	name, idx := ParseSymbolExpr(lhs)
	index := 0
	if len(idx) > 0 {
		index = int(idx[0])
	}

	sym, ok := e.Image().GetVariable(name, e.cip)
	if !ok {
		c.printf("Symbol not found or not a variable\n")
		return
	}
	if err := e.SetSymbolValue(sym, index, smx.Cell(value)); err != nil {
		c.printf("Invalid address for \"%s\"\n", name)
		return
	}
	if index > 0 {
		c.printf("%s[%d] set to %d\n", name, index, value)
	} else {
		c.printf("%s set to %d\n", name, value)
	}
}

func (c *Console) cmdType(e *Entry, params string) {
	fields := strings.Fields(params)
	if len(fields) == 0 {
		c.printf("\tInvalid (or missing) symbol name\n")
		return
	}
	symname := fields[0]
	format := ""
	if len(fields) > 1 {
		format = strings.ToLower(fields[1])
	}

	sym, ok := e.Image().GetVariable(symname, e.cip)
	if !ok {
		c.printf("\tUnknown symbol \"%s\"\n", symname)
		return
	}

	switch format {
	case "std":
		sym.VClass = sym.VClass&dispMask | DispDefault
	case "string":
		if !isArray(sym) || len(sym.Dims) != 1 {
			c.printf("\t\"string\" display type is only valid for arrays with one dimension\n")
			return
		}
		sym.VClass = sym.VClass&dispMask | DispString
	case "bin":
		sym.VClass = sym.VClass&dispMask | DispBin
	case "hex":
		sym.VClass = sym.VClass&dispMask | DispHex
	case "float":
		sym.VClass = sym.VClass&dispMask | DispFloat
	default:
		c.printf("\tUnknown (or missing) display type\n")
		return
	}
	c.listWatches(e)
}

func (c *Console) cmdPos(e *Entry) {
	d := e.dbg
	c.printf("\tfile: %s", skipPath(d.CurrentFile()))
	if function, ok := e.Image().LookupFunction(e.cip); ok {
		c.printf("\tfunction: %s", function)
	}
	c.printf("\tline: %d", d.LastLine())
	if e.selectedFrame > 0 {
		c.printf("\tframe: %d", e.selectedFrame)
	}
	c.printf("\n")
}

func (c *Console) cmdClearWatch(e *Entry, params string) {
	d := e.dbg
	switch {
	case params == "*":
		d.watches.ClearAll()
	case params[0] >= '0' && params[0] <= '9':
		n, _ := strconv.Atoi(params)
		if !d.watches.ClearByIndex(n) {
			c.printf("Bad watch number\n")
		}
	default:
		if !d.watches.ClearByName(params) {
			c.printf("Variable not watched\n")
		}
	}
}

// listWatches prints every watched expression with its current value.
func (c *Console) listWatches(e *Entry) {
	for i, expr := range e.dbg.watches.List() {
		name, idx := ParseSymbolExpr(expr)
		sym, ok := e.Image().GetVariable(name, e.cip)
		if !ok {
			c.printf("%d  %-12s (not in scope)\n", i+1, expr)
			continue
		}
		c.printf("%d  %-12s %s\n", i+1, expr, e.FormatVariable(sym, idx))
	}
}

func (c *Console) listFunctions(e *Entry) {
	for _, sym := range e.Image().Symbols() {
		if sym.Ident != smx.IdentFunction {
			continue
		}
		c.printf("%s", sym.Name)
		if file, ok := e.Image().LookupFile(uint32(sym.Addr)); ok {
			c.printf("\t(%s)", skipPath(file))
		}
		c.printf("\n")
	}
}

// listCommands prints the general or per-command help.
func (c *Console) listCommands(command string) {
	if command == "" || command == "?" {
		c.printf("At the prompt, you can type debug commands. For example, the word \"step\" is a\n" +
			"command to execute a single line in the source code. The commands that you will\n" +
			"use most frequently may be abbreviated to a single letter: instead of the full\n" +
			"word \"step\", you can also type the letter \"s\" followed by the enter key.\n\n" +
			"Available commands:\n")
	} else {
		c.printf("Options for command \"%s\":\n", command)
	}

	switch command {
	case "break", "tbreak":
		c.printf("\tUse TBREAK for one-time breakpoints\n\n" +
			"\tBREAK\t\tlist all breakpoints\n" +
			"\tBREAK n\t\tset a breakpoint at line \"n\"\n" +
			"\tBREAK name:n\tset a breakpoint in file \"name\" at line \"n\"\n" +
			"\tBREAK func\tset a breakpoint at function with name \"func\"\n" +
			"\tBREAK .\tset a breakpoint at the current location\n")
	case "cbreak":
		c.printf("\tCBREAK n\tremove breakpoint number \"n\"\n" +
			"\tCBREAK *\tremove all breakpoints\n")
	case "cw", "cwatch":
		c.printf("\tCWATCH may be abbreviated to CW\n\n" +
			"\tCWATCH n\tremove watch number \"n\"\n" +
			"\tCWATCH var\tremove watch from \"var\"\n" +
			"\tCWATCH *\tremove all watches\n")
	case "d", "disp":
		c.printf("\tDISP may be abbreviated to D\n\n" +
			"\tDISP\t\tdisplay all variables that are currently in scope\n" +
			"\tDISP var\tdisplay the value of variable \"var\"\n" +
			"\tDISP var[i]\tdisplay the value of array element \"var[i]\"\n")
	case "f", "frame":
		c.printf("\tFRAME may be abbreviated to F\n\n" +
			"\tFRAME n\tselect frame n and show/change local variables in that function\n")
	case "g", "go":
		c.printf("\tGO may be abbreviated to G\n\n" +
			"\tGO\t\trun until the next breakpoint or program termination\n" +
			"\tGO func\t\trun until the current function returns (\"step out\")\n")
	case "set":
		c.printf("\tSET var=value\t\tset variable \"var\" to the numeric value \"value\"\n" +
			"\tSET var[i]=value\tset array item \"var\" to a numeric value\n")
	case "type":
		c.printf("\tTYPE var STRING\tdisplay \"var\" as string\n" +
			"\tTYPE var STD\tset default display format (decimal integer)\n" +
			"\tTYPE var HEX\tset hexadecimal integer format\n" +
			"\tTYPE var FLOAT\tset floating point format\n")
	case "watch", "w":
		c.printf("\tWATCH may be abbreviated to W\n\n" +
			"\tWATCH var\tset a new watch at variable \"var\"\n")
	case "n", "next", "quit", "pos", "s", "step", "files", "funcs", "bt", "backtrace":
		c.printf("\tno additional information\n")
	default:
		c.printf("\tB(ack)T(race)\t\tdisplay the stack trace\n" +
			"\tBREAK\t\tset breakpoint at line number or function name\n" +
			"\tCBREAK\t\tremove breakpoint\n" +
			"\tCW(atch)\tremove a \"watchpoint\"\n" +
			"\tD(isp)\t\tdisplay the value of a variable, list variables\n" +
			"\tFILES\t\tlist all files that this program is composed off\n" +
			"\tF(rame)\t\tSelect a frame from the back trace to operate on\n" +
			"\tFUNCS\t\tdisplay functions\n" +
			"\tG(o)\t\trun program (until breakpoint)\n" +
			"\tN(ext)\t\tRun until next line, step over functions\n" +
			"\tPOS\t\tShow current file and line\n" +
			"\tQUIT\t\texit debugger\n" +
			"\tSET\t\tSet a variable to a value\n" +
			"\tS(tep)\t\tsingle step, step into functions\n" +
			"\tTYPE\t\tset the \"display type\" of a symbol\n" +
			"\tW(atch)\t\tset a \"watchpoint\" on a variable\n" +
			"\n\tUse \"? <command name>\" to view more information on a command\n")
	}
}
