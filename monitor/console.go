package monitor

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorWhite  = "\033[37m"
	ColorBold   = "\033[1m"
)

// Console is the monitor's output. With colors enabled numbers and
// strings are highlighted and the text attribute set by change_color
// applies to everything written.
type Console struct {
	w     io.Writer
	fd    int
	color bool
	attr  TextAttr
}

// NewConsole writes plain text to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w, fd: -1}
}

// NewStdoutConsole writes to stdout, with colors when it is a terminal
// and color is set.
func NewStdoutConsole(color bool) *Console {
	fd := os.Stdout.Fd()
	return &Console{
		w:     os.Stdout,
		fd:    int(fd),
		color: color && (isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)),
	}
}

// Attr returns the text attribute word. The default, zero, leaves the
// terminal colors alone.
func (c *Console) Attr() TextAttr { return c.attr }

// SetAttr replaces the text attribute word.
func (c *Console) SetAttr(a TextAttr) { c.attr = a }

func (c *Console) write(s string) {
	if c.color && c.attr != 0 {
		s = c.attr.ANSI() + s + ColorReset
	}
	io.WriteString(c.w, s)
}

// Printf is fmt.Printf with numbers in cyan and strings in green.
func (c *Console) Printf(msg string, a ...interface{}) {
	if c.color && c.attr == 0 {
		msg = strings.ReplaceAll(msg, "%d", ColorCyan+"%d"+ColorReset)
		msg = strings.ReplaceAll(msg, "%016x", ColorCyan+"%016x"+ColorReset)
		msg = strings.ReplaceAll(msg, "%08x", ColorCyan+"%08x"+ColorReset)
		msg = strings.ReplaceAll(msg, "%s", ColorGreen+"%s"+ColorReset)
	}
	c.write(fmt.Sprintf(msg, a...))
}

// Print writes s verbatim.
func (c *Console) Print(s string) {
	c.write(s)
}

// Errorf reports a failed command.
func (c *Console) Errorf(msg string, a ...interface{}) {
	if c.color {
		io.WriteString(c.w, ColorRed+"[ERROR]"+ColorReset+" "+fmt.Sprintf(msg, a...)+"\n")
		return
	}
	io.WriteString(c.w, "[ERROR] "+fmt.Sprintf(msg, a...)+"\n")
}

// HLine prints a banner as wide as the terminal.
func (c *Console) HLine(msg string) {
	if c.fd >= 0 && term.IsTerminal(c.fd) {
		w, _, err := term.GetSize(c.fd)
		if err == nil && w > len(msg)+2 {
			side := strings.Repeat("-", (w-len(msg)-2)/2)
			io.WriteString(c.w, side+"["+msg+"]"+side+"\n")
			return
		}
	}
	io.WriteString(c.w, "["+msg+"]\n")
}
