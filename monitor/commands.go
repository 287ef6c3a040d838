package monitor

import (
	"errors"
	"strconv"
	"strings"

	"kmon/stack"
	"kmon/target"
)

// DefaultCommands is the kernel monitor's built-in command table.
func DefaultCommands() []Command {
	return []Command{
		{"help", "Display this list of commands", HandlerFunc(monHelp)},
		{"kerninfo", "Display information about the kernel", HandlerFunc(monKerninfo)},
		{"backtrace", "Display a backtrace of the stack", HandlerFunc(monBacktrace)},
		{"change_color", "Change text attributes", HandlerFunc(monChangeColor)},
	}
}

func monHelp(m *Monitor, args []string, tf *target.TrapFrame) int {
	for i := 0; i < m.Commands.Len(); i++ {
		c := m.Commands.At(i)
		m.Out.Print(c.Name + " - " + c.Description + "\n")
	}
	return 0
}

func roundUp(v, n uint64) uint64 {
	return (v + n - 1) / n * n
}

func monKerninfo(m *Monitor, args []string, tf *target.TrapFrame) int {
	if m.Symbols == nil {
		m.Out.Errorf("no kernel symbols loaded")
		return 0
	}
	kernbase := m.Config.KernBase

	m.Out.Print("Special kernel symbols:\n")
	start, ok := m.Symbols.LookupSymbol("_start")
	if ok {
		m.Out.Printf("  _start                  %016x (phys)\n", start)
	} else {
		m.Out.Print("  _start                  <unknown>\n")
	}

	addrs := map[string]uint64{}
	complete := true
	for _, name := range []string{"entry", "etext", "edata", "end"} {
		addr, ok := m.Symbols.LookupSymbol(name)
		if !ok {
			m.Out.Printf("  %-6s <unknown>\n", name)
			complete = false
			continue
		}
		addrs[name] = addr
		m.Out.Printf("  %-6s %016x (virt)  %016x (phys)\n", name, addr, addr-kernbase)
	}
	if complete && addrs["end"] >= addrs["entry"] {
		m.Out.Printf("Kernel executable memory footprint: %dKB\n", roundUp(addrs["end"]-addrs["entry"], 1024)/1024)
	}
	return 0
}

func monBacktrace(m *Monitor, args []string, tf *target.TrapFrame) int {
	if m.Target == nil {
		m.Out.Errorf("no target attached")
		return 0
	}
	maxFrames := 0
	if len(args) > 1 {
		n, err := strconv.ParseUint(args[1], 0, 16)
		if err != nil {
			m.Out.Errorf("invalid frame count %q", args[1])
			return 0
		}
		maxFrames = int(n)
	}
	if tf == nil {
		regs, err := m.Target.GetRegs()
		if err != nil {
			m.Out.Errorf("could not read registers: %v", err)
			return 0
		}
		tf = regs
	}

	m.Out.Print("Stack backtrace:\n")
	err := m.walker(maxFrames).Walk(tf.Rbp, tf.Rip, func(f *stack.Frame) error {
		m.Out.Print(formatFrame(f))
		return nil
	})
	var ce *stack.CorruptError
	if errors.As(err, &ce) {
		m.Out.Errorf("%v", ce)
	} else if err != nil {
		m.Out.Errorf("backtrace: %v", err)
	}
	return 0
}

func formatFrame(f *stack.Frame) string {
	var b strings.Builder
	stack.Print(&b, f)
	return b.String()
}

func monChangeColor(m *Monitor, args []string, tf *target.TrapFrame) int {
	if len(args) < 4 || args[1] == "" || args[2] == "" || args[3] == "" {
		m.Out.Print("usage: change_color FORE BACK CURSOR (colors r g b w y, cursor 0 or 1)\n")
		return 0
	}
	m.Out.Printf("Fore Color  %c\n", args[1][0])
	m.Out.Printf("Back Color  %c\n", args[2][0])
	m.Out.Printf("Cursor Mode %c\n", args[3][0])
	m.Out.SetAttr(ParseAttr(args[1][0], args[2][0], args[3][0]))
	return 0
}

// ExitCommand ends the session.
func ExitCommand() Command {
	return Command{"exit", "Leave the monitor", HandlerFunc(func(*Monitor, []string, *target.TrapFrame) int {
		return -1
	})}
}
