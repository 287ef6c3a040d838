// Package monitor implements the interactive kernel monitor: a fixed
// command table, a whitespace tokenizer, the dispatcher and the
// read-dispatch loop.
package monitor

import (
	"errors"
	"io"

	"github.com/chzyer/readline"

	"kmon/config"
	"kmon/debuginfo"
	"kmon/logflags"
	"kmon/stack"
	"kmon/target"
)

// State of a monitor session.
type State int

const (
	Running State = iota
	Terminated
)

func (s State) String() string {
	if s == Terminated {
		return "terminated"
	}
	return "running"
}

// LineReader supplies command lines. io.EOF ends the session.
type LineReader interface {
	ReadLine() (string, error)
}

// Monitor dispatches command lines against a registry. Target, Info and
// Symbols may be nil; commands needing them report it.
type Monitor struct {
	Out      *Console
	Commands *Registry
	Target   target.Target
	Info     debuginfo.Resolver
	Symbols  debuginfo.Symbols
	Config   *config.Config

	state State
	argv  ArgVector
}

// New returns a monitor writing to out.
func New(out *Console, cmds *Registry) *Monitor {
	return &Monitor{Out: out, Commands: cmds, Config: config.Default()}
}

// State reports whether the session is still running.
func (m *Monitor) State() State { return m.state }

// Dispatch runs the command named by args[0]. An empty vector and unknown
// commands return 0.
func (m *Monitor) Dispatch(args []string, tf *target.TrapFrame) int {
	if len(args) == 0 {
		return 0
	}
	cmd, ok := m.Commands.Lookup(args[0])
	if !ok {
		m.Out.Printf("Unknown command '%s'\n", args[0])
		return 0
	}
	if logflags.Monitor() {
		logflags.MonitorLogger().Debugf("dispatch %q", args)
	}
	return cmd.Handler.Run(m, args, tf)
}

// RunCmd tokenizes buf in place and dispatches it.
func (m *Monitor) RunCmd(buf []byte, tf *target.TrapFrame) int {
	if err := Tokenize(buf, &m.argv); err != nil {
		m.Out.Printf("Too many arguments (max %d)\n", MaxArgs)
		return 0
	}
	if m.argv.Len() == 0 {
		return 0
	}
	return m.Dispatch(m.argv.Strings(), tf)
}

// Run greets the user and dispatches lines from r until a command returns
// a negative value or r reaches io.EOF.
func (m *Monitor) Run(r LineReader, tf *target.TrapFrame) error {
	m.state = Running
	m.Out.Print("Welcome to the kernel monitor!\n")
	m.Out.Print("Type 'help' for a list of commands.\n")

	for m.state == Running {
		line, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if m.RunCmd([]byte(line), tf) < 0 {
			m.state = Terminated
		}
	}
	return nil
}

func (m *Monitor) walker(maxFrames int) *stack.Walker {
	if maxFrames <= 0 {
		maxFrames = m.Config.MaxFrames
	}
	return &stack.Walker{
		Mem:       stack.NewReader(m.Target, m.Config.StackLow, m.Config.StackHigh),
		Info:      m.Info,
		MaxFrames: maxFrames,
	}
}
