package monitor

import (
	"errors"
	"fmt"

	"kmon/target"
)

// Handler runs a command. args[0] is the command name. A negative result
// ends the monitor session.
type Handler interface {
	Run(m *Monitor, args []string, tf *target.TrapFrame) int
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(m *Monitor, args []string, tf *target.TrapFrame) int

func (f HandlerFunc) Run(m *Monitor, args []string, tf *target.TrapFrame) int {
	return f(m, args, tf)
}

// Command is a registered monitor command.
type Command struct {
	Name        string
	Description string
	Handler     Handler
}

// Registry is an immutable, ordered command table.
type Registry struct {
	cmds []Command
}

// NewRegistry builds a registry, keeping the order of cmds.
func NewRegistry(cmds ...Command) (*Registry, error) {
	r := &Registry{cmds: make([]Command, 0, len(cmds))}
	for _, c := range cmds {
		if c.Name == "" {
			return nil, errors.New("command without a name")
		}
		if c.Handler == nil {
			return nil, fmt.Errorf("command %q has no handler", c.Name)
		}
		if _, dup := r.Lookup(c.Name); dup {
			return nil, fmt.Errorf("command %q registered twice", c.Name)
		}
		r.cmds = append(r.cmds, c)
	}
	return r, nil
}

// MustRegistry is NewRegistry for static tables.
func MustRegistry(cmds ...Command) *Registry {
	r, err := NewRegistry(cmds...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup scans the table in registration order.
func (r *Registry) Lookup(name string) (Command, bool) {
	for _, c := range r.cmds {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// Len is the number of registered commands.
func (r *Registry) Len() int { return len(r.cmds) }

// At returns the i-th command in registration order.
func (r *Registry) At(i int) Command { return r.cmds[i] }
