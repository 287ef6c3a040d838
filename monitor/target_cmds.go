package monitor

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"golang.org/x/arch/x86/x86asm"

	"kmon/target"
)

// TargetCommands inspect the attached machine's registers and memory.
func TargetCommands() []Command {
	return []Command{
		{"regs", "Display the trap frame registers", HandlerFunc(monRegs)},
		{"stack", "Dump words from the stack pointer: stack [N]", HandlerFunc(monStack)},
		{"x", "Dump quad words: x ADDR [N]", HandlerFunc(monExamine)},
		{"disass", "Disassemble instructions: disass [ADDR] [N]", HandlerFunc(monDisass)},
	}
}

func (m *Monitor) needTarget(tf *target.TrapFrame) bool {
	if m.Target == nil {
		m.Out.Errorf("no target attached")
		return false
	}
	if tf == nil {
		m.Out.Errorf("no trap frame")
		return false
	}
	return true
}

func monRegs(m *Monitor, args []string, tf *target.TrapFrame) int {
	if tf == nil {
		m.Out.Errorf("no trap frame")
		return 0
	}
	m.Out.HLine("registers")
	regs := []struct {
		name string
		val  uint64
	}{
		{"rax", tf.Rax}, {"rbx", tf.Rbx}, {"rcx", tf.Rcx}, {"rdx", tf.Rdx},
		{"rsi", tf.Rsi}, {"rdi", tf.Rdi}, {"rbp", tf.Rbp}, {"rsp", tf.Rsp},
		{"r8", tf.R8}, {"r9", tf.R9}, {"r10", tf.R10}, {"r11", tf.R11},
		{"r12", tf.R12}, {"r13", tf.R13}, {"r14", tf.R14}, {"r15", tf.R15},
		{"rip", tf.Rip}, {"eflags", tf.Eflags},
	}
	for _, r := range regs {
		m.Out.Printf("$%-6s: 0x%016x\n", r.name, r.val)
	}
	m.Out.Printf("$cs: %x $ss: %x $ds: %x $es: %x $fs: %x $gs: %x\n",
		tf.Cs, tf.Ss, tf.Ds, tf.Es, tf.Fs, tf.Gs)
	return 0
}

func (m *Monitor) optCount(args []string, i int, def uint64) (uint64, bool) {
	if len(args) <= i {
		return def, true
	}
	n, err := strconv.ParseUint(args[i], 0, 16)
	if err != nil || n == 0 {
		m.Out.Errorf("invalid count %q", args[i])
		return 0, false
	}
	return n, true
}

func (m *Monitor) dumpWords(addr, n uint64) {
	data, err := m.Target.GetMemory(uint(n*8), uintptr(addr))
	if err != nil {
		m.Out.Errorf("could not read memory at 0x%016x: %v", addr, err)
		return
	}
	for i := 0; i+8 <= len(data); i += 8 {
		val := binary.LittleEndian.Uint64(data[i:])
		line := fmt.Sprintf("0x%016x: 0x%016x", addr+uint64(i), val)
		if m.Symbols != nil {
			if name, off, ok := m.Symbols.SymbolAt(val); ok {
				line += fmt.Sprintf(" <%s+%d>", name, off)
			}
		}
		m.Out.Print(line + "\n")
	}
}

func monStack(m *Monitor, args []string, tf *target.TrapFrame) int {
	if !m.needTarget(tf) {
		return 0
	}
	n, ok := m.optCount(args, 1, 16)
	if !ok {
		return 0
	}
	m.dumpWords(tf.Rsp, n)
	return 0
}

func monExamine(m *Monitor, args []string, tf *target.TrapFrame) int {
	if !m.needTarget(tf) {
		return 0
	}
	if len(args) < 2 {
		m.Out.Print("usage: x ADDR [N]\n")
		return 0
	}
	addr, err := m.EvalAddr(args[1], tf)
	if err != nil {
		m.Out.Errorf("%v", err)
		return 0
	}
	n, ok := m.optCount(args, 2, 8)
	if !ok {
		return 0
	}
	m.dumpWords(addr, n)
	return 0
}

// maxInstLen is the longest x86 instruction.
const maxInstLen = 15

func monDisass(m *Monitor, args []string, tf *target.TrapFrame) int {
	if !m.needTarget(tf) {
		return 0
	}
	addr := tf.Rip
	if len(args) > 1 {
		var err error
		if addr, err = m.EvalAddr(args[1], tf); err != nil {
			m.Out.Errorf("%v", err)
			return 0
		}
	}
	n, ok := m.optCount(args, 2, 8)
	if !ok {
		return 0
	}

	code, err := m.Target.GetMemory(uint(n*maxInstLen), uintptr(addr))
	if err != nil {
		m.Out.Errorf("could not read memory at 0x%016x: %v", addr, err)
		return 0
	}
	pc := addr
	for i := uint64(0); i < n && len(code) > 0; i++ {
		inst, err := x86asm.Decode(code, 64)
		text := ""
		size := 1
		if err != nil {
			text = fmt.Sprintf(".byte 0x%02x", code[0])
		} else {
			text = x86asm.GNUSyntax(inst, pc, m.symLookup)
			size = inst.Len
		}
		m.Out.Print(fmt.Sprintf("0x%016x%s: %s\n", pc, m.symSuffix(pc), text))
		code = code[size:]
		pc += uint64(size)
	}
	return 0
}

func (m *Monitor) symLookup(addr uint64) (string, uint64) {
	if m.Symbols == nil {
		return "", 0
	}
	name, off, ok := m.Symbols.SymbolAt(addr)
	if !ok {
		return "", 0
	}
	return name, addr - off
}

func (m *Monitor) symSuffix(addr uint64) string {
	if m.Symbols == nil {
		return ""
	}
	if name, off, ok := m.Symbols.SymbolAt(addr); ok {
		return fmt.Sprintf(" <%s+%d>", name, off)
	}
	return ""
}
