package monitor

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kmon/debuginfo"
	"kmon/target"
)

func kernelTable() *debuginfo.Table {
	return debuginfo.NewTable(
		[]debuginfo.Func{
			{Name: "i386_init", Lo: 0x9ff0, Hi: 0xa100, NArg: 2},
			{Name: "test_backtrace", Lo: 0xaff0, Hi: 0xb100, NArg: 1},
		},
		[]debuginfo.LineRow{
			{Addr: 0x9ff0, File: "kern/init.c", Line: 42},
			{Addr: 0xaff0, File: "kern/init.c", Line: 17},
			{Addr: 0xb100, End: true},
		},
		[]debuginfo.Symbol{
			{Name: "_start", Addr: 0x100000},
			{Name: "entry", Addr: 0x8004100000, Func: true},
			{Name: "etext", Addr: 0x8004105000},
			{Name: "edata", Addr: 0x8004110000},
			{Name: "end", Addr: 0x8004112345},
			{Name: "start", Addr: 0x1000, Size: 0x100, Func: true},
		},
	)
}

func newKernelMonitor(t *testing.T) (*Monitor, *fakeTarget, *bytes.Buffer) {
	t.Helper()
	m, out := newTestMonitor(append(DefaultCommands(), TargetCommands()...)...)
	tab := kernelTable()
	ft := newFakeTarget()
	m.Target, m.Info, m.Symbols = ft, tab, tab
	return m, ft, out
}

func TestKerninfo(t *testing.T) {
	m, _, out := newKernelMonitor(t)
	assert.Equal(t, 0, m.RunCmd([]byte("kerninfo"), nil))
	assert.Equal(t, "Special kernel symbols:\n"+
		"  _start                  0000000000100000 (phys)\n"+
		"  entry  0000008004100000 (virt)  0000000000100000 (phys)\n"+
		"  etext  0000008004105000 (virt)  0000000000105000 (phys)\n"+
		"  edata  0000008004110000 (virt)  0000000000110000 (phys)\n"+
		"  end    0000008004112345 (virt)  0000000000112345 (phys)\n"+
		"Kernel executable memory footprint: 73KB\n", out.String())
}

func TestKerninfoWithoutSymbols(t *testing.T) {
	m, out := newTestMonitor()
	assert.Equal(t, 0, m.RunCmd([]byte("kerninfo"), nil))
	assert.Equal(t, "[ERROR] no kernel symbols loaded\n", out.String())
}

func TestBacktrace(t *testing.T) {
	m, ft, out := newKernelMonitor(t)
	ft.putWord(0x2000, 0x1000)
	ft.putWord(0x2008, 0xb000)
	ft.putWord(0x1ff8, 1)
	ft.putWord(0x1ff0, 2)
	ft.putWord(0x1000, 0)
	ft.putWord(0x1008, 0)

	tf := &target.TrapFrame{Rbp: 0x2000, Rip: 0xa000}
	assert.Equal(t, 0, m.RunCmd([]byte("backtrace"), tf))
	assert.Equal(t, "Stack backtrace:\n"+
		"  rbp 0000000000002000 rip 000000000000a000\n"+
		"    kern/init.c:42: i386_init+0000000000000010 args:2 0000000000000001 0000000000000002\n"+
		"  rbp 0000000000001000 rip 000000000000b000\n"+
		"    kern/init.c:17: test_backtrace+0000000000000010 args:1 ????????????????\n",
		out.String())
}

func TestBacktraceUsesTargetRegisters(t *testing.T) {
	m, ft, out := newKernelMonitor(t)
	ft.putWord(0x3000, 0)
	ft.putWord(0x3008, 0)
	ft.regs = &target.TrapFrame{Rbp: 0x3000, Rip: 0x500}

	assert.Equal(t, 0, m.RunCmd([]byte("backtrace"), nil))
	assert.Equal(t, "Stack backtrace:\n"+
		"  rbp 0000000000003000 rip 0000000000000500\n"+
		"    <unknown>:0: <unknown>+0000000000000000 args:0\n", out.String())
}

func TestBacktraceCorruptChain(t *testing.T) {
	m, ft, out := newKernelMonitor(t)
	ft.putWord(0x2000, 0x2000)
	ft.putWord(0x2008, 0xa000)

	tf := &target.TrapFrame{Rbp: 0x2000, Rip: 0xa000}
	assert.Equal(t, 0, m.RunCmd([]byte("backtrace"), tf))
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "[ERROR] possible stack corruption at frame #0 (rbp 0000000000002000): frame points to itself", lines[3])
	assert.Equal(t, Running, m.State())
}

func TestBacktraceFrameLimit(t *testing.T) {
	m, ft, out := newKernelMonitor(t)
	for fp := uint64(0x1000); fp < 0x1400; fp += 0x100 {
		ft.putWord(fp, fp+0x100)
		ft.putWord(fp+8, 0xa000)
	}
	ft.putWord(0x1400, 0)
	ft.putWord(0x1408, 0)

	tf := &target.TrapFrame{Rbp: 0x1000, Rip: 0xa000}
	m.RunCmd([]byte("backtrace 2"), tf)
	assert.Equal(t, 2, strings.Count(out.String(), "  rbp "))
	assert.Contains(t, out.String(), "more than 2 frames")

	out.Reset()
	m.RunCmd([]byte("backtrace"), tf)
	assert.Equal(t, 5, strings.Count(out.String(), "  rbp "))
	assert.NotContains(t, out.String(), "[ERROR]")
}

func TestBacktraceWithoutTarget(t *testing.T) {
	m, out := newTestMonitor()
	assert.Equal(t, 0, m.RunCmd([]byte("backtrace"), nil))
	assert.Equal(t, "[ERROR] no target attached\n", out.String())
}

func TestChangeColor(t *testing.T) {
	m, out := newTestMonitor()
	assert.Equal(t, 0, m.RunCmd([]byte("change_color r b 1"), nil))
	assert.Equal(t, "Fore Color  r\nBack Color  b\nCursor Mode 1\n", out.String())
	assert.Equal(t, TextAttr(0x8000|0x1<<12|0x4<<8), m.Out.Attr())

	out.Reset()
	assert.Equal(t, 0, m.RunCmd([]byte("change_color r"), nil))
	assert.True(t, strings.HasPrefix(out.String(), "usage: change_color"))
	assert.Equal(t, TextAttr(0x8000|0x1<<12|0x4<<8), m.Out.Attr())
}

func TestRegs(t *testing.T) {
	m, _, out := newKernelMonitor(t)
	tf := &target.TrapFrame{Rax: 0x1, R15: 0xf, Rip: 0xa000, Cs: 0x8}
	assert.Equal(t, 0, m.RunCmd([]byte("regs"), tf))
	s := out.String()
	assert.Contains(t, s, "$rax   : 0x0000000000000001\n")
	assert.Contains(t, s, "$r15   : 0x000000000000000f\n")
	assert.Contains(t, s, "$rip   : 0x000000000000a000\n")
	assert.Contains(t, s, "$cs: 8 ")
}

func TestStackAndExamine(t *testing.T) {
	m, ft, out := newKernelMonitor(t)
	ft.putWord(0x7000, 0x1010)
	ft.putWord(0x7008, 0x42)
	ft.putWord(0x7010, 0x43)
	tf := &target.TrapFrame{Rsp: 0x7000}

	assert.Equal(t, 0, m.RunCmd([]byte("stack 2"), tf))
	assert.Equal(t, "0x0000000000007000: 0x0000000000001010 <start+16>\n"+
		"0x0000000000007008: 0x0000000000000042\n", out.String())

	out.Reset()
	m.RunCmd([]byte("x $rsp+8 2"), tf)
	assert.Equal(t, "0x0000000000007008: 0x0000000000000042\n"+
		"0x0000000000007010: 0x0000000000000043\n", out.String())

	out.Reset()
	m.RunCmd([]byte("x 0x9000"), tf)
	assert.True(t, strings.HasPrefix(out.String(), "[ERROR] could not read memory at 0x0000000000009000"))

	out.Reset()
	m.RunCmd([]byte("x $bogus"), tf)
	assert.Equal(t, "[ERROR] failed to resolve symbol: bogus\n", out.String())

	out.Reset()
	m.RunCmd([]byte("stack zero"), tf)
	assert.Equal(t, "[ERROR] invalid count \"zero\"\n", out.String())
}

func TestDisass(t *testing.T) {
	m, ft, out := newKernelMonitor(t)
	code := []byte{0x55, 0x48, 0x89, 0xe5, 0xc3}
	ft.putBytes(0x1000, append(code, bytes.Repeat([]byte{0x90}, 64)...))
	tf := &target.TrapFrame{Rip: 0x1000}

	assert.Equal(t, 0, m.RunCmd([]byte("disass $rip 3"), tf))
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "0x0000000000001000 <start+0>: push"))
	assert.True(t, strings.HasPrefix(lines[1], "0x0000000000001001 <start+1>: mov"))
	assert.True(t, strings.HasPrefix(lines[2], "0x0000000000001004 <start+4>: ret"))
}

func TestTargetCommandsWithoutFrame(t *testing.T) {
	m, _, out := newKernelMonitor(t)
	for _, line := range []string{"regs", "stack", "x 0", "disass"} {
		out.Reset()
		assert.Equal(t, 0, m.RunCmd([]byte(line), nil))
		assert.Equal(t, "[ERROR] no trap frame\n", out.String(), line)
	}
}
