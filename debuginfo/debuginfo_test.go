package debuginfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() *Table {
	funcs := []Func{
		{Name: "mon_backtrace", Lo: 0x2000, Hi: 0x2100, NArg: 3},
		{Name: "i386_init", Lo: 0x1000, Hi: 0x1080, NArg: 0},
		{Name: "cprintf", Lo: 0x3000, Hi: 0x3040, NArg: 1},
	}
	lines := []LineRow{
		{Addr: 0x1000, File: "kern/init.c", Line: 24},
		{Addr: 0x1010, File: "kern/init.c", Line: 30},
		{Addr: 0x1080, End: true},
		{Addr: 0x2000, File: "kern/monitor.c", Line: 60},
		{Addr: 0x2040, File: "kern/monitor.c", Line: 72},
		{Addr: 0x2100, End: true},
	}
	syms := []Symbol{
		{Name: "i386_init", Addr: 0x1000, Size: 0x80, Func: true},
		{Name: "mon_backtrace", Addr: 0x2000, Size: 0x100, Func: true},
		{Name: "cprintf", Addr: 0x3000, Size: 0x40, Func: true},
		{Name: "entry", Addr: 0x800, Func: true},
		{Name: "end", Addr: 0x9000},
	}
	return NewTable(funcs, lines, syms)
}

func TestSpanIsBounded(t *testing.T) {
	buf := []byte("i386_initmon_backtrace")
	s := MakeSpan(buf, 0, 9)
	assert.Equal(t, 9, s.Len())
	assert.Equal(t, "i386_init", s.String())
	assert.Equal(t, 9, cap(s.Bytes()))

	assert.Equal(t, 0, MakeSpan(buf, 20, 10).Len())
}

func TestTableLookup(t *testing.T) {
	tab := testTable()

	info, err := tab.Lookup(0x2050)
	require.NoError(t, err)
	assert.Equal(t, "kern/monitor.c", info.File)
	assert.Equal(t, 72, info.Line)
	assert.Equal(t, "mon_backtrace", info.FnName.String())
	assert.Equal(t, uint64(0x2000), info.FnAddr)
	assert.Equal(t, 3, info.NArg)

	info, err = tab.Lookup(0x1008)
	require.NoError(t, err)
	assert.Equal(t, 24, info.Line)
	assert.Equal(t, "i386_init", info.FnName.String())
}

func TestTableNamesShareOneBuffer(t *testing.T) {
	tab := testTable()
	info, err := tab.Lookup(0x1000)
	require.NoError(t, err)
	// The span is a window in the shared table, not a terminated string.
	assert.Greater(t, len(tab.names), info.FnName.Len())
	assert.Equal(t, "i386_init", string(info.FnName.Bytes()))
}

func TestTableLookupMiss(t *testing.T) {
	tab := testTable()

	info, err := tab.Lookup(0x1090)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "<unknown>", info.File)
	assert.Equal(t, "<unknown>", info.FnName.String())
	assert.Equal(t, uint64(0x1090), info.FnAddr)
	assert.Equal(t, 0, info.NArg)
}

func TestTableFunctionWithoutLines(t *testing.T) {
	tab := testTable()
	info, err := tab.Lookup(0x3010)
	require.NoError(t, err)
	assert.Equal(t, "cprintf", info.FnName.String())
	assert.Equal(t, "<unknown>", info.File)
	assert.Equal(t, 0, info.Line)
}

func TestTableNestedFunctions(t *testing.T) {
	tab := NewTable([]Func{
		{Name: "outer", Lo: 0x100, Hi: 0x200},
		{Name: "inner", Lo: 0x120, Hi: 0x140},
	}, nil, nil)

	info, err := tab.Lookup(0x130)
	require.NoError(t, err)
	assert.Equal(t, "inner", info.FnName.String())

	info, err = tab.Lookup(0x180)
	require.NoError(t, err)
	assert.Equal(t, "outer", info.FnName.String())
}

func TestTableSymbols(t *testing.T) {
	tab := testTable()

	addr, ok := tab.LookupSymbol("end")
	require.True(t, ok)
	assert.Equal(t, uint64(0x9000), addr)

	_, ok = tab.LookupSymbol("nosuch")
	assert.False(t, ok)

	name, off, ok := tab.SymbolAt(0x2010)
	require.True(t, ok)
	assert.Equal(t, "mon_backtrace", name)
	assert.Equal(t, uint64(0x10), off)

	_, _, ok = tab.SymbolAt(0x3050)
	assert.False(t, ok)
}

type countingResolver struct {
	calls int
}

func (r *countingResolver) Lookup(pc uint64) (Info, error) {
	r.calls++
	if pc == 0 {
		return Placeholder(pc), ErrNotFound
	}
	return Info{File: "f.c", Line: int(pc), FnAddr: pc}, nil
}

func TestCache(t *testing.T) {
	r := &countingResolver{}
	c, err := NewCache(r, 4)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		info, err := c.Lookup(0x10)
		require.NoError(t, err)
		assert.Equal(t, 0x10, info.Line)
	}
	assert.Equal(t, 1, r.calls)

	_, err = c.Lookup(0)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Lookup(0)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, r.calls)

	_, err = NewCache(r, 0)
	assert.Error(t, err)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open("/nonexistent/kernel")
	assert.Error(t, err)
}
