package debuginfo

import (
	"sort"
)

// Func describes one function of the kernel image.
type Func struct {
	Name string
	Lo   uint64
	Hi   uint64
	NArg int
}

// LineRow is one row of a line table. End marks the first address past a
// sequence.
type LineRow struct {
	Addr uint64
	File string
	Line int
	End  bool
}

// Symbol is an ELF symbol table entry.
type Symbol struct {
	Name string
	Addr uint64
	Size uint64
	Func bool
}

type tableFunc struct {
	lo, hi uint64
	name   Span
	narg   int
}

// Table is an in-memory Resolver and Symbols over sorted functions, line
// rows and symbols. All function names share one byte table.
type Table struct {
	names  []byte
	funcs  []tableFunc
	lines  []LineRow
	syms   []Symbol
	byName map[string]uint64
}

// NewTable builds a table. The argument slices are sorted in place.
func NewTable(funcs []Func, lines []LineRow, syms []Symbol) *Table {
	t := &Table{
		lines:  lines,
		byName: make(map[string]uint64, len(syms)),
	}

	size := 0
	for _, fn := range funcs {
		size += len(fn.Name)
	}
	t.names = make([]byte, 0, size)
	t.funcs = make([]tableFunc, 0, len(funcs))
	for _, fn := range funcs {
		if fn.Hi <= fn.Lo {
			continue
		}
		off := len(t.names)
		t.names = append(t.names, fn.Name...)
		t.funcs = append(t.funcs, tableFunc{lo: fn.Lo, hi: fn.Hi, narg: fn.NArg})
		t.funcs[len(t.funcs)-1].name = Span{off: off, n: len(fn.Name)}
	}
	for i := range t.funcs {
		t.funcs[i].name.buf = t.names
	}
	sort.SliceStable(t.funcs, func(i, j int) bool { return t.funcs[i].lo < t.funcs[j].lo })

	sort.SliceStable(t.lines, func(i, j int) bool {
		if t.lines[i].Addr != t.lines[j].Addr {
			return t.lines[i].Addr < t.lines[j].Addr
		}
		return t.lines[i].End && !t.lines[j].End
	})

	for _, s := range syms {
		if s.Name == "" {
			continue
		}
		if _, dup := t.byName[s.Name]; !dup {
			t.byName[s.Name] = s.Addr
		}
		t.syms = append(t.syms, s)
	}
	sort.SliceStable(t.syms, func(i, j int) bool { return t.syms[i].Addr < t.syms[j].Addr })
	return t
}

// Lookup resolves pc. When only part of the information is known the rest
// keeps placeholder values and the error is nil.
func (t *Table) Lookup(pc uint64) (Info, error) {
	info := Placeholder(pc)
	found := false

	if fn, ok := t.funcAt(pc); ok {
		info.FnName = fn.name
		info.FnAddr = fn.lo
		info.NArg = fn.narg
		found = true
	} else if s, ok := t.symbolAt(pc, true); ok {
		info.FnName = MakeSpan([]byte(s.Name), 0, len(s.Name))
		info.FnAddr = s.Addr
		found = true
	}

	i := sort.Search(len(t.lines), func(i int) bool { return t.lines[i].Addr > pc }) - 1
	if i >= 0 && !t.lines[i].End {
		info.File = t.lines[i].File
		info.Line = t.lines[i].Line
		found = true
	}

	if !found {
		return info, ErrNotFound
	}
	return info, nil
}

func (t *Table) funcAt(pc uint64) (tableFunc, bool) {
	i := sort.Search(len(t.funcs), func(i int) bool { return t.funcs[i].lo > pc }) - 1
	// Nested ranges are rare, scan back for an enclosing one.
	for ; i >= 0; i-- {
		if pc < t.funcs[i].hi {
			return t.funcs[i], true
		}
		if i > 0 && t.funcs[i-1].hi <= t.funcs[i].lo {
			break
		}
	}
	return tableFunc{}, false
}

func (t *Table) symbolAt(addr uint64, funcsOnly bool) (Symbol, bool) {
	i := sort.Search(len(t.syms), func(i int) bool { return t.syms[i].Addr > addr }) - 1
	for ; i >= 0; i-- {
		s := t.syms[i]
		if funcsOnly && !s.Func {
			continue
		}
		if s.Size > 0 && addr-s.Addr >= s.Size {
			return Symbol{}, false
		}
		return s, true
	}
	return Symbol{}, false
}

// LookupSymbol returns the address of the named symbol.
func (t *Table) LookupSymbol(name string) (uint64, bool) {
	addr, ok := t.byName[name]
	return addr, ok
}

// SymbolAt returns the symbol containing addr and the offset into it.
func (t *Table) SymbolAt(addr uint64) (string, uint64, bool) {
	s, ok := t.symbolAt(addr, false)
	if !ok {
		return "", 0, false
	}
	return s.Name, addr - s.Addr, true
}
