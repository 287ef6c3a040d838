// Package debuginfo maps kernel instruction addresses to source files,
// lines, enclosing functions and their declared argument counts.
package debuginfo

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no debug information covers an address.
var ErrNotFound = errors.New("debuginfo: address not found")

const unknown = "<unknown>"

var unknownName = []byte(unknown)

// Span is a function name stored as a byte range of a shared name table.
// Its length is explicit; the bytes after it belong to other names.
type Span struct {
	buf []byte
	off int
	n   int
}

// MakeSpan returns the span of n bytes starting at off in buf.
func MakeSpan(buf []byte, off, n int) Span {
	if off < 0 || n < 0 || off+n > len(buf) {
		return Span{}
	}
	return Span{buf: buf, off: off, n: n}
}

// Len is the number of bytes in the name.
func (s Span) Len() int { return s.n }

// Bytes returns exactly Len bytes of the name, aliasing the table.
func (s Span) Bytes() []byte { return s.buf[s.off : s.off+s.n : s.off+s.n] }

func (s Span) String() string { return string(s.Bytes()) }

// Info is the symbolic context of one instruction address.
type Info struct {
	File   string
	Line   int
	FnName Span
	FnAddr uint64
	NArg   int
}

func (i Info) String() string {
	return fmt.Sprintf("%s:%d: %s+%x args:%d", i.File, i.Line, i.FnName, i.FnAddr, i.NArg)
}

// Placeholder is the info reported for an address nothing resolves.
func Placeholder(pc uint64) Info {
	return Info{
		File:   unknown,
		FnName: MakeSpan(unknownName, 0, len(unknownName)),
		FnAddr: pc,
	}
}

// Resolver answers address queries.
type Resolver interface {
	Lookup(pc uint64) (Info, error)
}

// Symbols answers queries against the kernel symbol table.
type Symbols interface {
	LookupSymbol(name string) (uint64, bool)
	SymbolAt(addr uint64) (name string, off uint64, ok bool)
}
