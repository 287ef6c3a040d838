// Package stack walks x86-64 call frames linked through saved frame
// pointers.
package stack

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// WordSize is the size of a saved frame pointer, return address or
// argument slot.
const WordSize = 8

var (
	ErrOutOfRange = errors.New("address outside the stack")
	ErrMisaligned = errors.New("misaligned stack address")
)

// Memory is the source of stack contents.
type Memory interface {
	GetMemory(size uint, addr uintptr) ([]byte, error)
}

// Reader reads stack words, refusing addresses outside [lo, hi). A zero
// range accepts any non-null address.
type Reader struct {
	mem    Memory
	lo, hi uint64
}

func NewReader(mem Memory, lo, hi uint64) *Reader {
	return &Reader{mem: mem, lo: lo, hi: hi}
}

// Check reports whether a word at addr may be read.
func (r *Reader) Check(addr uint64) error {
	if addr == 0 {
		return fmt.Errorf("%w: null address", ErrOutOfRange)
	}
	if addr%WordSize != 0 {
		return fmt.Errorf("%w: %#x", ErrMisaligned, addr)
	}
	if r.lo == 0 && r.hi == 0 {
		return nil
	}
	if addr < r.lo || addr+WordSize > r.hi || addr+WordSize < addr {
		return fmt.Errorf("%w: %#x not in [%#x, %#x)", ErrOutOfRange, addr, r.lo, r.hi)
	}
	return nil
}

// Word returns the little endian word stored at addr.
func (r *Reader) Word(addr uint64) (uint64, error) {
	if err := r.Check(addr); err != nil {
		return 0, err
	}
	data, err := r.mem.GetMemory(WordSize, uintptr(addr))
	if err != nil {
		return 0, err
	}
	if len(data) < WordSize {
		return 0, fmt.Errorf("short read at %#x: %d bytes", addr, len(data))
	}
	return binary.LittleEndian.Uint64(data), nil
}
