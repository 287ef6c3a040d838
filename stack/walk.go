package stack

import (
	"fmt"
	"io"

	"kmon/debuginfo"
)

// MaxArgs bounds the argument words kept per frame.
const MaxArgs = 16

// DefaultMaxFrames is used when a Walker has no frame limit set.
const DefaultMaxFrames = 64

// MaxFramesLimit caps Walker.MaxFrames; it sizes the walker's record of
// visited frame pointers.
const MaxFramesLimit = 256

// Frame is the report for one call frame. The walker reuses a single
// Frame, so callbacks must copy what they keep.
type Frame struct {
	Depth    int
	FP       uint64
	PC       uint64
	Info     debuginfo.Info
	Resolved bool

	args     [MaxArgs]uint64
	argValid [MaxArgs]bool
}

// NArgs is the number of argument slots read for the frame.
func (f *Frame) NArgs() int {
	if f.Info.NArg > MaxArgs {
		return MaxArgs
	}
	return f.Info.NArg
}

// Arg returns the i-th argument word (0 is the slot right below FP) and
// whether it could be read.
func (f *Frame) Arg(i int) (uint64, bool) {
	if i < 0 || i >= f.NArgs() {
		return 0, false
	}
	return f.args[i], f.argValid[i]
}

// Offset is the distance of PC from the start of its function.
func (f *Frame) Offset() uint64 {
	return f.PC - f.Info.FnAddr
}

// CorruptError stops a walk whose frame chain cannot be trusted.
type CorruptError struct {
	Depth  int
	FP     uint64
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("possible stack corruption at frame #%d (rbp %016x): %s", e.Depth, e.FP, e.Reason)
}

// Walker follows a saved frame pointer chain.
type Walker struct {
	Mem       *Reader
	Info      debuginfo.Resolver
	MaxFrames int
}

// Walk calls fn for every frame from (fp, pc) to the outermost frame,
// whose saved frame pointer is zero. It returns fn's first error, or a
// *CorruptError when the chain leaves the stack, revisits a frame or
// exceeds MaxFrames.
func (w *Walker) Walk(fp, pc uint64, fn func(f *Frame) error) error {
	max := w.MaxFrames
	if max <= 0 {
		max = DefaultMaxFrames
	}
	if max > MaxFramesLimit {
		max = MaxFramesLimit
	}

	var f Frame
	var seen [MaxFramesLimit]uint64
	for depth := 0; fp != 0; depth++ {
		if depth >= max {
			return &CorruptError{Depth: depth, FP: fp, Reason: fmt.Sprintf("more than %d frames", max)}
		}
		if err := w.Mem.Check(fp); err != nil {
			return &CorruptError{Depth: depth, FP: fp, Reason: err.Error()}
		}

		f.Depth, f.FP, f.PC = depth, fp, pc
		f.Resolved = false
		if w.Info != nil {
			info, err := w.Info.Lookup(pc)
			if err == nil {
				f.Info, f.Resolved = info, true
			}
		}
		if !f.Resolved {
			f.Info = debuginfo.Placeholder(pc)
		}
		for i := 0; i < f.NArgs(); i++ {
			f.args[i], f.argValid[i] = 0, false
			v, err := w.Mem.Word(fp - uint64(i+1)*WordSize)
			if err == nil {
				f.args[i], f.argValid[i] = v, true
			}
		}

		if err := fn(&f); err != nil {
			return err
		}

		ret, err := w.Mem.Word(fp + WordSize)
		if err != nil {
			return &CorruptError{Depth: depth, FP: fp, Reason: "return address: " + err.Error()}
		}
		next, err := w.Mem.Word(fp)
		if err != nil {
			return &CorruptError{Depth: depth, FP: fp, Reason: "saved frame pointer: " + err.Error()}
		}
		if next == fp {
			return &CorruptError{Depth: depth, FP: fp, Reason: "frame points to itself"}
		}
		seen[depth] = fp
		for i := 0; i < depth; i++ {
			if seen[i] == next {
				return &CorruptError{Depth: depth, FP: fp, Reason: fmt.Sprintf("frame chain loops back to frame #%d", i)}
			}
		}
		pc, fp = ret, next
	}
	return nil
}

// Print writes f in the monitor's backtrace format.
func Print(w io.Writer, f *Frame) error {
	_, err := fmt.Fprintf(w, "  rbp %016x rip %016x\n    %s:%d: %s+%016x args:%d",
		f.FP, f.PC, f.Info.File, f.Info.Line, f.Info.FnName.Bytes(), f.Offset(), f.Info.NArg)
	if err != nil {
		return err
	}
	for i := 0; i < f.NArgs(); i++ {
		if v, ok := f.Arg(i); ok {
			_, err = fmt.Fprintf(w, " %016x", v)
		} else {
			_, err = io.WriteString(w, " ????????????????")
		}
		if err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, "\n")
	return err
}
