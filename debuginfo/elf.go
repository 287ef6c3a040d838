package debuginfo

import (
	"debug/dwarf"
	"debug/elf"
	"errors"
	"fmt"
	"io"

	"kmon/logflags"
)

// Open loads the symbol table, functions and line tables of a kernel ELF
// image. An image without DWARF still resolves function names from its
// symbol table.
func Open(path string) (*Table, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open kernel image: %w", err)
	}
	defer f.Close()

	syms, err := loadSymbols(f)
	if err != nil {
		return nil, err
	}

	d, err := f.DWARF()
	if err != nil {
		if logflags.DebugInfo() {
			logflags.DebugInfoLogger().Debugf("%s: no DWARF data: %v", path, err)
		}
		return NewTable(nil, nil, syms), nil
	}

	funcs, lines, err := loadDWARF(d)
	if err != nil {
		return nil, fmt.Errorf("could not read DWARF of %s: %w", path, err)
	}
	if logflags.DebugInfo() {
		logflags.DebugInfoLogger().Debugf("%s: %d symbols, %d functions, %d line rows", path, len(syms), len(funcs), len(lines))
	}
	return NewTable(funcs, lines, syms), nil
}

func loadSymbols(f *elf.File) ([]Symbol, error) {
	elfSyms, err := f.Symbols()
	if err != nil {
		if errors.Is(err, elf.ErrNoSymbols) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read symbol table: %w", err)
	}
	syms := make([]Symbol, 0, len(elfSyms))
	for _, s := range elfSyms {
		switch elf.ST_TYPE(s.Info) {
		case elf.STT_SECTION, elf.STT_FILE:
			continue
		}
		if s.Section == elf.SHN_UNDEF {
			continue
		}
		syms = append(syms, Symbol{
			Name: s.Name,
			Addr: s.Value,
			Size: s.Size,
			Func: elf.ST_TYPE(s.Info) == elf.STT_FUNC,
		})
	}
	return syms, nil
}

func loadDWARF(d *dwarf.Data) ([]Func, []LineRow, error) {
	var funcs []Func
	var lines []LineRow
	logger := logflags.DebugInfoLogger()

	r := d.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			return nil, nil, err
		}
		if e == nil {
			break
		}

		switch e.Tag {
		case dwarf.TagCompileUnit:
			rows, err := readLines(d, e)
			if err != nil {
				logger.Debugf("line table at %#x: %v", e.Offset, err)
			}
			lines = append(lines, rows...)

		case dwarf.TagSubprogram:
			name, _ := e.Val(dwarf.AttrName).(string)
			ranges, err := d.Ranges(e)
			if err != nil {
				logger.Debugf("ranges of %s: %v", name, err)
			}
			narg := 0
			if e.Children {
				narg, err = countParams(r)
				if err != nil {
					return nil, nil, err
				}
			}
			if name == "" {
				continue
			}
			for _, rg := range ranges {
				funcs = append(funcs, Func{Name: name, Lo: rg[0], Hi: rg[1], NArg: narg})
			}
		}
	}
	return funcs, lines, nil
}

// countParams consumes the children of a subprogram entry.
func countParams(r *dwarf.Reader) (int, error) {
	n := 0
	for {
		e, err := r.Next()
		if err != nil {
			return 0, err
		}
		if e == nil || e.Tag == 0 {
			return n, nil
		}
		if e.Tag == dwarf.TagFormalParameter {
			n++
		}
		if e.Children {
			r.SkipChildren()
		}
	}
}

func readLines(d *dwarf.Data, cu *dwarf.Entry) ([]LineRow, error) {
	lr, err := d.LineReader(cu)
	if err != nil || lr == nil {
		return nil, err
	}
	var rows []LineRow
	var le dwarf.LineEntry
	for {
		if err := lr.Next(&le); err != nil {
			if err == io.EOF {
				return rows, nil
			}
			return rows, err
		}
		row := LineRow{Addr: le.Address, Line: le.Line, End: le.EndSequence}
		if le.File != nil {
			row.File = le.File.Name
		}
		rows = append(rows, row)
	}
}
