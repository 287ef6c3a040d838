package monitor

import (
	"errors"
)

// MaxArgs bounds an argument vector, sentinel slot included.
const MaxArgs = 16

// ErrTooManyArgs is returned for lines with more than MaxArgs-1 tokens.
var ErrTooManyArgs = errors.New("too many arguments")

// ArgVector holds the tokens of one command line. The slot after the last
// token is always nil.
type ArgVector struct {
	argv [MaxArgs][]byte
	argc int
}

// Len is the number of tokens.
func (v *ArgVector) Len() int { return v.argc }

// Arg returns token i, or nil for i == Len().
func (v *ArgVector) Arg(i int) []byte { return v.argv[i] }

// Strings copies the tokens out of the line buffer.
func (v *ArgVector) Strings() []string {
	s := make([]string, v.argc)
	for i := range s {
		s[i] = string(v.argv[i])
	}
	return s
}

func (v *ArgVector) reset() {
	for i := 0; i <= v.argc && i < MaxArgs; i++ {
		v.argv[i] = nil
	}
	v.argc = 0
}

func isSpace(b byte) bool {
	return b == '\t' || b == '\r' || b == '\n' || b == ' '
}

// Tokenize splits buf in place on runs of whitespace, zeroing the
// separators. The tokens alias buf. On ErrTooManyArgs argv is empty.
func Tokenize(buf []byte, argv *ArgVector) error {
	argv.reset()
	i := 0
	for {
		for i < len(buf) && (buf[i] == 0 || isSpace(buf[i])) {
			buf[i] = 0
			i++
		}
		if i == len(buf) {
			break
		}

		if argv.argc == MaxArgs-1 {
			argv.reset()
			return ErrTooManyArgs
		}
		start := i
		for i < len(buf) && buf[i] != 0 && !isSpace(buf[i]) {
			i++
		}
		argv.argv[argv.argc] = buf[start:i:i]
		argv.argc++
	}
	argv.argv[argv.argc] = nil
	return nil
}
