package monitor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAttr(t *testing.T) {
	tests := []struct {
		fore, back, cursor byte
		want               TextAttr
	}{
		{'w', 'b', '0', 0x1700},
		{'r', 'g', '1', 0xa400},
		{'y', 'x', '0', 0x0600},
		{'x', 'x', 'x', 0},
	}
	for _, tt := range tests {
		a := ParseAttr(tt.fore, tt.back, tt.cursor)
		assert.Equal(t, tt.want, a, "%c %c %c", tt.fore, tt.back, tt.cursor)
	}

	a := ParseAttr('r', 'b', '1')
	assert.Equal(t, 4, a.Fore())
	assert.Equal(t, 1, a.Back())
	assert.True(t, a.Blink())
	assert.Equal(t, "\033[31;44;5m", a.ANSI())
	assert.Equal(t, "\033[33;40m", ParseAttr('y', 'x', '0').ANSI())
}

func TestConsolePlain(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.SetAttr(ParseAttr('r', 'b', '0'))
	c.Printf("%s %d\n", "a", 1)
	c.Errorf("bad %d", 2)
	c.HLine("regs")
	assert.Equal(t, "a 1\n[ERROR] bad 2\n[regs]\n", buf.String())
}

func TestConsoleColor(t *testing.T) {
	var buf bytes.Buffer
	c := &Console{w: &buf, fd: -1, color: true}
	c.Printf("%d\n", 5)
	assert.Equal(t, ColorCyan+"5"+ColorReset+"\n", buf.String())

	buf.Reset()
	c.SetAttr(ParseAttr('g', 'x', '0'))
	c.Printf("%d\n", 5)
	assert.Equal(t, "\033[32;40m5\n"+ColorReset, buf.String())
}
