package monitor

import (
	"strconv"
	"strings"
)

// TextAttr is a CGA text attribute word: bits 8-10 foreground, 12-14
// background (red 4, green 2, blue 1), bit 15 blink.
type TextAttr uint16

const (
	attrBlink TextAttr = 0x8000

	fgShift = 8
	bgShift = 12
)

var attrColors = map[byte]TextAttr{
	'r': 0x4,
	'g': 0x2,
	'b': 0x1,
	'w': 0x7,
	'y': 0x6,
}

// ParseAttr encodes the change_color arguments. Unknown colors are black;
// cursor '1' sets blink.
func ParseAttr(fore, back, cursor byte) TextAttr {
	a := attrColors[fore]<<fgShift | attrColors[back]<<bgShift
	if cursor == '1' {
		a |= attrBlink
	}
	return a
}

func (a TextAttr) Fore() int { return int(a>>fgShift) & 7 }
func (a TextAttr) Back() int { return int(a>>bgShift) & 7 }
func (a TextAttr) Blink() bool { return a&attrBlink != 0 }

// cga2ansi maps a CGA rgb triple to the ANSI color index.
func cga2ansi(c int) int {
	return (c>>2)&1 | c&2 | (c&1)<<2
}

// ANSI returns the SGR sequence selecting the attribute.
func (a TextAttr) ANSI() string {
	codes := []string{
		strconv.Itoa(30 + cga2ansi(a.Fore())),
		strconv.Itoa(40 + cga2ansi(a.Back())),
	}
	if a.Blink() {
		codes = append(codes, "5")
	}
	return "\033[" + strings.Join(codes, ";") + "m"
}
