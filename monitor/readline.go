package monitor

import (
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/derekparker/trie"

	"kmon/config"
)

// Completer completes command names from a registry.
type Completer struct {
	names *trie.Trie
}

// NewCompleter indexes the names in r.
func NewCompleter(r *Registry) *Completer {
	t := trie.New()
	for i := 0; i < r.Len(); i++ {
		t.Add(r.At(i).Name, nil)
	}
	return &Completer{names: t}
}

// Do implements readline.AutoCompleter. Only the first word is completed.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	head := string(line[:pos])
	if strings.ContainsAny(head, " \t") {
		return nil, 0
	}
	names := c.names.PrefixSearch(head)
	sort.Strings(names)
	var out [][]rune
	for _, name := range names {
		out = append(out, []rune(name[len(head):]+" "))
	}
	return out, len([]rune(head))
}

// Readline is a LineReader over an interactive terminal with history.
type Readline struct {
	rl *readline.Instance
}

// NewReadline opens a terminal line editor configured from cfg.
func NewReadline(cfg *config.Config, r *Registry) (*Readline, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cfg.Prompt,
		HistoryFile:       cfg.HistoryFile,
		AutoComplete:      NewCompleter(r),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		FuncFilterInputRune: func(r rune) (rune, bool) {
			switch r {
			case readline.CharCtrlZ:
				return r, false
			}
			return r, true
		},
	})
	if err != nil {
		return nil, err
	}
	return &Readline{rl: rl}, nil
}

// ReadLine returns the next line. Ctrl-C yields readline.ErrInterrupt.
func (r *Readline) ReadLine() (string, error) {
	return r.rl.Readline()
}

func (r *Readline) Close() error {
	return r.rl.Close()
}
