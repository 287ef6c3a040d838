package monitor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"kmon/target"
)

// SymbolResolver supplies the values of $names in address expressions.
type SymbolResolver interface {
	ResolveRegister(name string) (uint64, error)
	ResolveSymbol(name string) (uint64, error)
}

type monitorResolver struct {
	m  *Monitor
	tf *target.TrapFrame
}

func (r monitorResolver) ResolveRegister(name string) (uint64, error) {
	return r.tf.Register(name)
}

func (r monitorResolver) ResolveSymbol(name string) (uint64, error) {
	if r.m.Symbols == nil {
		return 0, fmt.Errorf("no kernel symbols loaded")
	}
	addr, ok := r.m.Symbols.LookupSymbol(name)
	if !ok {
		return 0, fmt.Errorf("unknown symbol: %s", name)
	}
	return addr, nil
}

// EvalAddr evaluates an address argument against the trap frame registers
// and the kernel symbols.
func (m *Monitor) EvalAddr(expr string, tf *target.TrapFrame) (uint64, error) {
	return EvaluateExpression(expr, monitorResolver{m, tf})
}

var symPattern = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_.@]*)`)

// EvaluateExpression computes expressions such as "$rsp+0x10" or
// "($entry-0x8004000000)/2". Registers shadow symbols of the same name.
func EvaluateExpression(expr string, resolver SymbolResolver) (uint64, error) {
	resolved, err := resolveSymbolsInExpr(expr, resolver)
	if err != nil {
		return 0, err
	}
	return evalArithmetic(resolved)
}

func resolveSymbolsInExpr(expr string, resolver SymbolResolver) (string, error) {
	var resolveErr error
	result := symPattern.ReplaceAllStringFunc(expr, func(match string) string {
		symName := strings.TrimPrefix(match, "$")
		val, err := resolver.ResolveRegister(symName)
		if err == nil {
			return fmt.Sprintf("0x%x", val)
		}
		val, err = resolver.ResolveSymbol(symName)
		if err == nil {
			return fmt.Sprintf("0x%x", val)
		}
		if resolveErr == nil {
			resolveErr = fmt.Errorf("failed to resolve symbol: %s", symName)
		}
		return match
	})
	return result, resolveErr
}

func evalArithmetic(expr string) (uint64, error) {
	expr = strings.TrimSpace(expr)
	if !strings.ContainsAny(expr, "+-*/()") {
		return parseNumber(expr)
	}
	tokens, err := lexExpr(expr)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, fmt.Errorf("empty expression")
	}
	result, pos, err := parseAddSub(tokens, 0)
	if err != nil {
		return 0, err
	}
	if pos != len(tokens) {
		return 0, fmt.Errorf("unexpected token: %s", tokens[pos].value)
	}
	return result, nil
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind  tokenKind
	value string
}

func lexExpr(expr string) ([]token, error) {
	var tokens []token
	for i := 0; i < len(expr); {
		ch := expr[i]
		switch {
		case ch == ' ' || ch == '\t':
			i++
		case strings.IndexByte("+-*/", ch) >= 0:
			tokens = append(tokens, token{tokOp, string(ch)})
			i++
		case ch == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case ch == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++
		case isDigit(ch):
			start := i
			if ch == '0' && i+1 < len(expr) && (expr[i+1] == 'x' || expr[i+1] == 'X') {
				i += 2
				for i < len(expr) && isHexDigit(expr[i]) {
					i++
				}
			} else {
				for i < len(expr) && isDigit(expr[i]) {
					i++
				}
			}
			tokens = append(tokens, token{tokNumber, expr[start:i]})
		default:
			return nil, fmt.Errorf("unexpected character %q in %q", ch, expr)
		}
	}
	return tokens, nil
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func parseAddSub(tokens []token, pos int) (uint64, int, error) {
	left, pos, err := parseMulDiv(tokens, pos)
	if err != nil {
		return 0, pos, err
	}

	for pos < len(tokens) && tokens[pos].kind == tokOp && (tokens[pos].value == "+" || tokens[pos].value == "-") {
		op := tokens[pos].value
		right, newPos, err := parseMulDiv(tokens, pos+1)
		if err != nil {
			return 0, newPos, err
		}
		pos = newPos

		if op == "+" {
			left += right
		} else {
			if right > left {
				return 0, pos, fmt.Errorf("subtraction would result in negative number")
			}
			left -= right
		}
	}
	return left, pos, nil
}

func parseMulDiv(tokens []token, pos int) (uint64, int, error) {
	left, pos, err := parseFactor(tokens, pos)
	if err != nil {
		return 0, pos, err
	}

	for pos < len(tokens) && tokens[pos].kind == tokOp && (tokens[pos].value == "*" || tokens[pos].value == "/") {
		op := tokens[pos].value
		right, newPos, err := parseFactor(tokens, pos+1)
		if err != nil {
			return 0, newPos, err
		}
		pos = newPos

		if op == "*" {
			left *= right
		} else {
			if right == 0 {
				return 0, pos, fmt.Errorf("division by zero")
			}
			left /= right
		}
	}
	return left, pos, nil
}

func parseFactor(tokens []token, pos int) (uint64, int, error) {
	if pos >= len(tokens) {
		return 0, pos, fmt.Errorf("unexpected end of expression")
	}

	tok := tokens[pos]
	switch tok.kind {
	case tokNumber:
		val, err := parseNumber(tok.value)
		return val, pos + 1, err
	case tokLParen:
		val, newPos, err := parseAddSub(tokens, pos+1)
		if err != nil {
			return 0, newPos, err
		}
		if newPos >= len(tokens) || tokens[newPos].kind != tokRParen {
			return 0, newPos, fmt.Errorf("missing closing parenthesis")
		}
		return val, newPos + 1, nil
	}
	return 0, pos, fmt.Errorf("unexpected token: %s", tok.value)
}

// parseNumber accepts hex (0x), octal (leading 0) and decimal.
func parseNumber(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(s), 0, 64)
}
