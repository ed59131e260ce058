package skeleton

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Position identifies a source location for diagnostics (§4.4, §7
// "location: source file/line for manifest-level errors").
type Position struct {
	File string
	Line int
}

func (p Position) String() string {
	if p.File == "" {
		return "<manifest>"
	}
	return p.File + ":" + strconv.Itoa(p.Line)
}

// EvalBool evaluates a boolean `enable`/`accept` expression against cfg.
// Supported grammar:
//
//	expr   := or
//	or     := and ('||' and)*
//	and    := unary ('&&' unary)*
//	unary  := '!' unary | atom
//	atom   := 'defined' '(' ident ')' | cmp | '(' expr ')' | 'true' | 'false'
//	cmp    := ident ('==' | '!=' | '>=' | '<=' | '>' | '<') value
func EvalBool(expr string, cfg *Config, pos Position) (bool, error) {
	p := &exprParser{toks: tokenize(expr), pos: pos}
	v, err := p.parseOr(cfg)
	if err != nil {
		return false, errors.Wrapf(err, "%s: evaluating expression %q", pos, expr)
	}
	if !p.atEnd() {
		return false, errors.Errorf("%s: trailing input in expression %q", pos, expr)
	}
	return v, nil
}

type token struct {
	kind string // "ident", "op", "string", "num", "lparen", "rparen", "comma"
	text string
}

func tokenize(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, token{"lparen", "("})
			i++
		case c == ')':
			toks = append(toks, token{"rparen", ")"})
			i++
		case c == ',':
			toks = append(toks, token{"comma", ","})
			i++
		case strings.HasPrefix(s[i:], "&&"):
			toks = append(toks, token{"op", "&&"})
			i += 2
		case strings.HasPrefix(s[i:], "||"):
			toks = append(toks, token{"op", "||"})
			i += 2
		case strings.HasPrefix(s[i:], "=="):
			toks = append(toks, token{"op", "=="})
			i += 2
		case strings.HasPrefix(s[i:], "!="):
			toks = append(toks, token{"op", "!="})
			i += 2
		case strings.HasPrefix(s[i:], ">="):
			toks = append(toks, token{"op", ">="})
			i += 2
		case strings.HasPrefix(s[i:], "<="):
			toks = append(toks, token{"op", "<="})
			i += 2
		case c == '!':
			toks = append(toks, token{"op", "!"})
			i++
		case c == '>':
			toks = append(toks, token{"op", ">"})
			i++
		case c == '<':
			toks = append(toks, token{"op", "<"})
			i++
		case c == '=':
			toks = append(toks, token{"op", "="})
			i++
		case c == '"':
			j := i + 1
			for j < len(s) && s[j] != '"' {
				j++
			}
			toks = append(toks, token{"string", s[i+1 : j]})
			i = j + 1
		default:
			j := i
			for j < len(s) && !strings.ContainsRune(" \t()=,!<>&|", rune(s[j])) {
				j++
			}
			if j == i {
				j++
			}
			toks = append(toks, token{"ident", s[i:j]})
			i = j
		}
	}
	return toks
}

type exprParser struct {
	toks []token
	i    int
	pos  Position
}

func (p *exprParser) atEnd() bool { return p.i >= len(p.toks) }

func (p *exprParser) peek() (token, bool) {
	if p.atEnd() {
		return token{}, false
	}
	return p.toks[p.i], true
}

func (p *exprParser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.i++
	}
	return t, ok
}

func (p *exprParser) parseOr(cfg *Config) (bool, error) {
	v, err := p.parseAnd(cfg)
	if err != nil {
		return false, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != "op" || t.text != "||" {
			return v, nil
		}
		p.next()
		rhs, err := p.parseAnd(cfg)
		if err != nil {
			return false, err
		}
		v = v || rhs
	}
}

func (p *exprParser) parseAnd(cfg *Config) (bool, error) {
	v, err := p.parseUnary(cfg)
	if err != nil {
		return false, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != "op" || t.text != "&&" {
			return v, nil
		}
		p.next()
		rhs, err := p.parseUnary(cfg)
		if err != nil {
			return false, err
		}
		v = v && rhs
	}
}

func (p *exprParser) parseUnary(cfg *Config) (bool, error) {
	if t, ok := p.peek(); ok && t.kind == "op" && t.text == "!" {
		p.next()
		v, err := p.parseUnary(cfg)
		return !v, err
	}
	return p.parseAtom(cfg)
}

func (p *exprParser) parseAtom(cfg *Config) (bool, error) {
	t, ok := p.next()
	if !ok {
		return false, errors.New("unexpected end of expression")
	}
	switch {
	case t.kind == "lparen":
		v, err := p.parseOr(cfg)
		if err != nil {
			return false, err
		}
		if rp, ok := p.next(); !ok || rp.kind != "rparen" {
			return false, errors.New("expected ')'")
		}
		return v, nil
	case t.kind == "ident" && t.text == "true":
		return true, nil
	case t.kind == "ident" && t.text == "false":
		return false, nil
	case t.kind == "ident" && t.text == "defined":
		if lp, ok := p.next(); !ok || lp.kind != "lparen" {
			return false, errors.New("expected '(' after defined")
		}
		name, ok := p.next()
		if !ok || name.kind != "ident" {
			return false, errors.New("expected variable name in defined(...)")
		}
		if rp, ok := p.next(); !ok || rp.kind != "rparen" {
			return false, errors.New("expected ')' after defined(...)")
		}
		return cfg.Defined(name.text), nil
	case t.kind == "ident":
		// comparison: ident OP value
		opTok, ok := p.next()
		if !ok || opTok.kind != "op" {
			return false, errors.Errorf("expected comparison operator after %q", t.text)
		}
		rhs, ok := p.next()
		if !ok {
			return false, errors.New("expected value after comparison operator")
		}
		val, _ := cfg.Get(t.text)
		return compare(val.Raw, opTok.text, rhs.text)
	default:
		return false, errors.Errorf("unexpected token %q", t.text)
	}
}

func compare(lhs, op, rhs string) (bool, error) {
	if ln, lerr := strconv.ParseFloat(lhs, 64); lerr == nil {
		if rn, rerr := strconv.ParseFloat(rhs, 64); rerr == nil {
			switch op {
			case "==":
				return ln == rn, nil
			case "!=":
				return ln != rn, nil
			case ">=":
				return ln >= rn, nil
			case "<=":
				return ln <= rn, nil
			case ">":
				return ln > rn, nil
			case "<":
				return ln < rn, nil
			}
		}
	}
	switch op {
	case "==":
		return lhs == rhs, nil
	case "!=":
		return lhs != rhs, nil
	case ">=":
		return lhs >= rhs, nil
	case "<=":
		return lhs <= rhs, nil
	case ">":
		return lhs > rhs, nil
	case "<":
		return lhs < rhs, nil
	default:
		return false, errors.Errorf("unsupported comparison operator %q", op)
	}
}

// Assignment is one `name=value` (or `name=max(previous, value)`) clause
// from a reflect, prefer, or require fragment.
type Assignment struct {
	Name  string
	Value string
}

// ParseAssignments parses a comma-separated list of assignment clauses,
// resolving a `max(previous, N)` RHS against cfg's current value for the
// named variable (§4.6.2 example: "config.libshared.buf = max(previous, N)").
func ParseAssignments(fragment string, cfg *Config, pos Position) ([]Assignment, error) {
	var out []Assignment
	var clauses []string
	depth, start := 0, 0
	for i, c := range fragment {
		if c == '(' {
			depth++
		} else if c == ')' {
			depth--
		} else if c == ',' && depth == 0 {
			clauses = append(clauses, fragment[start:i])
			start = i + 1
		}
	}
	for _, clause := range append(clauses, fragment[start:]) {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		i := strings.IndexByte(clause, '=')
		if i < 0 {
			return nil, errors.Errorf("%s: malformed assignment clause %q", pos, clause)
		}
		name := strings.TrimSpace(clause[:i])
		rhs := strings.TrimSpace(clause[i+1:])
		val, err := evalAssignmentRHS(name, rhs, cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: evaluating assignment %q", pos, clause)
		}
		out = append(out, Assignment{Name: name, Value: val})
	}
	return out, nil
}

func evalAssignmentRHS(name, rhs string, cfg *Config) (string, error) {
	if strings.HasPrefix(rhs, "max(") && strings.HasSuffix(rhs, ")") {
		args := strings.Split(rhs[len("max(") :len(rhs)-1], ",")
		if len(args) != 2 {
			return "", errors.Errorf("max(...) expects exactly 2 arguments, got %d", len(args))
		}
		a := strings.TrimSpace(args[0])
		b := strings.TrimSpace(args[1])
		if a == "previous" {
			prev, ok := cfg.Get(name)
			if ok {
				a = prev.Raw
			} else {
				a = "0"
			}
		}
		af, aerr := strconv.ParseFloat(a, 64)
		bf, berr := strconv.ParseFloat(b, 64)
		if aerr != nil || berr != nil {
			return "", errors.Errorf("max(...) requires numeric arguments, got %q and %q", a, b)
		}
		if af >= bf {
			return a, nil
		}
		return b, nil
	}
	if rhs == "previous" {
		prev, ok := cfg.Get(name)
		if ok {
			return prev.Raw, nil
		}
		return "", nil
	}
	return strings.Trim(rhs, `"`), nil
}
