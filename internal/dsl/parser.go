package dsl

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Parse parses Vault DSL source. name is used in error positions.
func Parse(name string, src []byte) (*Program, error) {
	lines, err := lex(name, src)
	if err != nil {
		return nil, err
	}

	p := &parser{file: name, lines: lines}
	prog := &Program{File: name}
	for !p.done() {
		v, err := p.parseVault()
		if err != nil {
			return nil, err
		}
		prog.Vaults = append(prog.Vaults, v)
	}
	return prog, nil
}

// ParseFile reads and parses a .vau file.
func ParseFile(path string) (*Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	return Parse(path, src)
}

type parser struct {
	file  string
	lines []line
	pos   int

	cue *cue.Context
}

func (p *parser) done() bool {
	return p.pos >= len(p.lines)
}

func (p *parser) peek() line {
	return p.lines[p.pos]
}

func (p *parser) next() line {
	ln := p.lines[p.pos]
	p.pos++
	return ln
}

func (p *parser) errorAt(ln line, reason string) *ParseError {
	return &ParseError{File: p.file, Line: ln.number, Column: ln.indent + 1, Reason: reason}
}

func (p *parser) parseVault() (*Vault, error) {
	ln := p.peek()
	kw := firstWord(ln.text)

	if ln.indent != 0 || (kw != "vault" && kw != "vault?") {
		if isKeyword(kw) {
			return nil, p.errorAt(ln, fmt.Sprintf("%s statement outside a vault", kw))
		}
		return nil, p.errorAt(ln, fmt.Sprintf("unknown keyword %q", kw))
	}
	p.next()

	c := newCursor(p.file, ln)
	c.word()
	c.skipSpaces()
	name := c.rest()
	if name == "" {
		return nil, c.fail("vault name missing")
	}

	v := &Vault{
		Name:     name,
		Optional: kw == "vault?",
		Pos:      Pos{Line: ln.number, Column: 1},
	}
	body, err := p.parseBlock(0)
	if err != nil {
		return nil, err
	}
	v.Body = body
	return v, nil
}

// parseBlock parses the body opened by a header at parentIndent. The first
// deeper line fixes the block's indentation; a shallower line closes it.
func (p *parser) parseBlock(parentIndent int) ([]Operation, error) {
	var ops []Operation
	if p.done() || p.peek().indent <= parentIndent {
		return ops, nil
	}
	blockIndent := p.peek().indent

	for !p.done() {
		ln := p.peek()
		switch {
		case ln.indent < blockIndent:
			if ln.indent > parentIndent {
				return nil, p.errorAt(ln, "inconsistent indentation: dedent does not match any open block")
			}
			return ops, nil
		case ln.indent > blockIndent:
			return nil, p.errorAt(ln, "unexpected indentation")
		}

		op, err := p.parseStatement(blockIndent)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (p *parser) parseStatement(indent int) (Operation, error) {
	ln := p.next()
	c := newCursor(p.file, ln)
	pos := Pos{Line: ln.number, Column: ln.indent + 1}

	kw := c.word()
	c.skipSpaces()

	switch kw {
	case "registry":
		name := c.rest()
		if name == "" {
			return nil, c.fail("registry name missing")
		}
		return &RegistryDecl{Name: name, Pos: pos}, nil

	case "store", "replace":
		kind := AssignStore
		if kw == "replace" {
			kind = AssignReplace
		}
		target, err := p.parseTarget(c)
		if err != nil {
			return nil, err
		}
		c.skipSpaces()
		if c.eof() || c.rest()[0] != '=' {
			return nil, c.fail("expected '=' after target")
		}
		c.off++
		c.skipSpaces()
		value, err := p.parseValue(c)
		if err != nil {
			return nil, err
		}
		return &Assign{Kind: kind, Target: target, Value: value, Pos: pos}, nil

	case "if":
		var when Condition
		switch c.word() {
		case "missing":
			when = IfMissing
		case "present":
			when = IfPresent
		default:
			return nil, c.fail("expected 'missing' or 'present' after 'if'")
		}
		c.skipSpaces()
		target, err := p.parseTarget(c)
		if err != nil {
			return nil, err
		}
		c.skipSpaces()
		if !c.eof() {
			return nil, c.fail(fmt.Sprintf("unexpected text after target: %q", c.rest()))
		}
		body, err := p.parseBlock(indent)
		if err != nil {
			return nil, err
		}
		return &Conditional{When: when, Target: target, Body: body, Pos: pos}, nil

	case "note":
		text, err := c.quoted()
		if err != nil {
			return nil, err
		}
		c.skipSpaces()
		if !c.eof() {
			return nil, c.fail(fmt.Sprintf("unexpected text after note: %q", c.rest()))
		}
		if !utf8.ValidString(text) {
			return nil, c.fail(fmt.Sprintf("note %q is not valid UTF-8", text))
		}
		return &Note{Text: text, Pos: pos}, nil

	case "secure":
		if !c.eof() {
			return nil, c.fail("secure takes no arguments")
		}
		return &Secure{Pos: pos}, nil

	case "vault", "vault?":
		return nil, p.errorAt(ln, "vault declarations must start at column 1")

	default:
		return nil, p.errorAt(ln, fmt.Sprintf("unknown keyword %q", kw))
	}
}

// parseTarget parses `[<registry>] -> "<key>"` or a bare `"<key>"`.
func (p *parser) parseTarget(c *cursor) (Target, error) {
	var t Target

	quote := strings.IndexByte(c.rest(), '"')
	if quote < 0 {
		return t, c.fail("malformed target: expected quoted key")
	}
	left := strings.TrimSpace(c.rest()[:quote])
	if left != "" {
		reg, ok := strings.CutSuffix(left, "->")
		if !ok {
			return t, c.fail("malformed target: expected '->' between registry and key")
		}
		reg = strings.TrimSpace(reg)
		if strings.ContainsAny(reg, " =") {
			return t, c.fail(fmt.Sprintf("malformed target: bad registry %q", reg))
		}
		t.Registry = reg
	}
	c.off += quote

	key, err := c.quoted()
	if err != nil {
		return t, err
	}
	t.Key = key
	return t, nil
}

func (p *parser) cueContext() *cue.Context {
	if p.cue == nil {
		p.cue = cuecontext.New()
	}
	return p.cue
}

func firstWord(text string) string {
	if i := strings.IndexByte(text, ' '); i >= 0 {
		return text[:i]
	}
	return text
}

func isKeyword(w string) bool {
	switch w {
	case "registry", "store", "replace", "if", "note", "secure":
		return true
	}
	return false
}
