package dsl

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"unicode/utf8"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/0bArc/Vault/internal/ir"
)

var builtinPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\(\)$`)

// parseValue parses the value expression that ends the line.
func (p *parser) parseValue(c *cursor) (Expr, error) {
	text := c.rest()
	if text == "" {
		return nil, c.fail("missing value")
	}

	switch text[0] {
	case '"':
		s, err := c.quoted()
		if err != nil {
			return nil, err
		}
		c.skipSpaces()
		if !c.eof() {
			return nil, c.fail(fmt.Sprintf("unexpected text after value: %q", c.rest()))
		}
		if !utf8.ValidString(s) {
			return nil, c.fail(fmt.Sprintf("string value %q is not valid UTF-8", s))
		}
		return &Literal{Value: ir.String(s)}, nil

	case '{', '[':
		v, err := p.parseDocument(text)
		if err != nil {
			return nil, c.fail(fmt.Sprintf("bad document literal: %v", err))
		}
		if !ir.ValidUTF8(v) {
			return nil, c.fail("document literal is not valid UTF-8")
		}
		c.off = len(c.ln.text)
		return &Literal{Value: v}, nil
	}

	switch text {
	case "true":
		return &Literal{Value: ir.Bool(true)}, nil
	case "false":
		return &Literal{Value: ir.Bool(false)}, nil
	}

	if m := builtinPattern.FindStringSubmatch(text); m != nil {
		return &Call{Name: m[1], Pos: Pos{Line: c.ln.number, Column: c.column()}}, nil
	}

	if ir.IsNumberLiteral(text) {
		v, err := ir.ParseNumber(text)
		if err != nil {
			return nil, c.fail(err.Error())
		}
		return &Literal{Value: v}, nil
	}

	return nil, c.fail(fmt.Sprintf("unrecognized value %q", text))
}

// parseDocument evaluates a `{...}` or `[...]` literal with CUE and
// converts the concrete result into an ir.Value.
func (p *parser) parseDocument(text string) (ir.Value, error) {
	v := p.cueContext().CompileString(text)
	if err := v.Err(); err != nil {
		return nil, firstCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, firstCUEError(err)
	}
	if k := v.IncompleteKind(); k != cue.StructKind && k != cue.ListKind {
		return nil, fmt.Errorf("expected object or array, got %s", k)
	}

	data, err := v.MarshalJSON()
	if err != nil {
		return nil, firstCUEError(err)
	}
	return ir.FromJSON(data)
}

// firstCUEError reduces a CUE error list to its first message.
func firstCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	msg, args := errs[0].Msg()
	return errors.New(fmt.Sprintf(msg, args...))
}

func unquote(raw string) (string, error) {
	return strconv.Unquote(raw)
}
