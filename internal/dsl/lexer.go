package dsl

import (
	"strings"
)

// line is one significant source line with its indentation stripped.
type line struct {
	number int
	indent int
	text   string
}

// lex splits source into significant lines. Blank lines and full-line
// `#` comments are dropped; tabs in indentation are rejected.
func lex(file string, src []byte) ([]line, error) {
	raw := strings.Split(strings.ReplaceAll(string(src), "\r\n", "\n"), "\n")
	lines := make([]line, 0, len(raw))

	for i, text := range raw {
		number := i + 1
		text = strings.TrimRight(text, " \r")

		indent := 0
		for indent < len(text) && (text[indent] == ' ' || text[indent] == '\t') {
			if text[indent] == '\t' {
				return nil, &ParseError{
					File:   file,
					Line:   number,
					Column: indent + 1,
					Reason: "tabs are not allowed in indentation",
				}
			}
			indent++
		}

		body := text[indent:]
		if body == "" || strings.HasPrefix(body, "#") {
			continue
		}
		lines = append(lines, line{number: number, indent: indent, text: body})
	}
	return lines, nil
}

// cursor scans the text of a single line, tracking the column for errors.
type cursor struct {
	file string
	ln   line
	off  int
}

func newCursor(file string, ln line) *cursor {
	return &cursor{file: file, ln: ln}
}

func (c *cursor) column() int {
	return c.ln.indent + c.off + 1
}

func (c *cursor) fail(reason string) *ParseError {
	return &ParseError{File: c.file, Line: c.ln.number, Column: c.column(), Reason: reason}
}

func (c *cursor) rest() string {
	return c.ln.text[c.off:]
}

func (c *cursor) eof() bool {
	return c.off >= len(c.ln.text)
}

func (c *cursor) skipSpaces() {
	for c.off < len(c.ln.text) && c.ln.text[c.off] == ' ' {
		c.off++
	}
}

// word consumes a run of non-space characters.
func (c *cursor) word() string {
	start := c.off
	for c.off < len(c.ln.text) && c.ln.text[c.off] != ' ' {
		c.off++
	}
	return c.ln.text[start:c.off]
}

// quoted consumes a double-quoted string starting at the cursor and
// returns its unescaped contents. Escapes follow Go string literal rules.
func (c *cursor) quoted() (string, error) {
	if c.eof() || c.ln.text[c.off] != '"' {
		return "", c.fail("expected quoted string")
	}
	start := c.off
	i := c.off + 1
	for i < len(c.ln.text) {
		switch c.ln.text[i] {
		case '\\':
			i += 2
			continue
		case '"':
			raw := c.ln.text[start : i+1]
			s, err := unquote(raw)
			if err != nil {
				return "", c.fail("invalid escape in quoted string")
			}
			c.off = i + 1
			return s, nil
		}
		i++
	}
	return "", c.fail("unterminated quoted string")
}
