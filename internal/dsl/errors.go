package dsl

import "fmt"

// ParseError locates malformed DSL text.
type ParseError struct {
	File   string
	Line   int
	Column int
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	file := e.File
	if file == "" {
		file = "<input>"
	}
	if e.Column > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", file, e.Line, e.Column, e.Reason)
	}
	return fmt.Sprintf("%s:%d: %s", file, e.Line, e.Reason)
}
