package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Semantic error codes (E101-E110)
const (
	ErrDuplicateVault      = "E101" // vault name declared twice in the compile unit
	ErrDependencyCollision = "E102" // vault name provided by a dependency (strict names)
	ErrInvalidName         = "E103" // malformed vault or registry name
	ErrInvalidKey          = "E104" // empty, non-NFC or control-character key
	ErrUndeclaredRegistry  = "E105" // explicit registry not declared in scope
	ErrNoCurrentRegistry   = "E106" // target without registry before any declaration
	ErrAfterSecure         = "E107" // operation after secure
	ErrEmptyConditional    = "E108" // conditional without a body
	ErrSecureInConditional = "E109" // secure inside a conditional body
	ErrUnknownBuiltin      = "E110" // call to an unknown builtin
)

// SemanticError is a structural problem in a parseable program.
type SemanticError struct {
	Code    string `json:"code"`
	Vault   string `json:"vault,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// Error implements the error interface.
func (e SemanticError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Code)
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d:%d:", e.Line, e.Column)
	}
	if e.Vault != "" {
		fmt.Fprintf(&b, " vault %q:", e.Vault)
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)
	return b.String()
}

// SemanticErrors is the batch returned by Validate, usable as an error.
type SemanticErrors []SemanticError

// Error implements the error interface.
func (errs SemanticErrors) Error() string {
	switch len(errs) {
	case 0:
		return "no semantic errors"
	case 1:
		return errs[0].Error()
	}
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.Error()
	}
	return fmt.Sprintf("%d semantic errors:\n%s", len(errs), strings.Join(lines, "\n"))
}

// Replay failures wrapped by CompileError.
var (
	ErrRegistryNotDeclared = errors.New("registry not declared")
	ErrNoRegistry          = errors.New("no registry declared")
	ErrBuiltin             = errors.New("builtin failed")
	ErrDependency          = errors.New("dependency vault unusable")
)

// CompileError stops a compile. Nothing is written when it occurs.
type CompileError struct {
	Vault string
	Line  int
	Cause error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("compile vault %q (line %d): %v", e.Vault, e.Line, e.Cause)
	}
	return fmt.Sprintf("compile vault %q: %v", e.Vault, e.Cause)
}

func (e *CompileError) Unwrap() error {
	return e.Cause
}
