package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/0bArc/Vault/internal/archive"
	"github.com/0bArc/Vault/internal/compiler"
	"github.com/0bArc/Vault/internal/dsl"
	"github.com/0bArc/Vault/internal/inspect"
	"github.com/0bArc/Vault/internal/loader"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Domain failure: parse, semantic, compile, load or inspect error
	ExitCommandError = 2 // Command error: bad arguments, config, I/O
)

// Error codes used in JSON error responses.
const (
	ErrCodeParse       = "PARSE"
	ErrCodeSemantic    = "SEMANTIC"
	ErrCodeCompile     = "COMPILE"
	ErrCodeLoad        = "LOAD"
	ErrCodeIntegrity   = "INTEGRITY"
	ErrCodeInspect     = "INSPECT"
	ErrCodeConfig      = "CONFIG"
	ErrCodeIO          = "IO"
	ErrCodeUnformatted = "UNFORMATTED"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int    // Exit code (ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Errors that are not an ExitError are command errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// classify maps an engine error to its JSON error code and exit code.
func classify(err error) (string, int) {
	var (
		pe *dsl.ParseError
		se compiler.SemanticErrors
		ce *compiler.CompileError
		le *loader.LoadError
		ie *inspect.InspectError
	)
	switch {
	case errors.Is(err, errConfig):
		return ErrCodeConfig, ExitCommandError
	case errors.As(err, &pe):
		return ErrCodeParse, ExitFailure
	case errors.As(err, &se):
		return ErrCodeSemantic, ExitFailure
	case errors.As(err, &ce):
		return ErrCodeCompile, ExitFailure
	case errors.As(err, &le):
		return ErrCodeLoad, ExitFailure
	case errors.As(err, &ie):
		if ie.Kind == inspect.IntegrityViolation {
			return ErrCodeIntegrity, ExitFailure
		}
		return ErrCodeInspect, ExitFailure
	case errors.Is(err, archive.ErrMACMismatch):
		return ErrCodeIntegrity, ExitFailure
	case errors.Is(err, archive.ErrMalformed):
		return ErrCodeInspect, ExitFailure
	default:
		return ErrCodeIO, ExitCommandError
	}
}

// Styles for human-readable status lines.
var (
	SuccessStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	ErrorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	WarningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	MutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// OutputFormatter handles text, JSON and YAML output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Diagnostics; keeps structured output on Writer clean
	Verbose   bool
}

// CLIResponse is the standard JSON/YAML response envelope.
type CLIResponse struct {
	Status string    `json:"status" yaml:"status"`
	Data   any       `json:"data,omitempty" yaml:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty" yaml:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
	Details any    `json:"details,omitempty" yaml:"details,omitempty"`
}

// Structured reports whether output is JSON or YAML.
func (f *OutputFormatter) Structured() bool {
	return f.Format == string(inspect.FormatJSON) || f.Format == string(inspect.FormatYAML)
}

// Success writes data in the structured envelope, or calls text for
// human-readable output.
func (f *OutputFormatter) Success(data any, text func(w io.Writer)) error {
	if f.Structured() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Fail reports err and returns the ExitError for it. Structured formats
// get an error envelope on Writer; text output is left to the caller of
// the command, which prints the returned error.
func (f *OutputFormatter) Fail(message string, err error, details any) error {
	code, exit := classify(err)
	return f.FailWith(code, exit, message, err, details)
}

// FailWith is Fail with an explicit error and exit code.
func (f *OutputFormatter) FailWith(code string, exit int, message string, err error, details any) error {
	if f.Structured() {
		msg := message
		if err != nil {
			msg = fmt.Sprintf("%s: %v", message, err)
		}
		_ = f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: msg, Details: details},
		})
	}
	return WrapExitError(exit, message, err)
}

func (f *OutputFormatter) encode(v any) error {
	if f.Format == string(inspect.FormatYAML) {
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Status prints a styled status line for text output.
func (f *OutputFormatter) Status(ok bool, format string, args ...any) {
	if f.Structured() {
		return
	}
	mark := SuccessStyle.Render("✓")
	if !ok {
		mark = ErrorStyle.Render("✗")
	}
	fmt.Fprintf(f.Writer, "%s %s\n", mark, fmt.Sprintf(format, args...))
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintln(f.GetErrWriter(), MutedStyle.Render(fmt.Sprintf(format, args...)))
}

// GetErrWriter returns the writer for diagnostic output.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
