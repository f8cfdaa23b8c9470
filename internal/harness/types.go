package harness

import (
	"github.com/0bArc/Vault/internal/inspect"
	"github.com/0bArc/Vault/internal/store"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when the expected outcome occurred and every
	// assertion held.
	Pass bool `json:"pass"`

	// Errors contains assertion and expectation failures.
	Errors []string `json:"errors,omitempty"`

	// Codes are the semantic error codes reported by validation.
	Codes []string `json:"codes,omitempty"`

	// Failure is the parse or compile error text, if any.
	Failure string `json:"failure,omitempty"`

	// Report is the inspected archive; nil when compilation failed.
	Report *inspect.Report `json:"report,omitempty"`

	// Build is the ledger record of the compile; nil when compilation failed.
	Build *store.Build `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
