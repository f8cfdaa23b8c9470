package compiler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/0bArc/Vault/internal/ir"
)

// Builtin produces a value for a `name()` call.
type Builtin func(ctx context.Context) (ir.Value, error)

// Builtins maps call names to implementations.
type Builtins map[string]Builtin

// Clock supplies the time for now().
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// DefaultBuiltins returns generate() and now() backed by crypto/rand and
// the system clock.
func DefaultBuiltins() Builtins {
	return NewBuiltins(rand.Reader, systemClock{})
}

// NewBuiltins returns generate() and now() over the given sources.
//
// generate() yields 32 lowercase hex characters read from random.
// now() yields the clock time in UTC, RFC 3339 with second precision.
func NewBuiltins(random io.Reader, clock Clock) Builtins {
	return Builtins{
		"generate": func(context.Context) (ir.Value, error) {
			buf := make([]byte, 16)
			if _, err := io.ReadFull(random, buf); err != nil {
				return nil, fmt.Errorf("generate: %w", err)
			}
			return ir.String(hex.EncodeToString(buf)), nil
		},
		"now": func(context.Context) (ir.Value, error) {
			return ir.String(clock.Now().UTC().Format(time.RFC3339)), nil
		},
	}
}

// Names returns the builtin names, sorted.
func (b Builtins) Names() []string {
	return slices.Sorted(maps.Keys(b))
}
