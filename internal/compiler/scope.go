package compiler

import (
	"fmt"

	"github.com/0bArc/Vault/internal/dsl"
)

// scope tracks the registries visible to a body. A conditional body gets a
// child scope: its declarations vanish when the body ends.
type scope struct {
	parent   *scope
	declared map[string]bool
	current  string
}

func newScope(seeded []string) *scope {
	s := &scope{declared: make(map[string]bool, len(seeded))}
	for _, reg := range seeded {
		s.declared[reg] = true
	}
	return s
}

func (s *scope) child() *scope {
	return &scope{parent: s, declared: make(map[string]bool), current: s.current}
}

func (s *scope) declare(reg string) {
	s.declared[reg] = true
	s.current = reg
}

func (s *scope) has(reg string) bool {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.declared[reg] {
			return true
		}
	}
	return false
}

// resolve returns the registry a target addresses.
func (s *scope) resolve(t dsl.Target) (string, error) {
	if t.Registry == "" {
		if s.current == "" {
			return "", fmt.Errorf("%w: key %q has no registry and none is declared", ErrNoRegistry, t.Key)
		}
		return s.current, nil
	}
	if !s.has(t.Registry) {
		return "", fmt.Errorf("%w: %q", ErrRegistryNotDeclared, t.Registry)
	}
	return t.Registry, nil
}
