package inspect

import (
	"github.com/0bArc/Vault/internal/ir"
)

// Integrity states recorded in a Report.
const (
	IntegrityOK     = "ok"
	IntegrityFailed = "failed"
	// IntegrityUnsealed marks vaults that carry no MAC; they are covered
	// by the archive trailer only.
	IntegrityUnsealed = "unsealed"
)

// Report is the structured view of an archive.
type Report struct {
	Path         string        `json:"path,omitempty" yaml:"path,omitempty"`
	Version      int           `json:"version" yaml:"version"`
	Dependencies []string      `json:"dependencies" yaml:"dependencies"`
	Integrity    string        `json:"integrity" yaml:"integrity"`
	Trailer      string        `json:"trailer,omitempty" yaml:"trailer,omitempty"`
	Vaults       []VaultReport `json:"vaults" yaml:"vaults"`
}

// VaultReport describes one vault entry.
type VaultReport struct {
	Name       string           `json:"name" yaml:"name"`
	Optional   bool             `json:"optional" yaml:"optional"`
	Secure     bool             `json:"secure" yaml:"secure"`
	Integrity  string           `json:"integrity" yaml:"integrity"`
	MAC        string           `json:"mac,omitempty" yaml:"mac,omitempty"`
	Notes      []string         `json:"notes" yaml:"notes"`
	Registries []RegistryReport `json:"registries" yaml:"registries"`
	// Error is set in lenient mode when the vault could not be decrypted.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// RegistryReport lists the keys of one registry in canonical order.
type RegistryReport struct {
	Name string      `json:"name" yaml:"name"`
	Keys []KeyReport `json:"keys" yaml:"keys"`
}

// KeyReport is one key and its value.
type KeyReport struct {
	Key   string `json:"key" yaml:"key"`
	Type  string `json:"type" yaml:"type"`
	Value any    `json:"value" yaml:"value"`

	raw ir.Value
}

// Vault returns the report for name, or nil.
func (r *Report) Vault(name string) *VaultReport {
	for i := range r.Vaults {
		if r.Vaults[i].Name == name {
			return &r.Vaults[i]
		}
	}
	return nil
}

// Lookup returns the value of reg/key in the vault, if present.
func (v *VaultReport) Lookup(reg, key string) (ir.Value, bool) {
	for _, r := range v.Registries {
		if r.Name != reg {
			continue
		}
		for _, k := range r.Keys {
			if k.Key == key {
				return k.raw, true
			}
		}
	}
	return nil, false
}

// Triples flattens the vault into (registry, key, value) entries in
// canonical order.
func (v *VaultReport) Triples() []Triple {
	var out []Triple
	for _, r := range v.Registries {
		for _, k := range r.Keys {
			out = append(out, Triple{Registry: r.Name, Key: k.Key, Value: k.raw})
		}
	}
	return out
}

// Triple is a single stored value.
type Triple struct {
	Registry string
	Key      string
	Value    ir.Value
}

// Failed reports whether a lenient inspect recorded any integrity or
// decrypt failure.
func (r *Report) Failed() bool {
	if r.Integrity == IntegrityFailed {
		return true
	}
	for _, v := range r.Vaults {
		if v.Integrity == IntegrityFailed || v.Error != "" {
			return true
		}
	}
	return false
}
