package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one conformance case: a program, the dependency archives it
// compiles against, and what the compiled archive must contain.
type Scenario struct {
	// Name uniquely identifies this scenario; it also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Dependencies are compiled first, in order, and loaded as dependency
	// archives for Program. Later entries override earlier ones.
	Dependencies []DependencySource `yaml:"dependencies,omitempty"`

	// Program is the DSL source under test.
	Program string `yaml:"program"`

	Options ScenarioOptions `yaml:"options,omitempty"`

	// Expect describes an expected failure. Nil means the program must
	// compile cleanly.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Assertions run against the inspected archive.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// DependencySource is a dependency archive built from DSL source.
type DependencySource struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
}

// ScenarioOptions mirror the compile flags.
type ScenarioOptions struct {
	MaterializeOptionals bool `yaml:"materialize_optionals,omitempty"`
	StrictNames          bool `yaml:"strict_names,omitempty"`
}

// ExpectClause describes the expected failure of a scenario.
type ExpectClause struct {
	// Parse is a substring of the expected ParseError.
	Parse string `yaml:"parse,omitempty"`

	// Codes are the expected semantic error codes, in report order.
	Codes []string `yaml:"codes,omitempty"`

	// Compile is a substring of the expected CompileError.
	Compile string `yaml:"compile,omitempty"`
}

// Assertion checks one property of the inspected archive.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Vault    string `yaml:"vault,omitempty"`
	Registry string `yaml:"registry,omitempty"`
	Key      string `yaml:"key,omitempty"`

	// Value is the expected value (used by value).
	Value any `yaml:"value,omitempty"`

	// Vaults is the expected vault order (used by vaults).
	Vaults []string `yaml:"vaults,omitempty"`

	// Notes are the expected notes (used by notes).
	Notes []string `yaml:"notes,omitempty"`

	// Secure is the expected secure flag (used by secure).
	Secure *bool `yaml:"secure,omitempty"`

	// Query is a jq expression and Expect its single expected output
	// (used by query).
	Query  string `yaml:"query,omitempty"`
	Expect any    `yaml:"expect,omitempty"`

	// Keys is the expected key count recorded in the build ledger
	// (used by ledger).
	Keys *int `yaml:"keys,omitempty"`
}

// Assertion type constants.
const (
	AssertValue  = "value"
	AssertAbsent = "absent"
	AssertVaults = "vaults"
	AssertNotes  = "notes"
	AssertSecure = "secure"
	AssertQuery  = "query"
	AssertLedger = "ledger"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Program == "" {
		return fmt.Errorf("program is required")
	}

	seen := make(map[string]bool)
	for i, dep := range s.Dependencies {
		if dep.Name == "" {
			return fmt.Errorf("dependencies[%d]: name is required", i)
		}
		if dep.Source == "" {
			return fmt.Errorf("dependencies[%d]: source is required", i)
		}
		if seen[dep.Name] {
			return fmt.Errorf("dependencies[%d]: duplicate name %q", i, dep.Name)
		}
		seen[dep.Name] = true
	}

	if s.Expect != nil {
		set := 0
		for _, present := range []bool{s.Expect.Parse != "", len(s.Expect.Codes) > 0, s.Expect.Compile != ""} {
			if present {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("expect: exactly one of parse, codes or compile is required")
		}
		if len(s.Assertions) > 0 {
			return fmt.Errorf("assertions cannot be combined with an expected failure")
		}
	} else if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required when no failure is expected")
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	needsVault := func() error {
		if a.Vault == "" {
			return fmt.Errorf("assertions[%d]: vault is required for %s", index, a.Type)
		}
		return nil
	}
	needsCell := func() error {
		if err := needsVault(); err != nil {
			return err
		}
		if a.Registry == "" || a.Key == "" {
			return fmt.Errorf("assertions[%d]: registry and key are required for %s", index, a.Type)
		}
		return nil
	}

	switch a.Type {
	case AssertValue:
		if err := needsCell(); err != nil {
			return err
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for value", index)
		}
	case AssertAbsent:
		return needsCell()
	case AssertVaults:
		if a.Vaults == nil {
			return fmt.Errorf("assertions[%d]: vaults list is required for vaults", index)
		}
	case AssertNotes:
		return needsVault()
	case AssertSecure:
		if err := needsVault(); err != nil {
			return err
		}
		if a.Secure == nil {
			return fmt.Errorf("assertions[%d]: secure is required for secure", index)
		}
	case AssertQuery:
		if a.Query == "" {
			return fmt.Errorf("assertions[%d]: query is required for query", index)
		}
	case AssertLedger:
		if err := needsVault(); err != nil {
			return err
		}
		if a.Keys == nil || *a.Keys < 0 {
			return fmt.Errorf("assertions[%d]: non-negative keys is required for ledger", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
