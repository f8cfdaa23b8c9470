package dsl

import "github.com/0bArc/Vault/internal/ir"

// Pos is a 1-based source position.
type Pos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Program is a parsed compile unit: the vault blocks of one source file.
type Program struct {
	File   string
	Vaults []*Vault
}

// Vault is one `vault` or `vault?` block.
type Vault struct {
	Name     string
	Optional bool
	Body     []Operation
	Pos      Pos
}

// Secure reports whether the vault body carries a `secure` marker.
func (v *Vault) Secure() bool {
	for _, op := range v.Body {
		if _, ok := op.(*Secure); ok {
			return true
		}
	}
	return false
}

// Operation is a statement inside a vault or conditional body.
// Implemented by *RegistryDecl, *Assign, *Note, *Secure and *Conditional.
type Operation interface {
	Position() Pos
	operation()
}

// Target addresses a key, optionally inside an explicit registry.
// An empty Registry means the most recently declared registry in scope.
type Target struct {
	Registry string
	Key      string
}

// RegistryDecl declares a registry: `registry <name>`.
type RegistryDecl struct {
	Name string
	Pos  Pos
}

// AssignKind distinguishes store from replace.
type AssignKind int

const (
	AssignStore AssignKind = iota
	AssignReplace
)

// Keyword returns the DSL keyword for the assignment kind.
func (k AssignKind) Keyword() string {
	if k == AssignReplace {
		return "replace"
	}
	return "store"
}

// Assign writes a value to a key: `store`/`replace <target> = <value>`.
type Assign struct {
	Kind   AssignKind
	Target Target
	Value  Expr
	Pos    Pos
}

// Note attaches free text to the vault.
type Note struct {
	Text string
	Pos  Pos
}

// Secure seals the vault. Nothing may follow it.
type Secure struct {
	Pos Pos
}

// Condition selects which guard a Conditional evaluates.
type Condition int

const (
	IfMissing Condition = iota
	IfPresent
)

// Keyword returns the guard word used in source.
func (c Condition) Keyword() string {
	if c == IfPresent {
		return "present"
	}
	return "missing"
}

// Conditional runs Body when Target is missing (or present).
type Conditional struct {
	When   Condition
	Target Target
	Body   []Operation
	Pos    Pos
}

func (o *RegistryDecl) Position() Pos { return o.Pos }
func (o *Assign) Position() Pos       { return o.Pos }
func (o *Note) Position() Pos         { return o.Pos }
func (o *Secure) Position() Pos       { return o.Pos }
func (o *Conditional) Position() Pos  { return o.Pos }

func (*RegistryDecl) operation() {}
func (*Assign) operation()       {}
func (*Note) operation()         {}
func (*Secure) operation()       {}
func (*Conditional) operation()  {}

// Expr is the right-hand side of an assignment.
// Implemented by *Literal and *Call.
type Expr interface {
	expr()
}

// Literal is a constant value: string, number, bool or document.
type Literal struct {
	Value ir.Value
}

// Call is a builtin invocation such as generate() or now().
type Call struct {
	Name string
	Pos  Pos
}

func (*Literal) expr() {}
func (*Call) expr()    {}
