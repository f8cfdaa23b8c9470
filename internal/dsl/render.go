package dsl

import (
	"strconv"
	"strings"

	"github.com/0bArc/Vault/internal/ir"
)

const indentUnit = "  "

// Render prints prog in canonical form: two-space indentation, explicit
// `->` targets and one blank line between vaults. Parsing the output
// yields an equivalent Program.
func Render(prog *Program) string {
	var b strings.Builder
	for i, v := range prog.Vaults {
		if i > 0 {
			b.WriteByte('\n')
		}
		renderVault(&b, v)
	}
	return b.String()
}

func renderVault(b *strings.Builder, v *Vault) {
	if v.Optional {
		b.WriteString("vault? ")
	} else {
		b.WriteString("vault ")
	}
	b.WriteString(v.Name)
	b.WriteByte('\n')
	renderBody(b, v.Body, 1)
}

func renderBody(b *strings.Builder, ops []Operation, depth int) {
	pad := strings.Repeat(indentUnit, depth)
	for _, op := range ops {
		b.WriteString(pad)
		switch o := op.(type) {
		case *RegistryDecl:
			b.WriteString("registry ")
			b.WriteString(o.Name)
		case *Assign:
			b.WriteString(o.Kind.Keyword())
			b.WriteByte(' ')
			b.WriteString(FormatTarget(o.Target))
			b.WriteString(" = ")
			b.WriteString(FormatExpr(o.Value))
		case *Conditional:
			b.WriteString("if ")
			b.WriteString(o.When.Keyword())
			b.WriteByte(' ')
			b.WriteString(FormatTarget(o.Target))
		case *Note:
			b.WriteString("note ")
			b.WriteString(strconv.Quote(o.Text))
		case *Secure:
			b.WriteString("secure")
		}
		b.WriteByte('\n')

		if c, ok := op.(*Conditional); ok {
			renderBody(b, c.Body, depth+1)
		}
	}
}

// FormatTarget renders a target as `reg -> "key"` or `-> "key"`.
func FormatTarget(t Target) string {
	if t.Registry == "" {
		return "-> " + strconv.Quote(t.Key)
	}
	return t.Registry + " -> " + strconv.Quote(t.Key)
}

// FormatExpr renders a value expression as source text.
func FormatExpr(e Expr) string {
	switch x := e.(type) {
	case *Literal:
		return ir.Format(x.Value)
	case *Call:
		return x.Name + "()"
	default:
		return ""
	}
}
