// Package dsl parses Vault DSL source (.vau) into an AST.
//
// The language is line oriented. Each non-blank line starts with a keyword
// and indentation opens the body of a vault or a conditional:
//
//	vault payments
//	  registry creds
//	  store creds -> "api_key" = "k-123"
//	  if missing -> "rotated_at"
//	    store -> "rotated_at" = now()
//	  note "rotated by ops"
//	  secure
//
// Document values use CUE/JSON literal syntax and are evaluated with the
// CUE SDK. Render prints a Program back in canonical form.
package dsl
