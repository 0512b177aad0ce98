// Package keyexpr implements the small expression language used to derive a
// duplicate-detection key from named operation arguments.
//
// Grammar:
//
//	expr     = term { "+" term }
//	term     = ref | string | integer
//	ref      = "#" ident { accessor }
//	accessor = "." ident | "?." ident | "[" integer "]" | "[" string "]"
//	string   = "'" chars "'" | `"` chars `"`
//
// Examples: "#foo", "#foobar.bar", "#order.items[0].sku", "#user?.email",
// "#tenant + ':' + #request['id']".
package keyexpr

import (
	"fmt"
)

// Vars binds argument names to values for evaluation.
type Vars map[string]any

// SyntaxError reports a malformed expression.
type SyntaxError struct {
	Expr    string
	Pos     int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %q at offset %d: %s", e.Expr, e.Pos, e.Message)
}

// EvaluationError reports a failure to resolve a reference against Vars.
type EvaluationError struct {
	Expr    string
	Path    string
	Message string
	Err     error
}

func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("evaluation error in %q at %s: %s: %v", e.Expr, e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("evaluation error in %q at %s: %s", e.Expr, e.Path, e.Message)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

type termKind int

const (
	termRef termKind = iota
	termString
	termInt
)

type stepKind int

const (
	stepField stepKind = iota
	stepIndex
	stepKey
)

type step struct {
	kind     stepKind
	name     string // field name or map key
	index    int
	nullSafe bool
}

type term struct {
	kind  termKind
	name  string // variable name for refs
	steps []step
	str   string
	num   int64
}
