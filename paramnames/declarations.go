package paramnames

import (
	"fmt"
	"sync"
	"unicode"

	"github.com/c360/dupguard/errors"
)

// Source derives the ordered formal parameter names of an operation.
// A nil slice with a nil error means the operation has no retained names.
type Source interface {
	ParamNames(signature string) ([]string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(signature string) ([]string, error)

// ParamNames implements Source.
func (f SourceFunc) ParamNames(signature string) ([]string, error) {
	return f(signature)
}

// Declarations is a Source backed by names registered at wiring time, since
// compiled Go functions do not retain parameter names.
type Declarations struct {
	mu    sync.RWMutex
	names map[string][]string
}

// NewDeclarations creates an empty registry.
func NewDeclarations() *Declarations {
	return &Declarations{names: make(map[string][]string)}
}

// Declare records the parameter names of signature. Declaring the same
// signature again is only allowed with identical names.
func (d *Declarations) Declare(signature string, names ...string) error {
	if signature == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Declarations", "Declare", "empty signature")
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if !validName(name) {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Declarations", "Declare",
				fmt.Sprintf("invalid parameter name %q for %s", name, signature))
		}
		if seen[name] {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Declarations", "Declare",
				fmt.Sprintf("duplicate parameter name %q for %s", name, signature))
		}
		seen[name] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.names[signature]; ok {
		if !equalNames(existing, names) {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Declarations", "Declare",
				fmt.Sprintf("%s already declared with %v", signature, existing))
		}
		return nil
	}
	d.names[signature] = append([]string(nil), names...)
	return nil
}

// MustDeclare is Declare that panics, for package-level wiring.
func (d *Declarations) MustDeclare(signature string, names ...string) {
	if err := d.Declare(signature, names...); err != nil {
		panic(err)
	}
}

// ParamNames implements Source.
func (d *Declarations) ParamNames(signature string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names, ok := d.names[signature]
	if !ok || len(names) == 0 {
		return nil, nil
	}
	return append([]string(nil), names...), nil
}

// Len returns the number of declared signatures.
func (d *Declarations) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.names)
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
