package keyexpr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/c360/dupguard/pkg/canonical"
)

// Expression is a compiled key expression.
type Expression struct {
	source string
	terms  []term
}

// String returns the source text.
func (e *Expression) String() string {
	return e.source
}

// Refs returns the variable names referenced by the expression, in order of appearance.
func (e *Expression) Refs() []string {
	var refs []string
	seen := make(map[string]bool)
	for _, t := range e.terms {
		if t.kind == termRef && !seen[t.name] {
			seen[t.name] = true
			refs = append(refs, t.name)
		}
	}
	return refs
}

// Eval evaluates the expression. A single term yields the referenced value
// itself; a concatenation yields a string where nil parts render as "null".
// Unbound variables and missing map keys evaluate to nil. Traversing through
// nil is an error unless the step is null-safe ("?."), in which case the whole
// reference evaluates to nil.
func (e *Expression) Eval(vars Vars) (any, error) {
	if len(e.terms) == 1 {
		return e.evalTerm(e.terms[0], vars)
	}

	var b strings.Builder
	for _, t := range e.terms {
		v, err := e.evalTerm(t, vars)
		if err != nil {
			return nil, err
		}
		if v == nil {
			b.WriteString("null")
			continue
		}
		s, err := Text(v)
		if err != nil {
			return nil, &EvaluationError{Expr: e.source, Path: t.path(), Message: "cannot render value", Err: err}
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// EvalText evaluates the expression and renders the result with Text.
func (e *Expression) EvalText(vars Vars) (string, error) {
	v, err := e.Eval(vars)
	if err != nil {
		return "", err
	}
	s, err := Text(v)
	if err != nil {
		return "", &EvaluationError{Expr: e.source, Path: "result", Message: "cannot render value", Err: err}
	}
	return s, nil
}

// Text renders an evaluation result as key material: nil is the empty string,
// strings are used as is, scalars use their literal text and anything else is
// encoded as canonical JSON.
func Text(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case time.Time:
		return val.UTC().Format(canonical.TimeLayout), nil
	case fmt.Stringer:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return canonical.FormatFloat(rv.Float(), rv.Type().Bits())
	case reflect.String:
		return rv.String(), nil
	}
	return canonical.MarshalString(v)
}

func (e *Expression) evalTerm(t term, vars Vars) (any, error) {
	switch t.kind {
	case termString:
		return t.str, nil
	case termInt:
		return t.num, nil
	}

	cur := reflect.ValueOf(vars[t.name])
	path := "#" + t.name
	for _, st := range t.steps {
		cur = indirect(cur)
		if !cur.IsValid() {
			if st.nullSafe {
				return nil, nil
			}
			return nil, &EvaluationError{Expr: e.source, Path: path, Message: "cannot access " + st.String() + " on nil"}
		}

		next, err := access(cur, st)
		if err != nil {
			return nil, &EvaluationError{Expr: e.source, Path: path, Message: "cannot access " + st.String(), Err: err}
		}
		cur = next
		path += st.String()
	}

	cur = indirect(cur)
	if !cur.IsValid() || !cur.CanInterface() {
		return nil, nil
	}
	return cur.Interface(), nil
}

// indirect unwraps pointers and interfaces, returning the zero Value for nil.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func access(v reflect.Value, st step) (reflect.Value, error) {
	switch st.kind {
	case stepField, stepKey:
		switch v.Kind() {
		case reflect.Struct:
			f, ok := lookupField(v, st.name)
			if !ok {
				return reflect.Value{}, fmt.Errorf("%s has no field %q", v.Type(), st.name)
			}
			return f, nil
		case reflect.Map:
			return mapIndex(v, reflect.ValueOf(st.name))
		}
		return reflect.Value{}, fmt.Errorf("%s has no fields", v.Type())

	case stepIndex:
		switch v.Kind() {
		case reflect.Slice, reflect.Array:
			if st.index >= v.Len() {
				return reflect.Value{}, fmt.Errorf("index %d out of range [0,%d)", st.index, v.Len())
			}
			return v.Index(st.index), nil
		case reflect.Map:
			return mapIndex(v, reflect.ValueOf(st.index))
		}
		return reflect.Value{}, fmt.Errorf("%s is not indexable", v.Type())
	}
	return reflect.Value{}, fmt.Errorf("unknown accessor")
}

func mapIndex(m reflect.Value, key reflect.Value) (reflect.Value, error) {
	kt := m.Type().Key()
	if !key.Type().ConvertibleTo(kt) || (kt.Kind() == reflect.String) != (key.Kind() == reflect.String) {
		return reflect.Value{}, fmt.Errorf("map key type %s does not accept %v", kt, key)
	}
	return m.MapIndex(key.Convert(kt)), nil
}

// lookupField matches an exported field by name, then by json tag, then
// case-insensitively. A field promoted through a nil embedded pointer is found
// but invalid.
func lookupField(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	if sf, ok := t.FieldByName(name); ok && sf.IsExported() {
		f, err := v.FieldByIndexErr(sf.Index)
		if err != nil {
			return reflect.Value{}, true
		}
		return f, true
	}

	fold := -1
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if tag == name {
			return v.Field(i), true
		}
		if fold < 0 && strings.EqualFold(sf.Name, name) {
			fold = i
		}
	}
	if fold >= 0 {
		return v.Field(fold), true
	}
	return reflect.Value{}, false
}

func (t term) path() string {
	if t.kind != termRef {
		return "literal"
	}
	var b strings.Builder
	b.WriteString("#" + t.name)
	for _, st := range t.steps {
		b.WriteString(st.String())
	}
	return b.String()
}

func (st step) String() string {
	switch st.kind {
	case stepIndex:
		return "[" + strconv.Itoa(st.index) + "]"
	case stepKey:
		return "['" + st.name + "']"
	}
	if st.nullSafe {
		return "?." + st.name
	}
	return "." + st.name
}
