package guard

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/c360/dupguard/pkg/cache"
	"github.com/c360/dupguard/pkg/canonical"
	"github.com/c360/dupguard/pkg/keyexpr"
)

// argSeparator keeps ("1", "23") and ("12", "3") apart.
const argSeparator = '\x1f'

// EmptyFingerprint is the fingerprint of the empty string. Every expression-keyed
// call whose arguments cannot be named, or whose expression yields nothing,
// shares it.
var EmptyFingerprint = hashText("")

// NameResolver returns the ordered argument names of an operation, or nil.
type NameResolver interface {
	NamesFor(signature string) []string
}

// DegradedReason labels why a fingerprint fell back to a substitute value.
type DegradedReason string

const (
	DegradedSerialize  DegradedReason = "serialize"
	DegradedExpression DegradedReason = "expression"
	DegradedNoNames    DegradedReason = "no_names"
)

// Fingerprinter turns invocations into short, stable identities.
type Fingerprinter struct {
	names       NameResolver
	expressions cache.Cache[*keyexpr.Expression]
	logger      *slog.Logger
	onDegraded  func(DegradedReason)
}

// FingerprinterOption configures a Fingerprinter.
type FingerprinterOption func(*Fingerprinter)

// WithFingerprintLogger sets the logger for degraded fingerprints.
func WithFingerprintLogger(logger *slog.Logger) FingerprinterOption {
	return func(f *Fingerprinter) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithDegradedHook is called each time a substitute value is used.
func WithDegradedHook(hook func(DegradedReason)) FingerprinterOption {
	return func(f *Fingerprinter) {
		f.onDegraded = hook
	}
}

// NewFingerprinter creates a Fingerprinter. names may be nil when no policy
// uses key expressions.
func NewFingerprinter(names NameResolver, opts ...FingerprinterOption) *Fingerprinter {
	// 256 distinct expressions is far more than any service declares.
	exprs, _ := cache.NewLRU[*keyexpr.Expression](256)

	f := &Fingerprinter{
		names:       names,
		expressions: exprs,
		logger:      slog.Default(),
		onDegraded:  func(DegradedReason) {},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fingerprint returns the identity of inv. With an empty keyExpression it covers
// the signature and every argument; otherwise only the text the expression
// yields for the named arguments. It never fails: values that cannot be
// rendered are replaced with "null" or "".
func (f *Fingerprinter) Fingerprint(inv Invocation, keyExpression string) string {
	if keyExpression == "" {
		return f.rawFingerprint(inv)
	}
	return f.expressionFingerprint(inv, keyExpression)
}

func (f *Fingerprinter) rawFingerprint(inv Invocation) string {
	var b strings.Builder
	b.WriteString(inv.Signature)
	for i, arg := range inv.Args {
		b.WriteByte(argSeparator)
		b.WriteString(f.argText(inv.Signature, i, arg))
	}
	return hashText(b.String())
}

func (f *Fingerprinter) argText(signature string, index int, arg any) (text string) {
	if isNil(arg) {
		return "null"
	}
	if text, ok := numberText(arg); ok {
		return text
	}

	// A user MarshalJSON or MarshalText may panic.
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("Argument serializer panicked, using null",
				"signature", signature, "index", index, "type", fmt.Sprintf("%T", arg), "panic", r)
			f.onDegraded(DegradedSerialize)
			text = "null"
		}
	}()

	text, err := canonical.MarshalString(arg)
	if err != nil {
		f.logger.Error("Failed to serialize argument, using null",
			"signature", signature, "index", index, "type", fmt.Sprintf("%T", arg), "error", err)
		f.onDegraded(DegradedSerialize)
		return "null"
	}
	return text
}

func (f *Fingerprinter) expressionFingerprint(inv Invocation, keyExpression string) (fingerprint string) {
	// Evaluation calls user String and MarshalJSON methods.
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("Key expression evaluation panicked, using empty fingerprint",
				"signature", inv.Signature, "expression", keyExpression, "panic", r)
			f.onDegraded(DegradedExpression)
			fingerprint = EmptyFingerprint
		}
	}()

	var names []string
	if f.names != nil {
		names = f.names.NamesFor(inv.Signature)
	}
	if len(names) == 0 {
		if len(inv.Args) > 0 {
			f.logger.Warn("No argument names for key expression, using empty fingerprint",
				"signature", inv.Signature, "expression", keyExpression)
			f.onDegraded(DegradedNoNames)
		}
		return EmptyFingerprint
	}

	expr, err := f.compile(keyExpression)
	if err != nil {
		f.logger.Error("Invalid key expression, using empty fingerprint",
			"signature", inv.Signature, "expression", keyExpression, "error", err)
		f.onDegraded(DegradedExpression)
		return EmptyFingerprint
	}

	vars := make(keyexpr.Vars, len(names))
	for i := 0; i < len(names) && i < len(inv.Args); i++ {
		vars[names[i]] = inv.Args[i]
	}

	text, err := expr.EvalText(vars)
	if err != nil {
		f.logger.Error("Key expression evaluation failed, using empty fingerprint",
			"signature", inv.Signature, "expression", keyExpression, "error", err)
		f.onDegraded(DegradedExpression)
		return EmptyFingerprint
	}
	return hashText(text)
}

func (f *Fingerprinter) compile(source string) (*keyexpr.Expression, error) {
	if expr, ok := f.expressions.Get(source); ok {
		return expr, nil
	}
	expr, err := keyexpr.Compile(source)
	if err != nil {
		return nil, err
	}
	_, _ = f.expressions.Set(source, expr)
	return expr, nil
}

func hashText(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// numberText renders numeric arguments as their literal text.
func numberText(v any) (string, bool) {
	if n, ok := v.(json.Number); ok {
		return n.String(), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		bits := rv.Type().Bits()
		if s, err := canonical.FormatFloat(rv.Float(), bits); err == nil {
			return s, true
		}
		return strconv.FormatFloat(rv.Float(), 'g', -1, bits), true
	}
	return "", false
}
