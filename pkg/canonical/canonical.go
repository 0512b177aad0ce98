// Package canonical encodes arbitrary Go values as canonical JSON text so that
// equal values always produce byte-identical output.
//
// Differences from encoding/json:
//   - map keys are sorted by UTF-16 code units
//   - strings are NFC normalized and HTML characters are not escaped
//   - time.Time is written as "2006-01-02 15:04:05" in UTC
//   - NaN and infinities are rejected instead of silently dropped
//   - output of json.Marshaler values is re-canonicalized
package canonical

import (
	"bytes"
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// TimeLayout is the layout used for time.Time values.
const TimeLayout = "2006-01-02 15:04:05"

// MaxDepth bounds nesting so that cyclic values fail instead of recursing forever.
const MaxDepth = 64

var (
	timeType          = reflect.TypeOf(time.Time{})
	jsonNumberType    = reflect.TypeOf(json.Number(""))
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// UnsupportedValueError reports a value that has no canonical form.
type UnsupportedValueError struct {
	Type   string
	Reason string
}

func (e *UnsupportedValueError) Error() string {
	return fmt.Sprintf("canonical: unsupported value of type %s: %s", e.Type, e.Reason)
}

// Marshal returns the canonical JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	e := &encoder{}
	if err := e.encode(reflect.ValueOf(v), 0); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// MarshalString is Marshal returning a string.
func MarshalString(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type encoder struct {
	buf bytes.Buffer
}

func unsupported(t reflect.Type, reason string) error {
	name := "nil"
	if t != nil {
		name = t.String()
	}
	return &UnsupportedValueError{Type: name, Reason: reason}
}

func (e *encoder) encode(v reflect.Value, depth int) error {
	if !v.IsValid() {
		e.buf.WriteString("null")
		return nil
	}
	if depth > MaxDepth {
		return unsupported(v.Type(), fmt.Sprintf("nesting deeper than %d", MaxDepth))
	}

	if v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
	}

	t := v.Type()
	if t == jsonNumberType {
		e.buf.WriteString(v.String())
		return nil
	}
	// Values reached through unexported embedded structs cannot be handed to methods.
	canCall := v.CanInterface() && t.Kind() != reflect.Pointer
	if canCall && t == timeType {
		e.writeString(v.Interface().(time.Time).UTC().Format(TimeLayout))
		return nil
	}
	if canCall && t.Implements(jsonMarshalerType) {
		return e.encodeMarshaler(v, depth)
	}
	if canCall && t.Implements(textMarshalerType) {
		text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return unsupported(t, err.Error())
		}
		e.writeString(string(text))
		return nil
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		return e.encode(v.Elem(), depth+1)
	case reflect.Bool:
		e.buf.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.buf.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		s, err := FormatFloat(v.Float(), t.Bits())
		if err != nil {
			return unsupported(t, err.Error())
		}
		e.buf.WriteString(s)
	case reflect.String:
		e.writeString(v.String())
	case reflect.Slice:
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		if t.Elem().Kind() == reflect.Uint8 {
			e.writeString(base64.StdEncoding.EncodeToString(v.Bytes()))
			return nil
		}
		return e.encodeList(v, depth)
	case reflect.Array:
		return e.encodeList(v, depth)
	case reflect.Map:
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		return e.encodeMap(v, depth)
	case reflect.Struct:
		return e.encodeStruct(v, depth)
	default:
		return unsupported(t, "kind "+v.Kind().String()+" has no JSON form")
	}
	return nil
}

// FormatFloat renders a float the way encoding/json does, rejecting NaN and infinities.
func FormatFloat(f float64, bits int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%v has no JSON form", f)
	}
	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 {
		if bits == 64 && (abs < 1e-6 || abs >= 1e21) ||
			bits == 32 && (float32(abs) < 1e-6 || float32(abs) >= 1e21) {
			format = 'e'
		}
	}
	s := strconv.FormatFloat(f, format, -1, bits)
	if format == 'e' {
		// clean up e-09 to e-9
		n := len(s)
		if n >= 4 && s[n-4] == 'e' && s[n-3] == '-' && s[n-2] == '0' {
			s = s[:n-2] + s[n-1:]
		}
	}
	return s, nil
}

func (e *encoder) encodeList(v reflect.Value, depth int) error {
	e.buf.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encode(v.Index(i), depth+1); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func (e *encoder) encodeMap(v reflect.Value, depth int) error {
	type kv struct {
		key   string
		value reflect.Value
	}

	entries := make([]kv, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		key, err := mapKey(iter.Key())
		if err != nil {
			return err
		}
		entries = append(entries, kv{key: norm.NFC.String(key), value: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return lessUTF16(entries[i].key, entries[j].key)
	})

	e.buf.WriteByte('{')
	for i, entry := range entries {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.writeString(entry.key)
		e.buf.WriteByte(':')
		if err := e.encode(entry.value, depth+1); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

func mapKey(k reflect.Value) (string, error) {
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	if k.CanInterface() && k.Type().Implements(textMarshalerType) {
		if k.Kind() == reflect.Pointer && k.IsNil() {
			return "", nil
		}
		text, err := k.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return "", unsupported(k.Type(), err.Error())
		}
		return string(text), nil
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), nil
	}
	return "", unsupported(k.Type(), "map key must be a string, integer or TextMarshaler")
}

func lessUTF16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}

func (e *encoder) encodeStruct(v reflect.Value, depth int) error {
	e.buf.WriteByte('{')
	first := true
	for _, f := range cachedFields(v.Type()) {
		fv, ok := fieldByIndex(v, f.index)
		if !ok {
			continue
		}
		if f.omitEmpty && isEmptyValue(fv) {
			continue
		}
		if !first {
			e.buf.WriteByte(',')
		}
		first = false
		e.writeString(f.name)
		e.buf.WriteByte(':')
		if err := e.encode(fv, depth+1); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

// fieldByIndex walks embedded pointers, reporting false when one is nil.
func fieldByIndex(v reflect.Value, index []int) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}

func (e *encoder) encodeMarshaler(v reflect.Value, depth int) error {
	raw, err := v.Interface().(json.Marshaler).MarshalJSON()
	if err != nil {
		return unsupported(v.Type(), err.Error())
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return unsupported(v.Type(), "MarshalJSON returned invalid JSON: "+err.Error())
	}
	return e.encode(reflect.ValueOf(decoded), depth+1)
}

func (e *encoder) writeString(s string) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(norm.NFC.String(s))
	e.buf.Write(bytes.TrimSuffix(b.Bytes(), []byte("\n")))
}

type field struct {
	name      string
	index     []int
	omitEmpty bool
}

var fieldCache sync.Map // reflect.Type -> []field

func cachedFields(t reflect.Type) []field {
	if f, ok := fieldCache.Load(t); ok {
		return f.([]field)
	}
	f, _ := fieldCache.LoadOrStore(t, typeFields(t, nil, map[string]bool{}))
	return f.([]field)
}

// typeFields lists encodable fields in declaration order. Fields of untagged
// embedded structs follow the outer fields; a name already taken wins.
func typeFields(t reflect.Type, parent []int, seen map[string]bool) []field {
	var fields []field
	var embedded []reflect.StructField

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")

		ft := sf.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if sf.Anonymous && name == "" && ft.Kind() == reflect.Struct {
			if sf.IsExported() || sf.Type.Kind() != reflect.Pointer {
				embedded = append(embedded, sf)
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		index := append(append([]int(nil), parent...), i)
		fields = append(fields, field{
			name:      name,
			index:     index,
			omitEmpty: strings.Contains(","+opts+",", ",omitempty,"),
		})
	}

	for _, sf := range embedded {
		ft := sf.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		index := append(append([]int(nil), parent...), sf.Index...)
		fields = append(fields, typeFields(ft, index, seen)...)
	}
	return fields
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Pointer:
		return v.IsNil()
	}
	return false
}
