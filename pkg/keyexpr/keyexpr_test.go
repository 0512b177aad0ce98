package keyexpr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type foobar struct {
	Foo string `json:"foo"`
	Bar string `json:"bar"`
}

type item struct {
	SKU string `json:"sku"`
	Qty int
}

type customer struct {
	Email string
}

type order struct {
	ID       int64             `json:"order_id"`
	Items    []item            `json:"items"`
	Customer *customer         `json:"customer"`
	Meta     map[string]string `json:"meta"`
	Scores   map[int]float64
}

func sampleOrder() *order {
	return &order{
		ID:       7,
		Items:    []item{{SKU: "A-1", Qty: 2}, {SKU: "B-2", Qty: 1}},
		Customer: &customer{Email: "ana@example.com"},
		Meta:     map[string]string{"channel": "web"},
		Scores:   map[int]float64{1: 0.5},
	}
}

func TestCompile_Valid(t *testing.T) {
	tests := []struct {
		expr string
		refs []string
	}{
		{"#foo", []string{"foo"}},
		{"#foobar.bar", []string{"foobar"}},
		{"#order.items[0].sku", []string{"order"}},
		{"#order['meta']['channel']", []string{"order"}},
		{`#order["meta"]`, []string{"order"}},
		{"#user?.email", []string{"user"}},
		{"#a + ':' + #b + ':' + #a", []string{"a", "b"}},
		{"'static'", nil},
		{"  #foo  ", []string{"foo"}},
		{"#_x1", []string{"_x1"}},
		{"42 + #n", []string{"n"}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			e, err := Compile(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, e.String())
			assert.Equal(t, tt.refs, e.Refs())
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	tests := []string{
		"",
		"foo",
		"#",
		"#1abc",
		"#foo.",
		"#foo?.",
		"#foo[",
		"#foo[0",
		"#foo[-1]",
		"#foo['x'",
		"'unterminated",
		"#foo +",
		"#foo #bar",
		"#foo.bar()",
		"#foo[99999999999999999999]",
	}

	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			_, err := Compile(expr)
			require.Error(t, err)
			var se *SyntaxError
			assert.ErrorAs(t, err, &se)
		})
	}
}

func TestMustCompile_Panics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("#") })
	assert.NotPanics(t, func() { MustCompile("#ok") })
}

func TestEval(t *testing.T) {
	vars := Vars{
		"foo":    "foo111",
		"bar":    "bar111",
		"foobar": foobar{Foo: "foo111", Bar: "bar111"},
		"order":  sampleOrder(),
		"count":  3,
		"nilptr": (*customer)(nil),
	}

	tests := []struct {
		expr     string
		expected any
	}{
		{"#foo", "foo111"},
		{"#foobar.bar", "bar111"},
		{"#foobar.Bar", "bar111"},
		{"#foobar['foo']", "foo111"},
		{"#order.order_id", int64(7)},
		{"#order.ID", int64(7)},
		{"#order.items[1].sku", "B-2"},
		{"#order.Items[0].qty", 2},
		{"#order.customer.email", "ana@example.com"},
		{"#order.meta.channel", "web"},
		{"#order['meta']['channel']", "web"},
		{"#order.meta.missing", nil},
		{"#order.Scores[1]", 0.5},
		{"#unbound", nil},
		{"#nilptr", nil},
		{"#nilptr?.Email", nil},
		{"#count", 3},
		{"'lit'", "lit"},
		{"12", int64(12)},
		{"#foo + '-' + #bar", "foo111-bar111"},
		{"#foo + #unbound", "foo111null"},
		{"#order.order_id + ':' + #count", "7:3"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			e, err := Compile(tt.expr)
			require.NoError(t, err)

			got, err := e.Eval(vars)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEval_Errors(t *testing.T) {
	vars := Vars{
		"foobar": foobar{Foo: "x"},
		"order":  sampleOrder(),
		"nilptr": (*customer)(nil),
		"n":      5,
	}

	tests := []string{
		"#nilptr.Email",
		"#unbound.field",
		"#foobar.baz",
		"#order.items[5]",
		"#n.field",
		"#n[0]",
		"#foobar[0]",
		"#order.meta[0]",
	}

	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			e, err := Compile(expr)
			require.NoError(t, err)

			_, err = e.Eval(vars)
			require.Error(t, err)
			var ee *EvaluationError
			assert.ErrorAs(t, err, &ee)
		})
	}
}

func TestEvalText(t *testing.T) {
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.FixedZone("X", 2*3600))
	vars := Vars{
		"foobar": foobar{Foo: "foo111", Bar: "bar111"},
		"flag":   true,
		"price":  9.99,
		"at":     ts,
		"tags":   []string{"b", "a"},
	}

	tests := []struct {
		expr     string
		expected string
	}{
		{"#missing", ""},
		{"#flag", "true"},
		{"#price", "9.99"},
		{"#at", "2024-05-01 06:00:00"},
		{"#foobar", `{"foo":"foo111","bar":"bar111"}`},
		{"#tags", `["b","a"]`},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := MustCompile(tt.expr).EvalText(vars)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEvalText_Unrenderable(t *testing.T) {
	_, err := MustCompile("#ch").EvalText(Vars{"ch": make(chan int)})
	var ee *EvaluationError
	assert.ErrorAs(t, err, &ee)
}

func TestText_Stringer(t *testing.T) {
	got, err := Text(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1s", got)
}
