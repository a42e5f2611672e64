package jsonval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	cases := []string{
		`null`,
		`true`,
		`false`,
		`1`,
		`-3.5`,
		`"hello"`,
		`[]`,
		`{}`,
		`{"b":1,"a":2}`,
		`[1,2,3]`,
		`{"name":"Alice","tags":["a","b"],"nested":{"x":1}}`,
	}
	for _, raw := range cases {
		v, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		got := string(Encode(v))
		v2, err := Decode([]byte(got))
		require.NoError(t, err)
		assert.True(t, Equal(v, v2), "round trip %q -> %q", raw, got)
	}
}

func TestObjectPreservesInsertionOrder(t *testing.T) {
	v, err := Decode([]byte(`{"z":1,"a":2,"m":3}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, v.Object().Keys())
	assert.Equal(t, `{"z":1,"a":2,"m":3}`, string(Encode(v)))
}

func TestEqualDeep(t *testing.T) {
	a, _ := Decode([]byte(`{"x":[1,2,{"y":true}]}`))
	b, _ := Decode([]byte(`{"x":[1,2,{"y":true}]}`))
	c, _ := Decode([]byte(`{"x":[1,2,{"y":false}]}`))
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
}

func TestCloneIsIndependent(t *testing.T) {
	a, _ := Decode([]byte(`{"x":[1,2]}`))
	b := Clone(a)
	b.Object().Set("x", Array([]Value{Number(9)}))
	assert.False(t, Equal(a, b))
}

func TestSetUpdatesInPlace(t *testing.T) {
	o := NewObject()
	o.Set("a", Number(1))
	o.Set("b", Number(2))
	o.Set("a", Number(3))
	assert.Equal(t, []string{"a", "b"}, o.Keys())
	v, ok := o.Get("a")
	require.True(t, ok)
	assert.Equal(t, float64(3), v.Num())
}

func TestDeleteRemovesKeyOrder(t *testing.T) {
	o := NewObject()
	o.Set("a", Number(1))
	o.Set("b", Number(2))
	o.Set("c", Number(3))
	o.Delete("b")
	assert.Equal(t, []string{"a", "c"}, o.Keys())
	_, ok := o.Get("b")
	assert.False(t, ok)
}
