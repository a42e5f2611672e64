package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyjsonserver/rustyjsonserver/internal/jsonval"
)

func TestStoreSetGet(t *testing.T) {
	s := New(1 << 20)
	s.Set("a", jsonval.Number(42))
	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, float64(42), v.Num())
}

func TestStoreGetMissing(t *testing.T) {
	s := New(1 << 20)
	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestStoreOverwrite(t *testing.T) {
	s := New(1 << 20)
	s.Set("a", jsonval.String("first"))
	s.Set("a", jsonval.String("second"))
	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "second", v.Str())
}

func TestStoreDel(t *testing.T) {
	s := New(1 << 20)
	s.Set("a", jsonval.Bool(true))
	s.Del("a")
	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStoreClear(t *testing.T) {
	s := New(1 << 20)
	s.Set("a", jsonval.Number(1))
	s.Set("b", jsonval.Number(2))
	s.Clear()
	assert.Equal(t, 0, s.Len())
	_, ok := s.Get("a")
	assert.False(t, ok)
}

func TestStoreObjectRoundTrip(t *testing.T) {
	s := New(1 << 20)
	o := jsonval.NewObject()
	o.Set("x", jsonval.Number(1))
	o.Set("y", jsonval.String("two"))
	s.Set("obj", jsonval.Obj(o))

	got, ok := s.Get("obj")
	require.True(t, ok)
	assert.True(t, jsonval.Equal(jsonval.Obj(o), got))
}
