// Package jsonval implements the tagged-variant JSON value model shared by
// the config resolver, the RJS interpreter and the table store.
//
// Object keys keep their insertion order so that a value round-tripped
// through Encode/Decode renders the same bytes every time, which is what
// the response bodies and the on-disk table files rely on for determinism.
package jsonval

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Kind is the tag of a Value.
type Kind uint8

// Value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a JSON value: null, bool, number, string, array or object. The
// zero Value is JSON null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	a    []Value
	o    *Object
}

// Object is an insertion-ordered string-keyed map of Values.
type Object struct {
	keys   []string
	values map[string]Value
}

// NewObject returns a new, empty Object.
func NewObject() *Object {
	return &Object{values: map[string]Value{}}
}

// Set inserts or updates key. Existing keys keep their original position.
func (o *Object) Set(key string, v Value) {
	if o.values == nil {
		o.values = map[string]Value{}
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Get returns the value for key and whether it was present.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Delete removes key from the object, if present.
func (o *Object) Delete(key string) {
	if o == nil {
		return
	}
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the object's keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

// Len returns the number of keys in the object.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Null, True, False are the singleton scalar constants.
var (
	Null  = Value{kind: KindNull}
	True  = Value{kind: KindBool, b: true}
	False = Value{kind: KindBool, b: false}
)

// Bool returns a bool Value.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Number returns a number Value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an array Value.
func Array(items []Value) Value { return Value{kind: KindArray, a: items} }

// Obj returns an object Value wrapping o. A nil o becomes an empty object.
func Obj(o *Object) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{kind: KindObject, o: o}
}

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is JSON null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean payload; false if v is not a bool.
func (v Value) Bool() bool { return v.b }

// Num returns the numeric payload; 0 if v is not a number.
func (v Value) Num() float64 { return v.n }

// Str returns the string payload; "" if v is not a string.
func (v Value) Str() string { return v.s }

// Items returns the array payload; nil if v is not an array.
func (v Value) Items() []Value { return v.a }

// Object returns the object payload; nil if v is not an object.
func (v Value) Object() *Object { return v.o }

// Equal reports whether v and other are deeply equal.
func Equal(v, other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		return v.s == other.s
	case KindArray:
		if len(v.a) != len(other.a) {
			return false
		}
		for i := range v.a {
			if !Equal(v.a[i], other.a[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if v.o.Len() != other.o.Len() {
			return false
		}
		for _, k := range v.o.Keys() {
			a, _ := v.o.Get(k)
			b, ok := other.o.Get(k)
			if !ok || !Equal(a, b) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep, independent copy of v.
func Clone(v Value) Value {
	switch v.kind {
	case KindArray:
		items := make([]Value, len(v.a))
		for i, it := range v.a {
			items[i] = Clone(it)
		}
		return Array(items)
	case KindObject:
		o := NewObject()
		for _, k := range v.o.Keys() {
			val, _ := v.o.Get(k)
			o.Set(k, Clone(val))
		}
		return Obj(o)
	default:
		return v
	}
}

// Decode parses raw JSON bytes into an order-preserving Value.
func Decode(raw []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if dec.More() {
		return Value{}, errors.New("jsonval: trailing data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			o := NewObject()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, _ := kt.(string)
				v, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				o.Set(key, v)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return Obj(o), nil
		case '[':
			var items []Value
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, v)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return Array(items), nil
		default:
			return Value{}, fmt.Errorf("jsonval: unexpected delimiter %v", t)
		}
	case nil:
		return Null, nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(f), nil
	case string:
		return String(t), nil
	default:
		return Value{}, fmt.Errorf("jsonval: unsupported token %T", tok)
	}
}

// Encode renders v as canonical JSON: compact separators, preserved object
// key order.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	encodeValue(&buf, v)
	return buf.Bytes()
}

func encodeValue(buf *bytes.Buffer, v Value) {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		b, _ := json.Marshal(v.n)
		buf.Write(b)
	case KindString:
		b, _ := json.Marshal(v.s)
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, it := range v.a {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeValue(buf, it)
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range v.o.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			val, _ := v.o.Get(k)
			encodeValue(buf, val)
		}
		buf.WriteByte('}')
	}
}

// SortedKeysDebug returns a sorted copy of an object's keys, used only for
// debug/trace pretty-printing where stable diffability matters more than
// insertion order.
func SortedKeysDebug(o *Object) []string {
	keys := append([]string(nil), o.Keys()...)
	sort.Strings(keys)
	return keys
}
