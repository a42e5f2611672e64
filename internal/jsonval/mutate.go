package jsonval

// The RJS interpreter needs a handful of in-place/near-in-place array
// mutations (vec.push, vec.remove, vec.removeAt) that a plain, immutable
// Decode/Encode round trip has no use for. They live here, alongside the
// rest of the value model, rather than in the interpreter package, since
// Value's fields are unexported.

// SetArrayIndex mutates the i'th element of an array value in place,
// through its shared backing array. It reports false if v is not an array
// or i is out of range.
func (v Value) SetArrayIndex(i int, item Value) bool {
	if v.kind != KindArray || i < 0 || i >= len(v.a) {
		return false
	}
	v.a[i] = item
	return true
}

// PushArray returns a new array value with item appended to v's elements.
// It reports false if v is not an array.
func PushArray(v Value, item Value) (Value, bool) {
	if v.kind != KindArray {
		return Value{}, false
	}
	items := make([]Value, len(v.a)+1)
	copy(items, v.a)
	items[len(v.a)] = item
	return Array(items), true
}

// RemoveAtArray returns the removed element and the resulting array with
// the element at index i removed. It reports false if v is not an array or
// i is out of range.
func RemoveAtArray(v Value, i int) (removed Value, rest Value, ok bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.a) {
		return Value{}, Value{}, false
	}
	removed = v.a[i]
	items := make([]Value, 0, len(v.a)-1)
	items = append(items, v.a[:i]...)
	items = append(items, v.a[i+1:]...)
	return removed, Array(items), true
}

// RemoveArrayByEqual removes the first element deeply equal to item,
// returning the resulting array and whether anything was removed. It
// reports ok=false if v is not an array.
func RemoveArrayByEqual(v Value, item Value) (rest Value, removed bool, ok bool) {
	if v.kind != KindArray {
		return Value{}, false, false
	}
	for i, el := range v.a {
		if Equal(el, item) {
			_, newArr, _ := RemoveAtArray(v, i)
			return newArr, true, true
		}
	}
	return v, false, true
}
