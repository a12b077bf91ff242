// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package ljson

import "testing"

func TestParseObjectPreservesOrder(t *testing.T) {
	v, err := Parse([]byte(`{"2":"b","0":"a","1":"c"}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	obj, err := v.Object()
	if err != nil {
		t.Fatalf("Object failed: %v", err)
	}
	if obj.Len() != 3 {
		t.Fatalf("expected 3 members, got %d", obj.Len())
	}

	wantKeys := []string{"2", "0", "1"}
	wantVals := []string{"b", "a", "c"}
	for i, wantKey := range wantKeys {
		m, ok := obj.Child(i)
		if !ok {
			t.Fatalf("Child(%d) missing", i)
		}
		if m.Key != wantKey {
			t.Fatalf("Child(%d).Key = %q, want %q", i, m.Key, wantKey)
		}
		s, err := m.Value.String()
		if err != nil {
			t.Fatalf("Child(%d).Value.String() failed: %v", i, err)
		}
		if s != wantVals[i] {
			t.Fatalf("Child(%d).Value = %q, want %q", i, s, wantVals[i])
		}
	}
}

func TestObjectGetByKey(t *testing.T) {
	v, err := Parse([]byte(`{"a":1,"b":2}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	obj, _ := v.Object()

	val, ok := obj.Get("b")
	if !ok {
		t.Fatal("Get(b) not found")
	}
	n, err := val.Int64()
	if err != nil {
		t.Fatalf("Int64 failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("Get(b) = %d, want 2", n)
	}

	if _, ok := obj.Get("missing"); ok {
		t.Fatal("Get(missing) should not be found")
	}
}

func TestUint64AcceptsStringAndNumber(t *testing.T) {
	v, err := Parse([]byte(`["5", 6]`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	arr, err := v.Array()
	if err != nil {
		t.Fatalf("Array failed: %v", err)
	}
	if arr.Len() != 2 {
		t.Fatalf("expected 2 elements, got %d", arr.Len())
	}

	str, _ := arr.Child(0)
	n, err := str.Uint64()
	if err != nil {
		t.Fatalf("Uint64 on string failed: %v", err)
	}
	if n != 5 {
		t.Fatalf("Uint64(string) = %d, want 5", n)
	}

	num, _ := arr.Child(1)
	n, err = num.Uint64()
	if err != nil {
		t.Fatalf("Uint64 on number failed: %v", err)
	}
	if n != 6 {
		t.Fatalf("Uint64(number) = %d, want 6", n)
	}
}

func TestValueKindMismatchErrors(t *testing.T) {
	v, err := Parse([]byte(`"hello"`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, err := v.Int64(); err == nil {
		t.Fatal("Int64 on a string value should fail")
	}
	if _, err := v.Object(); err == nil {
		t.Fatal("Object on a string value should fail")
	}
	if _, err := v.Array(); err == nil {
		t.Fatal("Array on a string value should fail")
	}
}

func TestNestedObjectsAndArrays(t *testing.T) {
	v, err := Parse([]byte(`{"keyslots":{"0":{"tags":["x","y"]}}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	root, _ := v.Object()
	keyslots, err := GetObject(root, "keyslots")
	if err != nil {
		t.Fatalf("GetObject(keyslots) failed: %v", err)
	}
	m, ok := keyslots.Child(0)
	if !ok {
		t.Fatal("keyslots.Child(0) missing")
	}
	if m.Key != "0" {
		t.Fatalf("keyslots.Child(0).Key = %q, want 0", m.Key)
	}
	obj, err := m.Value.Object()
	if err != nil {
		t.Fatalf("Object failed: %v", err)
	}
	tagsVal, ok := obj.Get("tags")
	if !ok {
		t.Fatal("tags missing")
	}
	tags, err := tagsVal.Array()
	if err != nil {
		t.Fatalf("Array failed: %v", err)
	}
	if tags.Len() != 2 {
		t.Fatalf("tags.Len() = %d, want 2", tags.Len())
	}
}

func TestGetHelpersMissingField(t *testing.T) {
	v, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	obj, _ := v.Object()

	if _, err := GetString(obj, "missing"); err == nil {
		t.Fatal("GetString(missing) should fail")
	}
	if _, err := GetInt64(obj, "missing"); err == nil {
		t.Fatal("GetInt64(missing) should fail")
	}
	if _, err := GetUint64(obj, "missing"); err == nil {
		t.Fatal("GetUint64(missing) should fail")
	}
	if _, err := GetObject(obj, "missing"); err == nil {
		t.Fatal("GetObject(missing) should fail")
	}
}

func TestChildOutOfRange(t *testing.T) {
	v, err := Parse([]byte(`{"0":"a"}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	obj, _ := v.Object()
	if _, ok := obj.Child(5); ok {
		t.Fatal("Child(5) should be out of range")
	}
	if _, ok := obj.Child(-1); ok {
		t.Fatal("Child(-1) should be out of range")
	}
}

func TestNilObjectAndArray(t *testing.T) {
	var obj *Object
	if obj.Len() != 0 {
		t.Fatalf("nil Object.Len() = %d, want 0", obj.Len())
	}
	if _, ok := obj.Child(0); ok {
		t.Fatal("nil Object.Child(0) should not be found")
	}
	if _, ok := obj.Get("x"); ok {
		t.Fatal("nil Object.Get(x) should not be found")
	}

	var arr *Array
	if arr.Len() != 0 {
		t.Fatalf("nil Array.Len() = %d, want 0", arr.Len())
	}
	if _, ok := arr.Child(0); ok {
		t.Fatal("nil Array.Child(0) should not be found")
	}
}

func TestParseInvalidJSON(t *testing.T) {
	if _, err := Parse([]byte(`{invalid`)); err == nil {
		t.Fatal("expected parse error on malformed JSON")
	}
}
