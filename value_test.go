// Copyright 2026 by Khonsu Labs. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package pot

import (
	"bytes"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var valueComparer = cmp.Comparer(func(a, b Value) bool { return a.Equal(b) })

func intVal(v int64) Value     { return Value{kind: ValueInteger, num: NewInt(v)} }
func uintVal(v uint64) Value   { return Value{kind: ValueInteger, num: NewUint(v)} }
func floatVal(v float64) Value { return Value{kind: ValueFloat, f: Float(v)} }
func strVal(s string) Value    { return Value{kind: ValueString, s: s} }
func bytesVal(b []byte) Value  { return Value{kind: ValueBytes, data: b} }
func boolVal(b bool) Value     { return Value{kind: ValueBool, b: b} }
func unitVal() Value           { return Value{kind: ValueUnit} }

func roundTripValue(t *testing.T, v Value) {
	t.Helper()
	data, err := Marshal(v)
	require.NoError(t, err)
	var decoded Value
	require.NoError(t, Unmarshal(data, &decoded))
	if !v.Equal(decoded) {
		t.Fatalf("round trip mismatch: want %v, got %v", v, decoded)
	}
}

func TestValueRoundTrips(t *testing.T) {
	t.Parallel()
	roundTripValue(t, Value{})
	roundTripValue(t, unitVal())
	roundTripValue(t, boolVal(true))
	roundTripValue(t, boolVal(false))
	roundTripValue(t, intVal(math.MaxInt8))
	roundTripValue(t, intVal(math.MinInt64))
	roundTripValue(t, uintVal(math.MaxUint8))
	roundTripValue(t, uintVal(math.MaxUint64))
	roundTripValue(t, floatVal(math.Pi))
	roundTripValue(t, floatVal(float64(float32(math.Pi))))
	roundTripValue(t, strVal("hello"))
	roundTripValue(t, bytesVal([]byte{0xFE, 0xED, 0xD0, 0xD0}))
	roundTripValue(t, NewSequence(Value{}, unitVal(), intVal(-3)))
	roundTripValue(t, NewMappings(MapPair{Key: Value{}, Value: unitVal()}))
	roundTripValue(t, NewSequence(
		NewMappings(MapPair{Key: strVal("k"), Value: NewSequence(uintVal(1))}),
	))
}

func TestValueBytesPromotion(t *testing.T) {
	t.Parallel()
	// UTF-8 bytes come back as a string...
	data, err := Marshal(bytesVal([]byte("hello")))
	require.NoError(t, err)
	var decoded Value
	require.NoError(t, Unmarshal(data, &decoded))
	require.Equal(t, ValueString, decoded.Kind())
	// ...and still compare equal to what was encoded.
	require.True(t, decoded.Equal(bytesVal([]byte("hello"))))

	// Invalid UTF-8 stays bytes.
	data, err = Marshal(bytesVal([]byte{0xFE, 0xED}))
	require.NoError(t, err)
	require.NoError(t, Unmarshal(data, &decoded))
	require.Equal(t, ValueBytes, decoded.Kind())
}

func TestValueEquality(t *testing.T) {
	t.Parallel()
	require.True(t, bytesVal([]byte("hi")).Equal(strVal("hi")))
	require.True(t, strVal("hi").Equal(bytesVal([]byte("hi"))))
	require.False(t, bytesVal([]byte{0xFF}).Equal(strVal("\xff")))
	require.True(t, intVal(5).Equal(uintVal(5)))
	require.False(t, intVal(-5).Equal(uintVal(5)))
	require.False(t, unitVal().Equal(Value{}))
	require.True(t, Value{}.Equal(Value{}))
	require.False(t, floatVal(math.NaN()).Equal(floatVal(math.NaN())))
	require.True(t,
		NewSequence(intVal(1)).Equal(NewSequence(uintVal(1))))
	require.False(t,
		NewSequence(intVal(1)).Equal(NewSequence(intVal(1), intVal(2))))
}

func TestValueAccessors(t *testing.T) {
	t.Parallel()
	require.True(t, Value{}.IsNone())
	require.True(t, Value{}.IsEmpty())
	require.False(t, unitVal().IsEmpty())
	require.False(t, uintVal(0).IsEmpty())
	require.True(t, strVal("").IsEmpty())
	require.True(t, NewSequence().IsEmpty())
	require.False(t, NewSequence(Value{}).IsEmpty())

	require.False(t, Value{}.AsBool())
	require.True(t, unitVal().AsBool())
	require.False(t, uintVal(0).AsBool())
	require.True(t, intVal(-1).AsBool())
	require.True(t, strVal("x").AsBool())

	i, ok := intVal(3).AsInteger()
	require.True(t, ok)
	require.True(t, i.Equal(NewInt(3)))
	_, ok = strVal("3").AsInteger()
	require.False(t, ok)

	f, ok := floatVal(1.5).AsFloat()
	require.True(t, ok)
	require.Equal(t, Float(1.5), f)

	s, ok := bytesVal([]byte("ok")).AsString()
	require.True(t, ok)
	require.Equal(t, "ok", s)
	_, ok = bytesVal([]byte{0xFF}).AsString()
	require.False(t, ok)

	require.Equal(t, []byte("abc"), strVal("abc").AsBytes())
}

func TestValueDisplay(t *testing.T) {
	t.Parallel()
	cases := []struct {
		value Value
		want  string
	}{
		{Value{}, "None"},
		{unitVal(), "()"},
		{boolVal(true), "true"},
		{boolVal(false), "false"},
		{intVal(-42), "-42"},
		{floatVal(1.5), "1.5"},
		{strVal("hi"), "hi"},
		{bytesVal([]byte{0xde, 0xad, 0xbe, 0xef, 0x01}), "0xdeadbeef_01"},
		{NewSequence(intVal(1), strVal("two")), "[1, two]"},
		{NewMappings(MapPair{Key: strVal("k"), Value: uintVal(9)}), "{k: 9}"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.value.String())
	}
}

func TestNewValueAndAs(t *testing.T) {
	t.Parallel()
	v, err := NewValue(testUser{ID: 42, Name: "ecton"})
	require.NoError(t, err)
	require.Equal(t, ValueMappings, v.Kind())
	require.Len(t, v.Mappings(), 2)
	require.Equal(t, "{id: 42, name: ecton}", v.String())

	var decoded testUser
	require.NoError(t, v.As(&decoded))
	require.Equal(t, testUser{ID: 42, Name: "ecton"}, decoded)

	seq, err := NewValue([]string{"Hello", "World"})
	require.NoError(t, err)
	if diff := cmp.Diff(NewSequence(strVal("Hello"), strVal("World")), seq, valueComparer); diff != "" {
		t.Fatalf("unexpected value (-want +got):\n%s", diff)
	}

	// NewValue of a Value is the identity.
	same, err := NewValue(seq)
	require.NoError(t, err)
	require.True(t, same.Equal(seq))
}

func TestValueClone(t *testing.T) {
	t.Parallel()
	doc, err := Marshal(bytesVal([]byte{0xFE, 0xED}))
	require.NoError(t, err)
	var decoded Value
	require.NoError(t, Unmarshal(doc, &decoded))
	require.Equal(t, ValueBytes, decoded.Kind())

	clone := decoded.Clone()
	// The decoded value aliases the document; the clone must not.
	doc[len(doc)-1] = 0x00
	require.Equal(t, []byte{0xFE, 0x00}, decoded.AsBytes())
	require.Equal(t, []byte{0xFE, 0xED}, clone.AsBytes())
}

func TestNamedVariantDecodesAsMapping(t *testing.T) {
	t.Parallel()
	// A tagged variant: Named, then the symbol, then the payload.
	doc := appendHeader(nil, currentVersion)
	doc = appendAtomHeader(doc, KindSpecial, uint64(SpecialNamed))
	doc = appendAtomHeader(doc, KindSymbol, uint64(len("Tuple"))<<1)
	doc = append(doc, "Tuple"...)
	doc = appendUintAtom(doc, 0)

	var v Value
	require.NoError(t, Unmarshal(doc, &v))
	want := NewMappings(MapPair{Key: strVal("Tuple"), Value: uintVal(0)})
	require.True(t, v.Equal(want), "got %v", v)
}

func TestNamedVariantIntoString(t *testing.T) {
	t.Parallel()
	// Asking for a string across a Named frame skips the frame and
	// reads the identifier.
	doc := appendHeader(nil, currentVersion)
	doc = appendAtomHeader(doc, KindSpecial, uint64(SpecialNamed))
	doc = appendAtomHeader(doc, KindSymbol, uint64(len("Hello"))<<1)
	doc = append(doc, "Hello"...)
	doc = appendUintAtom(doc, 1)

	var s string
	err := Config{}.unmarshalSlice(doc, &s, nil, false)
	require.NoError(t, err)
	require.Equal(t, "Hello", s)
}

func TestDynamicEndWithoutMap(t *testing.T) {
	t.Parallel()
	doc := appendHeader(nil, currentVersion)
	doc = appendAtomHeader(doc, KindSpecial, uint64(SpecialDynamicEnd))
	var v Value
	require.Error(t, Unmarshal(doc, &v))
}

func TestValueThroughStream(t *testing.T) {
	t.Parallel()
	original := NewMappings(
		MapPair{Key: strVal("payload"), Value: bytesVal([]byte{1, 2, 3})},
	)
	data, err := Marshal(original)
	require.NoError(t, err)

	var first Value
	dec := NewDecoder(bytes.NewReader(data))
	require.NoError(t, dec.Decode(&first))
	require.True(t, first.Equal(original))
}
