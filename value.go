// Copyright 2026 by Khonsu Labs. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package pot

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ValueKind identifies which case a Value holds.
type ValueKind uint8

const (
	// ValueNone represents the absence of a value.
	ValueNone ValueKind = iota
	// ValueUnit represents a value with no data.
	ValueUnit
	ValueBool
	ValueInteger
	ValueFloat
	ValueBytes
	ValueString
	ValueSequence
	ValueMappings
)

func (k ValueKind) String() string {
	switch k {
	case ValueNone:
		return "None"
	case ValueUnit:
		return "Unit"
	case ValueBool:
		return "Bool"
	case ValueInteger:
		return "Integer"
	case ValueFloat:
		return "Float"
	case ValueBytes:
		return "Bytes"
	case ValueString:
		return "String"
	case ValueSequence:
		return "Sequence"
	case ValueMappings:
		return "Mappings"
	}
	return "ValueKind(" + strconv.Itoa(int(k)) + ")"
}

// MapPair is one entry of a Mappings value.
type MapPair struct {
	Key   Value
	Value Value
}

// Value is a Pot value decoded without knowledge of the original
// structure. Any document can decode into a Value and any Value encodes
// back losslessly.
//
// The zero Value is None. A Value decoded from a byte slice may alias
// that slice in its Bytes payloads; Clone detaches it.
type Value struct {
	kind  ValueKind
	b     bool
	num   Integer
	f     Float
	data  []byte
	s     string
	seq   []Value
	pairs []MapPair
}

// NewValue converts any encodable Go value into a Value by running it
// through a temporary atom stream, giving a type-erased transform that
// preserves exactly the semantics the codec preserves.
func NewValue(value any) (Value, error) {
	if v, ok := value.(Value); ok {
		return v, nil
	}
	data, err := Marshal(value)
	if err != nil {
		return Value{}, err
	}
	var v Value
	if err := Unmarshal(data, &v); err != nil {
		return Value{}, err
	}
	return v, nil
}

// NewSequence returns a Sequence value of the given elements.
func NewSequence(values ...Value) Value {
	return Value{kind: ValueSequence, seq: values}
}

// NewMappings returns a Mappings value of the given pairs, preserving
// their order. Keys are not required to be unique.
func NewMappings(pairs ...MapPair) Value {
	return Value{kind: ValueMappings, pairs: pairs}
}

// As decodes the value into out by round-tripping through the stream,
// exactly as if out had been decoded from the bytes the value came from.
func (v Value) As(out any) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}
	return Unmarshal(data, out)
}

// Kind returns which case the value holds.
func (v Value) Kind() ValueKind { return v.kind }

// IsNone reports whether the value is None.
func (v Value) IsNone() bool { return v.kind == ValueNone }

// IsEmpty reports whether the contained value is considered empty. None
// is always empty; primitive values (including Unit) never are; byte,
// string, sequence, and mapping values are empty at length zero.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case ValueNone:
		return true
	case ValueBytes:
		return len(v.data) == 0
	case ValueString:
		return len(v.s) == 0
	case ValueSequence:
		return len(v.seq) == 0
	case ValueMappings:
		return len(v.pairs) == 0
	}
	return false
}

// AsBool coerces the value to a boolean: None is false, Unit is true,
// numbers are compared against zero, and everything else is true when
// non-empty.
func (v Value) AsBool() bool {
	switch v.kind {
	case ValueNone:
		return false
	case ValueUnit:
		return true
	case ValueBool:
		return v.b
	case ValueInteger:
		return !v.num.IsZero()
	case ValueFloat:
		return v.f != 0
	}
	return !v.IsEmpty()
}

// AsInteger returns the contained Integer, if the value holds one.
func (v Value) AsInteger() (Integer, bool) {
	return v.num, v.kind == ValueInteger
}

// AsFloat returns the contained Float, if the value holds one.
func (v Value) AsFloat() (Float, bool) {
	return v.f, v.kind == ValueFloat
}

// AsBytes returns the raw bytes of a Bytes or String value, nil
// otherwise.
func (v Value) AsBytes() []byte {
	switch v.kind {
	case ValueBytes:
		return v.data
	case ValueString:
		return []byte(v.s)
	}
	return nil
}

// AsString returns the value as a string: directly for String, and for
// Bytes when the payload is valid UTF-8.
func (v Value) AsString() (string, bool) {
	switch v.kind {
	case ValueString:
		return v.s, true
	case ValueBytes:
		if utf8.Valid(v.data) {
			return string(v.data), true
		}
	}
	return "", false
}

// Sequence returns the elements of a Sequence value, nil otherwise.
func (v Value) Sequence() []Value {
	if v.kind != ValueSequence {
		return nil
	}
	return v.seq
}

// Mappings returns the pairs of a Mappings value, nil otherwise.
func (v Value) Mappings() []MapPair {
	if v.kind != ValueMappings {
		return nil
	}
	return v.pairs
}

// Equal reports structural equality with two deliberate relaxations: a
// Bytes and a String compare equal when the bytes are UTF-8 equal to the
// string, mirroring the decoder's promotion, and Integer values compare
// numerically regardless of the signedness hint.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		if v.kind == ValueBytes && other.kind == ValueString {
			return utf8.Valid(v.data) && string(v.data) == other.s
		}
		if v.kind == ValueString && other.kind == ValueBytes {
			return utf8.Valid(other.data) && string(other.data) == v.s
		}
		return false
	}
	switch v.kind {
	case ValueNone, ValueUnit:
		return true
	case ValueBool:
		return v.b == other.b
	case ValueInteger:
		return v.num.Equal(other.num)
	case ValueFloat:
		return v.f == other.f
	case ValueBytes:
		return bytes.Equal(v.data, other.data)
	case ValueString:
		return v.s == other.s
	case ValueSequence:
		if len(v.seq) != len(other.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(other.seq[i]) {
				return false
			}
		}
		return true
	case ValueMappings:
		if len(v.pairs) != len(other.pairs) {
			return false
		}
		for i := range v.pairs {
			if !v.pairs[i].Key.Equal(other.pairs[i].Key) ||
				!v.pairs[i].Value.Equal(other.pairs[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy whose payloads no longer reference the
// buffer the value was decoded from.
func (v Value) Clone() Value {
	out := v
	switch v.kind {
	case ValueBytes:
		out.data = append([]byte(nil), v.data...)
	case ValueSequence:
		out.seq = make([]Value, len(v.seq))
		for i := range v.seq {
			out.seq[i] = v.seq[i].Clone()
		}
	case ValueMappings:
		out.pairs = make([]MapPair, len(v.pairs))
		for i := range v.pairs {
			out.pairs[i] = MapPair{
				Key:   v.pairs[i].Key.Clone(),
				Value: v.pairs[i].Value.Clone(),
			}
		}
	}
	return out
}

// String renders the value for humans.
func (v Value) String() string {
	var sb strings.Builder
	v.render(&sb)
	return sb.String()
}

func (v Value) render(sb *strings.Builder) {
	switch v.kind {
	case ValueNone:
		sb.WriteString("None")
	case ValueUnit:
		sb.WriteString("()")
	case ValueBool:
		if v.b {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case ValueInteger:
		sb.WriteString(v.num.String())
	case ValueFloat:
		sb.WriteString(v.f.String())
	case ValueBytes:
		sb.WriteString("0x")
		for i, b := range v.data {
			if i > 0 && i%4 == 0 {
				sb.WriteByte('_')
			}
			fmt.Fprintf(sb, "%02x", b)
		}
	case ValueString:
		sb.WriteString(v.s)
	case ValueSequence:
		sb.WriteByte('[')
		for i, elem := range v.seq {
			if i > 0 {
				sb.WriteString(", ")
			}
			elem.render(sb)
		}
		sb.WriteByte(']')
	case ValueMappings:
		sb.WriteByte('{')
		for i, pair := range v.pairs {
			if i > 0 {
				sb.WriteString(", ")
			}
			pair.Key.render(sb)
			sb.WriteString(": ")
			pair.Value.render(sb)
		}
		sb.WriteByte('}')
	}
}
