// Copyright 2026 by Khonsu Labs. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package pot

import (
	"reflect"
	"strings"
	"sync"
)

var (
	valueType   = reflect.TypeOf(Value{})
	integerType = reflect.TypeOf(Integer{})
	floatType   = reflect.TypeOf(Float(0))
)

// encodeState walks a Go value and appends its atoms to buf. Struct
// field names pass through the interner so each name's bytes appear at
// most once per table lifetime.
type encodeState struct {
	buf     []byte
	symbols interner
}

func (e *encodeState) writeSymbol(name string) {
	id, fresh := e.symbols.intern(name)
	if fresh {
		e.buf = appendAtomHeader(e.buf, KindSymbol, uint64(len(name))<<1)
		e.buf = append(e.buf, name...)
	} else {
		e.buf = appendAtomHeader(e.buf, KindSymbol, uint64(id)<<1|1)
	}
}

func (e *encodeState) writeSpecial(s Special) {
	e.buf = appendAtomHeader(e.buf, KindSpecial, uint64(s))
}

func (e *encodeState) marshal(rv reflect.Value) error {
	if !rv.IsValid() {
		e.writeSpecial(SpecialNone)
		return nil
	}

	switch rv.Type() {
	case valueType:
		return e.marshalValue(rv.Interface().(Value))
	case integerType:
		i := rv.Interface().(Integer)
		if i.signed {
			e.buf = appendIntAtom(e.buf, int64(i.bits))
		} else {
			e.buf = appendUintAtom(e.buf, i.bits)
		}
		return nil
	case floatType:
		e.buf = appendFloatAtom(e.buf, float64(rv.Interface().(Float)))
		return nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			e.writeSpecial(SpecialTrue)
		} else {
			e.writeSpecial(SpecialFalse)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf = appendIntAtom(e.buf, rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.buf = appendUintAtom(e.buf, rv.Uint())
	case reflect.Float32:
		e.buf = appendFloat32Atom(e.buf, float32(rv.Float()))
	case reflect.Float64:
		e.buf = appendFloatAtom(e.buf, rv.Float())
	case reflect.String:
		s := rv.String()
		e.buf = appendAtomHeader(e.buf, KindBytes, uint64(len(s)))
		e.buf = append(e.buf, s...)
	case reflect.Slice:
		if rv.IsNil() {
			e.writeSpecial(SpecialNone)
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := rv.Bytes()
			e.buf = appendAtomHeader(e.buf, KindBytes, uint64(len(b)))
			e.buf = append(e.buf, b...)
			return nil
		}
		return e.marshalSequence(rv)
	case reflect.Array:
		return e.marshalSequence(rv)
	case reflect.Map:
		if rv.IsNil() {
			e.writeSpecial(SpecialNone)
			return nil
		}
		e.buf = appendAtomHeader(e.buf, KindMap, uint64(rv.Len()))
		iter := rv.MapRange()
		for iter.Next() {
			if err := e.marshal(iter.Key()); err != nil {
				return err
			}
			if err := e.marshal(iter.Value()); err != nil {
				return err
			}
		}
	case reflect.Struct:
		return e.marshalStruct(rv)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			e.writeSpecial(SpecialNone)
			return nil
		}
		return e.marshal(rv.Elem())
	case reflect.Func:
		return e.marshalFunc(rv)
	default:
		return &UnsupportedTypeError{Type: rv.Type()}
	}
	return nil
}

func (e *encodeState) marshalSequence(rv reflect.Value) error {
	n := rv.Len()
	e.buf = appendAtomHeader(e.buf, KindSequence, uint64(n))
	for i := 0; i < n; i++ {
		if err := e.marshal(rv.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (e *encodeState) marshalStruct(rv reflect.Value) error {
	t := rv.Type()
	if t.NumField() == 0 {
		e.writeSpecial(SpecialUnit)
		return nil
	}
	fields := cachedFields(t)
	type member struct {
		name string
		v    reflect.Value
	}
	emit := make([]member, 0, len(fields))
	for _, f := range fields {
		fv := fieldByIndex(rv, f.index)
		if !fv.IsValid() {
			// A nil anonymous pointer on the path; the field is absent.
			continue
		}
		if f.omitEmpty && isEmptyValue(fv) {
			continue
		}
		emit = append(emit, member{name: f.name, v: fv})
	}
	e.buf = appendAtomHeader(e.buf, KindMap, uint64(len(emit)))
	for _, m := range emit {
		e.writeSymbol(m.name)
		if err := e.marshal(m.v); err != nil {
			return err
		}
	}
	return nil
}

// marshalFunc encodes iterator functions. A pair iterator (iter.Seq2)
// is the one host shape with no length known up front; it uses the
// DynamicMap framing. A single-value iterator has no dynamic encoding.
func (e *encodeState) marshalFunc(rv reflect.Value) error {
	t := rv.Type()
	if rv.IsNil() {
		e.writeSpecial(SpecialNone)
		return nil
	}
	switch {
	case isSeq2Func(t):
		e.writeSpecial(SpecialDynamicMap)
		var walkErr error
		yield := reflect.MakeFunc(t.In(0), func(args []reflect.Value) []reflect.Value {
			if walkErr == nil {
				walkErr = e.marshal(args[0])
			}
			if walkErr == nil {
				walkErr = e.marshal(args[1])
			}
			return []reflect.Value{reflect.ValueOf(walkErr == nil)}
		})
		rv.Call([]reflect.Value{yield})
		if walkErr != nil {
			return walkErr
		}
		e.writeSpecial(SpecialDynamicEnd)
		return nil
	case isSeqFunc(t):
		return ErrSequenceSizeMustBeKnown
	}
	return &UnsupportedTypeError{Type: t}
}

func (e *encodeState) marshalValue(v Value) error {
	switch v.kind {
	case ValueNone:
		e.writeSpecial(SpecialNone)
	case ValueUnit:
		e.writeSpecial(SpecialUnit)
	case ValueBool:
		if v.b {
			e.writeSpecial(SpecialTrue)
		} else {
			e.writeSpecial(SpecialFalse)
		}
	case ValueInteger:
		if v.num.signed {
			e.buf = appendIntAtom(e.buf, int64(v.num.bits))
		} else {
			e.buf = appendUintAtom(e.buf, v.num.bits)
		}
	case ValueFloat:
		e.buf = appendFloatAtom(e.buf, float64(v.f))
	case ValueBytes:
		e.buf = appendAtomHeader(e.buf, KindBytes, uint64(len(v.data)))
		e.buf = append(e.buf, v.data...)
	case ValueString:
		e.buf = appendAtomHeader(e.buf, KindBytes, uint64(len(v.s)))
		e.buf = append(e.buf, v.s...)
	case ValueSequence:
		e.buf = appendAtomHeader(e.buf, KindSequence, uint64(len(v.seq)))
		for _, elem := range v.seq {
			if err := e.marshalValue(elem); err != nil {
				return err
			}
		}
	case ValueMappings:
		e.buf = appendAtomHeader(e.buf, KindMap, uint64(len(v.pairs)))
		for _, pair := range v.pairs {
			if err := e.marshalValue(pair.Key); err != nil {
				return err
			}
			if err := e.marshalValue(pair.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

func isSeq2Func(t reflect.Type) bool {
	if t.NumIn() != 1 || t.NumOut() != 0 {
		return false
	}
	y := t.In(0)
	return y.Kind() == reflect.Func && y.NumIn() == 2 && y.NumOut() == 1 &&
		y.Out(0).Kind() == reflect.Bool
}

func isSeqFunc(t reflect.Type) bool {
	if t.NumIn() != 1 || t.NumOut() != 0 {
		return false
	}
	y := t.In(0)
	return y.Kind() == reflect.Func && y.NumIn() == 1 && y.NumOut() == 1 &&
		y.Out(0).Kind() == reflect.Bool
}

// structField describes one member the encoder emits for a struct type.
type structField struct {
	name      string
	index     []int
	typ       reflect.Type
	omitEmpty bool
}

var fieldCache sync.Map // reflect.Type -> []structField

func cachedFields(t reflect.Type) []structField {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]structField)
	}
	fields := typeFields(t, nil, make(map[reflect.Type]bool))
	// Flattening can surface the same name twice; the shallowest (first
	// declared) wins, matching embedded-field promotion.
	depth := make(map[string]int, len(fields))
	for _, f := range fields {
		if d, ok := depth[f.name]; !ok || len(f.index) < d {
			depth[f.name] = len(f.index)
		}
	}
	seen := make(map[string]bool, len(fields))
	kept := fields[:0]
	for _, f := range fields {
		if seen[f.name] || len(f.index) != depth[f.name] {
			continue
		}
		seen[f.name] = true
		kept = append(kept, f)
	}
	cached, _ := fieldCache.LoadOrStore(t, kept)
	return cached.([]structField)
}

func typeFields(t reflect.Type, prefix []int, visiting map[reflect.Type]bool) []structField {
	if visiting[t] {
		return nil
	}
	visiting[t] = true
	defer delete(visiting, t)

	var fields []structField
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("pot")
		if tag == "" {
			tag = sf.Tag.Get("json")
		}
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		index := append(append([]int(nil), prefix...), i)

		if sf.Anonymous && name == "" {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				// Embedded structs flatten into the enclosing map.
				fields = append(fields, typeFields(ft, index, visiting)...)
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		fields = append(fields, structField{
			name:      name,
			index:     index,
			typ:       sf.Type,
			omitEmpty: tagHasOption(opts, "omitempty"),
		})
	}
	return fields
}

func tagHasOption(opts, option string) bool {
	for opts != "" {
		var next string
		next, opts, _ = strings.Cut(opts, ",")
		if next == option {
			return true
		}
	}
	return false
}

// fieldByIndex walks an index path, returning an invalid Value when a
// nil anonymous pointer interrupts it.
func fieldByIndex(rv reflect.Value, index []int) reflect.Value {
	for _, i := range index {
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return reflect.Value{}
			}
			rv = rv.Elem()
		}
		rv = rv.Field(i)
	}
	return rv
}

func isEmptyValue(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	case reflect.String:
		return rv.Len() == 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
