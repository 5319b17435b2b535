// Copyright 2026 by Khonsu Labs. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package pot

import (
	"errors"
	"math"
	"reflect"
	"sync"
	"unicode/utf8"
)

// maxDepth bounds container nesting during decode, a guard against
// stack exhaustion from hostile inputs independent of the allocation
// budget.
const maxDepth = 200

var errMaxDepth = errors.New("pot: maximum depth exceeded")

// decodeState reads one document. Every byte the decoder would allocate
// is charged against budget before the allocation happens; exhausting it
// is terminal for the document.
type decodeState struct {
	r       reader
	symbols symbolTable
	scratch []byte
	budget  uint64
	depth   int
	peeked  []atom
}

func (d *decodeState) charge(n uint64) error {
	if n > d.budget {
		return ErrTooManyBytes
	}
	d.budget -= n
	return nil
}

// readDocHeader validates the 4-byte magic-and-version prefix.
func (d *decodeState) readDocHeader() error {
	var h [4]byte
	if err := d.r.readFixed(h[:]); err != nil {
		return wrapReadError(err)
	}
	if h[0] != 'P' || h[1] != 'o' || h[2] != 't' {
		return ErrNotAPot
	}
	if h[3] > currentVersion {
		return ErrIncompatibleVersion
	}
	return nil
}

func (d *decodeState) readAtom() (atom, error) {
	if len(d.peeked) > 0 {
		a := d.peeked[0]
		d.peeked = d.peeked[1:]
		return a, nil
	}
	return d.parseAtom()
}

func (d *decodeState) peekAtom() (atom, error) {
	if len(d.peeked) == 0 {
		a, err := d.parseAtom()
		if err != nil {
			return atom{}, err
		}
		d.peeked = append(d.peeked, a)
	}
	return d.peeked[0], nil
}

func (d *decodeState) parseAtom() (atom, error) {
	kind, arg, err := readAtomHeader(d.r)
	if err != nil {
		return atom{}, err
	}
	a := atom{kind: kind, arg: arg}
	switch kind {
	case KindSpecial:
		if arg >= uint64(specialCount) {
			return atom{}, InvalidKindError{Kind: uint8(arg)}
		}
		a.special = Special(arg)
	case KindInt, KindUInt:
		n := arg + 1
		if !validIntegerWidth(n) {
			return atom{}, ErrInvalidAtomHeader
		}
		if err := d.charge(n); err != nil {
			return atom{}, err
		}
		var tmp [16]byte
		if err := d.r.readFixed(tmp[:n]); err != nil {
			return atom{}, wrapReadError(err)
		}
		if a.number, err = decodeIntegerPayload(kind, tmp[:n]); err != nil {
			return atom{}, err
		}
	case KindFloat:
		n := arg + 1
		if n != 4 && n != 8 {
			return atom{}, ErrInvalidAtomHeader
		}
		if err := d.charge(n); err != nil {
			return atom{}, err
		}
		var tmp [8]byte
		if err := d.r.readFixed(tmp[:n]); err != nil {
			return atom{}, wrapReadError(err)
		}
		if a.float, err = decodeFloatPayload(tmp[:n]); err != nil {
			return atom{}, err
		}
	case KindBytes:
		data, borrowed, err := d.readPayload(arg)
		if err != nil {
			return atom{}, err
		}
		a.bytes, a.borrowed = data, borrowed
	case KindSequence, KindMap, KindSymbol:
		// Children (or the symbol payload) are read separately.
	}
	return a, nil
}

// readPayload charges the budget for a length-prefixed payload, then
// reads it.
func (d *decodeState) readPayload(length uint64) ([]byte, bool, error) {
	if err := d.charge(length); err != nil {
		return nil, false, err
	}
	if length > math.MaxInt32 {
		// Larger payloads cannot be honest; the budget (when set) has
		// already rejected them.
		return nil, false, ErrUnexpectedEOF
	}
	data, borrowed, err := d.r.readBytes(int(length), &d.scratch)
	if err != nil {
		return nil, false, wrapReadError(err)
	}
	return data, borrowed, nil
}

// resolveSymbol consumes a symbol atom's payload (when it introduces a
// new symbol) and returns the identifier bytes.
func (d *decodeState) resolveSymbol(a atom) ([]byte, error) {
	if a.arg&1 != 0 {
		id := a.arg >> 1
		name, ok := d.symbols.lookupSymbol(id)
		if !ok {
			return nil, UnknownSymbolError{ID: id}
		}
		return name, nil
	}
	length := a.arg >> 1
	// Borrowed symbol views allocate nothing; only copies charge the
	// budget.
	if !d.r.borrows() {
		if err := d.charge(length); err != nil {
			return nil, err
		}
	}
	if length > math.MaxInt32 {
		return nil, ErrUnexpectedEOF
	}
	data, borrowed, err := d.r.readBytes(int(length), &d.scratch)
	if err != nil {
		return nil, wrapReadError(err)
	}
	if !utf8.Valid(data) {
		return nil, ErrInvalidUTF8
	}
	d.symbols.pushSymbol(data, borrowed)
	return data, nil
}

// retain returns payload bytes that are safe to hand to the caller.
// Borrowed views already alias the caller's input; scratch-backed bytes
// are copied because scratch is reused.
func (d *decodeState) retain(data []byte, borrowed bool) []byte {
	if borrowed {
		return data
	}
	return append(make([]byte, 0, len(data)), data...)
}

func (d *decodeState) enter() error {
	d.depth++
	if d.depth > maxDepth {
		return errMaxDepth
	}
	return nil
}

func (d *decodeState) leave() { d.depth-- }

// skipNext consumes and discards the next value, including everything a
// container transitively holds.
func (d *decodeState) skipNext() error {
	a, err := d.readAtom()
	if err != nil {
		return err
	}
	return d.skip(a)
}

func (d *decodeState) skip(a atom) error {
	if err := d.enter(); err != nil {
		return err
	}
	defer d.leave()
	switch a.kind {
	case KindSymbol:
		_, err := d.resolveSymbol(a)
		return err
	case KindSequence:
		for i := uint64(0); i < a.arg; i++ {
			if err := d.skipNext(); err != nil {
				return err
			}
		}
	case KindMap:
		for i := uint64(0); i < a.arg*2; i++ {
			if err := d.skipNext(); err != nil {
				return err
			}
		}
	case KindSpecial:
		switch a.special {
		case SpecialNamed:
			if err := d.skipNext(); err != nil {
				return err
			}
			return d.skipNext()
		case SpecialDynamicMap:
			for {
				next, err := d.peekAtom()
				if err != nil {
					return err
				}
				if next.kind == KindSpecial && next.special == SpecialDynamicEnd {
					_, err = d.readAtom()
					return err
				}
				if err := d.skipNext(); err != nil {
					return err
				}
				if err := d.skipNext(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// value decodes the next value into rv, which must be settable.
func (d *decodeState) value(rv reflect.Value) error {
	switch rv.Type() {
	case valueType:
		v, err := d.decodeValue()
		if err != nil {
			return err
		}
		rv.Set(reflect.ValueOf(v))
		return nil
	case integerType:
		a, err := d.readAtom()
		if err != nil {
			return err
		}
		switch {
		case a.kind == KindInt || a.kind == KindUInt:
			rv.Set(reflect.ValueOf(a.number))
		case a.isEmptySpecial():
			rv.Set(reflect.ValueOf(NewUint(0)))
		default:
			return UnexpectedKindError{Encountered: a.kind, Expected: KindInt}
		}
		return nil
	case floatType:
		a, err := d.readAtom()
		if err != nil {
			return err
		}
		switch {
		case a.kind == KindFloat:
			rv.Set(reflect.ValueOf(a.float))
		case a.kind == KindInt || a.kind == KindUInt:
			f, err := a.number.AsFloat64()
			if err != nil {
				return err
			}
			rv.Set(reflect.ValueOf(Float(f)))
		case a.isEmptySpecial():
			rv.Set(reflect.ValueOf(Float(0)))
		default:
			return UnexpectedKindError{Encountered: a.kind, Expected: KindFloat}
		}
		return nil
	}

	switch rv.Kind() {
	case reflect.Pointer:
		a, err := d.peekAtom()
		if err != nil {
			return err
		}
		if a.isEmptySpecial() {
			if _, err := d.readAtom(); err != nil {
				return err
			}
			rv.SetZero()
			return nil
		}
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return d.value(rv.Elem())
	case reflect.Interface:
		if rv.NumMethod() != 0 {
			return &UnsupportedTypeError{Type: rv.Type()}
		}
		v, err := d.decodeValue()
		if err != nil {
			return err
		}
		rv.Set(reflect.ValueOf(v))
		return nil
	}

	a, err := d.readAtom()
	if err != nil {
		return err
	}
	return d.assign(a, rv)
}

func (d *decodeState) assign(a atom, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Bool:
		switch a.kind {
		case KindSpecial:
			switch a.special {
			case SpecialTrue:
				rv.SetBool(true)
			case SpecialFalse, SpecialNone, SpecialUnit:
				rv.SetBool(false)
			default:
				return UnexpectedKindError{Encountered: a.kind, Expected: KindSpecial}
			}
		case KindInt, KindUInt:
			rv.SetBool(!a.number.IsZero())
		default:
			return UnexpectedKindError{Encountered: a.kind, Expected: KindSpecial}
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch {
		case a.kind == KindInt || a.kind == KindUInt:
			v, err := a.number.AsInt64()
			if err != nil {
				return err
			}
			if rv.OverflowInt(v) {
				return ErrImpreciseCastWouldLoseData
			}
			rv.SetInt(v)
		case a.isEmptySpecial():
			rv.SetInt(0)
		default:
			return UnexpectedKindError{Encountered: a.kind, Expected: KindInt}
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		switch {
		case a.kind == KindInt || a.kind == KindUInt:
			v, err := a.number.AsUint64()
			if err != nil {
				return err
			}
			if rv.OverflowUint(v) {
				return ErrImpreciseCastWouldLoseData
			}
			rv.SetUint(v)
		case a.isEmptySpecial():
			rv.SetUint(0)
		default:
			return UnexpectedKindError{Encountered: a.kind, Expected: KindUInt}
		}

	case reflect.Float32, reflect.Float64:
		var f float64
		switch {
		case a.kind == KindFloat:
			f = float64(a.float)
		case a.kind == KindInt || a.kind == KindUInt:
			var err error
			if f, err = a.number.AsFloat64(); err != nil {
				return err
			}
		case a.isEmptySpecial():
		default:
			return UnexpectedKindError{Encountered: a.kind, Expected: KindFloat}
		}
		if rv.Kind() == reflect.Float32 && float64(float32(f)) != f {
			return ErrImpreciseCastWouldLoseData
		}
		rv.SetFloat(f)

	case reflect.String:
		switch a.kind {
		case KindBytes:
			if !utf8.Valid(a.bytes) {
				return ErrInvalidUTF8
			}
			rv.SetString(string(a.bytes))
		case KindSymbol:
			name, err := d.resolveSymbol(a)
			if err != nil {
				return err
			}
			rv.SetString(string(name))
		case KindSpecial:
			switch a.special {
			case SpecialNamed:
				// Skip the frame and decode the identifier that follows.
				return d.value(rv)
			case SpecialNone, SpecialUnit:
				rv.SetString("")
			default:
				return UnexpectedKindError{Encountered: a.kind, Expected: KindBytes}
			}
		default:
			return UnexpectedKindError{Encountered: a.kind, Expected: KindBytes}
		}

	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return d.assignBytes(a, rv)
		}
		return d.assignSlice(a, rv)

	case reflect.Array:
		return d.assignArray(a, rv)

	case reflect.Map:
		return d.assignMap(a, rv)

	case reflect.Struct:
		return d.assignStruct(a, rv)

	default:
		return &UnsupportedTypeError{Type: rv.Type()}
	}
	return nil
}

func (d *decodeState) assignBytes(a atom, rv reflect.Value) error {
	switch {
	case a.kind == KindBytes:
		rv.SetBytes(d.retain(a.bytes, a.borrowed))
	case a.kind == KindSequence:
		// Byte data that was written element-wise.
		buf := make([]byte, 0, minCount(a.arg))
		for i := uint64(0); i < a.arg; i++ {
			elem, err := d.readAtom()
			if err != nil {
				return err
			}
			if elem.kind != KindInt && elem.kind != KindUInt {
				return UnexpectedKindError{Encountered: elem.kind, Expected: KindUInt}
			}
			b, err := elem.number.AsUint8()
			if err != nil {
				return err
			}
			buf = append(buf, b)
		}
		rv.SetBytes(buf)
	case a.isEmptySpecial():
		rv.SetBytes([]byte{})
	default:
		return UnexpectedKindError{Encountered: a.kind, Expected: KindBytes}
	}
	return nil
}

func (d *decodeState) assignSlice(a atom, rv reflect.Value) error {
	switch {
	case a.kind == KindSequence:
		if err := d.enter(); err != nil {
			return err
		}
		defer d.leave()
		elemType := rv.Type().Elem()
		s := reflect.MakeSlice(rv.Type(), 0, minCount(a.arg))
		for i := uint64(0); i < a.arg; i++ {
			elem := reflect.New(elemType).Elem()
			if err := d.value(elem); err != nil {
				return err
			}
			s = reflect.Append(s, elem)
		}
		rv.Set(s)
	case a.isEmptySpecial():
		rv.Set(reflect.MakeSlice(rv.Type(), 0, 0))
	default:
		return UnexpectedKindError{Encountered: a.kind, Expected: KindSequence}
	}
	return nil
}

func (d *decodeState) assignArray(a atom, rv reflect.Value) error {
	switch {
	case a.kind == KindSequence:
		if err := d.enter(); err != nil {
			return err
		}
		defer d.leave()
		n := int(a.arg)
		for i := 0; i < n; i++ {
			if i < rv.Len() {
				if err := d.value(rv.Index(i)); err != nil {
					return err
				}
			} else if err := d.skipNext(); err != nil {
				return err
			}
		}
		for i := n; i < rv.Len(); i++ {
			rv.Index(i).SetZero()
		}
	case a.isEmptySpecial():
		rv.SetZero()
	default:
		return UnexpectedKindError{Encountered: a.kind, Expected: KindSequence}
	}
	return nil
}

func (d *decodeState) assignMap(a atom, rv reflect.Value) error {
	dynamic := a.kind == KindSpecial && a.special == SpecialDynamicMap
	switch {
	case a.kind == KindMap || dynamic:
		if err := d.enter(); err != nil {
			return err
		}
		defer d.leave()
		t := rv.Type()
		m := reflect.MakeMapWithSize(t, minCount(a.arg))
		keyType, elemType := t.Key(), t.Elem()
		for i := uint64(0); ; i++ {
			if dynamic {
				next, err := d.peekAtom()
				if err != nil {
					return err
				}
				if next.kind == KindSpecial && next.special == SpecialDynamicEnd {
					if _, err := d.readAtom(); err != nil {
						return err
					}
					break
				}
			} else if i >= a.arg {
				break
			}
			key := reflect.New(keyType).Elem()
			if err := d.value(key); err != nil {
				return err
			}
			elem := reflect.New(elemType).Elem()
			if err := d.value(elem); err != nil {
				return err
			}
			m.SetMapIndex(key, elem)
		}
		rv.Set(m)
	case a.isEmptySpecial():
		rv.Set(reflect.MakeMap(rv.Type()))
	default:
		return UnexpectedKindError{Encountered: a.kind, Expected: KindMap}
	}
	return nil
}

func (d *decodeState) assignStruct(a atom, rv reflect.Value) error {
	if rv.NumField() == 0 {
		// The empty struct is unit: whatever the stream holds collapses
		// into it, mirroring the tolerance of unit where a value was
		// expected.
		return d.skip(a)
	}
	dynamic := a.kind == KindSpecial && a.special == SpecialDynamicMap
	switch {
	case a.kind == KindMap || dynamic:
		if err := d.enter(); err != nil {
			return err
		}
		defer d.leave()
		fields := cachedFieldMap(rv.Type())
		for i := uint64(0); ; i++ {
			if dynamic {
				next, err := d.peekAtom()
				if err != nil {
					return err
				}
				if next.kind == KindSpecial && next.special == SpecialDynamicEnd {
					if _, err := d.readAtom(); err != nil {
						return err
					}
					break
				}
			} else if i >= a.arg {
				break
			}
			name, err := d.identifier()
			if err != nil {
				return err
			}
			if f, ok := fields[string(name)]; ok {
				fv, err := fieldByIndexAlloc(rv, f.index)
				if err != nil {
					return err
				}
				if err := d.value(fv); err != nil {
					return err
				}
			} else if err := d.skipNext(); err != nil {
				return err
			}
		}
	case a.isEmptySpecial():
		// Schema evolution: a field that used to be unit leaves the
		// struct at its zero value.
	default:
		return UnexpectedKindError{Encountered: a.kind, Expected: KindMap}
	}
	return nil
}

// identifier reads a map key that names a struct field: a symbol or a
// plain byte string.
func (d *decodeState) identifier() ([]byte, error) {
	a, err := d.readAtom()
	if err != nil {
		return nil, err
	}
	switch a.kind {
	case KindSymbol:
		return d.resolveSymbol(a)
	case KindBytes:
		if !utf8.Valid(a.bytes) {
			return nil, ErrInvalidUTF8
		}
		return a.bytes, nil
	}
	return nil, UnexpectedKindError{Encountered: a.kind, Expected: KindSymbol}
}

// decodeValue reconstructs the next value as a dynamic Value tree.
func (d *decodeState) decodeValue() (Value, error) {
	a, err := d.readAtom()
	if err != nil {
		return Value{}, err
	}
	switch a.kind {
	case KindSpecial:
		switch a.special {
		case SpecialNone:
			return Value{}, nil
		case SpecialUnit:
			return Value{kind: ValueUnit}, nil
		case SpecialTrue:
			return Value{kind: ValueBool, b: true}, nil
		case SpecialFalse:
			return Value{kind: ValueBool}, nil
		case SpecialNamed:
			// A tagged variant reads as a single-pair mapping.
			if err := d.enter(); err != nil {
				return Value{}, err
			}
			defer d.leave()
			name, err := d.decodeValue()
			if err != nil {
				return Value{}, err
			}
			payload, err := d.decodeValue()
			if err != nil {
				return Value{}, err
			}
			return Value{kind: ValueMappings, pairs: []MapPair{{Key: name, Value: payload}}}, nil
		case SpecialDynamicMap:
			if err := d.enter(); err != nil {
				return Value{}, err
			}
			defer d.leave()
			var pairs []MapPair
			for {
				next, err := d.peekAtom()
				if err != nil {
					return Value{}, err
				}
				if next.kind == KindSpecial && next.special == SpecialDynamicEnd {
					if _, err := d.readAtom(); err != nil {
						return Value{}, err
					}
					return Value{kind: ValueMappings, pairs: pairs}, nil
				}
				key, err := d.decodeValue()
				if err != nil {
					return Value{}, err
				}
				val, err := d.decodeValue()
				if err != nil {
					return Value{}, err
				}
				pairs = append(pairs, MapPair{Key: key, Value: val})
			}
		default: // SpecialDynamicEnd
			return Value{}, ErrInvalidAtomHeader
		}
	case KindInt, KindUInt:
		return Value{kind: ValueInteger, num: a.number}, nil
	case KindFloat:
		return Value{kind: ValueFloat, f: a.float}, nil
	case KindBytes:
		if utf8.Valid(a.bytes) {
			return Value{kind: ValueString, s: string(a.bytes)}, nil
		}
		return Value{kind: ValueBytes, data: d.retain(a.bytes, a.borrowed)}, nil
	case KindSymbol:
		name, err := d.resolveSymbol(a)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: ValueString, s: string(name)}, nil
	case KindSequence:
		if err := d.enter(); err != nil {
			return Value{}, err
		}
		defer d.leave()
		seq := make([]Value, 0, minCount(a.arg))
		for i := uint64(0); i < a.arg; i++ {
			elem, err := d.decodeValue()
			if err != nil {
				return Value{}, err
			}
			seq = append(seq, elem)
		}
		return Value{kind: ValueSequence, seq: seq}, nil
	case KindMap:
		if err := d.enter(); err != nil {
			return Value{}, err
		}
		defer d.leave()
		pairs := make([]MapPair, 0, minCount(a.arg))
		for i := uint64(0); i < a.arg; i++ {
			key, err := d.decodeValue()
			if err != nil {
				return Value{}, err
			}
			val, err := d.decodeValue()
			if err != nil {
				return Value{}, err
			}
			pairs = append(pairs, MapPair{Key: key, Value: val})
		}
		return Value{kind: ValueMappings, pairs: pairs}, nil
	}
	return Value{}, InvalidKindError{Kind: uint8(a.kind)}
}

// minCount caps container preallocation so a hostile count cannot force
// a large reservation before any element has been read.
func minCount(n uint64) int {
	if n > 64 {
		return 64
	}
	return int(n)
}

var fieldMapCache sync.Map // reflect.Type -> map[string]structField

func cachedFieldMap(t reflect.Type) map[string]structField {
	if cached, ok := fieldMapCache.Load(t); ok {
		return cached.(map[string]structField)
	}
	fields := cachedFields(t)
	m := make(map[string]structField, len(fields))
	for _, f := range fields {
		m[f.name] = f
	}
	cached, _ := fieldMapCache.LoadOrStore(t, m)
	return cached.(map[string]structField)
}

// fieldByIndexAlloc walks an index path, allocating nil anonymous
// pointers along the way.
func fieldByIndexAlloc(rv reflect.Value, index []int) (reflect.Value, error) {
	for _, i := range index {
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				rv.Set(reflect.New(rv.Type().Elem()))
			}
			rv = rv.Elem()
		}
		rv = rv.Field(i)
	}
	return rv, nil
}
