// Copyright 2026 by Khonsu Labs. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package pot

import (
	"io"
	"reflect"
)

// interner assigns small integer ids to identifier strings on the encode
// side. Ids are dense and assigned in first-use order.
type interner interface {
	// intern returns the id for name, introducing it when fresh is true.
	intern(name string) (id uint32, fresh bool)
}

// symbolTable resolves symbol ids on the decode side and records newly
// introduced symbols.
type symbolTable interface {
	// lookupSymbol returns the bytes of a previously introduced symbol.
	lookupSymbol(id uint64) ([]byte, bool)

	// pushSymbol introduces the next symbol. When borrowed is true the
	// bytes alias the decode source and may be retained as-is.
	pushSymbol(name []byte, borrowed bool)
}

// docInterner is the per-document encoder table.
type docInterner struct {
	ids map[string]uint32
}

func (t *docInterner) intern(name string) (uint32, bool) {
	if id, ok := t.ids[name]; ok {
		return id, false
	}
	if t.ids == nil {
		t.ids = make(map[string]uint32)
	}
	id := uint32(len(t.ids))
	t.ids[name] = id
	return id, true
}

// docSymbols is the per-document decoder table. In slice mode the entries
// alias the source buffer; in stream mode they are owned copies.
type docSymbols struct {
	entries [][]byte
}

func (t *docSymbols) lookupSymbol(id uint64) ([]byte, bool) {
	if id >= uint64(len(t.entries)) {
		return nil, false
	}
	return t.entries[id], true
}

func (t *docSymbols) pushSymbol(name []byte, borrowed bool) {
	if !borrowed {
		name = append([]byte(nil), name...)
	}
	t.entries = append(t.entries, name)
}

// SymbolMap is a symbol table that persists across documents. An encoder
// created from the map emits symbols the map already knows as bare
// references, and a decoder created from the same map resolves them; the
// two sides must be kept in lockstep or the receiver fails with an
// UnknownSymbolError. A SymbolMap never forgets a symbol.
//
// A SymbolMap is not safe for concurrent use; its holder mutates it
// exclusively.
type SymbolMap struct {
	names [][]byte
	ids   map[string]uint32
}

// NewSymbolMap returns a new, empty symbol map.
func NewSymbolMap() *SymbolMap {
	return &SymbolMap{ids: make(map[string]uint32)}
}

// Len returns the number of symbols in the map.
func (m *SymbolMap) Len() int { return len(m.names) }

// Insert adds name to the map, returning true if it had not previously
// been registered.
func (m *SymbolMap) Insert(name string) bool {
	_, fresh := m.intern(name)
	return fresh
}

// Symbol returns the symbol registered with the given id.
func (m *SymbolMap) Symbol(id uint64) (string, bool) {
	if id >= uint64(len(m.names)) {
		return "", false
	}
	return string(m.names[id]), true
}

// SymbolID returns the id registered for name.
func (m *SymbolMap) SymbolID(name string) (uint64, bool) {
	id, ok := m.ids[name]
	return uint64(id), ok
}

func (m *SymbolMap) intern(name string) (uint32, bool) {
	if id, ok := m.ids[name]; ok {
		return id, false
	}
	if m.ids == nil {
		m.ids = make(map[string]uint32)
	}
	id := uint32(len(m.names))
	m.names = append(m.names, []byte(name))
	m.ids[name] = id
	return id, true
}

func (m *SymbolMap) lookupSymbol(id uint64) ([]byte, bool) {
	if id >= uint64(len(m.names)) {
		return nil, false
	}
	return m.names[id], true
}

func (m *SymbolMap) pushSymbol(name []byte, _ bool) {
	m.intern(string(name))
}

// Populate walks value the way the encoder would and registers every
// struct field name it would emit, without producing any output. It
// returns the number of symbols added. Pre-sharing a populated map keeps
// later payloads free of symbol payload bytes.
func (m *SymbolMap) Populate(value any) (int, error) {
	before := len(m.names)
	if err := m.populate(reflect.ValueOf(value), make(map[reflect.Type]bool)); err != nil {
		return 0, err
	}
	return len(m.names) - before, nil
}

func (m *SymbolMap) populate(rv reflect.Value, seen map[reflect.Type]bool) error {
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			// A nil pointer still tells us the field names underneath.
			if rv.Kind() == reflect.Pointer {
				return m.populateType(rv.Type().Elem(), seen)
			}
			return nil
		}
		return m.populate(rv.Elem(), seen)
	case reflect.Struct:
		return m.populateType(rv.Type(), seen)
	case reflect.Slice, reflect.Array:
		return m.populateType(rv.Type().Elem(), seen)
	case reflect.Map:
		if err := m.populateType(rv.Type().Key(), seen); err != nil {
			return err
		}
		return m.populateType(rv.Type().Elem(), seen)
	}
	return nil
}

func (m *SymbolMap) populateType(t reflect.Type, seen map[reflect.Type]bool) error {
	if seen[t] {
		return nil
	}
	seen[t] = true
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array:
		return m.populateType(t.Elem(), seen)
	case reflect.Map:
		if err := m.populateType(t.Key(), seen); err != nil {
			return err
		}
		return m.populateType(t.Elem(), seen)
	case reflect.Struct:
		if t == valueType {
			return nil
		}
		for _, field := range cachedFields(t) {
			m.intern(field.name)
			if err := m.populateType(field.typ, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// MarshalBinary snapshots the map as a Pot document containing the
// symbols as a sequence of strings, in id order.
func (m *SymbolMap) MarshalBinary() ([]byte, error) {
	buf := appendHeader(nil, currentVersion)
	buf = appendAtomHeader(buf, KindSequence, uint64(len(m.names)))
	for _, name := range m.names {
		buf = appendAtomHeader(buf, KindBytes, uint64(len(name)))
		buf = append(buf, name...)
	}
	return buf, nil
}

// UnmarshalBinary restores a snapshot produced by MarshalBinary,
// replacing the map's contents.
func (m *SymbolMap) UnmarshalBinary(data []byte) error {
	var names []string
	if err := Unmarshal(data, &names); err != nil {
		return err
	}
	m.names = m.names[:0]
	m.ids = make(map[string]uint32, len(names))
	for _, name := range names {
		m.intern(name)
	}
	return nil
}

// Marshal encodes value into a new document, persisting any new symbols
// into the map. Symbols the map already knows are emitted as references
// with no payload.
func (m *SymbolMap) Marshal(value any) ([]byte, error) {
	return Config{}.marshal(value, m)
}

// Unmarshal decodes one document from data using (and extending) the
// map. Unlike the package-level Unmarshal, trailing bytes are not an
// error: persistent maps exist to consume batches of concatenated
// documents.
func (m *SymbolMap) Unmarshal(data []byte, out any) error {
	return Config{}.unmarshalSlice(data, out, m, false)
}

// NewEncoder returns an Encoder writing documents to w over this map.
func (m *SymbolMap) NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, symbols: m}
}

// NewDecoder returns a Decoder reading documents from r over this map.
func (m *SymbolMap) NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: newStreamReader(r), symbols: m}
}
