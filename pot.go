// Copyright 2026 by Khonsu Labs. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package pot

import (
	"fmt"
	"io"
	"math"
	"reflect"
)

// Marshal encodes value as a single Pot document.
func Marshal(value any) ([]byte, error) {
	return Config{}.Marshal(value)
}

// Unmarshal decodes a single Pot document into out, which must be a
// non-nil pointer. Byte-slice fields and Value payloads may alias data;
// callers that mutate or outlive the input should copy (or Clone) them.
// Data remaining after the top-level atom is ErrTrailingBytes.
func Unmarshal(data []byte, out any) error {
	return Config{}.Unmarshal(data, out)
}

// Config carries decoding and encoding options. The zero value is ready
// to use.
type Config struct {
	// AllocationBudget is the maximum number of bytes one decode may
	// allocate for payloads, symbols, and scratch copies. Zero means
	// unlimited. Exceeding the budget fails with ErrTooManyBytes before
	// the offending allocation occurs.
	AllocationBudget uint64
}

func (c Config) budget() uint64 {
	if c.AllocationBudget == 0 {
		return math.MaxUint64
	}
	return c.AllocationBudget
}

// Marshal encodes value as a single Pot document.
func (c Config) Marshal(value any) ([]byte, error) {
	return c.marshal(value, nil)
}

func (c Config) marshal(value any, symbols interner) ([]byte, error) {
	if symbols == nil {
		symbols = &docInterner{}
	}
	e := &encodeState{
		buf:     appendHeader(make([]byte, 0, 128), currentVersion),
		symbols: symbols,
	}
	if err := e.marshal(reflect.ValueOf(value)); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// Unmarshal decodes a single Pot document into out under this config.
func (c Config) Unmarshal(data []byte, out any) error {
	return c.unmarshalSlice(data, out, nil, true)
}

func (c Config) unmarshalSlice(data []byte, out any, symbols symbolTable, checkTrailing bool) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &InvalidUnmarshalError{Type: reflect.TypeOf(out)}
	}
	if symbols == nil {
		symbols = &docSymbols{}
	}
	r := newSliceReader(data)
	d := &decodeState{r: r, symbols: symbols, budget: c.budget()}
	if err := d.readDocHeader(); err != nil {
		return err
	}
	if err := d.value(rv.Elem()); err != nil {
		return err
	}
	if checkTrailing && (!r.empty() || len(d.peeked) > 0) {
		return ErrTrailingBytes
	}
	return nil
}

// An Encoder writes Pot documents to an output stream, one per Encode
// call. An Encoder obtained from a SymbolMap shares the map's symbols
// across documents.
type Encoder struct {
	w       io.Writer
	cfg     Config
	symbols *SymbolMap
	buf     []byte
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return Config{}.NewEncoder(w)
}

// NewEncoder returns an Encoder writing to w under this config.
func (c Config) NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, cfg: c}
}

// Encode writes value as one document. The document is buffered and
// written whole, so an encoding failure leaves the stream untouched; a
// write failure may leave a partial document that the consumer must
// discard.
func (e *Encoder) Encode(value any) error {
	var symbols interner = e.symbols
	if e.symbols == nil {
		symbols = &docInterner{}
	}
	es := &encodeState{
		buf:     appendHeader(e.buf[:0], currentVersion),
		symbols: symbols,
	}
	if err := es.marshal(reflect.ValueOf(value)); err != nil {
		return err
	}
	e.buf = es.buf
	if _, err := e.w.Write(es.buf); err != nil {
		return fmt.Errorf("pot: write error: %w", err)
	}
	return nil
}

// A Decoder reads Pot documents from an input stream, one per Decode
// call. Decoded data never references the stream; every payload is
// copied. A Decoder obtained from a SymbolMap resolves symbols the map
// already knows, enabling batch streams whose later documents carry no
// symbol payloads.
type Decoder struct {
	r       *streamReader
	cfg     Config
	symbols *SymbolMap
	scratch []byte
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return Config{}.NewDecoder(r)
}

// NewDecoder returns a Decoder reading from r under this config.
func (c Config) NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: newStreamReader(r), cfg: c}
}

// Decode reads the next document into out. It returns io.EOF when the
// stream ends cleanly between documents. The allocation budget resets
// for each document.
func (d *Decoder) Decode(out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &InvalidUnmarshalError{Type: reflect.TypeOf(out)}
	}
	if _, err := d.r.r.Peek(1); err == io.EOF {
		return io.EOF
	}
	var symbols symbolTable = d.symbols
	if d.symbols == nil {
		symbols = &docSymbols{}
	}
	ds := &decodeState{
		r:       d.r,
		symbols: symbols,
		scratch: d.scratch[:0],
		budget:  d.cfg.budget(),
	}
	err := ds.readDocHeader()
	if err == nil {
		err = ds.value(rv.Elem())
	}
	d.scratch = ds.scratch
	return err
}
