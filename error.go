// Copyright 2026 by Khonsu Labs. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package pot

import (
	"errors"
	"fmt"
	"io"
	"reflect"
)

var (
	// ErrNotAPot is returned when a document does not begin with the
	// 'Pot' prefix.
	ErrNotAPot = errors.New("pot: not a pot: invalid header")

	// ErrIncompatibleVersion is returned when a document was written
	// with a newer format version than this package supports.
	ErrIncompatibleVersion = errors.New("pot: incompatible version")

	// ErrTrailingBytes is returned when extra data follows the top-level
	// atom of a document.
	ErrTrailingBytes = errors.New("pot: extra data at end of input")

	// ErrUnexpectedEOF is returned when the source ends mid-atom.
	ErrUnexpectedEOF = errors.New("pot: unexpected end of input")

	// ErrImpreciseCastWouldLoseData is returned when a numeric value
	// cannot be converted to the requested width without loss.
	ErrImpreciseCastWouldLoseData = errors.New("pot: numerical data cannot fit")

	// ErrSequenceSizeMustBeKnown is returned when encoding a sequence
	// whose length cannot be determined up front. Only maps support
	// dynamic-length framing.
	ErrSequenceSizeMustBeKnown = errors.New("pot: serializing sequences of unknown size is unsupported")

	// ErrInvalidUTF8 is returned when byte data promoted to a string is
	// not valid UTF-8.
	ErrInvalidUTF8 = errors.New("pot: invalid utf-8")

	// ErrInvalidAtomHeader is returned when an atom header or its
	// argument continuation is malformed, or a numeric payload has an
	// impossible width.
	ErrInvalidAtomHeader = errors.New("pot: an atom header was incorrectly formatted")

	// ErrTooManyBytes is returned when decoding would allocate more
	// bytes than the configured allocation budget.
	ErrTooManyBytes = errors.New("pot: the deserialized value is larger than the allowed allocation limit")
)

// InvalidKindError is returned when an atom carries a kind or special
// sub-kind outside the known set.
type InvalidKindError struct {
	Kind uint8
}

func (e InvalidKindError) Error() string {
	return fmt.Sprintf("pot: invalid kind: %d", e.Kind)
}

// UnexpectedKindError is returned when the stream holds an atom of one
// kind where the caller's type requires another and no fuzzy rule
// applies.
type UnexpectedKindError struct {
	Encountered Kind
	Expected    Kind
}

func (e UnexpectedKindError) Error() string {
	return fmt.Sprintf("pot: encountered atom kind %v, expected %v", e.Encountered, e.Expected)
}

// UnknownSymbolError is returned when a symbol reference names an id
// that has not been introduced.
type UnknownSymbolError struct {
	ID uint64
}

func (e UnknownSymbolError) Error() string {
	return fmt.Sprintf("pot: unknown symbol %d", e.ID)
}

// UnsupportedTypeError is returned by Marshal when a Go type has no Pot
// representation.
type UnsupportedTypeError struct {
	Type reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	return "pot: unsupported type: " + e.Type.String()
}

// InvalidUnmarshalError is returned by Unmarshal when the destination is
// not a non-nil pointer.
type InvalidUnmarshalError struct {
	Type reflect.Type
}

func (e *InvalidUnmarshalError) Error() string {
	if e.Type == nil {
		return "pot: Unmarshal(nil)"
	}
	if e.Type.Kind() != reflect.Pointer {
		return "pot: Unmarshal(non-pointer " + e.Type.String() + ")"
	}
	return "pot: Unmarshal(nil " + e.Type.String() + ")"
}

// wrapReadError normalizes errors from the underlying byte source. An
// end-of-file in the middle of an atom is reported as ErrUnexpectedEOF;
// other failures are passed through wrapped.
func wrapReadError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrUnexpectedEOF
	}
	return fmt.Errorf("pot: read error: %w", err)
}
