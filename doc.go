// Copyright 2026 by Khonsu Labs. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package pot implements the Pot binary serialization format: a compact,
// self-describing codec designed as a storage and wire format for
// document databases.
//
// Pot's distinguishing property is that every structural identifier — a
// struct field name, a tagged-variant name — is written at most once per
// document. Later occurrences are small integer references into a symbol
// table built as the document is read. Combined with minimal-width
// integer and float packing, this yields CBOR-class self-description at
// close to schema-dependent sizes on structure-heavy payloads.
//
// # Documents
//
// A document is the four bytes 'P' 'o' 't' 0x00 (the last byte is the
// format version) followed by exactly one atom, which transitively
// contains all data. Streams are plain concatenations of documents.
// Marshal and Unmarshal handle single documents; Encoder and Decoder
// handle streams.
//
// # Atoms
//
// An atom is a header byte — a 3-bit kind and a 4-bit argument with an
// extension flag that continues the argument in 7-bit little-endian
// groups — followed by a kind-dependent payload. Integers are stored in
// the smallest width from {1, 2, 3, 4, 6, 8, 16} bytes that preserves
// the value; floats are stored as binary32 whenever the value survives
// the round-trip, binary64 otherwise.
//
// # Symbol maps
//
// A SymbolMap persists the symbol table across documents: field names
// introduced by one document are referenced, not repeated, by every
// later document encoded over the same map. The map serializes, so the
// table can be pre-shared between a sender and receiver; the two sides
// must stay in lockstep.
//
// # Hostile input
//
// Config.AllocationBudget bounds the bytes a decode may allocate, and a
// fixed nesting-depth limit bounds recursion. Both make decoding
// untrusted data safe without trusting declared lengths.
//
// # Go mapping
//
// Struct fields use the `pot` tag (falling back to `json`), with
// ",omitempty" and "-" behaving as in encoding/json. Anonymous embedded
// structs flatten into the enclosing map. Nil pointers, slices, and maps
// encode as None; the empty struct encodes as Unit. Decoding tolerates
// None and Unit wherever a typed value is expected, producing the type's
// zero value, which keeps documents readable across schema changes that
// add or remove fields. Decoding into an untyped `any` produces a Value.
// Go has no 128-bit integers: 16-byte atoms decode when their value fits
// 64 bits and fail with ErrImpreciseCastWouldLoseData otherwise.
package pot
