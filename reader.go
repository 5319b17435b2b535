// Copyright 2026 by Khonsu Labs. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package pot

import (
	"bufio"
	"io"
)

// reader is the byte source behind a decode. Two implementations exist:
// sliceReader hands out views into the original buffer (zero copy), and
// streamReader copies payloads into a caller-provided scratch buffer.
type reader interface {
	io.ByteReader

	// borrows reports whether readBytes returns views into the source
	// rather than copies.
	borrows() bool

	// readFixed fills buf completely from the source.
	readFixed(buf []byte) error

	// readBytes returns length bytes. When borrowed is true the data is
	// a view into the source and remains valid for the source's
	// lifetime. Otherwise the bytes were appended to *scratch and data
	// points into it; callers share one scratch across atoms to avoid
	// per-atom allocation.
	readBytes(length int, scratch *[]byte) (data []byte, borrowed bool, err error)
}

// sliceReader reads from an in-memory buffer, borrowing instead of
// copying.
type sliceReader struct {
	data []byte
}

func newSliceReader(data []byte) *sliceReader {
	return &sliceReader{data: data}
}

func (r *sliceReader) empty() bool { return len(r.data) == 0 }

func (r *sliceReader) borrows() bool { return true }

func (r *sliceReader) ReadByte() (byte, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	b := r.data[0]
	r.data = r.data[1:]
	return b, nil
}

func (r *sliceReader) readFixed(buf []byte) error {
	if len(buf) > len(r.data) {
		r.data = nil
		return io.ErrUnexpectedEOF
	}
	copy(buf, r.data)
	r.data = r.data[len(buf):]
	return nil
}

func (r *sliceReader) readBytes(length int, _ *[]byte) ([]byte, bool, error) {
	if length > len(r.data) {
		r.data = nil
		return nil, false, io.ErrUnexpectedEOF
	}
	data := r.data[:length:length]
	r.data = r.data[length:]
	return data, true, nil
}

// streamReader reads from an io.Reader. Payload bytes are appended to the
// shared scratch buffer; nothing is borrowed.
type streamReader struct {
	r *bufio.Reader
}

func newStreamReader(r io.Reader) *streamReader {
	if br, ok := r.(*bufio.Reader); ok {
		return &streamReader{r: br}
	}
	return &streamReader{r: bufio.NewReader(r)}
}

func (r *streamReader) borrows() bool { return false }

func (r *streamReader) ReadByte() (byte, error) {
	return r.r.ReadByte()
}

func (r *streamReader) readFixed(buf []byte) error {
	_, err := io.ReadFull(r.r, buf)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

func (r *streamReader) readBytes(length int, scratch *[]byte) ([]byte, bool, error) {
	start := len(*scratch)
	need := start + length
	if cap(*scratch) < need {
		grown := make([]byte, start, need)
		copy(grown, *scratch)
		*scratch = grown
	}
	*scratch = (*scratch)[:need]
	data := (*scratch)[start:]
	if err := r.readFixed(data); err != nil {
		*scratch = (*scratch)[:start]
		return nil, false, err
	}
	return data, false, nil
}
