// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classfile decodes compiled class files into raw.ClassRecord values.
//
// The decoder is strictly local: it never looks at other units and never
// resolves names. Everything that refers to another class is kept by name.
package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Errors returned by Read. Callers classify them with errors.Is.
var (
	// ErrBadMagic means the unit does not start with 0xCAFEBABE.
	ErrBadMagic = errors.New("not a class file")

	// ErrTruncated means the unit ended before a structure was complete.
	ErrTruncated = errors.New("truncated class file")

	// ErrUnsupportedVersion means the class-file major version is outside the
	// supported range.
	ErrUnsupportedVersion = errors.New("unsupported class file version")

	// ErrMalformed means a structure was present but inconsistent, e.g. a
	// constant pool index pointing at an entry of the wrong type.
	ErrMalformed = errors.New("malformed class file")
)

// cursor reads big-endian values from a byte slice. The first out-of-range
// read sets err to ErrTruncated; subsequent reads return zero values.
type cursor struct {
	data []byte
	pos  int
	err  error
}

func newCursor(data []byte) *cursor {
	return &cursor{data: data}
}

func (c *cursor) need(n int) bool {
	if c.err != nil {
		return false
	}
	if n < 0 || c.pos+n > len(c.data) {
		c.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, c.pos, len(c.data)-c.pos)
		return false
	}
	return true
}

func (c *cursor) u1() uint8 {
	if !c.need(1) {
		return 0
	}
	v := c.data[c.pos]
	c.pos++
	return v
}

func (c *cursor) u2() uint16 {
	if !c.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v
}

func (c *cursor) u4() uint32 {
	if !c.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v
}

func (c *cursor) u8() uint64 {
	if !c.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(c.data[c.pos:])
	c.pos += 8
	return v
}

func (c *cursor) bytes(n int) []byte {
	if !c.need(n) {
		return nil
	}
	v := c.data[c.pos : c.pos+n]
	c.pos += n
	return v
}

func (c *cursor) skip(n int) {
	if c.need(n) {
		c.pos += n
	}
}

// malformed builds an ErrMalformed error with context.
func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
