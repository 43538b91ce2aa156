// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classfile

import (
	"math"
	"unicode/utf16"

	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// Method handle reference kinds.
const (
	refInvokeVirtual    = 5
	refInvokeStatic     = 6
	refInvokeSpecial    = 7
	refNewInvokeSpecial = 8
	refInvokeInterface  = 9
)

type cpEntry struct {
	tag uint8
	// a and b hold the index operands of reference entries. For
	// MethodHandle, a is the reference kind and b the reference index.
	a, b uint16
	str  string
	i    int64
	f    float64
}

type constantPool []cpEntry

func readConstantPool(c *cursor) (constantPool, error) {
	count := int(c.u2())
	if c.err != nil {
		return nil, c.err
	}
	cp := make(constantPool, count)
	for i := 1; i < count; i++ {
		tag := c.u1()
		e := cpEntry{tag: tag}
		switch tag {
		case tagUtf8:
			n := int(c.u2())
			e.str = decodeModifiedUTF8(c.bytes(n))
		case tagInteger:
			e.i = int64(int32(c.u4()))
		case tagFloat:
			e.f = float64(math.Float32frombits(c.u4()))
		case tagLong:
			e.i = int64(c.u8())
		case tagDouble:
			e.f = math.Float64frombits(c.u8())
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			e.a = c.u2()
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			e.a = c.u2()
			e.b = c.u2()
		case tagMethodHandle:
			e.a = uint16(c.u1())
			e.b = c.u2()
		default:
			if c.err != nil {
				return nil, c.err
			}
			return nil, malformed("unknown constant pool tag %d at index %d", tag, i)
		}
		if c.err != nil {
			return nil, c.err
		}
		cp[i] = e
		// 8-byte constants occupy two slots.
		if tag == tagLong || tag == tagDouble {
			i++
		}
	}
	return cp, nil
}

func (cp constantPool) entry(idx uint16, tag uint8) (cpEntry, error) {
	if idx == 0 || int(idx) >= len(cp) {
		return cpEntry{}, malformed("constant pool index %d out of range", idx)
	}
	e := cp[idx]
	if e.tag != tag {
		return cpEntry{}, malformed("constant pool index %d has tag %d, want %d", idx, e.tag, tag)
	}
	return e, nil
}

func (cp constantPool) utf8(idx uint16) (string, error) {
	e, err := cp.entry(idx, tagUtf8)
	if err != nil {
		return "", err
	}
	return e.str, nil
}

// className returns the dotted class name of a CONSTANT_Class entry. Array
// classes ("[Ljava/lang/String;") are returned as "java.lang.String[]".
func (cp constantPool) className(idx uint16) (string, error) {
	e, err := cp.entry(idx, tagClass)
	if err != nil {
		return "", err
	}
	internal, err := cp.utf8(e.a)
	if err != nil {
		return "", err
	}
	return internalClassName(internal)
}

func internalClassName(internal string) (string, error) {
	if len(internal) > 0 && internal[0] == '[' {
		return ParseFieldDescriptor(internal)
	}
	return raw.InternalToName(internal), nil
}

func (cp constantPool) nameAndType(idx uint16) (name, desc string, err error) {
	e, err := cp.entry(idx, tagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = cp.utf8(e.a); err != nil {
		return "", "", err
	}
	if desc, err = cp.utf8(e.b); err != nil {
		return "", "", err
	}
	return name, desc, nil
}

// memberRef resolves a Fieldref, Methodref or InterfaceMethodref entry.
func (cp constantPool) memberRef(idx uint16) (owner, name, desc string, err error) {
	if idx == 0 || int(idx) >= len(cp) {
		return "", "", "", malformed("member reference index %d out of range", idx)
	}
	e := cp[idx]
	switch e.tag {
	case tagFieldref, tagMethodref, tagInterfaceMethodref:
	default:
		return "", "", "", malformed("constant pool index %d is not a member reference (tag %d)", idx, e.tag)
	}
	if owner, err = cp.className(e.a); err != nil {
		return "", "", "", err
	}
	if name, desc, err = cp.nameAndType(e.b); err != nil {
		return "", "", "", err
	}
	return owner, name, desc, nil
}

type methodHandle struct {
	kind              uint8
	owner, name, desc string
}

func (cp constantPool) methodHandle(idx uint16) (methodHandle, error) {
	e, err := cp.entry(idx, tagMethodHandle)
	if err != nil {
		return methodHandle{}, err
	}
	owner, name, desc, err := cp.memberRef(e.b)
	if err != nil {
		return methodHandle{}, err
	}
	return methodHandle{kind: uint8(e.a), owner: owner, name: name, desc: desc}, nil
}

// decodeModifiedUTF8 decodes the class-file flavour of UTF-8: NUL is encoded
// as two bytes and supplementary characters as surrogate pairs. Invalid
// sequences decode to U+FFFD instead of failing.
func decodeModifiedUTF8(b []byte) string {
	ascii := true
	for _, c := range b {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}

	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			units = append(units, 0xFFFD)
			i++
		}
	}
	return string(utf16.Decode(units))
}
