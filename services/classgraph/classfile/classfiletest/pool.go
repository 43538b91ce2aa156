// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classfiletest assembles class files for tests.
//
// Names are given in dotted form ("com.acme.Foo", "com.acme.Outer$Inner") and
// converted to the internal form. Descriptors are given in class-file form
// ("(I)Ljava/lang/String;").
package classfiletest

import (
	"encoding/binary"
	"math"
	"strings"
)

// Access flags.
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020
	AccSynchronized = 0x0020
	AccVolatile     = 0x0040
	AccBridge       = 0x0040
	AccTransient    = 0x0080
	AccVarargs      = 0x0080
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccSynthetic    = 0x1000
	AccAnnotation   = 0x2000
	AccEnum         = 0x4000
	AccModule       = 0x8000
)

// Method handle reference kinds.
const (
	RefInvokeVirtual    = 5
	RefInvokeStatic     = 6
	RefInvokeSpecial    = 7
	RefNewInvokeSpecial = 8
	RefInvokeInterface  = 9
)

// LambdaMetafactory is the bootstrap owner used by Code.Lambda.
const LambdaMetafactory = "java.lang.invoke.LambdaMetafactory"

func internal(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// pool is a deduplicating constant pool builder.
type pool struct {
	buf   []byte
	next  uint16
	index map[string]uint16
}

func newPool() *pool {
	return &pool{next: 1, index: make(map[string]uint16)}
}

func (p *pool) add(key string, slots uint16, entry []byte) uint16 {
	if idx, ok := p.index[key]; ok {
		return idx
	}
	idx := p.next
	p.next += slots
	p.buf = append(p.buf, entry...)
	p.index[key] = idx
	return idx
}

func u2(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

func u4(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func (p *pool) utf8(s string) uint16 {
	entry := append([]byte{1}, u2(uint16(len(s)))...)
	entry = append(entry, s...)
	return p.add("u:"+s, 1, entry)
}

func (p *pool) integer(v int32) uint16 {
	return p.add("i:"+string(u4(uint32(v))), 1, append([]byte{3}, u4(uint32(v))...))
}

func (p *pool) long(v int64) uint16 {
	b := binary.BigEndian.AppendUint64([]byte{5}, uint64(v))
	return p.add("j:"+string(b), 2, b)
}

func (p *pool) double(v float64) uint16 {
	b := binary.BigEndian.AppendUint64([]byte{6}, math.Float64bits(v))
	return p.add("d:"+string(b), 2, b)
}

func (p *pool) class(name string) uint16 {
	n := p.utf8(internal(name))
	return p.add("c:"+name, 1, append([]byte{7}, u2(n)...))
}

func (p *pool) str(s string) uint16 {
	n := p.utf8(s)
	return p.add("s:"+s, 1, append([]byte{8}, u2(n)...))
}

func (p *pool) nameAndType(name, desc string) uint16 {
	n := p.utf8(name)
	d := p.utf8(desc)
	entry := append([]byte{12}, u2(n)...)
	return p.add("nt:"+name+":"+desc, 1, append(entry, u2(d)...))
}

func (p *pool) ref(tag byte, owner, name, desc string) uint16 {
	c := p.class(owner)
	nt := p.nameAndType(name, desc)
	entry := append([]byte{tag}, u2(c)...)
	return p.add("r"+string(tag)+":"+owner+"."+name+":"+desc, 1, append(entry, u2(nt)...))
}

func (p *pool) fieldRef(owner, name, desc string) uint16 {
	return p.ref(9, owner, name, desc)
}

func (p *pool) methodRef(owner, name, desc string) uint16 {
	return p.ref(10, owner, name, desc)
}

func (p *pool) interfaceMethodRef(owner, name, desc string) uint16 {
	return p.ref(11, owner, name, desc)
}

func (p *pool) methodHandle(kind byte, ref uint16) uint16 {
	entry := append([]byte{15, kind}, u2(ref)...)
	return p.add("mh:"+string(entry), 1, entry)
}

func (p *pool) methodType(desc string) uint16 {
	d := p.utf8(desc)
	return p.add("mt:"+desc, 1, append([]byte{16}, u2(d)...))
}

func (p *pool) invokeDynamic(bootstrap uint16, name, desc string) uint16 {
	nt := p.nameAndType(name, desc)
	entry := append([]byte{18}, u2(bootstrap)...)
	entry = append(entry, u2(nt)...)
	return p.add("indy:"+string(entry), 1, entry)
}

// attribute encodes a named attribute.
func attribute(p *pool, name string, body []byte) []byte {
	out := u2(p.utf8(name))
	out = append(out, u4(uint32(len(body)))...)
	return append(out, body...)
}

func attributes(attrs [][]byte) []byte {
	out := u2(uint16(len(attrs)))
	for _, a := range attrs {
		out = append(out, a...)
	}
	return out
}
