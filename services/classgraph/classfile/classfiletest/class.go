// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classfiletest

import (
	"encoding/binary"
)

// Class assembles one class file.
type Class struct {
	pool       *pool
	major      uint16
	flags      uint16
	name       string
	super      string
	noSuper    bool
	interfaces []string
	fields     []*Member
	methods    []*Member
	attrs      [][]byte
	inner      []byte
	innerCount uint16
	bootstrap  []byte
	bsmCount   uint16
	magic      uint32
}

// New starts a public class with superclass java.lang.Object and major
// version 61.
func New(name string) *Class {
	return &Class{
		pool:  newPool(),
		major: 61,
		flags: AccPublic | AccSuper,
		name:  name,
		super: "java.lang.Object",
		magic: 0xCAFEBABE,
	}
}

// Magic overrides the magic number.
func (c *Class) Magic(m uint32) *Class {
	c.magic = m
	return c
}

// Version sets the major version.
func (c *Class) Version(major uint16) *Class {
	c.major = major
	return c
}

// Flags sets the class access flags.
func (c *Class) Flags(flags uint16) *Class {
	c.flags = flags
	return c
}

// Super sets the superclass. An empty name writes index 0.
func (c *Class) Super(name string) *Class {
	c.super = name
	c.noSuper = name == ""
	return c
}

// Implements appends interfaces.
func (c *Class) Implements(names ...string) *Class {
	c.interfaces = append(c.interfaces, names...)
	return c
}

// Signature adds a Signature attribute.
func (c *Class) Signature(sig string) *Class {
	c.attrs = append(c.attrs, attribute(c.pool, "Signature", u2(c.pool.utf8(sig))))
	return c
}

// SourceFile adds a SourceFile attribute.
func (c *Class) SourceFile(file string) *Class {
	c.attrs = append(c.attrs, attribute(c.pool, "SourceFile", u2(c.pool.utf8(file))))
	return c
}

// Annotate adds a RuntimeVisibleAnnotations attribute with one annotation.
func (c *Class) Annotate(typeName string, elems ...Element) *Class {
	c.attrs = append(c.attrs, annotationsAttribute(c.pool, typeName, elems))
	return c
}

// InnerClass adds an InnerClasses entry. An empty outer writes index 0, an
// empty simple name marks an anonymous class.
func (c *Class) InnerClass(inner, outer, simpleName string, flags uint16) *Class {
	entry := u2(c.pool.class(inner))
	if outer == "" {
		entry = append(entry, u2(0)...)
	} else {
		entry = append(entry, u2(c.pool.class(outer))...)
	}
	if simpleName == "" {
		entry = append(entry, u2(0)...)
	} else {
		entry = append(entry, u2(c.pool.utf8(simpleName))...)
	}
	entry = append(entry, u2(flags)...)
	c.inner = append(c.inner, entry...)
	c.innerCount++
	return c
}

// EnclosingMethod adds an EnclosingMethod attribute. An empty method name
// writes method index 0.
func (c *Class) EnclosingMethod(class, name, desc string) *Class {
	body := u2(c.pool.class(class))
	if name == "" {
		body = append(body, u2(0)...)
	} else {
		body = append(body, u2(c.pool.nameAndType(name, desc))...)
	}
	c.attrs = append(c.attrs, attribute(c.pool, "EnclosingMethod", body))
	return c
}

// RawAttribute adds an arbitrary class attribute.
func (c *Class) RawAttribute(name string, body []byte) *Class {
	c.attrs = append(c.attrs, attribute(c.pool, name, body))
	return c
}

// Field adds a field.
func (c *Class) Field(flags uint16, name, desc string) *Member {
	m := &Member{class: c, flags: flags, name: name, desc: desc}
	c.fields = append(c.fields, m)
	return m
}

// Method adds a method, constructor or static initializer.
func (c *Class) Method(flags uint16, name, desc string) *Member {
	m := &Member{class: c, flags: flags, name: name, desc: desc}
	c.methods = append(c.methods, m)
	return m
}

func (c *Class) addBootstrap(handle uint16, args ...uint16) uint16 {
	idx := c.bsmCount
	c.bootstrap = append(c.bootstrap, u2(handle)...)
	c.bootstrap = append(c.bootstrap, u2(uint16(len(args)))...)
	for _, a := range args {
		c.bootstrap = append(c.bootstrap, u2(a)...)
	}
	c.bsmCount++
	return idx
}

// Bytes encodes the class file.
func (c *Class) Bytes() []byte {
	p := c.pool
	this := p.class(c.name)
	var super uint16
	if !c.noSuper {
		super = p.class(c.super)
	}
	ifaces := make([]uint16, 0, len(c.interfaces))
	for _, i := range c.interfaces {
		ifaces = append(ifaces, p.class(i))
	}

	var body []byte
	body = append(body, u2(c.flags)...)
	body = append(body, u2(this)...)
	body = append(body, u2(super)...)
	body = append(body, u2(uint16(len(ifaces)))...)
	for _, i := range ifaces {
		body = append(body, u2(i)...)
	}
	body = append(body, u2(uint16(len(c.fields)))...)
	for _, f := range c.fields {
		body = append(body, f.encode()...)
	}
	body = append(body, u2(uint16(len(c.methods)))...)
	for _, m := range c.methods {
		body = append(body, m.encode()...)
	}

	attrs := append([][]byte(nil), c.attrs...)
	if c.innerCount > 0 {
		attrs = append(attrs, attribute(p, "InnerClasses", append(u2(c.innerCount), c.inner...)))
	}
	if c.bsmCount > 0 {
		attrs = append(attrs, attribute(p, "BootstrapMethods", append(u2(c.bsmCount), c.bootstrap...)))
	}
	body = append(body, attributes(attrs)...)

	// The pool is complete only after every member was encoded.
	out := binary.BigEndian.AppendUint32(nil, c.magic)
	out = append(out, u2(0)...)
	out = append(out, u2(c.major)...)
	out = append(out, u2(p.next)...)
	out = append(out, p.buf...)
	return append(out, body...)
}

// Member assembles a field or method.
type Member struct {
	class *Class
	flags uint16
	name  string
	desc  string
	attrs [][]byte
	code  *Code
}

// Signature adds a Signature attribute.
func (m *Member) Signature(sig string) *Member {
	m.attrs = append(m.attrs, attribute(m.class.pool, "Signature", u2(m.class.pool.utf8(sig))))
	return m
}

// Throws adds an Exceptions attribute.
func (m *Member) Throws(names ...string) *Member {
	body := u2(uint16(len(names)))
	for _, n := range names {
		body = append(body, u2(m.class.pool.class(n))...)
	}
	m.attrs = append(m.attrs, attribute(m.class.pool, "Exceptions", body))
	return m
}

// Annotate adds a RuntimeVisibleAnnotations attribute with one annotation.
func (m *Member) Annotate(typeName string, elems ...Element) *Member {
	m.attrs = append(m.attrs, annotationsAttribute(m.class.pool, typeName, elems))
	return m
}

// Code returns the body of the method, creating it on first use.
func (m *Member) Code() *Code {
	if m.code == nil {
		m.code = &Code{class: m.class}
	}
	return m.code
}

func (m *Member) encode() []byte {
	p := m.class.pool
	out := u2(m.flags)
	out = append(out, u2(p.utf8(m.name))...)
	out = append(out, u2(p.utf8(m.desc))...)
	attrs := m.attrs
	if m.code != nil {
		attrs = append(attrs, m.code.attribute())
	}
	return append(out, attributes(attrs)...)
}
