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

// Element is an annotation element under construction.
type Element struct {
	name   string
	encode func(p *pool) []byte
}

// StringElement is a string-valued element.
func StringElement(name, v string) Element {
	return Element{name: name, encode: func(p *pool) []byte {
		return append([]byte{'s'}, u2(p.utf8(v))...)
	}}
}

// IntElement is an int-valued element.
func IntElement(name string, v int32) Element {
	return Element{name: name, encode: func(p *pool) []byte {
		return append([]byte{'I'}, u2(p.integer(v))...)
	}}
}

// EnumElement is an enum constant element.
func EnumElement(name, enumType, constant string) Element {
	return Element{name: name, encode: func(p *pool) []byte {
		out := append([]byte{'e'}, u2(p.utf8("L"+internal(enumType)+";"))...)
		return append(out, u2(p.utf8(constant))...)
	}}
}

// ClassElement is a class literal element.
func ClassElement(name, class string) Element {
	return Element{name: name, encode: func(p *pool) []byte {
		return append([]byte{'c'}, u2(p.utf8("L"+internal(class)+";"))...)
	}}
}

// AnnotationElement is a nested annotation element.
func AnnotationElement(name, typeName string, elems ...Element) Element {
	return Element{name: name, encode: func(p *pool) []byte {
		return append([]byte{'@'}, annotation(p, typeName, elems)...)
	}}
}

// ArrayElement is an array element whose values are taken from elems; their
// names are ignored.
func ArrayElement(name string, elems ...Element) Element {
	return Element{name: name, encode: func(p *pool) []byte {
		out := append([]byte{'['}, u2(uint16(len(elems)))...)
		for _, e := range elems {
			out = append(out, e.encode(p)...)
		}
		return out
	}}
}

func annotation(p *pool, typeName string, elems []Element) []byte {
	out := u2(p.utf8("L" + internal(typeName) + ";"))
	out = append(out, u2(uint16(len(elems)))...)
	for _, e := range elems {
		out = append(out, u2(p.utf8(e.name))...)
		out = append(out, e.encode(p)...)
	}
	return out
}

func annotationsAttribute(p *pool, typeName string, elems []Element) []byte {
	body := append(u2(1), annotation(p, typeName, elems)...)
	return attribute(p, "RuntimeVisibleAnnotations", body)
}
