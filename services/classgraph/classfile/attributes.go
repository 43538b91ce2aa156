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
	"fmt"
	"log/slog"

	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

// Attribute names the reader understands. Everything else is skipped.
const (
	attrCode                   = "Code"
	attrSignature              = "Signature"
	attrExceptions             = "Exceptions"
	attrSourceFile             = "SourceFile"
	attrInnerClasses           = "InnerClasses"
	attrEnclosingMethod        = "EnclosingMethod"
	attrBootstrapMethods       = "BootstrapMethods"
	attrLineNumberTable        = "LineNumberTable"
	attrVisibleAnnotations     = "RuntimeVisibleAnnotations"
	attrInvisibleAnnotations   = "RuntimeInvisibleAnnotations"
	maxAnnotationNestingDepth  = 32
	maxElementValueArrayLength = 1 << 16
)

type lineEntry struct {
	startPC int
	line    int
}

// codeBody is a method body kept until the class attributes are read.
type codeBody struct {
	member *raw.MemberRecord
	code   []byte
	lines  []lineEntry
}

// lineAt returns the source line of the instruction at pc, 0 if unknown.
func (b *codeBody) lineAt(pc int) int {
	line := 0
	best := -1
	for _, e := range b.lines {
		if e.startPC <= pc && e.startPC > best {
			best = e.startPC
			line = e.line
		}
	}
	return line
}

type bootstrapMethod struct {
	ref  uint16
	args []uint16
}

// attribute reads one attribute header and returns its name and body cursor.
// The outer cursor is advanced past the body.
func attribute(c *cursor, cp constantPool) (string, *cursor, error) {
	name, err := cp.utf8(c.u2())
	length := int(c.u4())
	body := c.bytes(length)
	if c.err != nil {
		return "", nil, c.err
	}
	if err != nil {
		return "", nil, err
	}
	return name, newCursor(body), nil
}

func (r *Reader) readMemberAttributes(c *cursor, st *classState, m *raw.MemberRecord) error {
	count := int(c.u2())
	for i := 0; i < count && c.err == nil; i++ {
		name, body, err := attribute(c, st.cp)
		if err != nil {
			return err
		}
		switch name {
		case attrSignature:
			sig, err := st.cp.utf8(body.u2())
			if err != nil {
				return orTruncated(body, err)
			}
			m.Signature = sig
			r.parseMemberSignature(st, m)
		case attrExceptions:
			n := int(body.u2())
			for j := 0; j < n && body.err == nil; j++ {
				ex, err := st.cp.className(body.u2())
				if err != nil {
					return orTruncated(body, err)
				}
				m.Throws = append(m.Throws, ex)
			}
		case attrVisibleAnnotations, attrInvisibleAnnotations:
			anns, err := readAnnotations(body, st.cp)
			if err != nil {
				return err
			}
			m.Annotations = append(m.Annotations, anns...)
		case attrCode:
			if m.Kind == raw.MemberKindField {
				continue
			}
			cb, err := readCode(body, st.cp, m)
			if err != nil {
				return err
			}
			st.bodies = append(st.bodies, cb)
		}
		if body.err != nil {
			return body.err
		}
	}
	return c.err
}

// parseMemberSignature parses the generic signature of a member. A malformed
// signature only loses the generic information; the erased types from the
// descriptor remain.
func (r *Reader) parseMemberSignature(st *classState, m *raw.MemberRecord) {
	var err error
	if m.Kind == raw.MemberKindField {
		m.GenericField, err = ParseFieldSignature(m.Signature)
	} else {
		m.GenericMethod, err = ParseMethodSignature(m.Signature)
	}
	if err != nil {
		r.options.Logger.Debug("dropping malformed member signature",
			slog.String("location", st.location),
			slog.String("member", m.Name),
			slog.String("signature", m.Signature),
			slog.String("error", err.Error()),
		)
		m.GenericField = nil
		m.GenericMethod = nil
	}
}

func readCode(c *cursor, cp constantPool, m *raw.MemberRecord) (*codeBody, error) {
	c.u2() // max_stack
	c.u2() // max_locals
	length := int(c.u4())
	code := c.bytes(length)
	excCount := int(c.u2())
	c.skip(excCount * 8)
	if c.err != nil {
		return nil, c.err
	}
	cb := &codeBody{member: m, code: code}

	count := int(c.u2())
	for i := 0; i < count && c.err == nil; i++ {
		name, body, err := attribute(c, cp)
		if err != nil {
			return nil, err
		}
		if name != attrLineNumberTable {
			continue
		}
		n := int(body.u2())
		for j := 0; j < n && body.err == nil; j++ {
			pc := int(body.u2())
			line := int(body.u2())
			cb.lines = append(cb.lines, lineEntry{startPC: pc, line: line})
			if m.FirstLine == 0 || line < m.FirstLine {
				m.FirstLine = line
			}
		}
		if body.err != nil {
			return nil, body.err
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return cb, nil
}

func (r *Reader) readClassAttributes(c *cursor, st *classState) error {
	rec := st.record
	count := int(c.u2())
	for i := 0; i < count && c.err == nil; i++ {
		name, body, err := attribute(c, st.cp)
		if err != nil {
			return err
		}
		switch name {
		case attrSourceFile:
			file, err := st.cp.utf8(body.u2())
			if err != nil {
				return orTruncated(body, err)
			}
			rec.Source.FileName = file
		case attrSignature:
			sig, err := st.cp.utf8(body.u2())
			if err != nil {
				return orTruncated(body, err)
			}
			rec.Signature = sig
			if rec.GenericSignature, err = ParseClassSignature(sig); err != nil {
				r.options.Logger.Debug("dropping malformed class signature",
					slog.String("location", st.location),
					slog.String("class", rec.Name),
					slog.String("signature", sig),
					slog.String("error", err.Error()),
				)
				rec.GenericSignature = nil
			}
		case attrVisibleAnnotations, attrInvisibleAnnotations:
			anns, err := readAnnotations(body, st.cp)
			if err != nil {
				return err
			}
			rec.Annotations = append(rec.Annotations, anns...)
		case attrInnerClasses:
			if err := readInnerClasses(body, st); err != nil {
				return err
			}
		case attrEnclosingMethod:
			if err := readEnclosingMethod(body, st); err != nil {
				return err
			}
		case attrBootstrapMethods:
			n := int(body.u2())
			for j := 0; j < n && body.err == nil; j++ {
				bm := bootstrapMethod{ref: body.u2()}
				argc := int(body.u2())
				for k := 0; k < argc && body.err == nil; k++ {
					bm.args = append(bm.args, body.u2())
				}
				st.bootstrap = append(st.bootstrap, bm)
			}
		}
		if body.err != nil {
			return body.err
		}
	}
	return c.err
}

// readInnerClasses applies the entry describing this class itself. The entry
// carries the source-level modifiers (private, protected, static) that the
// top-level access flags cannot express.
func readInnerClasses(c *cursor, st *classState) error {
	rec := st.record
	n := int(c.u2())
	for i := 0; i < n && c.err == nil; i++ {
		innerIdx := c.u2()
		outerIdx := c.u2()
		nameIdx := c.u2()
		flags := c.u2()
		if c.err != nil {
			return c.err
		}
		inner, err := st.cp.className(innerIdx)
		if err != nil {
			return err
		}
		if inner != rec.Name {
			continue
		}
		rec.Modifiers = classModifiers(flags)
		switch {
		case outerIdx != 0:
			outer, err := st.cp.className(outerIdx)
			if err != nil {
				return err
			}
			rec.Nesting = raw.NestingMember
			rec.EnclosingClass = outer
		case nameIdx == 0:
			rec.Nesting = raw.NestingAnonymous
		default:
			rec.Nesting = raw.NestingLocal
		}
	}
	return c.err
}

func readEnclosingMethod(c *cursor, st *classState) error {
	classIdx := c.u2()
	methodIdx := c.u2()
	if c.err != nil {
		return c.err
	}
	outer, err := st.cp.className(classIdx)
	if err != nil {
		return err
	}
	st.record.EnclosingClass = outer
	if st.record.Nesting == raw.NestingTopLevel {
		st.record.Nesting = raw.NestingLocal
	}
	if methodIdx != 0 {
		name, desc, err := st.cp.nameAndType(methodIdx)
		if err != nil {
			return err
		}
		st.record.EnclosingMethod = &raw.MethodRef{Name: name, Descriptor: desc}
	}
	return nil
}

func readAnnotations(c *cursor, cp constantPool) ([]raw.AnnotationRecord, error) {
	n := int(c.u2())
	anns := make([]raw.AnnotationRecord, 0, n)
	for i := 0; i < n && c.err == nil; i++ {
		ann, err := readAnnotation(c, cp, 0)
		if err != nil {
			return nil, err
		}
		anns = append(anns, ann)
	}
	if c.err != nil {
		return nil, c.err
	}
	return anns, nil
}

func readAnnotation(c *cursor, cp constantPool, depth int) (raw.AnnotationRecord, error) {
	if depth > maxAnnotationNestingDepth {
		return raw.AnnotationRecord{}, malformed("annotation nesting deeper than %d", maxAnnotationNestingDepth)
	}
	desc, err := cp.utf8(c.u2())
	if err != nil {
		return raw.AnnotationRecord{}, orTruncated(c, err)
	}
	typ, err := ParseFieldDescriptor(desc)
	if err != nil {
		return raw.AnnotationRecord{}, err
	}
	ann := raw.AnnotationRecord{Type: typ}
	n := int(c.u2())
	for i := 0; i < n && c.err == nil; i++ {
		name, err := cp.utf8(c.u2())
		if err != nil {
			return raw.AnnotationRecord{}, orTruncated(c, err)
		}
		v, err := readElementValue(c, cp, depth)
		if err != nil {
			return raw.AnnotationRecord{}, fmt.Errorf("annotation %s element %s: %w", typ, name, err)
		}
		ann.Values = append(ann.Values, raw.AnnotationElement{Name: name, Value: v})
	}
	return ann, c.err
}

func readElementValue(c *cursor, cp constantPool, depth int) (raw.ElementValue, error) {
	tag := c.u1()
	v := raw.ElementValue{Tag: tag}
	switch tag {
	case 'B', 'C', 'I', 'S', 'Z':
		e, err := cp.entry(c.u2(), tagInteger)
		if err != nil {
			return v, orTruncated(c, err)
		}
		v.Int = e.i
	case 'J':
		e, err := cp.entry(c.u2(), tagLong)
		if err != nil {
			return v, orTruncated(c, err)
		}
		v.Int = e.i
	case 'F':
		e, err := cp.entry(c.u2(), tagFloat)
		if err != nil {
			return v, orTruncated(c, err)
		}
		v.Float = e.f
	case 'D':
		e, err := cp.entry(c.u2(), tagDouble)
		if err != nil {
			return v, orTruncated(c, err)
		}
		v.Float = e.f
	case 's':
		s, err := cp.utf8(c.u2())
		if err != nil {
			return v, orTruncated(c, err)
		}
		v.String = s
	case 'e':
		typeDesc, err := cp.utf8(c.u2())
		if err != nil {
			return v, orTruncated(c, err)
		}
		constName, err := cp.utf8(c.u2())
		if err != nil {
			return v, orTruncated(c, err)
		}
		if v.EnumType, err = ParseFieldDescriptor(typeDesc); err != nil {
			return v, err
		}
		v.EnumName = constName
	case 'c':
		desc, err := cp.utf8(c.u2())
		if err != nil {
			return v, orTruncated(c, err)
		}
		if desc == "V" {
			v.Class = "void"
		} else if v.Class, err = ParseFieldDescriptor(desc); err != nil {
			return v, err
		}
	case '@':
		nested, err := readAnnotation(c, cp, depth+1)
		if err != nil {
			return v, err
		}
		v.Annotation = &nested
	case '[':
		n := int(c.u2())
		if n > maxElementValueArrayLength {
			return v, malformed("element value array of %d entries", n)
		}
		for i := 0; i < n && c.err == nil; i++ {
			elem, err := readElementValue(c, cp, depth+1)
			if err != nil {
				return v, err
			}
			v.Elements = append(v.Elements, elem)
		}
	default:
		if c.err != nil {
			return v, c.err
		}
		return v, malformed("unknown element value tag %q", tag)
	}
	return v, c.err
}
