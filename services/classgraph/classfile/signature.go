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
	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

// sigParser is a recursive-descent parser over the generic signature grammar.
type sigParser struct {
	s   string
	pos int
	err error
}

func (p *sigParser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = malformed("signature %q at %d: "+format, append([]any{p.s, p.pos}, args...)...)
	}
}

func (p *sigParser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *sigParser) expect(b byte) {
	if p.peek() != b {
		p.fail("expected %q", b)
		return
	}
	p.pos++
}

func (p *sigParser) done() bool {
	return p.err != nil || p.pos >= len(p.s)
}

// identifier reads until one of the terminators.
func (p *sigParser) identifier(terminators string) string {
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		for i := 0; i < len(terminators); i++ {
			if c == terminators[i] {
				return p.s[start:p.pos]
			}
		}
		p.pos++
	}
	return p.s[start:p.pos]
}

// ParseClassSignature parses the Signature attribute of a class.
func ParseClassSignature(sig string) (*raw.ClassSignature, error) {
	p := &sigParser{s: sig}
	out := &raw.ClassSignature{}
	out.TypeParameters = p.typeParameters()
	super := p.classType()
	out.SuperClass = &super
	for !p.done() {
		out.Interfaces = append(out.Interfaces, p.classType())
	}
	if p.err != nil {
		return nil, p.err
	}
	return out, nil
}

// ParseMethodSignature parses the Signature attribute of a method or constructor.
func ParseMethodSignature(sig string) (*raw.MethodSignature, error) {
	p := &sigParser{s: sig}
	out := &raw.MethodSignature{}
	out.TypeParameters = p.typeParameters()
	p.expect('(')
	for p.err == nil && p.peek() != ')' {
		if p.done() {
			p.fail("unterminated parameter list")
			break
		}
		out.Parameters = append(out.Parameters, p.javaType())
	}
	p.expect(')')
	if p.peek() == 'V' {
		p.pos++
		out.Return = raw.TypeSignature{Kind: raw.SignaturePrimitive, Name: "void"}
	} else {
		out.Return = p.javaType()
	}
	for p.err == nil && p.peek() == '^' {
		p.pos++
		out.Throws = append(out.Throws, p.referenceType())
	}
	if p.err == nil && !p.done() {
		p.fail("trailing characters")
	}
	if p.err != nil {
		return nil, p.err
	}
	return out, nil
}

// ParseFieldSignature parses the Signature attribute of a field.
func ParseFieldSignature(sig string) (*raw.TypeSignature, error) {
	p := &sigParser{s: sig}
	t := p.referenceType()
	if p.err == nil && !p.done() {
		p.fail("trailing characters")
	}
	if p.err != nil {
		return nil, p.err
	}
	return &t, nil
}

func (p *sigParser) typeParameters() []raw.TypeParameterSignature {
	if p.peek() != '<' {
		return nil
	}
	p.pos++
	var params []raw.TypeParameterSignature
	for p.err == nil && p.peek() != '>' {
		if p.done() {
			p.fail("unterminated type parameters")
			return nil
		}
		tp := raw.TypeParameterSignature{Name: p.identifier(":")}
		if tp.Name == "" {
			p.fail("empty type parameter name")
			return nil
		}
		// Class bound, possibly empty when only interface bounds follow.
		p.expect(':')
		if c := p.peek(); c == 'L' || c == 'T' || c == '[' {
			tp.Bounds = append(tp.Bounds, p.referenceType())
		}
		for p.err == nil && p.peek() == ':' {
			p.pos++
			tp.Bounds = append(tp.Bounds, p.referenceType())
		}
		params = append(params, tp)
	}
	p.expect('>')
	return params
}

func (p *sigParser) javaType() raw.TypeSignature {
	if name, ok := baseTypes[p.peek()]; ok && p.peek() != 'V' {
		p.pos++
		return raw.TypeSignature{Kind: raw.SignaturePrimitive, Name: name}
	}
	return p.referenceType()
}

func (p *sigParser) referenceType() raw.TypeSignature {
	switch p.peek() {
	case 'L':
		return p.classType()
	case 'T':
		p.pos++
		name := p.identifier(";")
		p.expect(';')
		return raw.TypeSignature{Kind: raw.SignatureTypeVariable, Name: name}
	case '[':
		p.pos++
		component := p.javaType()
		return raw.TypeSignature{Kind: raw.SignatureArray, Component: &component}
	default:
		p.fail("expected reference type")
		return raw.TypeSignature{}
	}
}

// classType parses 'L' pkg/Outer<args>.Inner<args> ';'. Arguments of outer
// classes are dropped; the name uses '$' for nested classes.
func (p *sigParser) classType() raw.TypeSignature {
	p.expect('L')
	name := raw.InternalToName(p.identifier("<.;"))
	args := p.typeArguments()
	for p.err == nil && p.peek() == '.' {
		p.pos++
		name += "$" + p.identifier("<.;")
		args = p.typeArguments()
	}
	p.expect(';')
	if name == "" {
		p.fail("empty class name")
	}
	return raw.TypeSignature{Kind: raw.SignatureClass, Name: name, Arguments: args}
}

func (p *sigParser) typeArguments() []raw.TypeSignature {
	if p.peek() != '<' {
		return nil
	}
	p.pos++
	var args []raw.TypeSignature
	for p.err == nil && p.peek() != '>' {
		if p.done() {
			p.fail("unterminated type arguments")
			return nil
		}
		switch p.peek() {
		case '*':
			p.pos++
			args = append(args, raw.TypeSignature{Kind: raw.SignatureWildcard, Variance: raw.VarianceUnbounded})
		case '+', '-':
			variance := raw.VarianceExtends
			if p.peek() == '-' {
				variance = raw.VarianceSuper
			}
			p.pos++
			bound := p.referenceType()
			args = append(args, raw.TypeSignature{Kind: raw.SignatureWildcard, Variance: variance, Bound: &bound})
		default:
			args = append(args, p.referenceType())
		}
	}
	p.expect('>')
	return args
}
