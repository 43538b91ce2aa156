// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

// typeScope is a chain of type parameter declarations, innermost first.
type typeScope struct {
	params []*TypeParameter
	parent *typeScope
}

func (s *typeScope) lookup(name string) *TypeParameter {
	for sc := s; sc != nil; sc = sc.parent {
		for _, p := range sc.params {
			if p.Name == name {
				return p
			}
		}
	}
	return nil
}

// classScope returns the scope of c: its own type parameters followed by
// those of its enclosing classes. Static member classes do not see the
// parameters of their enclosing class.
func (s *linkState) classScope(c *ClassNode) *typeScope {
	root := &typeScope{params: c.typeParameters}
	cur := root
	seen := map[*ClassNode]bool{c: true}
	for inner := c; inner.enclosing != nil && !seen[inner.enclosing]; inner = inner.enclosing {
		if inner.nesting == raw.NestingMember && inner.modifiers.Has(raw.ModifierStatic) {
			break
		}
		seen[inner.enclosing] = true
		cur.parent = &typeScope{params: inner.enclosing.typeParameters}
		cur = cur.parent
	}
	return root
}

// declareTypeParameters creates parameters without bounds, so bounds may
// refer to any parameter of the same declaration.
func declareTypeParameters(sigs []raw.TypeParameterSignature) []*TypeParameter {
	if len(sigs) == 0 {
		return nil
	}
	out := make([]*TypeParameter, len(sigs))
	for i := range sigs {
		out[i] = &TypeParameter{Name: sigs[i].Name}
	}
	return out
}

func (s *linkState) boundTypeParameters(params []*TypeParameter, sigs []raw.TypeParameterSignature, scope *typeScope) {
	for i, p := range params {
		for j := range sigs[i].Bounds {
			p.Bounds = append(p.Bounds, s.genericType(&sigs[i].Bounds[j], scope))
		}
	}
}

// genericType converts a parsed signature into a GenericType with its
// erasure resolved through the name index.
func (s *linkState) genericType(sig *raw.TypeSignature, scope *typeScope) *GenericType {
	if sig == nil {
		return nil
	}
	switch sig.Kind {
	case raw.SignatureClass:
		t := &GenericType{Kind: GenericClass, Class: s.node(sig.Name)}
		for i := range sig.Arguments {
			t.Arguments = append(t.Arguments, s.genericType(&sig.Arguments[i], scope))
		}
		t.erasure = t.Class
		return t
	case raw.SignaturePrimitive:
		c := s.node(sig.Name)
		return &GenericType{Kind: GenericPrimitive, Class: c, erasure: c}
	case raw.SignatureTypeVariable:
		t := &GenericType{Kind: GenericTypeVariable, Name: sig.Name, Variable: scope.lookup(sig.Name)}
		t.erasure = s.graph.object
		if t.Variable != nil && len(t.Variable.Bounds) > 0 && t.Variable.Bounds[0].erasure != nil {
			t.erasure = t.Variable.Bounds[0].erasure
		}
		return t
	case raw.SignatureArray:
		t := &GenericType{Kind: GenericArray, Component: s.genericType(sig.Component, scope)}
		if t.Component != nil && t.Component.erasure != nil {
			t.erasure = s.node(t.Component.erasure.name + "[]")
		} else {
			t.erasure = s.node(objectName + "[]")
		}
		return t
	case raw.SignatureWildcard:
		t := &GenericType{Kind: GenericWildcard, Variance: sig.Variance, Bound: s.genericType(sig.Bound, scope)}
		t.erasure = s.graph.object
		if t.Bound != nil && sig.Variance == raw.VarianceExtends {
			t.erasure = t.Bound.erasure
		}
		return t
	default:
		return &GenericType{Kind: GenericClass, Class: s.graph.object, erasure: s.graph.object}
	}
}
