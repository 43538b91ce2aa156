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

// resolveAccess dispatches on the access kind.
func resolveAccess(kind raw.AccessKind, owner *ClassNode, name, key string) []*MemberNode {
	var targets []*MemberNode
	switch {
	case kind.IsConstructorAccess():
		targets = resolveConstructor(owner, key)
	case kind.IsFieldAccess():
		targets = resolveField(owner, name)
	default:
		targets = resolveMethod(owner, name, key)
	}
	recordResolution(kind, len(targets))
	return targets
}

// resolveConstructor matches constructors on the owner only; constructors
// are never inherited.
func resolveConstructor(owner *ClassNode, key string) []*MemberNode {
	if owner == nil || owner.origin != OriginImported {
		return nil
	}
	for _, m := range owner.constructors {
		if m.paramKey == key {
			return []*MemberNode{m}
		}
	}
	return nil
}

// resolveField searches the owner, its superclass chain and then the
// interfaces of every class on that chain depth-first in declaration order.
// The first declaration wins. Private fields of ancestors are invisible.
func resolveField(owner *ClassNode, name string) []*MemberNode {
	if owner == nil || owner.origin != OriginImported {
		return nil
	}
	for c := owner; isImported(c); c = c.superclass {
		for _, f := range c.fields {
			if f.name == name && (c == owner || !f.IsPrivate()) {
				return []*MemberNode{f}
			}
		}
	}

	seen := make(map[*ClassNode]bool)
	var visit func(i *ClassNode) *MemberNode
	visit = func(i *ClassNode) *MemberNode {
		if seen[i] || !isImported(i) {
			return nil
		}
		seen[i] = true
		for _, f := range i.fields {
			if f.name == name && !f.IsPrivate() {
				return f
			}
		}
		for _, sup := range i.interfaces {
			if f := visit(sup); f != nil {
				return f
			}
		}
		return nil
	}
	for c := owner; isImported(c); c = c.superclass {
		for _, i := range c.interfaces {
			if f := visit(i); f != nil {
				return []*MemberNode{f}
			}
		}
	}
	return nil
}

// resolveMethod computes the dispatch targets of a method access.
//
// The owner and its superclass chain are searched first and the closest
// class declaration wins outright; when the owner is an interface it is
// searched before java.lang.Object. Otherwise the superinterfaces of every
// class on the chain are walked depth-first in declaration order, collecting
// one candidate per interface. Candidates then go through three filters:
//
//  1. a candidate is dropped when another candidate is declared on one of
//     its sub-interfaces, so an override hides what it overrides;
//  2. a candidate is dropped when another candidate returns a strict
//     subtype of its return type;
//  3. among the remaining candidates default methods hide abstract ones.
//
// Static interface methods and private methods are only found on the owner
// itself. Whatever survives is returned in depth-first order.
func resolveMethod(owner *ClassNode, name, key string) []*MemberNode {
	if owner == nil {
		return nil
	}
	if owner.origin == OriginArray {
		// Arrays inherit every method from java.lang.Object.
		owner = owner.graph.object
	}
	if !isImported(owner) {
		return nil
	}

	for c := owner; isImported(c); c = c.superclass {
		m := c.declaredMethod(name, key)
		if m == nil {
			continue
		}
		if c == owner {
			return []*MemberNode{m}
		}
		if m.IsPrivate() {
			continue
		}
		if owner.IsInterface() && (m.IsStatic() || !m.modifiers.Has(raw.ModifierPublic)) {
			continue
		}
		return []*MemberNode{m}
	}

	var candidates []*MemberNode
	seen := map[*ClassNode]bool{owner: true}
	var visit func(i *ClassNode)
	visit = func(i *ClassNode) {
		if seen[i] || !isImported(i) {
			return
		}
		seen[i] = true
		if m := i.declaredMethod(name, key); m != nil && !m.IsStatic() && !m.IsPrivate() {
			candidates = append(candidates, m)
		}
		for _, sup := range i.interfaces {
			visit(sup)
		}
	}
	for c := owner; isImported(c); c = c.superclass {
		for _, i := range c.interfaces {
			visit(i)
		}
	}
	if len(candidates) <= 1 {
		return candidates
	}

	candidates = maximallySpecific(candidates)
	candidates = narrowestReturn(candidates)
	return preferDefaults(candidates)
}

func isImported(c *ClassNode) bool {
	return c != nil && c.origin == OriginImported
}

// maximallySpecific drops candidates declared on a super-interface of
// another candidate's interface.
func maximallySpecific(candidates []*MemberNode) []*MemberNode {
	out := make([]*MemberNode, 0, len(candidates))
	for _, a := range candidates {
		hidden := false
		for _, b := range candidates {
			if a == b {
				continue
			}
			if _, ok := b.owner.ancestors[a.owner]; ok {
				hidden = true
				break
			}
		}
		if !hidden {
			out = append(out, a)
		}
	}
	return out
}

// preferDefaults drops abstract candidates when a default method exists.
// It runs after narrowestReturn, so it only decides between candidates whose
// return types are equal or unrelated.
func preferDefaults(candidates []*MemberNode) []*MemberNode {
	var defaults []*MemberNode
	for _, m := range candidates {
		if !m.IsAbstract() {
			defaults = append(defaults, m)
		}
	}
	if len(defaults) == 0 {
		return candidates
	}
	return defaults
}

// narrowestReturn drops candidates whose return type is a strict supertype
// of another candidate's return type.
func narrowestReturn(candidates []*MemberNode) []*MemberNode {
	out := make([]*MemberNode, 0, len(candidates))
	for _, a := range candidates {
		wider := false
		for _, b := range candidates {
			if a == b || a.returnType == b.returnType {
				continue
			}
			if b.returnType.IsAssignableTo(a.returnType) {
				wider = true
				break
			}
		}
		if !wider {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		// Only possible with a cyclic hierarchy.
		return candidates
	}
	return out
}
