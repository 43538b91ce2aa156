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
	"slices"
	"sort"
	"strings"
)

const (
	objectName       = "java.lang.Object"
	cloneableName    = "java.lang.Cloneable"
	serializableName = "java.io.Serializable"
)

// Graph is an immutable, fully linked class graph.
//
// Description:
//
//	Produced by Linker.Link. Every class name referenced anywhere in the
//	imported records can be looked up; names without a record resolve to
//	stub nodes. The graph exposes read-only traversal by name, by package,
//	over all imported classes and over all accesses.
//
// Thread Safety:
//
//	Safe for unsynchronized concurrent reads, including concurrent first
//	resolution of different or identical access edges.
type Graph struct {
	nodes    map[string]*ClassNode
	imported []*ClassNode
	stubs    []*ClassNode
	packages map[string]*Package
	accesses []*AccessEdge

	// accessesByName indexes edges by declared target member name.
	accessesByName map[string][]*AccessEdge

	object *ClassNode
}

// Class returns the node for a class name. Any name referenced by an
// imported class is found; the node may be a stub.
func (g *Graph) Class(name string) (*ClassNode, bool) {
	c, ok := g.nodes[name]
	return c, ok
}

// MustClass is Class for names known to exist. It panics otherwise.
func (g *Graph) MustClass(name string) *ClassNode {
	c, ok := g.nodes[name]
	if !ok {
		panic("graph: no class " + name)
	}
	return c
}

// Classes returns all imported classes sorted by name.
func (g *Graph) Classes() []*ClassNode { return slices.Clone(g.imported) }

// Stubs returns all stub classes sorted by name.
func (g *Graph) Stubs() []*ClassNode { return slices.Clone(g.stubs) }

// NodeCount returns the number of nodes of every origin.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// Contains reports whether name was imported from a record.
func (g *Graph) Contains(name string) bool {
	c, ok := g.nodes[name]
	return ok && c.origin == OriginImported
}

// Package returns the package with the given name. The root package has the
// name "".
func (g *Graph) Package(name string) (*Package, bool) {
	p, ok := g.packages[name]
	return p, ok
}

// Accesses returns every access edge of the graph, grouped by origin class
// in name order and in bytecode order within a code unit.
func (g *Graph) Accesses() []*AccessEdge { return slices.Clone(g.accesses) }

// ResolveMethod returns the methods a call to owner.name(parameterTypes)
// dispatches to. The result is empty for unknown or stub owners.
func (g *Graph) ResolveMethod(owner, name string, parameterTypes ...string) []*MemberNode {
	c, ok := g.nodes[owner]
	if !ok {
		return nil
	}
	return resolveMethod(c, name, parameterKey(parameterTypes))
}

// ResolveField returns the field an access to owner.name resolves to.
func (g *Graph) ResolveField(owner, name string) []*MemberNode {
	c, ok := g.nodes[owner]
	if !ok {
		return nil
	}
	return resolveField(c, name)
}

// ResolveConstructor returns the constructor of owner with the given
// parameter types.
func (g *Graph) ResolveConstructor(owner string, parameterTypes ...string) []*MemberNode {
	c, ok := g.nodes[owner]
	if !ok {
		return nil
	}
	return resolveConstructor(c, parameterKey(parameterTypes))
}

// AccessesTo returns the accesses whose resolved targets include member.
//
// Thread Safety: Safe for concurrent use. Resolves every candidate edge with
// the member's name on first call.
func (g *Graph) AccessesTo(member *MemberNode) []*AccessEdge {
	if member == nil {
		return nil
	}
	var out []*AccessEdge
	for _, e := range g.accessesByName[member.name] {
		if slices.Contains(e.targets(), member) {
			out = append(out, e)
		}
	}
	return out
}

// Package is one package of the graph, holding its classes and direct
// sub-packages.
type Package struct {
	name        string
	parent      *Package
	classes     []*ClassNode
	subpackages []*Package
}

// Name returns the fully-qualified package name.
func (p *Package) Name() string { return p.name }

// RelativeName returns the last segment of the package name.
func (p *Package) RelativeName() string {
	if i := strings.LastIndexByte(p.name, '.'); i >= 0 {
		return p.name[i+1:]
	}
	return p.name
}

// Parent returns the enclosing package, nil for the root.
func (p *Package) Parent() *Package { return p.parent }

// Classes returns the imported classes directly in this package, by name.
func (p *Package) Classes() []*ClassNode { return slices.Clone(p.classes) }

// Subpackages returns the direct sub-packages, by name.
func (p *Package) Subpackages() []*Package { return slices.Clone(p.subpackages) }

// AllClasses returns the classes of this package and every sub-package.
func (p *Package) AllClasses() []*ClassNode {
	out := slices.Clone(p.classes)
	for _, sub := range p.subpackages {
		out = append(out, sub.AllClasses()...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// buildPackages creates the package tree of the imported classes. Every
// ancestor of a package exists, down to the root "".
func buildPackages(classes []*ClassNode) map[string]*Package {
	pkgs := map[string]*Package{"": {name: ""}}
	var ensure func(name string) *Package
	ensure = func(name string) *Package {
		if p, ok := pkgs[name]; ok {
			return p
		}
		parentName := ""
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			parentName = name[:i]
		}
		parent := ensure(parentName)
		p := &Package{name: name, parent: parent}
		parent.subpackages = append(parent.subpackages, p)
		pkgs[name] = p
		return p
	}
	for _, c := range classes {
		p := ensure(c.PackageName())
		p.classes = append(p.classes, c)
	}
	for _, p := range pkgs {
		sort.Slice(p.subpackages, func(i, j int) bool { return p.subpackages[i].name < p.subpackages[j].name })
	}
	return pkgs
}
