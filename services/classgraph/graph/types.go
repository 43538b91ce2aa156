// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph links raw class records into an immutable class graph and
// resolves member accesses the way the virtual machine dispatches them.
//
// Every class name mentioned anywhere in the input has exactly one ClassNode.
// Classes without a record become stubs that carry only their name. After
// Link returns, the graph is never mutated; the only lazily computed state
// is the resolved target set of each AccessEdge, which is published once.
package graph

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

// Origin tells how a ClassNode came into existence.
type Origin int

const (
	// OriginImported nodes were built from a class record.
	OriginImported Origin = iota

	// OriginStub nodes are referenced by name only.
	OriginStub

	// OriginArray nodes represent array types and link their component.
	OriginArray

	// OriginPrimitive nodes represent primitive types and void.
	OriginPrimitive
)

// String returns the string representation of the Origin.
func (o Origin) String() string {
	switch o {
	case OriginImported:
		return "imported"
	case OriginStub:
		return "stub"
	case OriginArray:
		return "array"
	case OriginPrimitive:
		return "primitive"
	default:
		return "unknown"
	}
}

// ClassNode is one class, interface, array or primitive type of the graph.
//
// Thread Safety: Immutable after Link returns; safe for concurrent reads.
type ClassNode struct {
	name   string
	origin Origin

	kind      raw.ClassKind
	modifiers raw.Modifiers

	superclass *ClassNode
	interfaces []*ClassNode

	genericSuperclass *GenericType
	genericInterfaces []*GenericType
	typeParameters    []*TypeParameter

	fields            []*MemberNode
	methods           []*MemberNode
	constructors      []*MemberNode
	staticInitializer *MemberNode

	annotations     []*Annotation
	nesting         raw.NestingKind
	enclosing       *ClassNode
	enclosingMethod *raw.MethodRef
	referencedTypes []*ClassNode

	source       raw.SourceInfo
	majorVersion int

	component *ClassNode

	outgoing []*AccessEdge
	incoming []*AccessEdge

	// ancestors holds every transitive superclass and superinterface.
	ancestors map[*ClassNode]struct{}

	graph *Graph
}

// Name returns the fully-qualified name, e.g. "com.acme.Outer$Inner",
// "int" or "java.lang.String[]".
func (c *ClassNode) Name() string { return c.name }

// SimpleName returns the name without package and enclosing classes. It is
// empty for anonymous classes.
func (c *ClassNode) SimpleName() string { return raw.SimpleName(c.name) }

// PackageName returns the package of the class, of the element type for
// arrays, and "" for primitives and the default package.
func (c *ClassNode) PackageName() string { return raw.PackageOf(c.name) }

// Origin returns how the node came into existence.
func (c *ClassNode) Origin() Origin { return c.origin }

// Unresolved reports whether the node is a stub.
func (c *ClassNode) Unresolved() bool { return c.origin == OriginStub }

// Kind returns the class kind. Stubs, arrays and primitives report
// ClassKindClass.
func (c *ClassNode) Kind() raw.ClassKind { return c.kind }

// IsInterface reports whether the node is an interface or annotation type.
func (c *ClassNode) IsInterface() bool { return c.kind.IsInterface() }

// IsArray reports whether the node is an array type.
func (c *ClassNode) IsArray() bool { return c.origin == OriginArray }

// IsPrimitive reports whether the node is a primitive type or void.
func (c *ClassNode) IsPrimitive() bool { return c.origin == OriginPrimitive }

// Modifiers returns the class modifiers.
func (c *ClassNode) Modifiers() raw.Modifiers { return c.modifiers }

// Superclass returns the superclass, nil for java.lang.Object, interfaces
// without record, stubs, arrays and primitives.
func (c *ClassNode) Superclass() *ClassNode { return c.superclass }

// Interfaces returns the directly implemented or extended interfaces in
// declaration order.
func (c *ClassNode) Interfaces() []*ClassNode { return slices.Clone(c.interfaces) }

// GenericSuperclass returns the parameterized superclass, nil without
// generic signature.
func (c *ClassNode) GenericSuperclass() *GenericType { return c.genericSuperclass }

// GenericInterfaces returns the parameterized interfaces, nil without generic
// signature.
func (c *ClassNode) GenericInterfaces() []*GenericType { return slices.Clone(c.genericInterfaces) }

// TypeParameters returns the formal type parameters.
func (c *ClassNode) TypeParameters() []*TypeParameter { return slices.Clone(c.typeParameters) }

// Fields returns the declared fields.
func (c *ClassNode) Fields() []*MemberNode { return slices.Clone(c.fields) }

// Methods returns the declared methods.
func (c *ClassNode) Methods() []*MemberNode { return slices.Clone(c.methods) }

// Constructors returns the declared constructors.
func (c *ClassNode) Constructors() []*MemberNode { return slices.Clone(c.constructors) }

// StaticInitializer returns the static initializer, nil if absent.
func (c *ClassNode) StaticInitializer() *MemberNode { return c.staticInitializer }

// CodeUnits returns methods, constructors and the static initializer.
func (c *ClassNode) CodeUnits() []*MemberNode {
	out := make([]*MemberNode, 0, len(c.methods)+len(c.constructors)+1)
	out = append(out, c.methods...)
	out = append(out, c.constructors...)
	if c.staticInitializer != nil {
		out = append(out, c.staticInitializer)
	}
	return out
}

// Members returns fields followed by all code units.
func (c *ClassNode) Members() []*MemberNode {
	return append(slices.Clone(c.fields), c.CodeUnits()...)
}

// Field returns the declared field with the given name.
func (c *ClassNode) Field(name string) (*MemberNode, bool) {
	for _, f := range c.fields {
		if f.name == name {
			return f, true
		}
	}
	return nil, false
}

// Method returns the declared method with the given name and parameter
// type names. Of methods differing only in return type, the non-bridge
// declaration is returned.
func (c *ClassNode) Method(name string, parameterTypes ...string) (*MemberNode, bool) {
	m := c.declaredMethod(name, parameterKey(parameterTypes))
	return m, m != nil
}

// declaredMethod finds a declared method by name and parameter key. A
// non-bridge declaration is preferred over bridge methods with the same
// parameters.
func (c *ClassNode) declaredMethod(name, key string) *MemberNode {
	var found *MemberNode
	for _, m := range c.methods {
		if m.name != name || m.paramKey != key {
			continue
		}
		if !m.modifiers.Has(raw.ModifierBridge) {
			return m
		}
		if found == nil {
			found = m
		}
	}
	return found
}

// Constructor returns the declared constructor with the given parameter type
// names.
func (c *ClassNode) Constructor(parameterTypes ...string) (*MemberNode, bool) {
	key := parameterKey(parameterTypes)
	for _, m := range c.constructors {
		if m.paramKey == key {
			return m, true
		}
	}
	return nil, false
}

// Annotations returns the class annotations.
func (c *ClassNode) Annotations() []*Annotation { return slices.Clone(c.annotations) }

// Annotation returns the annotation of the given type.
func (c *ClassNode) Annotation(typeName string) (*Annotation, bool) {
	return findAnnotation(c.annotations, typeName)
}

// Nesting returns how the class is nested.
func (c *ClassNode) Nesting() raw.NestingKind { return c.nesting }

// EnclosingClass returns the enclosing class of nested classes.
func (c *ClassNode) EnclosingClass() *ClassNode { return c.enclosing }

// EnclosingCodeUnit returns the method or constructor a local or anonymous
// class is declared in, nil if unknown or not applicable.
func (c *ClassNode) EnclosingCodeUnit() *MemberNode {
	if c.enclosing == nil || c.enclosingMethod == nil {
		return nil
	}
	for _, m := range c.enclosing.CodeUnits() {
		if m.name == c.enclosingMethod.Name && m.descriptor == c.enclosingMethod.Descriptor {
			return m
		}
	}
	return nil
}

// ReferencedTypes returns the classes used by type-use instructions.
func (c *ClassNode) ReferencedTypes() []*ClassNode { return slices.Clone(c.referencedTypes) }

// Source returns where the class was read from.
func (c *ClassNode) Source() raw.SourceInfo { return c.source }

// MajorVersion returns the class-file major version, 0 for non-imported nodes.
func (c *ClassNode) MajorVersion() int { return c.majorVersion }

// ComponentType returns the component of an array type, nil otherwise.
func (c *ClassNode) ComponentType() *ClassNode { return c.component }

// ElementType returns the innermost component of an array type, the node
// itself otherwise.
func (c *ClassNode) ElementType() *ClassNode {
	e := c
	for e.component != nil {
		e = e.component
	}
	return e
}

// AccessesFromSelf returns the accesses made by the code units of this class.
func (c *ClassNode) AccessesFromSelf() []*AccessEdge { return slices.Clone(c.outgoing) }

// AccessesToSelf returns the accesses whose declared target owner is this class.
func (c *ClassNode) AccessesToSelf() []*AccessEdge { return slices.Clone(c.incoming) }

// IsAssignableTo reports whether a value of this type can be assigned to a
// variable of type other.
//
// Every reference type is assignable to java.lang.Object. Arrays are
// assignable to java.lang.Cloneable, java.io.Serializable and to arrays whose
// reference component they are assignable to.
func (c *ClassNode) IsAssignableTo(other *ClassNode) bool {
	if c == nil || other == nil {
		return false
	}
	if c == other {
		return true
	}
	if c.origin == OriginPrimitive || other.origin == OriginPrimitive {
		return false
	}
	if other.name == objectName {
		return true
	}
	if c.origin == OriginArray {
		if other.origin == OriginArray {
			if c.component.origin == OriginPrimitive {
				return false
			}
			return c.component.IsAssignableTo(other.component)
		}
		return other.name == cloneableName || other.name == serializableName
	}
	_, ok := c.ancestors[other]
	return ok
}

// String returns the class name.
func (c *ClassNode) String() string { return c.name }

// MemberNode is one field, method, constructor or static initializer.
//
// Thread Safety: Immutable after Link returns; safe for concurrent reads.
type MemberNode struct {
	kind       raw.MemberKind
	owner      *ClassNode
	name       string
	descriptor string
	modifiers  raw.Modifiers

	parameterTypes []*ClassNode
	returnType     *ClassNode
	throws         []*ClassNode
	paramKey       string

	typeParameters    []*TypeParameter
	genericParameters []*GenericType
	genericReturn     *GenericType

	annotations []*Annotation
	accesses    []*AccessEdge
	firstLine   int
}

// Kind returns the member kind.
func (m *MemberNode) Kind() raw.MemberKind { return m.kind }

// Owner returns the declaring class.
func (m *MemberNode) Owner() *ClassNode { return m.owner }

// Name returns the member name; "<init>" for constructors.
func (m *MemberNode) Name() string { return m.name }

// Descriptor returns the class-file descriptor.
func (m *MemberNode) Descriptor() string { return m.descriptor }

// Modifiers returns the member modifiers.
func (m *MemberNode) Modifiers() raw.Modifiers { return m.modifiers }

// IsStatic reports whether the member is static.
func (m *MemberNode) IsStatic() bool { return m.modifiers.Has(raw.ModifierStatic) }

// IsPrivate reports whether the member is private.
func (m *MemberNode) IsPrivate() bool { return m.modifiers.Has(raw.ModifierPrivate) }

// IsAbstract reports whether the member is abstract.
func (m *MemberNode) IsAbstract() bool { return m.modifiers.Has(raw.ModifierAbstract) }

// ParameterTypes returns the erased parameter types.
func (m *MemberNode) ParameterTypes() []*ClassNode { return slices.Clone(m.parameterTypes) }

// ReturnType returns the erased return type; the field type for fields and
// the void node for void methods.
func (m *MemberNode) ReturnType() *ClassNode { return m.returnType }

// Type is ReturnType for fields.
func (m *MemberNode) Type() *ClassNode { return m.returnType }

// Throws returns the declared exception types.
func (m *MemberNode) Throws() []*ClassNode { return slices.Clone(m.throws) }

// TypeParameters returns the formal type parameters of generic methods.
func (m *MemberNode) TypeParameters() []*TypeParameter { return slices.Clone(m.typeParameters) }

// GenericParameterTypes returns the parameterized parameter types, nil
// without generic signature.
func (m *MemberNode) GenericParameterTypes() []*GenericType { return slices.Clone(m.genericParameters) }

// GenericReturnType returns the parameterized return or field type, nil
// without generic signature.
func (m *MemberNode) GenericReturnType() *GenericType { return m.genericReturn }

// Annotations returns the member annotations.
func (m *MemberNode) Annotations() []*Annotation { return slices.Clone(m.annotations) }

// Annotation returns the annotation of the given type.
func (m *MemberNode) Annotation(typeName string) (*Annotation, bool) {
	return findAnnotation(m.annotations, typeName)
}

// Accesses returns the accesses made by a code unit, in bytecode order.
func (m *MemberNode) Accesses() []*AccessEdge { return slices.Clone(m.accesses) }

// FirstLine returns the first source line of a code unit, 0 if unknown.
func (m *MemberNode) FirstLine() int { return m.firstLine }

// FullName returns "Owner.name" for fields and "Owner.name(p1,p2)" for code
// units.
func (m *MemberNode) FullName() string {
	if m.kind == raw.MemberKindField {
		return m.owner.name + "." + m.name
	}
	return m.owner.name + "." + m.name + "(" + m.paramKey + ")"
}

// String returns the full name.
func (m *MemberNode) String() string { return m.FullName() }

func parameterKey(names []string) string {
	return strings.Join(names, ",")
}

// AccessTarget is the target of an access as declared at the access site.
type AccessTarget struct {
	Owner          *ClassNode
	Name           string
	Descriptor     string
	ParameterTypes []*ClassNode
	ReturnType     *ClassNode

	paramKey string
}

// FullName returns the declared target in MemberNode.FullName form.
func (t AccessTarget) FullName() string {
	if t.Descriptor != "" && t.Descriptor[0] != '(' {
		return t.Owner.name + "." + t.Name
	}
	return t.Owner.name + "." + t.Name + "(" + t.paramKey + ")"
}

// AccessEdge is one access from a code unit to a declared target.
//
// Thread Safety:
//
//	Safe for concurrent use. The resolved target set is computed on first
//	request; concurrent first requests may compute it more than once, but
//	exactly one result is published and returned to every caller.
type AccessEdge struct {
	origin *MemberNode
	target AccessTarget
	kind   raw.AccessKind
	line   int

	resolved atomic.Pointer[[]*MemberNode]
}

// Origin returns the code unit containing the access.
func (e *AccessEdge) Origin() *MemberNode { return e.origin }

// Declared returns the target as declared at the access site.
func (e *AccessEdge) Declared() AccessTarget {
	t := e.target
	t.ParameterTypes = slices.Clone(t.ParameterTypes)
	return t
}

// Kind returns the access kind.
func (e *AccessEdge) Kind() raw.AccessKind { return e.kind }

// Line returns the source line of the access, 0 if unknown.
func (e *AccessEdge) Line() int { return e.line }

// Targets returns the members the access dispatches to.
//
// Description:
//
//	Resolves the declared target with the member resolution rules. The
//	result is empty when the declared owner is a stub or no declaration
//	matches; several members are returned when dispatch is ambiguous, in
//	depth-first order.
//
// Thread Safety: Safe for concurrent use. The result is memoized.
func (e *AccessEdge) Targets() []*MemberNode {
	return slices.Clone(e.targets())
}

func (e *AccessEdge) targets() []*MemberNode {
	if p := e.resolved.Load(); p != nil {
		return *p
	}
	computed := resolveAccess(e.kind, e.target.Owner, e.target.Name, e.target.paramKey)
	e.resolved.CompareAndSwap(nil, &computed)
	return *e.resolved.Load()
}

// Target returns the first resolved target, nil if there is none.
func (e *AccessEdge) Target() *MemberNode {
	ts := e.targets()
	if len(ts) == 0 {
		return nil
	}
	return ts[0]
}

// String returns a short description of the access.
func (e *AccessEdge) String() string {
	return fmt.Sprintf("%s %s %s:%d", e.origin.FullName(), e.kind, e.target.FullName(), e.line)
}

// TypeParameter is a formal type parameter of a class or method.
type TypeParameter struct {
	Name   string
	Bounds []*GenericType
}

// GenericKind distinguishes the shapes of a GenericType.
type GenericKind int

const (
	GenericClass GenericKind = iota
	GenericTypeVariable
	GenericWildcard
	GenericArray
	GenericPrimitive
)

// GenericType is a type as written in a generic signature.
type GenericType struct {
	Kind GenericKind

	// Class is set for GenericClass and GenericPrimitive.
	Class     *ClassNode
	Arguments []*GenericType

	// Name is the variable name of a GenericTypeVariable; Variable the
	// declaring parameter, nil when it is not declared in scope.
	Name     string
	Variable *TypeParameter

	Component *GenericType

	// Variance and Bound describe a GenericWildcard. Bound is nil when
	// unbounded.
	Variance raw.Variance
	Bound    *GenericType

	erasure *ClassNode
}

// Erasure returns the erased type.
func (t *GenericType) Erasure() *ClassNode { return t.erasure }

// String returns the type as it would be written in source.
func (t *GenericType) String() string {
	switch t.Kind {
	case GenericClass:
		if len(t.Arguments) == 0 {
			return t.Class.name
		}
		args := make([]string, len(t.Arguments))
		for i, a := range t.Arguments {
			args[i] = a.String()
		}
		return t.Class.name + "<" + strings.Join(args, ", ") + ">"
	case GenericTypeVariable:
		return t.Name
	case GenericWildcard:
		switch {
		case t.Bound == nil:
			return "?"
		case t.Variance == raw.VarianceSuper:
			return "? super " + t.Bound.String()
		default:
			return "? extends " + t.Bound.String()
		}
	case GenericArray:
		return t.Component.String() + "[]"
	case GenericPrimitive:
		return t.Class.name
	default:
		return "?"
	}
}

// Annotation is a resolved annotation. Element values are read through
// accessors that return copies.
type Annotation struct {
	typ    *ClassNode
	values map[string]AnnotationValue
}

// Type returns the annotation type.
func (a *Annotation) Type() *ClassNode { return a.typ }

// Value returns the element value with the given name.
func (a *Annotation) Value(name string) (AnnotationValue, bool) {
	v, ok := a.values[name]
	if !ok {
		return AnnotationValue{}, false
	}
	return v.clone(), true
}

// Names returns the element names in sorted order.
func (a *Annotation) Names() []string {
	return slices.Sorted(maps.Keys(a.values))
}

// Values returns a copy of all element values keyed by name.
func (a *Annotation) Values() map[string]AnnotationValue {
	out := make(map[string]AnnotationValue, len(a.values))
	for k, v := range a.values {
		out[k] = v.clone()
	}
	return out
}

// AnnotationValue is a resolved annotation element value. Tag uses the
// class-file element tags (see raw.ElementValue).
type AnnotationValue struct {
	Tag        byte
	Int        int64
	Float      float64
	String     string
	EnumType   *ClassNode
	EnumName   string
	Class      *ClassNode
	Annotation *Annotation
	Elements   []AnnotationValue
}

// clone copies the array elements so callers cannot reach graph storage.
func (v AnnotationValue) clone() AnnotationValue {
	if v.Elements != nil {
		elems := make([]AnnotationValue, len(v.Elements))
		for i, e := range v.Elements {
			elems[i] = e.clone()
		}
		v.Elements = elems
	}
	return v
}

func findAnnotation(anns []*Annotation, typeName string) (*Annotation, bool) {
	for _, a := range anns {
		if a.typ.name == typeName {
			return a, true
		}
	}
	return nil, false
}
