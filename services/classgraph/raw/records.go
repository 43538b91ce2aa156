// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package raw holds the unlinked records produced by the class-file reader.
//
// Records carry names, never pointers to other classes. They are created once per
// scanned unit, accumulated for a whole import run and discarded after linking.
package raw

import "strings"

// Modifiers is a bit set of declaration modifiers.
//
// The class-file format reuses flag bits with different meanings per context
// (0x0040 is volatile on fields and bridge on methods), so the reader translates
// access flags into this context-free set.
type Modifiers uint32

const (
	ModifierPublic Modifiers = 1 << iota
	ModifierProtected
	ModifierPrivate
	ModifierStatic
	ModifierFinal
	ModifierAbstract
	ModifierSynchronized
	ModifierVolatile
	ModifierTransient
	ModifierNative
	ModifierStrict
	ModifierSynthetic
	ModifierBridge
	ModifierVarargs
)

var modifierNames = []struct {
	mod  Modifiers
	name string
}{
	{ModifierPublic, "PUBLIC"},
	{ModifierProtected, "PROTECTED"},
	{ModifierPrivate, "PRIVATE"},
	{ModifierStatic, "STATIC"},
	{ModifierFinal, "FINAL"},
	{ModifierAbstract, "ABSTRACT"},
	{ModifierSynchronized, "SYNCHRONIZED"},
	{ModifierVolatile, "VOLATILE"},
	{ModifierTransient, "TRANSIENT"},
	{ModifierNative, "NATIVE"},
	{ModifierStrict, "STRICTFP"},
	{ModifierSynthetic, "SYNTHETIC"},
	{ModifierBridge, "BRIDGE"},
	{ModifierVarargs, "VARARGS"},
}

// Has reports whether all bits of m2 are set.
func (m Modifiers) Has(m2 Modifiers) bool {
	return m&m2 == m2
}

// Names returns the modifier names in declaration order.
func (m Modifiers) Names() []string {
	names := make([]string, 0, 4)
	for _, mn := range modifierNames {
		if m&mn.mod != 0 {
			names = append(names, mn.name)
		}
	}
	return names
}

// String returns the modifiers joined by spaces.
func (m Modifiers) String() string {
	return strings.Join(m.Names(), " ")
}

// ClassKind distinguishes the flavours of type declarations.
type ClassKind int

const (
	ClassKindClass ClassKind = iota
	ClassKindInterface
	ClassKindEnum
	ClassKindAnnotation
	ClassKindRecord
	ClassKindModule
)

// String returns the string representation of the ClassKind.
func (k ClassKind) String() string {
	switch k {
	case ClassKindClass:
		return "class"
	case ClassKindInterface:
		return "interface"
	case ClassKindEnum:
		return "enum"
	case ClassKindAnnotation:
		return "annotation"
	case ClassKindRecord:
		return "record"
	case ClassKindModule:
		return "module"
	default:
		return "unknown"
	}
}

// IsInterface reports whether the kind dispatches like an interface.
func (k ClassKind) IsInterface() bool {
	return k == ClassKindInterface || k == ClassKindAnnotation
}

// NestingKind tells whether and how a class is nested in another one.
type NestingKind int

const (
	NestingTopLevel NestingKind = iota
	NestingMember
	NestingLocal
	NestingAnonymous
)

// String returns the string representation of the NestingKind.
func (k NestingKind) String() string {
	switch k {
	case NestingTopLevel:
		return "top_level"
	case NestingMember:
		return "member"
	case NestingLocal:
		return "local"
	case NestingAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// MemberKind distinguishes fields from code units.
type MemberKind int

const (
	MemberKindField MemberKind = iota
	MemberKindMethod
	MemberKindConstructor
	MemberKindStaticInitializer
)

// String returns the string representation of the MemberKind.
func (k MemberKind) String() string {
	switch k {
	case MemberKindField:
		return "field"
	case MemberKindMethod:
		return "method"
	case MemberKindConstructor:
		return "constructor"
	case MemberKindStaticInitializer:
		return "static_initializer"
	default:
		return "unknown"
	}
}

// Special member names used by the class-file format.
const (
	ConstructorName       = "<init>"
	StaticInitializerName = "<clinit>"
)

// AccessKind is the kind of an access from a code unit to a member.
type AccessKind int

const (
	AccessCall AccessKind = iota
	AccessFieldGet
	AccessFieldSet
	AccessConstructorCall
	AccessMethodReference
	AccessConstructorReference
)

// String returns the string representation of the AccessKind.
func (k AccessKind) String() string {
	switch k {
	case AccessCall:
		return "call"
	case AccessFieldGet:
		return "field_get"
	case AccessFieldSet:
		return "field_set"
	case AccessConstructorCall:
		return "constructor_call"
	case AccessMethodReference:
		return "method_reference"
	case AccessConstructorReference:
		return "constructor_reference"
	default:
		return "unknown"
	}
}

// IsFieldAccess reports whether the access targets a field.
func (k AccessKind) IsFieldAccess() bool {
	return k == AccessFieldGet || k == AccessFieldSet
}

// IsConstructorAccess reports whether the access targets a constructor.
func (k AccessKind) IsConstructorAccess() bool {
	return k == AccessConstructorCall || k == AccessConstructorReference
}

// SourceInfo describes where a class record was read from.
type SourceInfo struct {
	// Location is the URI-like location of the binary unit,
	// e.g. "file:/repo/build/classes/com/acme/Foo.class" or
	// "jar:file:/libs/acme.jar!/com/acme/Foo.class".
	Location string `json:"location"`

	// FileName is the SourceFile attribute, e.g. "Foo.java". May be empty.
	FileName string `json:"file_name,omitempty"`

	// Digest is the hex SHA256 of the binary unit.
	Digest string `json:"digest,omitempty"`
}

// MethodRef names a method by name and descriptor.
type MethodRef struct {
	Name       string `json:"name"`
	Descriptor string `json:"descriptor"`
}

// ClassRecord is one scanned class prior to linking.
//
// Thread Safety: Not safe for concurrent mutation. The reader creates a record
// and hands it over; afterwards it is treated as immutable.
type ClassRecord struct {
	Name      string    `json:"name"`
	Kind      ClassKind `json:"kind"`
	Modifiers Modifiers `json:"modifiers"`

	// SuperName is empty only for java.lang.Object and module descriptors.
	SuperName  string   `json:"super_name,omitempty"`
	Interfaces []string `json:"interfaces,omitempty"`

	// Signature is the raw generic signature; GenericSignature its parsed form.
	Signature        string          `json:"signature,omitempty"`
	GenericSignature *ClassSignature `json:"generic_signature,omitempty"`

	Fields            []*MemberRecord `json:"fields,omitempty"`
	Methods           []*MemberRecord `json:"methods,omitempty"`
	Constructors      []*MemberRecord `json:"constructors,omitempty"`
	StaticInitializer *MemberRecord   `json:"static_initializer,omitempty"`

	Annotations []AnnotationRecord `json:"annotations,omitempty"`

	Nesting         NestingKind `json:"nesting"`
	EnclosingClass  string      `json:"enclosing_class,omitempty"`
	EnclosingMethod *MethodRef  `json:"enclosing_method,omitempty"`

	// ReferencedTypes lists classes used only by type-use instructions
	// (new, checkcast, instanceof, anewarray, ldc of a class constant).
	ReferencedTypes []string `json:"referenced_types,omitempty"`

	Source       SourceInfo `json:"source"`
	MajorVersion int        `json:"major_version"`
}

// CodeUnits returns methods, constructors and the static initializer.
func (r *ClassRecord) CodeUnits() []*MemberRecord {
	units := make([]*MemberRecord, 0, len(r.Methods)+len(r.Constructors)+1)
	units = append(units, r.Methods...)
	units = append(units, r.Constructors...)
	if r.StaticInitializer != nil {
		units = append(units, r.StaticInitializer)
	}
	return units
}

// PackageName returns the package part of the class name.
func (r *ClassRecord) PackageName() string {
	return PackageOf(r.Name)
}

// MemberRecord is a field, method, constructor or static initializer prior to linking.
type MemberRecord struct {
	Kind       MemberKind `json:"kind"`
	Owner      string     `json:"owner"`
	Name       string     `json:"name"`
	Descriptor string     `json:"descriptor"`
	Modifiers  Modifiers  `json:"modifiers"`

	// ParameterTypes and ReturnType are the erased type names of the descriptor.
	// For fields ReturnType is the field type.
	ParameterTypes []string `json:"parameter_types,omitempty"`
	ReturnType     string   `json:"return_type"`
	Throws         []string `json:"throws,omitempty"`

	Signature string `json:"signature,omitempty"`
	// GenericMethod is set for methods and constructors with a parsed signature,
	// GenericField for fields.
	GenericMethod *MethodSignature `json:"generic_method,omitempty"`
	GenericField  *TypeSignature   `json:"generic_field,omitempty"`

	Annotations []AnnotationRecord `json:"annotations,omitempty"`
	Accesses    []AccessRecord     `json:"accesses,omitempty"`

	// FirstLine is the smallest source line of the body, 0 if unknown.
	FirstLine int `json:"first_line,omitempty"`
}

// AccessRecord is one access site found in a code unit.
type AccessRecord struct {
	Kind           AccessKind `json:"kind"`
	Owner          string     `json:"owner"`
	Name           string     `json:"name"`
	Descriptor     string     `json:"descriptor"`
	ParameterTypes []string   `json:"parameter_types,omitempty"`
	ReturnType     string     `json:"return_type"`
	Line           int        `json:"line"`
}

// AnnotationRecord is an annotation with its element values.
type AnnotationRecord struct {
	Type   string              `json:"type"`
	Values []AnnotationElement `json:"values,omitempty"`
}

// AnnotationElement is one name/value pair of an annotation.
type AnnotationElement struct {
	Name  string       `json:"name"`
	Value ElementValue `json:"value"`
}

// ElementValue is an annotation element value. Tag follows the class-file
// element_value tags: B C D F I J S Z for primitives, s for strings, e for enum
// constants, c for class literals, @ for nested annotations and [ for arrays.
type ElementValue struct {
	Tag        byte              `json:"tag"`
	Int        int64             `json:"int,omitempty"`
	Float      float64           `json:"float,omitempty"`
	String     string            `json:"string,omitempty"`
	EnumType   string            `json:"enum_type,omitempty"`
	EnumName   string            `json:"enum_name,omitempty"`
	Class      string            `json:"class,omitempty"`
	Annotation *AnnotationRecord `json:"annotation,omitempty"`
	Elements   []ElementValue    `json:"elements,omitempty"`
}
