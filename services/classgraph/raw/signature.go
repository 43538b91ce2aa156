// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package raw

// SignatureKind distinguishes the node types of a parsed generic signature.
type SignatureKind int

const (
	SignatureClass SignatureKind = iota
	SignatureTypeVariable
	SignatureArray
	SignaturePrimitive
	SignatureWildcard
)

// Variance is the bound direction of a wildcard.
type Variance int

const (
	VarianceUnbounded Variance = iota
	VarianceExtends
	VarianceSuper
)

// TypeSignature is a parsed reference type from a generic signature.
//
// For SignatureClass, Name is the dotted class name ("java.util.Map$Entry")
// and Arguments the type arguments of the innermost class. For
// SignatureTypeVariable Name is the variable name. For SignatureArray
// Component is set. For SignatureWildcard Bound is nil when unbounded.
type TypeSignature struct {
	Kind      SignatureKind   `json:"kind"`
	Name      string          `json:"name,omitempty"`
	Arguments []TypeSignature `json:"arguments,omitempty"`
	Component *TypeSignature  `json:"component,omitempty"`
	Variance  Variance        `json:"variance,omitempty"`
	Bound     *TypeSignature  `json:"bound,omitempty"`
}

// ErasedName returns the erased type name of the signature.
func (s *TypeSignature) ErasedName() string {
	switch s.Kind {
	case SignatureClass, SignaturePrimitive:
		return s.Name
	case SignatureArray:
		if s.Component == nil {
			return "java.lang.Object[]"
		}
		return s.Component.ErasedName() + "[]"
	default:
		return "java.lang.Object"
	}
}

// TypeParameterSignature is a formal type parameter with its bounds.
// A parameter without explicit bound has the single bound java.lang.Object.
type TypeParameterSignature struct {
	Name   string          `json:"name"`
	Bounds []TypeSignature `json:"bounds,omitempty"`
}

// ClassSignature is the parsed Signature attribute of a class.
type ClassSignature struct {
	TypeParameters []TypeParameterSignature `json:"type_parameters,omitempty"`
	SuperClass     *TypeSignature           `json:"super_class,omitempty"`
	Interfaces     []TypeSignature          `json:"interfaces,omitempty"`
}

// MethodSignature is the parsed Signature attribute of a method or constructor.
type MethodSignature struct {
	TypeParameters []TypeParameterSignature `json:"type_parameters,omitempty"`
	Parameters     []TypeSignature          `json:"parameters,omitempty"`
	Return         TypeSignature            `json:"return"`
	Throws         []TypeSignature          `json:"throws,omitempty"`
}

// ClassNames appends every class name mentioned by the signature to dst.
func (s *TypeSignature) ClassNames(dst []string) []string {
	if s == nil {
		return dst
	}
	switch s.Kind {
	case SignatureClass:
		dst = append(dst, s.Name)
		for i := range s.Arguments {
			dst = s.Arguments[i].ClassNames(dst)
		}
	case SignatureArray:
		dst = s.Component.ClassNames(dst)
	case SignatureWildcard:
		dst = s.Bound.ClassNames(dst)
	}
	return dst
}

func typeParameterClassNames(params []TypeParameterSignature, dst []string) []string {
	for i := range params {
		for j := range params[i].Bounds {
			dst = params[i].Bounds[j].ClassNames(dst)
		}
	}
	return dst
}

// ClassNames appends every class name mentioned by the signature to dst.
func (s *ClassSignature) ClassNames(dst []string) []string {
	if s == nil {
		return dst
	}
	dst = typeParameterClassNames(s.TypeParameters, dst)
	dst = s.SuperClass.ClassNames(dst)
	for i := range s.Interfaces {
		dst = s.Interfaces[i].ClassNames(dst)
	}
	return dst
}

// ClassNames appends every class name mentioned by the signature to dst.
func (s *MethodSignature) ClassNames(dst []string) []string {
	if s == nil {
		return dst
	}
	dst = typeParameterClassNames(s.TypeParameters, dst)
	for i := range s.Parameters {
		dst = s.Parameters[i].ClassNames(dst)
	}
	dst = s.Return.ClassNames(dst)
	for i := range s.Throws {
		dst = s.Throws[i].ClassNames(dst)
	}
	return dst
}
