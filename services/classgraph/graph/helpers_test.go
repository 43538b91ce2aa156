// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/classgraph/services/classgraph/graph"
	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

const (
	pub      = raw.ModifierPublic
	abstract = raw.ModifierPublic | raw.ModifierAbstract
)

func typeDescriptor(name string) string {
	dims := ""
	for raw.IsArray(name) {
		dims += "["
		name = raw.ComponentName(name)
	}
	switch name {
	case "void":
		return dims + "V"
	case "int":
		return dims + "I"
	case "long":
		return dims + "J"
	case "boolean":
		return dims + "Z"
	}
	return dims + "L" + strings.ReplaceAll(name, ".", "/") + ";"
}

func methodDescriptor(params []string, ret string) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range params {
		sb.WriteString(typeDescriptor(p))
	}
	sb.WriteByte(')')
	sb.WriteString(typeDescriptor(ret))
	return sb.String()
}

func classRecord(name, super string, interfaces ...string) *raw.ClassRecord {
	return &raw.ClassRecord{
		Name:         name,
		Kind:         raw.ClassKindClass,
		Modifiers:    pub,
		SuperName:    super,
		Interfaces:   interfaces,
		Source:       raw.SourceInfo{Location: "file:/classes/" + strings.ReplaceAll(name, ".", "/") + ".class"},
		MajorVersion: 61,
	}
}

func interfaceRecord(name string, supers ...string) *raw.ClassRecord {
	r := classRecord(name, "java.lang.Object", supers...)
	r.Kind = raw.ClassKindInterface
	r.Modifiers = abstract
	return r
}

func method(r *raw.ClassRecord, name string, mods raw.Modifiers, ret string, params ...string) *raw.MemberRecord {
	m := &raw.MemberRecord{
		Kind:           raw.MemberKindMethod,
		Owner:          r.Name,
		Name:           name,
		Descriptor:     methodDescriptor(params, ret),
		Modifiers:      mods,
		ParameterTypes: params,
		ReturnType:     ret,
	}
	r.Methods = append(r.Methods, m)
	return m
}

func constructor(r *raw.ClassRecord, params ...string) *raw.MemberRecord {
	m := &raw.MemberRecord{
		Kind:           raw.MemberKindConstructor,
		Owner:          r.Name,
		Name:           raw.ConstructorName,
		Descriptor:     methodDescriptor(params, "void"),
		Modifiers:      pub,
		ParameterTypes: params,
		ReturnType:     "void",
	}
	r.Constructors = append(r.Constructors, m)
	return m
}

func field(r *raw.ClassRecord, name string, mods raw.Modifiers, typ string) *raw.MemberRecord {
	m := &raw.MemberRecord{
		Kind:       raw.MemberKindField,
		Owner:      r.Name,
		Name:       name,
		Descriptor: typeDescriptor(typ),
		Modifiers:  mods,
		ReturnType: typ,
	}
	r.Fields = append(r.Fields, m)
	return m
}

func call(from *raw.MemberRecord, kind raw.AccessKind, owner, name, ret string, line int, params ...string) {
	desc := methodDescriptor(params, ret)
	if kind.IsFieldAccess() {
		desc = typeDescriptor(ret)
	}
	from.Accesses = append(from.Accesses, raw.AccessRecord{
		Kind:           kind,
		Owner:          owner,
		Name:           name,
		Descriptor:     desc,
		ParameterTypes: params,
		ReturnType:     ret,
		Line:           line,
	})
}

// objectRecord is a minimal java.lang.Object.
func objectRecord() *raw.ClassRecord {
	r := classRecord("java.lang.Object", "")
	constructor(r)
	method(r, "toString", pub, "java.lang.String")
	method(r, "hashCode", pub, "int")
	method(r, "equals", pub, "boolean", "java.lang.Object")
	method(r, "clone", raw.ModifierProtected, "java.lang.Object")
	return r
}

func link(t *testing.T, records ...*raw.ClassRecord) *graph.LinkResult {
	t.Helper()
	res, err := graph.NewLinker().Link(context.Background(), records)
	require.NoError(t, err)
	require.NotNil(t, res.Graph)
	return res
}

func fullNames(members []*graph.MemberNode) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.FullName()
	}
	return out
}
