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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(name, super string, location string) *ClassRecord {
	return &ClassRecord{
		Name:      name,
		SuperName: super,
		Source:    SourceInfo{Location: location},
	}
}

func TestAccumulator_DuplicateLastWins(t *testing.T) {
	acc := NewAccumulator()
	first := testRecord("com.acme.Foo", "java.lang.Object", "file:/a/Foo.class")
	second := testRecord("com.acme.Foo", "java.lang.Object", "file:/b/Foo.class")

	acc.Add(first, 0)
	acc.Add(second, 1)

	require.Equal(t, 1, acc.Len())
	assert.Same(t, second, acc.Records()[0])

	diags := acc.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, DiagnosticDuplicateClass, diags[0].Kind)
	assert.Equal(t, "file:/b/Foo.class", diags[0].Location)
	assert.Contains(t, diags[0].Message, "file:/a/Foo.class")
}

func TestAccumulator_DuplicateOutOfOrder(t *testing.T) {
	acc := NewAccumulator()
	later := testRecord("com.acme.Foo", "", "file:/b/Foo.class")
	earlier := testRecord("com.acme.Foo", "", "file:/a/Foo.class")

	acc.Add(later, 5)
	acc.Add(earlier, 2)

	assert.Same(t, later, acc.Records()[0])
	assert.Len(t, acc.Diagnostics(), 1)
}

func TestAccumulator_AddResolvedNeverOverrides(t *testing.T) {
	acc := NewAccumulator()
	scanned := testRecord("com.acme.Foo", "", "file:/a/Foo.class")
	acc.Add(scanned, 0)

	assert.False(t, acc.AddResolved(testRecord("com.acme.Foo", "", "jar:file:/lib.jar!/com/acme/Foo.class")))
	assert.True(t, acc.AddResolved(testRecord("com.acme.Bar", "", "jar:file:/lib.jar!/com/acme/Bar.class")))
	assert.Same(t, scanned, acc.Records()[1])
	assert.Empty(t, acc.Diagnostics())
}

func TestAccumulator_Missing(t *testing.T) {
	acc := NewAccumulator()
	rec := testRecord("com.acme.Child", "com.acme.Parent", "file:/Child.class")
	rec.Interfaces = []string{"com.acme.Api"}
	rec.Methods = []*MemberRecord{{
		Kind:           MemberKindMethod,
		Owner:          rec.Name,
		Name:           "run",
		ParameterTypes: []string{"int", "com.acme.Arg[]"},
		ReturnType:     "void",
		Accesses: []AccessRecord{{
			Kind:       AccessCall,
			Owner:      "com.acme.Parent",
			Name:       "helper",
			ReturnType: "com.acme.Result",
		}},
	}}
	rec.Annotations = []AnnotationRecord{{
		Type: "com.acme.Marker",
		Values: []AnnotationElement{{
			Name:  "value",
			Value: ElementValue{Tag: 'c', Class: "com.acme.Tag"},
		}},
	}}
	acc.Add(rec, 0)
	acc.Add(testRecord("com.acme.Api", "java.lang.Object", "file:/Api.class"), 1)

	missing := acc.Missing()
	assert.Equal(t, []string{"com.acme.Parent", "java.lang.Object"}, missing[RefSupertype])
	assert.Equal(t, []string{"com.acme.Marker", "com.acme.Tag"}, missing[RefAnnotation])
	assert.Equal(t, []string{"com.acme.Arg", "com.acme.Result"}, missing[RefMemberType])
	assert.Empty(t, missing[RefAccessTarget], "Parent is already reported as supertype")
}

func TestNames(t *testing.T) {
	tests := []struct {
		name       string
		pkg        string
		simpleName string
	}{
		{"com.acme.Foo", "com.acme", "Foo"},
		{"com.acme.Outer$Inner", "com.acme", "Inner"},
		{"com.acme.Outer$1", "com.acme", ""},
		{"com.acme.Outer$1Local", "com.acme", "Local"},
		{"int[]", "", "int[]"},
		{"java.lang.String[][]", "java.lang", "String[][]"},
		{"Default", "", "Default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.pkg, PackageOf(tt.name))
			assert.Equal(t, tt.simpleName, SimpleName(tt.name))
		})
	}
}

func TestModifiers_Names(t *testing.T) {
	m := ModifierPublic | ModifierStatic | ModifierFinal
	assert.Equal(t, []string{"PUBLIC", "STATIC", "FINAL"}, m.Names())
	assert.True(t, m.Has(ModifierStatic|ModifierFinal))
	assert.False(t, m.Has(ModifierAbstract))
	assert.Equal(t, "PUBLIC STATIC FINAL", m.String())
}
