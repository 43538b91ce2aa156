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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

func TestParseFieldDescriptor(t *testing.T) {
	tests := []struct {
		desc    string
		want    string
		wantErr bool
	}{
		{desc: "I", want: "int"},
		{desc: "Z", want: "boolean"},
		{desc: "Ljava/lang/String;", want: "java.lang.String"},
		{desc: "[[Ljava/lang/Object;", want: "java.lang.Object[][]"},
		{desc: "[J", want: "long[]"},
		{desc: "Ljava/util/Map$Entry;", want: "java.util.Map$Entry"},
		{desc: "", wantErr: true},
		{desc: "V", wantErr: true},
		{desc: "Ljava/lang/String", wantErr: true},
		{desc: "II", wantErr: true},
		{desc: "Q", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, err := ParseFieldDescriptor(tt.desc)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMethodDescriptor(t *testing.T) {
	params, ret, err := ParseMethodDescriptor("(IJ[Ljava/lang/String;)V")
	require.NoError(t, err)
	assert.Equal(t, []string{"int", "long", "java.lang.String[]"}, params)
	assert.Equal(t, "void", ret)

	params, ret, err = ParseMethodDescriptor("()[[D")
	require.NoError(t, err)
	assert.Empty(t, params)
	assert.Equal(t, "double[][]", ret)

	for _, bad := range []string{"", "I)V", "(I", "(I)", "(V)V", "(I)VV"} {
		_, _, err := ParseMethodDescriptor(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseSignatures_Errors(t *testing.T) {
	_, err := ParseClassSignature("<:Ljava/lang/Object;>Ljava/lang/Object;")
	assert.Error(t, err)

	_, err = ParseClassSignature("Ljava/lang/Object")
	assert.Error(t, err)

	_, err = ParseFieldSignature("")
	assert.Error(t, err)

	_, err = ParseFieldSignature("TT;x")
	assert.Error(t, err)

	_, err = ParseMethodSignature("(TT;")
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestParseClassSignature_InnerClassArguments(t *testing.T) {
	sig, err := ParseClassSignature("Lcom/acme/Outer<Ljava/lang/String;>.Inner<Ljava/lang/Integer;>;Ljava/io/Serializable;")
	require.NoError(t, err)
	assert.Equal(t, "com.acme.Outer$Inner", sig.SuperClass.Name)
	require.Len(t, sig.SuperClass.Arguments, 1)
	assert.Equal(t, "java.lang.Integer", sig.SuperClass.Arguments[0].Name)
	assert.Equal(t, []string{"com.acme.Outer$Inner", "java.lang.Integer", "java.io.Serializable"}, sig.ClassNames(nil))
}

func TestParseMethodSignature_InterfaceBounds(t *testing.T) {
	sig, err := ParseMethodSignature("<T::Ljava/lang/Comparable<-TT;>;>([TT;I)V")
	require.NoError(t, err)
	require.Len(t, sig.TypeParameters, 1)
	require.Len(t, sig.TypeParameters[0].Bounds, 1)
	bound := sig.TypeParameters[0].Bounds[0]
	assert.Equal(t, "java.lang.Comparable", bound.Name)
	assert.Equal(t, raw.VarianceSuper, bound.Arguments[0].Variance)
	require.Len(t, sig.Parameters, 2)
	assert.Equal(t, raw.SignatureArray, sig.Parameters[0].Kind)
	assert.Equal(t, "java.lang.Object[]", sig.Parameters[0].ErasedName())
	assert.Equal(t, "int", sig.Parameters[1].Name)
	assert.Equal(t, "void", sig.Return.Name)
}

func TestInstructionLength(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		pc   int
		want int
	}{
		{name: "nop", code: []byte{0x00}, want: 1},
		{name: "bipush", code: []byte{0x10, 1}, want: 2},
		{name: "invokeinterface", code: []byte{0xb9, 0, 1, 1, 0}, want: 5},
		{name: "multianewarray", code: []byte{0xc5, 0, 1, 2}, want: 4},
		{name: "wide iinc", code: []byte{0xc4, 0x84, 0, 1, 0, 1}, want: 6},
		{name: "wide aload", code: []byte{0xc4, 0x19, 0, 1}, want: 4},
		{
			name: "tableswitch at 0",
			code: []byte{0xaa, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			want: 20,
		},
		{
			name: "tableswitch at 1",
			code: []byte{0x00, 0xaa, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			pc:   1,
			want: 19,
		},
		{
			name: "lookupswitch at 3",
			code: []byte{0, 0, 0, 0xab, 0, 0, 0, 0, 0, 0, 0, 0},
			pc:   3,
			want: 9,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := instructionLength(tt.code, tt.pc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := instructionLength([]byte{0xfe}, 0)
	assert.True(t, errors.Is(err, ErrMalformed))
	_, err = instructionLength([]byte{0xaa, 0, 0}, 0)
	assert.True(t, errors.Is(err, ErrTruncated))
}
