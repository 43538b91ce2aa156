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
	"strings"

	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

// Opcodes the scanner inspects.
const (
	opLdc             = 0x12
	opLdcW            = 0x13
	opIinc            = 0x84
	opTableswitch     = 0xaa
	opLookupswitch    = 0xab
	opGetstatic       = 0xb2
	opPutstatic       = 0xb3
	opGetfield        = 0xb4
	opPutfield        = 0xb5
	opInvokevirtual   = 0xb6
	opInvokespecial   = 0xb7
	opInvokestatic    = 0xb8
	opInvokeinterface = 0xb9
	opInvokedynamic   = 0xba
	opNew             = 0xbb
	opAnewarray       = 0xbd
	opCheckcast       = 0xc0
	opInstanceof      = 0xc1
	opWide            = 0xc4
	opMultianewarray  = 0xc5
)

const (
	lambdaMetafactory = "java.lang.invoke.LambdaMetafactory"
	lambdaBodyPrefix  = "lambda$"
)

// opcodeLength holds the fixed length of every instruction including the
// opcode byte. Zero marks variable-length or undefined opcodes.
var opcodeLength = func() [256]uint8 {
	var t [256]uint8
	set := func(from, to int, n uint8) {
		for op := from; op <= to; op++ {
			t[op] = n
		}
	}
	set(0x00, 0x0f, 1) // nop, constants
	set(0x10, 0x10, 2) // bipush
	set(0x11, 0x11, 3) // sipush
	set(0x12, 0x12, 2) // ldc
	set(0x13, 0x14, 3) // ldc_w, ldc2_w
	set(0x15, 0x19, 2) // loads
	set(0x1a, 0x35, 1)
	set(0x36, 0x3a, 2) // stores
	set(0x3b, 0x83, 1)
	set(0x84, 0x84, 3) // iinc
	set(0x85, 0x98, 1)
	set(0x99, 0xa8, 3) // branches, goto, jsr
	set(0xa9, 0xa9, 2) // ret
	set(0xac, 0xb1, 1) // returns
	set(0xb2, 0xb8, 3) // field access, invokevirtual/special/static
	set(0xb9, 0xba, 5) // invokeinterface, invokedynamic
	set(0xbb, 0xbb, 3) // new
	set(0xbc, 0xbc, 2) // newarray
	set(0xbd, 0xbd, 3) // anewarray
	set(0xbe, 0xbf, 1)
	set(0xc0, 0xc1, 3) // checkcast, instanceof
	set(0xc2, 0xc3, 1) // monitors
	set(0xc5, 0xc5, 4) // multianewarray
	set(0xc6, 0xc7, 3) // ifnull, ifnonnull
	set(0xc8, 0xc9, 5) // goto_w, jsr_w
	return t
}()

// lambdaLinks records which code unit creates which synthetic lambda body.
type lambdaLinks struct {
	creates map[*raw.MemberRecord][]raw.MethodRef
	bodies  map[raw.MethodRef]bool
}

func (l *lambdaLinks) add(creator *raw.MemberRecord, body raw.MethodRef) {
	if l.creates == nil {
		l.creates = make(map[*raw.MemberRecord][]raw.MethodRef)
		l.bodies = make(map[raw.MethodRef]bool)
	}
	l.creates[creator] = append(l.creates[creator], body)
	l.bodies[body] = true
}

// instructionLength returns the length of the instruction at pc.
func instructionLength(code []byte, pc int) (int, error) {
	op := code[pc]
	switch op {
	case opTableswitch:
		pad := (4 - (pc+1)%4) % 4
		base := pc + 1 + pad
		if base+12 > len(code) {
			return 0, ErrTruncated
		}
		low := int32(be32(code[base+4:]))
		high := int32(be32(code[base+8:]))
		if high < low {
			return 0, malformed("tableswitch at %d has high %d < low %d", pc, high, low)
		}
		return 1 + pad + 12 + int(int64(high)-int64(low)+1)*4, nil
	case opLookupswitch:
		pad := (4 - (pc+1)%4) % 4
		base := pc + 1 + pad
		if base+8 > len(code) {
			return 0, ErrTruncated
		}
		npairs := int32(be32(code[base+4:]))
		if npairs < 0 {
			return 0, malformed("lookupswitch at %d has %d pairs", pc, npairs)
		}
		return 1 + pad + 8 + int(npairs)*8, nil
	case opWide:
		if pc+1 >= len(code) {
			return 0, ErrTruncated
		}
		if code[pc+1] == opIinc {
			return 6, nil
		}
		return 4, nil
	}
	n := int(opcodeLength[op])
	if n == 0 {
		return 0, malformed("undefined opcode 0x%02x at %d", op, pc)
	}
	return n, nil
}

func be16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// scanCode extracts member accesses and type uses from one method body.
func scanCode(st *classState, body *codeBody) error {
	code := body.code
	for pc := 0; pc < len(code); {
		n, err := instructionLength(code, pc)
		if err != nil {
			return err
		}
		if pc+n > len(code) {
			return ErrTruncated
		}
		op := code[pc]
		switch op {
		case opGetstatic, opGetfield, opPutstatic, opPutfield:
			if err := fieldAccess(st, body, pc, op); err != nil {
				return err
			}
		case opInvokevirtual, opInvokespecial, opInvokestatic, opInvokeinterface:
			if err := methodAccess(st, body, pc, op); err != nil {
				return err
			}
		case opInvokedynamic:
			if err := dynamicAccess(st, body, pc); err != nil {
				return err
			}
		case opNew, opAnewarray, opCheckcast, opInstanceof, opMultianewarray:
			name, err := st.cp.className(be16(code[pc+1:]))
			if err != nil {
				return err
			}
			st.referenceType(name)
		case opLdc, opLdcW:
			var idx uint16
			if op == opLdc {
				idx = uint16(code[pc+1])
			} else {
				idx = be16(code[pc+1:])
			}
			if int(idx) < len(st.cp) && st.cp[idx].tag == tagClass {
				name, err := st.cp.className(idx)
				if err != nil {
					return err
				}
				st.referenceType(name)
			}
		}
		pc += n
	}
	return nil
}

// referenceType records a type use. Array types are reduced to their element
// and primitives are dropped.
func (st *classState) referenceType(name string) {
	elem := raw.ElementName(name)
	if raw.IsPrimitive(elem) || elem == st.record.Name {
		return
	}
	for _, existing := range st.record.ReferencedTypes {
		if existing == elem {
			return
		}
	}
	st.record.ReferencedTypes = append(st.record.ReferencedTypes, elem)
}

func fieldAccess(st *classState, body *codeBody, pc int, op byte) error {
	owner, name, desc, err := st.cp.memberRef(be16(body.code[pc+1:]))
	if err != nil {
		return err
	}
	typ, err := ParseFieldDescriptor(desc)
	if err != nil {
		return err
	}
	kind := raw.AccessFieldGet
	if op == opPutfield || op == opPutstatic {
		kind = raw.AccessFieldSet
	}
	body.member.Accesses = append(body.member.Accesses, raw.AccessRecord{
		Kind:       kind,
		Owner:      owner,
		Name:       name,
		Descriptor: desc,
		ReturnType: typ,
		Line:       body.lineAt(pc),
	})
	return nil
}

func methodAccess(st *classState, body *codeBody, pc int, op byte) error {
	owner, name, desc, err := st.cp.memberRef(be16(body.code[pc+1:]))
	if err != nil {
		return err
	}
	params, ret, err := ParseMethodDescriptor(desc)
	if err != nil {
		return err
	}
	kind := raw.AccessCall
	if op == opInvokespecial && name == raw.ConstructorName {
		kind = raw.AccessConstructorCall
	}
	body.member.Accesses = append(body.member.Accesses, raw.AccessRecord{
		Kind:           kind,
		Owner:          owner,
		Name:           name,
		Descriptor:     desc,
		ParameterTypes: params,
		ReturnType:     ret,
		Line:           body.lineAt(pc),
	})
	return nil
}

// dynamicAccess handles invokedynamic call sites bootstrapped by the lambda
// metafactory. A handle to a lambda body of this class links the body to the
// creating method; any other handle is a method or constructor reference.
// Other bootstraps (string concatenation, records, switch patterns) carry no
// member access and are ignored.
func dynamicAccess(st *classState, body *codeBody, pc int) error {
	indy, err := st.cp.entry(be16(body.code[pc+1:]), tagInvokeDynamic)
	if err != nil {
		return err
	}
	if int(indy.a) >= len(st.bootstrap) {
		return malformed("invokedynamic at %d uses bootstrap method %d of %d", pc, indy.a, len(st.bootstrap))
	}
	bm := st.bootstrap[indy.a]
	bootstrap, err := st.cp.methodHandle(bm.ref)
	if err != nil {
		return err
	}
	if bootstrap.owner != lambdaMetafactory || len(bm.args) < 2 {
		return nil
	}
	impl, err := st.cp.methodHandle(bm.args[1])
	if err != nil {
		return err
	}

	if impl.owner == st.record.Name && strings.HasPrefix(impl.name, lambdaBodyPrefix) {
		st.lambdas.add(body.member, raw.MethodRef{Name: impl.name, Descriptor: impl.desc})
		return nil
	}

	params, ret, err := ParseMethodDescriptor(impl.desc)
	if err != nil {
		return err
	}
	kind := raw.AccessMethodReference
	if impl.kind == refNewInvokeSpecial {
		kind = raw.AccessConstructorReference
	}
	body.member.Accesses = append(body.member.Accesses, raw.AccessRecord{
		Kind:           kind,
		Owner:          impl.owner,
		Name:           impl.name,
		Descriptor:     impl.desc,
		ParameterTypes: params,
		ReturnType:     ret,
		Line:           body.lineAt(pc),
	})
	return nil
}

// foldLambdas moves the accesses of synthetic lambda bodies to the code units
// that create them and removes the bodies from the method list. Lambdas
// created inside other lambdas are followed transitively; a cycle is cut at
// the first repeated body.
func foldLambdas(st *classState) {
	if len(st.lambdas.bodies) == 0 {
		return
	}
	rec := st.record

	byRef := make(map[raw.MethodRef]*raw.MemberRecord, len(st.lambdas.bodies))
	kept := rec.Methods[:0]
	for _, m := range rec.Methods {
		ref := raw.MethodRef{Name: m.Name, Descriptor: m.Descriptor}
		if st.lambdas.bodies[ref] {
			byRef[ref] = m
			continue
		}
		kept = append(kept, m)
	}
	rec.Methods = kept

	var collect func(ref raw.MethodRef, seen map[raw.MethodRef]bool) []raw.AccessRecord
	collect = func(ref raw.MethodRef, seen map[raw.MethodRef]bool) []raw.AccessRecord {
		if seen[ref] {
			return nil
		}
		seen[ref] = true
		m, ok := byRef[ref]
		if !ok {
			return nil
		}
		out := append([]raw.AccessRecord(nil), m.Accesses...)
		for _, nested := range st.lambdas.creates[m] {
			out = append(out, collect(nested, seen)...)
		}
		return out
	}

	for _, unit := range rec.CodeUnits() {
		refs := st.lambdas.creates[unit]
		if len(refs) == 0 {
			continue
		}
		seen := make(map[raw.MethodRef]bool)
		for _, ref := range refs {
			unit.Accesses = append(unit.Accesses, collect(ref, seen)...)
		}
	}
}
