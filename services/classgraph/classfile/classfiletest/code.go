// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classfiletest

// Code assembles a method body. Instructions are appended in order; Line sets
// the source line recorded for the following instructions.
type Code struct {
	class *Class
	code  []byte
	lines []byte
	nline uint16
}

// Line starts a LineNumberTable entry at the next instruction.
func (c *Code) Line(line int) *Code {
	c.lines = append(c.lines, u2(uint16(len(c.code)))...)
	c.lines = append(c.lines, u2(uint16(line))...)
	c.nline++
	return c
}

// Op appends raw bytes.
func (c *Code) Op(b ...byte) *Code {
	c.code = append(c.code, b...)
	return c
}

func (c *Code) op2(op byte, idx uint16) *Code {
	c.code = append(c.code, op)
	c.code = append(c.code, u2(idx)...)
	return c
}

// GetField appends getfield.
func (c *Code) GetField(owner, name, desc string) *Code {
	return c.op2(0xb4, c.class.pool.fieldRef(owner, name, desc))
}

// PutField appends putfield.
func (c *Code) PutField(owner, name, desc string) *Code {
	return c.op2(0xb5, c.class.pool.fieldRef(owner, name, desc))
}

// GetStatic appends getstatic.
func (c *Code) GetStatic(owner, name, desc string) *Code {
	return c.op2(0xb2, c.class.pool.fieldRef(owner, name, desc))
}

// PutStatic appends putstatic.
func (c *Code) PutStatic(owner, name, desc string) *Code {
	return c.op2(0xb3, c.class.pool.fieldRef(owner, name, desc))
}

// InvokeVirtual appends invokevirtual.
func (c *Code) InvokeVirtual(owner, name, desc string) *Code {
	return c.op2(0xb6, c.class.pool.methodRef(owner, name, desc))
}

// InvokeSpecial appends invokespecial.
func (c *Code) InvokeSpecial(owner, name, desc string) *Code {
	return c.op2(0xb7, c.class.pool.methodRef(owner, name, desc))
}

// InvokeStatic appends invokestatic.
func (c *Code) InvokeStatic(owner, name, desc string) *Code {
	return c.op2(0xb8, c.class.pool.methodRef(owner, name, desc))
}

// InvokeInterface appends invokeinterface.
func (c *Code) InvokeInterface(owner, name, desc string, argSlots byte) *Code {
	c.op2(0xb9, c.class.pool.interfaceMethodRef(owner, name, desc))
	c.code = append(c.code, argSlots+1, 0)
	return c
}

// New appends new.
func (c *Code) New(class string) *Code {
	return c.op2(0xbb, c.class.pool.class(class))
}

// ANewArray appends anewarray.
func (c *Code) ANewArray(class string) *Code {
	return c.op2(0xbd, c.class.pool.class(class))
}

// CheckCast appends checkcast.
func (c *Code) CheckCast(class string) *Code {
	return c.op2(0xc0, c.class.pool.class(class))
}

// InstanceOf appends instanceof.
func (c *Code) InstanceOf(class string) *Code {
	return c.op2(0xc1, c.class.pool.class(class))
}

// LdcClass appends ldc_w of a class constant.
func (c *Code) LdcClass(class string) *Code {
	return c.op2(0x13, c.class.pool.class(class))
}

// LdcString appends ldc of a string constant. The string must land in the
// first 255 pool entries.
func (c *Code) LdcString(s string) *Code {
	idx := c.class.pool.str(s)
	c.code = append(c.code, 0x12, byte(idx))
	return c
}

// LdcLong appends ldc2_w of a long constant.
func (c *Code) LdcLong(v int64) *Code {
	return c.op2(0x14, c.class.pool.long(v))
}

// LdcDouble appends ldc2_w of a double constant.
func (c *Code) LdcDouble(v float64) *Code {
	return c.op2(0x14, c.class.pool.double(v))
}

// TableSwitch appends a tableswitch with all offsets zero.
func (c *Code) TableSwitch(low, high int32) *Code {
	c.code = append(c.code, 0xaa)
	for len(c.code)%4 != 0 {
		c.code = append(c.code, 0)
	}
	c.code = append(c.code, u4(0)...)
	c.code = append(c.code, u4(uint32(low))...)
	c.code = append(c.code, u4(uint32(high))...)
	for i := low; i <= high; i++ {
		c.code = append(c.code, u4(0)...)
	}
	return c
}

// LookupSwitch appends a lookupswitch with npairs zero-offset pairs.
func (c *Code) LookupSwitch(npairs int) *Code {
	c.code = append(c.code, 0xab)
	for len(c.code)%4 != 0 {
		c.code = append(c.code, 0)
	}
	c.code = append(c.code, u4(0)...)
	c.code = append(c.code, u4(uint32(npairs))...)
	for i := 0; i < npairs; i++ {
		c.code = append(c.code, u4(uint32(i))...)
		c.code = append(c.code, u4(0)...)
	}
	return c
}

// WideIinc appends wide iinc.
func (c *Code) WideIinc(local, delta uint16) *Code {
	c.code = append(c.code, 0xc4, 0x84)
	c.code = append(c.code, u2(local)...)
	c.code = append(c.code, u2(delta)...)
	return c
}

// Lambda appends an invokedynamic bootstrapped by the lambda metafactory
// whose implementation handle points at implOwner.implName.
func (c *Code) Lambda(samName, samDesc string, implKind byte, implOwner, implName, implDesc string) *Code {
	p := c.class.pool
	bsm := p.methodHandle(RefInvokeStatic, p.methodRef(LambdaMetafactory, "metafactory",
		"(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;"+
			"Ljava/lang/invoke/MethodType;Ljava/lang/invoke/MethodHandle;Ljava/lang/invoke/MethodType;)"+
			"Ljava/lang/invoke/CallSite;"))
	var implRef uint16
	if implKind == RefInvokeInterface {
		implRef = p.interfaceMethodRef(implOwner, implName, implDesc)
	} else {
		implRef = p.methodRef(implOwner, implName, implDesc)
	}
	impl := p.methodHandle(implKind, implRef)
	idx := c.class.addBootstrap(bsm, p.methodType(samDesc), impl, p.methodType(implDesc))
	c.op2(0xba, p.invokeDynamic(idx, samName, "()Ljava/lang/Object;"))
	c.code = append(c.code, 0, 0)
	return c
}

// StringConcat appends an invokedynamic bootstrapped by StringConcatFactory.
func (c *Code) StringConcat(recipe string) *Code {
	p := c.class.pool
	bsm := p.methodHandle(RefInvokeStatic, p.methodRef("java.lang.invoke.StringConcatFactory", "makeConcatWithConstants",
		"(Ljava/lang/invoke/MethodHandles$Lookup;Ljava/lang/String;Ljava/lang/invoke/MethodType;"+
			"Ljava/lang/String;[Ljava/lang/Object;)Ljava/lang/invoke/CallSite;"))
	idx := c.class.addBootstrap(bsm, p.str(recipe))
	c.op2(0xba, p.invokeDynamic(idx, "makeConcatWithConstants", "(Ljava/lang/String;)Ljava/lang/String;"))
	c.code = append(c.code, 0, 0)
	return c
}

// Return appends return.
func (c *Code) Return() *Code {
	return c.Op(0xb1)
}

func (c *Code) attribute() []byte {
	p := c.class.pool
	body := u2(8) // max_stack
	body = append(body, u2(8)...)
	body = append(body, u4(uint32(len(c.code)))...)
	body = append(body, c.code...)
	body = append(body, u2(0)...) // exception table
	var attrs [][]byte
	if c.nline > 0 {
		attrs = append(attrs, attribute(p, "LineNumberTable", append(u2(c.nline), c.lines...)))
	}
	body = append(body, attributes(attrs)...)
	return attribute(p, "Code", body)
}
