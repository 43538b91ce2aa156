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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

// Supported class-file major versions (JDK 1.1 through JDK 25).
const (
	MinMajorVersion = 45
	MaxMajorVersion = 69

	classMagic = 0xCAFEBABE
)

// Class access flags.
const (
	accPublic       = 0x0001
	accPrivate      = 0x0002
	accProtected    = 0x0004
	accStatic       = 0x0008
	accFinal        = 0x0010
	accSynchronized = 0x0020
	accVolatile     = 0x0040
	accBridge       = 0x0040
	accTransient    = 0x0080
	accVarargs      = 0x0080
	accNative       = 0x0100
	accInterface    = 0x0200
	accAbstract     = 0x0400
	accStrict       = 0x0800
	accSynthetic    = 0x1000
	accAnnotation   = 0x2000
	accEnum         = 0x4000
	accModule       = 0x8000
)

// ReaderOptions configures Reader behavior.
type ReaderOptions struct {
	// MaxMajorVersion is the highest accepted class-file major version.
	// Default: MaxMajorVersion
	MaxMajorVersion int

	// ComputeDigest records a SHA256 digest of every unit in SourceInfo.Digest.
	// Default: true
	ComputeDigest bool

	// Logger receives debug output about dropped optional data (for example
	// malformed generic signatures). May be nil.
	Logger *slog.Logger
}

// ReaderOption is a functional option for configuring Reader.
type ReaderOption func(*ReaderOptions)

// WithMaxMajorVersion sets the highest accepted class-file major version.
func WithMaxMajorVersion(v int) ReaderOption {
	return func(o *ReaderOptions) {
		o.MaxMajorVersion = v
	}
}

// WithDigest enables or disables unit digests.
func WithDigest(enabled bool) ReaderOption {
	return func(o *ReaderOptions) {
		o.ComputeDigest = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ReaderOption {
	return func(o *ReaderOptions) {
		o.Logger = logger
	}
}

// Reader decodes class files.
//
// Thread Safety:
//
//	Reader is stateless after construction and safe for concurrent use.
//	Each Read call works on its own buffers.
type Reader struct {
	options ReaderOptions
}

// NewReader creates a Reader with the given options.
func NewReader(opts ...ReaderOption) *Reader {
	options := ReaderOptions{
		MaxMajorVersion: MaxMajorVersion,
		ComputeDigest:   true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Reader{options: options}
}

// classState holds the per-unit decoding state.
type classState struct {
	cp       constantPool
	record   *raw.ClassRecord
	location string

	bootstrap []bootstrapMethod
	bodies    []*codeBody
	lambdas   lambdaLinks
}

// Read decodes one binary unit.
//
// Description:
//
//	Decodes the complete class-file structure and returns the unlinked record.
//	Accesses are extracted from method bodies, lambda bodies are folded into
//	the methods that create them, nested classes keep their enclosing class.
//
// Inputs:
//
//	data - The complete bytes of the unit.
//	location - URI-like location recorded in SourceInfo.Location.
//
// Outputs:
//
//	*raw.ClassRecord - The decoded record.
//	error - ErrBadMagic, ErrTruncated, ErrUnsupportedVersion or ErrMalformed,
//	wrapped with the location. The record is nil whenever error is non-nil.
//
// Thread Safety: Safe for concurrent use.
func (r *Reader) Read(data []byte, location string) (*raw.ClassRecord, error) {
	rec, err := r.read(data, location)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}
	return rec, nil
}

func (r *Reader) read(data []byte, location string) (*raw.ClassRecord, error) {
	c := newCursor(data)
	if c.u4() != classMagic {
		if c.err != nil {
			return nil, c.err
		}
		return nil, ErrBadMagic
	}
	c.u2() // minor
	major := int(c.u2())
	if c.err != nil {
		return nil, c.err
	}
	if major < MinMajorVersion || major > r.options.MaxMajorVersion {
		return nil, fmt.Errorf("%w: major version %d (supported %d..%d)",
			ErrUnsupportedVersion, major, MinMajorVersion, r.options.MaxMajorVersion)
	}

	cp, err := readConstantPool(c)
	if err != nil {
		return nil, err
	}

	st := &classState{
		cp:       cp,
		location: location,
		record: &raw.ClassRecord{
			MajorVersion: major,
			Source:       raw.SourceInfo{Location: location},
		},
	}
	if r.options.ComputeDigest {
		sum := sha256.Sum256(data)
		st.record.Source.Digest = hex.EncodeToString(sum[:])
	}

	flags := c.u2()
	thisIdx := c.u2()
	superIdx := c.u2()
	if c.err != nil {
		return nil, c.err
	}
	if st.record.Name, err = cp.className(thisIdx); err != nil {
		return nil, err
	}
	if superIdx != 0 {
		if st.record.SuperName, err = cp.className(superIdx); err != nil {
			return nil, err
		}
	}
	ifaceCount := int(c.u2())
	for i := 0; i < ifaceCount; i++ {
		name, err := cp.className(c.u2())
		if c.err != nil {
			return nil, c.err
		}
		if err != nil {
			return nil, err
		}
		st.record.Interfaces = append(st.record.Interfaces, name)
	}
	st.record.Modifiers = classModifiers(flags)
	st.record.Kind = classKind(flags, st.record.SuperName)

	if err := r.readFields(c, st); err != nil {
		return nil, err
	}
	if err := r.readMethods(c, st); err != nil {
		return nil, err
	}
	if err := r.readClassAttributes(c, st); err != nil {
		return nil, err
	}
	if c.err != nil {
		return nil, c.err
	}

	// Bodies are scanned last: invokedynamic needs the BootstrapMethods
	// attribute, which follows the methods.
	for _, body := range st.bodies {
		if err := scanCode(st, body); err != nil {
			return nil, fmt.Errorf("method %s%s: %w", body.member.Name, body.member.Descriptor, err)
		}
	}
	foldLambdas(st)

	return st.record, nil
}

func classModifiers(flags uint16) raw.Modifiers {
	var m raw.Modifiers
	if flags&accPublic != 0 {
		m |= raw.ModifierPublic
	}
	if flags&accPrivate != 0 {
		m |= raw.ModifierPrivate
	}
	if flags&accProtected != 0 {
		m |= raw.ModifierProtected
	}
	if flags&accStatic != 0 {
		m |= raw.ModifierStatic
	}
	if flags&accFinal != 0 {
		m |= raw.ModifierFinal
	}
	if flags&accAbstract != 0 {
		m |= raw.ModifierAbstract
	}
	if flags&accSynthetic != 0 {
		m |= raw.ModifierSynthetic
	}
	return m
}

func classKind(flags uint16, superName string) raw.ClassKind {
	switch {
	case flags&accModule != 0:
		return raw.ClassKindModule
	case flags&accAnnotation != 0:
		return raw.ClassKindAnnotation
	case flags&accInterface != 0:
		return raw.ClassKindInterface
	case flags&accEnum != 0:
		return raw.ClassKindEnum
	case superName == "java.lang.Record":
		return raw.ClassKindRecord
	default:
		return raw.ClassKindClass
	}
}

func fieldModifiers(flags uint16) raw.Modifiers {
	m := classModifiers(flags &^ accAbstract)
	if flags&accVolatile != 0 {
		m |= raw.ModifierVolatile
	}
	if flags&accTransient != 0 {
		m |= raw.ModifierTransient
	}
	return m
}

func methodModifiers(flags uint16) raw.Modifiers {
	m := classModifiers(flags)
	if flags&accSynchronized != 0 {
		m |= raw.ModifierSynchronized
	}
	if flags&accBridge != 0 {
		m |= raw.ModifierBridge
	}
	if flags&accVarargs != 0 {
		m |= raw.ModifierVarargs
	}
	if flags&accNative != 0 {
		m |= raw.ModifierNative
	}
	if flags&accStrict != 0 {
		m |= raw.ModifierStrict
	}
	return m
}

func (r *Reader) readFields(c *cursor, st *classState) error {
	count := int(c.u2())
	for i := 0; i < count && c.err == nil; i++ {
		flags := c.u2()
		name, err := st.cp.utf8(c.u2())
		if err != nil {
			return orTruncated(c, err)
		}
		desc, err := st.cp.utf8(c.u2())
		if err != nil {
			return orTruncated(c, err)
		}
		typ, err := ParseFieldDescriptor(desc)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		field := &raw.MemberRecord{
			Kind:       raw.MemberKindField,
			Owner:      st.record.Name,
			Name:       name,
			Descriptor: desc,
			Modifiers:  fieldModifiers(flags),
			ReturnType: typ,
		}
		if err := r.readMemberAttributes(c, st, field); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		st.record.Fields = append(st.record.Fields, field)
	}
	return c.err
}

func (r *Reader) readMethods(c *cursor, st *classState) error {
	count := int(c.u2())
	for i := 0; i < count && c.err == nil; i++ {
		flags := c.u2()
		name, err := st.cp.utf8(c.u2())
		if err != nil {
			return orTruncated(c, err)
		}
		desc, err := st.cp.utf8(c.u2())
		if err != nil {
			return orTruncated(c, err)
		}
		params, ret, err := ParseMethodDescriptor(desc)
		if err != nil {
			return fmt.Errorf("method %s: %w", name, err)
		}
		method := &raw.MemberRecord{
			Kind:           raw.MemberKindMethod,
			Owner:          st.record.Name,
			Name:           name,
			Descriptor:     desc,
			Modifiers:      methodModifiers(flags),
			ParameterTypes: params,
			ReturnType:     ret,
		}
		if err := r.readMemberAttributes(c, st, method); err != nil {
			return fmt.Errorf("method %s%s: %w", name, desc, err)
		}

		switch name {
		case raw.ConstructorName:
			method.Kind = raw.MemberKindConstructor
			st.record.Constructors = append(st.record.Constructors, method)
		case raw.StaticInitializerName:
			method.Kind = raw.MemberKindStaticInitializer
			st.record.StaticInitializer = method
		default:
			st.record.Methods = append(st.record.Methods, method)
		}
	}
	return c.err
}

// orTruncated prefers the cursor's truncation error over a follow-up lookup
// error caused by reading zeros past the end.
func orTruncated(c *cursor, err error) error {
	if c.err != nil {
		return c.err
	}
	return err
}
