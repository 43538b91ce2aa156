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
	"fmt"
	"sort"
)

// ReferenceCategory tells why a record mentions another class. The categories
// are ordered by importance; dependency completion may treat them differently.
type ReferenceCategory int

const (
	RefSupertype ReferenceCategory = iota
	RefEnclosing
	RefAnnotation
	RefGenericSignature
	RefMemberType
	RefAccessTarget
	RefTypeUse
)

// String returns the string representation of the ReferenceCategory.
func (c ReferenceCategory) String() string {
	switch c {
	case RefSupertype:
		return "supertype"
	case RefEnclosing:
		return "enclosing"
	case RefAnnotation:
		return "annotation"
	case RefGenericSignature:
		return "generic_signature"
	case RefMemberType:
		return "member_type"
	case RefAccessTarget:
		return "access_target"
	case RefTypeUse:
		return "type_use"
	default:
		return "unknown"
	}
}

// AllReferenceCategories lists every category in order of importance.
var AllReferenceCategories = []ReferenceCategory{
	RefSupertype, RefEnclosing, RefAnnotation, RefGenericSignature,
	RefMemberType, RefAccessTarget, RefTypeUse,
}

// VisitReferences calls fn for every class name the record mentions. Array
// names are reduced to their element type, primitives are skipped. A name may
// be reported more than once.
func (r *ClassRecord) VisitReferences(fn func(name string, cat ReferenceCategory)) {
	emit := func(name string, cat ReferenceCategory) {
		name = ElementName(name)
		if name == "" || IsPrimitive(name) {
			return
		}
		fn(name, cat)
	}
	emitAll := func(names []string, cat ReferenceCategory) {
		for _, n := range names {
			emit(n, cat)
		}
	}

	emit(r.SuperName, RefSupertype)
	emitAll(r.Interfaces, RefSupertype)
	emit(r.EnclosingClass, RefEnclosing)
	visitAnnotations(r.Annotations, emit)
	emitAll(r.GenericSignature.ClassNames(nil), RefGenericSignature)
	emitAll(r.ReferencedTypes, RefTypeUse)

	members := make([]*MemberRecord, 0, len(r.Fields)+len(r.Methods)+len(r.Constructors)+1)
	members = append(members, r.Fields...)
	members = append(members, r.CodeUnits()...)
	for _, m := range members {
		emitAll(m.ParameterTypes, RefMemberType)
		emit(m.ReturnType, RefMemberType)
		emitAll(m.Throws, RefMemberType)
		visitAnnotations(m.Annotations, emit)
		emitAll(m.GenericMethod.ClassNames(nil), RefGenericSignature)
		emitAll(m.GenericField.ClassNames(nil), RefGenericSignature)
		for _, a := range m.Accesses {
			emit(a.Owner, RefAccessTarget)
			emitAll(a.ParameterTypes, RefMemberType)
			emit(a.ReturnType, RefMemberType)
		}
	}
}

func visitAnnotations(anns []AnnotationRecord, emit func(string, ReferenceCategory)) {
	for i := range anns {
		emit(anns[i].Type, RefAnnotation)
		for _, el := range anns[i].Values {
			visitElementValue(el.Value, emit)
		}
	}
}

func visitElementValue(v ElementValue, emit func(string, ReferenceCategory)) {
	switch v.Tag {
	case 'e':
		emit(v.EnumType, RefAnnotation)
	case 'c':
		emit(v.Class, RefAnnotation)
	case '@':
		if v.Annotation != nil {
			visitAnnotations([]AnnotationRecord{*v.Annotation}, emit)
		}
	case '[':
		for _, e := range v.Elements {
			visitElementValue(e, emit)
		}
	}
}

type accumulated struct {
	record *ClassRecord
	seq    int
}

// Accumulator collects the class records of one import run.
//
// Records can arrive in any order; for duplicate class names the record with the
// higher sequence number wins and a DiagnosticDuplicateClass is reported.
//
// Thread Safety: Not safe for concurrent use. One import run owns one accumulator.
type Accumulator struct {
	records     map[string]accumulated
	nextSeq     int
	diagnostics []Diagnostic
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{records: make(map[string]accumulated)}
}

// Add stores a scanned record. seq orders records of the same scan; the
// largest seq wins for duplicate names.
func (a *Accumulator) Add(rec *ClassRecord, seq int) {
	if rec == nil {
		return
	}
	if seq >= a.nextSeq {
		a.nextSeq = seq + 1
	}
	prev, exists := a.records[rec.Name]
	if !exists {
		a.records[rec.Name] = accumulated{record: rec, seq: seq}
		return
	}

	winner, loser := rec, prev.record
	if prev.seq > seq {
		winner, loser = prev.record, rec
	} else {
		a.records[rec.Name] = accumulated{record: rec, seq: seq}
	}
	a.diagnostics = append(a.diagnostics, Diagnostic{
		Kind:     DiagnosticDuplicateClass,
		Severity: SeverityWarning,
		Class:    rec.Name,
		Location: winner.Source.Location,
		Message:  fmt.Sprintf("class declared more than once, ignoring %s", loser.Source.Location),
	})
}

// AddResolved stores a record supplied by dependency completion. Scanned
// records always take precedence, so an existing name is left untouched.
// Returns true if the record was added.
func (a *Accumulator) AddResolved(rec *ClassRecord) bool {
	if rec == nil {
		return false
	}
	if _, exists := a.records[rec.Name]; exists {
		return false
	}
	a.records[rec.Name] = accumulated{record: rec, seq: a.nextSeq}
	a.nextSeq++
	return true
}

// Has reports whether a record for name exists.
func (a *Accumulator) Has(name string) bool {
	_, ok := a.records[name]
	return ok
}

// Len returns the number of distinct classes.
func (a *Accumulator) Len() int {
	return len(a.records)
}

// Records returns all records sorted by class name.
func (a *Accumulator) Records() []*ClassRecord {
	out := make([]*ClassRecord, 0, len(a.records))
	for _, acc := range a.records {
		out = append(out, acc.record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Diagnostics returns the diagnostics reported so far.
func (a *Accumulator) Diagnostics() []Diagnostic {
	return append([]Diagnostic(nil), a.diagnostics...)
}

// ReferencedNames returns every class name mentioned by the accumulated
// records, mapped to the most important category it was seen in.
func (a *Accumulator) ReferencedNames() map[string]ReferenceCategory {
	best := make(map[string]ReferenceCategory)
	for _, acc := range a.records {
		acc.record.VisitReferences(func(name string, cat ReferenceCategory) {
			if prev, seen := best[name]; !seen || cat < prev {
				best[name] = cat
			}
		})
	}
	return best
}

// Missing returns the names referenced by accumulated records that have no
// record themselves, grouped by the most important category they were seen in.
// Names within a category are sorted.
func (a *Accumulator) Missing() map[ReferenceCategory][]string {
	out := make(map[ReferenceCategory][]string)
	for name, cat := range a.ReferencedNames() {
		if _, ok := a.records[name]; ok {
			continue
		}
		out[cat] = append(out[cat], name)
	}
	for cat := range out {
		sort.Strings(out[cat])
	}
	return out
}
