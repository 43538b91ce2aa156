// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

// LinkerOptions configures Linker behavior.
type LinkerOptions struct {
	// Logger receives debug and warning lines. Default: slog.Default().
	Logger *slog.Logger

	// StubDiagnostics adds one DiagnosticUnresolvedClass per stub node.
	// Default: true
	StubDiagnostics bool
}

// DefaultLinkerOptions returns the defaults.
func DefaultLinkerOptions() LinkerOptions {
	return LinkerOptions{StubDiagnostics: true}
}

// LinkerOption is a functional option for configuring Linker.
type LinkerOption func(*LinkerOptions)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LinkerOption {
	return func(o *LinkerOptions) {
		o.Logger = logger
	}
}

// WithStubDiagnostics toggles per-stub diagnostics.
func WithStubDiagnostics(enabled bool) LinkerOption {
	return func(o *LinkerOptions) {
		o.StubDiagnostics = enabled
	}
}

// Linker turns a batch of class records into a Graph.
//
// Thread Safety:
//
//	Linker is safe for concurrent use. Each Link call works on its own
//	state and returns an independent graph.
type Linker struct {
	options LinkerOptions
}

// NewLinker creates a Linker with the given options.
func NewLinker(opts ...LinkerOption) *Linker {
	options := DefaultLinkerOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Linker{options: options}
}

// LinkStats summarizes a link.
type LinkStats struct {
	Imported      int   `json:"imported"`
	Stubs         int   `json:"stubs"`
	Arrays        int   `json:"arrays"`
	Primitives    int   `json:"primitives"`
	Members       int   `json:"members"`
	AccessEdges   int   `json:"access_edges"`
	Diagnostics   int   `json:"diagnostics"`
	DurationMilli int64 `json:"duration_ms"`
}

// LinkResult is the outcome of a successful link.
type LinkResult struct {
	Graph       *Graph
	Diagnostics []raw.Diagnostic
	Stats       LinkStats
}

// linkState holds mutable state during a single link.
type linkState struct {
	graph   *Graph
	records map[string]*raw.ClassRecord
	order   []string
	diags   []raw.Diagnostic
	logger  *slog.Logger
}

// Link builds an immutable graph from records.
//
// Description:
//
//	Creates one ClassNode per distinct class name before wiring anything,
//	so every reference goes through the name index and shares identity.
//	Names without a record become stubs. Records with the same name keep
//	the later one and report DiagnosticDuplicateClass. Access edges are
//	created unresolved; their targets are computed on first use.
//
// Inputs:
//
//	ctx - Checked between phases. Cancellation discards the partial graph.
//	records - Class records in any order. Nil entries are skipped.
//
// Outputs:
//
//	*LinkResult - The graph, link diagnostics and statistics.
//	error - Non-nil only when ctx is done; no graph is returned then.
//
// Link Phases:
//
//  1. INDEX: create nodes for records and every referenced name
//  2. WIRE: supertypes, nesting, type parameters, members, annotations
//  3. ACCESSES: create access edges
//  4. FINALIZE: ancestors, package tree, sorted views, diagnostics
func (l *Linker) Link(ctx context.Context, records []*raw.ClassRecord) (*LinkResult, error) {
	start := time.Now()
	ctx, span := startLinkSpan(ctx, len(records))
	defer span.End()

	s := &linkState{
		graph: &Graph{
			nodes:          make(map[string]*ClassNode, len(records)*4),
			accessesByName: make(map[string][]*AccessEdge),
		},
		records: make(map[string]*raw.ClassRecord, len(records)),
		logger:  l.options.Logger,
	}

	phases := []struct {
		name string
		run  func()
	}{
		{"index", func() { s.index(records) }},
		{"wire", s.wire},
		{"accesses", s.accesses},
		{"finalize", func() { s.finalize(l.options.StubDiagnostics) }},
	}
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			err = fmt.Errorf("link cancelled before %s: %w", phase.name, err)
			setLinkSpanResult(span, LinkStats{}, err)
			return nil, err
		}
		_, phaseSpan := startPhaseSpan(ctx, phase.name)
		phase.run()
		phaseSpan.End()
	}

	stats := s.stats()
	stats.DurationMilli = time.Since(start).Milliseconds()
	setLinkSpanResult(span, stats, nil)
	recordLinkMetrics(stats, time.Since(start).Seconds())

	s.logger.Debug("class graph linked",
		slog.Int("classes", stats.Imported),
		slog.Int("stubs", stats.Stubs),
		slog.Int("access_edges", stats.AccessEdges),
		slog.Int("diagnostics", stats.Diagnostics),
		slog.Int64("duration_ms", stats.DurationMilli),
	)

	return &LinkResult{Graph: s.graph, Diagnostics: s.diags, Stats: stats}, nil
}

func (s *linkState) stats() LinkStats {
	st := LinkStats{
		Imported:    len(s.graph.imported),
		Stubs:       len(s.graph.stubs),
		AccessEdges: len(s.graph.accesses),
		Diagnostics: len(s.diags),
	}
	for _, c := range s.graph.nodes {
		switch c.origin {
		case OriginArray:
			st.Arrays++
		case OriginPrimitive:
			st.Primitives++
		}
	}
	for _, c := range s.graph.imported {
		st.Members += len(c.fields) + len(c.CodeUnits())
	}
	return st
}

// node returns the node for name, creating it on first sight. Array nodes
// link their component and primitive names get primitive nodes; any other
// name starts out as a stub.
func (s *linkState) node(name string) *ClassNode {
	if name == "" {
		return nil
	}
	if c, ok := s.graph.nodes[name]; ok {
		return c
	}
	c := &ClassNode{name: name, graph: s.graph}
	switch {
	case raw.IsArray(name):
		c.origin = OriginArray
		c.modifiers = raw.ModifierPublic | raw.ModifierFinal | raw.ModifierAbstract
		c.component = s.node(raw.ComponentName(name))
	case raw.IsPrimitive(name):
		c.origin = OriginPrimitive
		c.modifiers = raw.ModifierPublic | raw.ModifierFinal | raw.ModifierAbstract
	default:
		c.origin = OriginStub
	}
	s.graph.nodes[name] = c
	return c
}

func (s *linkState) nodes(names []string) []*ClassNode {
	if len(names) == 0 {
		return nil
	}
	out := make([]*ClassNode, len(names))
	for i, n := range names {
		out[i] = s.node(n)
	}
	return out
}

// index creates imported nodes for all records and nodes for every name
// they mention.
func (s *linkState) index(records []*raw.ClassRecord) {
	for _, rec := range records {
		if rec == nil || rec.Name == "" {
			continue
		}
		if prev, ok := s.records[rec.Name]; ok {
			s.diags = append(s.diags, raw.Diagnostic{
				Kind:     raw.DiagnosticDuplicateClass,
				Severity: raw.SeverityWarning,
				Location: rec.Source.Location,
				Class:    rec.Name,
				Message:  "class also defined at " + prev.Source.Location + "; keeping the later definition",
			})
		} else {
			s.order = append(s.order, rec.Name)
		}
		s.records[rec.Name] = rec
	}
	sort.Strings(s.order)

	for _, name := range s.order {
		rec := s.records[name]
		c := s.node(name)
		c.origin = OriginImported
		c.kind = rec.Kind
		c.modifiers = rec.Modifiers
		c.nesting = rec.Nesting
		c.source = rec.Source
		c.majorVersion = rec.MajorVersion
		s.graph.imported = append(s.graph.imported, c)
	}
	s.graph.object = s.node(objectName)

	for _, name := range s.order {
		rec := s.records[name]
		rec.VisitReferences(func(ref string, _ raw.ReferenceCategory) {
			s.node(ref)
		})
		for _, m := range rec.Fields {
			s.node(m.ReturnType)
		}
		for _, m := range rec.CodeUnits() {
			s.nodes(m.ParameterTypes)
			s.node(m.ReturnType)
			for _, a := range m.Accesses {
				s.node(a.Owner)
				s.nodes(a.ParameterTypes)
				s.node(a.ReturnType)
			}
		}
	}
}

// wire links supertypes, nesting, generics, members and annotations.
func (s *linkState) wire() {
	for _, c := range s.graph.imported {
		rec := s.records[c.name]
		c.superclass = s.node(rec.SuperName)
		c.interfaces = s.nodes(rec.Interfaces)
		c.enclosing = s.node(rec.EnclosingClass)
		if rec.EnclosingMethod != nil {
			ref := *rec.EnclosingMethod
			c.enclosingMethod = &ref
		}
		c.referencedTypes = s.nodes(rec.ReferencedTypes)
		c.annotations = s.annotations(rec.Annotations)

		s.unresolvedSupertypes(c, rec)
	}

	// Type parameters of all classes exist before any signature is
	// converted, so variables of enclosing classes can be found.
	for _, c := range s.graph.imported {
		if sig := s.records[c.name].GenericSignature; sig != nil {
			c.typeParameters = declareTypeParameters(sig.TypeParameters)
		}
	}
	for _, c := range s.graph.imported {
		rec := s.records[c.name]
		scope := s.classScope(c)
		if sig := rec.GenericSignature; sig != nil {
			s.boundTypeParameters(c.typeParameters, sig.TypeParameters, scope)
			if sig.SuperClass != nil {
				c.genericSuperclass = s.genericType(sig.SuperClass, scope)
			}
			for i := range sig.Interfaces {
				c.genericInterfaces = append(c.genericInterfaces, s.genericType(&sig.Interfaces[i], scope))
			}
		}

		for _, f := range rec.Fields {
			c.fields = append(c.fields, s.member(c, f, scope))
		}
		for _, m := range rec.Methods {
			c.methods = append(c.methods, s.member(c, m, scope))
		}
		for _, m := range rec.Constructors {
			c.constructors = append(c.constructors, s.member(c, m, scope))
		}
		if rec.StaticInitializer != nil {
			c.staticInitializer = s.member(c, rec.StaticInitializer, scope)
		}
	}
}

func (s *linkState) unresolvedSupertypes(c *ClassNode, rec *raw.ClassRecord) {
	supers := make([]*ClassNode, 0, len(c.interfaces)+1)
	if c.superclass != nil {
		supers = append(supers, c.superclass)
	}
	supers = append(supers, c.interfaces...)
	for _, sup := range supers {
		if sup.origin != OriginStub {
			continue
		}
		s.diags = append(s.diags, raw.Diagnostic{
			Kind:     raw.DiagnosticUnresolvedSupertype,
			Severity: raw.SeverityWarning,
			Location: rec.Source.Location,
			Class:    c.name,
			Message:  "supertype " + sup.name + " is not imported",
		})
		s.logger.Warn("unresolved supertype",
			slog.String("class", c.name),
			slog.String("supertype", sup.name),
		)
	}
}

func (s *linkState) member(owner *ClassNode, rec *raw.MemberRecord, scope *typeScope) *MemberNode {
	m := &MemberNode{
		kind:           rec.Kind,
		owner:          owner,
		name:           rec.Name,
		descriptor:     rec.Descriptor,
		modifiers:      rec.Modifiers,
		parameterTypes: s.nodes(rec.ParameterTypes),
		returnType:     s.node(rec.ReturnType),
		throws:         s.nodes(rec.Throws),
		paramKey:       parameterKey(rec.ParameterTypes),
		annotations:    s.annotations(rec.Annotations),
		firstLine:      rec.FirstLine,
	}
	switch {
	case rec.GenericField != nil:
		m.genericReturn = s.genericType(rec.GenericField, scope)
	case rec.GenericMethod != nil:
		sig := rec.GenericMethod
		m.typeParameters = declareTypeParameters(sig.TypeParameters)
		inner := &typeScope{params: m.typeParameters, parent: scope}
		s.boundTypeParameters(m.typeParameters, sig.TypeParameters, inner)
		for i := range sig.Parameters {
			m.genericParameters = append(m.genericParameters, s.genericType(&sig.Parameters[i], inner))
		}
		m.genericReturn = s.genericType(&sig.Return, inner)
	}
	return m
}

// accesses creates the access edges of every code unit.
func (s *linkState) accesses() {
	for _, c := range s.graph.imported {
		rec := s.records[c.name]
		units := c.CodeUnits()
		recUnits := rec.CodeUnits()
		for i, m := range units {
			for _, a := range recUnits[i].Accesses {
				owner := s.node(a.Owner)
				e := &AccessEdge{
					origin: m,
					target: AccessTarget{
						Owner:          owner,
						Name:           a.Name,
						Descriptor:     a.Descriptor,
						ParameterTypes: s.nodes(a.ParameterTypes),
						ReturnType:     s.node(a.ReturnType),
						paramKey:       parameterKey(a.ParameterTypes),
					},
					kind: a.Kind,
					line: a.Line,
				}
				m.accesses = append(m.accesses, e)
				c.outgoing = append(c.outgoing, e)
				owner.incoming = append(owner.incoming, e)
				s.graph.accesses = append(s.graph.accesses, e)
				s.graph.accessesByName[a.Name] = append(s.graph.accessesByName[a.Name], e)
			}
		}
	}
}

// finalize computes ancestor sets, the package tree and sorted views.
func (s *linkState) finalize(stubDiagnostics bool) {
	state := make(map[*ClassNode]int, len(s.graph.nodes))
	for _, c := range s.graph.imported {
		computeAncestors(c, state)
	}

	s.graph.packages = buildPackages(s.graph.imported)

	for _, c := range s.graph.nodes {
		if c.origin == OriginStub {
			s.graph.stubs = append(s.graph.stubs, c)
		}
	}
	sort.Slice(s.graph.stubs, func(i, j int) bool { return s.graph.stubs[i].name < s.graph.stubs[j].name })

	if stubDiagnostics {
		for _, c := range s.graph.stubs {
			s.diags = append(s.diags, raw.Diagnostic{
				Kind:     raw.DiagnosticUnresolvedClass,
				Severity: raw.SeverityInfo,
				Class:    c.name,
				Message:  "referenced class is not imported",
			})
		}
	}
}

const (
	ancestorsVisiting = 1
	ancestorsDone     = 2
)

// computeAncestors fills c.ancestors with every transitive supertype. A
// cyclic hierarchy is cut where the cycle closes.
func computeAncestors(c *ClassNode, state map[*ClassNode]int) map[*ClassNode]struct{} {
	switch state[c] {
	case ancestorsDone:
		return c.ancestors
	case ancestorsVisiting:
		return nil
	}
	state[c] = ancestorsVisiting
	c.ancestors = make(map[*ClassNode]struct{})
	supers := make([]*ClassNode, 0, len(c.interfaces)+1)
	if c.superclass != nil {
		supers = append(supers, c.superclass)
	}
	supers = append(supers, c.interfaces...)
	for _, sup := range supers {
		if sup == c {
			continue
		}
		c.ancestors[sup] = struct{}{}
		for a := range computeAncestors(sup, state) {
			if a != c {
				c.ancestors[a] = struct{}{}
			}
		}
	}
	state[c] = ancestorsDone
	return c.ancestors
}

func (s *linkState) annotations(recs []raw.AnnotationRecord) []*Annotation {
	if len(recs) == 0 {
		return nil
	}
	out := make([]*Annotation, len(recs))
	for i := range recs {
		out[i] = s.annotation(&recs[i])
	}
	return out
}

func (s *linkState) annotation(rec *raw.AnnotationRecord) *Annotation {
	a := &Annotation{
		typ:    s.node(rec.Type),
		values: make(map[string]AnnotationValue, len(rec.Values)),
	}
	for _, el := range rec.Values {
		a.values[el.Name] = s.annotationValue(el.Value)
	}
	return a
}

func (s *linkState) annotationValue(v raw.ElementValue) AnnotationValue {
	out := AnnotationValue{
		Tag:      v.Tag,
		Int:      v.Int,
		Float:    v.Float,
		String:   v.String,
		EnumName: v.EnumName,
	}
	switch v.Tag {
	case 'e':
		out.EnumType = s.node(v.EnumType)
	case 'c':
		out.Class = s.node(v.Class)
	case '@':
		if v.Annotation != nil {
			out.Annotation = s.annotation(v.Annotation)
		}
	case '[':
		out.Elements = make([]AnnotationValue, len(v.Elements))
		for i, e := range v.Elements {
			out.Elements[i] = s.annotationValue(e)
		}
	}
	return out
}
