// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"github.com/AleutianAI/classgraph/services/classgraph/graph"
	"github.com/AleutianAI/classgraph/services/classgraph/importer"
	"github.com/AleutianAI/classgraph/services/classgraph/raw"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInvalidScope   = "INVALID_SCOPE"
	CodeMissingParam   = "MISSING_PARAMETER"
	CodeGraphNotFound  = "GRAPH_NOT_FOUND"
	CodeClassNotFound  = "CLASS_NOT_FOUND"
	CodeImportFailed   = "IMPORT_FAILED"
	CodeCancelled      = "CANCELLED"
)

// ImportRequest is the body of POST /v1/classgraph/import.
type ImportRequest struct {
	// Locations are directories, archives ("lib.jar", "jar:lib.jar!/BOOT-INF/classes")
	// or single class files, in precedence order.
	Locations []string `json:"locations" binding:"required,min=1,dive,required"`

	// Filters are predefined filter names, e.g. "do-not-include-tests".
	Filters []string `json:"filters,omitempty"`

	// Exclude are gitignore-style patterns.
	Exclude []string `json:"exclude,omitempty"`

	// Watch keeps the graph fresh by invalidating it when its files change.
	Watch bool `json:"watch,omitempty"`
}

// ImportResponse describes a published graph.
type ImportResponse struct {
	GraphID        string               `json:"graph_id"`
	ScopeKey       string               `json:"scope_key"`
	Stats          importer.ImportStats `json:"stats"`
	Diagnostics    []raw.Diagnostic     `json:"diagnostics"`
	CreatedAtMilli int64                `json:"created_at_ms"`
	Watching       bool                 `json:"watching,omitempty"`
}

// ClassSummary is one entry of a class listing.
type ClassSummary struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Package    string   `json:"package"`
	Stub       bool     `json:"stub,omitempty"`
	Superclass string   `json:"superclass,omitempty"`
	Interfaces []string `json:"interfaces,omitempty"`
}

// ClassListResponse is the body of GET .../classes.
type ClassListResponse struct {
	GraphID   string         `json:"graph_id"`
	Classes   []ClassSummary `json:"classes"`
	Total     int            `json:"total"`
	Truncated bool           `json:"truncated"`
}

// MemberInfo describes a field or code unit.
type MemberInfo struct {
	FullName       string   `json:"full_name"`
	Kind           string   `json:"kind"`
	Name           string   `json:"name"`
	Owner          string   `json:"owner"`
	Descriptor     string   `json:"descriptor"`
	Modifiers      []string `json:"modifiers,omitempty"`
	ParameterTypes []string `json:"parameter_types,omitempty"`
	Type           string   `json:"type,omitempty"`
	FirstLine      int      `json:"first_line,omitempty"`
}

// ClassDetail is the body of GET .../classes/:name.
type ClassDetail struct {
	ClassSummary
	Modifiers       []string     `json:"modifiers,omitempty"`
	Nesting         string       `json:"nesting"`
	EnclosingClass  string       `json:"enclosing_class,omitempty"`
	TypeParameters  []string     `json:"type_parameters,omitempty"`
	Annotations     []string     `json:"annotations,omitempty"`
	Location        string       `json:"location,omitempty"`
	SourceFile      string       `json:"source_file,omitempty"`
	MajorVersion    int          `json:"major_version,omitempty"`
	Members         []MemberInfo `json:"members"`
	ReferencedTypes int          `json:"referenced_types"`
}

// AccessInfo describes one access edge.
type AccessInfo struct {
	Origin   string   `json:"origin"`
	Kind     string   `json:"kind"`
	Declared string   `json:"declared"`
	Line     int      `json:"line,omitempty"`
	Targets  []string `json:"targets"`
}

// AccessesResponse is the body of GET .../classes/:name/accesses.
type AccessesResponse struct {
	Class     string       `json:"class"`
	Outgoing  []AccessInfo `json:"outgoing"`
	Incoming  []AccessInfo `json:"incoming"`
	Truncated bool         `json:"truncated"`
}

// ResolveResponse is the body of GET .../resolve.
type ResolveResponse struct {
	Owner   string       `json:"owner"`
	Name    string       `json:"name"`
	Kind    string       `json:"kind"`
	Targets []MemberInfo `json:"targets"`
}

// HealthResponse is the body of GET /v1/classgraph/health.
type HealthResponse struct {
	Status  string              `json:"status"`
	Cache   importer.CacheStats `json:"cache"`
	Watched int                 `json:"watched_scopes"`
}

func classSummary(c *graph.ClassNode) ClassSummary {
	s := ClassSummary{
		Name:    c.Name(),
		Kind:    c.Kind().String(),
		Package: c.PackageName(),
		Stub:    c.Unresolved(),
	}
	if s.Stub {
		s.Kind = "stub"
	}
	if sup := c.Superclass(); sup != nil {
		s.Superclass = sup.Name()
	}
	for _, i := range c.Interfaces() {
		s.Interfaces = append(s.Interfaces, i.Name())
	}
	return s
}

func classDetail(c *graph.ClassNode) ClassDetail {
	d := ClassDetail{
		ClassSummary:    classSummary(c),
		Modifiers:       c.Modifiers().Names(),
		Nesting:         c.Nesting().String(),
		Location:        c.Source().Location,
		SourceFile:      c.Source().FileName,
		MajorVersion:    c.MajorVersion(),
		Members:         []MemberInfo{},
		ReferencedTypes: len(c.ReferencedTypes()),
	}
	if enc := c.EnclosingClass(); enc != nil {
		d.EnclosingClass = enc.Name()
	}
	for _, tp := range c.TypeParameters() {
		d.TypeParameters = append(d.TypeParameters, tp.Name)
	}
	for _, a := range c.Annotations() {
		d.Annotations = append(d.Annotations, a.Type().Name())
	}
	for _, m := range c.Members() {
		d.Members = append(d.Members, memberInfo(m))
	}
	return d
}

func memberInfo(m *graph.MemberNode) MemberInfo {
	info := MemberInfo{
		FullName:   m.FullName(),
		Kind:       m.Kind().String(),
		Name:       m.Name(),
		Owner:      m.Owner().Name(),
		Descriptor: m.Descriptor(),
		Modifiers:  m.Modifiers().Names(),
		FirstLine:  m.FirstLine(),
	}
	for _, p := range m.ParameterTypes() {
		info.ParameterTypes = append(info.ParameterTypes, p.Name())
	}
	if t := m.Type(); t != nil {
		info.Type = t.Name()
	}
	return info
}

func accessInfo(e *graph.AccessEdge) AccessInfo {
	info := AccessInfo{
		Origin:   e.Origin().FullName(),
		Kind:     e.Kind().String(),
		Declared: e.Declared().FullName(),
		Line:     e.Line(),
		Targets:  []string{},
	}
	for _, t := range e.Targets() {
		info.Targets = append(info.Targets, t.FullName())
	}
	return info
}
