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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// SchemaVersion is the version of the serialization schema.
// Increment when the serialization format changes in a breaking way.
const SchemaVersion = "1.0"

// SerializableGraph is the JSON-serializable view of a Graph.
//
// Description:
//
//	Classes are sorted by name and accesses are in Graph.Accesses order, so
//	encoding the same graph twice yields identical bytes. Access targets
//	are resolved while serializing.
//
// Thread Safety: SerializableGraph is a value type with no internal state.
type SerializableGraph struct {
	// SchemaVersion identifies the serialization format version.
	SchemaVersion string `json:"schema_version"`

	// GraphHash is the deterministic hash of classes, stubs and accesses.
	GraphHash string `json:"graph_hash"`

	Classes  []SerializableClass  `json:"classes"`
	Stubs    []string             `json:"stubs"`
	Accesses []SerializableAccess `json:"accesses"`
}

// SerializableClass is one imported class.
type SerializableClass struct {
	Name       string               `json:"name"`
	Kind       string               `json:"kind"`
	Modifiers  []string             `json:"modifiers,omitempty"`
	Superclass string               `json:"superclass,omitempty"`
	Interfaces []string             `json:"interfaces,omitempty"`
	Nesting    string               `json:"nesting"`
	Enclosing  string               `json:"enclosing,omitempty"`
	Location   string               `json:"location,omitempty"`
	SourceFile string               `json:"source_file,omitempty"`
	Members    []SerializableMember `json:"members,omitempty"`
}

// SerializableMember is one field or code unit.
type SerializableMember struct {
	FullName   string   `json:"full_name"`
	Kind       string   `json:"kind"`
	Name       string   `json:"name"`
	Descriptor string   `json:"descriptor"`
	Modifiers  []string `json:"modifiers,omitempty"`
	FirstLine  int      `json:"first_line,omitempty"`
}

// SerializableAccess is one access edge with its resolved targets.
type SerializableAccess struct {
	Origin     string   `json:"origin"`
	Kind       string   `json:"kind"`
	Target     string   `json:"target"`
	Descriptor string   `json:"descriptor"`
	Line       int      `json:"line,omitempty"`
	Resolved   []string `json:"resolved,omitempty"`
}

// ToSerializable converts a Graph to its JSON-serializable representation.
//
// Outputs:
//
//	*SerializableGraph - The serializable view. Never nil.
//
// Thread Safety: Safe for concurrent use.
func (g *Graph) ToSerializable() *SerializableGraph {
	sg := &SerializableGraph{
		SchemaVersion: SchemaVersion,
		Classes:       []SerializableClass{},
		Stubs:         []string{},
		Accesses:      []SerializableAccess{},
	}
	if g == nil {
		sg.GraphHash = sg.hash()
		return sg
	}

	for _, c := range g.imported {
		sc := SerializableClass{
			Name:       c.name,
			Kind:       c.kind.String(),
			Modifiers:  c.modifiers.Names(),
			Interfaces: names(c.interfaces),
			Nesting:    c.nesting.String(),
			Location:   c.source.Location,
			SourceFile: c.source.FileName,
		}
		if c.superclass != nil {
			sc.Superclass = c.superclass.name
		}
		if c.enclosing != nil {
			sc.Enclosing = c.enclosing.name
		}
		for _, m := range c.Members() {
			sc.Members = append(sc.Members, SerializableMember{
				FullName:   m.FullName(),
				Kind:       m.kind.String(),
				Name:       m.name,
				Descriptor: m.descriptor,
				Modifiers:  m.modifiers.Names(),
				FirstLine:  m.firstLine,
			})
		}
		sg.Classes = append(sg.Classes, sc)
	}
	for _, c := range g.stubs {
		sg.Stubs = append(sg.Stubs, c.name)
	}
	for _, e := range g.accesses {
		var resolved []string
		for _, t := range e.targets() {
			resolved = append(resolved, t.FullName())
		}
		sg.Accesses = append(sg.Accesses, SerializableAccess{
			Origin:     e.origin.FullName(),
			Kind:       e.kind.String(),
			Target:     e.target.FullName(),
			Descriptor: e.target.Descriptor,
			Line:       e.line,
			Resolved:   resolved,
		})
	}
	sg.GraphHash = sg.hash()
	return sg
}

// Hash returns the deterministic content hash of the graph.
func (g *Graph) Hash() string {
	return g.ToSerializable().GraphHash
}

func (sg *SerializableGraph) hash() string {
	content := struct {
		Classes  []SerializableClass  `json:"classes"`
		Stubs    []string             `json:"stubs"`
		Accesses []SerializableAccess `json:"accesses"`
	}{sg.Classes, sg.Stubs, sg.Accesses}
	data, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func names(nodes []*ClassNode) []string {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.name
	}
	return out
}
