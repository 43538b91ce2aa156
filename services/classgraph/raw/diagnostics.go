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
	"context"
	"fmt"
	"log/slog"
)

// Severity of a diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
)

// String returns the string representation of the Severity.
func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "info"
}

// DiagnosticKind classifies non-fatal findings of an import.
type DiagnosticKind int

const (
	// DiagnosticFormatError means a binary unit could not be decoded and was skipped.
	DiagnosticFormatError DiagnosticKind = iota

	// DiagnosticUnsupportedVersion means a unit has a class-file version the reader
	// does not understand and was skipped.
	DiagnosticUnsupportedVersion

	// DiagnosticDuplicateClass means two units declared the same class; the later one won.
	DiagnosticDuplicateClass

	// DiagnosticUnresolvedClass means a referenced class was neither scanned nor
	// resolvable and is represented by a stub.
	DiagnosticUnresolvedClass

	// DiagnosticUnresolvedSupertype means an imported class has a stub supertype.
	DiagnosticUnresolvedSupertype

	// DiagnosticResolverFailure means the external class resolver returned an error.
	DiagnosticResolverFailure

	// DiagnosticUnreadableLocation means a unit could not be read from its location.
	DiagnosticUnreadableLocation
)

// String returns the string representation of the DiagnosticKind.
func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticFormatError:
		return "format_error"
	case DiagnosticUnsupportedVersion:
		return "unsupported_version"
	case DiagnosticDuplicateClass:
		return "duplicate_class"
	case DiagnosticUnresolvedClass:
		return "unresolved_class"
	case DiagnosticUnresolvedSupertype:
		return "unresolved_supertype"
	case DiagnosticResolverFailure:
		return "resolver_failure"
	case DiagnosticUnreadableLocation:
		return "unreadable_location"
	default:
		return "unknown"
	}
}

// Diagnostic is a non-fatal finding reported during an import.
//
// Diagnostics let callers audit completeness of a graph; they never fail an import.
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind"`
	Severity Severity       `json:"severity"`
	Location string         `json:"location,omitempty"`
	Class    string         `json:"class,omitempty"`
	Message  string         `json:"message"`
}

// String renders the diagnostic on one line.
func (d Diagnostic) String() string {
	switch {
	case d.Class != "" && d.Location != "":
		return fmt.Sprintf("%s [%s] %s (%s): %s", d.Severity, d.Kind, d.Class, d.Location, d.Message)
	case d.Class != "":
		return fmt.Sprintf("%s [%s] %s: %s", d.Severity, d.Kind, d.Class, d.Message)
	case d.Location != "":
		return fmt.Sprintf("%s [%s] %s: %s", d.Severity, d.Kind, d.Location, d.Message)
	default:
		return fmt.Sprintf("%s [%s] %s", d.Severity, d.Kind, d.Message)
	}
}

// LogValue implements slog.LogValuer.
func (d Diagnostic) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", d.Kind.String()),
		slog.String("severity", d.Severity.String()),
		slog.String("location", d.Location),
		slog.String("class", d.Class),
		slog.String("message", d.Message),
	)
}

// Log writes the diagnostic to logger at a level matching its severity.
func (d Diagnostic) Log(logger *slog.Logger) {
	if logger == nil {
		return
	}
	level := slog.LevelDebug
	if d.Severity == SeverityWarning {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "import diagnostic", slog.Any("diagnostic", d))
}

// CountByKind tallies diagnostics per kind.
func CountByKind(diags []Diagnostic) map[DiagnosticKind]int {
	counts := make(map[DiagnosticKind]int)
	for _, d := range diags {
		counts[d.Kind]++
	}
	return counts
}
