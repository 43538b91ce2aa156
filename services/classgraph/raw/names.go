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

import "strings"

// Primitive type names as they appear in erased descriptors.
var primitiveNames = map[string]struct{}{
	"boolean": {},
	"byte":    {},
	"char":    {},
	"short":   {},
	"int":     {},
	"long":    {},
	"float":   {},
	"double":  {},
	"void":    {},
}

// IsPrimitive reports whether name is a primitive type or void.
func IsPrimitive(name string) bool {
	_, ok := primitiveNames[name]
	return ok
}

// IsArray reports whether name denotes an array type ("int[]", "java.lang.String[][]").
func IsArray(name string) bool {
	return strings.HasSuffix(name, "[]")
}

// ComponentName strips one array dimension. For non-array names it returns name.
func ComponentName(name string) string {
	return strings.TrimSuffix(name, "[]")
}

// ElementName strips all array dimensions.
func ElementName(name string) string {
	for IsArray(name) {
		name = ComponentName(name)
	}
	return name
}

// PackageOf returns the package of a fully-qualified class name. Primitive
// and array names resolve to the package of their element type.
func PackageOf(name string) string {
	name = ElementName(name)
	if IsPrimitive(name) {
		return ""
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}

// SimpleName returns the class name without package and enclosing classes.
//
// Examples:
//
//	"com.acme.Outer$Inner" → "Inner"
//	"com.acme.Outer$1"     → ""  (anonymous)
//	"int[]"                → "int[]"
func SimpleName(name string) string {
	suffix := ""
	for IsArray(name) {
		name = ComponentName(name)
		suffix += "[]"
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndexByte(name, '$'); i >= 0 {
		name = name[i+1:]
		name = strings.TrimLeft(name, "0123456789")
	}
	if name == "" {
		return ""
	}
	return name + suffix
}

// InternalToName converts an internal name ("java/lang/String") to a
// dotted class name ("java.lang.String").
func InternalToName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}
