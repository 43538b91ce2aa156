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

var baseTypes = map[byte]string{
	'B': "byte",
	'C': "char",
	'D': "double",
	'F': "float",
	'I': "int",
	'J': "long",
	'S': "short",
	'Z': "boolean",
	'V': "void",
}

// ParseFieldDescriptor converts a field descriptor into a type name.
//
// Examples:
//
//	"I"                     → "int"
//	"Ljava/lang/String;"    → "java.lang.String"
//	"[[Ljava/lang/Object;"  → "java.lang.Object[][]"
func ParseFieldDescriptor(desc string) (string, error) {
	name, rest, err := parseFieldType(desc)
	if err != nil {
		return "", err
	}
	if rest != "" {
		return "", malformed("trailing characters in field descriptor %q", desc)
	}
	return name, nil
}

// ParseMethodDescriptor converts a method descriptor into parameter and
// return type names. Void returns "void".
func ParseMethodDescriptor(desc string) (params []string, ret string, err error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, "", malformed("method descriptor %q does not start with '('", desc)
	}
	rest := desc[1:]
	for rest != "" && rest[0] != ')' {
		var p string
		p, rest, err = parseFieldType(rest)
		if err != nil {
			return nil, "", err
		}
		params = append(params, p)
	}
	if rest == "" {
		return nil, "", malformed("method descriptor %q has no ')'", desc)
	}
	rest = rest[1:]
	if rest == "V" {
		return params, "void", nil
	}
	ret, err = ParseFieldDescriptor(rest)
	if err != nil {
		return nil, "", err
	}
	return params, ret, nil
}

func parseFieldType(s string) (name, rest string, err error) {
	dims := 0
	for dims < len(s) && s[dims] == '[' {
		dims++
	}
	s = s[dims:]
	if s == "" {
		return "", "", malformed("empty field type")
	}
	switch s[0] {
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 2 {
			return "", "", malformed("unterminated class type in %q", s)
		}
		name, rest = raw.InternalToName(s[1:end]), s[end+1:]
	default:
		base, ok := baseTypes[s[0]]
		if !ok || s[0] == 'V' {
			return "", "", malformed("invalid field type %q", s)
		}
		name, rest = base, s[1:]
	}
	return name + strings.Repeat("[]", dims), rest, nil
}
