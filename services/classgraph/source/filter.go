// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Filter decides whether a candidate unit is imported.
//
// Key identifies the filter's behavior; two filters with the same key must
// include the same candidates. Import cache keys are built from filter keys.
type Filter interface {
	Include(c Candidate) bool
	Key() string
}

type funcFilter struct {
	key string
	fn  func(Candidate) bool
}

func (f funcFilter) Include(c Candidate) bool { return f.fn(c) }
func (f funcFilter) Key() string              { return f.key }

// FilterFunc adapts a function to Filter. The key must change whenever the
// function's behavior changes.
func FilterFunc(key string, fn func(Candidate) bool) Filter {
	return funcFilter{key: key, fn: fn}
}

// Test output layouts of the common build tools.
var testPathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/target/test-classes/`),
	regexp.MustCompile(`/build/classes/([^/]+/)?test/`),
	regexp.MustCompile(`/out/test/`),
	regexp.MustCompile(`/bin/test/`),
	regexp.MustCompile(`-tests?\.jar/`),
}

func isTestPath(c Candidate) bool {
	p := c.FullPath()
	for _, re := range testPathPatterns {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

// DoNotIncludeTests excludes units from test output directories and test
// archives.
var DoNotIncludeTests Filter = FilterFunc("do-not-include-tests", func(c Candidate) bool {
	return !isTestPath(c)
})

// OnlyIncludeTests includes only units from test output directories and test
// archives.
var OnlyIncludeTests Filter = FilterFunc("only-include-tests", isTestPath)

// DoNotIncludeArchives excludes every unit found inside an archive.
var DoNotIncludeArchives Filter = FilterFunc("do-not-include-archives", func(c Candidate) bool {
	return !c.Archived()
})

// DoNotIncludePackageInfos excludes package-info units.
var DoNotIncludePackageInfos Filter = FilterFunc("do-not-include-package-infos", func(c Candidate) bool {
	return path.Base(c.Entry) != packageInfoClass
})

// ExcludePatterns excludes entries matching gitignore-style patterns, e.g.
// "**/internal/**" or "com/acme/generated/". Patterns match the entry path
// relative to the location root.
func ExcludePatterns(patterns ...string) Filter {
	gi := ignore.CompileIgnoreLines(patterns...)
	return FilterFunc("exclude:"+strings.Join(patterns, "\x00"), func(c Candidate) bool {
		return !gi.MatchesPath(c.Entry)
	})
}

// ExcludeFile is ExcludePatterns with the patterns read from an ignore file.
func ExcludeFile(file string) (Filter, error) {
	gi, err := ignore.CompileIgnoreFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading exclude file %s: %w", file, err)
	}
	return FilterFunc("exclude-file:"+file, func(c Candidate) bool {
		return !gi.MatchesPath(c.Entry)
	}), nil
}

// NamedFilter resolves a configuration name into one of the predefined filters.
func NamedFilter(name string) (Filter, error) {
	switch name {
	case "do-not-include-tests":
		return DoNotIncludeTests, nil
	case "only-include-tests":
		return OnlyIncludeTests, nil
	case "do-not-include-archives":
		return DoNotIncludeArchives, nil
	case "do-not-include-package-infos":
		return DoNotIncludePackageInfos, nil
	default:
		return nil, fmt.Errorf("unknown filter %q", name)
	}
}
