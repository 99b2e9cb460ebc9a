// Copyright 2026 The adsfetch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package query

import "strings"

// scanState tracks quote and bracket context while walking query text.
type scanState struct {
	depth    int
	inSingle bool
	inDouble bool
}

func (s *scanState) step(c byte) {
	switch {
	case s.inSingle:
		if c == '\'' {
			s.inSingle = false
		}
	case s.inDouble:
		if c == '"' {
			s.inDouble = false
		}
	case c == '\'':
		s.inSingle = true
	case c == '"':
		s.inDouble = true
	case c == '(' || c == '[' || c == '{':
		s.depth++
	case c == ')' || c == ']' || c == '}':
		s.depth--
	}
}

func (s *scanState) top() bool {
	return s.depth == 0 && !s.inSingle && !s.inDouble
}

// splitTopLevel splits on sep at bracket depth zero outside string literals.
func splitTopLevel(text string, sep byte) []string {
	var parts []string
	var st scanState
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == sep && st.top() {
			parts = append(parts, text[start:i])
			start = i + 1
			continue
		}
		st.step(c)
	}
	parts = append(parts, text[start:])
	return parts
}

// indexKeyword finds the first case-insensitive word-bounded keyword at
// bracket depth zero outside string literals, or -1.
func indexKeyword(text, keyword string) int {
	var st scanState
	n := len(keyword)
	for i := 0; i+n <= len(text); i++ {
		if st.top() && strings.EqualFold(text[i:i+n], keyword) &&
			boundaryBefore(text, i) && boundaryAfter(text, i+n) {
			return i
		}
		st.step(text[i])
	}
	return -1
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	return !isWordByte(text[i-1])
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	return !isWordByte(text[i])
}

func isWordByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// splitAlias separates "expr AS alias" at the last top-level AS. The alias is
// empty when the item has none.
func splitAlias(item string) (string, string) {
	var st scanState
	last := -1
	for i := 0; i+4 <= len(item); i++ {
		if st.top() && strings.EqualFold(item[i:i+4], " as ") {
			last = i
		}
		st.step(item[i])
	}
	if last == -1 {
		return strings.TrimSpace(item), ""
	}
	return strings.TrimSpace(item[:last]), strings.TrimSpace(item[last+4:])
}
