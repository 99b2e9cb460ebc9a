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
package rows

import "strings"

// Naming selects how raw row keys are normalized. The streaming transport
// already uses snake_case; the REST transport returns camelCase.
type Naming int

const (
	NamingProto Naming = iota
	NamingREST
)

// Flatten walks a raw row depth-first and records every node under its
// dotted path: objects (normalized), arrays, and scalar leaves. Keys are
// rewritten to snake_case under NamingREST.
func Flatten(raw map[string]any, naming Naming) map[string]any {
	flat := make(map[string]any)
	flattenInto(flat, "", raw, naming)
	return flat
}

func flattenInto(flat map[string]any, prefix string, v any, naming Naming) any {
	switch t := v.(type) {
	case map[string]any:
		norm := make(map[string]any, len(t))
		for k, child := range t {
			key := normalizeKey(k, naming)
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			nc := flattenInto(flat, path, child, naming)
			norm[key] = nc
			flat[path] = nc
		}
		return norm
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = normalizeValue(el, naming)
		}
		return out
	default:
		return v
	}
}

// normalizeValue rewrites keys inside array elements without recording paths;
// array contents are not addressable.
func normalizeValue(v any, naming Naming) any {
	switch t := v.(type) {
	case map[string]any:
		norm := make(map[string]any, len(t))
		for k, child := range t {
			norm[normalizeKey(k, naming)] = normalizeValue(child, naming)
		}
		return norm
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = normalizeValue(el, naming)
		}
		return out
	default:
		return v
	}
}

func normalizeKey(k string, naming Naming) string {
	if naming != NamingREST {
		return k
	}
	return camelToSnake(k)
}

func camelToSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteByte(c - 'A' + 'a')
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}
