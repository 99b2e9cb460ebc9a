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

import (
	"strconv"
	"strings"
)

// resourceNameProbes are the struct fields tried when a ~N source is an
// object rather than a plain resource-name string.
var resourceNameProbes = []string{"name", "text", "asset", "value"}

// resourceIndex picks the Nth ~-delimited segment of a resource name. For
// N=0 the trailing numeric id of the last /-component is extracted.
func resourceIndex(v any, n int, column string) (any, error) {
	s, ok := v.(string)
	if !ok {
		obj, isMap := v.(map[string]any)
		if !isMap {
			return nil, &BadResourceIndexSourceError{Column: column, Value: v}
		}
		for _, probe := range resourceNameProbes {
			if ps, isStr := obj[probe].(string); isStr {
				s = ps
				ok = true
				break
			}
		}
		if !ok {
			return nil, &BadResourceIndexSourceError{Column: column, Value: v}
		}
	}

	segs := strings.Split(s, "~")
	if n >= len(segs) {
		return nil, nil
	}
	seg := segs[n]
	if n == 0 {
		if i := strings.LastIndexByte(seg, '/'); i >= 0 {
			seg = seg[i+1:]
		}
	}
	return toNumber(seg), nil
}

// nestedField traverses a dotted selector inside a struct value, returning
// nil when any hop is missing.
func nestedField(v any, selector string) any {
	cur := v
	for _, seg := range strings.Split(selector, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
		if cur == nil {
			return nil
		}
	}
	return cur
}

// toNumber converts a segment to int64 or float64 when it parses cleanly.
func toNumber(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
