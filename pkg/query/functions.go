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

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// FunctionTable holds the user functions compiled from a FUNCTIONS block.
// Calls are serialized: the underlying script runtime is single-threaded.
type FunctionTable struct {
	mu  sync.Mutex
	vm  *goja.Runtime
	fns map[string]goja.Callable
}

// Has reports whether name was declared. Safe on a nil table.
func (t *FunctionTable) Has(name string) bool {
	if t == nil {
		return false
	}
	_, ok := t.fns[name]
	return ok
}

// Len returns the number of declared functions. Safe on a nil table.
func (t *FunctionTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.fns)
}

// Names returns the declared function names, sorted. Safe on a nil table.
func (t *FunctionTable) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.fns))
	for n := range t.fns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Call invokes a user function with a single argument and returns its
// exported result.
func (t *FunctionTable) Call(name string, arg any) (any, error) {
	if t == nil {
		return nil, fmt.Errorf("no user functions defined")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fn, ok := t.fns[name]
	if !ok {
		return nil, fmt.Errorf("unknown user function %q", name)
	}
	res, err := fn(goja.Undefined(), t.vm.ToValue(arg))
	if err != nil {
		return nil, fmt.Errorf("user function %s failed: %w", name, err)
	}
	return res.Export(), nil
}

var functionHeadRe = regexp.MustCompile(`^function\s+([A-Za-z_]\w*)\s*\(([^)]*)\)\s*\{`)

// extractFunctions splits a trailing FUNCTIONS section off the query text and
// compiles each "function name(arg) { body }" declaration. Returns a nil
// table when the query has no such section.
func extractFunctions(text string) (*FunctionTable, string, error) {
	idx := functionsSectionIndex(text)
	if idx == -1 {
		return nil, text, nil
	}
	section := strings.TrimSpace(text[idx+len("functions"):])
	remainder := strings.TrimSpace(text[:idx])

	table := &FunctionTable{vm: goja.New(), fns: make(map[string]goja.Callable)}
	pos := 0
	for {
		rest := strings.TrimLeft(section[pos:], " \t\r\n;")
		if rest == "" {
			break
		}
		pos = len(section) - len(rest)

		m := functionHeadRe.FindStringSubmatch(rest)
		if m == nil {
			return nil, "", &BadFunctionBodyError{Err: fmt.Errorf("expected a function declaration at %q", snippet(rest))}
		}
		name, params := m[1], strings.TrimSpace(m[2])
		if params == "" || strings.Contains(params, ",") {
			return nil, "", &BadFunctionBodyError{Name: name, Err: fmt.Errorf("functions take exactly one argument")}
		}

		open := pos + len(m[0]) - 1
		end := matchScriptBrace(section, open)
		if end == -1 {
			return nil, "", &BadFunctionBodyError{Name: name, Err: fmt.Errorf("unbalanced braces")}
		}

		decl := section[pos : end+1]
		if _, err := table.vm.RunString(decl); err != nil {
			return nil, "", &BadFunctionBodyError{Name: name, Err: err}
		}
		fn, ok := goja.AssertFunction(table.vm.Get(name))
		if !ok {
			return nil, "", &BadFunctionBodyError{Name: name, Err: fmt.Errorf("declaration did not produce a function")}
		}
		table.fns[name] = fn
		pos = end + 1
	}

	if len(table.fns) == 0 {
		return nil, "", &BadFunctionBodyError{Err: fmt.Errorf("empty FUNCTIONS section")}
	}
	return table, remainder, nil
}

// functionsSectionIndex finds the FUNCTIONS keyword opening a declaration
// section. A field named "functions" does not qualify.
func functionsSectionIndex(text string) int {
	var st scanState
	n := len("functions")
	for i := 0; i+n <= len(text); i++ {
		if st.top() && strings.EqualFold(text[i:i+n], "functions") &&
			boundaryBefore(text, i) && boundaryAfter(text, i+n) {
			after := strings.TrimSpace(text[i+n:])
			if strings.HasPrefix(after, "function") {
				return i
			}
		}
		st.step(text[i])
	}
	return -1
}

// matchScriptBrace returns the index of the brace closing text[open],
// skipping script string literals.
func matchScriptBrace(text string, open int) int {
	depth := 0
	var quote byte
	escaped := false
	for i := open; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func snippet(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
