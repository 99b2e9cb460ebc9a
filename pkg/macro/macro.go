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
// Package macro renders query text in two stages: template expansion, then
// macro substitution. Macros are {name} placeholders; ${...} blocks are
// scalar expressions evaluated with the macro map as scope.
package macro

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/adsfetch/adsfetch/pkg/mathexp"
)

// Result is the rendered text plus every {name} whose macro was not defined.
// Unknown macros are left in place; callers decide whether they are fatal.
type Result struct {
	Text          string
	UnknownMacros []string
}

// Renderer substitutes templates, macros and expressions into query text.
type Renderer struct {
	eng *mathexp.Engine
	now func() time.Time
}

// NewRenderer builds a renderer with its expression engine.
func NewRenderer() (*Renderer, error) {
	eng, err := mathexp.NewEngine()
	if err != nil {
		return nil, err
	}
	return &Renderer{eng: eng, now: time.Now}, nil
}

// Render applies the template parameters, then substitutes macros and
// evaluates ${...} expression blocks. Dynamic-date macro values (":YYYYMMDD-N"
// and friends) are rewritten relative to today, and the built-in date macros
// are injected when the caller did not define them.
func (r *Renderer) Render(text string, macros, templates map[string]string) (Result, error) {
	rendered := text
	if len(templates) > 0 {
		var err error
		rendered, err = renderTemplate(rendered, templates)
		if err != nil {
			return Result{}, err
		}
	}

	resolved := r.resolveMacros(macros)
	substituted, unknown := substituteMacros(rendered, resolved)

	final, err := r.evalExpressions(substituted, resolved)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: final, UnknownMacros: unknown}, nil
}

// renderTemplate runs the text through text/template with the parameters as
// data. Comma-joined parameter values are split into lists so templates can
// range over them.
func renderTemplate(text string, params map[string]string) (string, error) {
	data := make(map[string]any, len(params))
	for k, v := range params {
		if strings.Contains(v, ",") {
			parts := strings.Split(v, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			data[k] = parts
		} else {
			data[k] = v
		}
	}

	tmpl, err := template.New("query").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse query template: %w", err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render query template: %w", err)
	}
	return b.String(), nil
}

// substituteMacros replaces every {name} placeholder not opening an
// expression block. Unresolved names are collected in order of appearance.
func substituteMacros(text string, macros map[string]string) (string, []string) {
	var b strings.Builder
	b.Grow(len(text))
	var unknown []string
	seen := make(map[string]bool)

	i := 0
	for i < len(text) {
		c := text[i]

		// ${...} blocks belong to the expression pass
		if c == '$' && i+1 < len(text) && text[i+1] == '{' {
			end := matchingBrace(text, i+1)
			if end == -1 {
				b.WriteString(text[i:])
				break
			}
			b.WriteString(text[i : end+1])
			i = end + 1
			continue
		}

		if c == '{' {
			if j := strings.IndexByte(text[i+1:], '}'); j >= 0 {
				name := text[i+1 : i+1+j]
				if isMacroName(name) {
					if v, ok := macros[name]; ok {
						b.WriteString(v)
					} else {
						if !seen[name] {
							seen[name] = true
							unknown = append(unknown, name)
						}
						b.WriteString(text[i : i+j+2])
					}
					i += j + 2
					continue
				}
			}
		}

		b.WriteByte(c)
		i++
	}
	return b.String(), unknown
}

func isMacroName(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c != '_' && !('a' <= c && c <= 'z') && !('A' <= c && c <= 'Z') && !('0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

// evalExpressions replaces every balanced ${...} block with its evaluated
// value. An empty block renders as the empty string.
func (r *Renderer) evalExpressions(text string, macros map[string]string) (string, error) {
	if !strings.Contains(text, "${") {
		return text, nil
	}

	scope := make(map[string]any, len(macros))
	for k, v := range macros {
		scope[k] = v
	}

	var b strings.Builder
	b.Grow(len(text))
	i := 0
	for i < len(text) {
		if text[i] == '$' && i+1 < len(text) && text[i+1] == '{' {
			end := matchingBrace(text, i+1)
			if end == -1 {
				b.WriteString(text[i:])
				break
			}
			inner := strings.TrimSpace(text[i+2 : end])
			if inner == "" {
				i = end + 1
				continue
			}
			x, err := r.eng.Parse(inner)
			if err != nil {
				return "", err
			}
			v, err := x.Eval(scope)
			if err != nil {
				return "", err
			}
			b.WriteString(renderValue(v))
			i = end + 1
			continue
		}
		b.WriteByte(text[i])
		i++
	}
	return b.String(), nil
}

// matchingBrace returns the index of the brace closing text[open], tracking
// nesting, or -1 when unbalanced.
func matchingBrace(text string, open int) int {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
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

func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
