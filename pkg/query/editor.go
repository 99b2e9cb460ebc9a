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
// Package query parses the extended report dialect: standard
// SELECT/FROM/WHERE plus column customizers (~N, :selector, :$function),
// virtual-column expressions, an embedded FUNCTIONS block, and macro
// substitution. The result is a Plan: the native query accepted by the
// upstream API and a typed column projection.
package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/adsfetch/adsfetch/pkg/macro"
	"github.com/adsfetch/adsfetch/pkg/mathexp"
	"github.com/adsfetch/adsfetch/pkg/schema"
)

// Editor turns query text into plans against a schema registry.
type Editor struct {
	registry *schema.Registry
	renderer *macro.Renderer
	eng      *mathexp.Engine
}

// NewEditor builds an editor over the given registry.
func NewEditor(reg *schema.Registry) (*Editor, error) {
	renderer, err := macro.NewRenderer()
	if err != nil {
		return nil, err
	}
	eng, err := mathexp.NewEngine()
	if err != nil {
		return nil, err
	}
	return &Editor{registry: reg, renderer: renderer, eng: eng}, nil
}

var (
	resourceIndexRe = regexp.MustCompile(`^([A-Za-z_][\w.]*)~(\d+)$`)
	tildeRe         = regexp.MustCompile(`^[A-Za-z_][\w.]*~`)
	functionRefRe   = regexp.MustCompile(`^([A-Za-z_][\w.]*):\$([A-Za-z_]\w*)$`)
	nestedFieldRe   = regexp.MustCompile(`^([A-Za-z_][\w.]*):([A-Za-z_][\w.]*)$`)
	colonPrefixRe   = regexp.MustCompile(`^[A-Za-z_][\w.]*:`)
	fieldPathRe     = regexp.MustCompile(`^[A-Za-z_]\w*(\.[A-Za-z_]\w*)*$`)
	aliasRe         = regexp.MustCompile(`^[A-Za-z_]\w*$`)
	resourceTokenRe = regexp.MustCompile(`(?i)^from\s+([A-Za-z_][\w.]*)`)
)

// Parse cleans the text, extracts the FUNCTIONS block, substitutes macros and
// templates, parses the SELECT list, and assembles the native query.
func (e *Editor) Parse(text string, macros, templates map[string]string) (*Plan, error) {
	cleaned := Clean(text)

	fns, remainder, err := extractFunctions(cleaned)
	if err != nil {
		return nil, err
	}

	rendered, err := e.renderer.Render(remainder, macros, templates)
	if err != nil {
		return nil, err
	}
	if len(rendered.UnknownMacros) > 0 {
		return nil, &UnknownMacroError{Names: rendered.UnknownMacros}
	}
	// macro values may introduce fresh whitespace
	qtext := Clean(rendered.Text)

	selIdx := indexKeyword(qtext, "select")
	if selIdx == -1 {
		return nil, invalidQueryf("missing SELECT")
	}
	fromIdx := indexKeyword(qtext, "from")
	if fromIdx == -1 || fromIdx < selIdx {
		return nil, invalidQueryf("missing FROM")
	}

	projection := strings.TrimSpace(qtext[selIdx+len("select") : fromIdx])
	rest := qtext[fromIdx:]

	rm := resourceTokenRe.FindStringSubmatch(rest)
	if rm == nil {
		return nil, invalidQueryf("missing resource after FROM")
	}
	resourceName := rm[1]

	if strings.HasPrefix(resourceName, "builtin.") {
		return builtinPlan(resourceName)
	}
	info, err := e.registry.Resource(resourceName)
	if err != nil {
		return nil, err
	}

	var (
		cols        []Column
		names       = make(map[string]bool)
		requested   []string
		reqSeen     = make(map[string]bool)
		sawWildcard bool
	)
	addRequested := func(path string) {
		if !reqSeen[path] {
			reqSeen[path] = true
			requested = append(requested, path)
		}
	}

	for _, raw := range splitTopLevel(projection, ',') {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}
		expr, alias := splitAlias(item)
		if expr == "*" {
			if sawWildcard {
				return nil, invalidQueryf("duplicate *")
			}
			sawWildcard = true
			continue
		}
		col, err := e.buildColumn(expr, alias, info, fns, addRequested)
		if err != nil {
			return nil, err
		}
		if names[col.Name] {
			return nil, invalidQueryf("duplicate column %q", col.Name)
		}
		names[col.Name] = true
		cols = append(cols, col)
	}
	if len(cols) == 0 && !sawWildcard {
		return nil, invalidQueryf("empty SELECT list")
	}

	if sawWildcard {
		for _, f := range e.registry.WildcardFields(info.Descriptor) {
			if names[f.Name] {
				continue
			}
			names[f.Name] = true
			path := info.Name + "." + f.Name
			cols = append(cols, Column{Name: f.Name, Expression: path, Type: f.Type})
			addRequested(path)
		}
	}

	// a projection of nothing but parse-time constants still needs one field
	// for the upstream API to accept the query
	if len(requested) == 0 {
		addRequested(info.Name + ".resource_name")
	}

	native := qtext[:selIdx+len("select")] + " " + strings.Join(requested, ", ") + " " + rest

	return &Plan{
		NativeQuery: native,
		Columns:     cols,
		Resource:    info,
		Functions:   fns,
	}, nil
}

func (e *Editor) buildColumn(expr, alias string, info schema.ResourceInfo, fns *FunctionTable, addRequested func(string)) (Column, error) {
	if alias != "" && !aliasRe.MatchString(alias) {
		return Column{}, invalidQueryf("bad alias %q", alias)
	}

	switch {
	case resourceIndexRe.MatchString(expr):
		m := resourceIndexRe.FindStringSubmatch(expr)
		base := m[1]
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return Column{}, invalidQueryf("bad resource index in %q", expr)
		}
		baseType, err := e.registry.FieldType(base)
		if err != nil {
			return Column{}, err
		}
		addRequested(base)
		return Column{
			Name:       columnName(alias, base, info.Name),
			Expression: base,
			Type:       schema.FieldType{Kind: schema.KindPrimitive, TypeName: "int64", Repeated: baseType.Repeated},
			Customizer: &Customizer{Kind: CustomizerResourceIndex, Index: n},
		}, nil

	case tildeRe.MatchString(expr):
		return Column{}, invalidQueryf("bad resource index in %q", expr)

	case functionRefRe.MatchString(expr):
		m := functionRefRe.FindStringSubmatch(expr)
		base, fname := m[1], m[2]
		if !fns.Has(fname) {
			return Column{}, invalidQueryf("unknown function %q in %q", fname, expr)
		}
		if _, err := e.registry.FieldType(base); err != nil {
			return Column{}, err
		}
		addRequested(base)
		return Column{
			Name:       columnName(alias, base, info.Name),
			Expression: base,
			Type:       schema.FieldType{Kind: schema.KindPrimitive, TypeName: "string"},
			Customizer: &Customizer{Kind: CustomizerFunction, FunctionName: fname},
		}, nil

	case nestedFieldRe.MatchString(expr):
		m := nestedFieldRe.FindStringSubmatch(expr)
		base, selector := m[1], m[2]
		baseType, err := e.registry.FieldType(base)
		if err != nil {
			return Column{}, err
		}
		if baseType.Kind != schema.KindStruct {
			return Column{}, invalidQueryf("selector %q needs a struct field, %s is %s", selector, base, baseType.Kind)
		}
		typ := schema.FieldType{Kind: schema.KindPrimitive, TypeName: "string", Repeated: baseType.Repeated}
		if md, ok := e.registry.StructDesc(baseType.TypeName); ok {
			selType, err := e.registry.FieldTypeIn(md, selector)
			if err != nil {
				return Column{}, err
			}
			typ = schema.FieldType{
				Kind:     selType.Kind,
				TypeName: selType.TypeName,
				Repeated: baseType.Repeated || selType.Repeated,
			}
		}
		addRequested(base)
		return Column{
			Name:       columnName(alias, base, info.Name),
			Expression: base,
			Type:       typ,
			Customizer: &Customizer{Kind: CustomizerNestedField, Selector: selector},
		}, nil

	case colonPrefixRe.MatchString(expr) || strings.HasSuffix(expr, ":"):
		return Column{}, invalidQueryf("bad selector in %q", expr)

	case fieldPathRe.MatchString(expr):
		typ, err := e.registry.FieldType(expr)
		if err != nil {
			return Column{}, err
		}
		addRequested(expr)
		return Column{
			Name:       columnName(alias, expr, info.Name),
			Expression: expr,
			Type:       typ,
		}, nil

	default:
		return e.buildVirtualColumn(expr, alias, addRequested)
	}
}

// buildVirtualColumn compiles an expression column. Constant expressions are
// folded at parse time; others record the fields they read so the native
// query requests them.
func (e *Editor) buildVirtualColumn(expr, alias string, addRequested func(string)) (Column, error) {
	x, err := e.eng.Parse(expr)
	if err != nil {
		return Column{}, invalidQueryf("bad expression %q: %v", expr, err)
	}
	if alias == "" {
		return Column{}, invalidQueryf("expression %q requires an alias", expr)
	}

	if x.IsConstant() {
		v, typeName := x.ConstantValue()
		return Column{
			Name:       alias,
			Expression: expr,
			Type:       schema.FieldType{Kind: schema.KindPrimitive, TypeName: typeName},
			Customizer: &Customizer{Kind: CustomizerVirtual, Constant: true, Value: v},
		}, nil
	}

	accessors := x.Accessors()
	typeName := ""
	numeric := len(accessors) > 0
	for _, acc := range accessors {
		t, err := e.registry.FieldType(acc)
		if err != nil {
			return Column{}, err
		}
		addRequested(acc)
		scalar := t.Kind == schema.KindPrimitive && !t.Repeated
		if !scalar || !numericType(t.TypeName) {
			numeric = false
		}
		switch {
		case !scalar:
			typeName = "string"
		case typeName == "":
			typeName = t.TypeName
		case typeName != t.TypeName:
			typeName = "string"
		}
	}
	// All-numeric expressions are typed double: a double literal anywhere in
	// the expression promotes the result, and int64 values fit a double
	// column unchanged.
	if numeric {
		typeName = "double"
	}
	if typeName == "" {
		typeName = "string"
	}
	return Column{
		Name:       alias,
		Expression: expr,
		Type:       schema.FieldType{Kind: schema.KindPrimitive, TypeName: typeName},
		Customizer: &Customizer{Kind: CustomizerVirtual, Expr: x, Accessors: accessors},
	}, nil
}

func numericType(typeName string) bool {
	switch typeName {
	case "int32", "int64", "float", "double":
		return true
	}
	return false
}

// columnName derives an output name: the alias when present, else the dotted
// path with dots underscored and the leading resource prefix dropped.
func columnName(alias, path, resource string) string {
	if alias != "" {
		return alias
	}
	n := strings.ReplaceAll(path, ".", "_")
	return strings.TrimPrefix(n, resource+"_")
}
