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
// Package rows turns raw hierarchical API rows into flat value vectors
// according to a query plan: flatten, project each column, apply its
// customizer, and normalize enums.
package rows

import (
	"fmt"
	"strconv"

	"github.com/adsfetch/adsfetch/pkg/query"
	"github.com/adsfetch/adsfetch/pkg/schema"
)

// BadResourceIndexSourceError reports a ~N customizer applied to a value
// that is not a resource name.
type BadResourceIndexSourceError struct {
	Column string
	Value  any
}

func (e *BadResourceIndexSourceError) Error() string {
	return fmt.Sprintf("column %q: resource index needs a resource name, got %T", e.Column, e.Value)
}

// Parser projects raw rows through a plan's columns.
type Parser struct {
	registry *schema.Registry
	naming   Naming
}

// NewParser builds a parser. The naming must match the transport the raw
// rows came from.
func NewParser(reg *schema.Registry, naming Naming) *Parser {
	return &Parser{registry: reg, naming: naming}
}

// ParseRow returns one value per plan column, in column order.
func (p *Parser) ParseRow(raw map[string]any, plan *query.Plan) ([]any, error) {
	flat := Flatten(raw, p.naming)
	out := make([]any, len(plan.Columns))
	for i, col := range plan.Columns {
		v, err := p.project(flat, plan, col)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ParseRowObject returns the row keyed by column name.
func (p *Parser) ParseRowObject(raw map[string]any, plan *query.Plan) (map[string]any, error) {
	vec, err := p.ParseRow(raw, plan)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(vec))
	for i, col := range plan.Columns {
		out[col.Name] = vec[i]
	}
	return out, nil
}

func (p *Parser) project(flat map[string]any, plan *query.Plan, col query.Column) (any, error) {
	c := col.Customizer
	if c == nil {
		return p.normalize(flat[col.Expression], col), nil
	}

	switch c.Kind {
	case query.CustomizerVirtual:
		if c.Constant {
			return c.Value, nil
		}
		v, err := c.Expr.Eval(flat)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		return v, nil

	case query.CustomizerFunction:
		v := flat[col.Expression]
		if v == nil {
			return nil, nil
		}
		res, err := plan.Functions.Call(c.FunctionName, v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		return res, nil

	case query.CustomizerResourceIndex:
		return applyElementwise(flat[col.Expression], func(v any) (any, error) {
			return resourceIndex(v, c.Index, col.Name)
		})

	case query.CustomizerNestedField:
		v, err := applyElementwise(flat[col.Expression], func(v any) (any, error) {
			return nestedField(v, c.Selector), nil
		})
		if err != nil {
			return nil, err
		}
		return p.normalize(v, col), nil

	default:
		return nil, fmt.Errorf("column %q: unknown customizer", col.Name)
	}
}

// applyElementwise maps fn over array values, or applies it once.
func applyElementwise(v any, fn func(any) (any, error)) (any, error) {
	if v == nil {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return fn(v)
	}
	out := make([]any, len(arr))
	for i, el := range arr {
		r, err := fn(el)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// normalize fixes up transport-specific encodings. The streaming transport
// returns enums as numbers that are rewritten to their names; the REST
// transport names enums already but encodes 64-bit integers as JSON strings,
// which are converted back to int64 here.
func (p *Parser) normalize(v any, col query.Column) any {
	if v == nil {
		return v
	}
	switch col.Type.Kind {
	case schema.KindEnum:
		if p.naming != NamingProto {
			return v
		}
		names, ok := p.registry.EnumNames(col.Type.TypeName)
		if !ok {
			return v
		}
		return mapElements(v, func(e any) any {
			switch n := e.(type) {
			case int64:
				if name, ok := names[n]; ok {
					return name
				}
			case float64:
				if name, ok := names[int64(n)]; ok {
					return name
				}
			}
			return e
		})
	case schema.KindPrimitive:
		if p.naming != NamingREST {
			return v
		}
		switch col.Type.TypeName {
		case "int64", "int32":
			return mapElements(v, func(e any) any {
				if s, ok := e.(string); ok {
					if n, err := strconv.ParseInt(s, 10, 64); err == nil {
						return n
					}
				}
				return e
			})
		}
	}
	return v
}

// mapElements applies fn over array values, or once to a scalar.
func mapElements(v any, fn func(any) any) any {
	if arr, ok := v.([]any); ok {
		out := make([]any, len(arr))
		for i, el := range arr {
			out[i] = fn(el)
		}
		return out
	}
	return fn(v)
}
