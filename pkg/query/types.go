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
	"context"

	"github.com/adsfetch/adsfetch/pkg/mathexp"
	"github.com/adsfetch/adsfetch/pkg/schema"
)

// CustomizerKind tags the per-column post-processing variants.
type CustomizerKind int

const (
	// CustomizerResourceIndex selects the Nth ~-delimited segment of a
	// resource name.
	CustomizerResourceIndex CustomizerKind = iota
	// CustomizerNestedField traverses a dotted selector inside a struct value.
	CustomizerNestedField
	// CustomizerFunction applies a user function from the FUNCTIONS block.
	CustomizerFunction
	// CustomizerVirtual computes the column from an expression over the row.
	CustomizerVirtual
)

func (k CustomizerKind) String() string {
	switch k {
	case CustomizerResourceIndex:
		return "resource_index"
	case CustomizerNestedField:
		return "nested_field"
	case CustomizerFunction:
		return "function"
	case CustomizerVirtual:
		return "virtual"
	default:
		return "unknown"
	}
}

// Customizer is the post-processing attached to a column. Exactly the fields
// of its kind are set.
type Customizer struct {
	Kind CustomizerKind

	// Index is the segment for CustomizerResourceIndex.
	Index int
	// Selector is the dotted path for CustomizerNestedField.
	Selector string
	// FunctionName names the user function for CustomizerFunction.
	FunctionName string

	// Expr and Accessors carry a non-constant CustomizerVirtual.
	Expr      *mathexp.Expression
	Accessors []string
	// Constant and Value carry a virtual column folded at parse time.
	Constant bool
	Value    any
}

// Column is one projected output column.
type Column struct {
	// Name is the output identifier, unique within a plan.
	Name string
	// Expression is the raw text the column was parsed from, without the
	// customizer suffix.
	Expression string
	// Type describes the column's value.
	Type schema.FieldType
	// Customizer is nil for a plain field accessor.
	Customizer *Customizer
}

// Virtual reports whether the column is computed rather than fetched.
func (c Column) Virtual() bool {
	return c.Customizer != nil && c.Customizer.Kind == CustomizerVirtual
}

// Plan is the parsed form of one script: the query to send upstream, the
// ordered columns, and everything needed to turn raw rows into values.
type Plan struct {
	// NativeQuery is the rewritten query accepted by the upstream API.
	NativeQuery string
	// Columns is the ordered output projection.
	Columns []Column
	// Resource is the FROM target.
	Resource schema.ResourceInfo
	// Functions holds the compiled FUNCTIONS block, if any.
	Functions *FunctionTable
	// Executor overrides normal execution for built-in synthetic queries.
	Executor OverrideExecutor
}

// ColumnNames returns the projection names in order.
func (p *Plan) ColumnNames() []string {
	names := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		names[i] = c.Name
	}
	return names
}

// RowSource is the slice of the API client surface built-in executors need.
type RowSource interface {
	Search(ctx context.Context, query, customerID string) ([]map[string]any, error)
}

// OverrideExecutor produces a plan's rows directly, bypassing the normal
// fetch-and-parse path. Rows are positional, matching the plan's columns.
type OverrideExecutor interface {
	Execute(ctx context.Context, src RowSource, customerID string) ([][]any, error)
}
