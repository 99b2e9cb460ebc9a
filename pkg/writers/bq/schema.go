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

package bq

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"

	"github.com/adsfetch/adsfetch/pkg/query"
	"github.com/adsfetch/adsfetch/pkg/schema"
	"github.com/adsfetch/adsfetch/pkg/writers"
)

// deriveSchema maps the column plan to BigQuery fields. Columns are
// REPEATED only in arrays mode; strings mode flattens them to STRING.
func deriveSchema(plan *query.Plan, arrayHandling string) bigquery.Schema {
	fields := make(bigquery.Schema, 0, len(plan.Columns))
	for _, col := range plan.Columns {
		fields = append(fields, &bigquery.FieldSchema{
			Name:     fieldName(col.Name),
			Type:     fieldType(col, arrayHandling),
			Repeated: col.Type.Repeated && arrayHandling == ArrayHandlingArrays,
		})
	}
	return fields
}

func fieldType(col query.Column, arrayHandling string) bigquery.FieldType {
	if col.Type.Repeated && arrayHandling == ArrayHandlingStrings {
		return bigquery.StringFieldType
	}
	if col.Type.Kind == schema.KindPrimitive {
		switch col.Type.TypeName {
		case "int32", "int64":
			return bigquery.IntegerFieldType
		case "float", "double":
			return bigquery.FloatFieldType
		case "bool":
			return bigquery.BooleanFieldType
		}
	}
	// enums, structs and anything unknown land as strings
	return bigquery.StringFieldType
}

func fieldName(column string) string {
	return strings.ReplaceAll(column, ".", "_")
}

// tableName substitutes the script name into the template and strips
// characters BigQuery table ids reject.
func tableName(template, script string) string {
	name := strings.ReplaceAll(template, "{scriptName}", script)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}

// serializeCell prepares one parsed value for NDJSON or streaming insert.
// Repeated columns keep their elements in arrays mode (objects and nested
// arrays become JSON strings) and collapse to a joined string in strings
// mode. Struct values become JSON strings; primitives pass through.
func (w *Writer) serializeCell(col query.Column, v any) any {
	if v == nil {
		return nil
	}
	if col.Type.Repeated {
		if w.cfg.ArrayHandling == ArrayHandlingStrings {
			return writers.FormatCell(v, w.cfg.ArraySeparator)
		}
		arr, ok := v.([]any)
		if !ok {
			arr = []any{v}
		}
		out := make([]any, len(arr))
		for i, el := range arr {
			switch el.(type) {
			case map[string]any, []any:
				out[i] = jsonText(el)
			default:
				out[i] = el
			}
		}
		return out
	}
	if _, ok := v.(map[string]any); ok {
		return jsonText(v)
	}
	return v
}

// rowJSON renders one staged NDJSON line. Nil cells are omitted so they
// load as NULL.
func (w *Writer) rowJSON(parsed []any) ([]byte, error) {
	obj := make(map[string]any, len(w.plan.Columns))
	for i, col := range w.plan.Columns {
		var v any
		if i < len(parsed) {
			v = parsed[i]
		}
		cell := w.serializeCell(col, v)
		if cell == nil {
			continue
		}
		obj[fieldName(col.Name)] = cell
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// rowValues builds one positional row for the streaming insert path.
func (w *Writer) rowValues(parsed []any) []bigquery.Value {
	vals := make([]bigquery.Value, len(w.plan.Columns))
	for i, col := range w.plan.Columns {
		var v any
		if i < len(parsed) {
			v = parsed[i]
		}
		vals[i] = toValue(w.serializeCell(col, v))
	}
	return vals
}

func toValue(v any) bigquery.Value {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]bigquery.Value, len(arr))
	for i, el := range arr {
		out[i] = el
	}
	return out
}

func jsonText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

type schemaDumpField struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Mode string `json:"mode"`
}

// dumpSchema writes the derived schema sidecar <script>_schema.json into
// the local dump directory.
func (w *Writer) dumpSchema() error {
	fields := make([]schemaDumpField, len(w.schema))
	for i, f := range w.schema {
		mode := "NULLABLE"
		if f.Repeated {
			mode = "REPEATED"
		}
		fields[i] = schemaDumpField{Name: f.Name, Type: string(f.Type), Mode: mode}
	}
	b, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return err
	}
	dir, err := w.dumpDir()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, w.script+"_schema.json")
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return err
	}
	w.log.Info("schema dumped", zap.String("path", path))
	return nil
}

// dumpDir resolves where local sidecar files go. A GCS output path cannot
// hold them, so it falls back to the default resolution.
func (w *Writer) dumpDir() (string, error) {
	if isGCSPath(w.cfg.OutputPath) {
		return writers.ResolveDir("")
	}
	return writers.ResolveDir(w.cfg.OutputPath)
}
