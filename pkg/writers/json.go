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

package writers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adsfetch/adsfetch/pkg/query"
)

// JSON output formats.
const (
	// JSONFormatArray writes one indented JSON array per file.
	JSONFormatArray = "json"
	// JSONFormatLines writes one JSON object per line.
	JSONFormatLines = "jsonl"
)

// JSONOptions configure the JSON sink.
type JSONOptions struct {
	// OutputPath is the destination directory; see ResolveDir.
	OutputPath string
	// Format is JSONFormatArray (default) or JSONFormatLines.
	Format string
	// FilePerCustomer writes <script>_<account>.json per account instead
	// of one shared <script>.json. Ignored for constant resources.
	FilePerCustomer bool
}

// JSON writes rows as objects keyed by column name, either as an array or
// as JSON lines.
type JSON struct {
	opts JSONOptions

	mu          sync.Mutex
	dir         string
	script      string
	plan        *query.Plan
	perCustomer bool
	buf         map[string][]map[string]any
}

var _ Writer = (*JSON)(nil)

// NewJSON returns a JSON sink writing under opts.OutputPath.
func NewJSON(opts JSONOptions) *JSON {
	if opts.Format == "" {
		opts.Format = JSONFormatArray
	}
	return &JSON{opts: opts}
}

func (j *JSON) BeginScript(ctx context.Context, scriptName string, plan *query.Plan) error {
	if j.opts.Format != JSONFormatArray && j.opts.Format != JSONFormatLines {
		return fmt.Errorf("json: unknown format %q", j.opts.Format)
	}
	dir, err := ResolveDir(j.opts.OutputPath)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.dir = dir
	j.script = scriptName
	j.plan = plan
	j.perCustomer = j.opts.FilePerCustomer && !plan.Resource.IsConstant
	j.buf = make(map[string][]map[string]any)
	return nil
}

func (j *JSON) BeginCustomer(ctx context.Context, accountID string) error { return nil }

func (j *JSON) AddRow(ctx context.Context, accountID string, parsed []any, raw map[string]any) error {
	obj := make(map[string]any, len(j.plan.Columns))
	for i, name := range j.plan.ColumnNames() {
		if i < len(parsed) {
			obj[name] = parsed[i]
		} else {
			obj[name] = nil
		}
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	key := j.key(accountID)
	j.buf[key] = append(j.buf[key], obj)
	return nil
}

func (j *JSON) EndCustomer(ctx context.Context, accountID string) error {
	if !j.perCustomer {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	rows := j.buf[accountID]
	delete(j.buf, accountID)
	return j.write(fmt.Sprintf("%s_%s.json", j.script, accountID), rows)
}

func (j *JSON) EndScript(ctx context.Context) error {
	if j.perCustomer {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	rows := j.buf[""]
	delete(j.buf, "")
	return j.write(j.script+".json", rows)
}

func (j *JSON) key(accountID string) string {
	if j.perCustomer {
		return accountID
	}
	return ""
}

func (j *JSON) write(name string, rows []map[string]any) error {
	path := filepath.Join(j.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("json: creating %s: %w", path, err)
	}
	switch j.opts.Format {
	case JSONFormatLines:
		enc := json.NewEncoder(f)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				f.Close()
				return fmt.Errorf("json: writing %s: %w", path, err)
			}
		}
	default:
		if rows == nil {
			rows = []map[string]any{}
		}
		b, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			f.Close()
			return fmt.Errorf("json: encoding %s: %w", path, err)
		}
		if _, err := f.Write(append(b, '\n')); err != nil {
			f.Close()
			return fmt.Errorf("json: writing %s: %w", path, err)
		}
	}
	return f.Close()
}
