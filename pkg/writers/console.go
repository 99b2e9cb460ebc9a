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
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/adsfetch/adsfetch/pkg/query"
)

// ConsoleOptions configure the console sink.
type ConsoleOptions struct {
	// Out receives the rendered tables. Defaults to os.Stdout.
	Out io.Writer
	// PageSize caps the rows printed per account; 0 prints everything.
	PageSize int
	// ArraySeparator joins repeated values inside a cell.
	ArraySeparator string
	// Width overrides the detected terminal width; 0 autodetects when Out
	// is a terminal, and disables truncation otherwise.
	Width int
}

// Console buffers each account's rows and prints them as a table when the
// account finishes. Long cells are truncated to fit the terminal.
type Console struct {
	opts ConsoleOptions

	mu     sync.Mutex
	script string
	plan   *query.Plan
	rows   map[string][][]any
}

var _ Writer = (*Console)(nil)

// NewConsole returns a console sink writing to opts.Out.
func NewConsole(opts ConsoleOptions) *Console {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.ArraySeparator == "" {
		opts.ArraySeparator = DefaultArraySeparator
	}
	return &Console{opts: opts}
}

func (c *Console) BeginScript(ctx context.Context, scriptName string, plan *query.Plan) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = scriptName
	c.plan = plan
	c.rows = make(map[string][][]any)
	return nil
}

func (c *Console) BeginCustomer(ctx context.Context, accountID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[accountID] = nil
	return nil
}

func (c *Console) AddRow(ctx context.Context, accountID string, parsed []any, raw map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[accountID] = append(c.rows[accountID], parsed)
	return nil
}

// EndCustomer renders the account's table. The lock spans the whole render
// so tables from concurrently finishing accounts never interleave.
func (c *Console) EndCustomer(ctx context.Context, accountID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := c.rows[accountID]
	delete(c.rows, accountID)
	return c.render(accountID, rows)
}

func (c *Console) EndScript(ctx context.Context) error { return nil }

func (c *Console) render(accountID string, rows [][]any) error {
	names := c.plan.ColumnNames()
	if _, err := fmt.Fprintf(c.opts.Out, "%s / %s: %d rows\n", c.script, accountID, len(rows)); err != nil {
		return err
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(c.opts.Out)
		return err
	}

	shown := rows
	if c.opts.PageSize > 0 && len(shown) > c.opts.PageSize {
		shown = shown[:c.opts.PageSize]
	}
	limit := c.cellLimit(len(names))

	w := tabwriter.NewWriter(c.opts.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(names, "\t"))
	fmt.Fprintln(w, strings.Join(underlines(names), "\t"))
	for _, row := range shown {
		cells := make([]string, len(names))
		for i := range names {
			var v any
			if i < len(row) {
				v = row[i]
			}
			cells[i] = truncateCell(FormatCell(v, c.opts.ArraySeparator), limit)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if hidden := len(rows) - len(shown); hidden > 0 {
		if _, err := fmt.Fprintf(c.opts.Out, "... and %d more rows\n", hidden); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(c.opts.Out)
	return err
}

// cellLimit derives the per-cell width cap from the terminal width. Zero
// means unlimited.
func (c *Console) cellLimit(cols int) int {
	width := c.opts.Width
	if width == 0 {
		f, ok := c.opts.Out.(*os.File)
		if !ok || !term.IsTerminal(int(f.Fd())) {
			return 0
		}
		w, _, err := term.GetSize(int(f.Fd()))
		if err != nil {
			return 0
		}
		width = w
	}
	if width <= 0 || cols == 0 {
		return 0
	}
	limit := width/cols - 2
	if limit < 10 {
		limit = 10
	}
	return limit
}

func truncateCell(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}

func underlines(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.Repeat("-", len(n))
	}
	return out
}
