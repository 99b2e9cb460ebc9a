// Copyright © 2026 The adsfetch Authors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package writers

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adsfetch/adsfetch/pkg/query"
)

// CSVOptions configure the CSV sink.
type CSVOptions struct {
	// OutputPath is the destination directory; see ResolveDir.
	OutputPath string
	// FilePerCustomer writes <script>_<account>.csv per account instead of
	// one shared <script>.csv. Ignored for constant resources.
	FilePerCustomer bool
	// ArraySeparator joins repeated values inside a cell.
	ArraySeparator string
}

// CSV writes rows as comma-separated files with a header row of column
// names. Arrays are joined with the separator, structs rendered as JSON.
type CSV struct {
	opts CSVOptions

	mu          sync.Mutex
	dir         string
	script      string
	plan        *query.Plan
	perCustomer bool
	files       map[string]*csvFile
}

type csvFile struct {
	f *os.File
	w *csv.Writer
}

var _ Writer = (*CSV)(nil)

// NewCSV returns a CSV sink writing under opts.OutputPath.
func NewCSV(opts CSVOptions) *CSV {
	if opts.ArraySeparator == "" {
		opts.ArraySeparator = DefaultArraySeparator
	}
	return &CSV{opts: opts}
}

func (c *CSV) BeginScript(ctx context.Context, scriptName string, plan *query.Plan) error {
	dir, err := ResolveDir(c.opts.OutputPath)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dir = dir
	c.script = scriptName
	c.plan = plan
	c.perCustomer = c.opts.FilePerCustomer && !plan.Resource.IsConstant
	c.files = make(map[string]*csvFile)
	if !c.perCustomer {
		shared, err := c.open(scriptName + ".csv")
		if err != nil {
			return err
		}
		c.files[""] = shared
	}
	return nil
}

func (c *CSV) BeginCustomer(ctx context.Context, accountID string) error {
	if !c.perCustomer {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cf, err := c.open(fmt.Sprintf("%s_%s.csv", c.script, accountID))
	if err != nil {
		return err
	}
	c.files[accountID] = cf
	return nil
}

func (c *CSV) AddRow(ctx context.Context, accountID string, parsed []any, raw map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cf := c.file(accountID)
	if cf == nil {
		return fmt.Errorf("csv: no open file for account %s", accountID)
	}
	record := make([]string, len(parsed))
	for i, v := range parsed {
		record[i] = FormatCell(v, c.opts.ArraySeparator)
	}
	return cf.w.Write(record)
}

func (c *CSV) EndCustomer(ctx context.Context, accountID string) error {
	if !c.perCustomer {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cf := c.files[accountID]
	if cf == nil {
		return nil
	}
	delete(c.files, accountID)
	return cf.close()
}

func (c *CSV) EndScript(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for key, cf := range c.files {
		if err := cf.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.files, key)
	}
	return firstErr
}

// open creates (truncating) a file in the destination directory and writes
// the header row.
func (c *CSV) open(name string) (*csvFile, error) {
	path := filepath.Join(c.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: creating %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(c.plan.ColumnNames()); err != nil {
		f.Close()
		return nil, fmt.Errorf("csv: writing header to %s: %w", path, err)
	}
	return &csvFile{f: f, w: w}, nil
}

func (c *CSV) file(accountID string) *csvFile {
	if c.perCustomer {
		return c.files[accountID]
	}
	return c.files[""]
}

func (cf *csvFile) close() error {
	cf.w.Flush()
	err := cf.w.Error()
	if cerr := cf.f.Close(); err == nil {
		err = cerr
	}
	return err
}
