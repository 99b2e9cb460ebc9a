// Copyright © 2026 The adsfetch Authors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package writers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/adsfetch/adsfetch/pkg/query"
)

// XLSXOptions configure the Excel sink.
type XLSXOptions struct {
	// OutputPath is the destination directory; see ResolveDir.
	OutputPath string
	// ArraySeparator joins repeated values inside a cell.
	ArraySeparator string
}

// XLSX collects every account's rows and writes one workbook per script
// with a single sheet and a bold header row.
type XLSX struct {
	opts XLSXOptions

	mu     sync.Mutex
	dir    string
	script string
	sheet  string
	plan   *query.Plan
	rows   [][]any
}

var _ Writer = (*XLSX)(nil)

// NewXLSX returns an Excel sink writing under opts.OutputPath.
func NewXLSX(opts XLSXOptions) *XLSX {
	if opts.ArraySeparator == "" {
		opts.ArraySeparator = DefaultArraySeparator
	}
	return &XLSX{opts: opts}
}

func (x *XLSX) BeginScript(ctx context.Context, scriptName string, plan *query.Plan) error {
	dir, err := ResolveDir(x.opts.OutputPath)
	if err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.dir = dir
	x.script = scriptName
	x.sheet = sheetName(scriptName)
	x.plan = plan
	x.rows = nil
	return nil
}

func (x *XLSX) BeginCustomer(ctx context.Context, accountID string) error { return nil }

func (x *XLSX) AddRow(ctx context.Context, accountID string, parsed []any, raw map[string]any) error {
	cells := make([]any, len(parsed))
	for i, v := range parsed {
		cells[i] = cellValue(v, x.opts.ArraySeparator)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.rows = append(x.rows, cells)
	return nil
}

func (x *XLSX) EndCustomer(ctx context.Context, accountID string) error { return nil }

func (x *XLSX) EndScript(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", x.sheet); err != nil {
		return fmt.Errorf("xlsx: naming sheet: %w", err)
	}
	names := x.plan.ColumnNames()
	header := make([]any, len(names))
	for i, n := range names {
		header[i] = n
	}
	if err := f.SetSheetRow(x.sheet, "A1", &header); err != nil {
		return fmt.Errorf("xlsx: writing header: %w", err)
	}
	if len(names) > 0 {
		style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return fmt.Errorf("xlsx: header style: %w", err)
		}
		last, err := excelize.CoordinatesToCellName(len(names), 1)
		if err != nil {
			return fmt.Errorf("xlsx: header range: %w", err)
		}
		if err := f.SetCellStyle(x.sheet, "A1", last, style); err != nil {
			return fmt.Errorf("xlsx: header style: %w", err)
		}
	}
	for i := range x.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("xlsx: row %d: %w", i, err)
		}
		if err := f.SetSheetRow(x.sheet, cell, &x.rows[i]); err != nil {
			return fmt.Errorf("xlsx: row %d: %w", i, err)
		}
	}
	path := filepath.Join(x.dir, x.script+".xlsx")
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx: saving %s: %w", path, err)
	}
	return nil
}

// sheetName caps the script name to Excel's 31-character sheet limit and
// strips the characters Excel forbids.
func sheetName(script string) string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, script)
	if s == "" {
		s = "report"
	}
	if len(s) > 31 {
		s = s[:31]
	}
	return s
}
