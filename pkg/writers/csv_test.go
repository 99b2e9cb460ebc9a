// Copyright © 2026 The adsfetch Authors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package writers

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestCSVSharedFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	w := NewCSV(CSVOptions{OutputPath: dir})
	plan := testPlan(intCol("campaign_id"), strCol("campaign_name"), repeatedStrCol("labels"))
	require.NoError(t, w.BeginScript(ctx, "demo", plan))
	feed(t, w, "111", [][]any{
		{int64(1), "Brand", []any{"a", "b"}},
		{int64(2), "Generic", nil},
	})
	feed(t, w, "222", [][]any{{int64(3), "Other", []any{}}})
	require.NoError(t, w.EndScript(ctx))

	records := readCSV(t, filepath.Join(dir, "demo.csv"))
	require.Len(t, records, 4)
	assert.Equal(t, []string{"campaign_id", "campaign_name", "labels"}, records[0])
	assert.Equal(t, []string{"1", "Brand", "a|b"}, records[1])
	assert.Equal(t, []string{"2", "Generic", ""}, records[2])
	assert.Equal(t, []string{"3", "Other", ""}, records[3])
}

func TestCSVFilePerCustomer(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	w := NewCSV(CSVOptions{OutputPath: dir, FilePerCustomer: true})
	require.NoError(t, w.BeginScript(ctx, "demo", testPlan(intCol("campaign_id"))))
	feed(t, w, "111", [][]any{{int64(1)}})
	feed(t, w, "222", [][]any{{int64(2)}, {int64(3)}})
	require.NoError(t, w.EndScript(ctx))

	first := readCSV(t, filepath.Join(dir, "demo_111.csv"))
	assert.Equal(t, [][]string{{"campaign_id"}, {"1"}}, first)
	second := readCSV(t, filepath.Join(dir, "demo_222.csv"))
	assert.Equal(t, [][]string{{"campaign_id"}, {"2"}, {"3"}}, second)
}

func TestCSVConstantResourceIgnoresFilePerCustomer(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	w := NewCSV(CSVOptions{OutputPath: dir, FilePerCustomer: true})
	require.NoError(t, w.BeginScript(ctx, "geo", constantPlan(intCol("id"))))
	feed(t, w, "111", [][]any{{int64(9)}})
	require.NoError(t, w.EndScript(ctx))

	records := readCSV(t, filepath.Join(dir, "geo.csv"))
	assert.Equal(t, [][]string{{"id"}, {"9"}}, records)
	assert.NoFileExists(t, filepath.Join(dir, "geo_111.csv"))
}

func TestCSVZeroRowAccountStillGetsFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	w := NewCSV(CSVOptions{OutputPath: dir, FilePerCustomer: true})
	require.NoError(t, w.BeginScript(ctx, "demo", testPlan(intCol("campaign_id"))))
	feed(t, w, "111", nil)
	require.NoError(t, w.EndScript(ctx))

	records := readCSV(t, filepath.Join(dir, "demo_111.csv"))
	assert.Equal(t, [][]string{{"campaign_id"}}, records)
}

func TestCSVCustomSeparator(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	w := NewCSV(CSVOptions{OutputPath: dir, ArraySeparator: ";"})
	require.NoError(t, w.BeginScript(ctx, "demo", testPlan(repeatedStrCol("labels"))))
	feed(t, w, "111", [][]any{{[]any{"x", "y"}}})
	require.NoError(t, w.EndScript(ctx))

	records := readCSV(t, filepath.Join(dir, "demo.csv"))
	assert.Equal(t, []string{"x;y"}, records[1])
}
