// Copyright © 2026 The adsfetch Authors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package writers

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readJSONArray(t *testing.T, path string) []map[string]any {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(b, &rows))
	return rows
}

func TestJSONArrayFormat(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	w := NewJSON(JSONOptions{OutputPath: dir})
	plan := testPlan(intCol("campaign_id"), strCol("campaign_name"), repeatedStrCol("labels"))
	require.NoError(t, w.BeginScript(ctx, "demo", plan))
	feed(t, w, "111", [][]any{
		{int64(1), "Brand", []any{"a", "b"}},
	})
	feed(t, w, "222", [][]any{{int64(2), "Other", nil}})
	require.NoError(t, w.EndScript(ctx))

	rows := readJSONArray(t, filepath.Join(dir, "demo.json"))
	require.Len(t, rows, 2)
	assert.Equal(t, float64(1), rows[0]["campaign_id"])
	assert.Equal(t, "Brand", rows[0]["campaign_name"])
	assert.Equal(t, []any{"a", "b"}, rows[0]["labels"])
	assert.Nil(t, rows[1]["labels"])
}

func TestJSONLinesFormat(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	w := NewJSON(JSONOptions{OutputPath: dir, Format: JSONFormatLines})
	require.NoError(t, w.BeginScript(ctx, "demo", testPlan(intCol("campaign_id"))))
	feed(t, w, "111", [][]any{{int64(1)}, {int64(2)}})
	require.NoError(t, w.EndScript(ctx))

	b, err := os.ReadFile(filepath.Join(dir, "demo.json"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	require.Len(t, lines, 2)
	for i, line := range lines {
		var row map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &row))
		assert.Equal(t, float64(i+1), row["campaign_id"])
	}
}

func TestJSONFilePerCustomer(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	w := NewJSON(JSONOptions{OutputPath: dir, FilePerCustomer: true})
	require.NoError(t, w.BeginScript(ctx, "demo", testPlan(intCol("campaign_id"))))
	feed(t, w, "111", [][]any{{int64(1)}})
	feed(t, w, "222", nil)
	require.NoError(t, w.EndScript(ctx))

	rows := readJSONArray(t, filepath.Join(dir, "demo_111.json"))
	require.Len(t, rows, 1)
	assert.Equal(t, float64(1), rows[0]["campaign_id"])

	empty := readJSONArray(t, filepath.Join(dir, "demo_222.json"))
	assert.Empty(t, empty)
	assert.NoFileExists(t, filepath.Join(dir, "demo.json"))
}

func TestJSONUnknownFormat(t *testing.T) {
	w := NewJSON(JSONOptions{Format: "yaml"})
	err := w.BeginScript(context.Background(), "demo", testPlan(intCol("campaign_id")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestJSONZeroRowsWritesEmptyArray(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	w := NewJSON(JSONOptions{OutputPath: dir})
	require.NoError(t, w.BeginScript(ctx, "demo", testPlan(intCol("campaign_id"))))
	require.NoError(t, w.EndScript(ctx))

	b, err := os.ReadFile(filepath.Join(dir, "demo.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(b))
}
