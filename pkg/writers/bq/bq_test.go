// Copyright © 2026 The adsfetch Authors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package bq

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adsfetch/adsfetch/pkg/query"
	"github.com/adsfetch/adsfetch/pkg/schema"
)

func TestConfigDefaults(t *testing.T) {
	w := newTestWriter(t, Config{Project: "p", Dataset: "d"})
	require.Equal(t, DefaultLocation, w.cfg.Location)
	require.Equal(t, DefaultTableTemplate, w.cfg.TableTemplate)
	require.Equal(t, InsertMethodLoad, w.cfg.InsertMethod)
	require.Equal(t, ArrayHandlingArrays, w.cfg.ArrayHandling)
	require.Equal(t, "|", w.cfg.ArraySeparator)
	require.NotNil(t, w.log)
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{Dataset: "d"})
	require.ErrorContains(t, err, "project")

	_, err = New(Config{Project: "p"})
	require.ErrorContains(t, err, "dataset")

	_, err = New(Config{Project: "p", Dataset: "d", InsertMethod: "upsert"})
	require.ErrorContains(t, err, "insert method")

	_, err = New(Config{Project: "p", Dataset: "d", ArrayHandling: "json"})
	require.ErrorContains(t, err, "array handling")
}

// beginDemo starts the demo script with a two column campaign plan.
func beginDemo(t *testing.T, w *Writer) {
	t.Helper()
	p := plan(col("campaign.id", "int64"), col("campaign.name", "string"))
	require.NoError(t, w.BeginScript(context.Background(), "demo", p))
}

func TestStagingFilePerAccount(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, Config{Project: "p", Dataset: "d", OutputPath: dir})
	ctx := context.Background()
	beginDemo(t, w)

	require.NoError(t, w.BeginCustomer(ctx, "111"))
	require.NoError(t, w.AddRow(ctx, "111", []any{int64(1), "Brand"}, nil))
	require.NoError(t, w.AddRow(ctx, "111", []any{int64(2), nil}, nil))
	require.NoError(t, w.accounts["111"].sink.Close())

	b, err := os.ReadFile(filepath.Join(dir, ".demo_111.json"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, float64(1), first["campaign_id"])
	require.Equal(t, "Brand", first["campaign_name"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.NotContains(t, second, "campaign_name")
}

func TestConstantResourceSharesOneTable(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, Config{Project: "p", Dataset: "d", OutputPath: dir})
	p := &query.Plan{
		Columns:  []query.Column{col("geo_target_constant.id", "int64")},
		Resource: schema.ResourceInfo{Name: "geo_target_constant", IsConstant: true},
	}
	ctx := context.Background()
	require.NoError(t, w.BeginScript(ctx, "geo", p))
	require.NoError(t, w.BeginCustomer(ctx, "111"))

	require.Equal(t, "geo", w.accounts["111"].table)
	require.FileExists(t, filepath.Join(dir, ".geo.json"))
}

func TestBeginCustomerRejectsCompletedAccount(t *testing.T) {
	w := newTestWriter(t, Config{Project: "p", Dataset: "d", OutputPath: t.TempDir()})
	ctx := context.Background()
	beginDemo(t, w)
	require.NoError(t, w.BeginCustomer(ctx, "111"))

	// EndCustomer dropping the entry while keeping the account in seen is
	// what marks it completed.
	w.accounts["111"].sink.Abandon()
	delete(w.accounts, "111")

	err := w.BeginCustomer(ctx, "111")
	require.ErrorContains(t, err, "already written")
}

func TestBeginCustomerResumesLeftoverAccount(t *testing.T) {
	dir := t.TempDir()
	w := newTestWriter(t, Config{Project: "p", Dataset: "d", OutputPath: dir})
	ctx := context.Background()
	beginDemo(t, w)

	require.NoError(t, w.BeginCustomer(ctx, "111"))
	require.NoError(t, w.AddRow(ctx, "111", []any{int64(1), "stale"}, nil))

	// Same account again without EndCustomer acts as a retry.
	require.NoError(t, w.BeginCustomer(ctx, "111"))
	require.NoError(t, w.AddRow(ctx, "111", []any{int64(2), "fresh"}, nil))
	require.NoError(t, w.accounts["111"].sink.Close())

	b, err := os.ReadFile(filepath.Join(dir, ".demo_111.json"))
	require.NoError(t, err)
	require.Contains(t, string(b), "fresh")
	require.NotContains(t, string(b), "stale")
	require.Equal(t, []string{"111"}, w.seen)
}

func TestBeginScriptResumeKeepsLeftovers(t *testing.T) {
	w := newTestWriter(t, Config{Project: "p", Dataset: "d", OutputPath: t.TempDir()})
	ctx := context.Background()
	beginDemo(t, w)
	require.NoError(t, w.BeginCustomer(ctx, "111"))

	// Re-beginning the same script keeps the unfinished account and lets
	// already completed ones run again.
	beginDemo(t, w)
	require.Contains(t, w.accounts, "111")
	require.Empty(t, w.seen)

	require.NoError(t, w.BeginCustomer(ctx, "111"))
	require.Equal(t, []string{"111"}, w.seen)
}

func TestBeginScriptRejectsDifferentOpenScript(t *testing.T) {
	w := newTestWriter(t, Config{Project: "p", Dataset: "d", OutputPath: t.TempDir()})
	beginDemo(t, w)
	err := w.BeginScript(context.Background(), "other", plan(col("id", "int64")))
	require.ErrorContains(t, err, "demo is still open")
}

func TestEndCustomerGuards(t *testing.T) {
	w := newTestWriter(t, Config{Project: "p", Dataset: "d", OutputPath: t.TempDir()})
	ctx := context.Background()

	require.ErrorIs(t, w.EndCustomer(ctx, "111"), errNoScript)

	beginDemo(t, w)
	require.ErrorContains(t, w.EndCustomer(ctx, "111"), "not begun")

	require.NoError(t, w.BeginCustomer(ctx, "111"))
	require.ErrorIs(t, w.EndCustomer(ctx, "111"), errNotConnected)
}

func TestEndScriptReportsUnloadedAccounts(t *testing.T) {
	w := newTestWriter(t, Config{Project: "p", Dataset: "d", OutputPath: t.TempDir()})
	ctx := context.Background()

	require.ErrorIs(t, w.EndScript(ctx), errNoScript)

	beginDemo(t, w)
	require.NoError(t, w.BeginCustomer(ctx, "111"))
	err := w.EndScript(ctx)
	require.ErrorContains(t, err, "1 unloaded accounts")
	require.True(t, w.began)
}

func TestEndScriptClearsStateWithoutView(t *testing.T) {
	w := newTestWriter(t, Config{
		Project: "p", Dataset: "d",
		NoUnionView: true, OutputPath: t.TempDir(),
	})
	ctx := context.Background()
	beginDemo(t, w)
	require.NoError(t, w.BeginCustomer(ctx, "111"))
	w.accounts["111"].sink.Abandon()
	delete(w.accounts, "111")

	require.NoError(t, w.EndScript(ctx))
	require.False(t, w.began)
	require.Nil(t, w.seen)
	require.Nil(t, w.plan)

	// A fresh script starts clean after the previous one finished.
	beginDemo(t, w)
	require.NoError(t, w.BeginCustomer(ctx, "111"))
}

func TestInsertModeBuffersRows(t *testing.T) {
	w := newTestWriter(t, Config{
		Project: "p", Dataset: "d",
		InsertMethod: InsertMethodInsert, OutputPath: t.TempDir(),
	})
	ctx := context.Background()
	beginDemo(t, w)
	require.NoError(t, w.BeginCustomer(ctx, "111"))
	require.Nil(t, w.accounts["111"].sink)

	require.NoError(t, w.AddRow(ctx, "111", []any{int64(1), "a"}, nil))
	require.NoError(t, w.AddRow(ctx, "111", []any{int64(2), "b"}, nil))
	require.Len(t, w.accounts["111"].rows, 2)
	require.Equal(t, int64(2), w.accounts["111"].count)
}

func TestAddRowUnknownAccount(t *testing.T) {
	w := newTestWriter(t, Config{Project: "p", Dataset: "d", OutputPath: t.TempDir()})
	beginDemo(t, w)
	err := w.AddRow(context.Background(), "999", []any{int64(1), "x"}, nil)
	require.ErrorContains(t, err, "no active account")
}

func TestUnionViewQuery(t *testing.T) {
	got := unionViewQuery("proj", "ads", "demo", []string{"111", "222"})
	want := "CREATE OR REPLACE VIEW `proj.ads.demo` AS SELECT * FROM `proj.ads.demo_*` " +
		"WHERE _TABLE_SUFFIX IN ('111', '222')"
	require.Equal(t, want, got)
}
