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

// Package e2e wires the whole pipeline together: script text through the
// query editor, runner and row parser into real file sinks. The transport is
// faked, so these run offline.
package e2e

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adsfetch/adsfetch/pkg/adsapi"
	"github.com/adsfetch/adsfetch/pkg/runner"
	"github.com/adsfetch/adsfetch/pkg/schema"
	"github.com/adsfetch/adsfetch/pkg/writers"
)

type sliceIterator struct {
	rows []map[string]any
	idx  int
}

func (it *sliceIterator) Next(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.idx >= len(it.rows) {
		return nil, io.EOF
	}
	row := it.rows[it.idx]
	it.idx++
	return row, nil
}

func (it *sliceIterator) Close() error { return nil }

// fakeTransport serves the same canned rows to every account and counts
// searches.
type fakeTransport struct {
	mu       sync.Mutex
	rows     []map[string]any
	searches []string
}

func (f *fakeTransport) SearchStream(ctx context.Context, q, account string) (adsapi.RowIterator, error) {
	f.mu.Lock()
	f.searches = append(f.searches, account)
	f.mu.Unlock()
	return &sliceIterator{rows: f.rows}, nil
}

func (f *fakeTransport) Search(ctx context.Context, q, account string) ([]map[string]any, error) {
	it, err := f.SearchStream(ctx, q, account)
	if err != nil {
		return nil, err
	}
	return adsapi.Drain(ctx, it)
}

func (f *fakeTransport) CustomerIDs(ctx context.Context, seed string) ([]string, error) {
	return []string{seed}, nil
}

func (f *fakeTransport) APIKind() adsapi.APIKind { return adsapi.APIKindGRPC }

func (f *fakeTransport) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

func newRunner(t *testing.T, client adsapi.Client) *runner.Runner {
	t.Helper()
	r, err := runner.New(client, schema.NewRegistry(), zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestE2E_FetchCampaignsToJSON(t *testing.T) {
	client := &fakeTransport{rows: []map[string]any{
		{
			"campaign": map[string]any{"id": int64(11), "name": "Brand"},
			"metrics":  map[string]any{"cost_micros": int64(2500000)},
		},
		{
			"campaign": map[string]any{"id": int64(12), "name": "Generic"},
			"metrics":  map[string]any{"cost_micros": int64(500000)},
		},
	}}
	r := newRunner(t, client)

	dir := t.TempDir()
	w := writers.NewJSON(writers.JSONOptions{OutputPath: dir})

	queryText := `
		SELECT
			campaign.id AS id,
			campaign.name AS name,
			metrics.cost_micros / 1000000.0 AS cost
		FROM campaign
		WHERE segments.date BETWEEN '{start_date}' AND '{end_date}'`
	macros := map[string]string{"start_date": "2026-08-01", "end_date": "2026-08-24"}

	res, err := r.Execute(context.Background(), "campaigns", queryText,
		[]string{"111", "222"}, macros, w, runner.Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Total())

	data, err := os.ReadFile(filepath.Join(dir, "campaigns.json"))
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 4)
	assert.Equal(t, map[string]any{
		"id": float64(11), "name": "Brand", "cost": 2.5,
	}, rows[0])

	// Two accounts, one search each.
	assert.Equal(t, 2, client.searchCount())
}

func TestE2E_FetchToCSVPerAccount(t *testing.T) {
	client := &fakeTransport{rows: []map[string]any{
		{"ad_group": map[string]any{"id": int64(7), "name": "AG"}},
	}}
	r := newRunner(t, client)

	dir := t.TempDir()
	w := writers.NewCSV(writers.CSVOptions{OutputPath: dir, FilePerCustomer: true})

	_, err := r.Execute(context.Background(), "ad_groups",
		"SELECT ad_group.id AS id, ad_group.name AS name FROM ad_group",
		[]string{"111", "222"}, nil, w, runner.Options{})
	require.NoError(t, err)

	for _, account := range []string{"111", "222"} {
		f, err := os.Open(filepath.Join(dir, "ad_groups_"+account+".csv"))
		require.NoError(t, err)
		records, err := csv.NewReader(f).ReadAll()
		require.NoError(t, f.Close())
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, []string{"id", "name"}, records[0])
		assert.Equal(t, []string{"7", "AG"}, records[1])
	}
}

func TestE2E_ConstantResourceFetchedOnce(t *testing.T) {
	client := &fakeTransport{rows: []map[string]any{
		{"geo_target_constant": map[string]any{"id": int64(2840), "country_code": "US"}},
	}}
	r := newRunner(t, client)

	dir := t.TempDir()
	w := writers.NewCSV(writers.CSVOptions{OutputPath: dir})

	res, err := r.Execute(context.Background(), "geo",
		"SELECT geo_target_constant.id AS id, geo_target_constant.country_code AS country FROM geo_target_constant",
		[]string{"111", "222", "333"}, nil, w, runner.Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, client.searchCount())
	assert.Equal(t, int64(1), res.Total())

	_, err = os.Stat(filepath.Join(dir, "geo.csv"))
	assert.NoError(t, err)
}
