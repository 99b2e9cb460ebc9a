// Copyright © 2026 The adsfetch Authors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package macro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(t *testing.T, now time.Time) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	r.now = func() time.Time { return now }
	return r
}

func TestRenderSubstitutesMacros(t *testing.T) {
	r := newTestRenderer(t, time.Now())

	res, err := r.Render(
		"SELECT campaign.id FROM campaign WHERE segments.date >= '{start_date}' AND segments.date <= '{end_date}'",
		map[string]string{"start_date": "2024-01-01", "end_date": "2024-01-31"},
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT campaign.id FROM campaign WHERE segments.date >= '2024-01-01' AND segments.date <= '2024-01-31'",
		res.Text)
	assert.Empty(t, res.UnknownMacros)
}

func TestRenderRecordsUnknownMacros(t *testing.T) {
	r := newTestRenderer(t, time.Now())

	res, err := r.Render("{start_date} > {end_date} > {end_date}",
		map[string]string{"start_date": "2024-01-01"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01 > {end_date} > {end_date}", res.Text)
	assert.Equal(t, []string{"end_date"}, res.UnknownMacros)
}

func TestRenderDynamicDates(t *testing.T) {
	now := time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)
	r := newTestRenderer(t, now)

	res, err := r.Render("{d} {m} {y} {t}", map[string]string{
		"d": ":YYYYMMDD-7",
		"m": ":YYYYMM-2",
		"y": ":YYYY-1",
		"t": ":YYYYMMDD",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-08 2024-01-15 2023-03-15 2024-03-15", res.Text)
}

func TestRenderInjectsBuiltinDateMacros(t *testing.T) {
	now := time.Date(2024, time.March, 15, 10, 30, 45, 0, time.UTC)
	r := newTestRenderer(t, now)

	res, err := r.Render("{date_iso}|{current_date}|{current_datetime}", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "20240315|2024-03-15|2024-03-15 10:30:45", res.Text)
	assert.Empty(t, res.UnknownMacros)
}

func TestRenderBuiltinMacrosYieldToCallers(t *testing.T) {
	r := newTestRenderer(t, time.Now())

	res, err := r.Render("{date_iso}", map[string]string{"date_iso": "fixed"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "fixed", res.Text)
}

func TestRenderEvaluatesExpressions(t *testing.T) {
	r := newTestRenderer(t, time.Now())

	tests := []struct {
		text string
		want string
	}{
		{"LIMIT ${10 * 5}", "LIMIT 50"},
		{"${1 + 2} and ${'a' + 'b'}", "3 and ab"},
		{"${format(date('2024-01-15') + 7, 'yyyy-MM-dd')}", "2024-01-22"},
		{"a${}b", "ab"},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			res, err := r.Render(tc.text, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Text)
		})
	}
}

func TestRenderExpressionsSeeMacroScope(t *testing.T) {
	r := newTestRenderer(t, time.Now())

	res, err := r.Render("${prefix + '_suffix'}", map[string]string{"prefix": "brand"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "brand_suffix", res.Text)
}

func TestRenderTemplates(t *testing.T) {
	r := newTestRenderer(t, time.Now())

	t.Run("interpolation", func(t *testing.T) {
		res, err := r.Render("SELECT metrics.{{.kpi}} FROM campaign",
			nil, map[string]string{"kpi": "clicks"})
		require.NoError(t, err)
		assert.Equal(t, "SELECT metrics.clicks FROM campaign", res.Text)
	})

	t.Run("loop over comma list", func(t *testing.T) {
		res, err := r.Render(
			"{{range $i, $n := .networks}}{{if $i}} OR {{end}}network = '{{$n}}'{{end}}",
			nil, map[string]string{"networks": "SEARCH, CONTENT"})
		require.NoError(t, err)
		assert.Equal(t, "network = 'SEARCH' OR network = 'CONTENT'", res.Text)
	})

	t.Run("conditional", func(t *testing.T) {
		res, err := r.Render("SELECT campaign.id{{if eq .details \"true\"}}, campaign.name{{end}} FROM campaign",
			nil, map[string]string{"details": "true"})
		require.NoError(t, err)
		assert.Equal(t, "SELECT campaign.id, campaign.name FROM campaign", res.Text)
	})
}

func TestRenderSkipsTemplateStageWithoutParams(t *testing.T) {
	r := newTestRenderer(t, time.Now())

	res, err := r.Render("literal {{.untouched}} text", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "literal {{.untouched}} text", res.Text)
}

func TestRenderLeavesUnbalancedExpression(t *testing.T) {
	r := newTestRenderer(t, time.Now())

	res, err := r.Render("SELECT x ${1 +", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT x ${1 +", res.Text)
}

func TestRenderExpressionErrorSurfaces(t *testing.T) {
	r := newTestRenderer(t, time.Now())

	_, err := r.Render("${1 +}", nil, nil)
	assert.Error(t, err)
}
