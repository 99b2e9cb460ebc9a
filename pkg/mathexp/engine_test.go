// Copyright © 2026 The adsfetch Authors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package mathexp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine()
	require.NoError(t, err)
	return e
}

func TestParseConstantArithmetic(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		expr     string
		value    any
		typeName string
	}{
		{"1 + 2", int64(3), "int64"},
		{"2 * 3 + 1", int64(7), "int64"},
		{"10 / 3", int64(3), "int64"},
		{"2.5 * 2.0", float64(5), "double"},
		{"'foo' + 'bar'", "foobar", "string"},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			x, err := e.Parse(tc.expr)
			require.NoError(t, err)
			require.True(t, x.IsConstant())
			v, typ := x.ConstantValue()
			assert.Equal(t, tc.value, v)
			assert.Equal(t, tc.typeName, typ)
			assert.Empty(t, x.Accessors())
		})
	}
}

func TestParseFieldExpression(t *testing.T) {
	e := newTestEngine(t)

	x, err := e.Parse("metrics.clicks + metrics.impressions")
	require.NoError(t, err)
	assert.False(t, x.IsConstant())
	assert.Equal(t, []string{"metrics.clicks", "metrics.impressions"}, x.Accessors())

	v, err := x.Eval(map[string]any{
		"metrics.clicks":      int64(3),
		"metrics.impressions": int64(7),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)
}

func TestAccessorsDeduplicated(t *testing.T) {
	e := newTestEngine(t)

	x, err := e.Parse("metrics.cost_micros / metrics.cost_micros")
	require.NoError(t, err)
	assert.Equal(t, []string{"metrics.cost_micros"}, x.Accessors())
}

func TestAccessorsThroughIndexAndCalls(t *testing.T) {
	e := newTestEngine(t)

	x, err := e.Parse("items[0] + metrics.cost_micros")
	require.NoError(t, err)
	assert.Equal(t, []string{"items", "metrics.cost_micros"}, x.Accessors())
}

func TestAccessorsExcludeComprehensionVars(t *testing.T) {
	e := newTestEngine(t)

	x, err := e.Parse("campaign.labels.exists(l, l == 'brand')")
	require.NoError(t, err)
	assert.Equal(t, []string{"campaign.labels"}, x.Accessors())
}

func TestEvalNestedScope(t *testing.T) {
	e := newTestEngine(t)

	x, err := e.Parse("campaign.name")
	require.NoError(t, err)

	v, err := x.Eval(map[string]any{
		"campaign.name":                           "Brand US",
		"campaign.network_settings.target_search": true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Brand US", v)
}

func TestEvalConditional(t *testing.T) {
	e := newTestEngine(t)

	x, err := e.Parse("metrics.clicks > 0 ? 'active' : 'idle'")
	require.NoError(t, err)

	v, err := x.Eval(map[string]any{"metrics.clicks": int64(5)})
	require.NoError(t, err)
	assert.Equal(t, "active", v)

	v, err = x.Eval(map[string]any{"metrics.clicks": int64(0)})
	require.NoError(t, err)
	assert.Equal(t, "idle", v)
}

func TestEvalMissingFieldYieldsNil(t *testing.T) {
	e := newTestEngine(t)

	x, err := e.Parse("campaign.name")
	require.NoError(t, err)

	v, err := x.Eval(map[string]any{"campaign.id": int64(1)})
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = x.Eval(map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEvalNilScopeValueYieldsNil(t *testing.T) {
	e := newTestEngine(t)

	x, err := e.Parse("metrics.clicks + 1")
	require.NoError(t, err)

	v, err := x.Eval(map[string]any{"metrics.clicks": nil})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEvalMixedNumericPromotesToDouble(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		expr string
		want float64
	}{
		{"1 + 2.5", 3.5},
		{"2.5 - 1", 1.5},
		{"metrics.cost_micros / 1000000.0", 1.25},
		{"0.5 * metrics.cost_micros", 625000},
		{"add(1, 2.5)", 3.5},
		{"subtract(2.5, 1)", 1.5},
	}
	scope := map[string]any{"metrics.cost_micros": int64(1250000)}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			x, err := e.Parse(tc.expr)
			require.NoError(t, err)
			v, err := x.Eval(scope)
			require.NoError(t, err)
			assert.Equal(t, tc.want, v)
		})
	}
}

func TestEvalIntDivisionTruncates(t *testing.T) {
	e := newTestEngine(t)

	x, err := e.Parse("clicks / 2")
	require.NoError(t, err)
	v, err := x.Eval(map[string]any{"clicks": int64(3)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestDateArithmetic(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		expr string
		want string
	}{
		{"date('2024-01-15') + 7", "2024-01-22"},
		{"date('2024-01-15') - 15", "2023-12-31"},
		{"date('2024-01-15') + period('P1M')", "2024-02-15"},
		{"date('2024-03-15') - period('P1Y2D')", "2023-03-13"},
		{"date('2024-03-01') - date('2024-02-01')", "P29D"},
		{"add(date('2024-01-15'), period('P1M'))", "2024-02-15"},
		{"subtract(date('2024-01-15'), 7)", "2024-01-08"},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			x, err := e.Parse(tc.expr)
			require.NoError(t, err)
			v, err := x.Eval(nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, v)
		})
	}
}

func TestDatetimeArithmetic(t *testing.T) {
	e := newTestEngine(t)

	x, err := e.Parse("datetime('2024-01-15 10:30:00') + duration('90m')")
	require.NoError(t, err)
	v, err := x.Eval(nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15 12:00:00", v)

	x, err = e.Parse("datetime('2024-01-15 12:00:00') - datetime('2024-01-15 10:30:00')")
	require.NoError(t, err)
	v, err = x.Eval(nil)
	require.NoError(t, err)
	assert.Equal(t, "1h30m0s", v)
}

func TestTodayIsConstant(t *testing.T) {
	e := newTestEngine(t)

	x, err := e.Parse("today()")
	require.NoError(t, err)
	require.True(t, x.IsConstant())

	v, typ := x.ConstantValue()
	assert.Equal(t, "string", typ)
	_, perr := time.Parse("2006-01-02", v.(string))
	assert.NoError(t, perr)
}

func TestYesterdayPrecedesTomorrow(t *testing.T) {
	e := newTestEngine(t)

	x, err := e.Parse("tomorrow() - yesterday()")
	require.NoError(t, err)
	v, err := x.Eval(nil)
	require.NoError(t, err)
	assert.Equal(t, "P2D", v)
}

func TestFormatFunction(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		expr string
		want string
	}{
		{"format(date('2024-01-15'), 'yyyyMMdd')", "20240115"},
		{"format(date('2024-01-15'), 'MMM d, yyyy')", "Jan 15, 2024"},
		{"format(datetime('2024-01-15 10:30:00'), 'yyyy-MM-dd HH:mm')", "2024-01-15 10:30"},
		{"format(date('20240115', 'yyyyMMdd'), 'yyyy-MM-dd')", "2024-01-15"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			x, err := e.Parse(tc.expr)
			require.NoError(t, err)
			v, err := x.Eval(nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, v)
		})
	}
}

func TestParseErrors(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Parse("1 +")
	assert.Error(t, err)

	_, err = e.Parse("")
	assert.Error(t, err)

	_, err = e.Parse("   ")
	assert.Error(t, err)
}

func TestInvalidDateSurfacesError(t *testing.T) {
	e := newTestEngine(t)

	x, err := e.Parse("date('not-a-date')")
	require.NoError(t, err)
	assert.False(t, x.IsConstant())

	_, err = x.Eval(nil)
	assert.Error(t, err)
}

func TestSourceRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	x, err := e.Parse("  1 + 2 ")
	require.NoError(t, err)
	assert.Equal(t, "1 + 2", x.Source())
}
