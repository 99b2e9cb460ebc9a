// Copyright © 2026 The adsfetch Authors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFunctions(t *testing.T) {
	text := "SELECT campaign.name FROM campaign FUNCTIONS function up(v){return v.toUpperCase();}"

	fns, remainder, err := extractFunctions(text)
	require.NoError(t, err)
	assert.Equal(t, "SELECT campaign.name FROM campaign", remainder)
	require.NotNil(t, fns)
	assert.True(t, fns.Has("up"))
	assert.Equal(t, 1, fns.Len())

	v, err := fns.Call("up", "abc")
	require.NoError(t, err)
	assert.Equal(t, "ABC", v)
}

func TestExtractMultipleFunctions(t *testing.T) {
	text := "SELECT x.y FROM x FUNCTIONS " +
		"function up(v){return v.toUpperCase();} " +
		"function twice(v){return v * 2;}"

	fns, _, err := extractFunctions(text)
	require.NoError(t, err)
	assert.Equal(t, []string{"twice", "up"}, fns.Names())

	v, err := fns.Call("twice", int64(21))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestExtractFunctionsOnOwnLines(t *testing.T) {
	text := "SELECT x.y FROM x\nFUNCTIONS\n" +
		"function up(v) {\n\treturn v.toUpperCase();\n}\n" +
		"function down(v) {\n\treturn v.toLowerCase();\n}\n"

	fns, remainder, err := extractFunctions(text)
	require.NoError(t, err)
	assert.Equal(t, "SELECT x.y FROM x", remainder)
	assert.Equal(t, []string{"down", "up"}, fns.Names())
}

func TestExtractFunctionsHandlesBracesInStrings(t *testing.T) {
	text := "SELECT x.y FROM x FUNCTIONS function wrap(v){return '{' + v + '}';}"

	fns, _, err := extractFunctions(text)
	require.NoError(t, err)

	v, err := fns.Call("wrap", "a")
	require.NoError(t, err)
	assert.Equal(t, "{a}", v)
}

func TestExtractFunctionsRejectsBadArity(t *testing.T) {
	_, _, err := extractFunctions("SELECT x.y FROM x FUNCTIONS function f(a,b){return a;}")

	var bad *BadFunctionBodyError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "f", bad.Name)
}

func TestExtractFunctionsRejectsUnbalancedBraces(t *testing.T) {
	_, _, err := extractFunctions("SELECT x.y FROM x FUNCTIONS function f(v){return v;")

	var bad *BadFunctionBodyError
	require.ErrorAs(t, err, &bad)
}

func TestExtractFunctionsRejectsBadBody(t *testing.T) {
	_, _, err := extractFunctions("SELECT x.y FROM x FUNCTIONS function f(v){return (;}")

	var bad *BadFunctionBodyError
	require.ErrorAs(t, err, &bad)
}

func TestExtractFunctionsIgnoresFieldNamedFunctions(t *testing.T) {
	text := "SELECT functions.kind FROM functions"

	fns, remainder, err := extractFunctions(text)
	require.NoError(t, err)
	assert.Nil(t, fns)
	assert.Equal(t, text, remainder)
}

func TestCallUnknownFunction(t *testing.T) {
	fns, _, err := extractFunctions("SELECT x.y FROM x FUNCTIONS function f(v){return v;}")
	require.NoError(t, err)

	_, err = fns.Call("missing", 1)
	assert.Error(t, err)

	var nilTable *FunctionTable
	_, err = nilTable.Call("f", 1)
	assert.Error(t, err)
}
