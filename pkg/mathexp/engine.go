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
// Package mathexp parses and evaluates the scalar expressions used by macro
// blocks and virtual columns: numeric arithmetic, string constants, member
// access, and a closed set of date/period operations.
package mathexp

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/interpreter"
)

// Engine compiles expressions. Expressions are parsed without type checking
// so they can reference report fields that are only known at row time.
type Engine struct {
	env *cel.Env
}

// NewEngine builds the expression environment with the date helpers wired in.
// Durations use the evaluator's native syntax ("1h30m", "90s"); periods are
// ISO-8601 ("P7D", "P1M").
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Function("today",
			cel.Overload("today", []*cel.Type{}, cel.DynType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					return LocalDate{Date: todayDate()}
				}))),
		cel.Function("yesterday",
			cel.Overload("yesterday", []*cel.Type{}, cel.DynType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					return LocalDate{Date: todayDate().AddDays(-1)}
				}))),
		cel.Function("tomorrow",
			cel.Overload("tomorrow", []*cel.Type{}, cel.DynType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					return LocalDate{Date: todayDate().AddDays(1)}
				}))),
		cel.Function("now",
			cel.Overload("now", []*cel.Type{}, cel.DynType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					return LocalDateTime{DateTime: nowDateTime()}
				}))),
		cel.Function("date",
			cel.Overload("date_string", []*cel.Type{cel.StringType}, cel.DynType,
				cel.UnaryBinding(func(arg ref.Val) ref.Val {
					return dateFromArgs(arg, nil)
				})),
			cel.Overload("date_string_string", []*cel.Type{cel.StringType, cel.StringType}, cel.DynType,
				cel.BinaryBinding(func(arg, pattern ref.Val) ref.Val {
					return dateFromArgs(arg, pattern)
				}))),
		cel.Function("datetime",
			cel.Overload("datetime_string", []*cel.Type{cel.StringType}, cel.DynType,
				cel.UnaryBinding(func(arg ref.Val) ref.Val {
					return datetimeFromArgs(arg, nil)
				})),
			cel.Overload("datetime_string_string", []*cel.Type{cel.StringType, cel.StringType}, cel.DynType,
				cel.BinaryBinding(func(arg, pattern ref.Val) ref.Val {
					return datetimeFromArgs(arg, pattern)
				}))),
		cel.Function("period",
			cel.Overload("period_string", []*cel.Type{cel.StringType}, cel.DynType,
				cel.UnaryBinding(func(arg ref.Val) ref.Val {
					s, ok := arg.Value().(string)
					if !ok {
						return types.NewErr("period() expects a string, got %s", arg.Type().TypeName())
					}
					p, err := ParsePeriod(s)
					if err != nil {
						return types.NewErr("%s", err.Error())
					}
					return p
				}))),
		cel.Function("add",
			cel.Overload("add_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.DynType,
				cel.BinaryBinding(addValues))),
		cel.Function("subtract",
			cel.Overload("subtract_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.DynType,
				cel.BinaryBinding(subtractValues))),
		cel.Function("format",
			cel.Overload("format_dyn_string", []*cel.Type{cel.DynType, cel.StringType}, cel.StringType,
				cel.BinaryBinding(formatValue))),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build expression environment: %w", err)
	}
	return &Engine{env: env}, nil
}

func todayDate() civil.Date { return civil.DateOf(time.Now()) }

func nowDateTime() civil.DateTime { return civil.DateTimeOf(time.Now()) }

func dateFromArgs(arg, pattern ref.Val) ref.Val {
	s, ok := arg.Value().(string)
	if !ok {
		return types.NewErr("date() expects a string, got %s", arg.Type().TypeName())
	}
	p := ""
	if pattern != nil {
		if ps, ok := pattern.Value().(string); ok {
			p = ps
		}
	}
	d, err := ParseLocalDate(s, p)
	if err != nil {
		return types.NewErr("%s", err.Error())
	}
	return d
}

func datetimeFromArgs(arg, pattern ref.Val) ref.Val {
	s, ok := arg.Value().(string)
	if !ok {
		return types.NewErr("datetime() expects a string, got %s", arg.Type().TypeName())
	}
	p := ""
	if pattern != nil {
		if ps, ok := pattern.Value().(string); ok {
			p = ps
		}
	}
	d, err := ParseLocalDateTime(s, p)
	if err != nil {
		return types.NewErr("%s", err.Error())
	}
	return d
}

// addValues is the function form of +, with the date overloads first and a
// numeric fallback.
func addValues(lhs, rhs ref.Val) ref.Val {
	switch l := lhs.(type) {
	case LocalDate:
		return l.Add(rhs)
	case LocalDateTime:
		return l.Add(rhs)
	case types.Int:
		if r, ok := rhs.(types.Int); ok {
			return l.Add(r)
		}
	case types.Double:
		if r, ok := rhs.(types.Double); ok {
			return l.Add(r)
		}
	case types.String:
		if r, ok := rhs.(types.String); ok {
			return l.Add(r)
		}
	}
	if l, r, ok := mixedPair(lhs, rhs); ok {
		return l.Add(r)
	}
	return types.NewErr("no such overload: add(%s, %s)", lhs.Type().TypeName(), rhs.Type().TypeName())
}

func subtractValues(lhs, rhs ref.Val) ref.Val {
	switch l := lhs.(type) {
	case LocalDate:
		return l.Subtract(rhs)
	case LocalDateTime:
		return l.Subtract(rhs)
	case types.Int:
		if r, ok := rhs.(types.Int); ok {
			return l.Subtract(r)
		}
	case types.Double:
		if r, ok := rhs.(types.Double); ok {
			return l.Subtract(r)
		}
	}
	if l, r, ok := mixedPair(lhs, rhs); ok {
		return l.Subtract(r)
	}
	return types.NewErr("no such overload: subtract(%s, %s)", lhs.Type().TypeName(), rhs.Type().TypeName())
}

// promoteMixedNumbers retries a failed arithmetic dispatch with the int
// operand widened to double. The standard runtime has no int/double
// overloads, and report math mixes int64 metrics with double literals all
// the time.
func promoteMixedNumbers() cel.ProgramOption {
	return cel.CustomDecorator(func(i interpreter.Interpretable) (interpreter.Interpretable, error) {
		call, ok := i.(interpreter.InterpretableCall)
		if !ok {
			return i, nil
		}
		switch call.Function() {
		case operators.Add, operators.Subtract, operators.Multiply, operators.Divide:
			return &promotedArithmetic{InterpretableCall: call}, nil
		}
		return i, nil
	})
}

type promotedArithmetic struct {
	interpreter.InterpretableCall
}

func (p *promotedArithmetic) Eval(activation interpreter.Activation) ref.Val {
	v := p.InterpretableCall.Eval(activation)
	if !types.IsError(v) {
		return v
	}
	args := p.Args()
	if len(args) != 2 {
		return v
	}
	l, r, ok := mixedPair(args[0].Eval(activation), args[1].Eval(activation))
	if !ok {
		return v
	}
	switch p.Function() {
	case operators.Add:
		return l.Add(r)
	case operators.Subtract:
		return l.Subtract(r)
	case operators.Multiply:
		return l.Multiply(r)
	case operators.Divide:
		return l.Divide(r)
	}
	return v
}

// mixedPair widens exactly-one-int pairs. Same-type pairs already had their
// chance at the standard overloads, so their errors pass through untouched.
func mixedPair(lhs, rhs ref.Val) (types.Double, types.Double, bool) {
	if l, ok := lhs.(types.Int); ok {
		if r, ok := rhs.(types.Double); ok {
			return types.Double(l), r, true
		}
		return 0, 0, false
	}
	if l, ok := lhs.(types.Double); ok {
		if r, ok := rhs.(types.Int); ok {
			return l, types.Double(r), true
		}
	}
	return 0, 0, false
}

// formatValue renders a date-like value with a Java-style pattern.
func formatValue(arg, pattern ref.Val) ref.Val {
	p, ok := pattern.Value().(string)
	if !ok {
		return types.NewErr("format() expects a string pattern")
	}
	switch v := arg.(type) {
	case LocalDate:
		return types.String(formatTime(v.Date.In(time.UTC), p))
	case LocalDateTime:
		return types.String(formatTime(v.DateTime.In(time.UTC), p))
	case types.Timestamp:
		return types.String(formatTime(v.Time, p))
	}
	return types.NewErr("format() expects a date-like value, got %s", arg.Type().TypeName())
}

// Expression is a parsed expression. It can be evaluated against a variable
// scope, asked for the field paths it reads, and probed for constancy.
type Expression struct {
	src       string
	prg       cel.Program
	accessors []string
	constant  bool
	constVal  any
	constType string
}

// Parse compiles an expression without type checking; identifiers resolve
// against the evaluation scope at row time.
func (e *Engine) Parse(src string) (*Expression, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return nil, fmt.Errorf("empty expression")
	}

	parsed, iss := e.env.Parse(trimmed)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", trimmed, iss.Err())
	}
	prg, err := e.env.Program(parsed, promoteMixedNumbers())
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", trimmed, err)
	}

	x := &Expression{src: trimmed, prg: prg}
	x.accessors = collectAccessors(parsed.NativeRep().Expr())

	// Scope-free expressions fold to a constant at parse time.
	if len(x.accessors) == 0 {
		if v, evalErr := x.eval(map[string]any{}); evalErr == nil && v != nil {
			x.constant = true
			x.constVal, x.constType = constValue(v)
		}
	}
	return x, nil
}

// Source returns the original expression text.
func (x *Expression) Source() string { return x.src }

// Accessors returns the dotted field paths the expression reads.
func (x *Expression) Accessors() []string { return x.accessors }

// IsConstant reports whether the expression needs no scope.
func (x *Expression) IsConstant() bool { return x.constant }

// ConstantValue returns the pre-evaluated value and its primitive type name
// (int64, double or string); only meaningful when IsConstant is true.
func (x *Expression) ConstantValue() (any, string) { return x.constVal, x.constType }

// Eval evaluates the expression. Scope keys may be dotted field paths; a read
// of a missing property yields nil rather than an error.
func (x *Expression) Eval(scope map[string]any) (any, error) {
	return x.eval(scope)
}

func (x *Expression) eval(scope map[string]any) (any, error) {
	out, _, err := x.prg.Eval(buildActivation(scope))
	if err != nil {
		if isMissingData(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to evaluate %q: %w", x.src, err)
	}
	return fromCEL(out), nil
}

// buildActivation exposes scope entries both under their flat dotted names
// and as nested maps, so both resolution styles work. Nil values are dropped
// so reads of them surface as missing properties.
func buildActivation(scope map[string]any) map[string]any {
	act := make(map[string]any, len(scope))
	for k, v := range scope {
		if v == nil {
			continue
		}
		act[k] = v
		if !strings.Contains(k, ".") {
			continue
		}
		segs := strings.Split(k, ".")
		cur := act
		for i, seg := range segs {
			if i == len(segs)-1 {
				if _, branch := cur[seg].(map[string]any); !branch {
					cur[seg] = v
				}
				break
			}
			next, ok := cur[seg].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[seg] = next
			}
			cur = next
		}
	}
	return act
}

func isMissingData(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such key") ||
		strings.Contains(msg, "no such attribute") ||
		strings.Contains(msg, "undeclared reference")
}

func constValue(v any) (any, string) {
	switch t := v.(type) {
	case int64:
		return t, "int64"
	case uint64:
		return int64(t), "int64"
	case float64:
		return t, "double"
	case string:
		return t, "string"
	case bool:
		return fmt.Sprintf("%t", t), "string"
	default:
		return fmt.Sprintf("%v", t), "string"
	}
}

// fromCEL unwraps evaluator values into the row variant set: nil, bool,
// int64, float64, string, []any, map[string]any.
func fromCEL(val ref.Val) any {
	switch v := val.(type) {
	case LocalDate:
		return v.Date.String()
	case LocalDateTime:
		return v.String()
	case Period:
		return v.String()
	case types.Duration:
		return v.Duration.String()
	case types.Timestamp:
		return v.Time.Format(time.RFC3339)
	}

	switch val.Type() {
	case types.NullType:
		return nil
	case types.StringType:
		return val.Value().(string)
	case types.IntType:
		return val.Value().(int64)
	case types.UintType:
		return int64(val.Value().(uint64))
	case types.DoubleType:
		return val.Value().(float64)
	case types.BoolType:
		return val.Value().(bool)
	case types.ListType:
		return fromCELList(val.Value())
	case types.MapType:
		return fromCELMap(val.Value())
	default:
		if nested, ok := val.Value().(ref.Val); ok {
			return fromCEL(nested)
		}
		return val.Value()
	}
}

func fromCELList(v any) any {
	switch l := v.(type) {
	case []ref.Val:
		out := make([]any, 0, len(l))
		for _, item := range l {
			out = append(out, fromCEL(item))
		}
		return out
	case []any:
		out := make([]any, 0, len(l))
		for _, item := range l {
			if rv, ok := item.(ref.Val); ok {
				out = append(out, fromCEL(rv))
			} else {
				out = append(out, item)
			}
		}
		return out
	default:
		return v
	}
}

func fromCELMap(v any) any {
	switch m := v.(type) {
	case map[ref.Val]ref.Val:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprintf("%v", k.Value())] = fromCEL(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			if rv, ok := val.(ref.Val); ok {
				out[k] = fromCEL(rv)
			} else {
				out[k] = val
			}
		}
		return out
	default:
		return v
	}
}

// collectAccessors walks the parsed tree and gathers every maximal
// ident-rooted select chain, e.g. metrics.clicks in
// "metrics.clicks + metrics.impressions".
func collectAccessors(root ast.Expr) []string {
	var out []string
	seen := make(map[string]bool)
	excluded := make(map[string]bool)
	collectExpr(root, seen, excluded, &out)
	return out
}

func collectExpr(e ast.Expr, seen, excluded map[string]bool, out *[]string) {
	add := func(path string) {
		if path == "" || excluded[path] || seen[path] {
			return
		}
		seen[path] = true
		*out = append(*out, path)
	}

	switch e.Kind() {
	case ast.SelectKind:
		if path, ok := selectPath(e); ok {
			if root, _, found := strings.Cut(path, "."); found && excluded[root] {
				return
			}
			add(path)
			return
		}
		collectExpr(e.AsSelect().Operand(), seen, excluded, out)
	case ast.IdentKind:
		add(e.AsIdent())
	case ast.CallKind:
		c := e.AsCall()
		if c.IsMemberFunction() {
			collectExpr(c.Target(), seen, excluded, out)
		}
		for _, arg := range c.Args() {
			collectExpr(arg, seen, excluded, out)
		}
	case ast.ListKind:
		for _, el := range e.AsList().Elements() {
			collectExpr(el, seen, excluded, out)
		}
	case ast.MapKind:
		for _, entry := range e.AsMap().Entries() {
			me := entry.AsMapEntry()
			collectExpr(me.Key(), seen, excluded, out)
			collectExpr(me.Value(), seen, excluded, out)
		}
	case ast.ComprehensionKind:
		comp := e.AsComprehension()
		collectExpr(comp.IterRange(), seen, excluded, out)
		collectExpr(comp.AccuInit(), seen, excluded, out)
		// loop variables are comprehension-local, not report fields
		inner := make(map[string]bool, len(excluded)+3)
		for k := range excluded {
			inner[k] = true
		}
		inner[comp.IterVar()] = true
		inner[comp.AccuVar()] = true
		if comp.HasIterVar2() {
			inner[comp.IterVar2()] = true
		}
		collectExpr(comp.LoopCondition(), seen, inner, out)
		collectExpr(comp.LoopStep(), seen, inner, out)
		collectExpr(comp.Result(), seen, inner, out)
	}
}

// selectPath flattens a pure ident.select.select chain to its dotted path.
func selectPath(e ast.Expr) (string, bool) {
	var segs []string
	cur := e
	for {
		switch cur.Kind() {
		case ast.SelectKind:
			sel := cur.AsSelect()
			if sel.IsTestOnly() {
				return "", false
			}
			segs = append(segs, sel.FieldName())
			cur = sel.Operand()
		case ast.IdentKind:
			segs = append(segs, cur.AsIdent())
			for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
				segs[i], segs[j] = segs[j], segs[i]
			}
			return strings.Join(segs, "."), true
		default:
			return "", false
		}
	}
}
