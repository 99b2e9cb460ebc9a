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
package query

import (
	"fmt"
	"strings"
)

// UnknownMacroError reports {name} placeholders with no macro definition.
type UnknownMacroError struct {
	Names []string
}

func (e *UnknownMacroError) Error() string {
	return fmt.Sprintf("unknown macros: %s", strings.Join(e.Names, ", "))
}

// InvalidQueryError reports a malformed query: duplicate columns, duplicate
// wildcards, bad customizer syntax, empty projections.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return "invalid query: " + e.Reason
}

func invalidQueryf(format string, args ...any) error {
	return &InvalidQueryError{Reason: fmt.Sprintf(format, args...)}
}

// BadFunctionBodyError reports a FUNCTIONS block that could not be parsed or
// compiled.
type BadFunctionBodyError struct {
	Name string
	Err  error
}

func (e *BadFunctionBodyError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("bad functions block: %v", e.Err)
	}
	return fmt.Sprintf("bad function body %q: %v", e.Name, e.Err)
}

func (e *BadFunctionBodyError) Unwrap() error { return e.Err }
