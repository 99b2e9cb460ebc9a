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
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/adsfetch/adsfetch/pkg/query"
	"github.com/adsfetch/adsfetch/pkg/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate [query files...]",
	Short: "Parse report scripts without running them",
	Long: heredoc.Doc(`
		Parse each script against the API schema and print the native query
		and the column plan. Nothing is fetched. Exits non-zero when any
		script fails to parse.

		Examples:
		  adsfetch validate campaigns.sql
		  adsfetch validate queries/*.sql --macro start_date=2024-01-01
	`),
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	f := validateCmd.Flags()
	f.StringArray("macro", nil, "macro substitution key=value (repeatable)")
	f.StringArray("template", nil, "template substitution key=value (repeatable)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	macros, err := parseKeyValues(stringArray(cmd, "macro"))
	if err != nil {
		return err
	}
	templates, err := parseKeyValues(stringArray(cmd, "template"))
	if err != nil {
		return err
	}

	editor, err := query.NewEditor(schema.NewRegistry())
	if err != nil {
		return err
	}

	scripts, err := readScripts(cmd, args)
	if err != nil {
		return err
	}

	var failures int
	for _, s := range scripts {
		plan, err := editor.Parse(s.text, macros, templates)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", s.name, err)
			failures++
			continue
		}
		printPlan(s.name, plan)
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d scripts failed to parse", failures, len(scripts))
	}
	return nil
}

func printPlan(name string, plan *query.Plan) {
	fmt.Printf("✓ %s (resource: %s)\n\n", name, plan.Resource.Name)
	fmt.Println(plan.NativeQuery)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tTYPE\tSOURCE")
	fmt.Fprintln(w, "------\t----\t------")
	for _, col := range plan.Columns {
		fmt.Fprintf(w, "%s\t%s\t%s\n", col.Name, typeLabel(col), sourceLabel(col))
	}
	w.Flush()
	fmt.Println()
}

func typeLabel(col query.Column) string {
	label := col.Type.TypeName
	if col.Type.Kind != schema.KindPrimitive {
		label = fmt.Sprintf("%s (%s)", col.Type.TypeName, col.Type.Kind)
	}
	if col.Type.Repeated {
		label += "[]"
	}
	return label
}

func sourceLabel(col query.Column) string {
	if col.Virtual() {
		return "virtual"
	}
	return col.Expression
}
