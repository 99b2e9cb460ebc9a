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
	"io"
	"os"
	"text/tabwriter"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List the accounts a fetch would run against",
	Long: heredoc.Doc(`
		Expand the seed accounts into the non-manager accounts a fetch would
		run against, after the optional customer ids query filter.

		Examples:
		  adsfetch accounts -a 123-456-7890
		  adsfetch accounts -a 1234567890 --customer-ids-query-file active.sql
	`),
	RunE: runAccounts,
}

func init() {
	rootCmd.AddCommand(accountsCmd)

	f := accountsCmd.Flags()
	f.StringSliceP("account", "a", nil, "seed account id (repeatable or comma-separated)")
	f.String("customer-ids-query", "", "query whose first column narrows the expanded accounts")
	f.String("customer-ids-query-file", "", "file holding the customer ids query")
	f.StringArray("macro", nil, "macro substitution key=value (repeatable)")
	f.StringArray("template", nil, "template substitution key=value (repeatable)")
}

func runAccounts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := config.adsClient(ctx)
	if err != nil {
		return err
	}
	if closer, ok := client.(io.Closer); ok {
		defer closer.Close()
	}

	macros, err := parseKeyValues(stringArray(cmd, "macro"))
	if err != nil {
		return err
	}
	templates, err := parseKeyValues(stringArray(cmd, "template"))
	if err != nil {
		return err
	}

	accounts, err := resolveAccounts(ctx, cmd, client, macros, templates)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT")
	fmt.Fprintln(w, "-------")
	for _, id := range accounts {
		fmt.Fprintf(w, "%s\n", id)
	}
	w.Flush()
	fmt.Printf("\n%d accounts\n", len(accounts))
	return nil
}
