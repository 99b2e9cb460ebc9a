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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/adsfetch/adsfetch/internal/log"
	"github.com/adsfetch/adsfetch/pkg/adsapi"
	"github.com/adsfetch/adsfetch/pkg/macro"
	"github.com/adsfetch/adsfetch/pkg/runner"
	"github.com/adsfetch/adsfetch/pkg/schema"
	"github.com/adsfetch/adsfetch/pkg/writers"
	"github.com/adsfetch/adsfetch/pkg/writers/bq"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [query files...]",
	Short: "Run report scripts and write their rows to the configured output",
	Long: heredoc.Doc(`
		Run one or more report scripts against the Ads API.

		Each script is parsed once, rendered with your macros and templates,
		and executed across every resolved account (seed accounts expand to
		the non-manager accounts below them). Rows stream into the writer
		selected with --output.

		Examples:
		  adsfetch fetch campaigns.sql -a 123-456-7890
		  adsfetch fetch campaigns.sql --macro start_date=:YYYYMMDD-7
		  adsfetch fetch campaigns.sql -o bq --bq.project my-proj --bq.dataset ads
		  cat campaigns.sql | adsfetch fetch --input console -a 1234567890
	`),
	Args: cobra.ArbitraryArgs,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	f := fetchCmd.Flags()
	f.StringSliceP("account", "a", nil, "seed account id (repeatable or comma-separated)")
	f.String("customer-ids-query", "", "query whose first column narrows the expanded accounts")
	f.String("customer-ids-query-file", "", "file holding the customer ids query")
	f.StringP("output", "o", "console", "writer (bq, console, csv, json, xlsx, sqldb, null)")
	f.String("input", "file", "query source (file, console)")
	f.StringArray("macro", nil, "macro substitution key=value (repeatable)")
	f.StringArray("template", nil, "template substitution key=value (repeatable)")
	f.Bool("parallel-accounts", true, "fetch accounts concurrently")
	f.Int("parallel-threshold", 16, "maximum accounts in flight")
	f.Bool("skip-constants", false, "skip scripts over constant resources")
	f.Bool("dump-query", false, "write each rendered query as <script>_query.sql")

	// BigQuery writer flags
	f.String("bq.project", "", "BigQuery billing project")
	f.String("bq.dataset", "", "BigQuery dataset for report tables")
	f.String("bq.location", "us", "dataset location used on creation")
	f.String("bq.table-template", "{scriptName}", "base table name template")
	f.String("bq.insert-method", "load", "row delivery (load, insert)")
	f.String("bq.array-handling", "arrays", "repeated fields (arrays, strings)")
	f.String("bq.array-separator", "|", "separator for strings array handling")
	f.Bool("bq.no-union-view", false, "skip the per-script union view")
	f.Bool("bq.dump-schema", false, "write the derived schema as <script>_schema.json")
	f.Bool("bq.dump-data", false, "keep staging files after loading")
	f.String("bq.output-path", "", "staging directory or gs://bucket/prefix")

	// File writer flags
	f.String("csv.destination-folder", "", "directory for CSV files")
	f.Bool("csv.file-per-customer", false, "one CSV file per account")
	f.String("csv.array-separator", "|", "CSV array separator")
	f.String("json.format", "json", "JSON layout (json, jsonl)")
	f.String("json.destination-folder", "", "directory for JSON files")
	f.Bool("json.file-per-customer", false, "one JSON file per account")
	f.String("xlsx.destination-folder", "", "directory for XLSX workbooks")
	f.String("sql.connection-string", "", "database DSN (postgres://, mysql://, sqlite://)")
	f.Int("console.page-size", 0, "rows shown per account (0 = all)")

	_ = viper.BindPFlag("output.format", f.Lookup("output"))
	_ = viper.BindPFlag("runner.parallel_accounts", f.Lookup("parallel-accounts"))
	_ = viper.BindPFlag("runner.parallel_threshold", f.Lookup("parallel-threshold"))
	_ = viper.BindPFlag("runner.skip_constants", f.Lookup("skip-constants"))
	_ = viper.BindPFlag("runner.dump_query", f.Lookup("dump-query"))

	_ = viper.BindPFlag("bq.project", f.Lookup("bq.project"))
	_ = viper.BindPFlag("bq.dataset", f.Lookup("bq.dataset"))
	_ = viper.BindPFlag("bq.location", f.Lookup("bq.location"))
	_ = viper.BindPFlag("bq.table_template", f.Lookup("bq.table-template"))
	_ = viper.BindPFlag("bq.insert_method", f.Lookup("bq.insert-method"))
	_ = viper.BindPFlag("bq.array_handling", f.Lookup("bq.array-handling"))
	_ = viper.BindPFlag("bq.array_separator", f.Lookup("bq.array-separator"))
	_ = viper.BindPFlag("bq.no_union_view", f.Lookup("bq.no-union-view"))
	_ = viper.BindPFlag("bq.dump_schema", f.Lookup("bq.dump-schema"))
	_ = viper.BindPFlag("bq.dump_data", f.Lookup("bq.dump-data"))
	_ = viper.BindPFlag("bq.output_path", f.Lookup("bq.output-path"))

	_ = viper.BindPFlag("csv.destination_folder", f.Lookup("csv.destination-folder"))
	_ = viper.BindPFlag("csv.file_per_customer", f.Lookup("csv.file-per-customer"))
	_ = viper.BindPFlag("csv.array_separator", f.Lookup("csv.array-separator"))
	_ = viper.BindPFlag("json.format", f.Lookup("json.format"))
	_ = viper.BindPFlag("json.destination_folder", f.Lookup("json.destination-folder"))
	_ = viper.BindPFlag("json.file_per_customer", f.Lookup("json.file-per-customer"))
	_ = viper.BindPFlag("xlsx.destination_folder", f.Lookup("xlsx.destination-folder"))
	_ = viper.BindPFlag("sql.connection_string", f.Lookup("sql.connection-string"))
	_ = viper.BindPFlag("console.page_size", f.Lookup("console.page-size"))
}

// script is one query to run: its name keys tables and file names.
type script struct {
	name string
	text string
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := log.Named("fetch")

	scripts, err := readScripts(cmd, args)
	if err != nil {
		return err
	}
	if len(scripts) == 0 {
		return fmt.Errorf("no query files given (pass files, or - with --input console for stdin)")
	}

	macros, err := parseKeyValues(stringArray(cmd, "macro"))
	if err != nil {
		return err
	}
	templates, err := parseKeyValues(stringArray(cmd, "template"))
	if err != nil {
		return err
	}

	client, err := config.adsClient(ctx)
	if err != nil {
		return err
	}
	if closer, ok := client.(io.Closer); ok {
		defer closer.Close()
	}

	accounts, err := resolveAccounts(ctx, cmd, client, macros, templates)
	if err != nil {
		return err
	}

	r, err := runner.New(client, schema.NewRegistry(), logger)
	if err != nil {
		return err
	}
	w, cleanup, err := buildWriter(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := runner.Options{
		SkipConstants:     config.Runner.SkipConstants,
		ParallelAccounts:  config.Runner.ParallelAccounts,
		ParallelThreshold: config.Runner.ParallelThreshold,
		DumpQuery:         config.Runner.DumpQuery,
		MaxRetryCount:     config.Runner.MaxRetryCount,
		Templates:         templates,
	}

	var failed []string
	for _, s := range scripts {
		res, err := r.Execute(ctx, s.name, s.text, accounts, macros, w, opts)
		if err != nil {
			logger.Error("script failed", zap.String("script", s.name), zap.Error(err))
			failed = append(failed, s.name)
			continue
		}
		logger.Info("script done",
			zap.String("script", s.name),
			zap.Int("accounts", len(res.RowCounts)),
			zap.Int64("rows", res.Total()),
		)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d scripts failed: %s",
			len(failed), len(scripts), strings.Join(failed, ", "))
	}
	return nil
}

// readScripts loads the queries to run. --input console (or a lone "-")
// reads stdin under the script name "query".
func readScripts(cmd *cobra.Command, args []string) ([]script, error) {
	input, _ := cmd.Flags().GetString("input")
	switch input {
	case "console":
		text, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return []script{{name: "query", text: string(text)}}, nil
	case "", "file":
	default:
		return nil, fmt.Errorf("unknown input %q (file or console)", input)
	}

	scripts := make([]script, 0, len(args))
	for _, path := range args {
		if path == "-" {
			text, err := io.ReadAll(os.Stdin)
			if err != nil {
				return nil, fmt.Errorf("reading stdin: %w", err)
			}
			scripts = append(scripts, script{name: "query", text: string(text)})
			continue
		}
		text, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading query file: %w", err)
		}
		scripts = append(scripts, script{name: scriptName(path), text: string(text)})
	}
	return scripts, nil
}

// scriptName is the file base name without its extension.
func scriptName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// resolveAccounts expands the seed accounts and applies the optional
// customer ids query.
func resolveAccounts(ctx context.Context, cmd *cobra.Command, client adsapi.Client, macros, templates map[string]string) ([]string, error) {
	seeds, _ := cmd.Flags().GetStringSlice("account")
	if len(seeds) == 0 && config.Ads.CustomerID != "" {
		seeds = []string{config.Ads.CustomerID}
	}
	if len(seeds) == 0 && config.Ads.LoginCustomerID != "" {
		seeds = []string{config.Ads.LoginCustomerID}
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("no accounts: pass --account or set customer_id in the credentials file")
	}

	seen := make(map[string]struct{})
	var accounts []string
	for _, seed := range seeds {
		expanded, err := client.CustomerIDs(ctx, seed)
		if err != nil {
			return nil, fmt.Errorf("expanding account %s: %w", seed, err)
		}
		for _, id := range expanded {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			accounts = append(accounts, id)
		}
	}

	cidsQuery, err := customerIDsQuery(cmd)
	if err != nil {
		return nil, err
	}
	if cidsQuery == "" {
		return accounts, nil
	}
	renderer, err := macro.NewRenderer()
	if err != nil {
		return nil, err
	}
	rendered, err := renderer.Render(cidsQuery, macros, templates)
	if err != nil {
		return nil, fmt.Errorf("rendering customer ids query: %w", err)
	}
	return adsapi.FilterCustomerIDs(ctx, client, accounts, rendered.Text)
}

func customerIDsQuery(cmd *cobra.Command) (string, error) {
	if q, _ := cmd.Flags().GetString("customer-ids-query"); q != "" {
		return q, nil
	}
	path, _ := cmd.Flags().GetString("customer-ids-query-file")
	if path == "" {
		return "", nil
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading customer ids query file: %w", err)
	}
	return string(text), nil
}

// buildWriter constructs the configured sink. The cleanup func closes
// writers that hold connections.
func buildWriter(cmd *cobra.Command) (writers.Writer, func(), error) {
	noop := func() {}
	switch config.Output.Format {
	case "console":
		return writers.NewConsole(writers.ConsoleOptions{
			PageSize: config.Console.PageSize,
		}), noop, nil
	case "csv":
		return writers.NewCSV(writers.CSVOptions{
			OutputPath:      config.CSV.DestinationFolder,
			FilePerCustomer: config.CSV.FilePerCustomer,
			ArraySeparator:  config.CSV.ArraySeparator,
		}), noop, nil
	case "json":
		return writers.NewJSON(writers.JSONOptions{
			OutputPath:      config.JSON.DestinationFolder,
			Format:          config.JSON.Format,
			FilePerCustomer: config.JSON.FilePerCustomer,
		}), noop, nil
	case "xlsx":
		return writers.NewXLSX(writers.XLSXOptions{
			OutputPath:     config.XLSX.DestinationFolder,
			ArraySeparator: config.XLSX.ArraySeparator,
		}), noop, nil
	case "sqldb":
		return writers.NewSQLDB(writers.SQLOptions{
			ConnectionString: config.SQL.ConnectionString,
			ArraySeparator:   config.SQL.ArraySeparator,
		}), noop, nil
	case "null":
		return writers.NewNull(), noop, nil
	case "bq":
		w, err := bq.New(bq.Config{
			Project:        config.BQ.Project,
			Dataset:        config.BQ.Dataset,
			Location:       config.BQ.Location,
			TableTemplate:  config.BQ.TableTemplate,
			DumpSchema:     config.BQ.DumpSchema,
			DumpData:       config.BQ.DumpData,
			NoUnionView:    config.BQ.NoUnionView,
			InsertMethod:   config.BQ.InsertMethod,
			ArrayHandling:  config.BQ.ArrayHandling,
			ArraySeparator: config.BQ.ArraySeparator,
			OutputPath:     config.BQ.OutputPath,
			Logger:         log.Logger(),
		})
		if err != nil {
			return nil, nil, err
		}
		if err := w.Connect(cmd.Context()); err != nil {
			return nil, nil, err
		}
		return w, func() { _ = w.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown output %q (bq, console, csv, json, xlsx, sqldb, null)", config.Output.Format)
}

func stringArray(cmd *cobra.Command, name string) []string {
	vals, _ := cmd.Flags().GetStringArray(name)
	return vals
}

// parseKeyValues turns repeated key=value flags into a map.
func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, val, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("bad substitution %q (want key=value)", pair)
		}
		out[key] = val
	}
	return out, nil
}
