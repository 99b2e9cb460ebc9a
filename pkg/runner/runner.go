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
// Package runner executes report scripts across accounts, fanning out with
// bounded concurrency and feeding parsed rows to a writer.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adsfetch/adsfetch/internal/retry"
	"github.com/adsfetch/adsfetch/pkg/adsapi"
	"github.com/adsfetch/adsfetch/pkg/query"
	"github.com/adsfetch/adsfetch/pkg/rows"
	"github.com/adsfetch/adsfetch/pkg/schema"
	"github.com/adsfetch/adsfetch/pkg/writers"
)

// Options control one Execute run. The zero value runs sequentially with
// the stock thresholds; DefaultOptions enables account fan-out.
type Options struct {
	// SkipConstants skips scripts over constant resources entirely.
	SkipConstants bool

	// ParallelAccounts fans accounts out concurrently.
	ParallelAccounts bool

	// ParallelThreshold bounds in-flight accounts (default 16).
	ParallelThreshold int

	// DumpQuery writes the rendered native query to <script>_query.sql.
	DumpQuery bool

	// MaxRetryCount bounds attempts per account (default 5).
	MaxRetryCount int

	// Templates feed the template stage of macro rendering.
	Templates map[string]string
}

// DefaultOptions returns the options Execute is normally run with.
func DefaultOptions() Options {
	return Options{
		ParallelAccounts:  true,
		ParallelThreshold: 16,
		MaxRetryCount:     5,
	}
}

func (o Options) normalized() Options {
	if o.ParallelThreshold <= 0 {
		o.ParallelThreshold = 16
	}
	if o.MaxRetryCount <= 0 {
		o.MaxRetryCount = 5
	}
	return o
}

// Result reports one Execute run.
type Result struct {
	// RowCounts maps each executed account to the rows it produced.
	RowCounts map[string]int64
}

// Total sums the per-account row counts.
func (r *Result) Total() int64 {
	var n int64
	for _, c := range r.RowCounts {
		n += c
	}
	return n
}

// AccountReport is one account's outcome from ExecuteGen.
type AccountReport struct {
	Account  string
	RawRows  []map[string]any
	Rows     [][]any
	RowCount int64
}

// Runner parses scripts once and runs them across accounts.
type Runner struct {
	client  adsapi.Client
	editor  *query.Editor
	parser  *rows.Parser
	log     *zap.Logger
	beginMu sync.Mutex
}

// New builds a runner over a client and a schema registry. The row parser's
// field naming follows the client's transport.
func New(client adsapi.Client, reg *schema.Registry, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.L()
	}
	editor, err := query.NewEditor(reg)
	if err != nil {
		return nil, err
	}
	naming := rows.NamingProto
	if client.APIKind() == adsapi.APIKindREST {
		naming = rows.NamingREST
	}
	return &Runner{
		client: client,
		editor: editor,
		parser: rows.NewParser(reg, naming),
		log:    logger,
	}, nil
}

// Execute runs one script against the given accounts, streaming rows to w.
// Constant resources are fetched once regardless of the account count. The
// first failure is returned after in-flight accounts finish; EndScript runs
// either way.
func (r *Runner) Execute(ctx context.Context, scriptName, queryText string, accounts []string, macros map[string]string, w writers.Writer, opts Options) (*Result, error) {
	opts = opts.normalized()
	log := r.log.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("script", scriptName),
	)

	plan, err := r.editor.Parse(queryText, macros, opts.Templates)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", scriptName, err)
	}
	if opts.DumpQuery {
		r.dumpQuery(log, scriptName, plan.NativeQuery)
	}

	res := &Result{RowCounts: make(map[string]int64)}
	if plan.Resource.IsConstant && opts.SkipConstants {
		log.Info("skipping constant resource script")
		return res, nil
	}

	if err := w.BeginScript(ctx, scriptName, plan); err != nil {
		return nil, err
	}

	runAccounts := accounts
	if plan.Resource.IsConstant && len(accounts) > 1 {
		runAccounts = accounts[:1]
		log.Info("constant resource, fetching once",
			zap.String("account", runAccounts[0]))
	}

	var execErr error
	if opts.ParallelAccounts && len(runAccounts) > 1 {
		execErr = r.fanOut(ctx, log, plan, runAccounts, w, opts, res)
	} else {
		execErr = r.sequential(ctx, log, plan, runAccounts, w, opts, res)
	}

	endErr := w.EndScript(ctx)
	if execErr != nil {
		return nil, execErr
	}
	if endErr != nil {
		return nil, endErr
	}

	log.Info("script done",
		zap.Int("accounts", len(res.RowCounts)),
		zap.Int64("rows", res.Total()))
	return res, nil
}

// ExecuteGen runs like Execute but hands each account's raw and parsed rows
// to fn instead of a writer. Accounts run sequentially at the consumer's
// pace; fn returning an error stops the run.
func (r *Runner) ExecuteGen(ctx context.Context, scriptName, queryText string, accounts []string, macros map[string]string, opts Options, fn func(*AccountReport) error) error {
	opts = opts.normalized()
	log := r.log.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("script", scriptName),
	)

	plan, err := r.editor.Parse(queryText, macros, opts.Templates)
	if err != nil {
		return fmt.Errorf("script %s: %w", scriptName, err)
	}
	if plan.Resource.IsConstant {
		if opts.SkipConstants {
			return nil
		}
		if len(accounts) > 1 {
			accounts = accounts[:1]
		}
	}

	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		var report *AccountReport
		err := r.withRetry(ctx, opts, func(ctx context.Context) error {
			rep, err := r.fetchReport(ctx, plan, account)
			if err != nil {
				return err
			}
			report = rep
			return nil
		})
		if err != nil {
			log.Error("account failed",
				zap.String("account", account), zap.Error(err))
			return err
		}
		if err := fn(report); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) sequential(ctx context.Context, log *zap.Logger, plan *query.Plan, accounts []string, w writers.Writer, opts Options, res *Result) error {
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.executeOne(ctx, log, plan, account, w, opts)
		if err != nil {
			return err
		}
		res.RowCounts[account] = n
	}
	return nil
}

func (r *Runner) fanOut(ctx context.Context, log *zap.Logger, plan *query.Plan, accounts []string, w writers.Writer, opts Options, res *Result) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	sem := make(chan struct{}, opts.ParallelThreshold)
	errs := make(chan error, len(accounts))

	for _, account := range accounts {
		wg.Add(1)
		go func(account string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
			if err := ctx.Err(); err != nil {
				errs <- err
				return
			}
			n, err := r.executeOne(ctx, log, plan, account, w, opts)
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			res.RowCounts[account] = n
			mu.Unlock()
		}(account)
	}

	wg.Wait()
	close(errs)
	return <-errs
}

// executeOne runs one account's lifecycle under the retry policy.
func (r *Runner) executeOne(ctx context.Context, log *zap.Logger, plan *query.Plan, account string, w writers.Writer, opts Options) (int64, error) {
	var count int64
	err := r.withRetry(ctx, opts, func(ctx context.Context) error {
		n, err := r.fetchAccount(ctx, plan, account, w)
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		log.Error("account failed",
			zap.String("account", account), zap.Error(err))
		return 0, err
	}
	log.Debug("account done",
		zap.String("account", account), zap.Int64("rows", count))
	return count, nil
}

func (r *Runner) withRetry(ctx context.Context, opts Options, op func(ctx context.Context) error) error {
	policy := retry.Policy{
		MaxAttempts: opts.MaxRetryCount,
		BaseDelay:   100 * time.Millisecond,
		Strategy:    retry.Linear,
	}
	return retry.Do(ctx, policy, adsapi.Retryable, op)
}

// fetchAccount streams one account's rows into the writer.
func (r *Runner) fetchAccount(ctx context.Context, plan *query.Plan, account string, w writers.Writer) (int64, error) {
	r.beginMu.Lock()
	err := w.BeginCustomer(ctx, account)
	r.beginMu.Unlock()
	if err != nil {
		return 0, err
	}

	if plan.Executor != nil {
		parsed, err := plan.Executor.Execute(ctx, r.client, account)
		if err != nil {
			return 0, err
		}
		for _, vec := range parsed {
			if err := w.AddRow(ctx, account, vec, nil); err != nil {
				return 0, err
			}
		}
		if err := w.EndCustomer(ctx, account); err != nil {
			return 0, err
		}
		return int64(len(parsed)), nil
	}

	it, err := r.client.SearchStream(ctx, plan.NativeQuery, account)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	var count int64
	for {
		raw, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, err
		}
		vec, err := r.parser.ParseRow(raw, plan)
		if err != nil {
			return count, err
		}
		if err := w.AddRow(ctx, account, vec, raw); err != nil {
			return count, err
		}
		count++
	}
	if err := w.EndCustomer(ctx, account); err != nil {
		return count, err
	}
	return count, nil
}

// fetchReport collects one account's rows for ExecuteGen.
func (r *Runner) fetchReport(ctx context.Context, plan *query.Plan, account string) (*AccountReport, error) {
	report := &AccountReport{Account: account}

	if plan.Executor != nil {
		parsed, err := plan.Executor.Execute(ctx, r.client, account)
		if err != nil {
			return nil, err
		}
		report.Rows = parsed
		report.RowCount = int64(len(parsed))
		return report, nil
	}

	it, err := r.client.SearchStream(ctx, plan.NativeQuery, account)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	for {
		raw, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		vec, err := r.parser.ParseRow(raw, plan)
		if err != nil {
			return nil, err
		}
		report.RawRows = append(report.RawRows, raw)
		report.Rows = append(report.Rows, vec)
		report.RowCount++
	}
	return report, nil
}

func (r *Runner) dumpQuery(log *zap.Logger, scriptName, native string) {
	path := scriptName + "_query.sql"
	if err := os.WriteFile(path, []byte(native+"\n"), 0o644); err != nil {
		log.Warn("failed to dump query", zap.Error(err))
		return
	}
	log.Info("dumped rendered query", zap.String("path", path))
}
