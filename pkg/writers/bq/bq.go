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

// Package bq streams report rows into BigQuery. Each account stages its rows
// as newline-delimited JSON (local file or GCS object), loads them into a
// per-account shard table, and the script ends with a union view over the
// shards. Constant resources load a single unsharded table instead.
package bq

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/adsfetch/adsfetch/internal/retry"
	"github.com/adsfetch/adsfetch/pkg/query"
	"github.com/adsfetch/adsfetch/pkg/writers"
)

// Insert methods.
const (
	// InsertMethodLoad stages rows and runs a load job per account.
	InsertMethodLoad = "load"
	// InsertMethodInsert buffers rows and streams them in chunks.
	InsertMethodInsert = "insert"
)

// Array handling modes.
const (
	// ArrayHandlingArrays emits REPEATED fields.
	ArrayHandlingArrays = "arrays"
	// ArrayHandlingStrings joins array values into one string column.
	ArrayHandlingStrings = "strings"
)

// Defaults.
const (
	DefaultLocation      = "us"
	DefaultTableTemplate = "{scriptName}"

	insertChunkSize = 50000
)

var (
	errNoScript     = errors.New("bq: no script begun")
	errNotConnected = errors.New("bq: writer not connected")
)

// Config holds the BigQuery writer settings.
type Config struct {
	// Project is the billing project the dataset lives in.
	Project string
	// Dataset receives every table this writer creates.
	Dataset string
	// Location is used when the dataset has to be created. Defaults to us.
	Location string
	// TableTemplate names the base table; {scriptName} is substituted.
	TableTemplate string
	// DumpSchema writes the derived schema as <script>_schema.json.
	DumpSchema bool
	// DumpData keeps staging files after a successful load.
	DumpData bool
	// NoUnionView skips the per-script union view.
	NoUnionView bool
	// InsertMethod is load (staging plus load job, default) or insert
	// (streaming inserts in 50000-row chunks).
	InsertMethod string
	// ArrayHandling is arrays (REPEATED fields, default) or strings
	// (arrays joined with ArraySeparator into STRING columns).
	ArrayHandling string
	// ArraySeparator joins array values in strings mode.
	ArraySeparator string
	// OutputPath is where staging files go: a local directory or a
	// gs://bucket/prefix URL. Empty falls back to /tmp on managed
	// runtimes, else the working directory.
	OutputPath string
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

func (c *Config) setDefaults() {
	if c.Location == "" {
		c.Location = DefaultLocation
	}
	if c.TableTemplate == "" {
		c.TableTemplate = DefaultTableTemplate
	}
	if c.InsertMethod == "" {
		c.InsertMethod = InsertMethodLoad
	}
	if c.ArrayHandling == "" {
		c.ArrayHandling = ArrayHandlingArrays
	}
	if c.ArraySeparator == "" {
		c.ArraySeparator = writers.DefaultArraySeparator
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

func (c *Config) validate() error {
	if c.Project == "" {
		return errors.New("bq: project is required")
	}
	if c.Dataset == "" {
		return errors.New("bq: dataset is required")
	}
	if c.InsertMethod != InsertMethodLoad && c.InsertMethod != InsertMethodInsert {
		return fmt.Errorf("bq: unknown insert method %q", c.InsertMethod)
	}
	if c.ArrayHandling != ArrayHandlingArrays && c.ArrayHandling != ArrayHandlingStrings {
		return fmt.Errorf("bq: unknown array handling %q", c.ArrayHandling)
	}
	return nil
}

// accountState is owned by the account's goroutine between BeginCustomer
// and EndCustomer.
type accountState struct {
	table string
	sink  stagingSink
	rows  [][]bigquery.Value
	count int64
}

// Writer implements the sink lifecycle against BigQuery. One Writer handles
// one script at a time and survives across scripts.
type Writer struct {
	cfg Config
	log *zap.Logger
	bq  *bigquery.Client
	gcs *storage.Client

	mu       sync.Mutex
	script   string
	plan     *query.Plan
	schema   bigquery.Schema
	table    string
	accounts map[string]*accountState
	seen     []string
	began    bool
}

var _ writers.Writer = (*Writer)(nil)

// New builds an unconnected writer. Call Connect before running a script.
func New(cfg Config) (*Writer, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Writer{cfg: cfg, log: cfg.Logger.Named("bq")}, nil
}

// Connect creates the API clients and makes sure the dataset exists,
// creating it at the configured location when missing.
func (w *Writer) Connect(ctx context.Context) error {
	client, err := bigquery.NewClient(ctx, w.cfg.Project)
	if err != nil {
		return fmt.Errorf("bq: creating client: %w", err)
	}
	w.bq = client
	if isGCSPath(w.cfg.OutputPath) {
		gcs, err := storage.NewClient(ctx)
		if err != nil {
			w.bq.Close()
			w.bq = nil
			return fmt.Errorf("bq: creating storage client: %w", err)
		}
		w.gcs = gcs
	}
	if err := w.ensureDataset(ctx); err != nil {
		w.Close()
		return err
	}
	return nil
}

// Close releases the API clients.
func (w *Writer) Close() error {
	var firstErr error
	if w.bq != nil {
		firstErr = w.bq.Close()
		w.bq = nil
	}
	if w.gcs != nil {
		if err := w.gcs.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.gcs = nil
	}
	return firstErr
}

func (w *Writer) ensureDataset(ctx context.Context) error {
	ds := w.bq.Dataset(w.cfg.Dataset)
	return retry.Do(ctx, retry.DefaultPolicy(), transientAPIError, func(ctx context.Context) error {
		_, err := ds.Metadata(ctx)
		if err == nil {
			return nil
		}
		if !hasStatusCode(err, http.StatusNotFound) {
			return fmt.Errorf("bq: reading dataset %s: %w", w.cfg.Dataset, err)
		}
		err = ds.Create(ctx, &bigquery.DatasetMetadata{Location: w.cfg.Location})
		if err == nil || hasStatusCode(err, http.StatusConflict) {
			return nil
		}
		return fmt.Errorf("bq: creating dataset %s: %w", w.cfg.Dataset, err)
	})
}

// BeginScript derives the schema and table name and resets the run state.
// Re-beginning the same script after a failed run keeps the per-account
// leftovers so those accounts resume; a different script while one is open
// is an error.
func (w *Writer) BeginScript(ctx context.Context, scriptName string, plan *query.Plan) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.began && w.script != scriptName {
		return fmt.Errorf("bq: script %s is still open", w.script)
	}
	resuming := w.began
	w.script = scriptName
	w.plan = plan
	w.table = tableName(w.cfg.TableTemplate, scriptName)
	w.schema = deriveSchema(plan, w.cfg.ArrayHandling)
	if !resuming {
		w.accounts = make(map[string]*accountState)
	}
	w.seen = nil
	w.began = true

	if w.cfg.DumpSchema {
		if err := w.dumpSchema(); err != nil {
			w.log.Warn("schema dump failed", zap.String("script", scriptName), zap.Error(err))
		}
	}
	w.log.Info("script started",
		zap.String("script", scriptName),
		zap.String("dataset", w.cfg.Dataset),
		zap.String("table", w.table),
		zap.Bool("resuming", resuming),
	)
	return nil
}

// BeginCustomer opens the account's staging sink. An account that already
// completed within this run is rejected; an account whose previous attempt
// failed resumes with a fresh sink.
func (w *Writer) BeginCustomer(ctx context.Context, accountID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.began {
		return errNoScript
	}
	prev, leftover := w.accounts[accountID]
	if !leftover && w.seenAccount(accountID) {
		return fmt.Errorf("bq: account %s already written for script %s", accountID, w.script)
	}
	if leftover && prev.sink != nil {
		prev.sink.Abandon()
	}
	if !w.seenAccount(accountID) {
		w.seen = append(w.seen, accountID)
	}

	st := &accountState{table: w.shardTable(accountID)}
	w.accounts[accountID] = st
	if w.cfg.InsertMethod == InsertMethodLoad {
		sink, err := w.newSink(ctx, st.table)
		if err != nil {
			return err
		}
		st.sink = sink
	}
	return nil
}

func (w *Writer) AddRow(ctx context.Context, accountID string, parsed []any, raw map[string]any) error {
	w.mu.Lock()
	st := w.accounts[accountID]
	w.mu.Unlock()
	if st == nil {
		return fmt.Errorf("bq: no active account %s", accountID)
	}
	if w.cfg.InsertMethod == InsertMethodInsert {
		st.rows = append(st.rows, w.rowValues(parsed))
		st.count++
		return nil
	}
	line, err := w.rowJSON(parsed)
	if err != nil {
		return fmt.Errorf("bq: serializing row for account %s: %w", accountID, err)
	}
	if _, err := st.sink.Write(line); err != nil {
		w.log.Error("staging write failed",
			zap.String("account", accountID),
			zap.String("sink", st.sink.Location()),
			zap.Error(err),
		)
		return fmt.Errorf("bq: staging row for account %s: %w", accountID, err)
	}
	st.count++
	return nil
}

// EndCustomer loads the account's staged rows into its shard table. On
// success the account's state is dropped; on failure it stays so a retry
// can begin the account again.
func (w *Writer) EndCustomer(ctx context.Context, accountID string) error {
	w.mu.Lock()
	st := w.accounts[accountID]
	began := w.began
	w.mu.Unlock()
	if !began {
		return errNoScript
	}
	if st == nil {
		return fmt.Errorf("bq: account %s was not begun", accountID)
	}
	if w.bq == nil {
		return errNotConnected
	}
	if err := w.finishAccount(ctx, accountID, st); err != nil {
		return err
	}
	w.mu.Lock()
	delete(w.accounts, accountID)
	w.mu.Unlock()
	w.log.Info("account loaded",
		zap.String("script", w.script),
		zap.String("account", accountID),
		zap.String("table", st.table),
		zap.Int64("rows", st.count),
	)
	return nil
}

func (w *Writer) finishAccount(ctx context.Context, accountID string, st *accountState) error {
	if st.sink != nil {
		if err := st.sink.Close(); err != nil {
			return fmt.Errorf("bq: closing staging for account %s: %w", accountID, err)
		}
	}
	table := w.bq.Dataset(w.cfg.Dataset).Table(st.table)
	if st.count == 0 {
		if st.sink != nil && !w.cfg.DumpData {
			_ = st.sink.Remove(ctx)
		}
		return w.createShardTable(ctx, table)
	}
	if w.cfg.InsertMethod == InsertMethodInsert {
		return w.insertBuffered(ctx, table, accountID, st)
	}
	return w.loadStaged(ctx, table, accountID, st)
}

// EndScript builds the union view over the shard tables and clears the run
// state. With unfinished accounts left behind it reports them and keeps the
// state so the script can be re-begun.
func (w *Writer) EndScript(ctx context.Context) error {
	w.mu.Lock()
	if !w.began {
		w.mu.Unlock()
		return errNoScript
	}
	script := w.script
	leftover := len(w.accounts)
	seen := append([]string(nil), w.seen...)
	constant := w.plan.Resource.IsConstant
	w.mu.Unlock()

	if leftover > 0 {
		return fmt.Errorf("bq: script %s finished with %d unloaded accounts", script, leftover)
	}
	if !constant && !w.cfg.NoUnionView && len(seen) > 0 {
		if w.bq == nil {
			return errNotConnected
		}
		if err := w.createUnionView(ctx, seen); err != nil {
			return err
		}
	}

	w.mu.Lock()
	w.accounts = nil
	w.seen = nil
	w.plan = nil
	w.schema = nil
	w.began = false
	w.script = ""
	w.mu.Unlock()
	w.log.Info("script finished",
		zap.String("script", script),
		zap.Int("accounts", len(seen)),
	)
	return nil
}

func (w *Writer) seenAccount(accountID string) bool {
	for _, a := range w.seen {
		if a == accountID {
			return true
		}
	}
	return false
}

// shardTable names the per-account table; constant resources share the
// base table.
func (w *Writer) shardTable(accountID string) string {
	if w.plan.Resource.IsConstant {
		return w.table
	}
	return w.table + "_" + accountID
}
