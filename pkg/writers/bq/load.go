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

package bq

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"

	"github.com/adsfetch/adsfetch/internal/retry"
)

// createShardTable replaces the shard with an empty table carrying the
// derived schema. Deletions linger server-side, so an already-exists right
// after the delete is retried with a short backoff.
func (w *Writer) createShardTable(ctx context.Context, table *bigquery.Table) error {
	if err := w.deleteTable(ctx, table); err != nil {
		return err
	}
	conflict := func(err error) bool { return hasStatusCode(err, http.StatusConflict) }
	err := retry.Do(ctx, retry.DefaultPolicy(), conflict, func(ctx context.Context) error {
		return table.Create(ctx, &bigquery.TableMetadata{Schema: w.schema})
	})
	if err != nil {
		return fmt.Errorf("bq: creating table %s: %w", table.TableID, err)
	}
	return nil
}

// loadStaged replaces the shard table with the staged NDJSON via a load
// job with truncate disposition.
func (w *Writer) loadStaged(ctx context.Context, table *bigquery.Table, accountID string, st *accountState) error {
	if err := w.deleteTable(ctx, table); err != nil {
		return err
	}
	src, closer, err := st.sink.Source(w.schema)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	loader := table.LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteTruncate

	job, err := loader.Run(ctx)
	if err != nil {
		return w.loadFailure(ctx, table, accountID, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return w.loadFailure(ctx, table, accountID, err)
	}
	if err := status.Err(); err != nil {
		w.logJobErrors(accountID, status.Errors)
		return w.loadFailure(ctx, table, accountID, err)
	}
	if !w.cfg.DumpData {
		if err := st.sink.Remove(ctx); err != nil {
			w.log.Warn("staging cleanup failed",
				zap.String("account", accountID),
				zap.String("sink", st.sink.Location()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// insertBuffered replaces the shard table and streams the buffered rows in
// chunks through the insert API.
func (w *Writer) insertBuffered(ctx context.Context, table *bigquery.Table, accountID string, st *accountState) error {
	if err := w.createShardTable(ctx, table); err != nil {
		return err
	}
	ins := table.Inserter()
	for start := 0; start < len(st.rows); start += insertChunkSize {
		end := min(start+insertChunkSize, len(st.rows))
		savers := make([]*bigquery.ValuesSaver, 0, end-start)
		for _, row := range st.rows[start:end] {
			savers = append(savers, &bigquery.ValuesSaver{Schema: w.schema, Row: row})
		}
		if err := ins.Put(ctx, savers); err != nil {
			var multi bigquery.PutMultiError
			if errors.As(err, &multi) {
				w.logPutErrors(accountID, multi)
			}
			return w.loadFailure(ctx, table, accountID, err)
		}
	}
	return nil
}

// createUnionView deletes any placeholder base table and creates the view
// unioning the shard tables.
func (w *Writer) createUnionView(ctx context.Context, accounts []string) error {
	base := w.bq.Dataset(w.cfg.Dataset).Table(w.table)
	if err := w.deleteTable(ctx, base); err != nil {
		return err
	}
	q := w.bq.Query(unionViewQuery(w.bq.Project(), w.cfg.Dataset, w.table, accounts))
	job, err := q.Run(ctx)
	if err != nil {
		return w.viewFailure(err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return w.viewFailure(err)
	}
	if err := status.Err(); err != nil {
		return w.viewFailure(err)
	}
	w.log.Info("union view created",
		zap.String("view", w.table),
		zap.Int("shards", len(accounts)),
	)
	return nil
}

func unionViewQuery(project, dataset, table string, accounts []string) string {
	suffixes := make([]string, len(accounts))
	for i, a := range accounts {
		suffixes[i] = "'" + a + "'"
	}
	return fmt.Sprintf(
		"CREATE OR REPLACE VIEW `%s.%s.%s` AS SELECT * FROM `%s.%s.%s_*` WHERE _TABLE_SUFFIX IN (%s)",
		project, dataset, table, project, dataset, table, strings.Join(suffixes, ", "),
	)
}

func (w *Writer) viewFailure(err error) error {
	if strings.Contains(err.Error(), "prefix") {
		return fmt.Errorf("bq: creating view %s: %w (the %s_ prefix also matches other views; rename the script or drop the conflicting views)",
			w.table, err, w.table)
	}
	return fmt.Errorf("bq: creating view %s: %w", w.table, err)
}

func (w *Writer) deleteTable(ctx context.Context, table *bigquery.Table) error {
	err := table.Delete(ctx)
	if err == nil || hasStatusCode(err, http.StatusNotFound) {
		return nil
	}
	return fmt.Errorf("bq: deleting table %s: %w", table.TableID, err)
}

// loadFailure wraps a load error; a 404 additionally logs which half of
// dataset.table stopped answering.
func (w *Writer) loadFailure(ctx context.Context, table *bigquery.Table, accountID string, err error) error {
	if hasStatusCode(err, http.StatusNotFound) {
		w.log.Error("load target not found",
			zap.String("account", accountID),
			zap.String("dataset", w.cfg.Dataset),
			zap.String("table", table.TableID),
			zap.Error(err),
		)
		w.probeExistence(ctx, table)
	}
	return fmt.Errorf("bq: loading table %s for account %s: %w", table.TableID, accountID, err)
}

func (w *Writer) probeExistence(ctx context.Context, table *bigquery.Table) {
	if _, err := w.bq.Dataset(w.cfg.Dataset).Metadata(ctx); err != nil {
		w.log.Error("dataset probe failed", zap.String("dataset", w.cfg.Dataset), zap.Error(err))
		return
	}
	if _, err := table.Metadata(ctx); err != nil {
		w.log.Error("table probe failed", zap.String("table", table.TableID), zap.Error(err))
		return
	}
	w.log.Info("dataset and table both answer metadata probes",
		zap.String("dataset", w.cfg.Dataset),
		zap.String("table", table.TableID),
	)
}

func (w *Writer) logJobErrors(accountID string, errs []*bigquery.Error) {
	for i, e := range errs {
		if i >= 10 {
			w.log.Error("more load errors suppressed",
				zap.String("account", accountID),
				zap.Int("remaining", len(errs)-10),
			)
			break
		}
		w.log.Error("load row error",
			zap.String("account", accountID),
			zap.String("location", e.Location),
			zap.String("reason", e.Reason),
			zap.String("message", e.Message),
		)
	}
}

func (w *Writer) logPutErrors(accountID string, multi bigquery.PutMultiError) {
	for i, e := range multi {
		if i >= 10 {
			w.log.Error("more insert errors suppressed",
				zap.String("account", accountID),
				zap.Int("remaining", len(multi)-10),
			)
			break
		}
		w.log.Error("insert row error",
			zap.String("account", accountID),
			zap.Int("row", e.RowIndex),
			zap.String("errors", e.Error()),
		)
	}
}

func hasStatusCode(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}

// transientAPIError matches the server-side conditions worth retrying.
func transientAPIError(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	switch gerr.Code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	}
	return false
}
