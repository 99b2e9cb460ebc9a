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

package writers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql" // mysql driver
	_ "github.com/lib/pq"              // postgres driver
	_ "modernc.org/sqlite"             // sqlite driver

	"github.com/adsfetch/adsfetch/pkg/query"
	"github.com/adsfetch/adsfetch/pkg/schema"
)

type sqlDialect int

const (
	dialectPostgres sqlDialect = iota
	dialectMySQL
	dialectSQLite
)

// SQLOptions configure the relational sink.
type SQLOptions struct {
	// ConnectionString selects the driver by scheme: postgres:// (and
	// postgresql://) passed through as-is, mysql://<dsn> with the scheme
	// stripped, sqlite://<path>.
	ConnectionString string
	// ArraySeparator joins repeated values stored as text.
	ArraySeparator string
}

// SQLDB writes each script into one relational table created from the
// column plan. Existing rows are deleted at BeginScript, so a rerun
// replaces the previous result. Each account's rows are inserted in a
// single transaction at EndCustomer.
type SQLDB struct {
	opts SQLOptions

	mu      sync.Mutex
	db      *sql.DB
	dialect sqlDialect
	table   string
	plan    *query.Plan
	insert  string
	buf     map[string][][]any
}

var _ Writer = (*SQLDB)(nil)

// NewSQLDB returns a relational sink for opts.ConnectionString.
func NewSQLDB(opts SQLOptions) *SQLDB {
	if opts.ArraySeparator == "" {
		opts.ArraySeparator = DefaultArraySeparator
	}
	return &SQLDB{opts: opts}
}

func (w *SQLDB) BeginScript(ctx context.Context, scriptName string, plan *query.Plan) error {
	driver, dsn, dialect, err := driverFor(w.opts.ConnectionString)
	if err != nil {
		return err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("sqldb: opening %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("sqldb: connecting to %s: %w", driver, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.db = db
	w.dialect = dialect
	w.table = sqlIdent(scriptName)
	w.plan = plan
	w.buf = make(map[string][][]any)

	cols := make([]string, len(plan.Columns))
	names := make([]string, len(plan.Columns))
	for i, c := range plan.Columns {
		names[i] = sqlIdent(c.Name)
		cols[i] = names[i] + " " + sqlType(c)
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", w.table, strings.Join(cols, ", "))
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("sqldb: creating table %s: %w", w.table, err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM "+w.table); err != nil {
		return fmt.Errorf("sqldb: clearing table %s: %w", w.table, err)
	}
	w.insert = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		w.table, strings.Join(names, ", "), sqlPlaceholders(dialect, len(names)))
	return nil
}

// BeginCustomer resets the account's buffer so a retried account starts
// clean instead of appending to a failed attempt's rows.
func (w *SQLDB) BeginCustomer(ctx context.Context, accountID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf[accountID] = nil
	return nil
}

func (w *SQLDB) AddRow(ctx context.Context, accountID string, parsed []any, raw map[string]any) error {
	vals := make([]any, len(parsed))
	for i, v := range parsed {
		vals[i] = cellValue(v, w.opts.ArraySeparator)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf[accountID] = append(w.buf[accountID], vals)
	return nil
}

func (w *SQLDB) EndCustomer(ctx context.Context, accountID string) error {
	w.mu.Lock()
	rows := w.buf[accountID]
	delete(w.buf, accountID)
	db, insert := w.db, w.insert
	w.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqldb: account %s: %w", accountID, err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("sqldb: account %s: %w", accountID, err)
	}
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("sqldb: inserting for account %s: %w", accountID, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqldb: account %s: %w", accountID, err)
	}
	return nil
}

func (w *SQLDB) EndScript(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.db == nil {
		return nil
	}
	err := w.db.Close()
	w.db = nil
	return err
}

func driverFor(conn string) (driver, dsn string, dialect sqlDialect, err error) {
	switch {
	case strings.HasPrefix(conn, "postgres://") || strings.HasPrefix(conn, "postgresql://"):
		return "postgres", conn, dialectPostgres, nil
	case strings.HasPrefix(conn, "mysql://"):
		return "mysql", strings.TrimPrefix(conn, "mysql://"), dialectMySQL, nil
	case strings.HasPrefix(conn, "sqlite://"):
		return "sqlite", strings.TrimPrefix(conn, "sqlite://"), dialectSQLite, nil
	}
	return "", "", 0, fmt.Errorf("sqldb: unsupported connection string %q", conn)
}

// sqlType maps a column to a type every supported engine accepts.
func sqlType(c query.Column) string {
	if c.Type.Repeated {
		return "TEXT"
	}
	if c.Type.Kind == schema.KindPrimitive {
		switch c.Type.TypeName {
		case "int32", "int64":
			return "BIGINT"
		case "float", "double":
			return "DOUBLE PRECISION"
		case "bool":
			return "BOOLEAN"
		}
	}
	return "TEXT"
}

// sqlIdent rewrites a name into a bare identifier that needs no quoting.
func sqlIdent(name string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
	if s == "" || s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}
	return s
}

func sqlPlaceholders(dialect sqlDialect, n int) string {
	parts := make([]string, n)
	for i := range parts {
		if dialect == dialectPostgres {
			parts[i] = fmt.Sprintf("$%d", i+1)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}
