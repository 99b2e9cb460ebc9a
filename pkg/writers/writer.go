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

// Package writers defines the sink lifecycle report rows flow through and
// the built-in sink implementations.
package writers

import (
	"context"
	"sync"

	"github.com/adsfetch/adsfetch/pkg/query"
)

// Writer receives one script's rows account by account. The runner calls
// BeginScript once, then per account BeginCustomer, AddRow for each row in
// stream order, and EndCustomer; EndScript closes the script. BeginCustomer
// calls are serialized by the runner even when accounts run concurrently;
// between BeginCustomer and EndCustomer an account's rows arrive from a
// single goroutine. Implementations tolerate EndCustomer with zero rows.
type Writer interface {
	BeginScript(ctx context.Context, scriptName string, plan *query.Plan) error
	BeginCustomer(ctx context.Context, accountID string) error
	AddRow(ctx context.Context, accountID string, parsed []any, raw map[string]any) error
	EndCustomer(ctx context.Context, accountID string) error
	EndScript(ctx context.Context) error
}

// Null discards rows but keeps per-account counts, so a dry run still
// reports how many rows each account produced.
type Null struct {
	mu     sync.Mutex
	counts map[string]int64
}

var _ Writer = (*Null)(nil)

// NewNull returns a counting discard sink.
func NewNull() *Null {
	return &Null{counts: make(map[string]int64)}
}

func (n *Null) BeginScript(context.Context, string, *query.Plan) error { return nil }

func (n *Null) BeginCustomer(ctx context.Context, accountID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.counts == nil {
		n.counts = make(map[string]int64)
	}
	n.counts[accountID] = 0
	return nil
}

func (n *Null) AddRow(ctx context.Context, accountID string, parsed []any, raw map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.counts[accountID]++
	return nil
}

func (n *Null) EndCustomer(context.Context, string) error { return nil }

func (n *Null) EndScript(context.Context) error { return nil }

// Counts returns a copy of the per-account row counts.
func (n *Null) Counts() map[string]int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]int64, len(n.counts))
	for k, v := range n.counts {
		out[k] = v
	}
	return out
}
