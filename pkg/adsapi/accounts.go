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
package adsapi

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/adsfetch/adsfetch/pkg/rows"
)

// customerClientQuery lists the active non-manager accounts reachable from
// a seed login. A non-manager seed lists itself.
const customerClientQuery = `SELECT customer_client.id FROM customer_client ` +
	`WHERE customer_client.status = 'ENABLED' AND customer_client.manager = FALSE`

// ExpandCustomerIDs resolves a seed account into the non-manager accounts
// visible under it, sorted and deduplicated. Both client implementations
// back their CustomerIDs method with this.
func ExpandCustomerIDs(ctx context.Context, c Client, seed string) ([]string, error) {
	raws, err := c.Search(ctx, customerClientQuery, NormalizeAccountID(seed))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(raws))
	ids := make([]string, 0, len(raws))
	for _, raw := range raws {
		id := clientID(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// FilterCustomerIDs runs a query against each expanded account and keeps
// the values of its first selected column as the account list, deduplicated
// and sorted. The query decides which accounts stay, for example by recent
// campaign activity.
func FilterCustomerIDs(ctx context.Context, c Client, accounts []string, queryText string) ([]string, error) {
	field := firstSelectedField(queryText)
	if field == "" {
		return nil, fmt.Errorf("adsapi: customer ids query selects no field")
	}
	naming := rows.NamingProto
	if c.APIKind() == APIKindREST {
		naming = rows.NamingREST
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0, len(accounts))
	for _, account := range accounts {
		raws, err := c.Search(ctx, queryText, account)
		if err != nil {
			return nil, fmt.Errorf("adsapi: customer ids query against %s: %w", account, err)
		}
		for _, raw := range raws {
			id := idString(rows.Flatten(raw, naming)[field])
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// firstSelectedField extracts the first column of the SELECT list.
func firstSelectedField(queryText string) string {
	toks := strings.Fields(queryText)
	start := -1
	var picked []string
	for i, tok := range toks {
		switch strings.ToUpper(tok) {
		case "SELECT":
			if start < 0 {
				start = i
			}
			continue
		case "FROM":
			if start >= 0 {
				first, _, _ := strings.Cut(strings.Join(picked, " "), ",")
				return strings.TrimSpace(first)
			}
		}
		if start >= 0 {
			picked = append(picked, tok)
		}
	}
	return ""
}

func idString(v any) string {
	switch v := v.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case string:
		return v
	}
	return ""
}

// clientID digs customer_client.id out of a raw row under either naming.
func clientID(raw map[string]any) string {
	cc, ok := raw["customer_client"].(map[string]any)
	if !ok {
		cc, ok = raw["customerClient"].(map[string]any)
	}
	if !ok {
		return ""
	}
	return idString(cc["id"])
}
