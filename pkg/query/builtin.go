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
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/adsfetch/adsfetch/pkg/schema"
)

// ocidQuery fetches the one URL that carries the account's web-interface id.
const ocidQuery = "SELECT customer.id, metrics.optimization_score_url FROM customer LIMIT 1"

// builtinPlan returns the prebuilt plan for a builtin.* pseudo resource.
func builtinPlan(name string) (*Plan, error) {
	switch name {
	case "builtin.ocid_mapping":
		return &Plan{
			NativeQuery: ocidQuery,
			Columns: []Column{
				{
					Name:       "account_id",
					Expression: "customer.id",
					Type:       schema.FieldType{Kind: schema.KindPrimitive, TypeName: "int64"},
				},
				{
					Name:       "ocid",
					Expression: "metrics.optimization_score_url",
					Type:       schema.FieldType{Kind: schema.KindPrimitive, TypeName: "string"},
				},
			},
			Resource: schema.ResourceInfo{Name: name},
			Executor: ocidExecutor{},
		}, nil
	default:
		return nil, invalidQueryf("unknown builtin query %q", name)
	}
}

// ocidExecutor maps an account to the ocid parameter of its optimization
// score URL, yielding one {account_id, ocid} row per account.
type ocidExecutor struct{}

func (ocidExecutor) Execute(ctx context.Context, src RowSource, customerID string) ([][]any, error) {
	raws, err := src.Search(ctx, ocidQuery, customerID)
	if err != nil {
		return nil, fmt.Errorf("ocid lookup for %s failed: %w", customerID, err)
	}
	if len(raws) == 0 {
		return nil, nil
	}

	row := raws[0]
	id := toInt64(dig(row, "customer", "id"))
	rawURL, _ := dig(row, "metrics", "optimization_score_url", "optimizationScoreUrl").(string)

	ocid := ""
	if rawURL != "" {
		if u, err := url.Parse(rawURL); err == nil {
			ocid = u.Query().Get("ocid")
		}
	}
	return [][]any{{id, ocid}}, nil
}

// dig walks a raw row, trying each of the given keys at the leaf level so
// both transport namings resolve.
func dig(row map[string]any, parent string, leaves ...string) any {
	sub, ok := row[parent].(map[string]any)
	if !ok {
		return nil
	}
	for _, leaf := range leaves {
		if v, ok := sub[leaf]; ok {
			return v
		}
	}
	return nil
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}
