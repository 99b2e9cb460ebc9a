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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// defaultRESTEndpoint is the production REST base URL.
const defaultRESTEndpoint = "https://googleads.googleapis.com"

// RESTClient fetches reports over the JSON transport, paging through the
// search endpoint. Field names arrive camelCased and 64-bit integers as
// strings; the row parser normalizes both.
type RESTClient struct {
	cfg  Config
	hc   *http.Client
	base string
	log  *zap.Logger
}

var _ Client = (*RESTClient)(nil)

// NewRESTClient builds a REST client whose HTTP client refreshes OAuth
// tokens automatically.
func NewRESTClient(ctx context.Context, cfg Config) (*RESTClient, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	ts, err := tokenSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newRESTClient(cfg, oauth2.NewClient(ctx, ts)), nil
}

// NewRESTClientWithHTTP builds a REST client over a caller-supplied HTTP
// client, skipping credential checks. Tests point this at a fake server.
func NewRESTClientWithHTTP(cfg Config, hc *http.Client) *RESTClient {
	cfg.setDefaults()
	return newRESTClient(cfg, hc)
}

func newRESTClient(cfg Config, hc *http.Client) *RESTClient {
	base := cfg.Endpoint
	if base == "" {
		base = defaultRESTEndpoint
	}
	return &RESTClient{
		cfg:  cfg,
		hc:   hc,
		base: strings.TrimRight(base, "/"),
		log:  cfg.Logger,
	}
}

func (c *RESTClient) APIKind() APIKind { return APIKindREST }

func (c *RESTClient) SearchStream(ctx context.Context, query, accountID string) (RowIterator, error) {
	accountID = NormalizeAccountID(accountID)
	page, err := c.searchPage(ctx, query, accountID, "")
	if err != nil {
		return nil, err
	}
	return &restIterator{c: c, query: query, account: accountID, page: page}, nil
}

func (c *RESTClient) Search(ctx context.Context, query, accountID string) ([]map[string]any, error) {
	it, err := c.SearchStream(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	return Drain(ctx, it)
}

func (c *RESTClient) CustomerIDs(ctx context.Context, seed string) ([]string, error) {
	return ExpandCustomerIDs(ctx, c, seed)
}

// searchPage holds one page of results and the token for the next.
type searchPage struct {
	rows []map[string]any
	next string
}

func (c *RESTClient) searchPage(ctx context.Context, query, accountID, token string) (*searchPage, error) {
	body := map[string]string{"query": query}
	if token != "" {
		body["pageToken"] = token
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/%s/customers/%s/googleAds:search", c.base, c.cfg.Version, accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("developer-token", c.cfg.DeveloperToken)
	if c.cfg.LoginCustomerID != "" {
		req.Header.Set("login-customer-id", NormalizeAccountID(c.cfg.LoginCustomerID))
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &APIError{Account: accountID, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, wrapHTTP(accountID, resp.StatusCode, string(msg))
	}

	var decoded struct {
		Results       []map[string]any `json:"results"`
		NextPageToken string           `json:"nextPageToken"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, &APIError{Account: accountID, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	for i, raw := range decoded.Results {
		decoded.Results[i] = normalizeJSON(raw).(map[string]any)
	}
	c.log.Debug("fetched report page",
		zap.String("account", accountID),
		zap.Int("rows", len(decoded.Results)))
	return &searchPage{rows: decoded.Results, next: decoded.NextPageToken}, nil
}

// normalizeJSON rewrites json.Number nodes to int64 or float64, in place
// for containers.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, el := range t {
			t[k] = normalizeJSON(el)
		}
		return t
	case []any:
		for i, el := range t {
			t[i] = normalizeJSON(el)
		}
		return t
	default:
		return v
	}
}

// restIterator pages through search results on demand.
type restIterator struct {
	c       *RESTClient
	query   string
	account string
	page    *searchPage
	idx     int
	closed  bool
}

func (it *restIterator) Next(ctx context.Context) (map[string]any, error) {
	for {
		if it.closed {
			return nil, io.EOF
		}
		if it.page != nil && it.idx < len(it.page.rows) {
			row := it.page.rows[it.idx]
			it.idx++
			return row, nil
		}
		if it.page == nil || it.page.next == "" {
			return nil, io.EOF
		}
		page, err := it.c.searchPage(ctx, it.query, it.account, it.page.next)
		if err != nil {
			return nil, err
		}
		it.page, it.idx = page, 0
	}
}

func (it *restIterator) Close() error {
	it.closed = true
	return nil
}
