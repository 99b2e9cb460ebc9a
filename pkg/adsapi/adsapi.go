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
// Package adsapi speaks to the reporting API over its two transports. The
// gRPC client streams protobuf rows; the REST client pages JSON. Both hand
// rows to callers as generic variant trees keyed by field name, leaving
// naming and enum normalization to the row parser.
package adsapi

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// APIKind identifies the transport a client speaks. The row parser keys its
// field-name normalization off this.
type APIKind int

const (
	APIKindGRPC APIKind = iota
	APIKindREST
)

func (k APIKind) String() string {
	switch k {
	case APIKindGRPC:
		return "grpc"
	case APIKindREST:
		return "rest"
	}
	return "unknown"
}

// RowIterator yields raw report rows one at a time. Next returns io.EOF
// after the last row. Close releases the underlying stream and is safe to
// call more than once.
type RowIterator interface {
	Next(ctx context.Context) (map[string]any, error)
	Close() error
}

// Client is the transport-neutral surface reports are fetched through.
type Client interface {
	// SearchStream runs a query against one account and streams raw rows.
	SearchStream(ctx context.Context, query, accountID string) (RowIterator, error)

	// Search runs a query against one account and collects all raw rows.
	Search(ctx context.Context, query, accountID string) ([]map[string]any, error)

	// CustomerIDs expands a seed account into the active non-manager
	// accounts visible under it, the seed itself included when it is one.
	CustomerIDs(ctx context.Context, seed string) ([]string, error)

	// APIKind reports which transport the raw rows came from.
	APIKind() APIKind
}

// adwordsScope is the OAuth scope the reporting API requires.
const adwordsScope = "https://www.googleapis.com/auth/adwords"

// DefaultVersion is the REST API version spoken unless overridden.
const DefaultVersion = "v21"

// Config carries the credentials and endpoints shared by both transports.
type Config struct {
	// DeveloperToken authorizes API access for the developer project.
	DeveloperToken string

	// ClientID, ClientSecret and RefreshToken form the installed-app OAuth
	// triple. Ignored when JSONKeyFilePath is set.
	ClientID     string
	ClientSecret string
	RefreshToken string

	// JSONKeyFilePath points at a service-account key file used instead of
	// the refresh-token flow.
	JSONKeyFilePath string

	// LoginCustomerID is the manager account the credentials act under.
	// Optional. Dashes are stripped.
	LoginCustomerID string

	// Endpoint overrides the API host: host:port for gRPC, base URL for
	// REST. Leave empty for production.
	Endpoint string

	// Version selects the REST API version (default: DefaultVersion).
	Version string

	// Logger receives request-level diagnostics (default: zap.NewNop()).
	Logger *zap.Logger
}

func (c *Config) setDefaults() {
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

func (c *Config) validate() error {
	if c.DeveloperToken == "" {
		return fmt.Errorf("DeveloperToken is required")
	}
	if c.JSONKeyFilePath != "" {
		return nil
	}
	if c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == "" {
		return fmt.Errorf("ClientID, ClientSecret and RefreshToken are required without a JSON key file")
	}
	return nil
}

// tokenSource builds the OAuth token source for the configured credential
// form.
func tokenSource(ctx context.Context, cfg Config) (oauth2.TokenSource, error) {
	if cfg.JSONKeyFilePath != "" {
		data, err := os.ReadFile(cfg.JSONKeyFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, adwordsScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key file: %w", err)
		}
		return creds.TokenSource, nil
	}
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
	}
	return conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken}), nil
}

// NormalizeAccountID strips the dashes people copy out of the account UI.
func NormalizeAccountID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), "-", "")
}

// Drain collects every remaining row of it, closing it afterwards.
func Drain(ctx context.Context, it RowIterator) ([]map[string]any, error) {
	defer it.Close()
	var out []map[string]any
	for {
		row, err := it.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
}
