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
	"crypto/tls"
	"fmt"
	"io"

	"github.com/shenzhencenter/google-ads-pb/services"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	grpcoauth "google.golang.org/grpc/credentials/oauth"
	"google.golang.org/grpc/metadata"
)

// defaultGRPCEndpoint is the production streaming host.
const defaultGRPCEndpoint = "googleads.googleapis.com:443"

// GRPCClient fetches reports over the streaming transport.
type GRPCClient struct {
	cfg  Config
	conn *grpc.ClientConn
	svc  services.GoogleAdsServiceClient
	log  *zap.Logger
}

var _ Client = (*GRPCClient)(nil)

// NewGRPCClient dials the streaming endpoint with per-RPC OAuth
// credentials.
func NewGRPCClient(ctx context.Context, cfg Config) (*GRPCClient, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	ts, err := tokenSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultGRPCEndpoint
	}
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})),
		grpc.WithPerRPCCredentials(grpcoauth.TokenSource{TokenSource: ts}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	return &GRPCClient{
		cfg:  cfg,
		conn: conn,
		svc:  services.NewGoogleAdsServiceClient(conn),
		log:  cfg.Logger,
	}, nil
}

// Close tears down the connection.
func (c *GRPCClient) Close() error { return c.conn.Close() }

func (c *GRPCClient) APIKind() APIKind { return APIKindGRPC }

// callContext attaches the developer token and login customer headers.
func (c *GRPCClient) callContext(ctx context.Context) context.Context {
	pairs := []string{"developer-token", c.cfg.DeveloperToken}
	if c.cfg.LoginCustomerID != "" {
		pairs = append(pairs, "login-customer-id", NormalizeAccountID(c.cfg.LoginCustomerID))
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}

func (c *GRPCClient) SearchStream(ctx context.Context, query, accountID string) (RowIterator, error) {
	accountID = NormalizeAccountID(accountID)
	ctx, cancel := context.WithCancel(c.callContext(ctx))
	stream, err := c.svc.SearchStream(ctx, &services.SearchGoogleAdsStreamRequest{
		CustomerId: accountID,
		Query:      query,
	})
	if err != nil {
		cancel()
		return nil, wrapGRPC(accountID, err)
	}
	c.log.Debug("opened report stream", zap.String("account", accountID))
	return &grpcIterator{stream: stream, cancel: cancel, account: accountID}, nil
}

func (c *GRPCClient) Search(ctx context.Context, query, accountID string) ([]map[string]any, error) {
	it, err := c.SearchStream(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	return Drain(ctx, it)
}

func (c *GRPCClient) CustomerIDs(ctx context.Context, seed string) ([]string, error) {
	return ExpandCustomerIDs(ctx, c, seed)
}

// streamRecv is the slice of the generated stream client the iterator
// needs.
type streamRecv interface {
	Recv() (*services.SearchGoogleAdsStreamResponse, error)
}

// grpcIterator walks the batches of a server stream row by row.
type grpcIterator struct {
	stream  streamRecv
	cancel  context.CancelFunc
	account string
	buf     []*services.GoogleAdsRow
	idx     int
}

func (it *grpcIterator) Next(ctx context.Context) (map[string]any, error) {
	for it.idx >= len(it.buf) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := it.stream.Recv()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, wrapGRPC(it.account, err)
		}
		it.buf = resp.GetResults()
		it.idx = 0
	}
	row := it.buf[it.idx]
	it.idx++
	return MessageToVariant(row.ProtoReflect()), nil
}

func (it *grpcIterator) Close() error {
	if it.cancel != nil {
		it.cancel()
	}
	return nil
}
