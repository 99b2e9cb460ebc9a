// Copyright © 2026 The adsfetch Authors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
package adsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRESTSearchPagesThroughResults(t *testing.T) {
	var tokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v21/customers/123/googleAds:search", r.URL.Path)
		assert.Equal(t, "dt", r.Header.Get("developer-token"))
		assert.Equal(t, "999", r.Header.Get("login-customer-id"))

		var body struct {
			Query     string `json:"query"`
			PageToken string `json:"pageToken"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		tokens = append(tokens, body.PageToken)

		if body.PageToken == "" {
			fmt.Fprint(w, `{"results":[{"campaign":{"id":"1","name":"a"},"metrics":{"clicks":"3","ctr":0.5}}],"nextPageToken":"p2"}`)
			return
		}
		fmt.Fprint(w, `{"results":[{"campaign":{"id":"2"}}]}`)
	}))
	defer srv.Close()

	c := NewRESTClientWithHTTP(Config{
		DeveloperToken:  "dt",
		LoginCustomerID: "9-9-9",
		Endpoint:        srv.URL,
	}, srv.Client())

	rows, err := c.Search(context.Background(), "SELECT campaign.id FROM campaign", "1-2-3")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"", "p2"}, tokens)

	campaign := rows[0]["campaign"].(map[string]any)
	assert.Equal(t, "1", campaign["id"])

	metrics := rows[0]["metrics"].(map[string]any)
	assert.Equal(t, "3", metrics["clicks"])
	assert.Equal(t, 0.5, metrics["ctr"])
}

func TestRESTSearchClassifiesHTTPErrors(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		retryable bool
	}{
		{"quota", http.StatusTooManyRequests, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"unavailable", http.StatusServiceUnavailable, true},
		{"bad request", http.StatusBadRequest, false},
		{"forbidden", http.StatusForbidden, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream says no", tt.code)
			}))
			defer srv.Close()

			c := NewRESTClientWithHTTP(Config{DeveloperToken: "dt", Endpoint: srv.URL}, srv.Client())

			_, err := c.Search(context.Background(), "SELECT campaign.id FROM campaign", "123")
			var ae *APIError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.retryable, ae.Retryable())
			assert.Equal(t, "123", ae.Account)
		})
	}
}

func TestRESTStreamStopsAtLastPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[{"campaign":{"id":"1"}}]}`)
	}))
	defer srv.Close()

	c := NewRESTClientWithHTTP(Config{DeveloperToken: "dt", Endpoint: srv.URL}, srv.Client())

	it, err := c.SearchStream(context.Background(), "SELECT campaign.id FROM campaign", "123")
	require.NoError(t, err)
	defer it.Close()

	_, err = it.Next(context.Background())
	require.NoError(t, err)
	_, err = it.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestRESTCustomerIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[{"customerClient":{"id":"222"}},{"customerClient":{"id":"111"}},{"customerClient":{"id":"222"}}]}`)
	}))
	defer srv.Close()

	c := NewRESTClientWithHTTP(Config{DeveloperToken: "dt", Endpoint: srv.URL}, srv.Client())

	ids, err := c.CustomerIDs(context.Background(), "9-9-9")
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222"}, ids)
}
