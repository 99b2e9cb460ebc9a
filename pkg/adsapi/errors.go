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
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// APIError wraps an upstream failure with the account it hit and whether a
// retry can help.
type APIError struct {
	Account   string
	Transient bool
	Err       error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("account %s: %v", e.Account, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth retrying.
func (e *APIError) Retryable() bool { return e.Transient }

// Retryable reports whether err is a transient upstream failure.
func Retryable(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Transient
}

// wrapGRPC classifies a gRPC failure by status code. Context cancellation
// passes through unwrapped.
func wrapGRPC(account string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	transient := false
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Internal:
			transient = true
		}
	}
	return &APIError{Account: account, Transient: transient, Err: err}
}

// wrapHTTP classifies a non-200 REST response. Quota exhaustion and server
// errors are transient; everything else is permanent.
func wrapHTTP(account string, code int, body string) error {
	transient := code == http.StatusTooManyRequests || code >= 500
	return &APIError{
		Account:   account,
		Transient: transient,
		Err:       fmt.Errorf("http %d: %s", code, body),
	}
}
