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
// Package retry centralizes retry loops so callers never write them inline.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Strategy selects how the delay grows between attempts.
type Strategy int

const (
	// Linear waits BaseDelay * attempt between attempts.
	Linear Strategy = iota
	// Exponential multiplies the delay by Multiplier after each attempt.
	Exponential
)

// Policy bounds a retry loop.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Strategy    Strategy
	Multiplier  float64
}

// DefaultPolicy matches the runner's defaults: five attempts with a linear
// backoff off a 100ms base.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Strategy:    Linear,
		Multiplier:  2.0,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier <= 1 {
		p.Multiplier = 2.0
	}
	return p
}

func (p Policy) delay(attempt int) time.Duration {
	var d time.Duration
	switch p.Strategy {
	case Exponential:
		d = p.BaseDelay
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * p.Multiplier)
		}
	default:
		d = p.BaseDelay * time.Duration(attempt)
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Classifier reports whether an error is worth retrying.
type Classifier func(error) bool

// Any retries every error.
func Any(error) bool { return true }

// Do runs op until it succeeds, the classifier rejects its error, the policy
// is exhausted, or the context is cancelled.
func Do(ctx context.Context, policy Policy, retryable Classifier, op func(ctx context.Context) error) error {
	p := policy.withDefaults()
	if retryable == nil {
		retryable = Any
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				zap.L().Info("retry succeeded",
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}

		lastErr = err

		// Don't retry on context cancellation or deadline exceeded
		if ctx.Err() != nil {
			return fmt.Errorf("attempt %d/%d: %w", attempt, p.MaxAttempts, err)
		}

		if !retryable(err) {
			return err
		}

		if attempt >= p.MaxAttempts {
			break
		}

		delay := p.delay(attempt)
		zap.L().Warn("operation failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("attempt %d/%d: %w (cancelled during retry wait)",
				attempt, p.MaxAttempts, ctx.Err())
		case <-time.After(delay):
		}
	}

	zap.L().Error("retries exhausted",
		zap.Int("max_attempts", p.MaxAttempts),
		zap.Error(lastErr),
	)
	return fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, lastErr)
}
