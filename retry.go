// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package comlink

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Port open retry defaults. A USB-serial adapter that was just plugged in,
// or a port another process is releasing, usually becomes usable within a
// few hundred milliseconds.
const (
	DefaultOpenAttempts       = 3
	DefaultOpenInitialBackoff = 100 * time.Millisecond
	DefaultOpenMaxBackoff     = 500 * time.Millisecond
	DefaultOpenRetryTimeout   = 10 * time.Second
)

// RetryConfig configures Retry.
type RetryConfig struct {
	// Clock is used for backoff sleeps; nil means the system clock
	Clock Clock
	// MaxAttempts is the maximum number of attempts (0 = no retry)
	MaxAttempts int
	// InitialBackoff is the delay after the first failure
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts
	MaxBackoff time.Duration
	// BackoffMultiplier is the factor by which the backoff increases
	BackoffMultiplier float64
	// Jitter adds up to this fraction of the backoff at random
	Jitter float64
	// RetryTimeout is the overall timeout for all attempts
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns the configuration used for opening ports.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       DefaultOpenAttempts,
		InitialBackoff:    DefaultOpenInitialBackoff,
		MaxBackoff:        DefaultOpenMaxBackoff,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      DefaultOpenRetryTimeout,
	}
}

// Retry calls fn until it succeeds, returns an error IsRetryable rejects,
// or the attempts run out. The last error is returned unwrapped.
//
// Retry is for setup work such as opening a port. Symbol transmission has
// its own collision backoff in MAC and must not be wrapped in Retry.
func Retry(ctx context.Context, cfg *RetryConfig, fn func() error) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	if cfg.MaxAttempts <= 0 {
		return fn()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	if cfg.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RetryTimeout)
		defer cancel()
	}

	var lastErr error
	backoff := cfg.InitialBackoff
	for attempt := range cfg.MaxAttempts {
		if ctx.Err() != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		Debugf("attempt %d/%d failed: %v", attempt+1, cfg.MaxAttempts, err)

		if attempt == cfg.MaxAttempts-1 {
			break
		}
		if clock.Sleep(ctx, jittered(backoff, cfg.Jitter)) != nil {
			return lastErr
		}
		backoff = nextBackoff(backoff, cfg)
	}
	return lastErr
}

func nextBackoff(backoff time.Duration, cfg *RetryConfig) time.Duration {
	next := time.Duration(float64(backoff) * cfg.BackoffMultiplier)
	if cfg.MaxBackoff > 0 && next > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return next
}

func jittered(d time.Duration, factor float64) time.Duration {
	if factor <= 0 || d <= 0 {
		return d
	}
	return d + time.Duration(rand.Float64()*factor*float64(d)) //nolint:gosec // jitter, not crypto
}
