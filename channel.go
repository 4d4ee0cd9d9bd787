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
	"time"
)

// Clock is the time source the MAC sleeps on. Tests inject a fake clock so
// that collision windows and backoff delays take no wall-clock time.
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// Sleep blocks for d or until ctx is done, whichever comes first
	Sleep(ctx context.Context, d time.Duration) error
}

// Carrier is the shared "channel busy" signal both endpoints observe.
type Carrier interface {
	// Busy reports whether the channel is currently occupied
	Busy() bool
}

type systemClock struct{}

// SystemClock returns a Clock backed by the real time package.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	return sleepWithContext(ctx, d)
}

// sleepWithContext sleeps for d unless ctx is cancelled first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SecondParityCarrier derives the channel state from the local wall-clock
// second: even seconds are busy, odd seconds are free. Both endpoints must
// have loosely synchronized clocks for this to mean anything.
type SecondParityCarrier struct {
	clock Clock
}

// NewSecondParityCarrier creates a carrier sampling the given clock.
// A nil clock means the system clock.
func NewSecondParityCarrier(clock Clock) *SecondParityCarrier {
	if clock == nil {
		clock = SystemClock()
	}
	return &SecondParityCarrier{clock: clock}
}

// Busy reports whether the current second is even.
func (c *SecondParityCarrier) Busy() bool {
	return c.clock.Now().Local().Second()%2 == 0
}
