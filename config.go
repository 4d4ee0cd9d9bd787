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
	"fmt"
	"math"
	"time"
)

// Config holds the timing parameters of the medium access protocol.
type Config struct {
	// CollisionWindow is the wait between transmitting a byte and re-sampling
	// the channel. A busy channel after the window is a collision.
	CollisionWindow time.Duration
	// JamSignalTime is the time budgeted for the jam signal.
	JamSignalTime time.Duration
	// BusyPollInterval is the sleep increment while waiting for a free channel.
	BusyPollInterval time.Duration
	// MaxTries bounds the collision retries for a single symbol.
	MaxTries int
}

// DefaultConfig returns the timing used by the serial messenger.
func DefaultConfig() *Config {
	return &Config{
		CollisionWindow:  DefaultCollisionWindow,
		JamSignalTime:    DefaultJamSignalTime,
		BusyPollInterval: DefaultBusyPollInterval,
		MaxTries:         DefaultMaxTries,
	}
}

// Validate checks that the configuration can drive the protocol.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidParameter)
	}
	if c.CollisionWindow <= 0 {
		return fmt.Errorf("%w: collision window must be positive, got %v", ErrInvalidParameter, c.CollisionWindow)
	}
	if c.JamSignalTime < 0 {
		return fmt.Errorf("%w: jam signal time must not be negative, got %v", ErrInvalidParameter, c.JamSignalTime)
	}
	if c.BusyPollInterval <= 0 {
		return fmt.Errorf("%w: busy poll interval must be positive, got %v", ErrInvalidParameter, c.BusyPollInterval)
	}
	if c.MaxTries < 0 || c.MaxTries > maxTriesLimit {
		return fmt.Errorf("%w: max tries must be within [0, %d], got %d", ErrInvalidParameter, maxTriesLimit, c.MaxTries)
	}
	return nil
}

// SlotTime returns round((CollisionWindow + JamSignalTime) * SlotTimeFactor).
// Rounding happens in whole milliseconds, the unit the windows are tuned in;
// sub-millisecond configurations round to the nearest microsecond instead.
func (c *Config) SlotTime() time.Duration {
	base := c.CollisionWindow + c.JamSignalTime
	unit := time.Millisecond
	if base%time.Millisecond != 0 {
		unit = time.Microsecond
	}
	units := math.Round(float64(base/unit) * SlotTimeFactor)
	return time.Duration(units) * unit
}
