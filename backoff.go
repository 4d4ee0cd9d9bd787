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
	"math/rand/v2"
	"time"
)

// BackoffSlots picks the number of slots to wait after the tries-th collision.
// The result is uniform in [0, 2^k] inclusive, where k = min(tries, maxTries).
func BackoffSlots(rng *rand.Rand, tries, maxTries int) int {
	k := min(tries, maxTries)
	if k < 0 {
		k = 0
	}
	if k > maxTriesLimit {
		k = maxTriesLimit
	}
	return rng.IntN(1<<k + 1)
}

// BackoffDelay converts a slot count into a sleep duration.
func BackoffDelay(slots int, slotTime time.Duration) time.Duration {
	return time.Duration(slots) * slotTime
}

// newRand returns a randomly seeded generator for backoff sampling.
func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // backoff jitter, not crypto
}
