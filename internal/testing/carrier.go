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

package testing

import "sync"

// ScriptedCarrier replays a fixed sequence of busy samples, then keeps
// answering with Fallback.
type ScriptedCarrier struct {
	samples   []bool
	next      int
	calls     int
	mu        sync.Mutex
	Fallback  bool
	alternate bool
}

// NewScriptedCarrier creates a carrier answering samples in order.
func NewScriptedCarrier(samples ...bool) *ScriptedCarrier {
	return &ScriptedCarrier{samples: samples}
}

// AlwaysBusyAfterTransmit returns a carrier that is free whenever the sender
// waits for the channel and busy whenever it checks for a collision, so
// every attempt collides.
func AlwaysBusyAfterTransmit() *ScriptedCarrier {
	return &ScriptedCarrier{alternate: true}
}

// Busy returns the next scripted sample.
func (c *ScriptedCarrier) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if c.alternate {
		// odd calls sample before transmit, even calls after
		return c.calls%2 == 0
	}
	if c.next < len(c.samples) {
		s := c.samples[c.next]
		c.next++
		return s
	}
	return c.Fallback
}

// Calls returns how many times Busy was sampled.
func (c *ScriptedCarrier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
