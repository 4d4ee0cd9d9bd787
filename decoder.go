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

import "github.com/ZaparooProject/go-comlink/internal/syncutil"

// FrameDecoder turns raw bytes from the medium into message bytes.
// Implementations keep state between calls so that input may arrive in
// arbitrary fragments.
type FrameDecoder interface {
	// Feed consumes raw bytes in arrival order and returns the message
	// bytes that became final during this call
	Feed(raw []byte) []byte

	// Reset drops any partially decoded state
	Reset()
}

// FrameEncoder turns a message into the raw bytes to put on the medium.
// Encoders bypass the medium access controller.
type FrameEncoder interface {
	Encode(msg []byte) ([]byte, error)
}

// Decoder reconstructs messages sent through a MAC. It holds back the most
// recent data byte until the next byte shows it was not hit by a collision:
// a jam discards it, an escape or another data byte releases it.
type Decoder struct {
	mu         syncutil.Mutex
	pending    byte
	hasPending bool
}

// NewDecoder creates a decoder with empty lookahead.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed processes raw left to right. Lookahead survives between calls; only
// an escape byte (or Reset) clears it.
func (d *Decoder) Feed(raw []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []byte
	for _, b := range raw {
		switch b {
		case JamByte:
			d.hasPending = false
		case EscapeByte:
			if d.hasPending {
				out = append(out, d.pending)
			}
			d.hasPending = false
		default:
			if d.hasPending {
				out = append(out, d.pending)
			}
			d.pending = b
			d.hasPending = true
		}
	}
	return out
}

// Pending returns the byte currently held back, if any.
func (d *Decoder) Pending() (byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending, d.hasPending
}

// Reset clears the lookahead without emitting it.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = 0
	d.hasPending = false
}
