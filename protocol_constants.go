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

import "time"

// Control bytes. Both values are reserved and never appear as message content.
const (
	// JamByte tells the receiver to discard the byte it is holding back.
	JamByte byte = 0x07
	// EscapeByte marks the end of a message and flushes the receiver's lookahead.
	EscapeByte byte = 0x06
)

const (
	// DefaultCollisionWindow is how long the sender waits after a byte before
	// sampling the channel again.
	DefaultCollisionWindow = 50 * time.Millisecond
	// DefaultJamSignalTime is the time budgeted for a jam signal on the wire.
	DefaultJamSignalTime = 25 * time.Millisecond
	// DefaultMaxTries is the number of collisions tolerated per symbol.
	// The collision after the last try aborts the message.
	DefaultMaxTries = 10
	// DefaultBusyPollInterval is the sleep increment while the channel is busy.
	DefaultBusyPollInterval = 1 * time.Second
	// SlotTimeFactor scales (collision window + jam time) into one backoff slot.
	SlotTimeFactor = 1.25
)

// maxTriesLimit keeps 2^tries well inside an int on every platform.
const maxTriesLimit = 30

// Link settings shared by both endpoints. Mismatches break the serial layer,
// not the protocol.
const (
	DefaultBaudRate = 115200
	DefaultDataBits = 8
)

// IsControlByte reports whether b is one of the reserved control bytes.
func IsControlByte(b byte) bool {
	return b == JamByte || b == EscapeByte
}
