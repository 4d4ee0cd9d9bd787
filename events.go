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
	"time"
)

// EventKind identifies a protocol event on the debug stream.
type EventKind int

const (
	// EventChannelBusy is emitted each time the sender finds the channel busy
	EventChannelBusy EventKind = iota
	// EventTransmitted is emitted after a symbol byte was written
	EventTransmitted
	// EventCollision is emitted when the channel flipped inside the collision window
	EventCollision
	// EventBackoff is emitted before the randomized backoff sleep
	EventBackoff
	// EventDelivered is emitted when a symbol survived its collision window
	EventDelivered
	// EventAborted is emitted when the retry budget for a symbol ran out
	EventAborted
	// EventEndOfMessage is emitted after the escape byte was written
	EventEndOfMessage
	// EventReceived is emitted by a receiving endpoint for each batch of raw bytes
	EventReceived
	// EventPortInitialized is emitted when an endpoint is bound to its transport
	EventPortInitialized
)

var eventKindNames = map[EventKind]string{
	EventChannelBusy:     "channel-busy",
	EventTransmitted:     "transmitted",
	EventCollision:       "collision",
	EventBackoff:         "backoff",
	EventDelivered:       "delivered",
	EventAborted:         "aborted",
	EventEndOfMessage:    "end-of-message",
	EventReceived:        "received",
	EventPortInitialized: "port-initialized",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one entry on the debug stream. Fields that do not apply to a
// kind are left at their zero value.
type Event struct {
	Kind    EventKind
	Index   int           // Symbol position in the message
	Tries   int           // Collisions seen so far for the symbol
	Slots   int           // Backoff slot count
	Delay   time.Duration // Backoff sleep
	Bytes   int           // Raw bytes in a receive batch
	Decoded int           // Decoded bytes produced by a receive batch
	Escapes int           // End-of-message bytes in a receive batch
	Symbol  byte
}

func (e Event) String() string {
	switch e.Kind {
	case EventChannelBusy:
		return fmt.Sprintf("channel busy, waiting to send %q", e.Symbol)
	case EventTransmitted:
		return fmt.Sprintf("sent %q (#%d)", e.Symbol, e.Index)
	case EventCollision:
		return fmt.Sprintf("x collision on %q (try %d)", e.Symbol, e.Tries)
	case EventBackoff:
		return fmt.Sprintf("backoff %d slots (%v)", e.Slots, e.Delay)
	case EventDelivered:
		return fmt.Sprintf("delivered %q (#%d)", e.Symbol, e.Index)
	case EventAborted:
		return fmt.Sprintf("Error. Number of tries expired on %q (#%d)", e.Symbol, e.Index)
	case EventEndOfMessage:
		return "end of message"
	case EventReceived:
		return fmt.Sprintf("received %d bytes, decoded %d", e.Bytes, e.Decoded)
	case EventPortInitialized:
		return "Port was initialized"
	default:
		return e.Kind.String()
	}
}
