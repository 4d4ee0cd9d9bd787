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

import "fmt"

// Mode selects the direction an endpoint uses the medium in. A transport is
// opened in exactly one mode, never both.
type Mode int

const (
	// ModeSender opens the medium write-only
	ModeSender Mode = iota
	// ModeReceiver opens the medium read-only
	ModeReceiver
)

func (m Mode) String() string {
	switch m {
	case ModeSender:
		return "sender"
	case ModeReceiver:
		return "receiver"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts "sender"/"receiver" (or "tx"/"rx") into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "sender", "send", "tx":
		return ModeSender, nil
	case "receiver", "receive", "rx":
		return ModeReceiver, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidParameter, s)
	}
}

// Transport is the raw byte medium an endpoint runs on.
// UART ports and the in-memory medium implement it.
type Transport interface {
	// Write puts raw bytes on the medium. Only valid in ModeSender.
	Write(data []byte) (int, error)

	// SetDataHandler registers the callback invoked with each batch of
	// newly arrived bytes, in arrival order. Only used in ModeReceiver.
	// The callback must not block.
	SetDataHandler(fn func(data []byte))

	// Close releases the medium
	Close() error

	// Mode returns the direction the transport was opened in
	Mode() Mode

	// IsConnected returns true if the transport is open
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportMemory represents the in-process medium used for tests and demos
	TransportMemory TransportType = "mem"
)
