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

package frame

// Delimiter and stuffing characters of the flag-delimited framing.
// Inside a frame Flag is sent as Escape+FlagReplacement and Escape as
// Escape+EscapeReplacement, so Flag on the wire always starts a frame.
const (
	Flag              = 'F'
	Escape            = 'E'
	FlagReplacement   = 'R'
	EscapeReplacement = 'N'
)

// Placeholder pads the data field of the last frame of a message.
const Placeholder = 0x00

// Frame layout after unstuffing: dst | src | data[DataSize] | check.
const (
	AddressSize   = 2
	DataSize      = 7
	CheckSize     = 1
	UnstuffedSize = AddressSize + DataSize + CheckSize
)
