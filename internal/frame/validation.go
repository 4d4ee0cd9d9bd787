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

import (
	"fmt"

	comlink "github.com/ZaparooProject/go-comlink"
)

// ValidateUnstuffed checks the size and check byte of an unstuffed frame
// (addresses, data and check byte; no leading flag).
func ValidateUnstuffed(body []byte) error {
	if len(body) != UnstuffedSize {
		return fmt.Errorf("%w: frame is %d bytes, want %d", comlink.ErrFrameCorrupted, len(body), UnstuffedSize)
	}
	if CalculateChecksum(body) != 0 {
		return fmt.Errorf("%w: check byte 0x%02X", comlink.ErrChecksumMismatch, body[len(body)-1])
	}
	return nil
}
