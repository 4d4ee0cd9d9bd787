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
	"testing"

	comlink "github.com/ZaparooProject/go-comlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateChecksum(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{
			name: "empty data",
			data: []byte{},
			want: 0,
		},
		{
			name: "single byte",
			data: []byte{0x42},
			want: 0x42,
		},
		{
			name: "overflow handling",
			data: []byte{0xFF, 0x01},
			want: 0x00,
		},
		{
			name: "addressed frame",
			data: []byte{'0', '1', 'h', 'i', 0, 0, 0, 0, 0},
			want: 0x32, // 0x132 truncated
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CalculateChecksum(tt.data); got != tt.want {
				t.Errorf("CalculateChecksum() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckByte_ZeroesSum(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{
		{},
		{0x01},
		{'0', '1', 'F', 'E', 'x', 0, 0, 0, 0},
		{0xFF, 0xFF, 0xFF},
	} {
		withCheck := append(append([]byte(nil), data...), CheckByte(data))
		assert.Equal(t, byte(0), CalculateChecksum(withCheck), "data %v", data)
	}
}

func TestValidateUnstuffed(t *testing.T) {
	t.Parallel()

	body := []byte{'0', '1', 'h', 'e', 'l', 'l', 'o', 0, 0}
	body = append(body, CheckByte(body))
	require.NoError(t, ValidateUnstuffed(body))

	corrupted := append([]byte(nil), body...)
	corrupted[3] ^= 0x01
	require.ErrorIs(t, ValidateUnstuffed(corrupted), comlink.ErrChecksumMismatch)

	require.ErrorIs(t, ValidateUnstuffed(body[:5]), comlink.ErrFrameCorrupted)
}
