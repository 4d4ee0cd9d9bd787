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

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZaparooProject/go-comlink/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    zapcore.Level
		wantErr bool
	}{
		{input: "debug", want: zap.DebugLevel},
		{input: "", want: zap.InfoLevel},
		{input: "INFO", want: zap.InfoLevel},
		{input: "warning", want: zap.WarnLevel},
		{input: "error", want: zap.ErrorLevel},
		{input: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, level.Level())
		})
	}
}

func TestSetup_ConsoleFiltersByLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := Setup(config.Log{Level: "warn"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("collision storm", zap.Int("tries", 11))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "collision storm")
	assert.Contains(t, out, "tries")
}

func TestSetup_JSONFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "station.log")
	var console bytes.Buffer
	logger, err := Setup(config.Log{Level: "info", Format: "json", File: path}, &console)
	require.NoError(t, err)

	logger.Info("message delivered", zap.String("text", "hi"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "message delivered", entry["msg"])
	assert.Equal(t, "hi", entry["text"])

	require.NoError(t, json.Unmarshal(bytes.TrimSpace(console.Bytes()), &entry))
}

func TestSetup_RejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := Setup(config.Log{Format: "xml"}, nil)
	require.Error(t, err)
}

func TestDebugWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := Setup(config.Log{Level: "debug"}, &buf)
	require.NoError(t, err)

	n, err := DebugWriter{Logger: logger}.Write([]byte("DEBUG: x collision on \"h\" (try 1)\n"))
	require.NoError(t, err)
	assert.Equal(t, 34, n)
	require.NoError(t, logger.Sync())
	assert.Contains(t, buf.String(), `x collision on "h" (try 1)`)
}
