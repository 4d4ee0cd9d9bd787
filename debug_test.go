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
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Debug state is package-global, so these tests do not run in parallel.

func withDebugOutput(t *testing.T, enabled bool) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	prev := debugEnabled.Load()
	SetDebugOutput(&buf)
	SetDebugEnabled(enabled)
	t.Cleanup(func() {
		SetDebugEnabled(prev)
		SetDebugOutput(nil)
	})
	return &buf
}

func TestDebugf_Disabled(t *testing.T) {
	buf := withDebugOutput(t, false)

	Debugf("hidden %d", 1)
	assert.Empty(t, buf.String())
}

func TestDebugf_Enabled(t *testing.T) {
	buf := withDebugOutput(t, true)

	Debugf("collision on %q", 'a')
	assert.Equal(t, "DEBUG: collision on 'a'\n", buf.String())
}

func TestSetDebugOutput_NilRestoresStderr(t *testing.T) {
	withDebugOutput(t, false)

	SetDebugOutput(nil)
	assert.Equal(t, os.Stderr, debugOutput)
}

func TestSessionLog(t *testing.T) {
	buf := withDebugOutput(t, false)
	dir := t.TempDir()

	path, err := InitSessionLog(dir)
	require.NoError(t, err)
	assert.Equal(t, path, GetSessionLogPath())
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Regexp(t, regexp.MustCompile(`^comlink_\d{8}_\d{6}\.log$`), filepath.Base(path))

	Debugf("sent %q", 'h')
	require.NoError(t, CloseSessionLog())

	assert.Empty(t, buf.String(), "session log does not need console debug")
	assert.Empty(t, GetSessionLogPath())

	data, err := os.ReadFile(path) //nolint:gosec // test temp file
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "=== comlink Debug Session Log ===")
	assert.Contains(t, content, "DEBUG: sent 'h'")
	assert.Contains(t, content, "=== Session ended ===")
}

func TestCloseSessionLog_NoLog(t *testing.T) {
	require.NoError(t, CloseSessionLog())
}

func TestInitSessionLog_BadDir(t *testing.T) {
	_, err := InitSessionLog(filepath.Join(t.TempDir(), "missing", "dir"))
	require.Error(t, err)
	assert.Empty(t, GetSessionLogPath())
}
