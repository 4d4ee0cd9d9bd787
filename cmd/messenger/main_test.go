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

package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	comlink "github.com/ZaparooProject/go-comlink"
	"github.com/ZaparooProject/go-comlink/config"
	"github.com/ZaparooProject/go-comlink/framing/hdlc"
	testutil "github.com/ZaparooProject/go-comlink/internal/testing"
	"github.com/ZaparooProject/go-comlink/transport/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func memStation(m *mem.Medium, in string, out *syncBuffer, carrier comlink.Carrier) *station {
	return &station{
		in:     strings.NewReader(in),
		out:    out,
		logger: zap.NewNop(),
		open: func(_ context.Context, _ *config.Config, mode comlink.Mode) (comlink.Transport, error) {
			return m.Open(mode), nil
		},
		macOpts: []comlink.MACOption{
			comlink.WithClock(testutil.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC))),
			comlink.WithCarrier(carrier),
		},
	}
}

func TestLoadConfig_DefaultPorts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     []string
		wantPort string
		wantMode comlink.Mode
	}{
		{name: "sender", args: nil, wantPort: "/dev/tnt1", wantMode: comlink.ModeSender},
		{name: "receiver", args: []string{"-mode", "receiver"}, wantPort: "/dev/tnt0", wantMode: comlink.ModeReceiver},
		{name: "explicit_port", args: []string{"-mode", "rx", "-port", "COM4"}, wantPort: "COM4", wantMode: comlink.ModeReceiver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts, err := parseFlags(tt.args)
			require.NoError(t, err)
			cfg, mode, err := loadConfig(opts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPort, cfg.Serial.Port)
			assert.Equal(t, tt.wantMode, mode)
		})
	}
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	t.Parallel()

	opts, err := parseFlags([]string{"-debug", "-framing", "hdlc", "-metrics", ":9100", "-log-file", "/tmp/x.log"})
	require.NoError(t, err)
	cfg, _, err := loadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, config.FramingHDLC, cfg.Framing)
	assert.Equal(t, ":9100", cfg.MetricsAddress)
	assert.Equal(t, "/tmp/x.log", cfg.Log.File)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		{"-mode", "both"},
		{"-framing", "slip"},
		{"-config", "/nonexistent/comlink.toml"},
	} {
		opts, err := parseFlags(args)
		require.NoError(t, err)
		_, _, err = loadConfig(opts)
		require.Error(t, err, args)
	}

	_, err := parseFlags([]string{"-bogus"})
	require.Error(t, err)
}

func TestStation_SenderSendsLines(t *testing.T) {
	t.Parallel()

	m := mem.NewMedium()
	var out syncBuffer
	s := memStation(m, "hi\nbad\x07line\nyo\n", &out, testutil.NewScriptedCarrier())

	cfg := config.Default()
	require.NoError(t, s.run(context.Background(), &cfg, comlink.ModeSender))

	want := []byte{'h', 'i', comlink.EscapeByte, 'y', 'o', comlink.EscapeByte}
	assert.Equal(t, want, m.Bytes())
	assert.Contains(t, out.String(), "Message rejected")
}

func TestStation_TriesExpired(t *testing.T) {
	t.Parallel()

	m := mem.NewMedium()
	var out syncBuffer
	s := memStation(m, "x\n", &out, testutil.AlwaysBusyAfterTransmit())

	cfg := config.Default()
	require.NoError(t, s.run(context.Background(), &cfg, comlink.ModeSender))

	assert.Equal(t, "Error. Number of tries expired\n", out.String())
	raw := m.Bytes()
	assert.Equal(t, 11, bytes.Count(raw, []byte{comlink.JamByte}))
	assert.NotContains(t, raw, comlink.EscapeByte)
}

// failingTransport fails writes with the queued errors, then behaves
// like the wrapped transport.
type failingTransport struct {
	*mem.Transport
	errs []error
}

func (f *failingTransport) Write(data []byte) (int, error) {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return 0, err
	}
	return f.Transport.Write(data)
}

func TestStation_SendFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantOut  string
		wantWire []byte
		wantErr  bool
	}{
		{
			name:     "transient_continues",
			err:      comlink.NewTransportWriteError("write", "/dev/tnt1"),
			wantOut:  "Error. Message not sent\n",
			wantWire: []byte{'b', comlink.EscapeByte},
		},
		{
			name:    "port_gone_stops",
			err:     comlink.NewTransportClosedError("write", "/dev/tnt1"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := mem.NewMedium()
			var out syncBuffer
			s := memStation(m, "a\nb\n", &out, testutil.NewScriptedCarrier())
			s.open = func(context.Context, *config.Config, comlink.Mode) (comlink.Transport, error) {
				return &failingTransport{Transport: m.Open(comlink.ModeSender), errs: []error{tt.err}}, nil
			}

			cfg := config.Default()
			err := s.run(context.Background(), &cfg, comlink.ModeSender)
			if tt.wantErr {
				require.ErrorIs(t, err, comlink.ErrTransportClosed)
				assert.Empty(t, m.Bytes())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out.String())
			assert.Equal(t, tt.wantWire, m.Bytes())
		})
	}
}

func TestStation_ReceiverPrintsDecodedText(t *testing.T) {
	t.Parallel()

	m := mem.NewMedium()
	var out syncBuffer
	s := memStation(m, "", &out, testutil.NewScriptedCarrier())
	rx := m.Open(comlink.ModeReceiver)
	s.open = func(context.Context, *config.Config, comlink.Mode) (comlink.Transport, error) { return rx, nil }

	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.Default()
	done := make(chan error, 1)
	go func() { done <- s.run(ctx, &cfg, comlink.ModeReceiver) }()

	// Bytes arriving before the endpoint attaches are kept as backlog.
	m.Inject([]byte{'o', 'x', comlink.JamByte, 'k', comlink.EscapeByte})
	require.Eventually(t, func() bool { return out.String() == "ok\n" }, time.Second, 5*time.Millisecond)

	// each message ends its own line
	m.Inject([]byte{'h', 'i'})
	m.Inject([]byte{comlink.EscapeByte})
	assert.Equal(t, "ok\nhi\n", out.String())

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("receiver did not stop")
	}
}

func TestStation_HDLCFraming(t *testing.T) {
	t.Parallel()

	m := mem.NewMedium()
	var out syncBuffer
	s := memStation(m, "Frame me, Elena\n", &out, testutil.NewScriptedCarrier())

	cfg := config.Default()
	cfg.Framing = config.FramingHDLC
	require.NoError(t, s.run(context.Background(), &cfg, comlink.ModeSender))

	dec := hdlc.NewDecoder('0')
	assert.Equal(t, "Frame me, Elena", string(dec.Feed(m.Bytes())))
}
