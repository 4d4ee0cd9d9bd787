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
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"testing"
	"time"

	testutil "github.com/ZaparooProject/go-comlink/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLineDown = errors.New("line down")

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errLineDown }

type shortWriter struct{}

func (shortWriter) Write([]byte) (int, error) { return 0, nil }

type macHarness struct {
	mac    *MAC
	wire   *bytes.Buffer
	clock  *testutil.FakeClock
	events []Event
}

func newMACHarness(t *testing.T, cfg *Config, carrier Carrier) *macHarness {
	t.Helper()
	h := &macHarness{
		wire:  &bytes.Buffer{},
		clock: testutil.NewFakeClock(time.Date(2024, 1, 1, 12, 0, 1, 0, time.UTC)),
	}
	mac, err := NewMAC(h.wire, cfg,
		WithClock(h.clock),
		WithCarrier(carrier),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithEventHandler(func(ev Event) { h.events = append(h.events, ev) }),
	)
	require.NoError(t, err)
	h.mac = mac
	return h
}

func (h *macHarness) count(kind EventKind) int {
	n := 0
	for _, ev := range h.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func TestMAC_SendsSymbolsThenEscape(t *testing.T) {
	t.Parallel()

	h := newMACHarness(t, nil, testutil.NewScriptedCarrier())

	report, err := h.mac.Submit(context.Background(), []byte("hi"))
	require.NoError(t, err)

	assert.Equal(t, []byte{'h', 'i', EscapeByte}, h.wire.Bytes())
	assert.Equal(t, &SendReport{Symbols: 2, Delivered: 2, Duration: 100 * time.Millisecond}, report)
	assert.Equal(t, []time.Duration{DefaultCollisionWindow, DefaultCollisionWindow}, h.clock.Sleeps())
	assert.Equal(t, StateIdle, h.mac.State())
	assert.Equal(t, 2, h.count(EventDelivered))
	assert.Equal(t, 1, h.count(EventEndOfMessage))
}

func TestMAC_EventHandlersAccumulate(t *testing.T) {
	t.Parallel()

	var first, second []EventKind
	mac, err := NewMAC(&bytes.Buffer{}, nil,
		WithClock(testutil.NewFakeClock(time.Time{})),
		WithCarrier(testutil.NewScriptedCarrier()),
		WithEventHandler(func(ev Event) { first = append(first, ev.Kind) }),
		WithEventHandler(func(ev Event) { second = append(second, ev.Kind) }),
	)
	require.NoError(t, err)

	_, err = mac.Submit(context.Background(), []byte("a"))
	require.NoError(t, err)

	assert.Equal(t, []EventKind{EventTransmitted, EventDelivered, EventEndOfMessage}, first)
	assert.Equal(t, first, second)
}

func TestMAC_EmptyMessageSendsEscape(t *testing.T) {
	t.Parallel()

	h := newMACHarness(t, nil, testutil.NewScriptedCarrier())

	report, err := h.mac.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{EscapeByte}, h.wire.Bytes())
	assert.Zero(t, report.Symbols)
	assert.Empty(t, h.clock.Sleeps())
}

func TestMAC_WaitsWhileBusy(t *testing.T) {
	t.Parallel()

	carrier := testutil.NewScriptedCarrier(true, true, false, false)
	h := newMACHarness(t, nil, carrier)

	_, err := h.mac.Submit(context.Background(), []byte("a"))
	require.NoError(t, err)

	assert.Equal(t, []byte{'a', EscapeByte}, h.wire.Bytes())
	assert.Equal(t, []time.Duration{time.Second, time.Second, DefaultCollisionWindow}, h.clock.Sleeps())
	assert.Equal(t, 2, h.count(EventChannelBusy))
	assert.Equal(t, 4, carrier.Calls())
}

func TestMAC_CollisionThenDelivered(t *testing.T) {
	t.Parallel()

	// free, transmit, busy in window, backoff, free, transmit, free in window
	h := newMACHarness(t, nil, testutil.NewScriptedCarrier(false, true, false, false))

	report, err := h.mac.Submit(context.Background(), []byte("a"))
	require.NoError(t, err)

	assert.Equal(t, []byte{'a', JamByte, 'a', EscapeByte}, h.wire.Bytes())
	assert.Equal(t, 1, report.Collisions)
	assert.Equal(t, 1, report.Delivered)
	require.Equal(t, 1, h.count(EventBackoff))

	for _, ev := range h.events {
		if ev.Kind == EventBackoff {
			assert.Equal(t, 1, ev.Tries)
			assert.LessOrEqual(t, ev.Slots, 2)
			assert.Equal(t, time.Duration(ev.Slots)*94*time.Millisecond, ev.Delay)
		}
	}
}

func TestMAC_AbortsAfterMaxTries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		maxTries int
	}{
		{name: "default", maxTries: DefaultMaxTries},
		{name: "zero", maxTries: 0},
		{name: "three", maxTries: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			cfg.MaxTries = tt.maxTries
			h := newMACHarness(t, cfg, testutil.AlwaysBusyAfterTransmit())

			report, err := h.mac.Submit(context.Background(), []byte("xy"))
			require.ErrorIs(t, err, ErrTriesExpired)

			var sendErr *SendError
			require.ErrorAs(t, err, &sendErr)
			assert.Equal(t, 0, sendErr.Index)
			assert.Equal(t, byte('x'), sendErr.Symbol)
			assert.Equal(t, tt.maxTries+1, sendErr.Tries)

			wire := h.wire.Bytes()
			assert.Equal(t, tt.maxTries+1, bytes.Count(wire, []byte{JamByte}))
			assert.Equal(t, tt.maxTries+1, bytes.Count(wire, []byte{'x'}))
			assert.NotContains(t, wire, EscapeByte)
			assert.NotContains(t, wire, byte('y'))

			assert.Equal(t, tt.maxTries+1, report.Collisions)
			assert.Zero(t, report.Delivered)
			assert.Equal(t, tt.maxTries, h.count(EventBackoff))
			assert.Equal(t, 1, h.count(EventAborted))
			assert.Equal(t, StateAborted, h.mac.State())

			for _, ev := range h.events {
				if ev.Kind == EventBackoff {
					assert.LessOrEqual(t, ev.Slots, 1<<min(ev.Tries, tt.maxTries))
				}
			}

			te := GetTrace(err)
			require.NotNil(t, te)
			assert.NotEmpty(t, te.Trace)
		})
	}
}

func TestMAC_ContextCancelled(t *testing.T) {
	t.Parallel()

	h := newMACHarness(t, nil, testutil.NewScriptedCarrier())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.mac.Submit(ctx, []byte("a"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.wire.Bytes())
	assert.Equal(t, StateAborted, h.mac.State())
}

func TestMAC_CancelDuringBackoff(t *testing.T) {
	t.Parallel()

	h := newMACHarness(t, nil, testutil.AlwaysBusyAfterTransmit())
	ctx, cancel := context.WithCancel(context.Background())
	h.clock.OnSleep(func(time.Duration) {
		if h.count(EventCollision) >= 2 {
			cancel()
		}
	})

	_, err := h.mac.Submit(ctx, []byte("a"))
	require.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, h.wire.Bytes(), EscapeByte)
}

func TestMAC_WriteFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		writer  io.Writer
		wantErr error
	}{
		{name: "error", writer: failingWriter{}, wantErr: errLineDown},
		{name: "short", writer: shortWriter{}, wantErr: ErrTransportWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mac, err := NewMAC(tt.writer, nil,
				WithClock(testutil.NewFakeClock(time.Time{})),
				WithCarrier(testutil.NewScriptedCarrier()),
			)
			require.NoError(t, err)

			_, err = mac.Submit(context.Background(), []byte("a"))
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, StateAborted, mac.State())
		})
	}
}

func TestNewMAC_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewMAC(nil, nil)
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewMAC(&bytes.Buffer{}, &Config{})
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewMAC(&bytes.Buffer{}, nil, WithClock(nil))
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewMAC(&bytes.Buffer{}, nil, WithCarrier(nil))
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewMAC(&bytes.Buffer{}, nil, WithRand(nil))
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewMAC(&bytes.Buffer{}, nil, WithEventHandler(nil))
	require.ErrorIs(t, err, ErrInvalidParameter)

	mac, err := NewMAC(&bytes.Buffer{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 94*time.Millisecond, mac.SlotTime())
	assert.Equal(t, StateIdle, mac.State())
	assert.Zero(t, mac.Tries())
}

func TestMACState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "wait-free", StateWaitFree.String())
	assert.Equal(t, "check-collision", StateCheckCollision.String())
	assert.Equal(t, "state(42)", MACState(42).String())
}
