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

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	comlink "github.com/ZaparooProject/go-comlink"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Observe(t *testing.T) {
	t.Parallel()

	c := New(comlink.ModeSender)
	events := []comlink.Event{
		{Kind: comlink.EventPortInitialized},
		{Kind: comlink.EventChannelBusy},
		{Kind: comlink.EventTransmitted, Symbol: 'h'},
		{Kind: comlink.EventCollision, Symbol: 'h', Tries: 1},
		{Kind: comlink.EventBackoff, Slots: 2},
		{Kind: comlink.EventTransmitted, Symbol: 'h'},
		{Kind: comlink.EventDelivered, Symbol: 'h'},
		{Kind: comlink.EventEndOfMessage},
		{Kind: comlink.EventReceived, Bytes: 5, Decoded: 3},
	}
	for _, ev := range events {
		c.Observe(ev)
	}

	assert.InDelta(t, 2, testutil.ToFloat64(c.transmitted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.delivered), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.collisions), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(c.aborts), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.busyWaits), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.messages), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(c.receivedRaw), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(c.decoded), 0)

	count, err := testutil.GatherAndCount(c.Registry(), "comlink_mac_backoff_slots")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCollector_Handler(t *testing.T) {
	t.Parallel()

	c := New(comlink.ModeReceiver)
	c.Observe(comlink.Event{Kind: comlink.EventReceived, Bytes: 4, Decoded: 2})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `comlink_decoder_received_bytes_total{mode="receiver"} 4`), body)
	assert.Contains(t, body, `comlink_decoder_decoded_bytes_total{mode="receiver"} 2`)
}
