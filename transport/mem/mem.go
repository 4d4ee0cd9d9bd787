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

// Package mem provides an in-process serial medium. Transports opened on
// the same Medium see each other's writes, which makes it a stand-in for a
// pair of null-modem-linked ports in tests and demos.
package mem

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	comlink "github.com/ZaparooProject/go-comlink"
	"github.com/ZaparooProject/go-comlink/internal/syncutil"
)

// Option configures a Medium.
type Option func(*Medium)

// WithFragmentation splits every delivery into random-sized chunks, the way
// a USB-serial bridge hands bytes to the reader. A zero seed picks one.
func WithFragmentation(seed uint64) Option {
	return func(m *Medium) {
		if seed == 0 {
			seed = rand.Uint64()
		}
		m.rng = rand.New(rand.NewPCG(seed, seed^0x5DEECE66D)) //nolint:gosec // delivery jitter, not crypto
	}
}

// Medium is a shared byte line. Every byte written by a sender transport is
// recorded and delivered, in order, to every open receiver transport.
type Medium struct {
	rng       *rand.Rand
	captured  []byte
	receivers []*Transport
	mu        syncutil.Mutex
}

// NewMedium creates an empty medium.
func NewMedium(opts ...Option) *Medium {
	m := &Medium{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open attaches a transport in the given mode.
func (m *Medium) Open(mode comlink.Mode) *Transport {
	t := &Transport{medium: m, mode: mode}
	if mode == comlink.ModeReceiver {
		m.mu.Lock()
		m.receivers = append(m.receivers, t)
		m.mu.Unlock()
	}
	return t
}

// Bytes returns a copy of everything written to the medium so far.
func (m *Medium) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.captured...)
}

// Inject puts raw bytes on the medium as if a third station had sent them.
func (m *Medium) Inject(data []byte) {
	m.deliver(data)
}

func (m *Medium) deliver(data []byte) {
	m.mu.Lock()
	m.captured = append(m.captured, data...)
	receivers := append([]*Transport(nil), m.receivers...)
	chunks := m.split(data)
	m.mu.Unlock()

	for _, r := range receivers {
		for _, chunk := range chunks {
			r.receive(chunk)
		}
	}
}

// split must be called with m.mu held.
func (m *Medium) split(data []byte) [][]byte {
	if m.rng == nil || len(data) <= 1 {
		return [][]byte{append([]byte(nil), data...)}
	}
	var chunks [][]byte
	for len(data) > 0 {
		n := 1 + m.rng.IntN(len(data))
		chunks = append(chunks, append([]byte(nil), data[:n]...))
		data = data[n:]
	}
	return chunks
}

func (m *Medium) detach(t *Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.receivers {
		if r == t {
			m.receivers = append(m.receivers[:i], m.receivers[i+1:]...)
			return
		}
	}
}

// Transport is one station's view of a Medium. It implements comlink.Transport.
type Transport struct {
	medium    *Medium
	handler   func([]byte)
	backlog   []byte
	mode      comlink.Mode
	mu        syncutil.Mutex
	// deliverMu serializes handler calls, backlog replay included.
	// Taken before mu.
	deliverMu syncutil.Mutex
	closed    atomic.Bool
}

var _ comlink.Transport = (*Transport)(nil)

// Write puts data on the medium. Only sender transports may write.
func (t *Transport) Write(data []byte) (int, error) {
	if t.closed.Load() {
		return 0, comlink.NewTransportClosedError("mem write", "")
	}
	if t.mode != comlink.ModeSender {
		return 0, fmt.Errorf("mem write: %w", comlink.ErrWrongMode)
	}
	t.medium.deliver(data)
	return len(data), nil
}

// SetDataHandler registers the receive callback. Bytes that arrived while
// no handler was set are delivered to the new handler first.
func (t *Transport) SetDataHandler(fn func(data []byte)) {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	t.mu.Lock()
	t.handler = fn
	backlog := t.backlog
	if fn != nil {
		t.backlog = nil
	}
	t.mu.Unlock()

	if fn != nil && len(backlog) > 0 {
		fn(backlog)
	}
}

func (t *Transport) receive(chunk []byte) {
	if t.closed.Load() {
		return
	}
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	t.mu.Lock()
	fn := t.handler
	if fn == nil {
		t.backlog = append(t.backlog, chunk...)
	}
	t.mu.Unlock()

	if fn != nil {
		fn(chunk)
	}
}

// Close detaches the transport from the medium.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	if t.mode == comlink.ModeReceiver {
		t.medium.detach(t)
	}
	return nil
}

// Mode returns the direction the transport was opened in.
func (t *Transport) Mode() comlink.Mode {
	return t.mode
}

// IsConnected returns true until Close is called.
func (t *Transport) IsConnected() bool {
	return !t.closed.Load()
}

// Type returns the transport type
func (*Transport) Type() comlink.TransportType {
	return comlink.TransportMemory
}
