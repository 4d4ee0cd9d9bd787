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
	"fmt"
	"sync/atomic"

	"github.com/ZaparooProject/go-comlink/internal/syncutil"
)

// EndpointOption configures an Endpoint.
type EndpointOption func(*Endpoint) error

// WithMACOptions passes options through to the sender's MAC. Event handlers
// given here run before the endpoint's own observers.
func WithMACOptions(opts ...MACOption) EndpointOption {
	return func(e *Endpoint) error {
		e.macOpts = append(e.macOpts, opts...)
		return nil
	}
}

// WithDecoder replaces the byte-recovery decoder on a receiving endpoint.
func WithDecoder(dec FrameDecoder) EndpointOption {
	return func(e *Endpoint) error {
		if dec == nil {
			return fmt.Errorf("%w: nil decoder", ErrInvalidParameter)
		}
		e.decoder = dec
		return nil
	}
}

// WithEncoder makes a sending endpoint write encoder output directly instead
// of going through the MAC.
func WithEncoder(enc FrameEncoder) EndpointOption {
	return func(e *Endpoint) error {
		if enc == nil {
			return fmt.Errorf("%w: nil encoder", ErrInvalidParameter)
		}
		e.encoder = enc
		return nil
	}
}

// WithMessageHandler registers the callback receiving decoded text. It is
// called once per receive batch that produced output.
func WithMessageHandler(fn func(text string)) EndpointOption {
	return func(e *Endpoint) error {
		e.onMessage = fn
		return nil
	}
}

// WithDebugHandler registers the callback receiving human-readable
// protocol events.
func WithDebugHandler(fn func(text string)) EndpointOption {
	return func(e *Endpoint) error {
		e.onDebug = fn
		return nil
	}
}

// WithEventObserver registers a callback receiving structured protocol events.
func WithEventObserver(fn func(Event)) EndpointOption {
	return func(e *Endpoint) error {
		e.onEvent = fn
		return nil
	}
}

// Endpoint binds the protocol to one side of the medium. A sender endpoint
// owns a MAC and accepts Send calls; a receiver endpoint feeds every batch
// of arriving bytes through its decoder. The caller owns no protocol state:
// it sends text and gets decoded text and debug events back via callbacks.
type Endpoint struct {
	transport Transport
	mac       *MAC
	encoder   FrameEncoder
	decoder   FrameDecoder
	onMessage func(text string)
	onDebug   func(text string)
	onEvent   func(Event)
	macOpts   []MACOption
	sendMu    syncutil.Mutex
	closed    atomic.Bool
}

// NewEndpoint binds an endpoint to an open transport. The endpoint's role
// follows the transport's mode. A nil cfg uses DefaultConfig.
func NewEndpoint(t Transport, cfg *Config, opts ...EndpointOption) (*Endpoint, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	if !t.IsConnected() {
		return nil, &TransportError{Op: "NewEndpoint", Err: ErrTransportNotReady, Type: ErrorTypePermanent}
	}

	e := &Endpoint{transport: t}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	switch t.Mode() {
	case ModeSender:
		if e.encoder == nil {
			macOpts := append([]MACOption{
				WithTraceLabel(string(t.Type()), ""),
			}, e.macOpts...)
			macOpts = append(macOpts, WithEventHandler(e.dispatch))
			mac, err := NewMAC(t, cfg, macOpts...)
			if err != nil {
				return nil, fmt.Errorf("failed to create MAC: %w", err)
			}
			e.mac = mac
		}
	case ModeReceiver:
		if e.decoder == nil {
			e.decoder = NewDecoder()
		}
		t.SetDataHandler(e.HandleBytes)
	default:
		return nil, fmt.Errorf("%w: unsupported transport mode %v", ErrInvalidParameter, t.Mode())
	}

	e.dispatch(Event{Kind: EventPortInitialized})
	return e, nil
}

// Mode returns the role of the endpoint.
func (e *Endpoint) Mode() Mode {
	return e.transport.Mode()
}

// MAC returns the sender's medium access controller, or nil on receivers
// and encoder-driven senders.
func (e *Endpoint) MAC() *MAC {
	return e.mac
}

// Send transmits text to the peer. It blocks until the message is on the
// wire or abandoned. Send on a receiver returns ErrWrongMode; text holding a
// jam or escape byte is rejected with ErrReservedByte. An empty text still
// emits the escape byte.
func (e *Endpoint) Send(ctx context.Context, text string) (*SendReport, error) {
	if e.closed.Load() {
		return nil, NewTransportClosedError("Send", "")
	}
	if e.transport.Mode() != ModeSender {
		return nil, fmt.Errorf("send: %w (%v)", ErrWrongMode, e.transport.Mode())
	}

	msg := []byte(text)

	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	if e.encoder != nil {
		return e.sendEncoded(msg)
	}

	for i, b := range msg {
		if IsControlByte(b) {
			return nil, fmt.Errorf("%w: 0x%02X at offset %d", ErrReservedByte, b, i)
		}
	}
	return e.mac.Submit(ctx, msg)
}

func (e *Endpoint) sendEncoded(msg []byte) (*SendReport, error) {
	raw, err := e.encoder.Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	n, err := e.transport.Write(raw)
	if err != nil {
		return nil, fmt.Errorf("write encoded message: %w", err)
	}
	if n != len(raw) {
		return nil, NewTransportWriteError("Send", "")
	}
	return &SendReport{Symbols: len(msg), Delivered: len(msg)}, nil
}

// HandleBytes feeds a batch of raw bytes to the decoder and reports the
// decoded text, then an EventReceived for the batch. Transports call it on
// every receive; it never blocks.
func (e *Endpoint) HandleBytes(raw []byte) {
	if e.closed.Load() || e.decoder == nil {
		return
	}

	out := e.decoder.Feed(raw)
	if len(out) > 0 && e.onMessage != nil {
		e.onMessage(string(out))
	}
	e.dispatch(Event{
		Kind:    EventReceived,
		Bytes:   len(raw),
		Decoded: len(out),
		Escapes: bytes.Count(raw, []byte{EscapeByte}),
	})
}

// Close releases the transport. It is safe to call more than once.
func (e *Endpoint) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if e.transport.Mode() == ModeReceiver {
		e.transport.SetDataHandler(nil)
	}
	if err := e.transport.Close(); err != nil {
		return fmt.Errorf("close endpoint: %w", err)
	}
	return nil
}

func (e *Endpoint) dispatch(ev Event) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
	if e.onDebug != nil {
		e.onDebug(ev.String())
	}
}
