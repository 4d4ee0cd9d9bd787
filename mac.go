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
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-comlink/internal/syncutil"
)

// MACState is a state of the per-symbol medium access state machine.
type MACState int32

const (
	StateIdle MACState = iota
	StateWaitFree
	StateTransmitted
	StateCheckCollision
	StateBackoff
	StateDelivered
	StateAborted
)

func (s MACState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitFree:
		return "wait-free"
	case StateTransmitted:
		return "transmitted"
	case StateCheckCollision:
		return "check-collision"
	case StateBackoff:
		return "backoff"
	case StateDelivered:
		return "delivered"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SendReport summarizes one Submit call.
type SendReport struct {
	Symbols    int // Symbols in the message
	Delivered  int // Symbols that survived their collision window
	Collisions int
	Duration   time.Duration
}

// MACOption configures a MAC.
type MACOption func(*MAC) error

// WithClock replaces the time source used for all sleeps.
func WithClock(clock Clock) MACOption {
	return func(m *MAC) error {
		if clock == nil {
			return fmt.Errorf("%w: nil clock", ErrInvalidParameter)
		}
		m.clock = clock
		return nil
	}
}

// WithCarrier replaces the channel busy signal.
func WithCarrier(carrier Carrier) MACOption {
	return func(m *MAC) error {
		if carrier == nil {
			return fmt.Errorf("%w: nil carrier", ErrInvalidParameter)
		}
		m.carrier = carrier
		return nil
	}
}

// WithRand sets the generator used for backoff slot sampling.
func WithRand(rng *rand.Rand) MACOption {
	return func(m *MAC) error {
		if rng == nil {
			return fmt.Errorf("%w: nil rand", ErrInvalidParameter)
		}
		m.rng = rng
		return nil
	}
}

// WithEventHandler registers a callback for the debug event stream.
// Handlers accumulate and run in registration order on the sending
// goroutine. They must not block.
func WithEventHandler(fn func(Event)) MACOption {
	return func(m *MAC) error {
		if fn == nil {
			return fmt.Errorf("%w: nil event handler", ErrInvalidParameter)
		}
		m.onEvent = append(m.onEvent, fn)
		return nil
	}
}

// WithTraceLabel names the transport and port in wire traces attached to errors.
func WithTraceLabel(transport, port string) MACOption {
	return func(m *MAC) error {
		m.trace = NewTraceBuffer(transport, port, 0)
		return nil
	}
}

// MAC is the medium access controller. It transmits a message one byte at a
// time, detecting collisions by re-sampling the carrier after each byte and
// recovering with a jam byte plus randomized exponential backoff.
type MAC struct {
	w        io.Writer
	clock    Clock
	carrier  Carrier
	rng      *rand.Rand
	onEvent  []func(Event)
	trace    *TraceBuffer
	cfg      Config
	slotTime time.Duration
	mu       syncutil.Mutex
	state    atomic.Int32
	tries    atomic.Int32
}

// NewMAC creates a controller writing raw bytes to w. A nil cfg uses
// DefaultConfig. The slot time is derived from cfg once, here.
func NewMAC(w io.Writer, cfg *Config, opts ...MACOption) (*MAC, error) {
	if w == nil {
		return nil, fmt.Errorf("%w: nil writer", ErrInvalidParameter)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &MAC{
		w:        w,
		cfg:      *cfg,
		slotTime: cfg.SlotTime(),
		clock:    SystemClock(),
		rng:      newRand(),
		trace:    NewTraceBuffer("mac", "", 0),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if m.carrier == nil {
		m.carrier = NewSecondParityCarrier(m.clock)
	}
	return m, nil
}

// SlotTime returns the backoff slot duration computed at construction.
func (m *MAC) SlotTime() time.Duration {
	return m.slotTime
}

// State returns the current state of the symbol state machine.
func (m *MAC) State() MACState {
	return MACState(m.state.Load())
}

// Tries returns the collision count for the symbol in flight.
func (m *MAC) Tries() int {
	return int(m.tries.Load())
}

// Submit transmits msg symbol by symbol and then the escape byte. It blocks
// for the whole transmission, including busy waits and backoff sleeps.
//
// When a symbol exhausts its retry budget the message is abandoned without
// the escape byte and a *SendError wrapping ErrTriesExpired is returned.
// Symbols already delivered are not retracted. The returned report is
// always non-nil.
func (m *MAC) Submit(ctx context.Context, msg []byte) (*SendReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.clock.Now()
	report := &SendReport{Symbols: len(msg)}
	m.trace.Clear()

	for i, sym := range msg {
		if err := m.transmitSymbol(ctx, i, sym, report); err != nil {
			report.Duration = m.clock.Now().Sub(start)
			Debugf("MAC: message aborted at symbol %d after %d collisions: %v", i, report.Collisions, err)
			return report, m.trace.WrapError(err)
		}
	}

	if err := m.writeByte(EscapeByte, "escape"); err != nil {
		m.setState(StateAborted)
		report.Duration = m.clock.Now().Sub(start)
		return report, m.trace.WrapError(err)
	}
	m.emit(Event{Kind: EventEndOfMessage, Index: len(msg)})
	m.setState(StateIdle)

	report.Duration = m.clock.Now().Sub(start)
	Debugf("MAC: sent %d symbols with %d collisions in %v", report.Delivered, report.Collisions, report.Duration)
	return report, nil
}

// transmitSymbol drives the state machine for one symbol until it is
// delivered or aborted.
func (m *MAC) transmitSymbol(ctx context.Context, index int, sym byte, report *SendReport) error {
	m.tries.Store(0)
	m.setState(StateWaitFree)

	for {
		if err := ctx.Err(); err != nil {
			m.setState(StateAborted)
			return err
		}
		next, err := m.step(ctx, index, sym, report)
		if err != nil {
			m.setState(StateAborted)
			return err
		}
		m.setState(next)
		if next == StateDelivered {
			return nil
		}
	}
}

// step performs the action of the current state and returns the next one.
func (m *MAC) step(ctx context.Context, index int, sym byte, report *SendReport) (MACState, error) {
	switch state := m.State(); state {
	case StateWaitFree:
		if m.carrier.Busy() {
			m.emit(Event{Kind: EventChannelBusy, Index: index, Symbol: sym})
			return StateWaitFree, m.clock.Sleep(ctx, m.cfg.BusyPollInterval)
		}
		if err := m.writeByte(sym, "symbol"); err != nil {
			return StateAborted, err
		}
		m.emit(Event{Kind: EventTransmitted, Index: index, Symbol: sym, Tries: m.Tries()})
		return StateTransmitted, nil

	case StateTransmitted:
		return StateCheckCollision, m.clock.Sleep(ctx, m.cfg.CollisionWindow)

	case StateCheckCollision:
		if !m.carrier.Busy() {
			report.Delivered++
			m.emit(Event{Kind: EventDelivered, Index: index, Symbol: sym, Tries: m.Tries()})
			return StateDelivered, nil
		}
		if err := m.writeByte(JamByte, "jam"); err != nil {
			return StateAborted, err
		}
		report.Collisions++
		tries := int(m.tries.Add(1))
		m.emit(Event{Kind: EventCollision, Index: index, Symbol: sym, Tries: tries})
		if tries > m.cfg.MaxTries {
			m.emit(Event{Kind: EventAborted, Index: index, Symbol: sym, Tries: tries})
			return StateAborted, &SendError{Err: ErrTriesExpired, Index: index, Tries: tries, Symbol: sym}
		}
		return StateBackoff, nil

	case StateBackoff:
		tries := m.Tries()
		slots := BackoffSlots(m.rng, tries, m.cfg.MaxTries)
		delay := BackoffDelay(slots, m.slotTime)
		m.emit(Event{Kind: EventBackoff, Index: index, Symbol: sym, Tries: tries, Slots: slots, Delay: delay})
		return StateWaitFree, m.clock.Sleep(ctx, delay)

	default:
		return StateAborted, fmt.Errorf("%w: MAC cannot step from state %v", ErrInvalidParameter, state)
	}
}

func (m *MAC) writeByte(b byte, note string) error {
	n, err := m.w.Write([]byte{b})
	if err != nil {
		return fmt.Errorf("MAC %s write failed: %w", note, err)
	}
	if n != 1 {
		return NewTransportWriteError("MAC "+note, "")
	}
	m.trace.RecordTX([]byte{b}, note)
	return nil
}

func (m *MAC) setState(s MACState) {
	m.state.Store(int32(s))
}

func (m *MAC) emit(ev Event) {
	for _, fn := range m.onEvent {
		fn(ev)
	}
}
