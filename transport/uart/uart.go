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

// Package uart runs the link over a serial port. A port is opened either
// write-only (sender) or read-only (receiver); the two stations of a link
// each hold one end of a null-modem pair.
package uart

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	comlink "github.com/ZaparooProject/go-comlink"
	"github.com/ZaparooProject/go-comlink/internal/syncutil"
	"go.bug.st/serial"
)

const readBufferSize = 256

// port is the part of serial.Port the transport uses.
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

type options struct {
	baudRate    int
	readTimeout time.Duration
}

// Option configures Open.
type Option func(*options)

// WithBaudRate overrides the default 115200 baud.
func WithBaudRate(rate int) Option {
	return func(o *options) {
		if rate > 0 {
			o.baudRate = rate
		}
	}
}

// WithReadTimeout sets how long a single read may block. It bounds how
// quickly Close can stop the read loop.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readTimeout = d
		}
	}
}

// defaultReadTimeout returns the platform read timeout. Windows drivers need
// a longer one to deliver bytes reliably.
func defaultReadTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// Transport implements comlink.Transport over a serial port.
type Transport struct {
	port      port
	handler   func([]byte)
	done      chan struct{}
	portName  string
	backlog   []byte
	mode      comlink.Mode
	mu        syncutil.Mutex
	// deliverMu orders backlog replay before live chunks and keeps the
	// handler single-threaded. Taken before mu.
	deliverMu syncutil.Mutex
	writeMu   syncutil.Mutex
	wg        sync.WaitGroup
	closed    atomic.Bool
}

var _ comlink.Transport = (*Transport)(nil)

// Open opens portName at 8E1 in the given mode. Receivers start reading
// immediately; bytes that arrive before a handler is set are kept.
func Open(portName string, mode comlink.Mode, opts ...Option) (*Transport, error) {
	o := options{
		baudRate:    comlink.DefaultBaudRate,
		readTimeout: defaultReadTimeout(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	p, err := serial.Open(portName, &serial.Mode{
		BaudRate: o.baudRate,
		DataBits: comlink.DefaultDataBits,
		Parity:   serial.EvenParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, openError(portName, err)
	}

	if err := p.SetReadTimeout(o.readTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	comlink.Debugf("UART %s opened as %v at %d baud", portName, mode, o.baudRate)
	return newTransport(p, portName, mode), nil
}

func newTransport(p port, name string, mode comlink.Mode) *Transport {
	t := &Transport{
		port:     p,
		portName: name,
		mode:     mode,
		done:     make(chan struct{}),
	}
	if mode == comlink.ModeReceiver {
		t.wg.Add(1)
		go t.readLoop()
	}
	return t
}

// Write puts data on the line and waits until it has left the UART.
func (t *Transport) Write(data []byte) (int, error) {
	if t.closed.Load() {
		return 0, comlink.NewTransportClosedError("write", t.portName)
	}
	if t.mode != comlink.ModeSender {
		return 0, fmt.Errorf("UART write on %s: %w", t.portName, comlink.ErrWrongMode)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	n, err := t.port.Write(data)
	if err != nil {
		return n, &comlink.TransportError{
			Op:        "write",
			Port:      t.portName,
			Err:       fmt.Errorf("%w: %w", comlink.ErrTransportWrite, err),
			Type:      comlink.ErrorTypeTransient,
			Retryable: true,
		}
	}
	if err := t.drainWithRetry("write"); err != nil {
		return n, err
	}
	return n, nil
}

// SetDataHandler registers the receive callback. Any backlog is handed to
// the new handler before the read loop may deliver newer bytes.
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

func (t *Transport) readLoop() {
	defer t.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-t.done:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			t.deliver(append([]byte(nil), buf[:n]...))
		}
		if err == nil {
			continue
		}
		if t.closed.Load() {
			return
		}
		if isInterruptedSystemCall(err) {
			continue
		}
		comlink.Debugf("UART %s read loop stopped: %v", t.portName, err)
		return
	}
}

func (t *Transport) deliver(chunk []byte) {
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

// Close stops the read loop and closes the port.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.done)

	var err error
	if t.port != nil {
		err = t.port.Close()
	}
	t.wg.Wait()
	if err != nil && !isPortClosed(err) {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// openError classifies an open failure. A busy port is worth retrying; a
// missing or misconfigured one is not.
func openError(portName string, err error) *comlink.TransportError {
	te := &comlink.TransportError{
		Op:   "open",
		Port: portName,
		Err:  fmt.Errorf("failed to open UART port: %w", err),
		Type: comlink.ErrorTypePermanent,
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortBusy {
		te.Type = comlink.ErrorTypeTransient
		te.Retryable = true
	}
	return te
}

func isPortClosed(err error) bool {
	var portErr *serial.PortError
	return errors.As(err, &portErr) && portErr.Code() == serial.PortClosed
}

// Mode returns the direction the port was opened in.
func (t *Transport) Mode() comlink.Mode {
	return t.mode
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	return t.port != nil && !t.closed.Load()
}

// Type returns the transport type
func (*Transport) Type() comlink.TransportType {
	return comlink.TransportUART
}

func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry waits for the output buffer to empty, retrying EINTR with
// a short exponential delay.
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt))
			continue
		}

		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}
