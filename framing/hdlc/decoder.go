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

package hdlc

import (
	comlink "github.com/ZaparooProject/go-comlink"
	"github.com/ZaparooProject/go-comlink/internal/frame"
	"github.com/ZaparooProject/go-comlink/internal/syncutil"
)

// Stats counts what a Decoder has seen since creation or the last Reset.
type Stats struct {
	Frames  int // Frames accepted and delivered
	Dropped int // Frames discarded for bad stuffing, size, or check byte
	Foreign int // Valid frames addressed to another station
}

// Decoder reassembles messages from a stuffed frame stream. Input may be
// split anywhere; a flag always abandons the frame in progress.
type Decoder struct {
	buf     []byte
	stats   Stats
	mu      syncutil.Mutex
	address byte
	inFrame bool
	escaped bool
}

var _ comlink.FrameDecoder = (*Decoder)(nil)

// NewDecoder creates a decoder accepting frames addressed to address.
func NewDecoder(address byte) *Decoder {
	return &Decoder{
		address: address,
		buf:     make([]byte, 0, frame.UnstuffedSize),
	}
}

// Feed consumes raw bytes and returns the payload of every frame completed
// during this call.
func (d *Decoder) Feed(raw []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []byte
	for _, b := range raw {
		if b == frame.Flag {
			if d.inFrame && len(d.buf) > 0 {
				d.drop("frame cut short by flag")
			}
			d.inFrame = true
			d.escaped = false
			d.buf = d.buf[:0]
			continue
		}
		if !d.inFrame {
			continue
		}

		if d.escaped {
			d.escaped = false
			switch b {
			case frame.FlagReplacement:
				d.buf = append(d.buf, frame.Flag)
			case frame.EscapeReplacement:
				d.buf = append(d.buf, frame.Escape)
			default:
				d.drop("invalid escape sequence")
				continue
			}
		} else if b == frame.Escape {
			d.escaped = true
			continue
		} else {
			d.buf = append(d.buf, b)
		}

		if len(d.buf) == frame.UnstuffedSize {
			out = append(out, d.complete()...)
		}
	}
	return out
}

func (d *Decoder) complete() []byte {
	d.inFrame = false
	if err := frame.ValidateUnstuffed(d.buf); err != nil {
		d.stats.Dropped++
		comlink.Debugf("hdlc: dropping frame: %v", err)
		return nil
	}
	if d.buf[0] != d.address {
		d.stats.Foreign++
		comlink.Debugf("hdlc: ignoring frame for station %q", d.buf[0])
		return nil
	}
	d.stats.Frames++
	return payload(d.buf)
}

func (d *Decoder) drop(reason string) {
	d.stats.Dropped++
	d.inFrame = false
	d.escaped = false
	d.buf = d.buf[:0]
	comlink.Debugf("hdlc: dropping frame: %s", reason)
}

// Stats returns the frame counters.
func (d *Decoder) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Reset abandons any partial frame and clears the counters.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = d.buf[:0]
	d.inFrame = false
	d.escaped = false
	d.stats = Stats{}
}
