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

// Package hdlc implements the flag-delimited alternative to the CSMA/CD byte
// protocol: fixed-size addressed frames, byte stuffing for in-band flag and
// escape characters, and a trailing check byte.
//
// Each frame on the wire is
//
//	Flag | dst | src | data[7] | check
//
// with everything after the flag stuffed. The last frame of a message pads
// its data field with 0x00.
package hdlc

import (
	"bytes"
	"fmt"

	comlink "github.com/ZaparooProject/go-comlink"
	"github.com/ZaparooProject/go-comlink/internal/frame"
)

// Config holds the single-character addresses of the two stations.
type Config struct {
	Source      byte
	Destination byte
}

// DefaultConfig addresses frames from station '1' to station '0', the last
// characters of the messenger's default sender and receiver port names.
func DefaultConfig() Config {
	return Config{Source: '1', Destination: '0'}
}

// Encoder splits messages into stuffed frames.
type Encoder struct {
	cfg Config
}

var _ comlink.FrameEncoder = (*Encoder)(nil)

// NewEncoder creates an encoder sending from cfg.Source to cfg.Destination.
func NewEncoder(cfg Config) *Encoder {
	return &Encoder{cfg: cfg}
}

// Encode returns the wire bytes for msg: one frame per started block of
// frame.DataSize bytes. An empty message produces no frames. The padding
// byte is reserved: receivers strip it, so msg must not contain it.
func (e *Encoder) Encode(msg []byte) ([]byte, error) {
	if i := bytes.IndexByte(msg, frame.Placeholder); i >= 0 {
		return nil, fmt.Errorf("%w: padding byte 0x%02X at offset %d", comlink.ErrReservedByte, frame.Placeholder, i)
	}

	frames := (len(msg) + frame.DataSize - 1) / frame.DataSize
	out := make([]byte, 0, frames*(1+2*frame.UnstuffedSize))

	body := make([]byte, 0, frame.UnstuffedSize)
	for start := 0; start < len(msg); start += frame.DataSize {
		chunk := msg[start:min(start+frame.DataSize, len(msg))]

		body = body[:0]
		body = append(body, e.cfg.Destination, e.cfg.Source)
		body = append(body, chunk...)
		for len(body) < frame.AddressSize+frame.DataSize {
			body = append(body, frame.Placeholder)
		}
		body = append(body, frame.CheckByte(body))

		out = append(out, frame.Flag)
		out = Stuff(out, body)
	}
	return out, nil
}

// Stuff appends body to dst with flag and escape characters substituted.
func Stuff(dst, body []byte) []byte {
	for _, b := range body {
		switch b {
		case frame.Flag:
			dst = append(dst, frame.Escape, frame.FlagReplacement)
		case frame.Escape:
			dst = append(dst, frame.Escape, frame.EscapeReplacement)
		default:
			dst = append(dst, b)
		}
	}
	return dst
}

// Unstuff reverses Stuff. It fails on an escape followed by anything but a
// replacement character, or a dangling escape at the end.
func Unstuff(stuffed []byte) ([]byte, error) {
	out := make([]byte, 0, len(stuffed))
	for i := 0; i < len(stuffed); i++ {
		b := stuffed[i]
		if b != frame.Escape {
			out = append(out, b)
			continue
		}
		if i+1 >= len(stuffed) {
			return nil, comlink.ErrFrameCorrupted
		}
		i++
		switch stuffed[i] {
		case frame.FlagReplacement:
			out = append(out, frame.Flag)
		case frame.EscapeReplacement:
			out = append(out, frame.Escape)
		default:
			return nil, comlink.ErrFrameCorrupted
		}
	}
	return out, nil
}

// payload strips the addresses, check byte and trailing padding from a
// validated frame body.
func payload(body []byte) []byte {
	data := body[frame.AddressSize : frame.AddressSize+frame.DataSize]
	return bytes.TrimRight(data, string([]byte{frame.Placeholder}))
}
