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

package testing

import (
	"io"
	"math/rand/v2"
	"sync"
	"time"
)

// JitterConfig configures the behavior of JitteryReader.
type JitterConfig struct {
	MaxLatencyMs     int
	FragmentMinBytes int
	Seed             uint64
}

// DefaultJitterConfig fragments reads down to single bytes without latency.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{FragmentMinBytes: 1}
}

// JitteryReader wraps an io.Reader to behave like a USB-UART bridge that
// hands bytes over in unpredictable fragments. Data read from the backend
// is buffered, so fragmentation never loses bytes.
type JitteryReader struct {
	backend io.Reader
	rng     *rand.Rand
	readBuf []byte
	config  JitterConfig
	mu      sync.Mutex
}

// NewJitteryReader wraps backend with jitter simulation.
func NewJitteryReader(backend io.Reader, config JitterConfig) *JitteryReader {
	var rng *rand.Rand
	if config.Seed != 0 {
		rng = rand.New(rand.NewPCG(config.Seed, config.Seed^0xDEADBEEF)) //nolint:gosec // Test code, not crypto
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // Test code, not crypto
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &JitteryReader{
		backend: backend,
		config:  config,
		rng:     rng,
	}
}

// Read returns between FragmentMinBytes and len(buf) buffered bytes. An
// empty backend read is passed through as (0, nil), like a serial read timeout.
func (j *JitteryReader) Read(buf []byte) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.config.MaxLatencyMs > 0 {
		if delay := time.Duration(j.rng.IntN(j.config.MaxLatencyMs+1)) * time.Millisecond; delay > 0 {
			time.Sleep(delay)
		}
	}

	if len(j.readBuf) == 0 {
		tmp := make([]byte, 1024)
		n, err := j.backend.Read(tmp)
		if n > 0 {
			j.readBuf = append(j.readBuf, tmp[:n]...)
		}
		if len(j.readBuf) == 0 {
			return 0, err //nolint:wrapcheck // Pass-through wrapper
		}
	}

	toReturn := min(len(j.readBuf), len(buf))
	if toReturn > j.config.FragmentMinBytes {
		toReturn = j.config.FragmentMinBytes + j.rng.IntN(toReturn-j.config.FragmentMinBytes+1)
	}

	copy(buf, j.readBuf[:toReturn])
	j.readBuf = j.readBuf[toReturn:]
	return toReturn, nil
}
