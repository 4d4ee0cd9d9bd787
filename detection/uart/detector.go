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

// Package uart registers a detector for serial ports. Import it for its
// side effect:
//
//	import _ "github.com/ZaparooProject/go-comlink/detection/uart"
package uart

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	comlink "github.com/ZaparooProject/go-comlink"
	"github.com/ZaparooProject/go-comlink/detection"
	"github.com/ZaparooProject/go-comlink/transport/uart"
	"go.bug.st/serial/enumerator"
)

// detector implements the Detector interface for serial ports.
type detector struct{}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return string(comlink.TransportUART)
}

// serialPort represents a serial port with metadata
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Product      string
	SerialNumber string
	IsUSB        bool
	Enumerated   bool
}

// package-level hooks so tests can run without hardware
var (
	listPortsFn = listPorts
	globFn      = filepath.Glob
	probePortFn = probePort
)

// fallbackPatterns are globbed when the enumerator reports nothing. tnt*
// are the tty0tty null-modem pairs used to link two stations on one host.
var fallbackPatterns = []string{
	"/dev/tnt*",
	"/dev/ttyUSB*",
	"/dev/ttyACM*",
	"/dev/ttyS*",
	"/dev/ttyAMA*",
}

// Detect enumerates serial ports and filters them through opts.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := enumeratePorts()
	if err != nil {
		return nil, err
	}

	var devices []detection.DeviceInfo
	for i := range ports {
		select {
		case <-ctx.Done():
			return devices, nil
		default:
		}

		if device, ok := processPort(ctx, &ports[i], opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func enumeratePorts() ([]serialPort, error) {
	ports, err := listPortsFn()
	if err != nil {
		comlink.Debugf("serial enumerator failed, falling back to globbing: %v", err)
	}
	if len(ports) > 0 {
		return ports, nil
	}

	ports = globPorts()
	if len(ports) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return ports, nil
}

func listPorts() ([]serialPort, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]serialPort, 0, len(details))
	for _, d := range details {
		port := serialPort{
			Path:       d.Name,
			Name:       filepath.Base(d.Name),
			IsUSB:      d.IsUSB,
			Enumerated: true,
		}
		if d.IsUSB {
			port.VIDPID = detection.FormatVIDPID(d.VID, d.PID)
			port.Product = d.Product
			port.SerialNumber = d.SerialNumber
		}
		ports = append(ports, port)
	}
	return ports, nil
}

func globPorts() []serialPort {
	var ports []serialPort
	seen := make(map[string]bool)
	for _, pattern := range fallbackPatterns {
		matches, err := globFn(pattern)
		if err != nil {
			continue
		}
		for _, path := range matches {
			if seen[path] {
				continue
			}
			seen[path] = true
			ports = append(ports, serialPort{Path: path, Name: filepath.Base(path)})
		}
	}
	return ports
}

func processPort(ctx context.Context, port *serialPort, opts *detection.Options) (detection.DeviceInfo, bool) {
	if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
		return detection.DeviceInfo{}, false
	}
	if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}

	confidence := detection.Low
	if port.Enumerated || isLikelyLinkPort(port) {
		confidence = detection.Medium
	}

	device := detection.DeviceInfo{
		Transport:  string(comlink.TransportUART),
		Path:       port.Path,
		Name:       port.Name,
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}
	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}

	if opts.Mode == detection.Safe {
		if !probePortFn(ctx, port.Path) {
			return detection.DeviceInfo{}, false
		}
		device.Confidence = detection.High
	}
	return device, true
}

// isLikelyLinkPort matches null-modem pairs and the common USB-serial
// bridges stations are wired through.
func isLikelyLinkPort(port *serialPort) bool {
	if strings.HasPrefix(port.Name, "tnt") {
		return true
	}

	knownBridges := []string{
		"0403:6001", // FTDI FT232
		"10C4:EA60", // Silicon Labs CP210x
		"1A86:7523", // QinHeng CH340
		"067B:2303", // Prolific PL2303
	}
	for _, known := range knownBridges {
		if strings.EqualFold(port.VIDPID, known) {
			return true
		}
	}
	return false
}

// probePort opens the port once and closes it. It never writes, so a peer
// already on the line sees nothing.
func probePort(ctx context.Context, path string) bool {
	if ctx.Err() != nil {
		return false
	}
	if _, err := os.Stat(path); err != nil && !strings.HasPrefix(strings.ToUpper(path), "COM") {
		return false
	}
	t, err := uart.Open(path, comlink.ModeSender)
	if err != nil {
		comlink.Debugf("probe of %s failed: %v", path, err)
		return false
	}
	_ = t.Close()
	return true
}
