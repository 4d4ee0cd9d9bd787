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

// Package config loads station settings from a TOML file. Keys that are
// absent keep their defaults, so a file only needs to name what it changes:
//
//	[link]
//	collision_window = "50ms"
//	max_tries = 10
//
//	[serial]
//	port = "/dev/tnt1"
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	comlink "github.com/ZaparooProject/go-comlink"
)

// Framing names how messages are put on the wire.
const (
	FramingMAC  = "mac"
	FramingHDLC = "hdlc"
)

// Serial holds port settings.
type Serial struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
}

// Log holds CLI logging settings.
type Log struct {
	Level      string
	File       string
	Format     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config is the complete station configuration.
type Config struct {
	Log            Log
	Serial         Serial
	MetricsAddress string
	Framing        string
	Link           comlink.Config
	HDLCSource     byte
	HDLCDest       byte
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Link:    *comlink.DefaultConfig(),
		Serial:  Serial{BaudRate: comlink.DefaultBaudRate},
		Framing: FramingMAC,
		Log: Log{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		HDLCSource: '1',
		HDLCDest:   '0',
	}
}

// ProtocolConfig returns the link parameters for comlink.NewMAC.
func (c *Config) ProtocolConfig() *comlink.Config {
	link := c.Link
	return &link
}

type fileConfig struct {
	Link struct {
		CollisionWindow  duration `toml:"collision_window"`
		JamSignalTime    duration `toml:"jam_signal_time"`
		BusyPollInterval duration `toml:"busy_poll_interval"`
		MaxTries         int      `toml:"max_tries"`
	} `toml:"link"`
	Serial struct {
		Port        string   `toml:"port"`
		BaudRate    int      `toml:"baud_rate"`
		ReadTimeout duration `toml:"read_timeout"`
	} `toml:"serial"`
	Framing struct {
		Mode        string `toml:"mode"`
		Source      string `toml:"source"`
		Destination string `toml:"destination"`
	} `toml:"framing"`
	Log struct {
		Level      string `toml:"level"`
		File       string `toml:"file"`
		Format     string `toml:"format"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
		Compress   bool   `toml:"compress"`
	} `toml:"log"`
	Metrics struct {
		Address string `toml:"address"`
	} `toml:"metrics"`
}

// duration decodes TOML strings such as "50ms" or "1s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("%w: %w", comlink.ErrInvalidParameter, err)
	}
	d.Duration = parsed
	return nil
}

// Load reads and validates the TOML file at path.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return build(&raw, meta)
}

// Parse is Load for in-memory TOML.
func Parse(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return build(&raw, meta)
}

func build(raw *fileConfig, meta toml.MetaData) (Config, error) {
	cfg := Default()

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown config key %q", comlink.ErrInvalidParameter, undecoded[0].String())
	}

	if meta.IsDefined("link", "collision_window") {
		cfg.Link.CollisionWindow = raw.Link.CollisionWindow.Duration
	}
	if meta.IsDefined("link", "jam_signal_time") {
		cfg.Link.JamSignalTime = raw.Link.JamSignalTime.Duration
	}
	if meta.IsDefined("link", "busy_poll_interval") {
		cfg.Link.BusyPollInterval = raw.Link.BusyPollInterval.Duration
	}
	if meta.IsDefined("link", "max_tries") {
		cfg.Link.MaxTries = raw.Link.MaxTries
	}

	if meta.IsDefined("serial", "port") {
		cfg.Serial.Port = strings.TrimSpace(raw.Serial.Port)
	}
	if meta.IsDefined("serial", "baud_rate") {
		cfg.Serial.BaudRate = raw.Serial.BaudRate
	}
	if meta.IsDefined("serial", "read_timeout") {
		cfg.Serial.ReadTimeout = raw.Serial.ReadTimeout.Duration
	}

	if err := applyFraming(&cfg, raw, meta); err != nil {
		return Config{}, err
	}
	applyLog(&cfg, raw, meta)

	if meta.IsDefined("metrics", "address") {
		cfg.MetricsAddress = strings.TrimSpace(raw.Metrics.Address)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFraming(cfg *Config, raw *fileConfig, meta toml.MetaData) error {
	if meta.IsDefined("framing", "mode") {
		cfg.Framing = strings.ToLower(strings.TrimSpace(raw.Framing.Mode))
	}
	if meta.IsDefined("framing", "source") {
		b, err := stationAddress("framing.source", raw.Framing.Source)
		if err != nil {
			return err
		}
		cfg.HDLCSource = b
	}
	if meta.IsDefined("framing", "destination") {
		b, err := stationAddress("framing.destination", raw.Framing.Destination)
		if err != nil {
			return err
		}
		cfg.HDLCDest = b
	}
	return nil
}

func applyLog(cfg *Config, raw *fileConfig, meta toml.MetaData) {
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.File = strings.TrimSpace(raw.Log.File)
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.TrimSpace(raw.Log.Format)
	}
	if meta.IsDefined("log", "max_size_mb") {
		cfg.Log.MaxSizeMB = raw.Log.MaxSizeMB
	}
	if meta.IsDefined("log", "max_backups") {
		cfg.Log.MaxBackups = raw.Log.MaxBackups
	}
	if meta.IsDefined("log", "max_age_days") {
		cfg.Log.MaxAgeDays = raw.Log.MaxAgeDays
	}
	if meta.IsDefined("log", "compress") {
		cfg.Log.Compress = raw.Log.Compress
	}
}

func stationAddress(key, value string) (byte, error) {
	if len(value) != 1 {
		return 0, fmt.Errorf("%w: %s must be a single character, got %q", comlink.ErrInvalidParameter, key, value)
	}
	return value[0], nil
}

// Validate checks the link parameters and the framing choice.
func (c *Config) Validate() error {
	if err := c.Link.Validate(); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	switch c.Framing {
	case FramingMAC, FramingHDLC:
	default:
		return fmt.Errorf("%w: framing mode %q", comlink.ErrInvalidParameter, c.Framing)
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("%w: baud rate %d", comlink.ErrInvalidParameter, c.Serial.BaudRate)
	}
	if c.Serial.ReadTimeout < 0 {
		return fmt.Errorf("%w: negative read timeout", comlink.ErrInvalidParameter)
	}
	return nil
}
