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

// Command messenger exchanges text between two stations sharing a serial
// line. One side runs as sender and reads lines from stdin; the other runs
// as receiver and prints what it decodes.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	comlink "github.com/ZaparooProject/go-comlink"
	"github.com/ZaparooProject/go-comlink/config"
	"github.com/ZaparooProject/go-comlink/detection"
	_ "github.com/ZaparooProject/go-comlink/detection/uart"
	"github.com/ZaparooProject/go-comlink/framing/hdlc"
	"github.com/ZaparooProject/go-comlink/internal/logging"
	"github.com/ZaparooProject/go-comlink/internal/metrics"
	"github.com/ZaparooProject/go-comlink/transport/uart"
	"go.uber.org/zap"
)

// Default ports of a tty0tty null-modem pair.
const (
	defaultSenderPort   = "/dev/tnt1"
	defaultReceiverPort = "/dev/tnt0"
)

type options struct {
	mode       string
	port       string
	configPath string
	metrics    string
	logLevel   string
	logFile    string
	framing    string
	sessionLog string
	debug      bool
	list       bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("messenger", flag.ContinueOnError)
	fs.StringVar(&opts.mode, "mode", "sender", "Station role: sender or receiver")
	fs.StringVar(&opts.port, "port", "", "Serial port (default /dev/tnt1 for sender, /dev/tnt0 for receiver)")
	fs.StringVar(&opts.configPath, "config", "", "TOML configuration file")
	fs.StringVar(&opts.metrics, "metrics", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&opts.logFile, "log-file", "", "Also write logs to this file, rotated by size")
	fs.StringVar(&opts.framing, "framing", "", "Wire format: mac or hdlc")
	fs.StringVar(&opts.sessionLog, "session-log", "", "Write a protocol debug session log into this directory")
	fs.BoolVar(&opts.debug, "debug", false, "Print protocol events")
	fs.BoolVar(&opts.list, "list", false, "List serial ports and exit")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	return opts, nil
}

// loadConfig reads the optional file and applies flag overrides on top.
func loadConfig(opts *options) (config.Config, comlink.Mode, error) {
	mode, err := comlink.ParseMode(opts.mode)
	if err != nil {
		return config.Config{}, 0, err
	}

	cfg := config.Default()
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, 0, err
		}
	}

	if opts.port != "" {
		cfg.Serial.Port = opts.port
	}
	if cfg.Serial.Port == "" {
		cfg.Serial.Port = defaultSenderPort
		if mode == comlink.ModeReceiver {
			cfg.Serial.Port = defaultReceiverPort
		}
	}
	if opts.metrics != "" {
		cfg.MetricsAddress = opts.metrics
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.debug && opts.logLevel == "" {
		cfg.Log.Level = "debug"
	}
	if opts.logFile != "" {
		cfg.Log.File = opts.logFile
	}
	if opts.framing != "" {
		cfg.Framing = opts.framing
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, 0, err
	}
	return cfg, mode, nil
}

// station carries everything run needs besides the configuration. Tests
// swap open for an in-memory medium and add MAC options for a fake clock.
type station struct {
	in      io.Reader
	out     io.Writer
	logger  *zap.Logger
	open    func(ctx context.Context, cfg *config.Config, mode comlink.Mode) (comlink.Transport, error)
	macOpts []comlink.MACOption
}

// openSerial opens the configured port, retrying while it is busy.
func openSerial(ctx context.Context, cfg *config.Config, mode comlink.Mode) (comlink.Transport, error) {
	var t *uart.Transport
	err := comlink.Retry(ctx, comlink.DefaultRetryConfig(), func() error {
		var openErr error
		t, openErr = uart.Open(cfg.Serial.Port, mode,
			uart.WithBaudRate(cfg.Serial.BaudRate),
			uart.WithReadTimeout(cfg.Serial.ReadTimeout),
		)
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Serial.Port, err)
	}
	return t, nil
}

func (s *station) endpointOptions(cfg *config.Config, mode comlink.Mode, collector *metrics.Collector) []comlink.EndpointOption {
	observe := collector.Observe
	if mode == comlink.ModeReceiver && cfg.Framing == config.FramingMAC {
		// each escape ends a message, so the next one starts on a new line
		observe = func(ev comlink.Event) {
			collector.Observe(ev)
			if ev.Kind == comlink.EventReceived && ev.Escapes > 0 {
				_, _ = fmt.Fprintln(s.out)
			}
		}
	}

	opts := []comlink.EndpointOption{
		comlink.WithEventObserver(observe),
		comlink.WithDebugHandler(func(text string) {
			s.logger.Debug(text)
		}),
		comlink.WithMACOptions(s.macOpts...),
	}

	if mode == comlink.ModeReceiver {
		opts = append(opts, comlink.WithMessageHandler(func(text string) {
			_, _ = fmt.Fprint(s.out, text)
		}))
	}

	if cfg.Framing == config.FramingHDLC {
		if mode == comlink.ModeSender {
			opts = append(opts, comlink.WithEncoder(hdlc.NewEncoder(hdlc.Config{
				Source:      cfg.HDLCSource,
				Destination: cfg.HDLCDest,
			})))
		} else {
			opts = append(opts, comlink.WithDecoder(hdlc.NewDecoder(cfg.HDLCDest)))
		}
	}
	return opts
}

func (s *station) run(ctx context.Context, cfg *config.Config, mode comlink.Mode) error {
	collector := metrics.New(mode)
	if cfg.MetricsAddress != "" {
		stop := serveMetrics(cfg.MetricsAddress, collector, s.logger)
		defer stop()
	}

	t, err := s.open(ctx, cfg, mode)
	if err != nil {
		return err
	}

	ep, err := comlink.NewEndpoint(t, cfg.ProtocolConfig(), s.endpointOptions(cfg, mode, collector)...)
	if err != nil {
		_ = t.Close()
		return fmt.Errorf("failed to start %v: %w", mode, err)
	}
	defer func() {
		if err := ep.Close(); err != nil {
			s.logger.Warn("failed to close endpoint", zap.Error(err))
		}
	}()

	s.logger.Info("station ready",
		zap.Stringer("mode", mode),
		zap.String("port", cfg.Serial.Port),
		zap.String("framing", cfg.Framing),
	)

	if mode == comlink.ModeReceiver {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.sendLines(ctx, ep)
}

// sendLines sends each stdin line as one message until EOF or cancellation.
func (s *station) sendLines(ctx context.Context, ep *comlink.Endpoint) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
				default:
				}
				return nil
			}
			if err := s.sendLine(ctx, ep, line); err != nil {
				return err
			}
		}
	}
}

func (s *station) sendLine(ctx context.Context, ep *comlink.Endpoint, line string) error {
	report, err := ep.Send(ctx, line)
	switch {
	case err == nil:
		s.logger.Info("message sent",
			zap.Int("symbols", report.Symbols),
			zap.Int("collisions", report.Collisions),
			zap.Duration("took", report.Duration),
		)
		return nil
	case errors.Is(err, comlink.ErrTriesExpired):
		_, _ = fmt.Fprintln(s.out, "Error. Number of tries expired")
		fields := []zap.Field{zap.Error(err)}
		if te := comlink.GetTrace(err); te != nil {
			fields = append(fields, zap.String("trace", te.FormatTrace()))
		}
		s.logger.Warn("message abandoned", fields...)
		return nil
	case errors.Is(err, comlink.ErrReservedByte):
		_, _ = fmt.Fprintf(s.out, "Message rejected: %v\n", err)
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case comlink.IsFatal(err):
		return fmt.Errorf("port lost: %w", err)
	default:
		_, _ = fmt.Fprintln(s.out, "Error. Message not sent")
		s.logger.Warn("send failed", zap.Error(err), zap.Bool("retryable", comlink.IsRetryable(err)))
		return nil
	}
}

func serveMetrics(addr string, collector *metrics.Collector, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func listPorts(ctx context.Context, out io.Writer) error {
	opts := detection.DefaultOptions()
	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil {
		return fmt.Errorf("port detection failed: %w", err)
	}
	for _, d := range devices {
		_, _ = fmt.Fprintln(out, d.String())
	}
	return nil
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.list {
		if err := listPorts(ctx, os.Stdout); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	cfg, mode, err := loadConfig(opts)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	logger, err := logging.Setup(cfg.Log, os.Stderr)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	if opts.debug {
		comlink.SetDebugEnabled(true)
		comlink.SetDebugOutput(logging.DebugWriter{Logger: logger})
	}
	if opts.sessionLog != "" {
		path, err := comlink.InitSessionLog(opts.sessionLog)
		if err != nil {
			logger.Error("failed to open session log", zap.Error(err))
			return 1
		}
		logger.Info("session log", zap.String("path", path))
		defer func() { _ = comlink.CloseSessionLog() }()
	}

	s := &station{in: os.Stdin, out: os.Stdout, logger: logger, open: openSerial}
	if err := s.run(ctx, &cfg, mode); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		logger.Error("station stopped", zap.Error(err))
		return 1
	}
	return 0
}
