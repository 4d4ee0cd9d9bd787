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

// Package metrics exports link counters for Prometheus.
package metrics

import (
	"net/http"

	comlink "github.com/ZaparooProject/go-comlink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "comlink"

// Collector turns protocol events into Prometheus metrics. Pass Observe to
// comlink.WithEventObserver.
type Collector struct {
	registry     *prometheus.Registry
	transmitted  prometheus.Counter
	delivered    prometheus.Counter
	collisions   prometheus.Counter
	aborts       prometheus.Counter
	busyWaits    prometheus.Counter
	messages     prometheus.Counter
	receivedRaw  prometheus.Counter
	decoded      prometheus.Counter
	backoffSlots prometheus.Histogram
}

// New creates a collector registered on its own registry, labelled with the
// station's mode.
func New(mode comlink.Mode) *Collector {
	labels := prometheus.Labels{"mode": mode.String()}
	counter := func(subsystem, name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	c := &Collector{
		registry:    prometheus.NewRegistry(),
		transmitted: counter("mac", "symbols_transmitted_total", "Symbol bytes written, including retransmissions."),
		delivered:   counter("mac", "symbols_delivered_total", "Symbols that survived their collision window."),
		collisions:  counter("mac", "collisions_total", "Collisions detected after a transmission."),
		aborts:      counter("mac", "aborts_total", "Messages abandoned after the retry budget ran out."),
		busyWaits:   counter("mac", "busy_waits_total", "Times the sender found the channel busy."),
		messages:    counter("mac", "messages_sent_total", "Messages terminated with an escape byte."),
		receivedRaw: counter("decoder", "received_bytes_total", "Raw bytes read from the medium."),
		decoded:     counter("decoder", "decoded_bytes_total", "Message bytes recovered by the decoder."),
		backoffSlots: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "mac",
			Name:        "backoff_slots",
			Help:        "Backoff slot counts drawn after collisions.",
			ConstLabels: labels,
			Buckets:     []float64{0, 1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
		}),
	}

	c.registry.MustRegister(
		c.transmitted, c.delivered, c.collisions, c.aborts, c.busyWaits,
		c.messages, c.receivedRaw, c.decoded, c.backoffSlots,
	)
	return c
}

// Observe records one protocol event.
func (c *Collector) Observe(ev comlink.Event) {
	switch ev.Kind {
	case comlink.EventTransmitted:
		c.transmitted.Inc()
	case comlink.EventDelivered:
		c.delivered.Inc()
	case comlink.EventCollision:
		c.collisions.Inc()
	case comlink.EventAborted:
		c.aborts.Inc()
	case comlink.EventChannelBusy:
		c.busyWaits.Inc()
	case comlink.EventEndOfMessage:
		c.messages.Inc()
	case comlink.EventBackoff:
		c.backoffSlots.Observe(float64(ev.Slots))
	case comlink.EventReceived:
		c.receivedRaw.Add(float64(ev.Bytes))
		c.decoded.Add(float64(ev.Decoded))
	case comlink.EventPortInitialized:
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
