// Copyright 2024 The Cockroach Authors
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

package dict

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Sizer is the view of a Dict exported by a Collector.
type Sizer interface {
	Len() int
	Slots() int
	Rehashing() bool
}

// Collector is a prometheus.Collector exporting the size of a Dict.
type Collector struct {
	d  Sizer
	mu sync.Locker

	entries   *prometheus.Desc
	slots     *prometheus.Desc
	rehashing *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector for d, labelled dict=name. A Dict is not
// goroutine-safe and metrics are gathered on the scraper's goroutine, so
// the Collector holds mu, which should be the lock guarding d, while
// reading it. mu may be nil if d is never modified concurrently.
func NewCollector(name string, d Sizer, mu sync.Locker) *Collector {
	labels := prometheus.Labels{"dict": name}
	return &Collector{
		d:  d,
		mu: mu,
		entries: prometheus.NewDesc("dict_entries",
			"Number of entries stored in the dictionary.", nil, labels),
		slots: prometheus.NewDesc("dict_slots",
			"Number of buckets across the dictionary's tables.", nil, labels),
		rehashing: prometheus.NewDesc("dict_rehashing",
			"Whether the dictionary is rehashing (1) or stable (0).", nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.slots
	ch <- c.rehashing
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.mu != nil {
		c.mu.Lock()
	}
	entries, slots, rehashing := c.d.Len(), c.d.Slots(), c.d.Rehashing()
	if c.mu != nil {
		c.mu.Unlock()
	}

	var r float64
	if rehashing {
		r = 1
	}
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(entries))
	ch <- prometheus.MustNewConstMetric(c.slots, prometheus.GaugeValue, float64(slots))
	ch <- prometheus.MustNewConstMetric(c.rehashing, prometheus.GaugeValue, r)
}
