// Copyright 2025 Blink Labs Software
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

package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type stateMetrics struct {
	instructionsTotal  *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	instructionLatency prometheus.Histogram
	roundsTotal        prometheus.Counter
	ringsOpenedTotal   prometheus.Counter
	crowningsTotal     prometheus.Counter
	listingsFilled     prometheus.Counter
	clock              prometheus.Gauge
}

func (m *stateMetrics) init(promRegistry prometheus.Registerer) {
	// Metrics are optional, so leave everything unset without a registry
	if promRegistry == nil {
		return
	}
	promautoFactory := promauto.With(promRegistry)
	m.instructionsTotal = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shihon_ledger_instructions_total",
			Help: "total number of instructions applied, by opcode and outcome",
		},
		[]string{"opcode", "outcome"},
	)
	m.errorsTotal = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shihon_ledger_errors_total",
			Help: "total number of rejected instructions, by error kind",
		},
		[]string{"kind"},
	)
	m.instructionLatency = promautoFactory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shihon_ledger_instruction_latency_seconds",
			Help:    "latency of applying one instruction",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // 100us to ~1.6s
		},
	)
	m.roundsTotal = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "shihon_ledger_rounds_opened_total",
		Help: "total number of rating rounds opened",
	})
	m.ringsOpenedTotal = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "shihon_ledger_rings_opened_total",
		Help: "total number of rings opened by approved escrows",
	})
	m.crowningsTotal = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "shihon_ledger_crownings_total",
		Help: "total number of sealed rings",
	})
	m.listingsFilled = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "shihon_ledger_listings_filled_total",
		Help: "total number of resale listings bought",
	})
	m.clock = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "shihon_ledger_clock_seconds",
		Help: "timestamp of the latest applied instruction",
	})
}

func (m *stateMetrics) enabled() bool {
	return m.instructionsTotal != nil
}
