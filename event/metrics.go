// Copyright 2024 Blink Labs Software
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

package event

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type eventMetrics struct {
	subscribers    *prometheus.GaugeVec
	deliveryErrors *prometheus.CounterVec
	eventsTotal    *prometheus.CounterVec
}

func newEventMetrics(promRegistry prometheus.Registerer) *eventMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &eventMetrics{
		subscribers: promautoFactory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shihon_event_subscribers",
				Help: "current number of event subscribers",
			},
			[]string{"type"},
		),
		deliveryErrors: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shihon_event_delivery_errors_total",
				Help: "total number of failed event deliveries",
			},
			[]string{"type"},
		),
		eventsTotal: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shihon_events_total",
				Help: "total number of published events",
			},
			[]string{"type"},
		),
	}
}

func (m *eventMetrics) subscribed(eventType EventType, delta float64) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(string(eventType)).Add(delta)
}

func (m *eventMetrics) deliveryError(eventType EventType) {
	if m == nil {
		return
	}
	m.deliveryErrors.WithLabelValues(string(eventType)).Inc()
}

func (m *eventMetrics) published(eventType EventType) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(string(eventType)).Inc()
}
