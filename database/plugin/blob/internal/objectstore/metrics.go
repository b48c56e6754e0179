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

package objectstore

import (
	"github.com/prometheus/client_golang/prometheus"
)

const blobMetricNamePrefix = "shihon_database_blob_"

type blobMetrics struct {
	opsTotal   *prometheus.CounterVec
	bytesTotal prometheus.Counter
}

func newBlobMetrics(promRegistry prometheus.Registerer, backend string) (*blobMetrics, error) {
	labels := prometheus.Labels{"backend": backend}
	m := &blobMetrics{
		opsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        blobMetricNamePrefix + "ops_total",
				Help:        "Total number of object store blob operations",
				ConstLabels: labels,
			},
			[]string{"op"},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        blobMetricNamePrefix + "bytes_total",
				Help:        "Total bytes read/written for object store blob operations",
				ConstLabels: labels,
			},
		),
	}
	if err := promRegistry.Register(m.opsTotal); err != nil {
		return nil, err
	}
	if err := promRegistry.Register(m.bytesTotal); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *blobMetrics) observe(op string, size int) {
	if m == nil {
		return
	}
	m.opsTotal.WithLabelValues(op).Inc()
	m.bytesTotal.Add(float64(size))
}
