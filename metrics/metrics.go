// Copyright 2025 Poiesic Systems
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


// Package metrics mirrors pipeline run summaries as prometheus metrics on a
// private registry.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "refinery"

// Outcome labels.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics holds the run's collectors.
type Metrics struct {
	registry      *prometheus.Registry
	records       *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	audit         *prometheus.GaugeVec
	indexSize     prometheus.Gauge
	embedBatches  prometheus.Counter
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_records_total",
			Help:      "Records handled per pipeline stage and outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent per stage and batch.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"stage"}),
		audit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clean_audit",
			Help:      "Cleaner audit counters for the current run.",
		}, []string{"counter"}),
		indexSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_chunks",
			Help:      "Live chunks in the vector index.",
		}),
		embedBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_batches_total",
			Help:      "Embedding calls that succeeded.",
		}),
	}
	m.registry.MustRegister(m.records, m.stageDuration, m.audit, m.indexSize, m.embedBatches)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Add counts n records of stage with the given outcome.
func (m *Metrics) Add(stage, outcome string, n int) {
	if n <= 0 {
		return
	}
	m.records.WithLabelValues(stage, outcome).Add(float64(n))
}

// ObserveStage records how long one batch spent in stage.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// SetAudit publishes cleaner audit counts keyed by report name.
func (m *Metrics) SetAudit(counts map[string]int64) {
	for name, v := range counts {
		m.audit.WithLabelValues(name).Set(float64(v))
	}
}

// SetIndexSize publishes the live chunk count of the index.
func (m *Metrics) SetIndexSize(n int) {
	m.indexSize.Set(float64(n))
}

// AddEmbedBatches counts successful embedding calls.
func (m *Metrics) AddEmbedBatches(n int64) {
	if n > 0 {
		m.embedBatches.Add(float64(n))
	}
}

// WriteTextfile writes the registry in the text exposition format, for
// node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
