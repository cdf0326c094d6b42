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


// Package metrics exposes Prometheus instrumentation for the search
// pipeline. The Collector plugs into the pipeline as a Monitor, so both
// sync and staged mode report through the same series.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poiesic/ktsearch/core"
	"github.com/poiesic/ktsearch/pipeline"
)

// Search outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeEarlyExit = "early_exit"
)

// Collector holds the pipeline metric series.
type Collector struct {
	searchesTotal *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stagesFailed  *prometheus.CounterVec
	earlyExits    prometheus.Counter
	chunksServed  prometheus.Histogram
}

// NewCollector registers the pipeline series with reg. Pass nil to use
// the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		searchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Total number of searches by terminal outcome",
			},
			[]string{"outcome"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage wall time in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		stagesFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Total number of failed pipeline stages",
			},
			[]string{"stage"},
		),
		earlyExits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "early_exits_total",
				Help:      "Total number of unknown-entity early exits",
			},
		),
		chunksServed: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "response_contexts",
				Help:      "Number of contexts returned per successful search",
				Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
			},
		),
	}
}

var _ pipeline.Monitor = (*Collector)(nil)

// StageStarted satisfies pipeline.Monitor; only completions are counted.
func (c *Collector) StageStarted(_ string) {}

// StageCompleted records the stage's wall time.
func (c *Collector) StageCompleted(stage string, elapsed time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// StageFailed counts a failed stage.
func (c *Collector) StageFailed(stage string, _ error) {
	c.stagesFailed.WithLabelValues(stage).Inc()
}

// EarlyExit counts an unknown-entity early exit.
func (c *Collector) EarlyExit(_ string) {
	c.earlyExits.Inc()
}

// Finished counts the search under its terminal outcome.
func (c *Collector) Finished(response *core.SearchResponse) {
	outcome := OutcomeSuccess
	switch {
	case !response.Success:
		outcome = OutcomeFailure
	case response.QueryType == core.ResponseTypeEarlyExit:
		outcome = OutcomeEarlyExit
	}
	c.searchesTotal.WithLabelValues(outcome).Inc()

	if response.Success {
		c.chunksServed.Observe(float64(len(response.Contexts)))
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
