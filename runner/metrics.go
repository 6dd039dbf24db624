// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the run's prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	actions       *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	runFailures   prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phaserunner_action_total",
			Help: "UI actions by verb, final tier and outcome.",
		}, []string{"verb", "tier", "outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phaserunner_phase_attempts_total",
			Help: "Phase attempts by phase and outcome.",
		}, []string{"phase", "outcome"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "phaserunner_phase_duration_seconds",
			Help:    "Duration of phase attempts.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"phase"}),
		runFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "phaserunner_run_failures",
			Help: "Phases that failed after retries in the last run.",
		}),
	}
	m.Registry.MustRegister(m.actions, m.attempts, m.phaseDuration, m.runFailures)
	return m
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func (m *Metrics) observeAction(verb Verb, tier Tier, ok bool) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(string(verb), tier.String(), outcome(ok)).Inc()
}

func (m *Metrics) observeAttempt(phase string, d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(phase, outcome(ok)).Inc()
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) setRunFailures(n int) {
	if m == nil {
		return
	}
	m.runFailures.Set(float64(n))
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
