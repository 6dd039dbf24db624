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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHistogram(t *testing.T) {
	var h Histogram
	h.Add(100 * time.Millisecond)
	h.Add(700 * time.Millisecond)
	h.Add(2 * time.Hour)

	if h.Count != 3 {
		t.Errorf("Expected count 3, got %d", h.Count)
	}
	if h.Buckets[0] != 1 || h.Buckets[1] != 1 || h.Buckets[LatencyBuckets-1] != 1 {
		t.Errorf("Unexpected buckets %v", h.Buckets[:3])
	}
	if q := h.Quantile(0.5); q != time.Second {
		t.Errorf("Expected p50 bound 1s, got %s", q)
	}

	var other Histogram
	other.Add(0)
	h.Merge(&other)
	h.Merge(nil)
	if h.Count != 4 || h.Buckets[0] != 2 {
		t.Errorf("Unexpected merge result count=%d b0=%d", h.Count, h.Buckets[0])
	}
	if m := (&Histogram{}).Mean(); m != 0 {
		t.Errorf("Expected zero mean for empty histogram, got %s", m)
	}
}

func TestMetricsTextfile(t *testing.T) {
	m := NewMetrics()
	m.observeAction(VerbClick, TierForced, true)
	m.observeAttempt("create-class", 2*time.Second, false)
	m.setRunFailures(2)

	if v := testutil.ToFloat64(m.attempts.WithLabelValues("create-class", "error")); v != 1 {
		t.Errorf("Expected 1 failed attempt, got %v", v)
	}
	if v := testutil.ToFloat64(m.runFailures); v != 2 {
		t.Errorf("Expected 2 run failures, got %v", v)
	}

	path := filepath.Join(t.TempDir(), "runner.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`phaserunner_action_total{outcome="ok",tier="forced",verb="click"} 1`,
		"phaserunner_phase_duration_seconds_bucket",
		"phaserunner_run_failures 2",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Textfile missing %q", want)
		}
	}

	var nilMetrics *Metrics
	nilMetrics.observeAction(VerbFill, TierDirect, false)
	if err := nilMetrics.WriteTextfile(path); err != nil {
		t.Errorf("nil metrics should be a no-op, got %v", err)
	}
}
