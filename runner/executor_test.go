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
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

var submit = NewTarget("submit button", ByRole("button", "Submit"), CSS("button[type=submit]"))

func TestPerformStopsAtFirstSuccessfulTier(t *testing.T) {
	errBlocked := errors.New("element is covered")
	tests := []struct {
		name     string
		direct   error
		forced   error
		wantTier string
		want     []string
	}{
		{
			name:     "direct",
			wantTier: "direct",
			want:     []string{`direct:click role=button[name="Submit"]`},
		},
		{
			name:     "forced",
			direct:   errBlocked,
			wantTier: "forced",
			want: []string{
				`direct:click role=button[name="Submit"]`,
				`forced:click role=button[name="Submit"]`,
			},
		},
		{
			name:     "scripted",
			direct:   errBlocked,
			forced:   errBlocked,
			wantTier: "scripted",
			want: []string{
				`direct:click role=button[name="Submit"]`,
				`forced:click role=button[name="Submit"]`,
				`scripted:click role=button[name="Submit"]`,
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			page := newFakePage("tester")
			page.matchAll = true
			page.failDirect = tc.direct
			page.failForced = tc.forced
			m := NewMetrics()
			s := newTestSession(t, page, NewExecutor(ExecutorOptions{Metrics: m, Logf: t.Logf}))

			if err := s.Click(context.Background(), submit); err != nil {
				t.Fatalf("Click: %v", err)
			}
			if got := page.Events(); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Expected events %q, got %q", tc.want, got)
			}
			if v := testutil.ToFloat64(m.actions.WithLabelValues("click", tc.wantTier, "ok")); v != 1 {
				t.Errorf("Expected 1 successful %s click, got %v", tc.wantTier, v)
			}
		})
	}
}

func TestPerformAllTiersFail(t *testing.T) {
	page := newFakePage("tester")
	page.matchAll = true
	page.failDirect = errors.New("not visible")
	page.failForced = errors.New("not attached")
	errScript := errors.New("el is null")
	page.failScripted = errScript
	capt := &recordingCapturer{}
	m := NewMetrics()
	s := newTestSession(t, page, NewExecutor(ExecutorOptions{Capturer: capt, Metrics: m, Logf: t.Logf}))

	err := s.Fill(context.Background(), NewTarget("email field", CSS("#email")), "a@b.c")
	var aerr *ActionError
	if !errors.As(err, &aerr) {
		t.Fatalf("Expected *ActionError, got %T %v", err, err)
	}
	if aerr.Tier != TierScripted || aerr.Verb != VerbFill || aerr.Target != "email field" {
		t.Errorf("Unexpected ActionError: %+v", aerr)
	}
	if !errors.Is(err, errScript) {
		t.Errorf("Expected last cause to be the scripted error, got %v", aerr.Cause)
	}
	labels := capt.Labels()
	if len(labels) != 1 || !strings.HasPrefix(labels[0], "action-0001-fill-email-field") {
		t.Errorf("Expected one action capture, got %q", labels)
	}
	if v := testutil.ToFloat64(m.actions.WithLabelValues("fill", "scripted", "error")); v != 1 {
		t.Errorf("Expected 1 failed fill, got %v", v)
	}
}

func TestPerformUsesFirstMatchingStrategy(t *testing.T) {
	page := newFakePage("tester")
	fallback := CSS("button[type=submit]")
	page.counts[fallback.String()] = 2
	s := newTestSession(t, page, nil)

	if err := s.Click(context.Background(), submit); err != nil {
		t.Fatalf("Click: %v", err)
	}
	want := []string{"direct:click css=button[type=submit]"}
	if got := page.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestPerformTargetNotFound(t *testing.T) {
	page := newFakePage("tester")
	s := newTestSession(t, page, nil)

	start := time.Now()
	err := s.Click(context.Background(), submit, WithTimeout(100*time.Millisecond))
	if !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("Expected ErrTargetNotFound, got %v", err)
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Errorf("Expected resolution to honour the timeout, took %s", d)
	}
	if ev := page.Events(); len(ev) != 0 {
		t.Errorf("Expected no tier to run, got %q", ev)
	}
}

func TestPerformWithoutStrategies(t *testing.T) {
	s := newTestSession(t, newFakePage("tester"), nil)
	err := s.Click(context.Background(), NewTarget("nothing"))
	if !errors.Is(err, ErrNoStrategy) {
		t.Errorf("Expected ErrNoStrategy, got %v", err)
	}
}

func TestExpectDialogIsRegisteredBeforeAction(t *testing.T) {
	page := newFakePage("tester")
	page.matchAll = true
	s := newTestSession(t, page, nil)

	del := NewTarget("delete lesson", ByText("Delete"))
	if err := s.Click(context.Background(), del, ExpectDialog(true, "")); err != nil {
		t.Fatalf("Click: %v", err)
	}
	ev := page.Events()
	if len(ev) != 2 || ev[0] != "dialog accept=true" || !strings.HasPrefix(ev[1], "direct:click") {
		t.Errorf("Expected dialog policy before click, got %q", ev)
	}
}

func TestPerformOnClosedSession(t *testing.T) {
	page := newFakePage("tester")
	page.matchAll = true
	s := newTestSession(t, page, nil)
	s.Close()

	err := s.Click(context.Background(), submit)
	if !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
	if ev := page.Events(); len(ev) != 0 {
		t.Errorf("Expected no browser work after close, got %q", ev)
	}
}

func TestPerformFillStoresValue(t *testing.T) {
	page := newFakePage("tester")
	page.matchAll = true
	page.failDirect = errors.New("readonly")
	s := newTestSession(t, page, nil)

	code := NewTarget("group code", ByAttr("placeholder", "Group code"))
	if err := s.Fill(context.Background(), code, "ABC123"); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	got, err := s.Text(context.Background(), code)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != "ABC123" {
		t.Errorf("Expected ABC123, got %q", got)
	}
}
