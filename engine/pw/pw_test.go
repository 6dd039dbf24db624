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

package pw

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ttbt-io/phaserunner/runner"
)

var withPlaywright = flag.Bool("with-playwright", false, "Run tests that launch Chromium through Playwright")

func TestSelectorFor(t *testing.T) {
	tests := []struct {
		s    runner.Strategy
		want string
		ok   bool
	}{
		{runner.CSS("#join"), "css=#join", true},
		{runner.XPath("//button[1]"), "xpath=//button[1]", true},
		{runner.ByAttr("placeholder", `Group "code"`), `css=[placeholder="Group \"code\""]`, true},
		{runner.ByRole("button", "Join"), "", false},
		{runner.ByText("Join"), "", false},
	}
	for _, tc := range tests {
		got, ok := selectorFor(tc.s)
		if got != tc.want || ok != tc.ok {
			t.Errorf("selectorFor(%s) = %q, %v; expected %q, %v", tc.s, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTimeout(t *testing.T) {
	if to, err := timeout(context.Background()); to != nil || err != nil {
		t.Errorf("Expected no timeout, got %v, %v", to, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	to, err := timeout(ctx)
	if err != nil || to == nil || *to <= 1000 || *to > 2000 {
		t.Errorf("Unexpected timeout %v, %v", to, err)
	}
	cancel()
	if _, err := timeout(ctx); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestPlaywrightPage(t *testing.T) {
	if !*withPlaywright {
		t.Skip("--with-playwright not set")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!doctype html><body>
<button style="display:none" onclick="document.getElementById('out').textContent='clicked'">Hidden</button>
<input placeholder="Group code"><p id="out"></p></body>`)
	}))
	defer srv.Close()

	e, err := New(Options{Install: true, Headless: true, Logf: t.Logf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()
	p, err := e.NewPage(ctx, runner.PageOptions{Label: "pw"})
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	defer p.Close()
	if err := p.Navigate(ctx, srv.URL); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	hidden := runner.ByRole("button", "Hidden")
	short, cancelShort := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancelShort()
	if err := p.Click(short, runner.CSS("button"), false); err == nil {
		t.Error("Expected direct click on hidden button to fail")
	}
	if err := p.ScriptClick(ctx, runner.CSS("button")); err != nil {
		t.Errorf("ScriptClick: %v", err)
	}
	if got, _ := p.Text(ctx, runner.CSS("#out")); got != "clicked" {
		t.Errorf("Expected clicked, got %q", got)
	}
	if n, _ := p.Count(ctx, hidden); n != 0 {
		t.Errorf("Hidden buttons are not in the accessibility tree, got %d", n)
	}

	code := runner.ByAttr("placeholder", "Group code")
	if err := p.Fill(ctx, code, "ABC123", false); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if got, _ := p.Text(ctx, code); got != "ABC123" {
		t.Errorf("Expected ABC123, got %q", got)
	}
}
