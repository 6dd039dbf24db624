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

package cdp

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ttbt-io/phaserunner/runner"
)

func TestLocatorJSON(t *testing.T) {
	tests := []struct {
		s    runner.Strategy
		want locator
	}{
		{runner.CSS("#go"), locator{Kind: "css", Query: "#go"}},
		{runner.XPath("//button"), locator{Kind: "xpath", Query: "//button"}},
		{runner.ByRole("button", "Join").WithExact(), locator{Kind: "role", Role: "button", Name: "Join", Exact: true}},
		{runner.ByText(`He said "hi"`), locator{Kind: "text", Text: `He said "hi"`}},
		{runner.ByAttr("placeholder", "Group code"), locator{Kind: "attr", Attr: "placeholder", Value: "Group code"}},
	}
	for _, tc := range tests {
		var got locator
		if err := json.Unmarshal([]byte(locatorJSON(tc.s)), &got); err != nil {
			t.Fatalf("%s: %v", tc.s, err)
		}
		if got != tc.want {
			t.Errorf("%s: expected %+v, got %+v", tc.s, tc.want, got)
		}
	}
}

func TestNativeSelector(t *testing.T) {
	if sel, ok := nativeSelector(runner.CSS("form .btn")); !ok || sel != "form .btn" {
		t.Errorf("Expected native css selector, got %q %v", sel, ok)
	}
	for _, s := range []runner.Strategy{runner.XPath("//a"), runner.ByText("x"), runner.ByRole("link", ""), runner.ByAttr("name", "q")} {
		if _, ok := nativeSelector(s); ok {
			t.Errorf("%s should be resolved by tagging", s)
		}
	}
	if got := tagSelector(7); got != `[data-phaserunner="7"]` {
		t.Errorf("Unexpected tag selector %s", got)
	}
}

func TestExpressionsQuoteInput(t *testing.T) {
	s := runner.ByText(`'); alert(1); ('`)
	expr := fillExpr(s, "it's \"quoted\"\n")
	if !strings.Contains(expr, `const v = "it's \"quoted\"\n";`) {
		t.Errorf("Value not JSON quoted:\n%s", expr)
	}
	if !strings.Contains(expr, `"text":"'); alert(1); ('"`) {
		t.Errorf("Locator not JSON encoded:\n%s", expr)
	}
	if !strings.Contains(countExpr(s, true), ".filter(") {
		t.Error("Visible count should filter matches")
	}
	if strings.Contains(countExpr(s, false), ".filter((el =>") {
		t.Error("Plain count should not filter on visibility")
	}
	if !strings.Contains(tagExpr(s, 3), `el.setAttribute("data-phaserunner", "3")`) {
		t.Errorf("Unexpected tag expression:\n%s", tagExpr(s, 3))
	}
}
