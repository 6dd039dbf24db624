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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const joinPage = `<html><head><title>Join</title><script>var secret = "hidden";</script></head>
<body>
  <h1>Join a class</h1>
  <input placeholder="Group code">
  <p class="text-red-600">Invalid group code</p>
</body></html>`

func TestFileCapturerWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	page := newFakePage("student")
	page.html = joinPage
	page.url = "http://app.test/join"
	page.console = []string{"BROWSER ERROR: 404 /api/groups/XYZ"}
	s := newTestSession(t, page, nil)

	c := NewFileCapturer(dir)
	c.Logf = t.Logf
	diags := c.Capture(context.Background(), "join-class-attempt1", []*Session{s}, errors.New("code rejected"))
	if len(diags) != 1 {
		t.Fatalf("Expected 1 diagnostic, got %d", len(diags))
	}
	d := diags[0]
	if d.Screenshot != filepath.Join(dir, "join-class-attempt1-tester.png") {
		t.Errorf("Unexpected screenshot path %q", d.Screenshot)
	}
	if png, err := os.ReadFile(d.Screenshot); err != nil || string(png) != string(page.png) {
		t.Errorf("Screenshot not written: %v", err)
	}
	dump, err := os.ReadFile(d.Dump)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(dump)
	for _, want := range []string{
		"error:    code rejected",
		"url:      http://app.test/join",
		"-- error banners --\nInvalid group code",
		"BROWSER ERROR: 404",
		"Join a class",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Dump missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "hidden") {
		t.Errorf("Dump includes script content:\n%s", text)
	}
	if strings.Contains(text, "changes since previous attempt") {
		t.Error("First attempt should have no diff")
	}

	page.html = strings.Replace(joinPage, "Invalid group code", "Class is full", 1)
	diags = c.Capture(context.Background(), "join-class-attempt2", []*Session{s}, errors.New("code rejected"))
	dump, _ = os.ReadFile(diags[0].Dump)
	if !strings.Contains(string(dump), "changes since previous attempt") ||
		!strings.Contains(string(dump), "-Invalid group code") ||
		!strings.Contains(string(dump), "+Class is full") {
		t.Errorf("Expected diff against attempt 1:\n%s", dump)
	}
}

func TestFileCapturerClosedSession(t *testing.T) {
	s := newTestSession(t, newFakePage("x"), nil)
	s.Close()
	c := NewFileCapturer(t.TempDir())
	c.Logf = t.Logf
	diags := c.Capture(context.Background(), "p-attempt1", []*Session{s}, errors.New("boom"))
	if len(diags) != 1 || diags[0].Screenshot != "" || diags[0].Dump == "" {
		t.Fatalf("Expected a dump without screenshot, got %+v", diags)
	}
	dump, _ := os.ReadFile(diags[0].Dump)
	if !strings.Contains(string(dump), ErrSessionClosed.Error()) {
		t.Errorf("Expected closed-session note:\n%s", dump)
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Create Lesson: audio": "create-lesson-audio",
		"register-professor":   "register-professor",
		"  ":                   "unnamed",
		"Ünïcode / path\\x":    "n-code-path-x",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, expected %q", in, got, want)
		}
	}
	if got := Slug(strings.Repeat("a", 100)); len(got) != 60 {
		t.Errorf("Expected slug capped at 60, got %d", len(got))
	}
}
