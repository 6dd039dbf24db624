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

package classroom

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ttbt-io/phaserunner/runner"
)

// scriptedPage matches every CSS strategy and answers Text from a table.
type scriptedPage struct {
	mu      sync.Mutex
	url     string
	texts   map[string]string
	actions []string
	policy  runner.DialogPolicy
}

func (p *scriptedPage) log(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, fmt.Sprintf(format, args...))
}

func (p *scriptedPage) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}

func (p *scriptedPage) Navigate(ctx context.Context, url string) error {
	p.log("navigate %s", url)
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *scriptedPage) Reload(ctx context.Context) error {
	p.log("reload")
	return nil
}

func (p *scriptedPage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *scriptedPage) Title(ctx context.Context) (string, error) { return "Classroom", nil }

func (p *scriptedPage) SetCookie(ctx context.Context, c runner.Cookie) error { return nil }

func (p *scriptedPage) Count(ctx context.Context, s runner.Strategy) (int, error) {
	if s.Kind == runner.KindCSS {
		return 1, nil
	}
	return 0, nil
}

func (p *scriptedPage) Click(ctx context.Context, s runner.Strategy, force bool) error {
	p.log("click %s", s.Query)
	return nil
}

func (p *scriptedPage) Fill(ctx context.Context, s runner.Strategy, value string, force bool) error {
	p.log("fill %s %s", s.Query, value)
	return nil
}

func (p *scriptedPage) ScriptClick(ctx context.Context, s runner.Strategy) error {
	return errors.New("unexpected script click")
}

func (p *scriptedPage) ScriptFill(ctx context.Context, s runner.Strategy, value string) error {
	return errors.New("unexpected script fill")
}

func (p *scriptedPage) Text(ctx context.Context, s runner.Strategy) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texts[s.Query], nil
}

func (p *scriptedPage) WaitVisible(ctx context.Context, s runner.Strategy) error { return nil }
func (p *scriptedPage) WaitHidden(ctx context.Context, s runner.Strategy) error  { return nil }
func (p *scriptedPage) WaitIdle(ctx context.Context) error                       { return nil }
func (p *scriptedPage) Eval(ctx context.Context, expr string, out any) error     { return nil }

func (p *scriptedPage) SetDialogPolicy(d runner.DialogPolicy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = d
}

func (p *scriptedPage) Dialogs() []string                              { return nil }
func (p *scriptedPage) Console() []string                              { return nil }
func (p *scriptedPage) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }
func (p *scriptedPage) HTML(ctx context.Context) (string, error)       { return "<html></html>", nil }
func (p *scriptedPage) Close() error                                   { return nil }

type scriptedEngine struct {
	page *scriptedPage
}

func (e scriptedEngine) NewPage(ctx context.Context, opts runner.PageOptions) (runner.Page, error) {
	return e.page, nil
}

func (e scriptedEngine) Close() error { return nil }

func newEnv(t *testing.T, reg *runner.Registry, name, item string, role runner.Role, page *scriptedPage, state *runner.State) (runner.Phase, *runner.Env) {
	t.Helper()
	ph, err := reg.Build(name, item)
	if err != nil {
		t.Fatalf("Build(%s): %v", name, err)
	}
	s, err := runner.CreateSession(t.Context(), scriptedEngine{page}, role, runner.NewIdentity("prof", ""), runner.SessionOptions{
		Timeout: time.Second,
		Logf:    t.Logf,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return ph, runner.NewEnv(ph, state, "http://app.test/", map[runner.Role]*runner.Session{role: s}, t.Logf)
}

func TestLessonIDFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
		ok   bool
	}{
		{"http://app.test/professor/editor/abc123", "abc123", true},
		{"http://app.test/professor/editor/abc123/", "abc123", true},
		{"http://app.test/editor?id=xyz", "xyz", true},
		{"http://app.test/#/editor/h42", "h42", true},
		{"http://app.test/professor/editor/new", "", false},
		{"http://app.test/professor/library", "", false},
	}
	for _, tc := range tests {
		got, err := LessonIDFromURL(tc.url)
		if got != tc.want || (err == nil) != tc.ok {
			t.Errorf("LessonIDFromURL(%q) = %q, %v; expected %q", tc.url, got, err, tc.want)
		}
	}
}

func TestContentLabel(t *testing.T) {
	if got := ContentLabel("quiz"); got != "Kvíz" {
		t.Errorf("Expected Kvíz, got %q", got)
	}
	if got := ContentLabel("hologram"); got != "hologram" {
		t.Errorf("Expected unknown types to pass through, got %q", got)
	}
	for _, ct := range ContentTypes {
		if _, ok := contentLabels[ct]; !ok {
			t.Errorf("No label for %s", ct)
		}
	}
}

func TestDefaultPlan(t *testing.T) {
	plan, err := DefaultPlan(Registry(Options{}))
	if err != nil {
		t.Fatalf("DefaultPlan: %v", err)
	}
	names := plan.PhaseNames()
	if want := 4 + 2*len(ContentTypes); len(names) != want {
		t.Fatalf("Expected %d phases, got %d: %v", want, len(names), names)
	}
	if names[0] != "register-professor" || names[1] != "create-class" {
		t.Errorf("Unexpected order %v", names[:2])
	}
	for _, ct := range ContentTypes {
		if !slices.Contains(names, "create-lesson:"+ct) || !slices.Contains(names, "verify-lesson:"+ct) {
			t.Errorf("Missing phases for %s", ct)
		}
	}

	var kinds []runner.GroupKind
	for _, g := range plan.Groups {
		kinds = append(kinds, g.Kind)
		switch g.Name {
		case "enrollment", "verification":
			if !slices.Contains(g.Requires, KeyGroupCode) {
				t.Errorf("Group %s should require %s, got %v", g.Name, KeyGroupCode, g.Requires)
			}
		case "student-registration":
			if g.Phases[0].Recovery == nil {
				t.Error("Student registration should rotate identities")
			}
		}
		for _, p := range g.Phases {
			if strings.HasPrefix(p.Name, "verify-lesson:") && len(p.Requires) != 1 {
				t.Errorf("Phase %s should require its lesson id, got %v", p.Name, p.Requires)
			}
		}
	}
	want := []runner.GroupKind{
		runner.GroupRequired, runner.GroupRequired, runner.GroupIndependent,
		runner.GroupRequired, runner.GroupIndependent, runner.GroupIndependent,
	}
	if !slices.Equal(kinds, want) {
		t.Errorf("Expected kinds %v, got %v", want, kinds)
	}
}

func TestCreateClassPublishesCode(t *testing.T) {
	page := &scriptedPage{
		url:   "http://app.test/professor",
		texts: map[string]string{"professor-class-detail-view code.font-mono": "  K7QX2P\n"},
	}
	state := runner.NewState()
	ph, env := newEnv(t, Registry(Options{ClassName: "Biology 1"}), "create-class", "", Professor, page, state)

	if err := ph.Run(t.Context(), env); err != nil {
		t.Fatalf("create-class: %v", err)
	}
	if got, _ := state.Get(KeyGroupCode); got != "K7QX2P" {
		t.Errorf("Expected K7QX2P, got %q", got)
	}
	if !slices.Contains(page.Actions(), "fill div.fixed.inset-0 input[type='text'] Biology 1") {
		t.Errorf("Class name was not filled: %v", page.Actions())
	}
}

func TestCreateClassWithoutCode(t *testing.T) {
	page := &scriptedPage{url: "http://app.test/professor", texts: map[string]string{}}
	state := runner.NewState()
	ph, env := newEnv(t, Registry(Options{}), "create-class", "", Professor, page, state)

	if err := ph.Run(t.Context(), env); err == nil {
		t.Fatal("Expected error for an empty join code")
	}
	if state.Has(KeyGroupCode) {
		t.Error("An empty code must not be published")
	}
}

func TestCreateLessonStoresID(t *testing.T) {
	page := &scriptedPage{url: "http://app.test/professor/editor/lesson-9", texts: map[string]string{}}
	state := runner.NewState()
	ph, env := newEnv(t, Registry(Options{}), "create-lesson", "quiz", Professor, page, state)

	if ph.Name != "create-lesson:quiz" {
		t.Errorf("Expected create-lesson:quiz, got %s", ph.Name)
	}
	if err := ph.Run(t.Context(), env); err != nil {
		t.Fatalf("create-lesson: %v", err)
	}
	if got, _ := state.Get(LessonKey("quiz")); got != "lesson-9" {
		t.Errorf("Expected lesson-9, got %q", got)
	}
}

func TestJoinClassAcceptsAlert(t *testing.T) {
	page := &scriptedPage{url: "http://app.test/student", texts: map[string]string{}}
	state := runner.NewState()
	state.Set(KeyGroupCode, "K7QX2P")
	ph, env := newEnv(t, Registry(Options{}), "join-class", "", Student, page, state)

	if err := ph.Run(t.Context(), env); err != nil {
		t.Fatalf("join-class: %v", err)
	}
	if !page.policy.Accept {
		t.Error("Expected the success alert to be accepted")
	}
	acts := page.Actions()
	if !slices.Contains(acts, "fill input[placeholder='CODE'] K7QX2P") || !slices.Contains(acts, "reload") {
		t.Errorf("Unexpected actions %v", acts)
	}
}

func TestVerifyLessonNeedsID(t *testing.T) {
	page := &scriptedPage{texts: map[string]string{}}
	ph, env := newEnv(t, Registry(Options{}), "verify-lesson", "audio", Student, page, runner.NewState())

	err := ph.Run(t.Context(), env)
	var missing *runner.MissingKeyError
	if !errors.As(err, &missing) {
		t.Fatalf("Expected MissingKeyError, got %v", err)
	}
	if len(page.Actions()) != 0 {
		t.Errorf("Expected no browser actions, got %v", page.Actions())
	}
}

func TestVerifyLessonChecksContent(t *testing.T) {
	sel := `student-lesson-detail [data-content-type="audio"]`
	page := &scriptedPage{texts: map[string]string{sel: "Episode: " + SampleContent("audio")}}
	state := runner.NewState()
	state.Set(LessonKey("audio"), "l1")
	ph, env := newEnv(t, Registry(Options{}), "verify-lesson", "audio", Student, page, state)

	if err := ph.Run(t.Context(), env); err != nil {
		t.Fatalf("verify-lesson: %v", err)
	}
	if acts := page.Actions(); len(acts) == 0 || acts[0] != "navigate http://app.test/student/lesson/l1" {
		t.Errorf("Unexpected actions %v", acts)
	}

	page.texts[sel] = "Nothing here"
	if err := ph.Run(t.Context(), env); err == nil || !strings.Contains(err.Error(), "expected") {
		t.Errorf("Expected content mismatch, got %v", err)
	}
}
