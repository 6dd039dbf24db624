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
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakePage is an in-memory Page. Strategies match when listed in counts, or
// always when matchAll is set.
type fakePage struct {
	mu sync.Mutex

	label    string
	matchAll bool
	counts   map[string]int
	visible  map[string]bool

	failDirect   error
	failForced   error
	failScripted error

	events  []string
	values  map[string]string
	cookies []Cookie
	policy  DialogPolicy
	dialogs []string
	console []string

	url, title, html string
	png              []byte

	reloads      int
	closes       int
	panicOnClose bool
}

func newFakePage(label string) *fakePage {
	return &fakePage{
		label:   label,
		counts:  make(map[string]int),
		visible: make(map[string]bool),
		values:  make(map[string]string),
		url:     "http://app.test/",
		title:   "App",
		html:    "<html><body><h1>App</h1></body></html>",
		png:     []byte("\x89PNG fake"),
	}
}

func (p *fakePage) record(format string, args ...any) {
	p.events = append(p.events, fmt.Sprintf(format, args...))
}

func (p *fakePage) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.record("navigate %s", url)
	return nil
}

func (p *fakePage) Reload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	p.record("reload")
	return nil
}

func (p *fakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *fakePage) SetCookie(ctx context.Context, c Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = append(p.cookies, c)
	return nil
}

func (p *fakePage) Count(ctx context.Context, s Strategy) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.matchAll {
		return 1, nil
	}
	return p.counts[s.String()], nil
}

func tierName(force bool) string {
	if force {
		return "forced"
	}
	return "direct"
}

func (p *fakePage) Click(ctx context.Context, s Strategy, force bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("%s:click %s", tierName(force), s)
	if force {
		return p.failForced
	}
	return p.failDirect
}

func (p *fakePage) Fill(ctx context.Context, s Strategy, value string, force bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("%s:fill %s", tierName(force), s)
	err := p.failDirect
	if force {
		err = p.failForced
	}
	if err == nil {
		p.values[s.String()] = value
	}
	return err
}

func (p *fakePage) ScriptClick(ctx context.Context, s Strategy) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("scripted:click %s", s)
	return p.failScripted
}

func (p *fakePage) ScriptFill(ctx context.Context, s Strategy, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("scripted:fill %s", s)
	if p.failScripted == nil {
		p.values[s.String()] = value
	}
	return p.failScripted
}

func (p *fakePage) Text(ctx context.Context, s Strategy) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[s.String()], nil
}

func (p *fakePage) WaitVisible(ctx context.Context, s Strategy) error {
	return nil
}

func (p *fakePage) WaitHidden(ctx context.Context, s Strategy) error {
	for {
		p.mu.Lock()
		v := p.visible[s.String()]
		p.mu.Unlock()
		if !v {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (p *fakePage) WaitIdle(ctx context.Context) error {
	return nil
}

func (p *fakePage) Eval(ctx context.Context, expr string, out any) error {
	return errors.New("eval not supported")
}

func (p *fakePage) SetDialogPolicy(d DialogPolicy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = d
	p.record("dialog accept=%v", d.Accept)
}

func (p *fakePage) Dialogs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.dialogs...)
}

func (p *fakePage) Console() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.console...)
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.png, nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	if p.panicOnClose {
		panic("target crashed")
	}
	return nil
}

// fakeEngine hands out fakePages. failFor makes NewPage fail for a label.
type fakeEngine struct {
	mu      sync.Mutex
	pages   map[string]*fakePage
	failFor map[string]error
	setup   func(p *fakePage)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{pages: make(map[string]*fakePage), failFor: make(map[string]error)}
}

func (e *fakeEngine) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.failFor[opts.Label]; err != nil {
		return nil, err
	}
	p := newFakePage(opts.Label)
	p.matchAll = true
	if e.setup != nil {
		e.setup(p)
	}
	e.pages[opts.Label] = p
	return p, nil
}

func (e *fakeEngine) Page(label string) *fakePage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pages[label]
}

func (e *fakeEngine) Close() error {
	return nil
}

// singlePageEngine returns the same page once.
type singlePageEngine struct {
	page Page
}

func (e singlePageEngine) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	return e.page, nil
}

func (e singlePageEngine) Close() error {
	return nil
}

// recordingCapturer remembers labels and returns one Diagnostic per call.
type recordingCapturer struct {
	mu     sync.Mutex
	labels []string
}

func (c *recordingCapturer) Capture(ctx context.Context, label string, sessions []*Session, cause error) []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.labels = append(c.labels, label)
	return []Diagnostic{{Message: cause.Error(), Screenshot: label + ".png", Dump: label + ".txt"}}
}

func (c *recordingCapturer) Labels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.labels...)
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func newTestSession(t *testing.T, page Page, exec *Executor) *Session {
	t.Helper()
	if exec == nil {
		exec = NewExecutor(ExecutorOptions{Logf: t.Logf})
	}
	s, err := CreateSession(context.Background(), singlePageEngine{page: page}, "tester", Credentials{Email: "tester@example.com"}, SessionOptions{
		Timeout:  time.Second,
		Executor: exec,
		Logf:     t.Logf,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
