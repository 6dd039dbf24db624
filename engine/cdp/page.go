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
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cdptypes "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/ttbt-io/phaserunner/runner"
)

const (
	consoleLimit = 200
	pollInterval = 100 * time.Millisecond
	idleQuiet    = 500 * time.Millisecond
)

// Page is one tab in its own browser context.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	label  string
	logf   func(format string, args ...any)
	tags   atomic.Int64

	mu       sync.Mutex
	policy   runner.DialogPolicy
	dialogs  []string
	console  []string
	inflight map[network.RequestID]struct{}
	lastNet  time.Time
}

var _ runner.Page = (*Page)(nil)

func newPage(ctx context.Context, cancel context.CancelFunc, opts runner.PageOptions, logf func(string, ...any)) *Page {
	if opts.Logf != nil {
		logf = opts.Logf
	}
	p := &Page{
		ctx:      ctx,
		cancel:   cancel,
		label:    opts.Label,
		logf:     logf,
		inflight: make(map[network.RequestID]struct{}),
		lastNet:  time.Now(),
	}
	chromedp.ListenTarget(ctx, p.onEvent)
	return p
}

func (p *Page) onEvent(ev any) {
	switch ev := ev.(type) {
	case *cdpruntime.EventConsoleAPICalled:
		args := make([]string, len(ev.Args))
		for i, arg := range ev.Args {
			if len(arg.Value) > 0 {
				args[i] = strings.Trim(string(arg.Value), `"`)
			} else {
				args[i] = arg.Description
			}
		}
		kind := "BROWSER LOG"
		if ev.Type == cdpruntime.APITypeError || ev.Type == cdpruntime.APITypeAssert {
			kind = "BROWSER ERROR"
		}
		p.addConsole(fmt.Sprintf("[%s] %s (%s): %s", p.label, kind, ev.Type, strings.Join(args, " ")))
	case *cdpruntime.EventExceptionThrown:
		msg := ""
		if d := ev.ExceptionDetails; d != nil {
			msg = d.Text
			if d.Exception != nil && d.Exception.Description != "" {
				msg = d.Exception.Description
			}
		}
		p.addConsole(fmt.Sprintf("[%s] BROWSER ERROR (exception): %s", p.label, msg))
	case *cdppage.EventJavascriptDialogOpening:
		p.mu.Lock()
		policy := p.policy
		p.dialogs = append(p.dialogs, fmt.Sprintf("%s: %s", ev.Type, ev.Message))
		p.mu.Unlock()
		p.logf("[%s] dialog %s %q accept=%v", p.label, ev.Type, ev.Message, policy.Accept)
		// Event handlers must not block on the target.
		go func() {
			action := cdppage.HandleJavaScriptDialog(policy.Accept)
			if ev.Type == cdppage.DialogTypePrompt && policy.PromptText != "" {
				action = action.WithPromptText(policy.PromptText)
			}
			if err := chromedp.Run(p.ctx, action); err != nil {
				p.logf("[%s] handle dialog: %v", p.label, err)
			}
		}()
	case *network.EventRequestWillBeSent:
		p.mu.Lock()
		p.inflight[ev.RequestID] = struct{}{}
		p.lastNet = time.Now()
		p.mu.Unlock()
	case *network.EventLoadingFinished:
		p.requestDone(ev.RequestID)
	case *network.EventLoadingFailed:
		p.requestDone(ev.RequestID)
	}
}

func (p *Page) requestDone(id network.RequestID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, id)
	p.lastNet = time.Now()
}

func (p *Page) addConsole(line string) {
	p.logf("%s", line)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.console = append(p.console, line)
	if len(p.console) > consoleLimit {
		p.console = p.console[len(p.console)-consoleLimit:]
	}
}

// bind derives a context that carries the tab from p.ctx and the deadline and
// cancellation of the caller's ctx.
func (p *Page) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	rctx, cancel := context.WithCancel(p.ctx)
	stop := context.AfterFunc(ctx, cancel)
	if dl, ok := ctx.Deadline(); ok {
		dctx, dcancel := context.WithDeadline(rctx, dl)
		return dctx, func() { dcancel(); stop(); cancel() }
	}
	return rctx, func() { stop(); cancel() }
}

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, cancel := p.bind(ctx)
	defer cancel()
	return chromedp.Run(rctx, actions...)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *Page) Reload(ctx context.Context) error {
	return p.run(ctx, chromedp.Reload())
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

func (p *Page) Title(ctx context.Context) (string, error) {
	var t string
	err := p.run(ctx, chromedp.Title(&t))
	return t, err
}

func (p *Page) SetCookie(ctx context.Context, c runner.Cookie) error {
	path := c.Path
	if path == "" {
		path = "/"
	}
	return p.run(ctx, network.SetCookie(c.Name, c.Value).
		WithDomain(c.Domain).
		WithPath(path).
		WithSecure(c.Secure))
}

func (p *Page) Count(ctx context.Context, s runner.Strategy) (int, error) {
	var n int
	err := p.run(ctx, chromedp.Evaluate(countExpr(s, false), &n))
	return n, err
}

// selector returns a chromedp selector for the first match of s, tagging the
// element when s has no native form.
func (p *Page) selector(ctx context.Context, s runner.Strategy) (string, error) {
	if sel, ok := nativeSelector(s); ok {
		return sel, nil
	}
	tag := p.tags.Add(1)
	var found bool
	if err := chromedp.Evaluate(tagExpr(s, tag), &found).Do(ctx); err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%s: %w", s, runner.ErrTargetNotFound)
	}
	return tagSelector(tag), nil
}

func (p *Page) first(ctx context.Context, s runner.Strategy) (*cdptypes.Node, error) {
	sel, err := p.selector(ctx, s)
	if err != nil {
		return nil, err
	}
	var nodes []*cdptypes.Node
	if err := chromedp.Nodes(sel, &nodes, chromedp.ByQuery).Do(ctx); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%s: %w", s, runner.ErrTargetNotFound)
	}
	return nodes[0], nil
}

// Click uses chromedp's mouse click. Without force it waits for the element to
// be visible; with force it clicks the first match wherever it is.
func (p *Page) Click(ctx context.Context, s runner.Strategy, force bool) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if force {
			n, err := p.first(ctx, s)
			if err != nil {
				return err
			}
			return chromedp.MouseClickNode(n).Do(ctx)
		}
		sel, err := p.selector(ctx, s)
		if err != nil {
			return err
		}
		return chromedp.Click(sel, chromedp.ByQuery).Do(ctx)
	}))
}

// Fill types value into the element. With force the element is focused and the
// text inserted without waiting for visibility.
func (p *Page) Fill(ctx context.Context, s runner.Strategy, value string, force bool) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		sel, err := p.selector(ctx, s)
		if err != nil {
			return err
		}
		if force {
			return chromedp.Tasks{
				chromedp.SetValue(sel, "", chromedp.ByQuery, chromedp.NodeReady),
				chromedp.Focus(sel, chromedp.ByQuery, chromedp.NodeReady),
				input.InsertText(value),
			}.Do(ctx)
		}
		return chromedp.Tasks{
			chromedp.Clear(sel, chromedp.ByQuery),
			chromedp.SendKeys(sel, value, chromedp.ByQuery),
		}.Do(ctx)
	}))
}

func (p *Page) script(ctx context.Context, s runner.Strategy, expr string) error {
	var found bool
	if err := p.run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", s, runner.ErrTargetNotFound)
	}
	return nil
}

func (p *Page) ScriptClick(ctx context.Context, s runner.Strategy) error {
	return p.script(ctx, s, clickExpr(s))
}

func (p *Page) ScriptFill(ctx context.Context, s runner.Strategy, value string) error {
	return p.script(ctx, s, fillExpr(s, value))
}

func (p *Page) Text(ctx context.Context, s runner.Strategy) (string, error) {
	var text *string
	if err := p.run(ctx, chromedp.Evaluate(textExpr(s), &text)); err != nil {
		return "", err
	}
	if text == nil {
		return "", fmt.Errorf("%s: %w", s, runner.ErrTargetNotFound)
	}
	return *text, nil
}

// poll evaluates the visible-match count until done accepts it.
func (p *Page) poll(ctx context.Context, s runner.Strategy, done func(n int) bool) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		expr := countExpr(s, true)
		for {
			var n int
			if err := chromedp.Evaluate(expr, &n).Do(ctx); err == nil && done(n) {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}))
}

func (p *Page) WaitVisible(ctx context.Context, s runner.Strategy) error {
	return p.poll(ctx, s, func(n int) bool { return n > 0 })
}

// WaitHidden succeeds once no match is visible, including when none exists.
func (p *Page) WaitHidden(ctx context.Context, s runner.Strategy) error {
	return p.poll(ctx, s, func(n int) bool { return n == 0 })
}

// WaitIdle waits until no request has been in flight for idleQuiet.
func (p *Page) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		idle := len(p.inflight) == 0 && time.Since(p.lastNet) >= idleQuiet
		p.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.ctx.Done():
			return p.ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Page) Eval(ctx context.Context, expr string, out any) error {
	return p.run(ctx, chromedp.Evaluate(expr, out))
}

func (p *Page) SetDialogPolicy(policy runner.DialogPolicy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

func (p *Page) Dialogs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.dialogs...)
}

func (p *Page) Console() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.console...)
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Close closes the tab and disposes of its browser context. A tab that already
// crashed reports the close error but is released all the same.
func (p *Page) Close() error {
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}
