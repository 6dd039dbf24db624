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

// Package pw drives Chromium through Playwright.
package pw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/ttbt-io/phaserunner/runner"
)

const consoleLimit = 200

// Options configure the Playwright driver and browser.
type Options struct {
	// Install downloads the driver and Chromium before starting.
	Install bool
	// RemoteURL attaches to a running Chromium over CDP instead of launching one.
	RemoteURL string
	Headless  bool
	Width     int
	Height    int
	Logf      func(format string, args ...any)
}

// Engine owns the Playwright driver and one browser.
type Engine struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	width   int
	height  int
	logf    func(format string, args ...any)

	mu     sync.Mutex
	closed bool
}

var _ runner.Engine = (*Engine)(nil)

func New(opts Options) (*Engine, error) {
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	var browser playwright.Browser
	if opts.RemoteURL != "" {
		browser, err = pw.Chromium.ConnectOverCDP(opts.RemoteURL)
	} else {
		browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(opts.Headless),
		})
	}
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	e := &Engine{pw: pw, browser: browser, width: opts.Width, height: opts.Height, logf: logf}
	if e.width == 0 || e.height == 0 {
		e.width, e.height = 1280, 900
	}
	return e, nil
}

func (e *Engine) NewPage(ctx context.Context, opts runner.PageOptions) (runner.Page, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, errors.New("engine closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bctx, err := e.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: e.width, Height: e.height},
	})
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	pg, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	if opts.Timeout > 0 {
		pg.SetDefaultTimeout(ms(opts.Timeout))
	}

	logf := e.logf
	if opts.Logf != nil {
		logf = opts.Logf
	}
	p := &Page{bctx: bctx, page: pg, label: opts.Label, logf: logf}
	pg.OnConsole(p.onConsole)
	pg.OnPageError(p.onPageError)
	pg.OnDialog(p.onDialog)
	return p, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return errors.Join(e.browser.Close(), e.pw.Stop())
}

// Page is one page in its own browser context.
type Page struct {
	bctx  playwright.BrowserContext
	page  playwright.Page
	label string
	logf  func(format string, args ...any)

	mu      sync.Mutex
	policy  runner.DialogPolicy
	dialogs []string
	console []string
}

var _ runner.Page = (*Page)(nil)

func (p *Page) onConsole(m playwright.ConsoleMessage) {
	kind := "BROWSER LOG"
	if m.Type() == "error" || m.Type() == "assert" {
		kind = "BROWSER ERROR"
	}
	p.addConsole(fmt.Sprintf("[%s] %s (%s): %s", p.label, kind, m.Type(), m.Text()))
}

func (p *Page) onPageError(err error) {
	p.addConsole(fmt.Sprintf("[%s] BROWSER ERROR (exception): %v", p.label, err))
}

func (p *Page) onDialog(d playwright.Dialog) {
	p.mu.Lock()
	policy := p.policy
	p.dialogs = append(p.dialogs, fmt.Sprintf("%s: %s", d.Type(), d.Message()))
	p.mu.Unlock()
	p.logf("[%s] dialog %s %q accept=%v", p.label, d.Type(), d.Message(), policy.Accept)

	var err error
	switch {
	case !policy.Accept:
		err = d.Dismiss()
	case d.Type() == "prompt" && policy.PromptText != "":
		err = d.Accept(policy.PromptText)
	default:
		err = d.Accept()
	}
	if err != nil {
		p.logf("[%s] handle dialog: %v", p.label, err)
	}
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

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// timeout converts ctx's deadline into a Playwright timeout. Playwright calls
// are not cancellable, so an expired ctx fails before the call is made.
func timeout(ctx context.Context) (*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dl, ok := ctx.Deadline()
	if !ok {
		return nil, nil
	}
	left := time.Until(dl)
	if left <= 0 {
		return nil, context.DeadlineExceeded
	}
	return playwright.Float(ms(left)), nil
}

// cssAttr builds an attribute-equals CSS selector with value quoted.
func cssAttr(attr, value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)
	return fmt.Sprintf(`[%s="%s"]`, attr, r.Replace(value))
}

// selectorFor returns the Playwright selector string for strategies that have
// one. Role and text strategies use the dedicated locator API instead.
func selectorFor(s runner.Strategy) (string, bool) {
	switch s.Kind {
	case runner.KindCSS:
		return "css=" + s.Query, true
	case runner.KindXPath:
		return "xpath=" + s.Query, true
	case runner.KindAttr:
		return "css=" + cssAttr(s.Attr, s.Value), true
	}
	return "", false
}

func (p *Page) locator(s runner.Strategy) (playwright.Locator, error) {
	if sel, ok := selectorFor(s); ok {
		return p.page.Locator(sel), nil
	}
	switch s.Kind {
	case runner.KindRole:
		opts := playwright.PageGetByRoleOptions{Exact: playwright.Bool(s.Exact)}
		if s.Name != "" {
			opts.Name = s.Name
		}
		return p.page.GetByRole(playwright.AriaRole(s.Role), opts), nil
	case runner.KindText:
		return p.page.GetByText(s.Text, playwright.PageGetByTextOptions{Exact: playwright.Bool(s.Exact)}), nil
	}
	return nil, fmt.Errorf("unsupported strategy %s", s)
}

func (p *Page) first(ctx context.Context, s runner.Strategy) (playwright.Locator, *float64, error) {
	to, err := timeout(ctx)
	if err != nil {
		return nil, nil, err
	}
	loc, err := p.locator(s)
	if err != nil {
		return nil, nil, err
	}
	return loc.First(), to, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	to, err := timeout(ctx)
	if err != nil {
		return err
	}
	_, err = p.page.Goto(url, playwright.PageGotoOptions{Timeout: to})
	return err
}

func (p *Page) Reload(ctx context.Context) error {
	to, err := timeout(ctx)
	if err != nil {
		return err
	}
	_, err = p.page.Reload(playwright.PageReloadOptions{Timeout: to})
	return err
}

func (p *Page) URL(ctx context.Context) (string, error) {
	return p.page.URL(), ctx.Err()
}

func (p *Page) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Title()
}

func (p *Page) SetCookie(ctx context.Context, c runner.Cookie) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	return p.bctx.AddCookies([]playwright.OptionalCookie{{
		Name:   c.Name,
		Value:  c.Value,
		Domain: playwright.String(c.Domain),
		Path:   playwright.String(path),
		Secure: playwright.Bool(c.Secure),
	}})
}

func (p *Page) Count(ctx context.Context, s runner.Strategy) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	loc, err := p.locator(s)
	if err != nil {
		return 0, err
	}
	return loc.Count()
}

func (p *Page) Click(ctx context.Context, s runner.Strategy, force bool) error {
	loc, to, err := p.first(ctx, s)
	if err != nil {
		return err
	}
	return loc.Click(playwright.LocatorClickOptions{Force: playwright.Bool(force), Timeout: to})
}

func (p *Page) Fill(ctx context.Context, s runner.Strategy, value string, force bool) error {
	loc, to, err := p.first(ctx, s)
	if err != nil {
		return err
	}
	return loc.Fill(value, playwright.LocatorFillOptions{Force: playwright.Bool(force), Timeout: to})
}

const (
	scriptClick = `el => el.click()`
	scriptFill  = `(el, v) => {
  el.focus();
  if (el.isContentEditable) {
    el.textContent = v;
  } else {
    const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype :
      el instanceof HTMLSelectElement ? HTMLSelectElement.prototype : HTMLInputElement.prototype;
    Object.getOwnPropertyDescriptor(proto, 'value').set.call(el, v);
  }
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
}`
	scriptText = `el => /^(INPUT|TEXTAREA|SELECT)$/.test(el.tagName) ? el.value : (el.innerText || el.textContent || '')`
)

func (p *Page) ScriptClick(ctx context.Context, s runner.Strategy) error {
	loc, to, err := p.first(ctx, s)
	if err != nil {
		return err
	}
	_, err = loc.Evaluate(scriptClick, nil, playwright.LocatorEvaluateOptions{Timeout: to})
	return err
}

func (p *Page) ScriptFill(ctx context.Context, s runner.Strategy, value string) error {
	loc, to, err := p.first(ctx, s)
	if err != nil {
		return err
	}
	_, err = loc.Evaluate(scriptFill, value, playwright.LocatorEvaluateOptions{Timeout: to})
	return err
}

func (p *Page) Text(ctx context.Context, s runner.Strategy) (string, error) {
	loc, to, err := p.first(ctx, s)
	if err != nil {
		return "", err
	}
	v, err := loc.Evaluate(scriptText, nil, playwright.LocatorEvaluateOptions{Timeout: to})
	if err != nil {
		return "", err
	}
	text, _ := v.(string)
	return text, nil
}

func (p *Page) WaitVisible(ctx context.Context, s runner.Strategy) error {
	loc, to, err := p.first(ctx, s)
	if err != nil {
		return err
	}
	return loc.WaitFor(playwright.LocatorWaitForOptions{State: playwright.WaitForSelectorStateVisible, Timeout: to})
}

func (p *Page) WaitHidden(ctx context.Context, s runner.Strategy) error {
	loc, to, err := p.first(ctx, s)
	if err != nil {
		return err
	}
	return loc.WaitFor(playwright.LocatorWaitForOptions{State: playwright.WaitForSelectorStateHidden, Timeout: to})
}

func (p *Page) WaitIdle(ctx context.Context) error {
	to, err := timeout(ctx)
	if err != nil {
		return err
	}
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: to,
	})
}

// Eval round-trips the result through JSON so out behaves as with chromedp.
func (p *Page) Eval(ctx context.Context, expr string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := p.page.Evaluate(expr)
	if err != nil || out == nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
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
	to, err := timeout(ctx)
	if err != nil {
		return nil, err
	}
	return p.page.Screenshot(playwright.PageScreenshotOptions{Timeout: to})
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Content()
}

func (p *Page) Close() error {
	return errors.Join(p.page.Close(), p.bctx.Close())
}
