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
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pmezard/go-difflib/difflib"
)

// Capturer records the state of sessions after a failure. label names the
// failure deterministically, e.g. "create-class-attempt2".
type Capturer interface {
	Capture(ctx context.Context, label string, sessions []*Session, cause error) []Diagnostic
}

// DefaultBannerSelector finds visible error messages in typical app markup.
const DefaultBannerSelector = `.text-red-600, .text-red-500, .error, .alert-danger, [role="alert"]`

const captureTimeout = 5 * time.Second

// FileCapturer writes <label>-<role>.png and <label>-<role>.txt into Dir.
type FileCapturer struct {
	Dir            string
	BannerSelector string
	// ConsoleTail bounds how many console lines go into a dump.
	ConsoleTail int
	Logf        func(format string, args ...any)

	mu   sync.Mutex
	prev map[string]string // previous visible text per phase and role
}

func NewFileCapturer(dir string) *FileCapturer {
	return &FileCapturer{
		Dir:            dir,
		BannerSelector: DefaultBannerSelector,
		ConsoleTail:    50,
		Logf:           log.Printf,
		prev:           make(map[string]string),
	}
}

func (c *FileCapturer) Capture(ctx context.Context, label string, sessions []*Session, cause error) []Diagnostic {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		c.Logf("Diagnostics: %v", err)
		return nil
	}
	var out []Diagnostic
	for _, s := range sessions {
		out = append(out, c.captureOne(ctx, label, s, cause))
	}
	return out
}

func (c *FileCapturer) captureOne(ctx context.Context, label string, s *Session, cause error) Diagnostic {
	base := filepath.Join(c.Dir, fmt.Sprintf("%s-%s", label, Slug(string(s.Role))))
	d := Diagnostic{Role: s.Role}
	if cause != nil {
		d.Message = cause.Error()
	}
	snap := s.snapshot(ctx, captureTimeout)

	if len(snap.png) > 0 {
		if err := os.WriteFile(base+".png", snap.png, 0o644); err != nil {
			c.Logf("Diagnostics: %v", err)
		} else {
			d.Screenshot = base + ".png"
		}
	}

	text, banners := c.extract(snap.html)
	key := strings.TrimRight(attemptSuffix.ReplaceAllString(label, ""), "-") + "/" + string(s.Role)
	c.mu.Lock()
	if c.prev == nil {
		c.prev = make(map[string]string)
	}
	prev, hadPrev := c.prev[key]
	c.prev[key] = text
	c.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "label:    %s\n", label)
	fmt.Fprintf(&b, "role:     %s\n", s.Role)
	fmt.Fprintf(&b, "identity: %s\n", s.Credentials.Email)
	fmt.Fprintf(&b, "time:     %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "error:    %s\n", d.Message)
	fmt.Fprintf(&b, "url:      %s\n", snap.url)
	fmt.Fprintf(&b, "title:    %s\n", snap.title)
	for _, e := range snap.errs {
		fmt.Fprintf(&b, "capture:  %v\n", e)
	}
	section(&b, "error banners", banners)
	section(&b, "console", tail(snap.console, c.ConsoleTail))
	section(&b, "dialogs", snap.dialogs)
	section(&b, "visible text", []string{text})
	if hadPrev && prev != text {
		diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(prev),
			B:        difflib.SplitLines(text),
			FromFile: "previous",
			ToFile:   "current",
			Context:  2,
		})
		section(&b, "changes since previous attempt", []string{diff})
	}

	if err := os.WriteFile(base+".txt", []byte(b.String()), 0o644); err != nil {
		c.Logf("Diagnostics: %v", err)
	} else {
		d.Dump = base + ".txt"
	}
	c.Logf("Diagnostics: %s saved for %s", label, s.Role)
	return d
}

var attemptSuffix = regexp.MustCompile(`attempt\d+$`)

// extract returns the page's visible text, one block per line, and the texts
// of error banners.
func (c *FileCapturer) extract(html string) (string, []string) {
	if html == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", []string{fmt.Sprintf("parse html: %v", err)}
	}
	doc.Find("script, style, noscript, template").Remove()

	var banners []string
	if c.BannerSelector != "" {
		doc.Find(c.BannerSelector).Each(func(_ int, sel *goquery.Selection) {
			if t := collapse(sel.Text()); t != "" {
				banners = append(banners, t)
			}
		})
	}

	var lines []string
	for _, l := range strings.Split(doc.Find("body").Text(), "\n") {
		if l = collapse(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n"), banners
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func section(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "\n-- %s --\n", title)
	for _, l := range lines {
		b.WriteString(l)
		if !strings.HasSuffix(l, "\n") {
			b.WriteByte('\n')
		}
	}
}

func tail(lines []string, n int) []string {
	if n > 0 && len(lines) > n {
		return lines[len(lines)-n:]
	}
	return lines
}

var slugRE = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a phase or target description into a file name fragment.
func Slug(s string) string {
	s = strings.Trim(slugRE.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(s) > 60 {
		s = strings.TrimRight(s[:60], "-")
	}
	if s == "" {
		return "unnamed"
	}
	return s
}

type snapshot struct {
	url, title, html string
	png              []byte
	console, dialogs []string
	errs             []error
}

// snapshot gathers what the page can still tell us. Individual failures are
// recorded, never returned.
func (s *Session) snapshot(ctx context.Context, timeout time.Duration) (snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		snap.errs = append(snap.errs, ErrSessionClosed)
		return snap
	}
	defer func() {
		if r := recover(); r != nil {
			snap.errs = append(snap.errs, fmt.Errorf("page crashed: %v", r))
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	if snap.url, err = s.page.URL(ctx); err != nil {
		snap.errs = append(snap.errs, fmt.Errorf("url: %w", err))
	}
	if snap.title, err = s.page.Title(ctx); err != nil {
		snap.errs = append(snap.errs, fmt.Errorf("title: %w", err))
	}
	if snap.png, err = s.page.Screenshot(ctx); err != nil {
		snap.errs = append(snap.errs, fmt.Errorf("screenshot: %w", err))
	}
	if snap.html, err = s.page.HTML(ctx); err != nil {
		snap.errs = append(snap.errs, fmt.Errorf("html: %w", err))
	}
	snap.console = s.page.Console()
	snap.dialogs = s.page.Dialogs()
	return snap
}
