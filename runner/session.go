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
	"net/url"
	"sync"
	"time"
)

const DefaultActionTimeout = 5 * time.Second

// Role identifies an actor, e.g. "professor" or "student".
type Role string

// Credentials belong to one actor. Token is filled in when a TokenMinter
// pre-authenticates the session.
type Credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"-"`
}

// SessionOptions configure CreateSession.
type SessionOptions struct {
	Timeout  time.Duration // default per-action timeout
	BaseURL  string        // used for the auth cookie domain
	Executor *Executor
	Minter   *TokenMinter
	Logf     func(format string, args ...any)
}

// Session is one actor's isolated browser context and page.
type Session struct {
	Role        Role
	Credentials Credentials

	page    Page
	timeout time.Duration
	exec    *Executor
	logf    func(format string, args ...any)

	// mu serializes browser work so actions run in the order issued.
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// CreateSession opens a page for role. Any failure is a *FatalSetupError.
func CreateSession(ctx context.Context, engine Engine, role Role, creds Credentials, opts SessionOptions) (*Session, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultActionTimeout
	}
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	if opts.Executor == nil {
		opts.Executor = NewExecutor(ExecutorOptions{Logf: opts.Logf})
	}
	page, err := engine.NewPage(ctx, PageOptions{Label: string(role), Timeout: opts.Timeout, Logf: opts.Logf})
	if err != nil {
		return nil, &FatalSetupError{Role: role, Op: "open page", Err: err}
	}
	s := &Session{
		Role:        role,
		Credentials: creds,
		page:        page,
		timeout:     opts.Timeout,
		exec:        opts.Executor,
		logf:        opts.Logf,
	}
	if opts.Minter != nil && opts.BaseURL != "" {
		if err := s.authenticate(ctx, opts.Minter, opts.BaseURL); err != nil {
			s.Close()
			return nil, &FatalSetupError{Role: role, Op: "authenticate", Err: err}
		}
	}
	opts.Logf("Session %s: created (%s)", role, creds.Email)
	return s, nil
}

func (s *Session) authenticate(ctx context.Context, m *TokenMinter, baseURL string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	token, err := m.Mint(s.Role, s.Credentials)
	if err != nil {
		return err
	}
	s.Credentials.Token = token
	return s.page.SetCookie(ctx, Cookie{
		Name:   m.CookieName,
		Value:  token,
		Domain: u.Hostname(),
		Path:   "/",
		Secure: u.Scheme == "https",
	})
}

func (s *Session) setCredentials(c Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Credentials = c
}

// Page exposes the underlying page to phases that need engine-specific work.
func (s *Session) Page() Page {
	return s.page
}

func (s *Session) Timeout() time.Duration {
	return s.timeout
}

func (s *Session) String() string {
	return string(s.Role)
}

// do runs fn under the session lock with the default timeout applied.
func (s *Session) do(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logf("Session %s: navigate %s", s.Role, url)
	return s.do(ctx, func(ctx context.Context) error {
		return s.page.Navigate(ctx, url)
	})
}

func (s *Session) Reload(ctx context.Context) error {
	s.logf("Session %s: reload", s.Role)
	return s.do(ctx, s.page.Reload)
}

func (s *Session) URL(ctx context.Context) (string, error) {
	var u string
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		u, err = s.page.URL(ctx)
		return err
	})
	return u, err
}

// Click performs a resilient click through the session's Executor.
func (s *Session) Click(ctx context.Context, t Target, opts ...ActionOption) error {
	return s.exec.Perform(ctx, s, t, VerbClick, "", opts...)
}

// Fill performs a resilient fill through the session's Executor.
func (s *Session) Fill(ctx context.Context, t Target, value string, opts ...ActionOption) error {
	return s.exec.Perform(ctx, s, t, VerbFill, value, opts...)
}

// Text returns the text of the first element of the first matching strategy.
func (s *Session) Text(ctx context.Context, t Target) (string, error) {
	var text string
	err := s.do(ctx, func(ctx context.Context) error {
		st, err := resolve(ctx, s.page, t)
		if err != nil {
			return fmt.Errorf("%s: %w", t.Description, err)
		}
		text, err = s.page.Text(ctx, st)
		return err
	})
	return text, err
}

// Visible reports whether any strategy of t currently matches, without waiting.
func (s *Session) Visible(ctx context.Context, t Target) bool {
	found := false
	s.do(ctx, func(ctx context.Context) error {
		for _, st := range t.Strategies {
			if n, err := s.page.Count(ctx, st); err == nil && n > 0 {
				found = true
				return nil
			}
		}
		return nil
	})
	return found
}

// WaitVisible waits until t resolves and its element is visible.
func (s *Session) WaitVisible(ctx context.Context, t Target, timeout time.Duration) error {
	return s.wait(ctx, timeout, func(ctx context.Context) error {
		st, err := resolve(ctx, s.page, t)
		if err != nil {
			return fmt.Errorf("%s: %w", t.Description, err)
		}
		return s.page.WaitVisible(ctx, st)
	})
}

// WaitHidden waits until no strategy of t matches a visible element.
func (s *Session) WaitHidden(ctx context.Context, t Target, timeout time.Duration) error {
	return s.wait(ctx, timeout, func(ctx context.Context) error {
		for _, st := range t.Strategies {
			if err := s.page.WaitHidden(ctx, st); err != nil {
				return fmt.Errorf("%s still visible: %w", t.Description, err)
			}
		}
		return nil
	})
}

// WaitIdle waits for network quiescence.
func (s *Session) WaitIdle(ctx context.Context, timeout time.Duration) error {
	return s.wait(ctx, timeout, s.page.WaitIdle)
}

// Eval evaluates a page expression into out.
func (s *Session) Eval(ctx context.Context, expr string, out any) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.page.Eval(ctx, expr, out)
	})
}

func (s *Session) wait(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if timeout <= 0 {
		timeout = s.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// Close releases the page. It is idempotent and tolerates a crashed page.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.closeErr = fmt.Errorf("close %s: %v", s.Role, r)
				}
			}()
			s.closeErr = s.page.Close()
		}()
		s.logf("Session %s: closed", s.Role)
	})
	return s.closeErr
}
