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
	"sync/atomic"
	"time"
)

// resolvePoll is how often strategies are re-counted while a target is
// not yet on the page.
const resolvePoll = 200 * time.Millisecond

// ExecutorOptions configure NewExecutor. All fields are optional.
type ExecutorOptions struct {
	Capturer Capturer
	Metrics  *Metrics
	Logf     func(format string, args ...any)
}

// Executor performs single UI actions with tiered fallbacks.
type Executor struct {
	capturer Capturer
	metrics  *Metrics
	logf     func(format string, args ...any)
	seq      atomic.Int64
}

func NewExecutor(opts ExecutorOptions) *Executor {
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	return &Executor{
		capturer: opts.Capturer,
		metrics:  opts.Metrics,
		logf:     opts.Logf,
	}
}

type actionConfig struct {
	timeout time.Duration
	dialog  *DialogPolicy
}

// ActionOption tweaks a single Perform call.
type ActionOption func(*actionConfig)

// WithTimeout overrides the session's per-tier timeout for one action.
func WithTimeout(d time.Duration) ActionOption {
	return func(c *actionConfig) {
		c.timeout = d
	}
}

// ExpectDialog declares that the action opens a native dialog. The policy is
// installed on the page before the action is issued.
func ExpectDialog(accept bool, promptText string) ActionOption {
	return func(c *actionConfig) {
		c.dialog = &DialogPolicy{Accept: accept, PromptText: promptText}
	}
}

// Click is shorthand for Perform with VerbClick.
func (e *Executor) Click(ctx context.Context, s *Session, t Target, opts ...ActionOption) error {
	return e.Perform(ctx, s, t, VerbClick, "", opts...)
}

// Fill is shorthand for Perform with VerbFill.
func (e *Executor) Fill(ctx context.Context, s *Session, t Target, value string, opts ...ActionOption) error {
	return e.Perform(ctx, s, t, VerbFill, value, opts...)
}

// Perform resolves t to the first strategy that matches anything, then tries
// the direct, forced and scripted tiers in order until one returns nil.
// A later tier never runs after an earlier one succeeded.
func (e *Executor) Perform(ctx context.Context, s *Session, t Target, verb Verb, value string, opts ...ActionOption) error {
	cfg := actionConfig{timeout: s.timeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.timeout <= 0 {
		cfg.timeout = DefaultActionTimeout
	}

	tier, err := e.perform(ctx, s, t, verb, value, cfg)
	if err == nil {
		e.metrics.observeAction(verb, tier, true)
		return nil
	}
	e.metrics.observeAction(verb, tier, false)
	aerr := &ActionError{Target: t.Description, Verb: verb, Tier: tier, Cause: err}
	e.logf("Action: %s %q failed on %s: %v", verb, t.Description, s.Role, err)
	if e.capturer != nil {
		label := fmt.Sprintf("action-%04d-%s-%s", e.seq.Add(1), verb, Slug(t.Description))
		for _, d := range e.capturer.Capture(ctx, label, []*Session{s}, aerr) {
			e.logf("Action: diagnostics %s %s", d.Screenshot, d.Dump)
		}
	}
	return aerr
}

func (e *Executor) perform(ctx context.Context, s *Session, t Target, verb Verb, value string, cfg actionConfig) (Tier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return TierNone, ErrSessionClosed
	}
	if len(t.Strategies) == 0 {
		return TierNone, ErrNoStrategy
	}
	if cfg.dialog != nil {
		s.page.SetDialogPolicy(*cfg.dialog)
	}

	rctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	st, err := resolve(rctx, s.page, t)
	cancel()
	if err != nil {
		return TierNone, err
	}

	var last Tier
	for _, tier := range tiers {
		if cerr := ctx.Err(); cerr != nil {
			if err == nil {
				err = cerr
			}
			break
		}
		last = tier
		tctx, cancel := context.WithTimeout(ctx, cfg.timeout)
		err = attempt(tctx, s.page, tier, verb, st, value)
		cancel()
		if err == nil {
			e.logf("Action: %s %q via %s [%s] on %s", verb, t.Description, tier, st, s.Role)
			return tier, nil
		}
		e.logf("Action: %s %q %s tier failed: %v", verb, t.Description, tier, err)
	}
	return last, err
}

func attempt(ctx context.Context, p Page, tier Tier, verb Verb, st Strategy, value string) error {
	switch tier {
	case TierDirect, TierForced:
		force := tier == TierForced
		if verb == VerbFill {
			return p.Fill(ctx, st, value, force)
		}
		return p.Click(ctx, st, force)
	case TierScripted:
		if verb == VerbFill {
			return p.ScriptFill(ctx, st, value)
		}
		return p.ScriptClick(ctx, st)
	}
	return fmt.Errorf("unknown tier %d", tier)
}

// resolve returns the first strategy of t that matches at least one element,
// polling until ctx expires.
func resolve(ctx context.Context, p Page, t Target) (Strategy, error) {
	if len(t.Strategies) == 0 {
		return Strategy{}, ErrNoStrategy
	}
	ticker := time.NewTicker(resolvePoll)
	defer ticker.Stop()
	for {
		for _, st := range t.Strategies {
			if n, err := p.Count(ctx, st); err == nil && n > 0 {
				return st, nil
			}
		}
		select {
		case <-ctx.Done():
			return Strategy{}, ErrTargetNotFound
		case <-ticker.C:
		}
	}
}
