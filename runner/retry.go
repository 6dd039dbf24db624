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
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultCooldown    = 10 * time.Second
)

// Supervisor runs a phase until it succeeds or its attempts are exhausted.
// Sessions are not recreated between attempts unless the phase carries an
// IdentityRecovery.
type Supervisor struct {
	MaxAttempts int
	Cooldown    time.Duration
	Capturer    Capturer
	Metrics     *Metrics
	Latency     *Histogram
	// Sleep waits out the cooldown. Defaults to a ctx-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	Logf  func(format string, args ...any)
}

func (s *Supervisor) logf(format string, args ...any) {
	if s.Logf != nil {
		s.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (s *Supervisor) limits(p Phase) (int, time.Duration) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = s.MaxAttempts
	}
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	// A negative cooldown means none.
	cooldown := p.Cooldown
	if cooldown == 0 {
		cooldown = s.Cooldown
	}
	if cooldown == 0 {
		cooldown = DefaultCooldown
	}
	if cooldown < 0 {
		cooldown = 0
	}
	return attempts, cooldown
}

// Run executes p with env. It returns a *PhaseFailure wrapping the last error
// once every attempt has failed. Diagnostics are captured after each failed
// attempt, including the last.
func (s *Supervisor) Run(ctx context.Context, p Phase, env *Env) (*PhaseReport, error) {
	maxAttempts, cooldown := s.limits(p)
	report := &PhaseReport{Phase: p.Name}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			s.applyRecovery(ctx, p, env, attempt)
		}
		s.logf("Phase %s: attempt %d/%d", p.Name, attempt, maxAttempts)
		start := time.Now()
		err := invoke(ctx, p, env.withAttempt(attempt))
		res := PhaseResult{
			Phase:    p.Name,
			Attempt:  attempt,
			Started:  start,
			Duration: time.Since(start),
		}
		s.Metrics.observeAttempt(p.Name, res.Duration, err == nil)
		if s.Latency != nil {
			s.Latency.Add(res.Duration)
		}
		if err == nil {
			report.Attempts = append(report.Attempts, res)
			s.logf("Phase %s: succeeded on attempt %d (%s)", p.Name, attempt, res.Duration.Round(time.Millisecond))
			return report, nil
		}

		lastErr = err
		res.Err = err.Error()
		s.logf("Phase %s: attempt %d failed: %v", p.Name, attempt, err)
		if s.Capturer != nil {
			label := fmt.Sprintf("%s-attempt%d", Slug(p.Name), attempt)
			res.Diagnostics = s.Capturer.Capture(ctx, label, env.Sessions(), err)
		}
		report.Attempts = append(report.Attempts, res)

		if attempt < maxAttempts {
			s.logf("Phase %s: cooling down %s", p.Name, cooldown)
			if err := s.sleep(ctx, cooldown); err != nil {
				lastErr = fmt.Errorf("%w (after: %v)", err, lastErr)
				break
			}
		}
	}

	failure := &PhaseFailure{Phase: p.Name, Attempts: len(report.Attempts), Err: lastErr}
	report.Err = failure.Error()
	report.Failure = failure
	return report, failure
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Supervisor) applyRecovery(ctx context.Context, p Phase, env *Env, attempt int) {
	action := p.Recovery.For(attempt)
	if action == RecoverNone {
		return
	}
	for _, sess := range env.Sessions() {
		if action == RecoverNewIdentity {
			creds := p.Recovery.NewIdentity(sess.Role)
			sess.setCredentials(creds)
			s.logf("Phase %s: %s now uses %s", p.Name, sess.Role, creds.Email)
		}
		if err := sess.Reload(ctx); err != nil {
			s.logf("Phase %s: %s before attempt %d: %v", p.Name, action, attempt, err)
		}
	}
}

// invoke turns a panicking phase into an error.
func invoke(ctx context.Context, p Phase, env *Env) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if p.Run == nil {
		return fmt.Errorf("%w: %s has no body", ErrUnknownPhase, p.Name)
	}
	return p.Run(ctx, env)
}
