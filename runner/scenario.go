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
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFatal    Status = "fatal"
)

// Report is the outcome of one run.
type Report struct {
	RunID    string            `json:"runId"`
	Status   Status            `json:"status"`
	Started  time.Time         `json:"started"`
	Finished time.Time         `json:"finished"`
	Phases   []*PhaseReport    `json:"phases"`
	NotRun   []string          `json:"notRun,omitempty"`
	Fatal    string            `json:"fatal,omitempty"`
	State    map[string]string `json:"state,omitempty"`
	Latency  *Histogram        `json:"latency,omitempty"`
}

// Failures returns the phases that failed after retries or were skipped.
func (r *Report) Failures() []*PhaseReport {
	var out []*PhaseReport
	for _, p := range r.Phases {
		if !p.OK() {
			out = append(out, p)
		}
	}
	return out
}

// ExitCode is 0 only when every phase succeeded.
func (r *Report) ExitCode() int {
	if r.Status == StatusOK {
		return 0
	}
	return 1
}

// Summary writes a human readable account of the run.
func (r *Report) Summary(w io.Writer) {
	fmt.Fprintf(w, "Run %s: %s (%d phases, %d failed) in %s\n",
		r.RunID, strings.ToUpper(string(r.Status)), len(r.Phases), len(r.Failures()),
		r.Finished.Sub(r.Started).Round(time.Millisecond))
	if r.Fatal != "" {
		fmt.Fprintf(w, "  FATAL: %s\n", r.Fatal)
	}
	for _, p := range r.Phases {
		switch {
		case p.Skipped:
			fmt.Fprintf(w, "  SKIP  %s (missing %s)\n", p.Phase, strings.Join(p.Missing, ", "))
		case p.OK():
			fmt.Fprintf(w, "  OK    %s (%d attempt(s))\n", p.Phase, len(p.Attempts))
		default:
			fmt.Fprintf(w, "  FAIL  %s: %s\n", p.Phase, p.Err)
			for _, a := range p.Artifacts() {
				fmt.Fprintf(w, "        %s\n", a)
			}
		}
	}
	for _, n := range r.NotRun {
		fmt.Fprintf(w, "  --    %s (not run)\n", n)
	}
	if r.Latency != nil && r.Latency.Count > 0 {
		fmt.Fprintf(w, "Attempt latency: mean %s, p50 <= %s, p95 <= %s\n",
			r.Latency.Mean(), r.Latency.Quantile(0.5), r.Latency.Quantile(0.95))
	}
}

// Runner drives a Plan: it opens one Session per actor, runs each group
// through the Supervisor and decides the run's Status.
type Runner struct {
	// RunID names the run in logs, the journal and the state mirror. A fresh
	// id is used when empty.
	RunID   string
	Engine  Engine
	BaseURL string
	// Domain is used for generated identities.
	Domain     string
	Timeout    time.Duration
	State      *State
	Supervisor *Supervisor
	Executor   *Executor
	Minter     *TokenMinter
	Metrics    *Metrics
	Journal    *Journal
	Logf       func(format string, args ...any)
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Run executes plan. The returned Report is never nil.
func (r *Runner) Run(ctx context.Context, plan Plan) *Report {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	runID := r.RunID
	if r.State == nil {
		r.State = NewState()
	}
	if r.Supervisor == nil {
		r.Supervisor = &Supervisor{Metrics: r.Metrics, Logf: r.Logf}
	}
	if r.Executor == nil {
		r.Executor = NewExecutor(ExecutorOptions{Capturer: r.Supervisor.Capturer, Metrics: r.Metrics, Logf: r.Logf})
	}
	latency := r.Supervisor.Latency
	if latency == nil {
		latency = &Histogram{}
		r.Supervisor.Latency = latency
	}
	rep := &Report{RunID: runID, Started: time.Now(), Latency: latency}
	defer func() {
		rep.Finished = time.Now()
		rep.State = r.State.Snapshot()
		rep.Status = rep.status()
		r.Metrics.setRunFailures(len(rep.Failures()))
		if r.Journal != nil {
			if err := r.Journal.Save(rep); err != nil {
				r.logf("Runner: journal: %v", err)
			}
		}
		r.logf("Runner: run %s finished: %s", runID, rep.Status)
	}()

	r.logf("Runner: run %s with %d group(s) against %s", runID, len(plan.Groups), r.BaseURL)
	if err := r.State.Reset(ctx); err != nil {
		r.logf("Runner: state reset: %v", err)
	}
	if err := plan.Validate(); err != nil {
		r.fatal(rep, plan, 0, &FatalSetupError{Op: "validate plan", Err: err})
		return rep
	}

	sessions, err := r.openSessions(ctx, plan.Actors)
	defer func() {
		for _, s := range sessions {
			if err := s.Close(); err != nil {
				r.logf("Runner: %v", err)
			}
		}
	}()
	if err != nil {
		r.fatal(rep, plan, 0, err)
		return rep
	}

	for i, g := range plan.Groups {
		if err := ctx.Err(); err != nil {
			r.fatal(rep, plan, i, err)
			return rep
		}
		reports := r.runGroup(ctx, g, sessions)
		rep.Phases = append(rep.Phases, reports...)
		if g.Kind != GroupRequired {
			continue
		}
		for _, pr := range reports {
			if !pr.OK() {
				r.fatal(rep, plan, i+1, fmt.Errorf("required group %q failed: %s", g.Name, pr.Err))
				return rep
			}
		}
	}
	return rep
}

func (rep *Report) status() Status {
	switch {
	case rep.Fatal != "":
		return StatusFatal
	case len(rep.Failures()) > 0:
		return StatusDegraded
	}
	return StatusOK
}

// fatal records err and marks every phase from group next on as not run.
func (r *Runner) fatal(rep *Report, plan Plan, next int, err error) {
	r.logf("Runner: FATAL: %v", err)
	rep.Fatal = err.Error()
	for _, g := range plan.Groups[min(next, len(plan.Groups)):] {
		for _, p := range g.Phases {
			rep.NotRun = append(rep.NotRun, p.Name)
		}
	}
}

func (r *Runner) openSessions(ctx context.Context, actors []Actor) (map[Role]*Session, error) {
	sessions := make(map[Role]*Session)
	for _, a := range actors {
		creds := a.Credentials
		if creds.Email == "" {
			prefix := a.Prefix
			if prefix == "" {
				prefix = string(a.Role)
			}
			creds = NewIdentity(prefix, r.Domain)
		}
		s, err := CreateSession(ctx, r.Engine, a.Role, creds, SessionOptions{
			Timeout:  r.Timeout,
			BaseURL:  r.BaseURL,
			Executor: r.Executor,
			Minter:   r.Minter,
			Logf:     r.Logf,
		})
		if err != nil {
			return sessions, err
		}
		sessions[a.Role] = s
	}
	return sessions, nil
}

// runGroup returns one report per member, in member order.
func (r *Runner) runGroup(ctx context.Context, g Group, sessions map[Role]*Session) []*PhaseReport {
	out := make([]*PhaseReport, len(g.Phases))
	if missing := r.State.Missing(g.Requires...); len(missing) > 0 {
		r.logf("Runner: skipping group %s, missing %s", g.Name, strings.Join(missing, ", "))
		for i, p := range g.Phases {
			out[i] = skipped(g, p, missing)
		}
		return out
	}

	r.logf("Runner: group %s (%s, %d phase(s))", g.Name, g.Kind, len(g.Phases))
	if !g.Parallel || len(g.Phases) < 2 {
		for i, p := range g.Phases {
			out[i] = r.runPhase(ctx, g, p, sessions)
		}
		return out
	}

	// Members record their own failures and never cancel each other.
	var eg errgroup.Group
	if g.Limit > 0 {
		eg.SetLimit(g.Limit)
	}
	for i, p := range g.Phases {
		eg.Go(func() error {
			out[i] = r.runPhase(ctx, g, p, sessions)
			return nil
		})
	}
	eg.Wait()
	return out
}

func (r *Runner) runPhase(ctx context.Context, g Group, p Phase, sessions map[Role]*Session) *PhaseReport {
	if missing := r.State.Missing(p.Requires...); len(missing) > 0 {
		r.logf("Runner: skipping phase %s, missing %s", p.Name, strings.Join(missing, ", "))
		return skipped(g, p, missing)
	}
	env := NewEnv(p, r.State, r.BaseURL, sessions, r.Logf)
	pr, _ := r.Supervisor.Run(ctx, p, env)
	pr.Group = g.Name
	return pr
}

func skipped(g Group, p Phase, missing []string) *PhaseReport {
	err := &MissingKeyError{Keys: missing}
	return &PhaseReport{
		Phase:   p.Name,
		Group:   g.Name,
		Skipped: true,
		Missing: missing,
		Err:     "skipped: " + err.Error(),
		Failure: err,
	}
}
