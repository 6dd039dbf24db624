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
	"sort"
	"strings"
	"time"
)

// PhaseFunc does the work of one attempt.
type PhaseFunc func(ctx context.Context, env *Env) error

// Phase is a named unit of scenario work. It only affects other phases
// through the State and the pages of its sessions.
type Phase struct {
	Name string
	// Actors are the roles whose sessions the phase receives.
	Actors []Role
	// Requires lists State keys that must exist before the phase may run.
	Requires []string
	// Zero values fall back to the Supervisor defaults.
	MaxAttempts int
	Cooldown    time.Duration
	Recovery    *IdentityRecovery
	Run         PhaseFunc
}

// Env is what a phase attempt gets to work with.
type Env struct {
	Phase   string
	Attempt int
	State   *State
	BaseURL string
	Logf    func(format string, args ...any)

	sessions map[Role]*Session
}

// NewEnv binds sessions to an Env. Only the sessions of phase.Actors are kept
// when the phase lists any.
func NewEnv(phase Phase, state *State, baseURL string, sessions map[Role]*Session, logf func(string, ...any)) *Env {
	if logf == nil {
		logf = log.Printf
	}
	env := &Env{
		Phase:    phase.Name,
		State:    state,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Logf:     logf,
		sessions: make(map[Role]*Session),
	}
	if len(phase.Actors) == 0 {
		for r, s := range sessions {
			env.sessions[r] = s
		}
		return env
	}
	for _, r := range phase.Actors {
		if s, ok := sessions[r]; ok {
			env.sessions[r] = s
		}
	}
	return env
}

// Session returns the session of role.
func (e *Env) Session(role Role) (*Session, error) {
	s, ok := e.sessions[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnknownActor, role, e.Phase)
	}
	return s, nil
}

// Sessions returns the phase's sessions ordered by role.
func (e *Env) Sessions() []*Session {
	out := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

// URL joins path to the base URL.
func (e *Env) URL(path string) string {
	if path == "" {
		return e.BaseURL + "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return e.BaseURL + path
}

func (e *Env) withAttempt(n int) *Env {
	c := *e
	c.Attempt = n
	return &c
}

// Diagnostic is the artifact bundle of one session after a failure.
type Diagnostic struct {
	Role       Role   `json:"role"`
	Message    string `json:"message"`
	Screenshot string `json:"screenshot,omitempty"`
	Dump       string `json:"dump,omitempty"`
}

// PhaseResult is the outcome of one attempt. It is kept for reporting only.
type PhaseResult struct {
	Phase       string        `json:"phase"`
	Attempt     int           `json:"attempt"`
	Err         string        `json:"error,omitempty"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
	Started     time.Time     `json:"started"`
	Duration    time.Duration `json:"duration"`
}

func (r PhaseResult) OK() bool {
	return r.Err == ""
}

// PhaseReport collects every attempt of a phase plus its final state.
type PhaseReport struct {
	Phase    string        `json:"phase"`
	Group    string        `json:"group,omitempty"`
	Attempts []PhaseResult `json:"attempts,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`
	Missing  []string      `json:"missing,omitempty"`
	Err      string        `json:"error,omitempty"`

	// Failure is the typed error behind Err. It is not persisted.
	Failure error `json:"-"`
}

func (r *PhaseReport) OK() bool {
	return r.Err == "" && !r.Skipped
}

// Artifacts lists every diagnostic file of the phase.
func (r *PhaseReport) Artifacts() []string {
	var out []string
	for _, a := range r.Attempts {
		for _, d := range a.Diagnostics {
			if d.Screenshot != "" {
				out = append(out, d.Screenshot)
			}
			if d.Dump != "" {
				out = append(out, d.Dump)
			}
		}
	}
	return out
}

// Duration is the time spent across all attempts, cooldowns excluded.
func (r *PhaseReport) Duration() time.Duration {
	var d time.Duration
	for _, a := range r.Attempts {
		d += a.Duration
	}
	return d
}
