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
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTargetNotFound = errors.New("no strategy matched any element")
	ErrNoStrategy     = errors.New("target has no strategies")
	ErrSessionClosed  = errors.New("session closed")
	ErrUnknownPhase   = errors.New("unknown phase")
	ErrUnknownActor   = errors.New("actor not available to phase")
)

// ActionError is returned when a single UI action failed on every tier.
type ActionError struct {
	Target string
	Verb   Verb
	Tier   Tier // last tier attempted
	Cause  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %q failed after %s: %v", e.Verb, e.Target, e.Tier, e.Cause)
}

func (e *ActionError) Unwrap() error {
	return e.Cause
}

// PhaseFailure is returned by the Supervisor once a phase exhausted its attempts.
type PhaseFailure struct {
	Phase    string
	Attempts int
	Err      error
}

func (e *PhaseFailure) Error() string {
	return fmt.Sprintf("phase %q failed after %d attempt(s): %v", e.Phase, e.Attempts, e.Err)
}

func (e *PhaseFailure) Unwrap() error {
	return e.Err
}

// FatalSetupError ends a run before any phase can execute.
type FatalSetupError struct {
	Role Role
	Op   string
	Err  error
}

func (e *FatalSetupError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("setup %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("setup %s for %s: %v", e.Op, e.Role, e.Err)
}

func (e *FatalSetupError) Unwrap() error {
	return e.Err
}

// MissingKeyError reports shared state keys that no phase has produced yet.
type MissingKeyError struct {
	Keys []string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing scenario state: %s", strings.Join(e.Keys, ", "))
}

// IsFatal reports whether err must end the whole run.
func IsFatal(err error) bool {
	var fe *FatalSetupError
	return errors.As(err, &fe)
}
