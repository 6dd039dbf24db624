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
	"strings"

	"github.com/google/uuid"
)

const DefaultPassword = "Password123!"

// NewIdentity returns credentials with a unique email such as
// prof_1a2b3c4d@example.com.
func NewIdentity(prefix, domain string) Credentials {
	if domain == "" {
		domain = "example.com"
	}
	if prefix == "" {
		prefix = "user"
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return Credentials{
		Name:     strings.ToUpper(prefix[:1]) + prefix[1:] + " " + id,
		Email:    prefix + "_" + id + "@" + domain,
		Password: DefaultPassword,
	}
}

// IdentityRecovery decides how a phase that registers or joins recovers
// between attempts. The first Reloads retries reload the page and keep the
// identity; later retries rotate the actor to NewIdentity.
type IdentityRecovery struct {
	Reloads     int
	NewIdentity func(role Role) Credentials
}

// RecoveryAction is what IdentityRecovery.For asks for before a retry.
type RecoveryAction int

const (
	RecoverNone RecoveryAction = iota
	RecoverReload
	RecoverNewIdentity
)

func (a RecoveryAction) String() string {
	switch a {
	case RecoverReload:
		return "reload"
	case RecoverNewIdentity:
		return "new identity"
	}
	return "none"
}

// For returns the action to take before attempt (1-based).
func (r *IdentityRecovery) For(attempt int) RecoveryAction {
	if r == nil || attempt <= 1 {
		return RecoverNone
	}
	if attempt-1 <= r.Reloads || r.NewIdentity == nil {
		return RecoverReload
	}
	return RecoverNewIdentity
}
