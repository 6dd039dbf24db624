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
	"fmt"
	"strings"
)

// StrategyKind selects how a Strategy locates elements.
type StrategyKind string

const (
	KindCSS   StrategyKind = "css"
	KindXPath StrategyKind = "xpath"
	KindRole  StrategyKind = "role"
	KindText  StrategyKind = "text"
	KindAttr  StrategyKind = "attr"
)

// Strategy is one way of locating an element. Engines translate it into their
// native locator.
type Strategy struct {
	Kind  StrategyKind
	Query string // css / xpath
	Role  string // role
	Name  string // role: accessible name, substring match
	Text  string // text: substring match
	Attr  string // attr
	Value string // attr
	Exact bool   // role, text: exact match instead of substring
}

func CSS(selector string) Strategy {
	return Strategy{Kind: KindCSS, Query: selector}
}

func XPath(expr string) Strategy {
	return Strategy{Kind: KindXPath, Query: expr}
}

// ByRole matches elements with the given ARIA role (explicit or implicit) whose
// text contains name. An empty name matches any element of that role.
func ByRole(role, name string) Strategy {
	return Strategy{Kind: KindRole, Role: role, Name: name}
}

func ByText(text string) Strategy {
	return Strategy{Kind: KindText, Text: text}
}

func ByAttr(attr, value string) Strategy {
	return Strategy{Kind: KindAttr, Attr: attr, Value: value}
}

// WithExact returns a copy of s that requires an exact text/name match.
func (s Strategy) WithExact() Strategy {
	s.Exact = true
	return s
}

func (s Strategy) String() string {
	switch s.Kind {
	case KindCSS, KindXPath:
		return fmt.Sprintf("%s=%s", s.Kind, s.Query)
	case KindRole:
		return fmt.Sprintf("role=%s[name=%q]", s.Role, s.Name)
	case KindText:
		return fmt.Sprintf("text=%q", s.Text)
	case KindAttr:
		return fmt.Sprintf("attr=[%s=%q]", s.Attr, s.Value)
	}
	return string(s.Kind)
}

// Target describes a UI element independent of the locator mechanism.
type Target struct {
	Description string
	Strategies  []Strategy
}

func NewTarget(description string, strategies ...Strategy) Target {
	return Target{Description: description, Strategies: strategies}
}

func (t Target) String() string {
	parts := make([]string, len(t.Strategies))
	for i, s := range t.Strategies {
		parts[i] = s.String()
	}
	return fmt.Sprintf("%s (%s)", t.Description, strings.Join(parts, " | "))
}

// Verb is a UI action kind.
type Verb string

const (
	VerbClick Verb = "click"
	VerbFill  Verb = "fill"
)

// Tier is one fallback level of the Executor.
type Tier int

const (
	TierNone Tier = iota
	TierDirect
	TierForced
	TierScripted
)

var tiers = []Tier{TierDirect, TierForced, TierScripted}

func (t Tier) String() string {
	switch t {
	case TierDirect:
		return "direct"
	case TierForced:
		return "forced"
	case TierScripted:
		return "scripted"
	}
	return "none"
}
