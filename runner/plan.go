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
)

// Actor declares a role that gets its own Session. When Credentials has no
// email, a fresh identity is generated from Prefix.
type Actor struct {
	Role        Role
	Prefix      string
	Credentials Credentials
}

type GroupKind int

const (
	// GroupRequired holds a single phase whose failure ends the run.
	GroupRequired GroupKind = iota
	// GroupIndependent members are retried and fail independently.
	GroupIndependent
)

func (k GroupKind) String() string {
	if k == GroupRequired {
		return "required"
	}
	return "independent"
}

// Group is one step of a Plan.
type Group struct {
	Name   string
	Kind   GroupKind
	Phases []Phase
	// Requires lists State keys that must exist before any member runs. When
	// one is absent every member is skipped and counted as failed.
	Requires []string
	// Parallel runs independent members concurrently, at most Limit at a time
	// (0 = unbounded).
	Parallel bool
	Limit    int
}

// Required wraps p in a group whose failure is fatal to the run.
func Required(p Phase) Group {
	return Group{Name: p.Name, Kind: GroupRequired, Phases: []Phase{p}}
}

// Independent groups phases that may fail without affecting their siblings.
func Independent(name string, phases ...Phase) Group {
	return Group{Name: name, Kind: GroupIndependent, Phases: phases}
}

// ForEach builds one independent member per item, e.g. one per content type.
func ForEach(name string, items []string, build func(item string) Phase) Group {
	g := Group{Name: name, Kind: GroupIndependent}
	for _, it := range items {
		g.Phases = append(g.Phases, build(it))
	}
	return g
}

// WithRequires returns g gated on the given State keys.
func (g Group) WithRequires(keys ...string) Group {
	g.Requires = append(append([]string(nil), g.Requires...), keys...)
	return g
}

// InParallel returns g with concurrent members.
func (g Group) InParallel(limit int) Group {
	g.Parallel = true
	g.Limit = limit
	return g
}

// Plan is the ordered list of groups a Runner executes.
type Plan struct {
	Actors []Actor
	Groups []Group
}

// Validate checks the plan's structure without running anything.
func (p Plan) Validate() error {
	var errs []error
	if len(p.Actors) == 0 {
		errs = append(errs, errors.New("plan has no actors"))
	}
	roles := make(map[Role]bool)
	for _, a := range p.Actors {
		if a.Role == "" {
			errs = append(errs, errors.New("actor without role"))
			continue
		}
		if roles[a.Role] {
			errs = append(errs, fmt.Errorf("duplicate actor %q", a.Role))
		}
		roles[a.Role] = true
	}
	if len(p.Groups) == 0 {
		errs = append(errs, errors.New("plan has no groups"))
	}
	names := make(map[string]bool)
	for _, g := range p.Groups {
		if len(g.Phases) == 0 {
			errs = append(errs, fmt.Errorf("group %q has no phases", g.Name))
		}
		if g.Kind == GroupRequired && len(g.Phases) != 1 {
			errs = append(errs, fmt.Errorf("required group %q must hold exactly one phase", g.Name))
		}
		for _, ph := range g.Phases {
			if ph.Name == "" {
				errs = append(errs, fmt.Errorf("group %q: phase without name", g.Name))
			}
			if names[ph.Name] {
				errs = append(errs, fmt.Errorf("duplicate phase %q", ph.Name))
			}
			names[ph.Name] = true
			if ph.Run == nil {
				errs = append(errs, fmt.Errorf("phase %q has no body", ph.Name))
			}
			for _, r := range ph.Actors {
				if !roles[r] {
					errs = append(errs, fmt.Errorf("phase %q: %w: %s", ph.Name, ErrUnknownActor, r))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// PhaseNames lists every phase in execution order.
func (p Plan) PhaseNames() []string {
	var out []string
	for _, g := range p.Groups {
		for _, ph := range g.Phases {
			out = append(out, ph.Name)
		}
	}
	return out
}
