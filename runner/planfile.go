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
	"bytes"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Factory builds a phase. item is the ForEach element, or "" for a phase
// that is not enumerated.
type Factory func(item string) Phase

// Registry maps phase names used in plan files to their implementations.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Build returns the phase registered as name. A phase built without a name
// is called name, or name:item for enumerated phases.
func (r *Registry) Build(name, item string) (Phase, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return Phase{}, fmt.Errorf("%w: %s", ErrUnknownPhase, name)
	}
	p := f(item)
	if p.Name == "" {
		p.Name = name
		if item != "" {
			p.Name += ":" + item
		}
	}
	return p, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PlanFile is the YAML form of a Plan.
//
//	actors:
//	  - role: professor
//	    prefix: prof
//	groups:
//	  - name: create-class
//	    required: true
//	    phase: create-class
//	  - name: lessons
//	    phase: create-lesson
//	    foreach: [text, audio]
type PlanFile struct {
	Actors []ActorSpec `yaml:"actors"`
	Groups []GroupSpec `yaml:"groups"`
}

type ActorSpec struct {
	Role     string `yaml:"role"`
	Prefix   string `yaml:"prefix,omitempty"`
	Name     string `yaml:"name,omitempty"`
	Email    string `yaml:"email,omitempty"`
	Password string `yaml:"password,omitempty"`
}

type GroupSpec struct {
	Name     string   `yaml:"name"`
	Required bool     `yaml:"required,omitempty"`
	Phase    string   `yaml:"phase,omitempty"`
	Phases   []string `yaml:"phases,omitempty"`
	ForEach  []string `yaml:"foreach,omitempty"`
	Requires []string `yaml:"requires,omitempty"`
	Parallel bool     `yaml:"parallel,omitempty"`
	Limit    int      `yaml:"limit,omitempty"`

	MaxAttempts int           `yaml:"max_attempts,omitempty"`
	Cooldown    time.Duration `yaml:"cooldown,omitempty"`
}

// ParsePlan decodes YAML and resolves every phase name against reg. Unknown
// fields are rejected.
func ParsePlan(data []byte, reg *Registry) (Plan, error) {
	var pf PlanFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return Plan{}, fmt.Errorf("plan: %w", err)
	}
	return pf.Resolve(reg)
}

// LoadPlan reads and parses a plan file.
func LoadPlan(path string, reg *Registry) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, err
	}
	return ParsePlan(data, reg)
}

// Resolve turns the file form into a validated Plan.
func (pf PlanFile) Resolve(reg *Registry) (Plan, error) {
	var plan Plan
	for _, a := range pf.Actors {
		plan.Actors = append(plan.Actors, Actor{
			Role:   Role(a.Role),
			Prefix: a.Prefix,
			Credentials: Credentials{
				Name:     a.Name,
				Email:    a.Email,
				Password: a.Password,
			},
		})
	}
	for _, gs := range pf.Groups {
		g, err := gs.resolve(reg)
		if err != nil {
			return Plan{}, err
		}
		plan.Groups = append(plan.Groups, g)
	}
	if err := plan.Validate(); err != nil {
		return Plan{}, fmt.Errorf("plan: %w", err)
	}
	return plan, nil
}

func (gs GroupSpec) resolve(reg *Registry) (Group, error) {
	names := gs.Phases
	if gs.Phase != "" {
		names = append([]string{gs.Phase}, names...)
	}
	if len(names) == 0 {
		return Group{}, fmt.Errorf("plan: group %q names no phase", gs.Name)
	}
	items := gs.ForEach
	if len(items) == 0 {
		items = []string{""}
	}

	g := Group{
		Name:     gs.Name,
		Kind:     GroupIndependent,
		Requires: gs.Requires,
		Parallel: gs.Parallel,
		Limit:    gs.Limit,
	}
	if gs.Required {
		g.Kind = GroupRequired
	}
	for _, name := range names {
		for _, it := range items {
			p, err := reg.Build(name, it)
			if err != nil {
				return Group{}, fmt.Errorf("plan: group %q: %w", gs.Name, err)
			}
			if gs.MaxAttempts > 0 {
				p.MaxAttempts = gs.MaxAttempts
			}
			if gs.Cooldown != 0 {
				p.Cooldown = gs.Cooldown
			}
			g.Phases = append(g.Phases, p)
		}
	}
	if g.Name == "" {
		g.Name = names[0]
	}
	return g, nil
}
