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
	"log"
	"maps"
	"sort"
	"sync"
	"time"
)

// Sink mirrors state writes somewhere outside the process.
type Sink interface {
	Put(ctx context.Context, key, value string) error
	Clear(ctx context.Context) error
}

// State is the shared scenario state for one run. Writes are last-write-wins and
// are not serialized across phases beyond the map's own lock.
type State struct {
	mu     sync.RWMutex
	values map[string]string
	sink   Sink
	logf   func(format string, args ...any)
}

func NewState() *State {
	return &State{values: make(map[string]string), logf: log.Printf}
}

// Mirror attaches a sink that receives every subsequent write.
func (s *State) Mirror(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

func (s *State) Set(key, value string) {
	s.mu.Lock()
	s.values[key] = value
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sink.Put(ctx, key, value); err != nil {
			s.logf("state: mirror %s: %v", key, err)
		}
	}
}

// Get returns the value for key and whether it has been produced.
func (s *State) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *State) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Require returns the value of key, or a *MissingKeyError when absent.
func (s *State) Require(key string) (string, error) {
	if v, ok := s.Get(key); ok {
		return v, nil
	}
	return "", &MissingKeyError{Keys: []string{key}}
}

// Missing returns the subset of keys that are absent, in the given order.
func (s *State) Missing(keys ...string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var missing []string
	for _, k := range keys {
		if _, ok := s.values[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// Reset empties the state and clears the mirror.
func (s *State) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.values = make(map[string]string)
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		return sink.Clear(ctx)
	}
	return nil
}

// Snapshot returns a copy of the current values.
func (s *State) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Keys returns the produced keys, sorted.
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
