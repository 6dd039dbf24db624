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
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestJournalSaveLoad(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenJournal(dir, "")
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}

	plan := Plan{
		Actors: []Actor{{Role: "professor"}},
		Groups: []Group{Independent("g",
			Phase{Name: "good", Run: func(ctx context.Context, env *Env) error {
				env.State.Set("groupCode", "ABC123")
				return nil
			}},
			Phase{Name: "bad", Run: func(ctx context.Context, env *Env) error { return errors.New("nope") }},
		)},
	}
	r := newTestRunner(t, newFakeEngine())
	r.Journal = j
	rep := r.Run(context.Background(), plan)

	got, err := j.Load("latest")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RunID != "test-run" || got.Status != StatusDegraded || len(got.Phases) != 2 {
		t.Errorf("Unexpected report %+v", got)
	}
	if got.State["groupCode"] != "ABC123" {
		t.Errorf("Expected state in journal, got %v", got.State)
	}
	if got.Phases[1].Err != rep.Phases[1].Err || got.Phases[1].Failure != nil {
		t.Errorf("Unexpected persisted failure %+v", got.Phases[1])
	}
	if rep.Phases[1].Failure == nil {
		t.Error("Saving must not strip the in-memory error")
	}
	byID, err := j.Load("test-run")
	if err != nil || byID.RunID != "test-run" {
		t.Errorf("Load(test-run) = %v, %v", byID, err)
	}
	ids, err := j.Runs()
	if err != nil || !reflect.DeepEqual(ids, []string{"test-run"}) {
		t.Errorf("Runs = %v, %v", ids, err)
	}
}

func TestJournalEncrypted(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenJournal(dir, "passphrase")
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	if err := j.Save(&Report{RunID: "r1", Status: StatusOK}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "master.key")); err != nil {
		t.Errorf("Expected master key file: %v", err)
	}

	j2, err := OpenJournal(dir, "passphrase")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	rep, err := j2.Load("r1")
	if err != nil || rep.Status != StatusOK {
		t.Errorf("Load = %+v, %v", rep, err)
	}

	if _, err := OpenJournal(dir, ""); err == nil {
		t.Error("Expected refusal to open encrypted journal without passphrase")
	}
}
