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
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
)

const (
	journalDir = "runs"
	latestRun  = "latest"
)

// Journal persists run reports under <dir>/runs, encrypted when a master key
// is in use.
type Journal struct {
	dir   string
	store *storage.Storage
}

// OpenJournal opens the journal in dir. With a non-empty passphrase the master
// key at <dir>/master.key is loaded, or created on first use. Without one, an
// existing master key is an error so that encrypted runs are never mixed with
// plaintext ones.
func OpenJournal(dir, passphrase string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Join(dir, journalDir), 0o755); err != nil {
		return nil, err
	}
	keyFile := filepath.Join(dir, "master.key")
	var masterKey crypto.MasterKey
	if passphrase != "" {
		mk, err := crypto.ReadMasterKey([]byte(passphrase), keyFile)
		if errors.Is(err, os.ErrNotExist) {
			log.Println("Journal: initializing new master encryption key...")
			if mk, err = crypto.CreateMasterKey(); err != nil {
				return nil, fmt.Errorf("create master key: %w", err)
			}
			if err := mk.Save([]byte(passphrase), keyFile); err != nil {
				return nil, fmt.Errorf("save master key: %w", err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("read master key: %w", err)
		}
		masterKey = mk
	} else if _, err := os.Stat(keyFile); err == nil {
		return nil, fmt.Errorf("%s exists but no master key passphrase was given", keyFile)
	}

	store := storage.New(dir, masterKey)
	store.EnableCompression(true)
	return &Journal{dir: dir, store: store}, nil
}

func runFile(runID string) string {
	return filepath.Join(journalDir, url.PathEscape(runID))
}

// Save stores rep under its run id and as the latest run.
func (j *Journal) Save(rep *Report) error {
	rep = detached(rep)
	if err := j.store.SaveDataFile(runFile(rep.RunID), rep); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	if err := j.store.SaveDataFile(runFile(latestRun), rep); err != nil {
		return fmt.Errorf("storage.SaveDataFile (latest): %w", err)
	}
	return nil
}

// detached copies rep without the typed errors, which only live in memory.
func detached(rep *Report) *Report {
	cp := *rep
	cp.Phases = make([]*PhaseReport, len(rep.Phases))
	for i, p := range rep.Phases {
		pc := *p
		pc.Failure = nil
		cp.Phases[i] = &pc
	}
	return &cp
}

// Load returns the report of runID. "latest" names the most recent run.
func (j *Journal) Load(runID string) (*Report, error) {
	if runID == "" {
		runID = latestRun
	}
	var rep Report
	if err := j.store.ReadDataFile(runFile(runID), &rep); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &rep, nil
}

// Runs lists the stored run ids, sorted.
func (j *Journal) Runs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(j.dir, journalDir))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == latestRun || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		id, err := url.PathUnescape(e.Name())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
