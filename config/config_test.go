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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	c, err := FromEnv(env(nil))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c != Default() {
		t.Errorf("Expected defaults, got %+v", c)
	}
	if c.ActionTimeout != 5*time.Second || c.MaxAttempts != 3 || c.Cooldown != 10*time.Second {
		t.Errorf("Unexpected defaults %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	c, err := FromEnv(env(map[string]string{
		"CI":                    "true",
		"RUNNER_BASE_URL":       "https://staging.example.com",
		"RUNNER_ACTION_TIMEOUT": "8s",
		"RUNNER_MAX_ATTEMPTS":   "5",
		"RUNNER_COOLDOWN":       "1m",
		"RUNNER_ENGINE":         "playwright",
		"RUNNER_REDIS_URL":      "redis://localhost:6379/2",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if !c.Headless {
		t.Error("CI=true should imply headless")
	}
	if c.BaseURL != "https://staging.example.com" || c.ActionTimeout != 8*time.Second || c.MaxAttempts != 5 || c.Cooldown != time.Minute {
		t.Errorf("Unexpected config %+v", c)
	}
	if c.Engine != EnginePlaywright || c.RedisURL != "redis://localhost:6379/2" {
		t.Errorf("Unexpected config %+v", c)
	}

	c, err = FromEnv(env(map[string]string{"CI": "true", "RUNNER_HEADLESS": "false"}))
	if err != nil || c.Headless {
		t.Errorf("RUNNER_HEADLESS should override CI, got %v, %v", c.Headless, err)
	}
}

func TestFromEnvErrors(t *testing.T) {
	_, err := FromEnv(env(map[string]string{
		"RUNNER_ACTION_TIMEOUT": "soon",
		"RUNNER_MAX_ATTEMPTS":   "three",
	}))
	if err == nil {
		t.Fatal("Expected error")
	}
	for _, want := range []string{"RUNNER_ACTION_TIMEOUT", "RUNNER_MAX_ATTEMPTS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %s in %v", want, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
		want string
	}{
		{"relative url", func(c *Config) { c.BaseURL = "/app" }, "not absolute"},
		{"timeout", func(c *Config) { c.ActionTimeout = 0 }, "action timeout"},
		{"attempts", func(c *Config) { c.MaxAttempts = 0 }, "max attempts"},
		{"engine", func(c *Config) { c.Engine = "selenium" }, "unknown engine"},
		{"auth", func(c *Config) { c.AuthSecret, c.AuthJWKFile = "s", "k.jwk" }, "only one"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mod(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadDotEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("RUNNER_BASE_URL=http://dotenv.test:8080\nRUNNER_MAX_ATTEMPTS=4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// The environment wins over the file.
	t.Setenv("RUNNER_MAX_ATTEMPTS", "2")
	t.Setenv("RUNNER_BASE_URL", "")
	os.Unsetenv("RUNNER_BASE_URL")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.BaseURL != "http://dotenv.test:8080" || c.MaxAttempts != 2 {
		t.Errorf("Unexpected config %+v", c)
	}

	cmd := &cobra.Command{Use: "run"}
	c.BindFlags(cmd)
	if err := cmd.Flags().Parse([]string{"--max-attempts=6", "--engine", "playwright"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.MaxAttempts != 6 || c.Engine != EnginePlaywright || c.BaseURL != "http://dotenv.test:8080" {
		t.Errorf("Flags did not override: %+v", c)
	}

	if _, err := Load(filepath.Join(dir, "missing.env")); err == nil {
		t.Error("Expected error for an explicit missing file")
	}
}
