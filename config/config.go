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

// Package config assembles the runner configuration from .env files, RUNNER_*
// environment variables and command line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	EngineChromedp   = "chromedp"
	EnginePlaywright = "playwright"
)

// Config holds every knob of a run.
type Config struct {
	BaseURL       string
	Headless      bool
	ActionTimeout time.Duration
	MaxAttempts   int
	Cooldown      time.Duration
	OutputDir     string
	PlanFile      string
	EmailDomain   string

	// Engine is chromedp or playwright.
	Engine string
	// ChromeURL attaches to a running browser instead of launching one.
	ChromeURL       string
	InstallBrowsers bool

	RedisURL    string
	DataDir     string
	MasterKey   string
	MetricsFile string

	AuthCookie  string
	AuthSecret  string
	AuthJWKFile string
}

func Default() Config {
	return Config{
		BaseURL:       "http://localhost:5000",
		ActionTimeout: 5 * time.Second,
		MaxAttempts:   3,
		Cooldown:      10 * time.Second,
		OutputDir:     "artifacts",
		EmailDomain:   "example.com",
		Engine:        EngineChromedp,
		AuthCookie:    "auth",
	}
}

// Load reads .env files and then the environment. Without files it reads ./.env
// when present.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv applies RUNNER_* variables over the defaults. CI=true implies
// headless unless RUNNER_HEADLESS says otherwise.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	boolean("CI", &c.Headless)
	boolean("RUNNER_HEADLESS", &c.Headless)
	str("RUNNER_BASE_URL", &c.BaseURL)
	duration("RUNNER_ACTION_TIMEOUT", &c.ActionTimeout)
	if v, ok := lookup("RUNNER_MAX_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("RUNNER_MAX_ATTEMPTS: %w", err))
		} else {
			c.MaxAttempts = n
		}
	}
	duration("RUNNER_COOLDOWN", &c.Cooldown)
	str("RUNNER_OUTPUT_DIR", &c.OutputDir)
	str("RUNNER_PLAN", &c.PlanFile)
	str("RUNNER_EMAIL_DOMAIN", &c.EmailDomain)
	str("RUNNER_ENGINE", &c.Engine)
	str("RUNNER_CHROME_URL", &c.ChromeURL)
	boolean("RUNNER_INSTALL_BROWSERS", &c.InstallBrowsers)
	str("RUNNER_REDIS_URL", &c.RedisURL)
	str("RUNNER_DATA_DIR", &c.DataDir)
	str("RUNNER_MASTER_KEY", &c.MasterKey)
	str("RUNNER_METRICS_FILE", &c.MetricsFile)
	str("RUNNER_AUTH_COOKIE", &c.AuthCookie)
	str("RUNNER_AUTH_SECRET", &c.AuthSecret)
	str("RUNNER_AUTH_JWK_FILE", &c.AuthJWKFile)

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return c, nil
}

// BindFlags registers flags on cmd that override the loaded values. The master
// key and auth secret stay environment-only.
func (c *Config) BindFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&c.BaseURL, "base-url", c.BaseURL, "Base URL of the application under test")
	f.BoolVar(&c.Headless, "headless", c.Headless, "Run the browser headless")
	f.DurationVar(&c.ActionTimeout, "action-timeout", c.ActionTimeout, "Per-tier timeout of a UI action")
	f.IntVar(&c.MaxAttempts, "max-attempts", c.MaxAttempts, "Attempts per phase before it is recorded as failed")
	f.DurationVar(&c.Cooldown, "cooldown", c.Cooldown, "Pause between attempts of a phase")
	f.StringVar(&c.OutputDir, "output-dir", c.OutputDir, "Directory for screenshots and text dumps")
	f.StringVar(&c.PlanFile, "plan", c.PlanFile, "YAML plan file (default: the built-in classroom plan)")
	f.StringVar(&c.EmailDomain, "email-domain", c.EmailDomain, "Domain of generated identities")
	f.StringVar(&c.Engine, "engine", c.Engine, "Browser engine: chromedp or playwright")
	f.StringVar(&c.ChromeURL, "chrome-url", c.ChromeURL, "Remote debugging URL of a running browser")
	f.BoolVar(&c.InstallBrowsers, "install-browsers", c.InstallBrowsers, "Download Playwright browsers before starting")
	f.StringVar(&c.RedisURL, "redis-url", c.RedisURL, "Mirror shared state to this Redis")
	f.StringVar(&c.DataDir, "data-dir", c.DataDir, "Directory of the run journal")
	f.StringVar(&c.MetricsFile, "metrics-file", c.MetricsFile, "Write Prometheus metrics to this textfile")
	f.StringVar(&c.AuthCookie, "auth-cookie-name", c.AuthCookie, "Name of the cookie carrying the session JWT")
	f.StringVar(&c.AuthJWKFile, "auth-jwk-file", c.AuthJWKFile, "JWK used to sign session tokens")
}

func (c Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base URL %q is not absolute", c.BaseURL))
	}
	if c.ActionTimeout <= 0 {
		errs = append(errs, errors.New("action timeout must be positive"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, errors.New("max attempts must be at least 1"))
	}
	if c.Cooldown < 0 {
		errs = append(errs, errors.New("cooldown must not be negative"))
	}
	if c.Engine != EngineChromedp && c.Engine != EnginePlaywright {
		errs = append(errs, fmt.Errorf("unknown engine %q", c.Engine))
	}
	if c.AuthSecret != "" && c.AuthJWKFile != "" {
		errs = append(errs, errors.New("set only one of the auth secret and the auth JWK file"))
	}
	return errors.Join(errs...)
}

// Auth reports whether sessions should be pre-authenticated.
func (c Config) Auth() bool {
	return c.AuthSecret != "" || c.AuthJWKFile != ""
}
