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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ttbt-io/phaserunner/config"
	"github.com/ttbt-io/phaserunner/engine/cdp"
	"github.com/ttbt-io/phaserunner/engine/pw"
	"github.com/ttbt-io/phaserunner/runner"
	"github.com/ttbt-io/phaserunner/scenarios/classroom"
)

// stateTTL bounds how long a mirrored run state outlives the run.
const stateTTL = 24 * time.Hour

// exitCode carries a non-zero process exit status out of a command.
type exitCode int

func (c exitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(c))
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		log.Printf("Error: %v", err)
		os.Exit(2)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "phaserunner",
		Short: "Drive multi-actor browser scenarios against a web application",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.AddCommand(newRunCmd(), newPlanCmd(), newReportCmd())
	return root
}

func newRunCmd() *cobra.Command {
	cfg, loadErr := config.Load()
	var runID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scenario plan and exit non-zero when any phase failed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if loadErr != nil {
				return loadErr
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if runID == "" {
				runID = uuid.NewString()
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			code, err := run(ctx, cfg, runID, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if code != 0 {
				return exitCode(code)
			}
			return nil
		},
	}
	cfg.BindFlags(cmd)
	cmd.Flags().StringVar(&runID, "run-id", "", "Identifier of the run (default: random)")
	return cmd
}

// run executes one scenario run and returns the process exit status.
func run(ctx context.Context, cfg config.Config, runID string, out io.Writer) (int, error) {
	reg := classroom.Registry(classroom.Options{EmailDomain: cfg.EmailDomain})
	plan, err := loadPlan(cfg.PlanFile, reg)
	if err != nil {
		return 0, err
	}
	minter, err := newMinter(cfg)
	if err != nil {
		return 0, err
	}

	state := runner.NewState()
	if cfg.RedisURL != "" {
		sink, err := runner.NewRedisSink(ctx, cfg.RedisURL, runID, stateTTL)
		if err != nil {
			return 0, err
		}
		defer sink.Close()
		state.Mirror(sink)
		log.Printf("Mirroring state to %s", runner.StateKey(runID))
	}

	var journal *runner.Journal
	if cfg.DataDir != "" {
		if journal, err = runner.OpenJournal(cfg.DataDir, cfg.MasterKey); err != nil {
			return 0, fmt.Errorf("journal: %w", err)
		}
	}

	engine, err := openEngine(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Printf("Engine close: %v", err)
		}
	}()

	metrics := runner.NewMetrics()
	capturer := runner.NewFileCapturer(cfg.OutputDir)
	// A zero cooldown in the configuration disables the pause between attempts.
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = -1
	}
	r := &runner.Runner{
		RunID:   runID,
		Engine:  engine,
		BaseURL: cfg.BaseURL,
		Domain:  cfg.EmailDomain,
		Timeout: cfg.ActionTimeout,
		State:   state,
		Supervisor: &runner.Supervisor{
			MaxAttempts: cfg.MaxAttempts,
			Cooldown:    cooldown,
			Capturer:    capturer,
			Metrics:     metrics,
		},
		Executor: runner.NewExecutor(runner.ExecutorOptions{Capturer: capturer, Metrics: metrics}),
		Minter:   minter,
		Metrics:  metrics,
		Journal:  journal,
	}
	rep := r.Run(ctx, plan)
	rep.Summary(out)

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Printf("Metrics: %v", err)
		}
	}
	return rep.ExitCode(), nil
}

func openEngine(ctx context.Context, cfg config.Config) (runner.Engine, error) {
	switch cfg.Engine {
	case config.EnginePlaywright:
		return pw.New(pw.Options{
			Install:   cfg.InstallBrowsers,
			RemoteURL: cfg.ChromeURL,
			Headless:  cfg.Headless,
		})
	default:
		return cdp.New(ctx, cdp.Options{
			RemoteURL: cfg.ChromeURL,
			Headless:  cfg.Headless,
		})
	}
}

func newMinter(cfg config.Config) (*runner.TokenMinter, error) {
	switch {
	case cfg.AuthSecret != "":
		return runner.NewHMACMinter(cfg.AuthCookie, []byte(cfg.AuthSecret)), nil
	case cfg.AuthJWKFile != "":
		return runner.LoadJWKMinter(cfg.AuthCookie, cfg.AuthJWKFile)
	}
	return nil, nil
}

func loadPlan(path string, reg *runner.Registry) (runner.Plan, error) {
	if path == "" {
		return classroom.DefaultPlan(reg)
	}
	return runner.LoadPlan(path, reg)
}

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect scenario plans",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Check a plan file, or the built-in plan, and list its phases",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			plan, err := loadPlan(path, classroom.Registry(classroom.Options{}))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, a := range plan.Actors {
				fmt.Fprintf(w, "actor %s\n", a.Role)
			}
			for _, g := range plan.Groups {
				fmt.Fprintf(w, "group %s (%s)\n", g.Name, g.Kind)
				for _, p := range g.Phases {
					fmt.Fprintf(w, "  %s\n", p.Name)
				}
			}
			return nil
		},
	}, &cobra.Command{
		Use:   "show",
		Short: "Print the built-in plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(classroom.DefaultPlanYAML())
			return err
		},
	}, &cobra.Command{
		Use:   "phases",
		Short: "List the phase names plan files may use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, n := range classroom.Registry(classroom.Options{}).Names() {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	})
	return cmd
}

func newReportCmd() *cobra.Command {
	cfg, loadErr := config.Load()
	var list bool

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Print the summary of a journaled run (default: the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if loadErr != nil {
				return loadErr
			}
			if cfg.DataDir == "" {
				return errors.New("--data-dir is required")
			}
			j, err := runner.OpenJournal(cfg.DataDir, cfg.MasterKey)
			if err != nil {
				return fmt.Errorf("journal: %w", err)
			}
			w := cmd.OutOrStdout()
			if list {
				ids, err := j.Runs()
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(w, id)
				}
				return nil
			}
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			rep, err := j.Load(id)
			if err != nil {
				return err
			}
			rep.Summary(w)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory of the run journal")
	cmd.Flags().BoolVar(&list, "list", false, "List the journaled run ids")
	return cmd
}
