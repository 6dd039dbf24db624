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

package classroom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ttbt-io/phaserunner/runner"
)

const (
	Professor runner.Role = "professor"
	Student   runner.Role = "student"

	// KeyGroupCode is the join code of the class the professor created.
	KeyGroupCode = "groupCode"

	labelProfessorRole = "Jsem Profesor"
	labelStudentRole   = "Jsem Student"
)

// LessonKey is the state key of the lesson created for contentType.
func LessonKey(contentType string) string {
	return "lessonId." + contentType
}

// Options tune the scenario to the deployment under test.
type Options struct {
	// DashboardTimeout bounds the wait after registration, which includes cold
	// starts of the backend.
	DashboardTimeout time.Duration
	// ViewTimeout bounds waits for views after navigation.
	ViewTimeout time.Duration
	// EmailDomain is used for identities generated on retry.
	EmailDomain string
	ClassName   string
}

func (o Options) withDefaults() Options {
	if o.DashboardTimeout <= 0 {
		o.DashboardTimeout = 90 * time.Second
	}
	if o.ViewTimeout <= 0 {
		o.ViewTimeout = 20 * time.Second
	}
	if o.EmailDomain == "" {
		o.EmailDomain = "example.com"
	}
	if o.ClassName == "" {
		o.ClassName = "Mars Mission Control"
	}
	return o
}

type phases struct {
	opts Options
}

// register signs the actor up with its credentials and waits for its
// dashboard.
func (p phases) register(role runner.Role, label string, dashboard func() runner.Target) runner.PhaseFunc {
	return func(ctx context.Context, env *runner.Env) error {
		s, err := env.Session(role)
		if err != nil {
			return err
		}
		creds := s.Credentials
		env.Logf("[%s] registering %s", role, creds.Email)

		if err := s.Navigate(ctx, env.URL("/")); err != nil {
			return err
		}
		if err := s.WaitVisible(ctx, loginView(), p.opts.ViewTimeout); err != nil {
			return err
		}
		if s.Visible(ctx, roleButton(label)) {
			if err := s.Click(ctx, roleButton(label)); err != nil {
				return err
			}
		}
		if err := s.Click(ctx, registerLink()); err != nil {
			return err
		}
		for _, f := range []struct {
			target runner.Target
			value  string
		}{
			{registerField("name", "Jméno"), creds.Name},
			{registerField("email", "Email"), creds.Email},
			{registerField("password", "Heslo"), creds.Password},
		} {
			if err := s.Fill(ctx, f.target, f.value); err != nil {
				return err
			}
		}
		if err := s.Click(ctx, registerSubmit()); err != nil {
			return err
		}
		if err := s.WaitVisible(ctx, dashboard(), p.opts.DashboardTimeout); err != nil {
			if s.Visible(ctx, errorBanner()) {
				if msg, terr := s.Text(ctx, errorBanner()); terr == nil {
					return fmt.Errorf("registration rejected: %s: %w", strings.TrimSpace(msg), err)
				}
			}
			return err
		}
		env.Logf("[%s] dashboard loaded", role)
		return nil
	}
}

// createClass creates a class and publishes its join code as KeyGroupCode.
func (p phases) createClass(ctx context.Context, env *runner.Env) error {
	s, err := env.Session(Professor)
	if err != nil {
		return err
	}
	if err := s.Click(ctx, navButton("classes", "Moje třídy")); err != nil {
		return err
	}
	if err := s.Click(ctx, newClassButton()); err != nil {
		return err
	}
	if err := s.Fill(ctx, classNameInput(), p.opts.ClassName); err != nil {
		return err
	}
	if err := s.Click(ctx, modalSave()); err != nil {
		return err
	}
	if err := s.WaitVisible(ctx, classDetail(), p.opts.ViewTimeout); err != nil {
		return err
	}
	if err := s.WaitVisible(ctx, classCode(), p.opts.ViewTimeout); err != nil {
		return err
	}
	code, err := s.Text(ctx, classCode())
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("class created without a join code")
	}
	env.State.Set(KeyGroupCode, code)
	env.Logf("[professor] class %q created with code %s", p.opts.ClassName, code)

	return s.Click(ctx, navButton("dashboard", "Přehled"))
}

// createLesson creates and publishes a lesson of contentType and stores its id
// under LessonKey(contentType).
func (p phases) createLesson(contentType string) runner.PhaseFunc {
	return func(ctx context.Context, env *runner.Env) error {
		s, err := env.Session(Professor)
		if err != nil {
			return err
		}
		title := LessonTitle(contentType)

		if err := s.Click(ctx, navButton("library", "Knihovna lekcí")); err != nil {
			return err
		}
		if err := s.Click(ctx, newLessonButton()); err != nil {
			return err
		}
		if err := s.Fill(ctx, lessonField("title", "Název lekce"), title); err != nil {
			return err
		}
		if err := s.Fill(ctx, lessonField("subject", "Předmět"), "Biology"); err != nil {
			return err
		}
		if err := s.Click(ctx, createManually()); err != nil {
			return err
		}
		if err := s.WaitVisible(ctx, lessonEditor(), p.opts.ViewTimeout); err != nil {
			return err
		}
		if err := s.Click(ctx, contentTab(contentType)); err != nil {
			return err
		}
		if err := s.Fill(ctx, contentBody(), SampleContent(contentType)); err != nil {
			return err
		}
		if err := s.Click(ctx, publishToggle()); err != nil {
			return err
		}
		if err := s.Click(ctx, editorSave()); err != nil {
			return err
		}
		if err := s.WaitVisible(ctx, savedBadge(), p.opts.ViewTimeout); err != nil {
			return err
		}

		u, err := s.URL(ctx)
		if err != nil {
			return err
		}
		id, err := LessonIDFromURL(u)
		if err != nil {
			return err
		}
		env.State.Set(LessonKey(contentType), id)
		env.Logf("[professor] %s lesson %s saved", contentType, id)
		return nil
	}
}

// joinClass enters the professor's join code on the student dashboard. The
// application confirms with a native alert.
func (p phases) joinClass(ctx context.Context, env *runner.Env) error {
	s, err := env.Session(Student)
	if err != nil {
		return err
	}
	code, err := env.State.Require(KeyGroupCode)
	if err != nil {
		return err
	}
	if err := s.Click(ctx, joinButton()); err != nil {
		return err
	}
	if err := s.Fill(ctx, joinCodeInput(), code); err != nil {
		return err
	}
	if err := s.Click(ctx, joinSubmit(), runner.ExpectDialog(true, "")); err != nil {
		return err
	}
	if err := s.Reload(ctx); err != nil {
		return err
	}
	if err := s.WaitVisible(ctx, studentDashboard(), p.opts.ViewTimeout); err != nil {
		return err
	}
	return s.WaitVisible(ctx, classMembership(code), p.opts.ViewTimeout)
}

// verifyLesson opens the lesson as the student and checks its content renders.
func (p phases) verifyLesson(contentType string) runner.PhaseFunc {
	return func(ctx context.Context, env *runner.Env) error {
		s, err := env.Session(Student)
		if err != nil {
			return err
		}
		id, err := env.State.Require(LessonKey(contentType))
		if err != nil {
			return err
		}
		if err := s.Navigate(ctx, env.URL("/student/lesson/"+id)); err != nil {
			return err
		}
		if err := s.WaitVisible(ctx, lessonDetail(), p.opts.ViewTimeout); err != nil {
			return err
		}
		if err := s.WaitVisible(ctx, lessonContent(contentType), p.opts.ViewTimeout); err != nil {
			return err
		}
		text, err := s.Text(ctx, lessonContent(contentType))
		if err != nil {
			return err
		}
		if want := SampleContent(contentType); !strings.Contains(text, want) {
			return fmt.Errorf("%s lesson %s shows %q, expected %q", contentType, id, text, want)
		}
		return nil
	}
}
