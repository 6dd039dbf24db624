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

// Package classroom drives a professor and a student through the classroom
// application: both register, the professor creates a class and one lesson
// per content type, the student joins the class and opens every lesson.
package classroom

import (
	_ "embed"
	"fmt"
	"net/url"
	"strings"

	"github.com/ttbt-io/phaserunner/runner"
)

// ContentTypes are the lesson kinds the editor offers, in editor order.
var ContentTypes = []string{
	"text", "presentation", "post", "quiz", "test",
	"video", "comic", "flashcards", "mindmap", "audio",
}

var contentLabels = map[string]string{
	"text":         "Text",
	"presentation": "Prezentace",
	"post":         "Příspěvek",
	"quiz":         "Kvíz",
	"test":         "Test",
	"video":        "Video",
	"comic":        "Komiks",
	"flashcards":   "Kartičky",
	"mindmap":      "Myšlenková mapa",
	"audio":        "Podcast",
}

// ContentLabel is the editor tab caption of contentType.
func ContentLabel(contentType string) string {
	if l, ok := contentLabels[contentType]; ok {
		return l
	}
	return contentType
}

func LessonTitle(contentType string) string {
	return "Lekce " + ContentLabel(contentType)
}

// SampleContent is what the professor types into the lesson body and what the
// student must see.
func SampleContent(contentType string) string {
	return fmt.Sprintf("Sample %s content for the mitochondria lesson.", contentType)
}

// LessonIDFromURL extracts the lesson id from an editor URL, either
// /editor/<id> or ?id=<id>.
func LessonIDFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("lesson url: %w", err)
	}
	if id := u.Query().Get("id"); id != "" {
		return id, nil
	}
	for _, path := range []string{u.Path, u.Fragment} {
		parts := strings.Split(strings.Trim(path, "/"), "/")
		for i := 0; i+1 < len(parts); i++ {
			if parts[i] == "editor" && parts[i+1] != "" && parts[i+1] != "new" {
				return parts[i+1], nil
			}
		}
	}
	return "", fmt.Errorf("no lesson id in %q", raw)
}

// Registry returns the classroom phases by the names used in plan files.
func Registry(opts Options) *runner.Registry {
	p := phases{opts: opts.withDefaults()}
	reg := runner.NewRegistry()

	reg.Register("register-professor", func(string) runner.Phase {
		return runner.Phase{
			Actors: []runner.Role{Professor},
			Run:    p.register(Professor, labelProfessorRole, professorDashboard),
		}
	})
	reg.Register("create-class", func(string) runner.Phase {
		return runner.Phase{
			Actors: []runner.Role{Professor},
			Run:    p.createClass,
		}
	})
	reg.Register("create-lesson", func(ct string) runner.Phase {
		return runner.Phase{
			Name:   "create-lesson:" + ct,
			Actors: []runner.Role{Professor},
			Run:    p.createLesson(ct),
		}
	})
	reg.Register("register-student", func(string) runner.Phase {
		return runner.Phase{
			Actors: []runner.Role{Student},
			Recovery: &runner.IdentityRecovery{
				Reloads: 1,
				NewIdentity: func(role runner.Role) runner.Credentials {
					return runner.NewIdentity(string(role), p.opts.EmailDomain)
				},
			},
			Run: p.register(Student, labelStudentRole, studentDashboard),
		}
	})
	reg.Register("join-class", func(string) runner.Phase {
		return runner.Phase{
			Actors:   []runner.Role{Student},
			Requires: []string{KeyGroupCode},
			Run:      p.joinClass,
		}
	})
	reg.Register("verify-lesson", func(ct string) runner.Phase {
		return runner.Phase{
			Name:     "verify-lesson:" + ct,
			Actors:   []runner.Role{Student},
			Requires: []string{LessonKey(ct)},
			Run:      p.verifyLesson(ct),
		}
	})
	return reg
}

//go:embed plan.yaml
var defaultPlan []byte

// DefaultPlanYAML returns the built-in plan file.
func DefaultPlanYAML() []byte {
	return append([]byte(nil), defaultPlan...)
}

// DefaultPlan resolves the built-in plan against reg.
func DefaultPlan(reg *runner.Registry) (runner.Plan, error) {
	return runner.ParsePlan(defaultPlan, reg)
}
