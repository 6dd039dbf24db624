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
	"fmt"

	"github.com/ttbt-io/phaserunner/runner"
)

// Targets are rebuilt on every call and never cached.

func loginView() runner.Target {
	return runner.NewTarget("login view", runner.CSS("login-view"))
}

func roleButton(label string) runner.Target {
	return runner.NewTarget(label+" role button",
		runner.CSS(fmt.Sprintf("login-view button[data-role=%q]", roleAttr(label))),
		runner.ByRole("button", label),
		runner.ByText(label))
}

func roleAttr(label string) string {
	if label == labelStudentRole {
		return "student"
	}
	return "professor"
}

func registerLink() runner.Target {
	return runner.NewTarget("register link",
		runner.CSS("a.register-link"),
		runner.ByRole("link", "Registrujte se"),
		runner.ByText("Registrujte se"))
}

func registerField(name, placeholder string) runner.Target {
	return runner.NewTarget(name+" field",
		runner.CSS("#register-"+name),
		runner.ByAttr("name", name),
		runner.ByAttr("placeholder", placeholder))
}

func registerSubmit() runner.Target {
	return runner.NewTarget("register button",
		runner.CSS("#register-form button[type=submit]"),
		runner.ByRole("button", "Registrovat se"),
		runner.ByText("Registrovat se"))
}

func professorDashboard() runner.Target {
	return runner.NewTarget("professor dashboard", runner.CSS("professor-dashboard-view"), runner.CSS("professor-app"))
}

func studentDashboard() runner.Target {
	return runner.NewTarget("student dashboard", runner.CSS("student-dashboard"), runner.CSS("student-dashboard-view"))
}

func errorBanner() runner.Target {
	return runner.NewTarget("error banner", runner.CSS(".text-red-600"), runner.CSS(".bg-red-50"))
}

func navButton(view, label string) runner.Target {
	return runner.NewTarget(label+" navigation",
		runner.CSS(fmt.Sprintf("professor-navigation button[data-view=%q]", view)),
		runner.ByRole("button", label),
		runner.ByText(label))
}

func newClassButton() runner.Target {
	return runner.NewTarget("new class button",
		runner.CSS("#btn-new-class"),
		runner.ByRole("button", "Vytvořit novou třídu"),
		runner.ByText("Nová třída"))
}

func classNameInput() runner.Target {
	return runner.NewTarget("class name input",
		runner.CSS("div.fixed.inset-0 input[type='text']"),
		runner.XPath("//div[contains(@class,'fixed')]//input[@type='text']"))
}

func modalSave() runner.Target {
	return runner.NewTarget("modal save button",
		runner.CSS("div.fixed.inset-0 button.btn-save"),
		runner.XPath("//div[contains(@class,'fixed')]//button[contains(., 'Uložit') or contains(., 'Vytvořit')]"),
		runner.ByRole("button", "Uložit"))
}

func classDetail() runner.Target {
	return runner.NewTarget("class detail", runner.CSS("professor-class-detail-view"))
}

func classCode() runner.Target {
	return runner.NewTarget("class join code",
		runner.CSS("professor-class-detail-view code.font-mono"),
		runner.CSS("[data-join-code]"))
}

func newLessonButton() runner.Target {
	return runner.NewTarget("new lesson button",
		runner.CSS("#btn-new-lesson"),
		runner.ByRole("button", "Přidat novou lekci"),
		runner.ByText("novou lekci"))
}

func lessonField(name, placeholder string) runner.Target {
	return runner.NewTarget("lesson "+name+" field",
		runner.CSS(fmt.Sprintf("lesson-wizard input[name=%q]", name)),
		runner.ByAttr("placeholder", placeholder))
}

func createManually() runner.Target {
	return runner.NewTarget("create manually button",
		runner.CSS("#btn-create-manual"),
		runner.ByRole("button", "Vytvořit manuálně"),
		runner.ByText("Vytvořit manuálně"))
}

func lessonEditor() runner.Target {
	return runner.NewTarget("lesson editor", runner.CSS("lesson-editor"))
}

func contentTab(contentType string) runner.Target {
	label := ContentLabel(contentType)
	return runner.NewTarget(label+" content tab",
		runner.CSS(fmt.Sprintf("lesson-editor button[data-type=%q]", contentType)),
		runner.ByRole("tab", label),
		runner.ByText(label).WithExact())
}

func contentBody() runner.Target {
	return runner.NewTarget("content body",
		runner.CSS("lesson-editor textarea[name='content']"),
		runner.ByAttr("name", "content"))
}

func editorSave() runner.Target {
	return runner.NewTarget("lesson save button",
		runner.CSS("lesson-editor #btn-save-lesson"),
		runner.ByRole("button", "Uložit"),
		runner.ByText("Uložit").WithExact())
}

func publishToggle() runner.Target {
	return runner.NewTarget("publish toggle",
		runner.CSS("lesson-editor input[type='checkbox'][name='published']"),
		runner.ByRole("checkbox", "Publikovat"))
}

func savedBadge() runner.Target {
	return runner.NewTarget("saved badge", runner.CSS("lesson-editor .saved-badge"), runner.ByText("Uloženo"))
}

func joinButton() runner.Target {
	return runner.NewTarget("join class button",
		runner.CSS("#btn-join-class"),
		runner.ByRole("button", "Připojit se k třídě"),
		runner.ByText("Připojit se k třídě"))
}

func joinCodeInput() runner.Target {
	return runner.NewTarget("join code input",
		runner.CSS("input[placeholder='CODE']"),
		runner.ByAttr("name", "code"))
}

func joinSubmit() runner.Target {
	return runner.NewTarget("join submit button",
		runner.CSS("#btn-join-submit"),
		runner.ByRole("button", "Připojit"),
		runner.ByText("Připojit").WithExact())
}

func classMembership(code string) runner.Target {
	return runner.NewTarget("class membership "+code,
		runner.CSS(fmt.Sprintf("student-dashboard [data-group-code=%q]", code)),
		runner.ByText(code))
}

func lessonDetail() runner.Target {
	return runner.NewTarget("lesson detail", runner.CSS("student-lesson-detail"))
}

func lessonContent(contentType string) runner.Target {
	return runner.NewTarget(ContentLabel(contentType)+" content",
		runner.CSS(fmt.Sprintf("student-lesson-detail [data-content-type=%q]", contentType)),
		runner.ByAttr("data-content-type", contentType))
}
