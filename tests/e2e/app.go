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

package e2e

import (
	"encoding/json"
	"html/template"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ttbt-io/phaserunner/scenarios/classroom"
)

const authCookie = "auth"

// AppOptions inject faults into the classroom app.
type AppOptions struct {
	// FailRegistrations makes the first n student registrations store the
	// account and still answer 503.
	FailRegistrations int
}

type user struct {
	Role     string
	Name     string
	Email    string
	Password string
	Classes  []string
}

type class struct {
	Name string
	Code string
}

type lesson struct {
	ID        string
	Title     string
	Subject   string
	Type      string
	Content   string
	Published bool
}

// App is a small in-memory classroom application with the markup the
// classroom scenario drives.
type App struct {
	mu       sync.Mutex
	failRegs int
	users    map[string]*user // by email
	tokens   map[string]string
	classes  map[string]*class // by code
	lessons  map[string]*lesson
	mux      *http.ServeMux
}

func NewApp(opts AppOptions) *App {
	a := &App{
		failRegs: opts.FailRegistrations,
		users:    make(map[string]*user),
		tokens:   make(map[string]string),
		classes:  make(map[string]*class),
		lessons:  make(map[string]*lesson),
		mux:      http.NewServeMux(),
	}
	a.mux.HandleFunc("GET /{$}", a.handleLogin)
	a.mux.HandleFunc("GET /professor", a.handleProfessor)
	a.mux.HandleFunc("GET /professor/editor/{id}", a.handleEditor)
	a.mux.HandleFunc("GET /student", a.handleStudent)
	a.mux.HandleFunc("GET /student/lesson/{id}", a.handleStudentLesson)
	a.mux.HandleFunc("POST /api/register", a.handleRegister)
	a.mux.HandleFunc("POST /api/classes", a.handleCreateClass)
	a.mux.HandleFunc("POST /api/lessons", a.handleCreateLesson)
	a.mux.HandleFunc("PUT /api/lessons/{id}", a.handleSaveLesson)
	a.mux.HandleFunc("POST /api/join", a.handleJoin)
	return a
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// Users returns how many accounts exist with role.
func (a *App) Users(role string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, u := range a.users {
		if u.Role == role {
			n++
		}
	}
	return n
}

// Members returns the emails of the students in the class with code.
func (a *App) Members(code string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, u := range a.users {
		for _, c := range u.Classes {
			if c == code {
				out = append(out, u.Email)
			}
		}
	}
	return out
}

func (a *App) currentUser(r *http.Request) *user {
	c, err := r.Cookie(authCookie)
	if err != nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.users[a.tokens[c.Value]]
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Neplatný požadavek", http.StatusBadRequest)
		return false
	}
	return true
}

func reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("App: encode: %v", err)
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role     string `json:"role"`
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Role != "professor" && req.Role != "student" {
		http.Error(w, "Neznámá role", http.StatusBadRequest)
		return
	}
	if req.Name == "" || !strings.Contains(req.Email, "@") || len(req.Password) < 6 {
		http.Error(w, "Vyplňte prosím všechna pole", http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.users[req.Email]; exists {
		http.Error(w, "Tento email je již registrován", http.StatusConflict)
		return
	}
	a.users[req.Email] = &user{Role: req.Role, Name: req.Name, Email: req.Email, Password: req.Password}
	if req.Role == "student" && a.failRegs > 0 {
		a.failRegs--
		http.Error(w, "Služba je dočasně nedostupná", http.StatusServiceUnavailable)
		return
	}
	token := uuid.NewString()
	a.tokens[token] = req.Email
	http.SetCookie(w, &http.Cookie{Name: authCookie, Value: token, Path: "/"})
	reply(w, map[string]string{"role": req.Role})
}

func (a *App) requireRole(w http.ResponseWriter, r *http.Request, role string) *user {
	u := a.currentUser(r)
	if u == nil || u.Role != role {
		http.Error(w, "Nepřihlášen", http.StatusUnauthorized)
		return nil
	}
	return u
}

func (a *App) handleCreateClass(w http.ResponseWriter, r *http.Request) {
	if a.requireRole(w, r, "professor") == nil {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "Zadejte název třídy", http.StatusBadRequest)
		return
	}
	c := &class{Name: req.Name, Code: strings.ToUpper(shortID()[:6])}
	a.mu.Lock()
	a.classes[c.Code] = c
	a.mu.Unlock()
	reply(w, c)
}

func (a *App) handleCreateLesson(w http.ResponseWriter, r *http.Request) {
	if a.requireRole(w, r, "professor") == nil {
		return
	}
	var req struct {
		Title   string `json:"title"`
		Subject string `json:"subject"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Title == "" {
		http.Error(w, "Zadejte název lekce", http.StatusBadRequest)
		return
	}
	l := &lesson{ID: shortID(), Title: req.Title, Subject: req.Subject}
	a.mu.Lock()
	a.lessons[l.ID] = l
	a.mu.Unlock()
	reply(w, map[string]string{"id": l.ID})
}

func (a *App) handleSaveLesson(w http.ResponseWriter, r *http.Request) {
	if a.requireRole(w, r, "professor") == nil {
		return
	}
	var req struct {
		Type      string `json:"type"`
		Content   string `json:"content"`
		Published bool   `json:"published"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Type == "" || req.Content == "" {
		http.Error(w, "Vyberte typ obsahu a vyplňte obsah", http.StatusBadRequest)
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.lessons[r.PathValue("id")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	l.Type, l.Content, l.Published = req.Type, req.Content, req.Published
	reply(w, l)
}

func (a *App) handleJoin(w http.ResponseWriter, r *http.Request) {
	u := a.requireRole(w, r, "student")
	if u == nil {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.classes[code]; !ok {
		http.Error(w, "Třída s tímto kódem neexistuje", http.StatusNotFound)
		return
	}
	u.Classes = append(u.Classes, code)
	reply(w, map[string]string{"code": code})
}

func render(w http.ResponseWriter, t *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.Execute(w, data); err != nil {
		log.Printf("App: render %s: %v", t.Name(), err)
	}
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	render(w, loginPage, nil)
}

func (a *App) handleProfessor(w http.ResponseWriter, r *http.Request) {
	view := r.URL.Query().Get("view")
	if view == "" {
		view = "dashboard"
	}
	render(w, professorPage, map[string]string{"View": view})
}

type tab struct {
	Type  string
	Label string
}

func (a *App) handleEditor(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	l, ok := a.lessons[r.PathValue("id")]
	var cp lesson
	if ok {
		cp = *l
	}
	a.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	var tabs []tab
	for _, ct := range classroom.ContentTypes {
		tabs = append(tabs, tab{Type: ct, Label: classroom.ContentLabel(ct)})
	}
	render(w, editorPage, map[string]any{"Lesson": cp, "Tabs": tabs})
}

func (a *App) handleStudent(w http.ResponseWriter, r *http.Request) {
	var classes []class
	if u := a.currentUser(r); u != nil {
		a.mu.Lock()
		for _, code := range u.Classes {
			if c, ok := a.classes[code]; ok {
				classes = append(classes, *c)
			}
		}
		a.mu.Unlock()
	}
	render(w, studentPage, map[string]any{"Classes": classes})
}

func (a *App) handleStudentLesson(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	l, ok := a.lessons[r.PathValue("id")]
	var cp lesson
	if ok {
		cp = *l
	}
	a.mu.Unlock()
	if !ok || !cp.Published {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		render(w, notFoundPage, nil)
		return
	}
	render(w, lessonPage, cp)
}

const head = `<!doctype html><html lang="cs"><head><meta charset="utf-8"><title>Classroom</title>
<style>
login-view, professor-app, professor-navigation, professor-dashboard-view,
professor-class-detail-view, lesson-wizard, lesson-editor, student-dashboard,
student-lesson-detail { display: block; }
[hidden] { display: none !important; }
.fixed.inset-0 { position: fixed; top: 0; left: 0; right: 0; bottom: 0; background: rgba(0,0,0,.3); }
.fixed.inset-0 > div { background: #fff; margin: 20vh auto; padding: 1em; width: 20em; }
</style></head><body>`

var loginPage = template.Must(template.New("login").Parse(head + `
<login-view>
<h1>Přihlášení</h1>
<div>
<button type="button" data-role="professor">Jsem Profesor</button>
<button type="button" data-role="student">Jsem Student</button>
</div>
<p>Nemáte účet? <a class="register-link" href="#register">Registrujte se</a></p>
<form id="register-form" hidden>
<input id="register-name" name="name" placeholder="Jméno">
<input id="register-email" name="email" type="email" placeholder="Email">
<input id="register-password" name="password" type="password" placeholder="Heslo">
<button type="submit">Registrovat se</button>
</form>
<p id="register-error" class="text-red-600" hidden></p>
</login-view>
<script>
let role = 'professor';
document.querySelectorAll('[data-role]').forEach(b => b.addEventListener('click', () => { role = b.dataset.role; }));
document.querySelector('.register-link').addEventListener('click', e => {
  e.preventDefault();
  document.getElementById('register-form').hidden = false;
});
document.getElementById('register-form').addEventListener('submit', async e => {
  e.preventDefault();
  const banner = document.getElementById('register-error');
  banner.hidden = true;
  const body = {
    role,
    name: document.getElementById('register-name').value,
    email: document.getElementById('register-email').value,
    password: document.getElementById('register-password').value,
  };
  const res = await fetch('/api/register', {method: 'POST', headers: {'Content-Type': 'application/json'}, body: JSON.stringify(body)});
  if (!res.ok) {
    banner.textContent = await res.text();
    banner.hidden = false;
    console.error('registration failed', res.status);
    return;
  }
  location.href = role === 'student' ? '/student' : '/professor';
});
</script></body></html>`))

const professorNav = `
<professor-navigation>
<button type="button" data-view="dashboard">Přehled</button>
<button type="button" data-view="classes">Moje třídy</button>
<button type="button" data-view="library">Knihovna lekcí</button>
</professor-navigation>`

const navScript = `
function show(view) {
  const panels = document.querySelectorAll('[data-panel]');
  if (!panels.length) {
    location.href = '/professor?view=' + view;
    return;
  }
  panels.forEach(p => { p.hidden = p.dataset.panel !== view; });
}
document.querySelectorAll('professor-navigation button').forEach(b => b.addEventListener('click', () => show(b.dataset.view)));
async function post(url, method, body) {
  const res = await fetch(url, {method, headers: {'Content-Type': 'application/json'}, body: JSON.stringify(body)});
  if (!res.ok) {
    const msg = await res.text();
    console.error(url, res.status, msg);
    throw new Error(msg);
  }
  return res.json();
}`

var professorPage = template.Must(template.New("professor").Parse(head + `
<professor-app>` + professorNav + `
<professor-dashboard-view data-panel="dashboard"{{if ne .View "dashboard"}} hidden{{end}}><h1>Vítejte zpět</h1></professor-dashboard-view>
<section data-panel="classes"{{if ne .View "classes"}} hidden{{end}}>
<button type="button" id="btn-new-class">Vytvořit novou třídu</button>
<professor-class-detail-view hidden><h2 id="class-name"></h2><p>Kód pro připojení: <code class="font-mono"></code></p></professor-class-detail-view>
</section>
<section data-panel="library"{{if ne .View "library"}} hidden{{end}}>
<button type="button" id="btn-new-lesson">Přidat novou lekci</button>
<lesson-wizard hidden>
<input name="title" placeholder="Název lekce">
<input name="subject" placeholder="Předmět">
<button type="button" id="btn-create-manual">Vytvořit manuálně</button>
</lesson-wizard>
</section>
<div id="class-modal" class="fixed inset-0" hidden><div>
<input type="text" placeholder="Název třídy">
<button type="button" class="btn-save">Uložit</button>
</div></div>
</professor-app>
<script>` + navScript + `
const modal = document.getElementById('class-modal');
document.getElementById('btn-new-class').addEventListener('click', () => { modal.hidden = false; });
modal.querySelector('.btn-save').addEventListener('click', async () => {
  const c = await post('/api/classes', 'POST', {name: modal.querySelector('input').value});
  modal.hidden = true;
  const detail = document.querySelector('professor-class-detail-view');
  detail.querySelector('#class-name').textContent = c.Name;
  detail.querySelector('code').textContent = c.Code;
  detail.hidden = false;
});
const wizard = document.querySelector('lesson-wizard');
document.getElementById('btn-new-lesson').addEventListener('click', () => { wizard.hidden = false; });
document.getElementById('btn-create-manual').addEventListener('click', async () => {
  const l = await post('/api/lessons', 'POST', {
    title: wizard.querySelector('[name=title]').value,
    subject: wizard.querySelector('[name=subject]').value,
  });
  location.href = '/professor/editor/' + l.id;
});
</script></body></html>`))

var editorPage = template.Must(template.New("editor").Parse(head + `
<professor-app>` + professorNav + `
<lesson-editor data-id="{{.Lesson.ID}}">
<h1>{{.Lesson.Title}}</h1>
<div role="tablist">{{range .Tabs}}<button type="button" role="tab" data-type="{{.Type}}">{{.Label}}</button>{{end}}</div>
<textarea name="content" rows="6"></textarea>
<label><input type="checkbox" name="published"> Publikovat</label>
<button type="button" id="btn-save-lesson">Uložit</button>
<span class="saved-badge" hidden>Uloženo</span>
</lesson-editor>
</professor-app>
<script>` + navScript + `
const editor = document.querySelector('lesson-editor');
let type = '';
editor.querySelectorAll('[role=tab]').forEach(b => b.addEventListener('click', () => {
  type = b.dataset.type;
  editor.querySelectorAll('[role=tab]').forEach(o => o.setAttribute('aria-selected', String(o === b)));
}));
document.getElementById('btn-save-lesson').addEventListener('click', async () => {
  await post('/api/lessons/' + editor.dataset.id, 'PUT', {
    type,
    content: editor.querySelector('textarea').value,
    published: editor.querySelector('[name=published]').checked,
  });
  editor.querySelector('.saved-badge').hidden = false;
});
</script></body></html>`))

var studentPage = template.Must(template.New("student").Parse(head + `
<student-dashboard>
<h1>Moje třídy</h1>
<ul>{{range .Classes}}<li data-group-code="{{.Code}}">{{.Name}} ({{.Code}})</li>{{else}}<li>Zatím nejste v žádné třídě</li>{{end}}</ul>
<button type="button" id="btn-join-class">Připojit se k třídě</button>
<div id="join-modal" class="fixed inset-0" hidden><div>
<input name="code" placeholder="CODE">
<button type="button" id="btn-join-submit">Připojit</button>
</div></div>
</student-dashboard>
<script>
const modal = document.getElementById('join-modal');
document.getElementById('btn-join-class').addEventListener('click', () => { modal.hidden = false; });
document.getElementById('btn-join-submit').addEventListener('click', async () => {
  const res = await fetch('/api/join', {method: 'POST', headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({code: modal.querySelector('input').value})});
  if (!res.ok) {
    alert(await res.text());
    return;
  }
  modal.hidden = true;
  alert('Úspěšně jste se připojili ke třídě!');
});
</script></body></html>`))

var lessonPage = template.Must(template.New("lesson").Parse(head + `
<student-lesson-detail>
<h1>{{.Title}}</h1>
<div data-content-type="{{.Type}}">{{.Content}}</div>
</student-lesson-detail>
</body></html>`))

var notFoundPage = template.Must(template.New("404").Parse(head + `
<h1>Lekce nenalezena</h1>
</body></html>`))
