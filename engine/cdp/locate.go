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

package cdp

import (
	"encoding/json"
	"fmt"

	"github.com/ttbt-io/phaserunner/runner"
)

// TagAttr marks the element an action resolved to so that chromedp's query
// actions can address it with a plain CSS selector.
const TagAttr = "data-phaserunner"

// finderJS returns the elements matching a locator, in document order.
// Role and text matching approximate the accessibility tree: substring and
// case-insensitive unless exact is set.
const finderJS = `(function(loc) {
  const implicit = {
    button: 'button,input[type=button],input[type=submit],input[type=reset],summary',
    link: 'a[href],area[href]',
    textbox: 'input:not([type]),input[type=text],input[type=email],input[type=password],input[type=search],input[type=tel],input[type=url],input[type=number],textarea',
    checkbox: 'input[type=checkbox]',
    radio: 'input[type=radio]',
    combobox: 'select',
    heading: 'h1,h2,h3,h4,h5,h6',
    list: 'ul,ol',
    listitem: 'li',
    dialog: 'dialog',
    img: 'img[alt]',
    table: 'table',
    row: 'tr',
    navigation: 'nav',
  };
  const norm = s => (s || '').replace(/\s+/g, ' ').trim();
  const match = (got, want) => loc.exact ? norm(got) === norm(want) : norm(got).toLowerCase().includes(norm(want).toLowerCase());
  const accName = el => {
    const label = el.getAttribute('aria-label');
    if (label) return label;
    const by = el.getAttribute('aria-labelledby');
    if (by) return by.split(/\s+/).map(id => { const n = document.getElementById(id); return n ? n.textContent : ''; }).join(' ');
    if (el.labels && el.labels.length) return Array.from(el.labels).map(l => l.textContent).join(' ');
    if (el.tagName === 'INPUT' && /^(button|submit|reset)$/i.test(el.type)) return el.value;
    const text = el.innerText || el.textContent;
    if (norm(text)) return text;
    return el.getAttribute('placeholder') || el.getAttribute('title') || el.getAttribute('alt') || '';
  };
  switch (loc.kind) {
  case 'css':
    return Array.from(document.querySelectorAll(loc.query));
  case 'xpath': {
    const out = [];
    const r = document.evaluate(loc.query, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
    for (let i = 0; i < r.snapshotLength; i++) {
      const n = r.snapshotItem(i);
      if (n.nodeType === 1) out.push(n);
    }
    return out;
  }
  case 'role': {
    let sel = '[role="' + CSS.escape(loc.role) + '"]';
    if (implicit[loc.role]) sel += ',' + implicit[loc.role];
    return Array.from(document.querySelectorAll(sel)).filter(el => {
      const r = el.getAttribute('role');
      if (r && r !== loc.role) return false;
      return !loc.name || match(accName(el), loc.name);
    });
  }
  case 'text': {
    const root = document.body || document.documentElement;
    const all = Array.from(root.querySelectorAll('*')).filter(el =>
      !/^(SCRIPT|STYLE|NOSCRIPT|TEMPLATE|HEAD)$/.test(el.tagName) && match(el.textContent, loc.text));
    const set = new Set(all);
    return all.filter(el => !Array.from(el.children).some(c => set.has(c)));
  }
  case 'attr':
    return Array.from(document.querySelectorAll('[' + CSS.escape(loc.attr) + ']')).filter(el => el.getAttribute(loc.attr) === loc.value);
  }
  return [];
})`

const visibleJS = `(el => {
  if (!el.isConnected || el.getClientRects().length === 0) return false;
  const style = window.getComputedStyle(el);
  return style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
})`

type locator struct {
	Kind  string `json:"kind"`
	Query string `json:"query,omitempty"`
	Role  string `json:"role,omitempty"`
	Name  string `json:"name,omitempty"`
	Text  string `json:"text,omitempty"`
	Attr  string `json:"attr,omitempty"`
	Value string `json:"value,omitempty"`
	Exact bool   `json:"exact,omitempty"`
}

func locatorJSON(s runner.Strategy) string {
	b, _ := json.Marshal(locator{
		Kind:  string(s.Kind),
		Query: s.Query,
		Role:  s.Role,
		Name:  s.Name,
		Text:  s.Text,
		Attr:  s.Attr,
		Value: s.Value,
		Exact: s.Exact,
	})
	return string(b)
}

func quoteJS(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// nativeSelector returns a selector chromedp can query directly, if s has one.
func nativeSelector(s runner.Strategy) (string, bool) {
	if s.Kind == runner.KindCSS {
		return s.Query, true
	}
	return "", false
}

func tagSelector(tag int64) string {
	return fmt.Sprintf(`[%s="%d"]`, TagAttr, tag)
}

func countExpr(s runner.Strategy, visibleOnly bool) string {
	if visibleOnly {
		return fmt.Sprintf(`%s(%s).filter(%s).length`, finderJS, locatorJSON(s), visibleJS)
	}
	return fmt.Sprintf(`%s(%s).length`, finderJS, locatorJSON(s))
}

// withFirst evaluates body with el bound to the first match and returns false
// when nothing matches.
func withFirst(s runner.Strategy, body string) string {
	return fmt.Sprintf(`(function() {
  const el = %s(%s)[0];
  if (!el) return false;
  %s
  return true;
})()`, finderJS, locatorJSON(s), body)
}

func tagExpr(s runner.Strategy, tag int64) string {
	return withFirst(s, fmt.Sprintf(`el.setAttribute(%s, %s);`, quoteJS(TagAttr), quoteJS(fmt.Sprint(tag))))
}

func clickExpr(s runner.Strategy) string {
	return withFirst(s, `el.click();`)
}

func fillExpr(s runner.Strategy, value string) string {
	return withFirst(s, fmt.Sprintf(`const v = %s;
  el.focus();
  if (el.isContentEditable) {
    el.textContent = v;
  } else {
    const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype :
      el instanceof HTMLSelectElement ? HTMLSelectElement.prototype : HTMLInputElement.prototype;
    Object.getOwnPropertyDescriptor(proto, 'value').set.call(el, v);
  }
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));`, quoteJS(value)))
}

// textExpr yields the first match's value for form fields and its rendered text
// otherwise, or null when nothing matches.
func textExpr(s runner.Strategy) string {
	return fmt.Sprintf(`(function() {
  const el = %s(%s)[0];
  if (!el) return null;
  if (/^(INPUT|TEXTAREA|SELECT)$/.test(el.tagName)) return el.value;
  return el.innerText || el.textContent || '';
})()`, finderJS, locatorJSON(s))
}
