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
	"time"
)

// Engine opens isolated pages. Implementations live in engine/cdp and engine/pw.
type Engine interface {
	// NewPage opens a page in a fresh browser context that shares no cookies or
	// storage with any other page.
	NewPage(ctx context.Context, opts PageOptions) (Page, error)
	Close() error
}

// PageOptions configure a new page.
type PageOptions struct {
	Label   string        // used to prefix forwarded console lines
	Timeout time.Duration // engine default timeout
	Logf    func(format string, args ...any)
}

// Cookie is set on a page before navigation.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
	Secure bool
}

// DialogPolicy tells a page how to answer the next native dialogs.
type DialogPolicy struct {
	Accept     bool
	PromptText string
}

// Page is the per-session browser surface the core drives. Every method that
// touches the browser honours ctx's deadline.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	SetCookie(ctx context.Context, c Cookie) error

	// Count reports how many elements s matches right now, without waiting.
	Count(ctx context.Context, s Strategy) (int, error)

	// Click and Fill are the engine-native actions. With force they act on the
	// first match and skip actionability checks.
	Click(ctx context.Context, s Strategy, force bool) error
	Fill(ctx context.Context, s Strategy, value string, force bool) error

	// ScriptClick and ScriptFill bypass the engine's interaction model and
	// operate on the first match from page script.
	ScriptClick(ctx context.Context, s Strategy) error
	ScriptFill(ctx context.Context, s Strategy, value string) error

	Text(ctx context.Context, s Strategy) (string, error)
	WaitVisible(ctx context.Context, s Strategy) error
	WaitHidden(ctx context.Context, s Strategy) error
	// WaitIdle waits until the page has no in-flight network requests.
	WaitIdle(ctx context.Context) error
	Eval(ctx context.Context, expr string, out any) error

	// SetDialogPolicy takes effect for dialogs opened after it returns.
	SetDialogPolicy(p DialogPolicy)
	// Dialogs returns the messages of dialogs handled so far.
	Dialogs() []string
	// Console returns the most recent console and page error lines.
	Console() []string

	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}
