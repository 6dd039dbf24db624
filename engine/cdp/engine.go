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

// Package cdp drives Chrome over the DevTools protocol with chromedp.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/ttbt-io/phaserunner/runner"
)

// Options configure the browser.
type Options struct {
	// RemoteURL, when set, attaches to a running browser's DevTools endpoint
	// (ws://host:9222 or http://host:9222) instead of launching one.
	RemoteURL string
	Headless  bool
	// ExecPath overrides the Chrome binary.
	ExecPath string
	Width    int
	Height   int
	Logf     func(format string, args ...any)
}

// Engine owns one browser. Every page lives in its own browser context.
type Engine struct {
	logf          func(format string, args ...any)
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc

	mu     sync.Mutex
	closed bool
}

var _ runner.Engine = (*Engine)(nil)

// New starts (or attaches to) the browser.
func New(ctx context.Context, opts Options) (*Engine, error) {
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}

	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		width, height := opts.Width, opts.Height
		if width == 0 || height == 0 {
			width, height = 1280, 900
		}
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.NoSandbox,
			chromedp.WindowSize(width, height),
		)
		if opts.ExecPath != "" {
			execOpts = append(execOpts, chromedp.ExecPath(opts.ExecPath))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(ctx, execOpts...)
	}

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(logf),
		chromedp.WithLogf(logf),
	)
	// Per-page browser contexts can only be created once the browser runs.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return &Engine{
		logf:          logf,
		cancelAlloc:   cancelAlloc,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
	}, nil
}

// NewPage opens a tab in a fresh browser context. The tab outlives ctx; it is
// closed by Page.Close or Engine.Close.
func (e *Engine) NewPage(ctx context.Context, opts runner.PageOptions) (runner.Page, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, errors.New("engine closed")
	}

	tabCtx, cancel := chromedp.NewContext(e.browserCtx, chromedp.WithNewBrowserContext())
	p := newPage(tabCtx, cancel, opts, e.logf)
	if err := p.run(ctx, network.Enable()); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return p, nil
}

// Close shuts the browser down. Pages still open are closed with it.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	err := chromedp.Cancel(e.browserCtx)
	e.cancelBrowser()
	e.cancelAlloc()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}
