package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	// Passive acquisition: recheck the state at a fixed cadence.
	defaultAcquireAttempts = 10
	defaultAcquireInterval = 2500 * time.Millisecond

	// Escalated acquisition: drive a page load and poll capture.
	defaultPollAttempts = 60
	defaultPollInterval = 500 * time.Millisecond

	// Keep the driven page alive briefly after a token lands so in-page
	// capture can finish.
	defaultCloseGrace = 2 * time.Second
)

// TimeoutError reports that no session token was observed within the
// acquisition budget.
type TimeoutError struct {
	Attempts int
	Window   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf(
		"no Moodle session token observed after %d attempts (%s): "+
			"you may not be logged into Moodle, there may have been no Moodle "+
			"activity to observe yet, or a network or permission problem is "+
			"blocking access to the Moodle host",
		e.Attempts, e.Window)
}

// PageLoader drives a background load of the Moodle landing page with
// capture attached, so that the page itself emits a token. The returned
// close function tears the page down.
type PageLoader interface {
	Load(ctx context.Context) (close func(), err error)
}

// BrowserLoader loads the landing page in a headless browser tab via
// chromedp, with the Observer's network listener attached before
// navigation and DOM extraction run after load. The configured
// MoodleSession cookie is injected before navigation: a sesskey is bound
// to the server-side session, so a token captured from an anonymous tab
// would be rejected by the authenticated fetch.
type BrowserLoader struct {
	URL           string
	SessionCookie string
	Observer      *Observer
}

// sessionCookie builds the cookie-injection step for the configured
// session, or nil when no cookie is configured.
func (l *BrowserLoader) sessionCookie() *network.SetCookieParams {
	if l.SessionCookie == "" {
		return nil
	}
	return network.SetCookie("MoodleSession", l.SessionCookie).WithURL(l.URL)
}

func (l *BrowserLoader) Load(ctx context.Context) (func(), error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	closeTab := func() {
		cancelTab()
		cancelAlloc()
	}

	l.Observer.Attach(tabCtx)

	tasks := chromedp.Tasks{network.Enable()}
	if cookie := l.sessionCookie(); cookie != nil {
		tasks = append(tasks, cookie)
	}
	tasks = append(tasks,
		chromedp.Navigate(l.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)

	err := chromedp.Run(tabCtx, tasks)
	if err != nil {
		closeTab()
		return nil, fmt.Errorf("failed to load Moodle landing page: %w", err)
	}

	l.Observer.ExtractFromPage(tabCtx)
	return closeTab, nil
}

// Bootstrapper guarantees a session token is available before the fetcher
// runs. The passive path waits for capture to observe one; the escalated
// path forces a landing-page load to provoke token emission.
type Bootstrapper struct {
	state  *State
	loader PageLoader
	logger *slog.Logger

	acquireAttempts int
	acquireInterval time.Duration
	pollAttempts    int
	pollInterval    time.Duration
	closeGrace      time.Duration
}

// NewBootstrapper creates a Bootstrapper with the default attempt budgets.
func NewBootstrapper(state *State, loader PageLoader, logger *slog.Logger) *Bootstrapper {
	return &Bootstrapper{
		state:           state,
		loader:          loader,
		logger:          logger,
		acquireAttempts: defaultAcquireAttempts,
		acquireInterval: defaultAcquireInterval,
		pollAttempts:    defaultPollAttempts,
		pollInterval:    defaultPollInterval,
		closeGrace:      defaultCloseGrace,
	}
}

// AcquireToken returns the current token if one is set, otherwise rechecks
// at a fixed cadence until the attempt budget runs out. A cached token is
// returned as-is; staleness is never re-validated.
func (b *Bootstrapper) AcquireToken(ctx context.Context) (string, error) {
	if token := b.state.Get(); token != "" {
		return token, nil
	}

	for attempt := 1; attempt <= b.acquireAttempts; attempt++ {
		b.logger.Debug("waiting for session token", "attempt", attempt)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(b.acquireInterval):
		}
		if token := b.state.Get(); token != "" {
			return token, nil
		}
	}

	return "", &TimeoutError{
		Attempts: b.acquireAttempts,
		Window:   time.Duration(b.acquireAttempts) * b.acquireInterval,
	}
}

// AcquireTokenWithNavigation resets the state, drives a background load of
// the Moodle landing page, and polls for a captured token. The page is kept
// alive for a short grace period after success so in-page capture can
// finish before teardown.
func (b *Bootstrapper) AcquireTokenWithNavigation(ctx context.Context) (string, error) {
	if token := b.state.Get(); token != "" {
		return token, nil
	}

	b.state.Reset()
	b.logger.Info("no session token observed, loading Moodle to provoke one")

	closeTab, err := b.loader.Load(ctx)
	if err != nil {
		return "", err
	}

	for attempt := 1; attempt <= b.pollAttempts; attempt++ {
		if token := b.state.Get(); token != "" {
			b.logger.Debug("session token captured", "attempt", attempt)
			select {
			case <-ctx.Done():
			case <-time.After(b.closeGrace):
			}
			closeTab()
			return token, nil
		}
		select {
		case <-ctx.Done():
			closeTab()
			return "", ctx.Err()
		case <-time.After(b.pollInterval):
		}
	}

	closeTab()
	return "", &TimeoutError{
		Attempts: b.pollAttempts,
		Window:   time.Duration(b.pollAttempts) * b.pollInterval,
	}
}
