package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/timeline-comb/app/browser"
	"github.com/lysyi3m/timeline-comb/app/pace"
)

var ErrAuthentication = errors.New("authentication failed")

const (
	loggedInSelector = "[aria-label='Profile']"
	usernameSelector = "input[name='text']"
	passwordSelector = "input[name='password']"

	settleMin = 2 * time.Second
	settleMax = 4 * time.Second
)

type Credentials struct {
	Username string
	Password string
}

// Authenticator makes sure the browser is logged in, restoring the stored
// session when it is still accepted and logging in interactively otherwise.
type Authenticator struct {
	store   *Store
	pacer   pace.Pacer
	siteURL string
	creds   Credentials
	timeout time.Duration
	now     func() time.Time
}

func NewAuthenticator(store *Store, pacer pace.Pacer, siteURL string, creds Credentials, timeout time.Duration) *Authenticator {
	return &Authenticator{
		store:   store,
		pacer:   pacer,
		siteURL: strings.TrimRight(siteURL, "/"),
		creds:   creds,
		timeout: timeout,
		now:     time.Now,
	}
}

// Ensure returns nil once page is logged in. Every failure wraps
// ErrAuthentication.
func (a *Authenticator) Ensure(ctx context.Context, page browser.Page) error {
	restored, err := a.restore(ctx, page)
	if err != nil {
		return err
	}
	if restored {
		return nil
	}

	if err := a.login(ctx, page); err != nil {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	return nil
}

func (a *Authenticator) restore(ctx context.Context, page browser.Page) (bool, error) {
	record, err := a.store.Load()
	if err != nil {
		slog.Warn("Ignoring unreadable session", "path", a.store.Path(), "error", err)
		return false, nil
	}
	if record == nil || len(record.Cookies) == 0 {
		slog.Info("No stored session, logging in")
		return false, nil
	}

	if err := page.SetCookies(ctx, record.Cookies); err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("%w: %w", ErrAuthentication, ctx.Err())
		}
		slog.Warn("Failed to restore session cookies", "error", err)
		return false, nil
	}

	if err := page.Navigate(ctx, a.siteURL+"/home"); err != nil {
		return false, fmt.Errorf("%w: failed to open home page: %w", ErrAuthentication, err)
	}

	if _, err := page.WaitFor(ctx, loggedInSelector, a.timeout); err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("%w: %w", ErrAuthentication, ctx.Err())
		}
		slog.Info("Stored session rejected, logging in again", "saved_at", record.SavedAt)
		if err := a.store.Clear(); err != nil {
			slog.Warn("Failed to clear rejected session", "error", err)
		}
		return false, nil
	}

	slog.Info("Session restored", "saved_at", record.SavedAt, "cookies", len(record.Cookies))
	return true, nil
}

func (a *Authenticator) login(ctx context.Context, page browser.Page) error {
	if a.creds.Username == "" || a.creds.Password == "" {
		return fmt.Errorf("no credentials configured")
	}

	if err := page.Navigate(ctx, a.siteURL+"/i/flow/login"); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}

	if err := a.fill(ctx, page, usernameSelector, a.creds.Username); err != nil {
		return err
	}
	if err := a.fill(ctx, page, passwordSelector, a.creds.Password); err != nil {
		return err
	}

	if _, err := page.WaitFor(ctx, loggedInSelector, a.timeout); err != nil {
		return fmt.Errorf("login was not accepted: %w", err)
	}

	if err := a.pacer.Pause(ctx, settleMin, settleMax); err != nil {
		return err
	}

	cookies, err := page.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("failed to read session cookies: %w", err)
	}

	// a save failure does not fail the login
	if err := a.store.Save(&Record{Cookies: cookies, SavedAt: a.now().UTC()}); err != nil {
		slog.Warn("Failed to save session", "path", a.store.Path(), "error", err)
	}

	slog.Info("Logged in", "username", a.creds.Username, "cookies", len(cookies))
	return nil
}

func (a *Authenticator) fill(ctx context.Context, page browser.Page, selector, text string) error {
	field, err := page.WaitFor(ctx, selector, a.timeout)
	if err != nil {
		return fmt.Errorf("failed to find login field %s: %w", selector, err)
	}
	if err := page.Type(ctx, field, text, true); err != nil {
		return fmt.Errorf("failed to fill login field %s: %w", selector, err)
	}
	return nil
}
