package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/timeline-comb/app/browser"
)

const (
	site       = "https://x.com"
	homePage   = `<nav><a aria-label="Profile" href="/alice">Profile</a></nav>`
	loginPage  = `<form><input name="text"></form>`
	passwdPage = `<form><input name="password" type="password"></form>`
)

type noPause struct{}

func (noPause) Pause(ctx context.Context, _, _ time.Duration) error { return ctx.Err() }

var creds = Credentials{Username: "alice", Password: "secret"}

// loginFlow wires a page whose login form leads to loggedInURL.
func loginFlow(page *browser.StaticPage, loggedInURL string) {
	page.AddPage(site+"/i/flow/login", loginPage)
	page.AddPage(site+"/i/flow/password", passwdPage)
	page.OnSubmit(func(field, text string) string {
		switch field {
		case "text":
			return site + "/i/flow/password"
		case "password":
			if text == creds.Password {
				return loggedInURL
			}
			return site + "/i/flow/error"
		}
		return ""
	})
}

func TestEnsureRestoresStoredSession(t *testing.T) {
	ctx := context.Background()
	store := NewStore(filepath.Join(t.TempDir(), "cookies.json"))
	require.NoError(t, store.Save(&Record{Cookies: []browser.Cookie{{Name: "auth_token", Value: "v", Domain: ".x.com"}}}))

	page := browser.NewStaticPage()
	page.AddPage(site+"/home", homePage)

	auth := NewAuthenticator(store, noPause{}, site, creds, time.Second)
	require.NoError(t, auth.Ensure(ctx, page))

	cookies, err := page.Cookies(ctx)
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "auth_token", cookies[0].Name)
	assert.Empty(t, page.Typed(), "no interactive login")
}

func TestEnsureLogsInAndSavesSession(t *testing.T) {
	ctx := context.Background()
	store := NewStore(filepath.Join(t.TempDir(), "cookies.json"))

	page := browser.NewStaticPage()
	page.AddPage(site+"/home", homePage)
	loginFlow(page, site+"/home")
	require.NoError(t, page.SetCookies(ctx, []browser.Cookie{{Name: "auth_token", Value: "fresh", Domain: ".x.com"}}))

	auth := NewAuthenticator(store, noPause{}, site, creds, time.Second)
	auth.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, auth.Ensure(ctx, page))

	assert.Equal(t, []string{"text=alice", "password=secret"}, page.Typed())

	record, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Len(t, record.Cookies, 1)
	assert.Equal(t, "fresh", record.Cookies[0].Value)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), record.SavedAt)
}

func TestEnsureReplacesRejectedSession(t *testing.T) {
	ctx := context.Background()
	store := NewStore(filepath.Join(t.TempDir(), "cookies.json"))
	require.NoError(t, store.Save(&Record{Cookies: []browser.Cookie{{Name: "auth_token", Value: "stale"}}}))

	page := browser.NewStaticPage()
	// the home page shows no profile link for the stale session
	page.AddPage(site+"/home", `<a href="/login">Log in</a>`)
	page.AddPage(site+"/home?session=new", homePage)
	loginFlow(page, site+"/home?session=new")

	auth := NewAuthenticator(store, noPause{}, site, creds, time.Second)
	require.NoError(t, auth.Ensure(ctx, page))

	assert.Equal(t, []string{"text=alice", "password=secret"}, page.Typed())

	record, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, record)
	// the page keeps the stale cookie it was given, and the new record holds it
	assert.Len(t, record.Cookies, 1)
}

func TestEnsureFailsOnRejectedLogin(t *testing.T) {
	ctx := context.Background()
	store := NewStore(filepath.Join(t.TempDir(), "cookies.json"))

	page := browser.NewStaticPage()
	loginFlow(page, site+"/home")

	auth := NewAuthenticator(store, noPause{}, site, Credentials{Username: "alice", Password: "wrong"}, time.Second)
	err := auth.Ensure(ctx, page)
	assert.ErrorIs(t, err, ErrAuthentication)

	record, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, record, "nothing is saved after a failed login")
}

func TestEnsureFailsWithoutCredentials(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "cookies.json"))
	auth := NewAuthenticator(store, noPause{}, site, Credentials{}, time.Second)

	err := auth.Ensure(context.Background(), browser.NewStaticPage())
	assert.ErrorIs(t, err, ErrAuthentication)
}
