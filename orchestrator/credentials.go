package orchestrator

import (
	"context"
	"errors"

	"github.com/use-agent/livebox/cookiestore"
	"github.com/use-agent/livebox/models"
)

// SaveCredentials parses a raw cookie header and persists it as the
// credentials, replacing any saved before. It returns the cookie count.
func (o *Orchestrator) SaveCredentials(header string) (int, error) {
	jar := cookiestore.FromHeaderString(header, o.site.CookieDomain)
	if jar.Len() == 0 {
		return 0, models.NewScrapeError(models.ErrCodeInvalidInput, "cookie header holds no name=value pairs", nil)
	}
	if err := o.store.Save(jar); err != nil {
		return 0, models.NewScrapeError(models.ErrCodeCredentialsIO, "save credentials", err)
	}
	o.logger.Info("credentials saved", "cookies", jar.Len(), "path", o.store.Path())
	return jar.Len(), nil
}

// LoadCredentials returns the persisted credentials as a cookie header.
func (o *Orchestrator) LoadCredentials() (string, error) {
	jar, err := o.store.Load()
	if err != nil {
		return "", storeError(err)
	}
	return jar.HeaderString(), nil
}

// ClearCredentials removes the persisted credentials. Clearing when nothing
// is saved succeeds with removed=false.
func (o *Orchestrator) ClearCredentials() (removed bool, err error) {
	removed, err = o.store.Clear()
	if err != nil {
		return false, models.NewScrapeError(models.ErrCodeCredentialsIO, "clear credentials", err)
	}
	if removed {
		o.logger.Info("credentials cleared", "path", o.store.Path())
	}
	return removed, nil
}

// CredentialsPath returns where credentials are persisted.
func (o *Orchestrator) CredentialsPath() string {
	return o.store.Path()
}

// Login opens the login surface unprompted, waits for the user to sign in and
// persists the resulting cookies. It returns the cookie count.
func (o *Orchestrator) Login(ctx context.Context) (int, error) {
	if o.auth == nil {
		return 0, models.NewScrapeError(models.ErrCodeInteractiveFailed, "interactive login is disabled", nil)
	}
	header, err := o.auth.RequestLogin(ctx, o.site.LoginURL, o.authCfg.LoginTimeout)
	if err != nil {
		return 0, interactiveError(err, "interactive login")
	}
	jar, err := o.store.Replace(header, o.site.CookieDomain)
	if err != nil {
		return 0, models.NewScrapeError(models.ErrCodeCredentialsIO, "persist credentials", err)
	}
	o.logger.Info("credentials saved from interactive login", "cookies", jar.Len())
	return jar.Len(), nil
}

func storeError(err error) error {
	var perr *cookiestore.ParseError
	switch {
	case errors.Is(err, cookiestore.ErrNotFound):
		return models.NewScrapeError(models.ErrCodeCredentialsNotFound, "no saved credentials", err)
	case errors.As(err, &perr):
		return models.NewScrapeError(models.ErrCodeCredentialsCorrupt, "saved credentials are corrupt", err)
	}
	return models.NewScrapeError(models.ErrCodeCredentialsIO, "read credentials", err)
}
