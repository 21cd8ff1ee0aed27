package apiclient

import (
	"fmt"
	"net/http"
	"strings"

	"farmacia/client/internal/logging"
	"farmacia/client/internal/metrics"
)

const (
	// LoginPage is the page the user is sent to when the session is rejected.
	LoginPage = "/login"
	// LoginEndpoint never triggers the forced-login policy.
	LoginEndpoint = "/auth/login"
)

// TokenSource supplies the current bearer token.
type TokenSource interface {
	Token() (string, bool)
}

// checkedTokenSource is a TokenSource that can also report why no token is
// available, e.g. because the store was closed.
type checkedTokenSource interface {
	LookupToken() (string, bool, error)
}

// SessionStore is the part of the session the guard needs. ClearToken reports
// whether a token was actually removed.
type SessionStore interface {
	TokenSource
	ClearToken() (bool, error)
}

// Navigator is the page surface. Visible is false in headless runs.
type Navigator interface {
	Visible() bool
	CurrentPage() string
	Navigate(page string)
}

// BearerAuth attaches "Authorization: Bearer <token>" when a token exists.
// Sources that implement LookupToken fail the request when the lookup fails,
// so a closed session is not mistaken for a logged-out one.
func BearerAuth(tokens TokenSource) RequestStage {
	return func(req *http.Request) error {
		if tokens == nil {
			return nil
		}
		if checked, ok := tokens.(checkedTokenSource); ok {
			token, ok, err := checked.LookupToken()
			if err != nil {
				return fmt.Errorf("read session token: %w", err)
			}
			if ok && token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			return nil
		}
		if token, ok := tokens.Token(); ok && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return nil
	}
}

// AuthGuard clears the session and sends the user to the login page when the
// backend rejects the token. Only the response that actually removes the token
// counts and redirects; concurrent 401s for the same session are logged only.
type AuthGuard struct {
	Session   SessionStore
	Navigator Navigator
	Logger    *logging.Logger
	Metrics   *metrics.Client
}

// Inspect implements ResponseInspector.
func (g *AuthGuard) Inspect(ex Exchange) {
	if g == nil || ex.Status != http.StatusUnauthorized {
		return
	}
	if ex.SkipAuthRedirect || strings.Contains(ex.Path, LoginEndpoint) {
		return
	}
	removed := true
	if g.Session != nil {
		var err error
		removed, err = g.Session.ClearToken()
		if err != nil {
			g.Logger.Errorf("clear session token: %v", err)
			return
		}
	}
	if !removed {
		g.Logger.Debugf("%s %s rejected with 401, session already cleared", ex.Method, ex.Path)
		return
	}
	g.Logger.Warnf("%s %s rejected with 401, clearing session", ex.Method, ex.Path)
	g.Metrics.ObserveForcedLogin()
	if g.Navigator == nil || !g.Navigator.Visible() {
		return
	}
	if g.Navigator.CurrentPage() == LoginPage {
		return
	}
	g.Navigator.Navigate(LoginPage)
}
