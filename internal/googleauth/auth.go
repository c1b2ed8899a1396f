package googleauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// CalendarEventsScope is the write scope requested for event creation.
const CalendarEventsScope = "https://www.googleapis.com/auth/calendar.events"

// DefaultIntrospectURL is Google's token introspection endpoint. A non-2xx
// answer means the token is invalid or expired.
const DefaultIntrospectURL = "https://www.googleapis.com/oauth2/v1/tokeninfo"

// ErrTokenInvalid reports that introspection rejected an access token.
var ErrTokenInvalid = errors.New("access token rejected by introspection")

// Kind discriminates the auth failure classes surfaced to the caller.
type Kind int

const (
	// KindGeneric is any failure not otherwise classified.
	KindGeneric Kind = iota
	// KindConsentDeclined means the user refused the consent screen.
	KindConsentDeclined
	// KindScopeRevoked means a previously granted scope no longer validates.
	KindScopeRevoked
)

// AuthError is a classified sink authentication failure. Each kind carries
// its own remediation text.
type AuthError struct {
	Kind Kind
	Err  error
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case KindConsentDeclined:
		return "Google Calendar access was declined: reset the app's access " +
			"in your Google account settings and run the sync again to reauthorize"
	case KindScopeRevoked:
		return "Google Calendar access was revoked after it had been granted: " +
			"the cached token has been discarded, run the sync again to reauthorize"
	default:
		return fmt.Sprintf("Google Calendar authentication failed: %v", e.Err)
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

// Authenticator obtains and validates an OAuth access token with
// calendar-write scope. Tokens are cached through a TokenStore; an invalid
// cached token is evicted and replaced by exactly one fresh interactive
// grant.
type Authenticator struct {
	oauthConfig   *oauth2.Config
	store         TokenStore
	httpClient    *http.Client
	introspectURL string
	logger        *slog.Logger

	// grant performs the interactive consent flow. Overridable in tests.
	grant func(ctx context.Context) (*oauth2.Token, error)
}

// NewAuthenticator creates an Authenticator for the given OAuth client.
func NewAuthenticator(clientID, clientSecret string, store TokenStore, logger *slog.Logger) *Authenticator {
	a := &Authenticator{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{CalendarEventsScope},
			Endpoint:     google.Endpoint,
		},
		store:         store,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		introspectURL: DefaultIntrospectURL,
		logger:        logger,
	}
	a.grant = a.interactiveGrant
	return a
}

// ValidToken returns an access token that passed introspection. A cached
// token is validated first; if it is invalid or expired, the cache is
// evicted and a fresh interactive grant is attempted exactly once.
func (a *Authenticator) ValidToken(ctx context.Context) (*oauth2.Token, error) {
	token, err := a.store.LoadToken()
	if err != nil {
		return nil, &AuthError{Kind: KindGeneric, Err: err}
	}

	hadCachedToken := token != nil
	if token == nil {
		token, err = a.grant(ctx)
		if err != nil {
			return nil, classifyGrantError(err)
		}
	}

	if err := a.Introspect(ctx, token.AccessToken); err == nil {
		return token, nil
	} else if !errors.Is(err, ErrTokenInvalid) {
		return nil, &AuthError{Kind: KindGeneric, Err: err}
	}

	// Invalid or expired: evict and retry with a fresh grant, once.
	a.logger.Info("cached Google token failed introspection, requesting a fresh grant")
	if err := a.store.ClearToken(); err != nil {
		return nil, &AuthError{Kind: KindGeneric, Err: err}
	}

	token, err = a.grant(ctx)
	if err != nil {
		return nil, classifyGrantError(err)
	}

	if err := a.Introspect(ctx, token.AccessToken); err != nil {
		if errors.Is(err, ErrTokenInvalid) && hadCachedToken {
			return nil, &AuthError{Kind: KindScopeRevoked, Err: err}
		}
		return nil, &AuthError{Kind: KindGeneric, Err: err}
	}
	return token, nil
}

// Introspect validates an access token against the introspection endpoint.
// Returns ErrTokenInvalid on any non-2xx answer.
func (a *Authenticator) Introspect(ctx context.Context, accessToken string) error {
	endpoint := fmt.Sprintf("%s?access_token=%s", a.introspectURL, url.QueryEscape(accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build introspection request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("introspection request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("introspection returned status %d: %w", resp.StatusCode, ErrTokenInvalid)
	}
	return nil
}

// classifyGrantError maps an interactive grant failure to the taxonomy.
func classifyGrantError(err error) *AuthError {
	if strings.Contains(err.Error(), "access_denied") {
		return &AuthError{Kind: KindConsentDeclined, Err: err}
	}
	return &AuthError{Kind: KindGeneric, Err: err}
}

// interactiveGrant runs the browser-based consent flow: a local HTTP server
// receives the authorization code, which is exchanged for a token. The
// token is persisted before returning.
func (a *Authenticator) interactiveGrant(ctx context.Context) (*oauth2.Token, error) {
	redirectURL, codeChan, errorChan, err := startLocalServer()
	if err != nil {
		return nil, fmt.Errorf("failed to start local server: %w", err)
	}

	a.oauthConfig.RedirectURL = redirectURL
	authURL := a.oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Println("Please visit the following URL to authorize the application:")
	fmt.Println(authURL)
	fmt.Println("\nWaiting for authorization...")

	var code string
	select {
	case code = <-codeChan:
	case err := <-errorChan:
		return nil, fmt.Errorf("failed to receive authorization code: %w", err)
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("authorization timeout: no response received within 5 minutes")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := a.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if err := a.store.SaveToken(token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	return token, nil
}
