// Package oauth adapts external identity providers to a single narrow
// interface. The engine only ever sees a normalized Profile; provider
// quirks (GitHub's separate email endpoint, Google's claim names) stay in
// this package.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// requestTimeout bounds every call to a provider so a slow upstream cannot
// stall a login.
const requestTimeout = 10 * time.Second

// Profile is the normalized identity a provider reports for an authorized
// user. SubjectID is the provider's stable identifier; email addresses can
// change, SubjectID cannot.
type Profile struct {
	SubjectID     string
	Email         string
	EmailVerified bool
	Name          string
}

// Provider is one configured OAuth identity provider.
type Provider interface {
	// Name is the stable lowercase identifier used in routes and storage.
	Name() string

	// AuthCodeURL builds the authorization redirect carrying state.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchProfile loads the authorized user's profile.
	FetchProfile(ctx context.Context, token *oauth2.Token) (Profile, error)
}

func exchange(ctx context.Context, conf *oauth2.Config, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return token, nil
}

// getJSON performs an authorized GET and decodes the response body.
func getJSON(ctx context.Context, conf *oauth2.Config, token *oauth2.Token, url string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	client := conf.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", url, err)
	}
	return nil
}

func validateConfig(clientID, clientSecret, redirectURL string) error {
	if clientID == "" || clientSecret == "" {
		return errors.New("oauth: client id and secret are required")
	}
	if redirectURL == "" {
		return errors.New("oauth: redirect URL is required")
	}
	return nil
}
