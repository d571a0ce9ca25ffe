package oauth

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// Google authenticates against Google's OpenID Connect endpoints.
type Google struct {
	conf *oauth2.Config
}

// NewGoogle returns a configured Google provider.
func NewGoogle(clientID, clientSecret, redirectURL string) (*Google, error) {
	if err := validateConfig(clientID, clientSecret, redirectURL); err != nil {
		return nil, err
	}
	return &Google{conf: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}}, nil
}

func (g *Google) Name() string { return "google" }

func (g *Google) AuthCodeURL(state string) string {
	return g.conf.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (g *Google) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return exchange(ctx, g.conf, code)
}

func (g *Google) FetchProfile(ctx context.Context, token *oauth2.Token) (Profile, error) {
	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := getJSON(ctx, g.conf, token, googleUserInfoURL, &info); err != nil {
		return Profile{}, err
	}
	if info.Sub == "" {
		return Profile{}, errors.New("google: userinfo response missing sub")
	}
	return Profile{
		SubjectID:     info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		Name:          info.Name,
	}, nil
}
