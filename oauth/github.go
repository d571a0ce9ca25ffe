package oauth

import (
	"context"
	"errors"
	"strconv"

	"golang.org/x/oauth2"
	ghendpoint "golang.org/x/oauth2/github"
)

const (
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
)

// GitHub authenticates against GitHub's OAuth endpoints. GitHub does not
// return email verification state on the user endpoint, so a second call to
// the emails endpoint resolves the primary address.
type GitHub struct {
	conf *oauth2.Config
}

// NewGitHub returns a configured GitHub provider.
func NewGitHub(clientID, clientSecret, redirectURL string) (*GitHub, error) {
	if err := validateConfig(clientID, clientSecret, redirectURL); err != nil {
		return nil, err
	}
	return &GitHub{conf: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     ghendpoint.Endpoint,
	}}, nil
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) AuthCodeURL(state string) string {
	return g.conf.AuthCodeURL(state)
}

func (g *GitHub) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return exchange(ctx, g.conf, code)
}

func (g *GitHub) FetchProfile(ctx context.Context, token *oauth2.Token) (Profile, error) {
	var user struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
	}
	if err := getJSON(ctx, g.conf, token, githubUserURL, &user); err != nil {
		return Profile{}, err
	}
	if user.ID == 0 {
		return Profile{}, errors.New("github: user response missing id")
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, g.conf, token, githubEmailsURL, &emails); err != nil {
		return Profile{}, err
	}

	profile := Profile{
		SubjectID: strconv.FormatInt(user.ID, 10),
		Name:      user.Name,
	}
	if profile.Name == "" {
		profile.Name = user.Login
	}
	for _, e := range emails {
		if e.Primary {
			profile.Email = e.Email
			profile.EmailVerified = e.Verified
			break
		}
	}
	return profile, nil
}
