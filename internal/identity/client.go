package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrRejected is returned when the provider refuses credentials or a refresh token.
	ErrRejected = errors.New("identity: credentials rejected")
	// ErrUnavailable is returned when the provider cannot be reached.
	ErrUnavailable = errors.New("identity: provider unavailable")
)

// Token is the credential pair returned by the provider.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Client talks to the external identity provider.
type Client struct {
	baseURL   string
	publicKey string
	oauth     *oauth2.Config
	http      *http.Client
}

// NewClient constructs a provider client. timeout bounds every outbound call.
func NewClient(baseURL, publicKey string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		publicKey: publicKey,
		oauth: &oauth2.Config{
			ClientID: publicKey,
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseURL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http: &http.Client{Timeout: timeout},
	}
}

// SignIn exchanges email and password for a token using the password grant.
func (c *Client) SignIn(ctx context.Context, email, password string) (Token, error) {
	tok, err := c.oauth.PasswordCredentialsToken(c.context(ctx), email, password)
	if err != nil {
		return Token{}, classify(err)
	}
	return fromOAuth(tok), nil
}

// Refresh trades a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	if refreshToken == "" {
		return Token{}, ErrRejected
	}
	src := c.oauth.TokenSource(c.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return Token{}, classify(err)
	}
	out := fromOAuth(tok)
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return out, nil
}

// SignOut revokes the session behind the access token. A token the provider
// no longer recognises counts as signed out.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("apikey", c.publicKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode < 300, resp.StatusCode == http.StatusUnauthorized:
		return nil
	default:
		return fmt.Errorf("identity: sign out status %d", resp.StatusCode)
	}
}

func (c *Client) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

func fromOAuth(tok *oauth2.Token) Token {
	return Token{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken, ExpiresAt: tok.Expiry}
}

func classify(err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		if retrieve.Response != nil && retrieve.Response.StatusCode >= 500 {
			return fmt.Errorf("%w: status %d", ErrUnavailable, retrieve.Response.StatusCode)
		}
		return ErrRejected
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
