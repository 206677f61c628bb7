package reddit

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Credentials for a Reddit "script" app using the password grant.
type Credentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

// passwordSource fetches a fresh token with the password grant each time it
// is asked. Reddit issues no refresh token for script apps.
type passwordSource struct {
	ctx  context.Context
	conf *oauth2.Config
	user string
	pass string
}

func (s passwordSource) Token() (*oauth2.Token, error) {
	return s.conf.PasswordCredentialsToken(s.ctx, s.user, s.pass)
}

// userAgentTransport stamps every request with the configured User-Agent,
// which Reddit requires on token and API calls alike.
type userAgentTransport struct {
	base http.RoundTripper
	ua   string
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.ua)
	return t.base.RoundTrip(req)
}

// NewHTTPClient returns an http.Client that authenticates with c and caches
// the token until shortly before it expires.
func NewHTTPClient(ctx context.Context, c Credentials) *http.Client {
	base := &http.Client{
		Timeout:   10 * time.Second,
		Transport: userAgentTransport{base: http.DefaultTransport, ua: c.UserAgent},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	conf := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	ts := oauth2.ReuseTokenSource(nil, passwordSource{ctx: ctx, conf: conf, user: c.Username, pass: c.Password})
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = 15 * time.Second
	return client
}
