package auth

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// CallbackPath is where Google redirects after consent
const CallbackPath = "/api/auth/callback"

// Scopes requested at login. openid and email give us an id_token for /api/me.
var Scopes = []string{
	gmail.GmailReadonlyScope,
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
}

// OAuth builds the Google OAuth2 config for a given redirect URL
func OAuth(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

// ConsentURL returns the Google consent screen URL. Offline access with a
// forced consent prompt makes Google hand out a refresh token every time.
func ConsentURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// NewState returns a fresh state nonce for CSRF protection
func NewState() string {
	return uuid.NewString()
}

// IsLocalhost reports whether the request was made against a local host
func IsLocalhost(r *http.Request) bool {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.EqualFold(host, "localhost") || host == "127.0.0.1" || host == "::1"
}

// RedirectURL derives the callback URL. A configured base URL wins; otherwise
// the request host is used, over plain http for localhost.
func RedirectURL(baseURL string, r *http.Request) string {
	if baseURL != "" {
		return strings.TrimRight(baseURL, "/") + CallbackPath
	}
	scheme := "https"
	if IsLocalhost(r) {
		scheme = "http"
	}
	return scheme + "://" + r.Host + CallbackPath
}
