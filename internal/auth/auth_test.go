package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/nalgeon/be"
	"golang.org/x/oauth2"
)

func TestCredentialsRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	tok := (&oauth2.Token{AccessToken: "access", RefreshToken: "refresh"}).
		WithExtra(map[string]any{"id_token": "idtok"})
	SetCredentials(rec, tok, true)

	req := httptest.NewRequest(http.MethodGet, "/api/contacts", nil)
	for _, c := range rec.Result().Cookies() {
		be.True(t, c.HttpOnly)
		be.True(t, c.Secure)
		req.AddCookie(c)
	}

	creds, err := CredentialsFromRequest(req)
	be.Err(t, err, nil)
	be.Equal(t, creds, Credentials{AccessToken: "access", RefreshToken: "refresh", IDToken: "idtok"})
	be.Equal(t, creds.Token().AccessToken, "access")
}

func TestCredentialsRequireBothTokens(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/contacts", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "access"})

	_, err := CredentialsFromRequest(req)
	be.Err(t, err, ErrNoCredentials)

	_, err = CredentialsFromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	be.Err(t, err, ErrNoCredentials)
}

func TestClearCredentialsExpiresCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearCredentials(rec, false)

	cookies := rec.Result().Cookies()
	be.Equal(t, len(cookies), 3)
	for _, c := range cookies {
		be.Equal(t, c.Value, "")
		be.True(t, c.MaxAge < 0)
	}
}

func TestStateCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	state := NewState()
	SetState(rec, state, false)

	req := httptest.NewRequest(http.MethodGet, CallbackPath, nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	be.Equal(t, StateFromRequest(req), state)
	be.Equal(t, StateFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)), "")
	be.True(t, NewState() != state)
}

func TestRedirectURL(t *testing.T) {
	local := httptest.NewRequest(http.MethodGet, "/api/auth", nil)
	local.Host = "localhost:8080"
	be.Equal(t, RedirectURL("", local), "http://localhost:8080/api/auth/callback")

	remote := httptest.NewRequest(http.MethodGet, "/api/auth", nil)
	remote.Host = "followup.example.com"
	be.Equal(t, RedirectURL("", remote), "https://followup.example.com/api/auth/callback")
	be.Equal(t, RedirectURL("https://app.example.com/", remote), "https://app.example.com/api/auth/callback")
}

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"localhost", true},
		{"localhost:8080", true},
		{"LocalHost:3000", true},
		{"127.0.0.1:8080", true},
		{"[::1]:8080", true},
		{"localhost.attacker.example", false},
		{"localhost.attacker.example:443", false},
		{"evil-localhost.com", false},
		{"127.0.0.1.nip.io", false},
		{"followup.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth", nil)
			req.Host = tt.host
			be.Equal(t, IsLocalhost(req), tt.want)
		})
	}

	lookalike := httptest.NewRequest(http.MethodGet, "/api/auth", nil)
	lookalike.Host = "localhost.attacker.example"
	be.Equal(t, RedirectURL("", lookalike), "https://localhost.attacker.example/api/auth/callback")
}

func TestConsentURL(t *testing.T) {
	cfg := OAuth("client-id", "secret", "http://localhost:8080"+CallbackPath)
	raw := ConsentURL(cfg, "state-123")

	u, err := url.Parse(raw)
	be.Err(t, err, nil)
	q := u.Query()
	be.Equal(t, q.Get("state"), "state-123")
	be.Equal(t, q.Get("access_type"), "offline")
	be.Equal(t, q.Get("prompt"), "consent")
	be.Equal(t, q.Get("client_id"), "client-id")
	be.Equal(t, q.Get("redirect_uri"), "http://localhost:8080/api/auth/callback")
}

type testIssuer struct {
	key jwk.Key
	srv *httptest.Server
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	be.Err(t, err, nil)

	key, err := jwk.FromRaw(raw)
	be.Err(t, err, nil)
	be.Err(t, key.Set(jwk.KeyIDKey, "test-key"), nil)
	be.Err(t, key.Set(jwk.AlgorithmKey, jwa.RS256), nil)

	pub, err := jwk.PublicKeyOf(key)
	be.Err(t, err, nil)
	be.Err(t, pub.Set(jwk.KeyIDKey, "test-key"), nil)
	be.Err(t, pub.Set(jwk.AlgorithmKey, jwa.RS256), nil)

	set := jwk.NewSet()
	be.Err(t, set.AddKey(pub), nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)

	return &testIssuer{key: key, srv: srv}
}

func (i *testIssuer) sign(t *testing.T, issuer, audience string, exp time.Time) string {
	t.Helper()

	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		Subject("10769150350006150715113082367").
		Audience([]string{audience}).
		IssuedAt(exp.Add(-time.Hour)).
		Expiration(exp).
		Claim("email", "jane@example.com").
		Claim("name", "Jane Doe").
		Build()
	be.Err(t, err, nil)

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, i.key))
	be.Err(t, err, nil)
	return string(signed)
}

func TestIDTokenVerifier(t *testing.T) {
	issuer := newTestIssuer(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	v, err := NewIDTokenVerifier(ctx, issuer.srv.URL, "client-id")
	be.Err(t, err, nil)

	user, err := v.Verify(ctx, issuer.sign(t, "https://accounts.google.com", "client-id", time.Now().Add(time.Hour)))
	be.Err(t, err, nil)
	be.Equal(t, *user, User{ID: "10769150350006150715113082367", Email: "jane@example.com", Name: "Jane Doe"})

	t.Run("wrong audience", func(t *testing.T) {
		_, err := v.Verify(ctx, issuer.sign(t, "https://accounts.google.com", "someone-else", time.Now().Add(time.Hour)))
		be.True(t, errors.Is(err, ErrInvalidIDToken))
	})

	t.Run("expired", func(t *testing.T) {
		_, err := v.Verify(ctx, issuer.sign(t, "accounts.google.com", "client-id", time.Now().Add(-time.Hour)))
		be.True(t, errors.Is(err, ErrInvalidIDToken))
	})

	t.Run("foreign issuer", func(t *testing.T) {
		_, err := v.Verify(ctx, issuer.sign(t, "https://evil.example.com", "client-id", time.Now().Add(time.Hour)))
		be.True(t, errors.Is(err, ErrInvalidIDToken))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := v.Verify(ctx, "")
		be.Err(t, err, ErrInvalidIDToken)
	})
}
