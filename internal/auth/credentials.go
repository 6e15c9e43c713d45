package auth

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	AccessTokenCookie  = "gmail_access_token"
	RefreshTokenCookie = "gmail_refresh_token"
	IDTokenCookie      = "gmail_id_token"
	StateCookie        = "oauth_state"

	accessTokenMaxAge  = time.Hour
	refreshTokenMaxAge = 7 * 24 * time.Hour
)

// ErrNoCredentials is returned when the request carries no usable Gmail tokens
var ErrNoCredentials = errors.New("authentication required")

// Credentials are the OAuth tokens a request carries in its cookies
type Credentials struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
}

// Token converts credentials to an oauth2 token for API clients
func (c Credentials) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
	}
}

// CredentialsFromRequest reads the token cookies. Both the access and the
// refresh token must be present.
func CredentialsFromRequest(r *http.Request) (Credentials, error) {
	var creds Credentials
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		creds.AccessToken = c.Value
	}
	if c, err := r.Cookie(RefreshTokenCookie); err == nil {
		creds.RefreshToken = c.Value
	}
	if c, err := r.Cookie(IDTokenCookie); err == nil {
		creds.IDToken = c.Value
	}

	if creds.AccessToken == "" || creds.RefreshToken == "" {
		return Credentials{}, ErrNoCredentials
	}
	return creds, nil
}

// SetCredentials stores a freshly exchanged token as HttpOnly cookies
func SetCredentials(w http.ResponseWriter, tok *oauth2.Token, secure bool) {
	setCookie(w, AccessTokenCookie, tok.AccessToken, accessTokenMaxAge, secure)
	setCookie(w, RefreshTokenCookie, tok.RefreshToken, refreshTokenMaxAge, secure)

	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		setCookie(w, IDTokenCookie, idToken, accessTokenMaxAge, secure)
	}
}

// ClearCredentials expires every token cookie
func ClearCredentials(w http.ResponseWriter, secure bool) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie, IDTokenCookie} {
		expireCookie(w, name, secure)
	}
}

// SetState remembers the OAuth state nonce until the callback
func SetState(w http.ResponseWriter, state string, secure bool) {
	setCookie(w, StateCookie, state, 10*time.Minute, secure)
}

// ClearState expires the OAuth state cookie
func ClearState(w http.ResponseWriter, secure bool) {
	expireCookie(w, StateCookie, secure)
}

// StateFromRequest returns the stored state nonce, or "" when absent
func StateFromRequest(r *http.Request) string {
	c, err := r.Cookie(StateCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func setCookie(w http.ResponseWriter, name, value string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func expireCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
