package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// GoogleJWKSURL publishes the keys Google signs id_tokens with
const GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

var googleIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// ErrInvalidIDToken is returned for id_tokens that fail verification
var ErrInvalidIDToken = errors.New("invalid id token")

// User is the Google account behind a verified id_token
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// IDTokenVerifier verifies Google id_tokens against a cached JWKS
type IDTokenVerifier struct {
	jwksURL  string
	audience string
	issuers  []string
	cache    *jwk.Cache
}

// NewIDTokenVerifier registers the JWKS URL with a refreshing cache. Keys are
// fetched lazily on the first verification. The cache stops refreshing when
// ctx is cancelled.
func NewIDTokenVerifier(ctx context.Context, jwksURL, audience string) (*IDTokenVerifier, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(5*time.Minute)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}

	return &IDTokenVerifier{
		jwksURL:  jwksURL,
		audience: audience,
		issuers:  googleIssuers,
		cache:    cache,
	}, nil
}

// WithIssuers replaces the accepted issuers
func (v *IDTokenVerifier) WithIssuers(issuers ...string) *IDTokenVerifier {
	v.issuers = issuers
	return v
}

func (v *IDTokenVerifier) keySet(ctx context.Context) (jwk.Set, error) {
	keySet, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return jwk.Fetch(ctx, v.jwksURL)
	}
	return keySet, nil
}

// Verify checks signature, expiry, audience and issuer and returns the user
func (v *IDTokenVerifier) Verify(ctx context.Context, raw string) (*User, error) {
	if raw == "" {
		return nil, ErrInvalidIDToken
	}

	keySet, err := v.keySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(raw),
		jwt.WithKeySet(keySet),
		jwt.WithValidate(true),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}

	if !slices.Contains(v.issuers, token.Issuer()) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidIDToken, token.Issuer())
	}

	userID := token.Subject()
	if userID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidIDToken)
	}

	var email, name string
	if claim, ok := token.Get("email"); ok {
		email, _ = claim.(string)
	}
	if claim, ok := token.Get("name"); ok {
		name, _ = claim.(string)
	}

	return &User{
		ID:    userID,
		Email: email,
		Name:  name,
	}, nil
}
