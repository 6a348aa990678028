package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry is the default lifetime of issued tokens.
const TokenExpiry = 7 * 24 * time.Hour

// Claims are the JWT claims carried by bearer tokens. The subject
// registered claim holds the user id.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// BearerAuthenticator authenticates requests carrying an HS256-signed
// JWT in the Authorization header.
type BearerAuthenticator struct {
	secret []byte
}

// NewBearerAuthenticator creates a new bearer authenticator with the
// given signing secret.
func NewBearerAuthenticator(secret string) (*BearerAuthenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("bearer auth: secret must not be empty")
	}
	return &BearerAuthenticator{secret: []byte(secret)}, nil
}

// IssueToken signs a token for the given user. Exposed for operator
// tooling and tests; the service itself never issues tokens.
func (a *BearerAuthenticator) IssueToken(userID, name string) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Authenticate extracts and validates the bearer token, returning the
// token subject as the authenticated principal.
func (a *BearerAuthenticator) Authenticate(r *http.Request) (*AuthInfo, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrUnauthenticated
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, fmt.Errorf("%w: not a bearer token", ErrInvalidToken)
	}

	token, err := jwt.ParseWithClaims(
		strings.TrimPrefix(header, prefix),
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return a.secret, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &AuthInfo{
		Method:  AuthMethodBearer,
		Subject: claims.Subject,
		Claims:  map[string]any{"name": claims.Name},
	}, nil
}

// Method returns the authentication method type.
func (a *BearerAuthenticator) Method() AuthMethod {
	return AuthMethodBearer
}
