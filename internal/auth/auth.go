// Package auth is the connection gate: every signaling connection must
// present a bearer credential before any channel operation is reachable.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akorh/huddle/internal/domain"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Claims is the data stored inside the bearer token.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier checks a bearer credential and extracts the identity it carries.
type Verifier interface {
	Verify(credential string) (domain.Identity, error)
}

type hmacVerifier struct {
	secret []byte
}

func NewVerifier(secret string) Verifier {
	return hmacVerifier{secret: []byte(secret)}
}

func (v hmacVerifier) Verify(credential string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredentials
		}
		return v.secret, nil
	})
	if err != nil {
		return domain.Identity{}, ErrInvalidCredentials
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return domain.Identity{}, ErrInvalidCredentials
	}
	id, err := domain.NewIdentity(claims.UserID, claims.Username)
	if err != nil {
		return domain.Identity{}, ErrInvalidCredentials
	}
	return id, nil
}

// Issuer mints signed tokens. Used by the dev login endpoint and tests.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) Issuer {
	return Issuer{secret: []byte(secret), ttl: ttl}
}

func (i Issuer) Issue(id domain.Identity) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   string(id.UserID),
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "huddle",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// CredentialFromRequest pulls the bearer credential out of the handshake.
// Browsers cannot set headers on a WebSocket upgrade, so a `token` query
// parameter is accepted alongside the Authorization header.
func CredentialFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if cred, ok := strings.CutPrefix(h, "Bearer "); ok && cred != "" {
			return cred, nil
		}
		return "", ErrInvalidCredentials
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, nil
	}
	return "", ErrMissingCredentials
}
