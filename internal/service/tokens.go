// Package service contains application services over the key package,
// connection package, queue and client record stores.
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/and161185/keyqueue/internal/errs"
	"github.com/and161185/keyqueue/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer signs and verifies HS256 bearer tokens whose subject is a client id.
type TokenIssuer struct {
	signKey   []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(signKey []byte, accessTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{signKey: signKey, accessTTL: accessTTL, now: time.Now}
}

// Issue creates a signed HS256 JWT for the given client.
func (t *TokenIssuer) Issue(clientID uuid.UUID) (model.Tokens, error) {
	now := t.now()
	exp := now.Add(t.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   clientID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(t.signKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}

// Verify checks signature and validity window and returns the subject client id.
func (t *TokenIssuer) Verify(token string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tk *jwt.Token) (any, error) {
		if tk.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return t.signKey, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithLeeway(30*time.Second))
	if err != nil || !parsed.Valid {
		return uuid.Nil, fmt.Errorf("invalid token: %w", errs.ErrUnauthorized)
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad subject: %w", errs.ErrUnauthorized)
	}
	return id, nil
}
