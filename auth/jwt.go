// Package auth turns bearer tokens into callers. Tokens are HS256 JWTs with
// the participant email in sub and the privilege level in role.
package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"program-events/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the participant email in the registered sub claim.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Caller maps the claims onto a core caller.
func (c *Claims) Caller() (models.Caller, error) {
	role, err := models.ParseRole(c.Role)
	if err != nil {
		return models.Caller{}, err
	}
	email := models.NormalizeEmail(c.Subject)
	if email == "" {
		return models.Caller{}, errors.New("token has no subject")
	}
	return models.Caller{Email: email, Role: role}, nil
}

type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// CreateToken issues a token for caller valid for ttl.
func (s *Signer) CreateToken(caller models.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(caller.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseValidate verifies the signature and expiry of tokenStr.
func (s *Signer) ParseValidate(tokenStr string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// Authenticate parses tokenStr into a caller.
func (s *Signer) Authenticate(tokenStr string) (models.Caller, error) {
	claims, err := s.ParseValidate(tokenStr)
	if err != nil {
		return models.Caller{}, err
	}
	caller, err := claims.Caller()
	if err != nil {
		return models.Caller{}, errors.Join(ErrInvalidToken, err)
	}
	return caller, nil
}
