// Package auth mints and verifies session tokens and hashes passwords.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/todoauth/internal/common"
)

// Claims is the token payload: {sub, email, exp, iat}.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Identity is what a valid token asserts about its bearer.
type Identity struct {
	SubjectID string
	Email     string
	ExpiresAt time.Time
}

// Issuer signs and verifies HS256 tokens with one secret. Verification needs
// no store lookup, so an Issuer is safe for concurrent use.
type Issuer struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

// NewIssuer returns an Issuer whose tokens live for validity.
func NewIssuer(secretKey string, validity time.Duration) *Issuer {
	return &Issuer{
		secret:   []byte(secretKey),
		validity: validity,
		now:      time.Now,
	}
}

// WithClock returns a copy of the Issuer that reads the time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	c := *i
	c.now = now
	return &c
}

// Validity is the lifetime given to each issued token.
func (i *Issuer) Validity() time.Duration {
	return i.validity
}

// Issue returns a signed token for the subject expiring validity from now.
func (i *Issuer) Issue(subjectID, email string) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.validity)),
		},
		Email: email,
	})

	tokenString, err := token.SignedString(i.secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Verify checks the signature, the algorithm and the expiry of tokenString.
// It returns common.ErrTokenExpired for an expired token and
// common.ErrInvalidToken for anything else that fails.
func (i *Issuer) Verify(tokenString string) (*Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return &Identity{
		SubjectID: claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
