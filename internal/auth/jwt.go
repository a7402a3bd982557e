// Package auth validates the HS256 access tokens issued by the external
// auth provider.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agamenonmacondo/avashop-sub001/pkg/middleware"
)

var ErrInvalidToken = errors.New("invalid token")

type tokenClaims struct {
	Email       string `json:"email"`
	Role        string `json:"role,omitempty"`
	AppMetadata struct {
		Role string `json:"role,omitempty"`
	} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// JWTValidator checks signature, expiry and issuer of bearer tokens.
type JWTValidator struct {
	secret      []byte
	issuer      string
	adminEmails map[string]struct{}
}

// NewJWTValidator creates a validator. Callers whose email is listed in
// adminEmails get the admin role regardless of the token role.
func NewJWTValidator(secret, issuer string, adminEmails []string) *JWTValidator {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &JWTValidator{secret: []byte(secret), issuer: issuer, adminEmails: admins}
}

// Validate parses token into middleware claims.
func (v *JWTValidator) Validate(token string) (*middleware.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var c tokenClaims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	role := c.AppMetadata.Role
	if role == "" {
		role = c.Role
	}
	if _, ok := v.adminEmails[strings.ToLower(c.Email)]; ok {
		role = middleware.RoleAdmin
	}

	return &middleware.Claims{UserID: c.Subject, Email: c.Email, Role: role}, nil
}

// Issue signs a token the way the auth provider does. Used by tests and
// local tooling.
func Issue(secret, userID, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := tokenClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	c.AppMetadata.Role = role
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}
