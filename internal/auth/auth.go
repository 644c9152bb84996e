// Package auth maps opaque bearer tokens to user identities.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/taskhub/realtime/internal/protocol"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// Verifier resolves a token to the user it was issued for.
type Verifier interface {
	Verify(token string) (protocol.User, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(token string) (protocol.User, error)

func (f VerifierFunc) Verify(token string) (protocol.User, error) { return f(token) }

// Claims is the token payload issued by the REST layer. The id claim may be
// a JSON number or string.
type Claims struct {
	UserID protocol.ID `json:"id"`
	Name   string      `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// HMAC verifies and issues HS256 tokens signed with a shared secret.
type HMAC struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewHMAC(secret []byte, issuer string) *HMAC {
	return &HMAC{secret: secret, issuer: issuer, now: time.Now}
}

func (h *HMAC) Verify(token string) (protocol.User, error) {
	if token == "" {
		return protocol.User{}, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithTimeFunc(h.now),
	}
	if h.issuer != "" {
		opts = append(opts, jwt.WithIssuer(h.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return h.secret, nil
	}, opts...)
	if err != nil {
		return protocol.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := claims.UserID
	if id.IsZero() {
		id = protocol.StringID(claims.Subject)
	}
	if id.IsZero() {
		return protocol.User{}, fmt.Errorf("%w: no user id", ErrInvalidToken)
	}
	name := claims.Name
	if name == "" {
		name = id.String()
	}
	return protocol.User{ID: id, Name: name}, nil
}

// Issue signs a token for u valid for ttl. A zero ttl issues a token without
// expiry.
func (h *HMAC) Issue(u protocol.User, ttl time.Duration) (string, error) {
	now := h.now()
	claims := Claims{
		UserID: u.ID,
		Name:   u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  u.ID.String(),
			Issuer:   h.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
