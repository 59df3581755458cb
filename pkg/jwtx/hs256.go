package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")

	errSecretTooShort = errors.New("jwtx: HS256 secret must be at least 32 bytes")
)

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// HS256 signs and verifies tokens with a single shared HMAC-SHA256 secret.
// A symmetric signer is enough here: tokens are only ever verified by this
// service, so there is no key distribution problem to solve.
type HS256 struct {
	secret []byte
	issuer string
}

// NewHS256 builds an HS256 signer/verifier. The secret must carry at least
// 256 bits so the HMAC keyspace isn't the weakest link.
func NewHS256(secret []byte, issuer string) (*HS256, error) {
	if len(secret) < 32 {
		return nil, errSecretTooShort
	}
	return &HS256{secret: secret, issuer: issuer}, nil
}

// Alg returns the JWA name of the signing algorithm.
func (s *HS256) Alg() string { return "HS256" }

// Sign produces a compact serialized JWT for the given claims.
func (s *HS256) Sign(c Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(s.secret)
}

// Verify parses and validates a compact JWT. Only HS256 is accepted as a
// signing method so algorithm-confusion tokens are rejected up front. Expiry
// and not-before are validated by the parser; the issuer is checked against
// the configured value.
func (s *HS256) Verify(tokenString string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return Claims{}, ErrNotYetValid
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSig
		default:
			return Claims{}, ErrMalformed
		}
	}

	if err := claims.ValidateIssuer(s.issuer); err != nil {
		return Claims{}, err
	}

	return claims, nil
}
