package identity

import (
	"errors"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

// Verifier validates session tokens and extracts their subject.
type Verifier struct {
	Audience string
	Issuer   string

	parser  *jwt.Parser
	keyFunc jwt.Keyfunc
}

// NewHMACVerifier accepts HS256 tokens signed with secret.
func NewHMACVerifier(secret []byte, audience, issuer string) *Verifier {
	return &Verifier{
		Audience: audience,
		Issuer:   issuer,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		keyFunc: func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return secret, nil
		},
	}
}

// NewJWKSVerifier accepts RS256 tokens whose keys are published in jwks.
func NewJWKSVerifier(jwks *keyfunc.JWKS, audience, issuer string) *Verifier {
	return &Verifier{
		Audience: audience,
		Issuer:   issuer,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
		keyFunc: func(t *jwt.Token) (any, error) {
			if jwks == nil {
				return nil, errors.New("jwks not configured")
			}
			return jwks.Keyfunc(t)
		},
	}
}

// Subject verifies token and returns its sub claim.
func (v *Verifier) Subject(token string) (string, error) {
	if token == "" {
		return "", errors.New("empty token")
	}
	parsed, err := v.parser.Parse(token, v.keyFunc)
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, false) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errors.New("token not valid yet")
	}
	if v.Audience != "" && !claims.VerifyAudience(v.Audience, false) {
		return "", errors.New("invalid audience")
	}
	if v.Issuer != "" && !claims.VerifyIssuer(v.Issuer, false) {
		return "", errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}
