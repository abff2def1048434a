package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const defaultSessionTTL = 365 * 24 * time.Hour

// Issuer creates anonymous sessions: a fresh subject in a signed token.
type Issuer struct {
	Audience string
	Issuer   string
	TTL      time.Duration

	secret []byte
	newID  func() string
	now    func() time.Time
}

func NewIssuer(secret []byte, audience, issuer string) *Issuer {
	if len(secret) == 0 {
		panic("identity.NewIssuer: secret is empty")
	}
	return &Issuer{
		Audience: audience,
		Issuer:   issuer,
		TTL:      defaultSessionTTL,
		secret:   secret,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Session is an issued anonymous session.
type Session struct {
	Subject   string    `json:"subject"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Anonymous signs a token for a new anonymous subject.
func (i *Issuer) Anonymous() (Session, error) {
	if i == nil {
		return Session{}, errors.New("issuer not configured")
	}
	now := i.now()
	exp := now.Add(i.TTL)
	sub := i.newID()
	claims := jwt.MapClaims{
		"sub":  sub,
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"exp":  exp.Unix(),
		"anon": true,
	}
	if i.Audience != "" {
		claims["aud"] = i.Audience
	}
	if i.Issuer != "" {
		claims["iss"] = i.Issuer
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Session{}, err
	}
	return Session{Subject: sub, Token: signed, ExpiresAt: exp.UTC()}, nil
}
