package jwt

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const defaultIssuer = "bookreview"

var (
	// ErrInvalidToken covers malformed tokens, bad signatures and unexpected algorithms.
	ErrInvalidToken = errors.New("jwt: invalid token")
	// ErrExpired is returned for a correctly signed token past its expiry.
	ErrExpired = errors.New("jwt: token expired")
)

// Claims defines JWT payload.
type Claims struct {
	UserID string `json:"userId"`
	jwtlib.RegisteredClaims
}

// Issuer signs and verifies access tokens with a single HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// Option customises an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// WithIssuer sets the iss claim.
func WithIssuer(name string) Option {
	return func(i *Issuer) {
		if strings.TrimSpace(name) != "" {
			i.issuer = name
		}
	}
}

// NewIssuer constructs an Issuer. The secret must be non-empty and ttl positive.
func NewIssuer(secret []byte, ttl time.Duration, opts ...Option) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt: empty signing secret")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt: token lifetime must be positive")
	}
	i := &Issuer{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// TTL reports the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue returns a signed token for userID expiring ttl from now.
func (i *Issuer) Issue(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("jwt: empty subject")
	}
	now := i.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    i.issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify validates signature, algorithm and expiry and returns the user id.
func (i *Issuer) Verify(token string) (string, error) {
	claims := &Claims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(i.now),
	)
	if err != nil {
		// jwt/v5 only reports expiry after the signature checked out.
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return "", ErrExpired
		}
		return "", ErrInvalidToken
	}
	if !parsed.Valid || strings.TrimSpace(claims.UserID) == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}
