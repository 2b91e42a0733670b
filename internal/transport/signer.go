package transport

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identify the event service to the receiver.
type Claims struct {
	SubscriptionID string `json:"subscription_id"`
	jwt.RegisteredClaims
}

// Signer issues short-lived HS256 bearer tokens for push requests.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewSigner(secret, issuer string, ttl time.Duration) *Signer {
	if issuer == "" {
		issuer = "eventd"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Signer{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Token signs a token scoped to subscriptionID.
func (s *Signer) Token(subscriptionID string) (string, error) {
	now := time.Now()
	claims := Claims{
		SubscriptionID: subscriptionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subscriptionID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses a token produced by Token. Receivers and tests use it.
func (s *Signer) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
