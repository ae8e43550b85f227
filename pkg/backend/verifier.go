package backend

import (
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

// Claims are the access token fields the client cares about.
type Claims struct {
	Subject   string `mapstructure:"sub"`
	Email     string `mapstructure:"email"`
	Role      string `mapstructure:"role"`
	SessionID string `mapstructure:"session_id"`
	ExpiresAt int64  `mapstructure:"exp"`
}

func (c *Claims) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}

func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt > 0 && !now.Before(c.Expiry())
}

// Verifier reads access tokens. With a JWKS url the signature is checked
// against the backend keys; without one the token is only decoded, the
// backend stays the authority on every request anyway.
type Verifier struct {
	jwks   *keyfunc.JWKS
	parser *jwt.Parser
}

func NewVerifier(jwksURL string, log logrus.FieldLogger) (*Verifier, error) {
	verifier := &Verifier{
		// expiry is reported through Claims so that callers can refresh
		parser: jwt.NewParser(jwt.WithoutClaimsValidation()),
	}

	if jwksURL == "" {
		return verifier, nil
	}

	options := keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			log.WithError(err).Error("failed to refresh the jwks")
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}

	jwks, err := keyfunc.Get(jwksURL, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS from resource at the given URL: %w", err)
	}

	verifier.jwks = jwks

	return verifier, nil
}

func (v *Verifier) Verified() bool {
	return v.jwks != nil
}

func (v *Verifier) Claims(tokenString string) (*Claims, error) {
	mapClaims := jwt.MapClaims{}

	if v.jwks != nil {
		token, err := v.parser.ParseWithClaims(tokenString, mapClaims, v.jwks.Keyfunc)
		if err != nil {
			return nil, errors.New("failed to parse the JWT")
		}

		if !token.Valid {
			return nil, errors.New("the token is not valid")
		}
	} else if _, _, err := v.parser.ParseUnverified(tokenString, mapClaims); err != nil {
		return nil, errors.New("failed to parse the JWT")
	}

	var claims Claims
	if err := mapstructure.Decode(map[string]any(mapClaims), &claims); err != nil {
		return nil, err
	}

	if claims.Subject == "" {
		return nil, errors.New("the token has no subject")
	}

	return &claims, nil
}

func (v *Verifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}
