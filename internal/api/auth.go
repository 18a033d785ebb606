package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
)

const (
	contextClaimsKey = "claims"
	tokenIssuer      = "elearn"
)

var (
	errMissingToken = echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed jwt")
	errInvalidToken = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired jwt")
)

// Claims identifies the learner making a request. Subject is the learner
// ID.
type Claims struct {
	jwt.StandardClaims
	Name string `json:"name,omitempty"`
}

// NewClaims returns claims for learnerID valid for ttl from now.
func NewClaims(learnerID string, ttl time.Duration, now time.Time) *Claims {
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    tokenIssuer,
			Subject:   learnerID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
}

// GenerateToken signs claims with secret using HS256.
func GenerateToken(secret string, claims *Claims) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing token: empty secret")
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return ss, nil
}

func parseToken(secret []byte, raw string) (*Claims, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// authMiddleware requires a valid bearer token and stores its claims on
// the context.
func authMiddleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if !ok || raw == "" {
				return errMissingToken
			}
			claims, err := parseToken(secret, raw)
			if err != nil {
				return errInvalidToken.WithInternal(err)
			}
			c.Set(contextClaimsKey, claims)
			return next(c)
		}
	}
}

// learnerID returns the authenticated learner.
func learnerID(c echo.Context) string {
	if claims, ok := c.Get(contextClaimsKey).(*Claims); ok {
		return claims.Subject
	}
	return ""
}
