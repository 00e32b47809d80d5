package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/supplytrace-backend/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// MintCallbackToken issues a signed bearer token for an external verifier.
func MintCallbackToken(cfg config.CallbackConfig, now time.Time, verifier string, ttl time.Duration) (string, error) {
	if cfg.JWTSecret == "" {
		return "", fmt.Errorf("callback jwt secret is required")
	}
	if cfg.JWTIssuer == "" {
		return "", fmt.Errorf("callback jwt issuer is required")
	}
	verifier = strings.TrimSpace(verifier)
	if verifier == "" {
		return "", fmt.Errorf("verifier is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}

	claims := CallbackClaims{
		Verifier: verifier,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.JWTIssuer,
			Subject:   verifier,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseCallbackToken validates the bearer token and returns typed claims.
func ParseCallbackToken(cfg config.CallbackConfig, tokenString string) (*CallbackClaims, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("callback jwt secret is required")
	}

	claims := &CallbackClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.JWTIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Verifier) == "" {
		return nil, fmt.Errorf("token missing verifier")
	}
	return claims, nil
}
