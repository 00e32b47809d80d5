package auth

import "github.com/golang-jwt/jwt/v5"

// CallbackClaims identifies an external verifier posting verdicts.
type CallbackClaims struct {
	Verifier string `json:"verifier"`
	jwt.RegisteredClaims
}
