// Package auth validates bearer credentials issued by the external
// identity service. The core never mints tokens; it only asks whether a
// credential is valid and what role it carries.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload the identity service signs.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the validated view of a credential.
type Identity struct {
	UserID   string
	Username string
	Role     Role
}

// Config holds the verification parameters shared with the identity service.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Verifier validates bearer credentials.
type Verifier struct {
	cfg *Config
}

// NewVerifier builds a verifier from the shared configuration.
func NewVerifier(cfg *Config) *Verifier {
	return &Verifier{cfg: cfg}
}

// Verify parses and validates a credential and extracts the identity.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.cfg.Secret, nil
	}, jwt.WithLeeway(v.cfg.Leeway))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if v.cfg.Issuer != "" && claims.Issuer != v.cfg.Issuer {
		return nil, fmt.Errorf("invalid issuer")
	}

	if v.cfg.Audience != "" {
		validAudience := false
		for _, aud := range claims.Audience {
			if aud == v.cfg.Audience {
				validAudience = true
				break
			}
		}
		if !validAudience {
			return nil, fmt.Errorf("invalid audience")
		}
	}

	return &Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     ParseRole(claims.Role),
	}, nil
}
