package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"veritas/backend/pkg/models"
)

const tokenIssuer = "veritas"

// Claims are the claims of a locally issued bearer token.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for actor valid for ttl.
func IssueToken(secret []byte, actor models.Actor, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := Claims{
		Email: actor.Email,
		Role:  actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates a locally issued token and returns its actor.
func ParseToken(secret []byte, raw string) (models.Actor, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return models.Actor{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return models.Actor{}, errors.New("invalid token claims")
	}
	return actorFromClaims(claims.Subject, claims.Email, claims.Role)
}

// actorFromClaims rejects tokens that do not carry a known role.
func actorFromClaims(subject, email, role string) (models.Actor, error) {
	if subject == "" {
		return models.Actor{}, errors.New("token has no subject")
	}
	for _, known := range models.Roles {
		if role == known {
			return models.Actor{UserID: subject, Email: email, Role: role}, nil
		}
	}
	return models.Actor{}, fmt.Errorf("unknown role %q", role)
}
