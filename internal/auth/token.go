package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrBadToken = errors.New("invalid token")

type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken verifies an HS256 token and returns the actor it names.
func ParseToken(raw, secret string) (Actor, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		// block alg confusion
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadToken
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Actor{}, err
	}

	c, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return Actor{}, ErrBadToken
	}

	uid, err := uuid.Parse(c.UserID)
	if err != nil || uid == uuid.Nil {
		return Actor{}, ErrBadToken
	}

	return Actor{UserID: uid, Role: ParseRole(c.Role)}, nil
}

// MakeToken signs a token for actor. Production tokens come from the identity
// service; this is used by the seeder, the simulator and tests.
func MakeToken(a Actor, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := Claims{
		UserID: a.UserID.String(),
		Role:   string(a.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}
