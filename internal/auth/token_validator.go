package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medrex/teleconsult/pkg/interfaces"
	"github.com/medrex/teleconsult/pkg/types"
)

// Claims is the platform token payload the frontend carries
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenValidator checks HS256 platform tokens
type TokenValidator struct {
	secret []byte
	issuer string
}

// NewTokenValidator creates a validator. An empty issuer accepts any issuer.
func NewTokenValidator(secret, issuer string) interfaces.TokenValidator {
	return &TokenValidator{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// ValidateJWT validates tokenString and returns its claims with the raw token attached
func (tv *TokenValidator) ValidateJWT(tokenString string) (*types.UserClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if tv.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tv.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return tv.secret, nil
	}, opts...)
	if err != nil {
		return nil, types.NewAuthenticationError(types.ErrCodeAuthenticationFailed, fmt.Sprintf("failed to parse token: %v", err))
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, types.NewAuthenticationError(types.ErrCodeAuthenticationFailed, "invalid token claims")
	}
	if claims.UserID == "" {
		return nil, types.NewAuthenticationError(types.ErrCodeAuthenticationFailed, "token has no user id")
	}

	return &types.UserClaims{
		UserID:   claims.UserID,
		Username: claims.Username,
		Name:     claims.Name,
		Role:     types.UserRole(claims.Role),
		Token:    tokenString,
	}, nil
}

// IssueToken signs a platform token with the same claims ValidateJWT accepts
func IssueToken(secret, issuer string, c *types.UserClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   c.UserID,
		Username: c.Username,
		Name:     c.Name,
		Role:     string(c.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   c.UserID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
