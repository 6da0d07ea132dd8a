package interfaces

import (
	"github.com/medrex/teleconsult/pkg/types"
)

// TokenValidator defines the interface for frontend token validation
type TokenValidator interface {
	ValidateJWT(token string) (*types.UserClaims, error)
}

// RateLimiter defines the interface for rate limiting
type RateLimiter interface {
	Allow(userID string) (bool, error)
	Reset(userID string) error
}
