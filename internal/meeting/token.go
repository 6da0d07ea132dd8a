package meeting

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medrex/teleconsult/pkg/types"
)

// DefaultTokenTTL bounds how long a participant token is accepted by the provider
const DefaultTokenTTL = 2 * time.Hour

// ParticipantClaims is the payload of a meeting provider token
type ParticipantClaims struct {
	APIKey        string   `json:"apikey"`
	Permissions   []string `json:"permissions"`
	Version       int      `json:"version"`
	ParticipantID string   `json:"participantId,omitempty"`
	Name          string   `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs participant tokens with the provider API secret
type TokenIssuer struct {
	apiKey    string
	apiSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewTokenIssuer creates a token issuer
func NewTokenIssuer(apiKey, apiSecret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		ttl:       ttl,
		now:       time.Now,
	}
}

// GenerateToken issues a token allowing participantID to create and join rooms
func (ti *TokenIssuer) GenerateToken(participantID, displayName string) (string, error) {
	if ti.apiKey == "" || len(ti.apiSecret) == 0 {
		return "", types.NewAuthenticationError(types.ErrCodeAuthenticationFailed, "meeting provider credentials are not configured")
	}
	if strings.TrimSpace(participantID) == "" {
		return "", types.NewValidationError(types.ErrCodeInvalidInput, "participant id is required", nil)
	}

	now := ti.now()
	claims := &ParticipantClaims{
		APIKey:        ti.apiKey,
		Permissions:   []string{"allow_join", "allow_mod"},
		Version:       2,
		ParticipantID: participantID,
		Name:          displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.apiSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign meeting token: %w", err)
	}
	return signed, nil
}
