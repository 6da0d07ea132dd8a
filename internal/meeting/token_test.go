package meeting

import (
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/teleconsult/pkg/types"
)

// parseToken verifies a participant token the way the provider does
func parseToken(secret []byte, token string) (*ParticipantClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &ParticipantClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*ParticipantClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

func TestTokenIssuer_GenerateToken(t *testing.T) {
	ti := NewTokenIssuer("key", "secret", time.Hour)
	fixed := time.Now()
	ti.now = func() time.Time { return fixed }

	token, err := ti.GenerateToken("doc-1", "Dr. Rao")
	require.NoError(t, err)

	claims, err := parseToken(ti.apiSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "key", claims.APIKey)
	assert.Equal(t, "doc-1", claims.ParticipantID)
	assert.Equal(t, "Dr. Rao", claims.Name)
	assert.Contains(t, claims.Permissions, "allow_join")
	assert.WithinDuration(t, fixed.Add(time.Hour), claims.ExpiresAt.Time, time.Second)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	_, err := NewTokenIssuer("", "", 0).GenerateToken("doc-1", "")
	assert.Equal(t, types.ErrorTypeAuthentication, types.TypeOf(err))

	_, err = NewTokenIssuer("key", "secret", 0).GenerateToken(" ", "")
	assert.Equal(t, types.ErrorTypeValidation, types.TypeOf(err))
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("key", "secret", 0).GenerateToken("doc-1", "")
	require.NoError(t, err)

	_, err = parseToken([]byte("other"), token)
	assert.Error(t, err)
}
